// Package config loads the core's typed configuration from the YAML file
// named on the command line (spec §6: no environment-variable fallback)
// and serves the per-event "Config/Settings View" the rest of the core
// reads through.
package config

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/spf13/viper"
)

// Database holds the Postgres connection settings.
type Database struct {
	URL                string        `mapstructure:"url"`
	MaxConns           int32         `mapstructure:"max_conns"`
	MinConns           int32         `mapstructure:"min_conns"`
	MaxConnLifetime    time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime    time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod  time.Duration `mapstructure:"health_check_period"`
}

// Redis holds the optional session cache and token revocation connection.
// An empty Addr disables Redis: till session lookups go to the database
// only, and token revocation checks are skipped.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWT struct {
	Secret             string        `mapstructure:"secret"`
	AdminSessionTTL    time.Duration `mapstructure:"admin_session_ttl"`
	TerminalSessionTTL time.Duration `mapstructure:"terminal_session_ttl"`
	CustomerSessionTTL time.Duration `mapstructure:"customer_session_ttl"`
}

type Mail struct {
	APIKey      string `mapstructure:"api_key"`
	FromAddress string `mapstructure:"from_address"`
}

type S3Archive struct {
	Enabled         bool   `mapstructure:"enabled"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// EventSettings is the per-event slice of settings the Customer Portal and
// Order Service read; it is plain data handed in by the (external) node
// tree, per spec §1's framing of node_id as an opaque scope key.
type EventSettings struct {
	NodeID                 int64    `mapstructure:"node_id"`
	CurrencyIdentifier     string   `mapstructure:"currency_identifier"`
	SepaEnabled            bool     `mapstructure:"sepa_enabled"`
	SepaAllowedCountryCodes []string `mapstructure:"sepa_allowed_country_codes"`
	SepaSenderIBAN         string   `mapstructure:"sepa_sender_iban"`
	SepaSenderName         string   `mapstructure:"sepa_sender_name"`
	SepaDescriptionTemplate string  `mapstructure:"sepa_description_template"`
	VoucherRate            string   `mapstructure:"voucher_price_per_voucher"`
	CustomerPortalURL      string   `mapstructure:"customer_portal_url"`
	SumupTopupEnabled      bool     `mapstructure:"sumup_topup_enabled"`
	PayoutSender           string   `mapstructure:"payout_sender"`
	PayoutRegisteredSubject string  `mapstructure:"payout_registered_subject"`
	PayoutRegisteredMessage string  `mapstructure:"payout_registered_message"`
}

// Server is the HTTP layer's bind settings and request deadline. The
// three surfaces of spec §6 (Administration, Terminal, Customer Portal)
// each bind their own address so they can sit behind distinct reverse
// proxy routes or network policies.
type Server struct {
	AdminAddress    string        `mapstructure:"admin_address"`
	TerminalAddress string        `mapstructure:"terminal_address"`
	CustomerAddress string        `mapstructure:"customer_address"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

type Payout struct {
	OutputDir              string `mapstructure:"output_dir"`
	MaxExportItemsPerBatch int    `mapstructure:"max_export_items_per_batch"`
	RetrySchedule          string `mapstructure:"retry_schedule"`
}

// Config is the fully bound configuration of the core.
type Config struct {
	Server   Server          `mapstructure:"server"`
	Database Database        `mapstructure:"database"`
	Redis    Redis           `mapstructure:"redis"`
	JWT      JWT             `mapstructure:"jwt"`
	Mail     Mail            `mapstructure:"mail"`
	S3       S3Archive       `mapstructure:"s3_archive"`
	Payout   Payout          `mapstructure:"payout"`
	Events   []EventSettings `mapstructure:"events"`
}

// Load reads and binds the YAML file at path. There is no env-var
// fallback inside the core (spec §6).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("server.admin_address", ":8080")
	v.SetDefault("server.terminal_address", ":8081")
	v.SetDefault("server.customer_address", ":8082")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("database.max_conns", int32(25))
	v.SetDefault("database.min_conns", int32(5))
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.health_check_period", time.Minute)
	v.SetDefault("jwt.admin_session_ttl", 8*time.Hour)
	v.SetDefault("jwt.terminal_session_ttl", 12*time.Hour)
	v.SetDefault("jwt.customer_session_ttl", 2*time.Hour)
	v.SetDefault("payout.max_export_items_per_batch", 0)
	v.SetDefault("payout.retry_schedule", "0 */6 * * *")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("binding config: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("config: database.url is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("config: jwt.secret is required")
	}
	return &cfg, nil
}

// SettingsView is the "Config/Settings View" component of spec §2: a typed
// read of per-event settings, cached briefly to avoid a DB round trip on
// every terminal request. The underlying settings here are static config
// (no DB-mutable settings are in scope for the core per spec §1), but the
// cache shape matches how a future DB-backed settings table would be
// served, and how the teacher's services/massive_service.go caches
// upstream reads.
type SettingsView struct {
	events map[int64]EventSettings
	cache  *cache.Cache
}

func NewSettingsView(cfg *Config) *SettingsView {
	events := make(map[int64]EventSettings, len(cfg.Events))
	for _, e := range cfg.Events {
		events[e.NodeID] = e
	}
	return &SettingsView{
		events: events,
		cache:  cache.New(30*time.Second, time.Minute),
	}
}

func (s *SettingsView) ForNode(nodeID int64) (EventSettings, bool) {
	key := fmt.Sprintf("event:%d", nodeID)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(EventSettings), true
	}
	settings, ok := s.events[nodeID]
	if !ok {
		return EventSettings{}, false
	}
	s.cache.Set(key, settings, cache.DefaultExpiration)
	return settings, true
}
