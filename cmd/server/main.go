// Command server runs the three StuStaPay HTTP surfaces (Administration,
// Terminal, Customer Portal) against one connection pool, the way the
// teacher's cmd/server/main.go wires one hub and one pool behind several
// REST surfaces.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stustapay/core/internal/api"
	"github.com/stustapay/core/internal/auditlog"
	"github.com/stustapay/core/internal/cashier"
	"github.com/stustapay/core/internal/config"
	"github.com/stustapay/core/internal/customer"
	"github.com/stustapay/core/internal/database"
	"github.com/stustapay/core/internal/mail"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
	"github.com/stustapay/core/internal/orders"
	"github.com/stustapay/core/internal/payout"
	"github.com/stustapay/core/internal/products"
	"github.com/stustapay/core/internal/till"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the core's YAML configuration file")
	migrationsPath := flag.String("migrations", "internal/database/migrations", "path to the migration directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("CRITICAL: loading config: %v", err)
	}

	log.Println("running database migrations...")
	if err := database.RunMigrations(cfg.Database.URL, "file://"+*migrationsPath); err != nil {
		log.Fatalf("CRITICAL: running migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("CRITICAL: connecting to database: %v", err)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	} else {
		log.Println("redis.addr not set, terminal session lookups use the database only and token revocation checks are disabled")
	}

	settings := config.NewSettingsView(cfg)
	issuer := middleware.NewTokenIssuer(cfg.JWT.Secret)
	revocation := middleware.NewRevocationCache(redisClient, cfg.JWT.CustomerSessionTTL)
	rateLimit := middleware.NewKeyedRateLimiter(100, 20)

	var mailSender mail.Sender
	if cfg.Mail.APIKey != "" {
		mailSender, err = mail.NewResendSender(cfg.Mail.APIKey)
		if err != nil {
			log.Fatalf("CRITICAL: initializing mail sender: %v", err)
		}
	} else {
		log.Println("mail.api_key not set, using console mail sender")
		mailSender = mail.NewConsoleSender()
	}

	sessionCache := till.NewSessionCache(redisClient, cfg.JWT.TerminalSessionTTL)
	ordersService := orders.NewService(voucherRateFromConfig(cfg))
	payoutService := payout.NewService(settings, bankCodeToBIC())

	scheduler := payout.NewScheduler(payout.SchedulerConfig{
		Pool:     pool,
		Service:  payoutService,
		Schedule: cfg.Payout.RetrySchedule,
	})
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("CRITICAL: starting payout scheduler: %v", err)
	}
	defer scheduler.Stop()

	deps := &api.Deps{
		Pool:       pool,
		Issuer:     issuer,
		Revocation: revocation,
		RateLimit:  rateLimit,
		Settings:   settings,
		JWT:        cfg.JWT,
		Orders:     ordersService,
		Cashiers:   cashier.NewEngine(ordersService),
		Till:       till.NewRuntime(sessionCache),
		Customer:   customer.NewService(settings, mailSender),
		Payout:     payoutService,
		Products:   products.New(),
		Audit:      auditlog.NewLogger(),
	}

	servers := []*http.Server{
		{Addr: cfg.Server.AdminAddress, Handler: api.NewAdminRouter(deps), ReadHeaderTimeout: cfg.Server.RequestTimeout},
		{Addr: cfg.Server.TerminalAddress, Handler: api.NewTerminalRouter(deps), ReadHeaderTimeout: cfg.Server.RequestTimeout},
		{Addr: cfg.Server.CustomerAddress, Handler: api.NewCustomerRouter(deps), ReadHeaderTimeout: cfg.Server.RequestTimeout},
	}
	names := []string{"administration", "terminal", "customer portal"}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		srv := srv
		log.Printf("%s api listening on %s", names[i], srv.Addr)
		go func() { errCh <- srv.ListenAndServe() }()
	}

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("error shutting down %s: %v", srv.Addr, err)
		}
	}
}

// voucherRateFromConfig reads the first configured event's voucher rate
// as the process-wide default; per-node overrides of the voucher price
// are out of scope for the core (spec.md's Non-goals around node-tree
// management).
func voucherRateFromConfig(cfg *config.Config) models.Money {
	if len(cfg.Events) == 0 || cfg.Events[0].VoucherRate == "" {
		return models.Zero()
	}
	rate, err := models.NewMoney(cfg.Events[0].VoucherRate)
	if err != nil {
		log.Printf("WARNING: invalid events[0].voucher_price_per_voucher %q, defaulting to 0: %v", cfg.Events[0].VoucherRate, err)
		return models.Zero()
	}
	return rate
}

// bankCodeToBIC is the static German bank-code lookup the SEPA renderer
// consults to derive a BIC when an account's bank doesn't carry one
// directly embedded in its IBAN. Operators needing broader coverage can
// extend this table; spec.md doesn't mandate a particular source for it.
func bankCodeToBIC() map[string]string {
	return map[string]string{
		"70150000": "SSKMDEMM",
		"10010010": "PBNKDEFF",
	}
}
