package payout

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/stustapay/core/internal/database"
)

// Scheduler periodically requeues customer_info rows left in payout_error
// by an earlier export run and logs a database health probe, mirroring the
// teacher's PartitionManagerService/DataIntegrityService shape: a
// *cron.Cron field, a Config struct with defaulted fields, and
// Start/Stop methods that also run one pass immediately.
type Scheduler struct {
	pool     *pgxpool.Pool
	svc      *Service
	cron     *cron.Cron
	schedule string
}

// SchedulerConfig holds configuration for the payout error requeue worker.
type SchedulerConfig struct {
	Pool     *pgxpool.Pool
	Service  *Service
	Schedule string // cron expression, default every 6 hours
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 */6 * * *"
	}
	return &Scheduler{
		pool:     cfg.Pool,
		svc:      cfg.Service,
		cron:     cron.New(),
		schedule: cfg.Schedule,
	}
}

// Start registers the requeue job and runs one pass immediately, the way
// the teacher's services kick off an initial run before the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runOnce(ctx) }); err != nil {
		return err
	}
	go s.runOnce(ctx)
	s.cron.Start()
	log.Printf("payout error requeue scheduler started (schedule: %s)", s.schedule)
	return nil
}

func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if err := s.pool.Ping(ctx); err != nil {
		log.Printf("payout scheduler: database health check failed: %v", err)
		return
	}
	var requeued int
	err := database.WithTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		n, err := s.svc.RequeueErroredPayouts(ctx, tx)
		requeued = n
		return err
	})
	if err != nil {
		log.Printf("payout scheduler: requeue pass failed: %v", err)
		return
	}
	if requeued > 0 {
		log.Printf("payout scheduler: requeued %d customers previously stuck in payout_error", requeued)
	}
}
