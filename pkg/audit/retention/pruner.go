package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/themis/pkg/audit"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// Days is how long decision records are kept. Zero disables pruning.
	Days int

	// Schedule is a cron expression for the pruning job.
	// Default: "0 3 * * *" (daily at 03:00)
	Schedule string
}

// Pruner periodically deletes decision records past the retention window.
// Administrative events are kept forever.
type Pruner struct {
	storage audit.Storage
	config  Config
	cron    *cron.Cron
	logger  *slog.Logger
}

// NewPruner creates a pruner over storage.
func NewPruner(storage audit.Storage, config Config) *Pruner {
	if config.Schedule == "" {
		config.Schedule = "0 3 * * *"
	}
	return &Pruner{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "audit.retention"),
	}
}

// Start schedules the pruning job. It is a no-op when retention is
// disabled.
func (p *Pruner) Start() error {
	if p.config.Days <= 0 {
		p.logger.Info("audit retention disabled")
		return nil
	}

	p.cron = cron.New()
	if _, err := p.cron.AddFunc(p.config.Schedule, p.prune); err != nil {
		return err
	}
	p.cron.Start()

	p.logger.Info("audit retention scheduled",
		"days", p.config.Days,
		"schedule", p.config.Schedule,
	)
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (p *Pruner) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
}

func (p *Pruner) prune() {
	cutoff := time.Now().AddDate(0, 0, -p.config.Days)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	removed, err := p.storage.Prune(ctx, cutoff)
	if err != nil {
		p.logger.Error("audit pruning failed", "error", err)
		return
	}
	p.logger.Info("audit records pruned", "removed", removed, "cutoff", cutoff)
}
