package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/models"
	"github.com/oakdesk/oakdesk/pkg/logger"
	"github.com/oakdesk/oakdesk/pkg/metrics"
)

const defaultSchedule = "@every 1m"

// Reporter periodically refreshes the in-effect assignment and emergency
// grant gauges. It only reads: the ledger and audit tables are append-only,
// so there is nothing for a background job to purge.
type Reporter struct {
	db       *gorm.DB
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	schedule string
}

// Option customises the Reporter.
type Option func(*Reporter)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(r *Reporter) {
		if c != nil {
			r.cron = c
		}
	}
}

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSchedule overrides the cron specification for gauge refreshes.
func WithSchedule(spec string) Option {
	return func(r *Reporter) {
		if spec != "" {
			r.schedule = spec
		}
	}
}

// NewReporter constructs a Reporter with sensible defaults.
func NewReporter(db *gorm.DB, opts ...Option) *Reporter {
	reporter := &Reporter{
		db:       db,
		now:      time.Now,
		schedule: defaultSchedule,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(reporter)
	}

	if reporter.cron == nil {
		reporter.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return reporter
}

// Start registers the refresh job with the cron scheduler and launches it.
func (r *Reporter) Start() error {
	if r.db == nil {
		return nil
	}

	if _, err := r.cron.AddFunc(r.schedule, func() {
		if err := r.RunOnce(context.Background()); err != nil {
			r.log.Warn("gauge refresh failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	r.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (r *Reporter) Stop() context.Context {
	if r.cron == nil {
		return context.Background()
	}
	return r.cron.Stop()
}

// RunOnce refreshes every gauge immediately. Primarily used in tests and
// during start-up so gauges never report stale zeros.
func (r *Reporter) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	now := r.now()
	var errs error

	var assignments int64
	err := r.db.WithContext(ctx).
		Model(&models.UserRole{}).
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&assignments).Error
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		metrics.ActiveAssignments.Set(float64(assignments))
	}

	var grants int64
	err = r.db.WithContext(ctx).
		Model(&models.EmergencyAccess{}).
		Where("is_active = ? AND expires_at > ?", true, now).
		Count(&grants).Error
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		metrics.ActiveEmergencyGrants.Set(float64(grants))
	}

	return errs
}
