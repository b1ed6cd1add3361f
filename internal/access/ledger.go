package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/models"
)

// DurationPolicy bounds temporal role grants per unit. Zero values fall back
// to the shipped defaults; deployments override via configuration.
type DurationPolicy struct {
	MaxMinutes int
	MaxHours   int
	MaxDays    int
}

// DefaultDurationPolicy matches the product's shipped limits.
var DefaultDurationPolicy = DurationPolicy{
	MaxMinutes: 480,
	MaxHours:   72,
	MaxDays:    7,
}

// ErrDurationExceeded indicates a temporal grant request beyond the policy bound.
var ErrDurationExceeded = errors.New("access: requested duration exceeds policy limit")

// Expiry converts an amount and unit into a concrete expiry relative to now,
// enforcing the per-unit maximum.
func (p DurationPolicy) Expiry(now time.Time, amount int, unit string) (time.Time, error) {
	if amount <= 0 {
		return time.Time{}, fmt.Errorf("access: duration amount must be positive")
	}

	max := 0
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "minute", "minutes":
		max, step = p.MaxMinutes, time.Minute
		if max <= 0 {
			max = DefaultDurationPolicy.MaxMinutes
		}
	case "hour", "hours":
		max, step = p.MaxHours, time.Hour
		if max <= 0 {
			max = DefaultDurationPolicy.MaxHours
		}
	case "day", "days":
		max, step = p.MaxDays, 24*time.Hour
		if max <= 0 {
			max = DefaultDurationPolicy.MaxDays
		}
	default:
		return time.Time{}, fmt.Errorf("access: unsupported duration unit %q", unit)
	}

	if amount > max {
		return time.Time{}, fmt.Errorf("%w: %d %s (max %d)", ErrDurationExceeded, amount, unit, max)
	}
	return now.Add(time.Duration(amount) * step), nil
}

// Ledger is the read side of the user/role assignment relation: it answers
// which grants are currently in effect, applying activity and expiry filters
// at read time. Expired rows persist and simply stop conferring access.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// LedgerOption customises the Ledger.
type LedgerOption func(*Ledger)

// WithLedgerNow overrides the clock used for expiry comparisons.
func WithLedgerNow(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger constructs an assignment ledger backed by the provided database.
func NewLedger(db *gorm.DB, opts ...LedgerOption) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("access ledger: db is required")
	}

	ledger := &Ledger{db: db, now: time.Now}
	for _, opt := range opts {
		opt(ledger)
	}
	return ledger, nil
}

// ActiveRolesFor returns the distinct active roles the user holds through at
// least one in-effect assignment row.
func (l *Ledger) ActiveRolesFor(ctx context.Context, userID string) ([]models.Role, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	err := l.db.WithContext(ctx).
		Distinct("roles.*").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Where("user_roles.is_active = ?", true).
		Where("user_roles.expires_at IS NULL OR user_roles.expires_at > ?", l.now()).
		Where("roles.is_active = ?", true).
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("access ledger: active roles: %w", err)
	}
	return roles, nil
}

// InEffectAssignments returns the user's assignment rows that currently
// confer access, regardless of role activity.
func (l *Ledger) InEffectAssignments(ctx context.Context, userID string) ([]models.UserRole, error) {
	ctx = ensureContext(ctx)

	var rows []models.UserRole
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", l.now()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("access ledger: load assignments: %w", err)
	}
	return rows, nil
}
