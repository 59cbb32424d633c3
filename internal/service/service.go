package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"rgsons/backend/internal/cache"
	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
	"rgsons/backend/internal/xid"
)

var (
	ErrConfigNotFound       = fmt.Errorf("voucher config not found or inactive: %w", store.ErrNotFound)
	ErrInvalidStore         = fmt.Errorf("invalid store: %w", store.ErrInvalidTransaction)
	ErrMissingRequiredField = fmt.Errorf("missing required field: %w", store.ErrInvalidTransaction)
	ErrConcurrencyConflict  = fmt.Errorf("concurrency conflict: %w", store.ErrConflict)
	ErrAdminRequired        = errors.New("admin role required")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	configCache    cache.VoucherConfigCache
	configTTL      time.Duration
	locker         cache.Locker
	seedLockTTL    time.Duration
	log            *logrus.Logger
	validate       *validator.Validate
	now            func() time.Time
	location       *time.Location
	legacyFallback bool
}

type Option func(*Service)

// WithClock replaces time.Now. Tests use it to cross reset boundaries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the business time zone used for reset keys and
// voucher dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithConfigCache(c cache.VoucherConfigCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.configCache = c
			s.configTTL = ttl
		}
	}
}

func WithLocker(l cache.Locker, ttl time.Duration) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
		if ttl > 0 {
			s.seedLockTTL = ttl
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithLegacyFallback lets document flows number themselves max+1 when no
// active voucher config exists.
func WithLegacyFallback(enabled bool) Option {
	return func(s *Service) {
		s.legacyFallback = enabled
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		configCache: cache.NoopVoucherConfigCache{},
		configTTL:   time.Minute,
		locker:      cache.NoopLocker{},
		seedLockTTL: 15 * time.Second,
		log:         logrus.StandardLogger(),
		validate:    newValidator(),
		now:         time.Now,
		location:    time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// clock returns the current time in the business time zone.
func (s *Service) clock() time.Time {
	return s.now().In(s.location)
}

func (s *Service) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: invalid %s", store.ErrInvalidTransaction, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Actor{}, ErrAdminRequired
	}
	return actor, nil
}

// actingUser prefers an explicit user id and falls back to the caller.
func actingUser(ctx context.Context, explicit string) string {
	if user := strings.TrimSpace(explicit); user != "" {
		return user
	}
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

// parseBusinessDate validates a YYYY-MM-DD date and returns it normalized.
func parseBusinessDate(field string, raw string) (string, time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", time.Time{}, fmt.Errorf("%w: %s", ErrMissingRequiredField, field)
	}
	parsed, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", store.ErrInvalidTransaction, field)
	}
	return parsed.Format(domain.DateLayout), parsed, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeCode string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.now().UTC().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.Add(-7 * 24 * time.Hour)
	}
	if limit < 1 {
		limit = 100
	}

	var logs []domain.AuditLog
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		logs, err = tx.ListAuditLogs(ctx, strings.TrimSpace(storeCode), from, to, limit)
		return err
	})
	return logs, err
}

// logAudit records an audit entry in its own transaction after the business
// write has committed. Failures are logged and never reach the caller.
func (s *Service) logAudit(ctx context.Context, storeCode string, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	if actor.Username == "" {
		actor.Username = "system"
	}
	if actor.Role == "" {
		actor.Role = "system"
	}

	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		StoreCode:     storeCode,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateAuditLog(ctx, entry)
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"action":    action,
			"entity_id": entityID,
		}).WithError(err).Warn("failed to write audit log")
	}
}
