package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
	"rgsons/backend/internal/voucher"
	"rgsons/backend/internal/xid"
)

// AllocateVoucherNumber issues the next number for voucherType. The counter
// increment and the log entry commit together or not at all.
func (s *Service) AllocateVoucherNumber(ctx context.Context, voucherType string, storeCode string) (string, error) {
	var number string
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		number, err = s.allocate(ctx, tx, voucherType, storeCode)
		return err
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// PreviewVoucherNumber runs the same allocation as AllocateVoucherNumber.
// The sequence is consumed; there is no read-only peek.
func (s *Service) PreviewVoucherNumber(ctx context.Context, voucherType string, storeCode string) (string, error) {
	number, err := s.AllocateVoucherNumber(ctx, voucherType, storeCode)
	if err != nil {
		return "", err
	}
	s.log.WithFields(logrus.Fields{
		"voucher_type":   normalizeVoucherType(voucherType),
		"voucher_number": number,
	}).Debug("preview consumed a voucher number")
	return number, nil
}

func (s *Service) allocate(ctx context.Context, tx store.Tx, voucherType string, storeCode string) (string, error) {
	voucherType = normalizeVoucherType(voucherType)
	if voucherType == "" {
		return "", fmt.Errorf("%w: voucher_type", ErrMissingRequiredField)
	}

	cfg, err := s.loadConfig(ctx, tx, voucherType)
	if err != nil {
		return "", err
	}
	if !cfg.IsActive {
		return "", fmt.Errorf("%w: %s", ErrConfigNotFound, voucherType)
	}

	storeWise := voucher.IsStoreWise(cfg.NumberingScope)
	storeCode = strings.TrimSpace(storeCode)
	var storeID *string
	if storeCode != "" {
		st, err := tx.GetStoreByCode(ctx, storeCode)
		switch {
		case err == nil:
			id := st.ID
			storeID = &id
		case errors.Is(err, store.ErrNotFound):
			if storeWise {
				return "", fmt.Errorf("%w: unknown store code %s", ErrInvalidStore, storeCode)
			}
		default:
			return "", err
		}
	} else if storeWise {
		return "", fmt.Errorf("%w: store code is required for %s numbering", ErrInvalidStore, domain.ScopeStoreWise)
	}

	now := s.clock()
	key := domain.SequenceKey{
		VoucherType: voucherType,
		ResetKey:    voucher.ResetKey(cfg.ResetFrequency, now),
	}
	if storeWise {
		key.StoreID = storeID
	}

	seq, err := tx.NextVoucherSequence(ctx, key, now)
	if err != nil {
		return "", fmt.Errorf("failed to advance voucher sequence: %w", err)
	}

	number := voucher.Format(*cfg, storeCode, now, seq)
	err = tx.CreateVoucherNumberLog(ctx, domain.VoucherNumberLog{
		ID:            xid.New("vnl"),
		VoucherType:   voucherType,
		StoreID:       storeID,
		VoucherNumber: number,
		GeneratedAt:   now,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.log.WithFields(logrus.Fields{
				"voucher_type":   voucherType,
				"voucher_number": number,
				"reset_key":      key.ResetKey,
				"sequence":       seq,
			}).Error("voucher number already issued")
			return "", fmt.Errorf("%w: voucher number %s already issued", ErrConcurrencyConflict, number)
		}
		return "", fmt.Errorf("failed to record voucher number: %w", err)
	}

	return number, nil
}

// allocateDocumentNumber is allocate plus the optional max+1 fallback used
// by document flows when no active config exists.
func (s *Service) allocateDocumentNumber(ctx context.Context, tx store.Tx, voucherType string, storeCode string) (string, error) {
	number, err := s.allocate(ctx, tx, voucherType, storeCode)
	if err == nil {
		return number, nil
	}
	if !s.legacyFallback || !errors.Is(err, ErrConfigNotFound) {
		return "", err
	}

	highest, maxErr := tx.MaxNumericVoucherNumber(ctx, voucherType)
	if maxErr != nil {
		return "", fmt.Errorf("legacy voucher fallback failed: %w", maxErr)
	}
	number = strconv.FormatInt(highest+1, 10)
	s.log.WithFields(logrus.Fields{
		"voucher_type":   voucherType,
		"store_code":     storeCode,
		"voucher_number": number,
	}).WithError(err).Warn("using legacy max+1 voucher number")
	return number, nil
}

func (s *Service) loadConfig(ctx context.Context, tx store.Tx, voucherType string) (*domain.VoucherConfig, error) {
	cached, ok, err := s.configCache.Get(ctx, voucherType)
	if err != nil {
		s.log.WithField("voucher_type", voucherType).WithError(err).Warn("voucher config cache read failed")
	}
	if err == nil && ok {
		return cached, nil
	}

	cfg, err := tx.GetVoucherConfig(ctx, voucherType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, voucherType)
		}
		return nil, err
	}
	if s.configTTL > 0 {
		if err := s.configCache.Set(ctx, cfg, s.configTTL); err != nil {
			s.log.WithField("voucher_type", voucherType).WithError(err).Warn("voucher config cache write failed")
		}
	}
	return cfg, nil
}

func (s *Service) GetVoucherConfig(ctx context.Context, voucherType string) (domain.VoucherConfig, error) {
	voucherType = normalizeVoucherType(voucherType)
	if voucherType == "" {
		return domain.VoucherConfig{}, fmt.Errorf("%w: voucher_type", ErrMissingRequiredField)
	}

	var cfg *domain.VoucherConfig
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		cfg, err = tx.GetVoucherConfig(ctx, voucherType)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.VoucherConfig{}, fmt.Errorf("%w: %s", ErrConfigNotFound, voucherType)
		}
		return domain.VoucherConfig{}, err
	}
	return *cfg, nil
}

func (s *Service) ListVoucherConfigs(ctx context.Context) ([]domain.VoucherConfig, error) {
	var configs []domain.VoucherConfig
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		configs, err = tx.ListVoucherConfigs(ctx)
		return err
	})
	return configs, err
}

// SaveVoucherConfig upserts the policy for cfg.VoucherType. Existing
// sequences are kept; a changed reset frequency only affects the next key.
func (s *Service) SaveVoucherConfig(ctx context.Context, cfg domain.VoucherConfig) (domain.VoucherConfig, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.VoucherConfig{}, err
	}

	cfg = normalizeConfig(cfg)
	if err := s.validateRequest(cfg); err != nil {
		return domain.VoucherConfig{}, err
	}
	if cfg.StoreCodePosition != nil && (*cfg.StoreCodePosition < 1 || *cfg.StoreCodePosition > 3) {
		return domain.VoucherConfig{}, fmt.Errorf("%w: store_code_position must be 1, 2 or 3", store.ErrInvalidTransaction)
	}

	var saved *domain.VoucherConfig
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		saved, err = tx.UpsertVoucherConfig(ctx, cfg)
		return err
	})
	if err != nil {
		return domain.VoucherConfig{}, err
	}

	if err := s.configCache.Invalidate(ctx, saved.VoucherType); err != nil {
		s.log.WithField("voucher_type", saved.VoucherType).WithError(err).Warn("voucher config cache invalidate failed")
	}
	s.logAudit(ctx, "", "voucher_config_save", "voucher_config", saved.VoucherType,
		fmt.Sprintf("prefix=%s,reset=%s,scope=%s,active=%t", saved.Prefix, saved.ResetFrequency, saved.NumberingScope, saved.IsActive))
	return *saved, nil
}

// SampleVoucherNumber formats sequence 1 for today under a draft config.
// Nothing is persisted.
func (s *Service) SampleVoucherNumber(ctx context.Context, req domain.VoucherSampleRequest) (string, error) {
	cfg := normalizeConfig(req.Config)
	if cfg.VoucherType == "" {
		cfg.VoucherType = "SAMPLE"
	}
	if err := s.validateRequest(cfg); err != nil {
		return "", err
	}
	return voucher.Format(cfg, req.StoreCode, s.clock(), 1), nil
}

func (s *Service) ListVoucherNumberLogs(ctx context.Context, voucherType string, limit int) ([]domain.VoucherNumberLog, error) {
	if limit < 1 {
		limit = 50
	}
	var logs []domain.VoucherNumberLog
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		logs, err = tx.ListVoucherNumberLogs(ctx, normalizeVoucherType(voucherType), limit)
		return err
	})
	return logs, err
}

func normalizeVoucherType(voucherType string) string {
	return strings.ToUpper(strings.TrimSpace(voucherType))
}

func normalizeConfig(cfg domain.VoucherConfig) domain.VoucherConfig {
	cfg.VoucherType = normalizeVoucherType(cfg.VoucherType)
	cfg.Prefix = strings.TrimSpace(cfg.Prefix)
	cfg.Suffix = strings.TrimSpace(cfg.Suffix)
	cfg.ResetFrequency = strings.ToUpper(strings.TrimSpace(cfg.ResetFrequency))
	if cfg.ResetFrequency == "" {
		cfg.ResetFrequency = domain.ResetNever
	}
	cfg.NumberingScope = strings.ToUpper(strings.TrimSpace(cfg.NumberingScope))
	if cfg.NumberingScope == "" {
		cfg.NumberingScope = domain.ScopeGlobal
	}
	return cfg
}
