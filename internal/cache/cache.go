package cache

import (
	"context"
	"time"

	"rgsons/backend/internal/domain"
)

// VoucherConfigCache holds read-mostly numbering policies in front of the
// repository. Writers must Invalidate after saving a config.
type VoucherConfigCache interface {
	Get(ctx context.Context, voucherType string) (*domain.VoucherConfig, bool, error)
	Set(ctx context.Context, value *domain.VoucherConfig, ttl time.Duration) error
	Invalidate(ctx context.Context, voucherType string) error
}

type NoopVoucherConfigCache struct{}

func (NoopVoucherConfigCache) Get(_ context.Context, _ string) (*domain.VoucherConfig, bool, error) {
	return nil, false, nil
}

func (NoopVoucherConfigCache) Set(_ context.Context, _ *domain.VoucherConfig, _ time.Duration) error {
	return nil
}

func (NoopVoucherConfigCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
