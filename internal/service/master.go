package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
)

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	var stores []domain.Store
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		stores, err = tx.ListStores(ctx)
		return err
	})
	return stores, err
}

func (s *Service) UpsertStore(ctx context.Context, req domain.StoreUpsertRequest) (domain.Store, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Store{}, err
	}
	req.StoreCode = strings.ToUpper(strings.TrimSpace(req.StoreCode))
	req.StoreName = strings.TrimSpace(req.StoreName)
	if err := s.validateRequest(req); err != nil {
		return domain.Store{}, err
	}

	var saved *domain.Store
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		saved, err = tx.UpsertStore(ctx, domain.Store{
			StoreCode: req.StoreCode,
			StoreName: req.StoreName,
			Active:    true,
			CreatedAt: s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return domain.Store{}, err
	}

	s.logAudit(ctx, saved.StoreCode, "store_upsert", "store", saved.StoreCode, "name="+saved.StoreName)
	return *saved, nil
}

func (s *Service) UpsertPrice(ctx context.Context, entry domain.PriceEntry) (domain.PriceEntry, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PriceEntry{}, err
	}
	entry.ItemCode = strings.TrimSpace(entry.ItemCode)
	entry.SizeCode = strings.TrimSpace(entry.SizeCode)
	if err := s.validateRequest(entry); err != nil {
		return domain.PriceEntry{}, err
	}
	if entry.PurchasePrice.IsNegative() || entry.MRP.IsNegative() {
		return domain.PriceEntry{}, fmt.Errorf("%w: prices must not be negative", store.ErrInvalidTransaction)
	}
	entry.UpdatedAt = s.now().UTC()

	var saved *domain.PriceEntry
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		saved, err = tx.UpsertPrice(ctx, entry)
		return err
	})
	if err != nil {
		return domain.PriceEntry{}, err
	}

	s.logAudit(ctx, "", "price_upsert", "price", saved.ItemCode+"/"+saved.SizeCode,
		fmt.Sprintf("purchase=%s,mrp=%s", saved.PurchasePrice.StringFixed(2), saved.MRP.StringFixed(2)))
	return *saved, nil
}

func storeLookupError(storeCode string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: unknown store code %s", ErrInvalidStore, storeCode)
	}
	return err
}
