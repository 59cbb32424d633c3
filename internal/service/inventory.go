package service

import (
	"context"
	"fmt"
	"strings"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
)

// ApplyInward adds qty to the inward total of the ledger row, creating the
// row with opening zero when it does not exist yet.
func (s *Service) ApplyInward(ctx context.Context, storeCode string, itemCode string, sizeCode string, qty int64) (domain.InventoryLedger, error) {
	return s.applyStandalone(ctx, storeCode, itemCode, sizeCode, qty, 0)
}

// ApplyOutward adds qty to the outward total. Closing may go negative.
func (s *Service) ApplyOutward(ctx context.Context, storeCode string, itemCode string, sizeCode string, qty int64) (domain.InventoryLedger, error) {
	return s.applyStandalone(ctx, storeCode, itemCode, sizeCode, 0, qty)
}

func (s *Service) applyStandalone(ctx context.Context, storeCode string, itemCode string, sizeCode string, inward int64, outward int64) (domain.InventoryLedger, error) {
	key, err := ledgerKeyOf(storeCode, itemCode, sizeCode)
	if err != nil {
		return domain.InventoryLedger{}, err
	}

	var row *domain.InventoryLedger
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		row, err = s.applyMovement(ctx, tx, domain.LedgerMovement{Key: key, Inward: inward, Outward: outward})
		return err
	})
	if err != nil {
		return domain.InventoryLedger{}, err
	}
	return *row, nil
}

func (s *Service) applyMovement(ctx context.Context, tx store.Tx, movement domain.LedgerMovement) (*domain.InventoryLedger, error) {
	if movement.At.IsZero() {
		movement.At = s.now().UTC()
	}
	row, err := tx.ApplyInventoryMovement(ctx, movement)
	if err != nil {
		return nil, fmt.Errorf("failed to apply movement to %s/%s/%s: %w", movement.Key.StoreCode, movement.Key.ItemCode, movement.Key.SizeCode, err)
	}
	return row, nil
}

// SetOpeningStock loads an opening balance, e.g. the prior period closing.
// Running inward and outward totals are kept.
func (s *Service) SetOpeningStock(ctx context.Context, req domain.OpeningStockRequest) (domain.InventoryLedger, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.InventoryLedger{}, err
	}
	req.StoreCode = strings.TrimSpace(req.StoreCode)
	req.ItemCode = strings.TrimSpace(req.ItemCode)
	req.SizeCode = strings.TrimSpace(req.SizeCode)
	if err := s.validateRequest(req); err != nil {
		return domain.InventoryLedger{}, err
	}

	var row *domain.InventoryLedger
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetStoreByCode(ctx, req.StoreCode); err != nil {
			return storeLookupError(req.StoreCode, err)
		}
		var err error
		row, err = tx.SetInventoryOpening(ctx, domain.InventoryLedger{
			StoreCode: req.StoreCode,
			ItemCode:  req.ItemCode,
			ItemName:  strings.TrimSpace(req.ItemName),
			SizeCode:  req.SizeCode,
			SizeName:  strings.TrimSpace(req.SizeName),
			Opening:   req.Opening,
			UpdatedAt: s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return domain.InventoryLedger{}, err
	}

	s.logAudit(ctx, row.StoreCode, "inventory_opening", "inventory_ledger", row.ItemCode+"/"+row.SizeCode, fmt.Sprintf("opening=%d,closing=%d", row.Opening, row.Closing))
	return *row, nil
}

func (s *Service) ListInventory(ctx context.Context, storeCode string) ([]domain.InventoryLedger, error) {
	storeCode = strings.TrimSpace(storeCode)
	if storeCode == "" {
		return nil, fmt.Errorf("%w: store_code", ErrMissingRequiredField)
	}
	var rows []domain.InventoryLedger
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.ListInventoryLedger(ctx, storeCode)
		return err
	})
	return rows, err
}

func ledgerKeyOf(storeCode string, itemCode string, sizeCode string) (domain.LedgerKey, error) {
	key := domain.LedgerKey{
		StoreCode: strings.TrimSpace(storeCode),
		ItemCode:  strings.TrimSpace(itemCode),
		SizeCode:  strings.TrimSpace(sizeCode),
	}
	if key.StoreCode == "" || key.ItemCode == "" || key.SizeCode == "" {
		return domain.LedgerKey{}, fmt.Errorf("%w: store_code, item_code and size_code", ErrMissingRequiredField)
	}
	return key, nil
}
