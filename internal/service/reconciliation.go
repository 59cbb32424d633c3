package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
	"rgsons/backend/internal/xid"
)

// SeedReconciliation makes sure the DSR for storeCode and date has a head
// and one detail row per ledger row. Rows that already exist are left
// alone, so repeated calls never clobber edits.
func (s *Service) SeedReconciliation(ctx context.Context, storeCode string, date string, userID string) error {
	storeCode = strings.TrimSpace(storeCode)
	if storeCode == "" {
		return fmt.Errorf("%w: store_code", ErrMissingRequiredField)
	}
	dsrDate, _, err := parseBusinessDate("dsr_date", date)
	if err != nil {
		return err
	}
	userID = actingUser(ctx, userID)

	release := s.lockReconciliation(ctx, storeCode, dsrDate)
	defer release()

	var inserted int
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		inserted, err = s.seed(ctx, tx, storeCode, dsrDate, userID)
		return err
	})
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"store_code": storeCode,
		"dsr_date":   dsrDate,
		"inserted":   inserted,
	}).Debug("reconciliation seeded")
	return nil
}

// RefreshReconciliation picks up ledger rows that appeared since the last seed.
func (s *Service) RefreshReconciliation(ctx context.Context, storeCode string, date string, userID string) error {
	return s.SeedReconciliation(ctx, storeCode, date, userID)
}

func (s *Service) seed(ctx context.Context, tx store.Tx, storeCode string, dsrDate string, userID string) (int, error) {
	now := s.now().UTC()
	if _, err := tx.CreateDSRHeadIfAbsent(ctx, domain.DSRHead{
		StoreCode: storeCode,
		DSRDate:   dsrDate,
		UserID:    userID,
		Status:    domain.DSRStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return 0, fmt.Errorf("failed to create dsr head: %w", err)
	}

	rows, err := tx.ListInventoryLedger(ctx, storeCode)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, row := range rows {
		detail, err := s.detailFromLedger(ctx, tx, dsrDate, row, now)
		if err != nil {
			return inserted, err
		}
		created, err := tx.InsertDSRDetailIfAbsent(ctx, detail)
		if err != nil {
			return inserted, fmt.Errorf("failed to seed dsr detail %s/%s: %w", row.ItemCode, row.SizeCode, err)
		}
		if created {
			inserted++
		}
	}
	return inserted, nil
}

// SaveReconciliation applies user edits to the DSR and marks it submitted.
// Edits are partial: only quantities present in the request change.
func (s *Service) SaveReconciliation(ctx context.Context, req domain.DSRSaveRequest) error {
	storeCode := strings.TrimSpace(req.StoreCode)
	if storeCode == "" || strings.TrimSpace(req.DSRDate) == "" {
		return fmt.Errorf("%w: store_code and dsr_date are required", ErrMissingRequiredField)
	}
	dsrDate, _, err := parseBusinessDate("dsr_date", req.DSRDate)
	if err != nil {
		return err
	}
	userID := actingUser(ctx, req.UserID)

	applied := 0
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		now := s.now().UTC()
		if _, err := tx.UpsertDSRHead(ctx, domain.DSRHead{
			StoreCode: storeCode,
			DSRDate:   dsrDate,
			UserID:    userID,
			Status:    domain.DSRStatusSubmitted,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to save dsr head: %w", err)
		}

		for _, edit := range req.Details {
			ok, err := s.applyDetailEdit(ctx, tx, storeCode, dsrDate, edit, now)
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, storeCode, "dsr_save", "dsr", storeCode+"/"+dsrDate, fmt.Sprintf("edits=%d,applied=%d,user=%s", len(req.Details), applied, userID))
	return nil
}

func (s *Service) applyDetailEdit(ctx context.Context, tx store.Tx, storeCode string, dsrDate string, edit domain.DSRDetailEdit, now time.Time) (bool, error) {
	itemCode := strings.TrimSpace(edit.ItemCode)
	sizeCode := strings.TrimSpace(edit.SizeCode)

	detail, err := s.locateDetail(ctx, tx, storeCode, dsrDate, strings.TrimSpace(edit.ID), itemCode, sizeCode)
	if err != nil {
		return false, err
	}
	if detail != nil {
		applyEdit(detail, edit)
		detail.UpdatedAt = now
		if err := tx.UpdateDSRDetail(ctx, *detail); err != nil {
			return false, fmt.Errorf("failed to update dsr detail %s: %w", detail.ID, err)
		}
		return true, nil
	}

	if itemCode == "" || sizeCode == "" {
		s.log.WithFields(logrus.Fields{
			"store_code": storeCode,
			"dsr_date":   dsrDate,
			"detail_id":  edit.ID,
		}).Warn("skipping dsr edit without a known row or item/size")
		return false, nil
	}

	row, err := tx.GetInventoryLedger(ctx, domain.LedgerKey{StoreCode: storeCode, ItemCode: itemCode, SizeCode: sizeCode})
	if errors.Is(err, store.ErrNotFound) {
		s.log.WithFields(logrus.Fields{
			"store_code": storeCode,
			"dsr_date":   dsrDate,
			"item_code":  itemCode,
			"size_code":  sizeCode,
		}).Warn("skipping dsr edit for item without a ledger row")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	created, err := s.detailFromLedger(ctx, tx, dsrDate, *row, now)
	if err != nil {
		return false, err
	}
	applyEdit(&created, edit)
	inserted, err := tx.InsertDSRDetailIfAbsent(ctx, created)
	if err != nil {
		return false, fmt.Errorf("failed to create dsr detail %s/%s: %w", itemCode, sizeCode, err)
	}
	if inserted {
		return true, nil
	}

	// A concurrent seed created the row first; edit that one instead.
	existing, err := tx.GetDSRDetailByKey(ctx, storeCode, dsrDate, itemCode, sizeCode)
	if err != nil {
		return false, err
	}
	applyEdit(existing, edit)
	existing.UpdatedAt = now
	if err := tx.UpdateDSRDetail(ctx, *existing); err != nil {
		return false, fmt.Errorf("failed to update dsr detail %s: %w", existing.ID, err)
	}
	return true, nil
}

// locateDetail finds the row by id first and then by item and size. A row
// id belonging to another store or date is treated as unknown.
func (s *Service) locateDetail(ctx context.Context, tx store.Tx, storeCode string, dsrDate string, id string, itemCode string, sizeCode string) (*domain.DSRDetail, error) {
	if id != "" {
		detail, err := tx.GetDSRDetailForUpdate(ctx, id)
		switch {
		case err == nil:
			if detail.StoreCode == storeCode && detail.DSRDate == dsrDate {
				return detail, nil
			}
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	if itemCode == "" || sizeCode == "" {
		return nil, nil
	}
	detail, err := tx.GetDSRDetailByKey(ctx, storeCode, dsrDate, itemCode, sizeCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func applyEdit(detail *domain.DSRDetail, edit domain.DSRDetailEdit) {
	if edit.Inward != nil {
		detail.Inward = *edit.Inward
	}
	if edit.Outward != nil {
		detail.Outward = *edit.Outward
	}
	if edit.Sale != nil {
		detail.Sale = *edit.Sale
	}
	detail.Recompute()
}

// detailFromLedger opens a DSR row at the ledger's current closing and
// snapshots the price master when an entry exists.
func (s *Service) detailFromLedger(ctx context.Context, tx store.Tx, dsrDate string, row domain.InventoryLedger, now time.Time) (domain.DSRDetail, error) {
	detail := domain.DSRDetail{
		ID:            xid.New("dsr"),
		StoreCode:     row.StoreCode,
		DSRDate:       dsrDate,
		ItemCode:      row.ItemCode,
		ItemName:      row.ItemName,
		SizeCode:      row.SizeCode,
		SizeName:      row.SizeName,
		PurchasePrice: decimal.Zero,
		MRP:           decimal.Zero,
		Opening:       row.Closing,
		UpdatedAt:     now,
	}
	detail.Recompute()

	price, err := tx.GetPrice(ctx, row.ItemCode, row.SizeCode)
	switch {
	case err == nil:
		detail.PurchasePrice = price.PurchasePrice
		detail.MRP = price.MRP
	case !errors.Is(err, store.ErrNotFound):
		return domain.DSRDetail{}, err
	}
	return detail, nil
}

func (s *Service) GetReconciliation(ctx context.Context, storeCode string, date string) (domain.DSRReport, error) {
	storeCode = strings.TrimSpace(storeCode)
	if storeCode == "" {
		return domain.DSRReport{}, fmt.Errorf("%w: store_code", ErrMissingRequiredField)
	}
	dsrDate, _, err := parseBusinessDate("dsr_date", date)
	if err != nil {
		return domain.DSRReport{}, err
	}

	report := domain.DSRReport{Status: domain.DSRStatusPending}
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		head, err := tx.GetDSRHead(ctx, storeCode, dsrDate)
		switch {
		case err == nil:
			report.Head = head
			report.Status = head.Status
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		report.Details, err = tx.ListDSRDetails(ctx, storeCode, dsrDate)
		return err
	})
	if err != nil {
		return domain.DSRReport{}, err
	}
	return report, nil
}

// GetReconciliationStatus reports PENDING until a head exists.
func (s *Service) GetReconciliationStatus(ctx context.Context, storeCode string, date string) (string, error) {
	storeCode = strings.TrimSpace(storeCode)
	if storeCode == "" {
		return "", fmt.Errorf("%w: store_code", ErrMissingRequiredField)
	}
	dsrDate, _, err := parseBusinessDate("dsr_date", date)
	if err != nil {
		return "", err
	}

	status := domain.DSRStatusPending
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		head, err := tx.GetDSRHead(ctx, storeCode, dsrDate)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		status = head.Status
		return nil
	})
	return status, err
}

// lockReconciliation serializes seeding of one store/day across backend
// processes. The lock is advisory: seeding stays correct without it, so a
// lock failure is logged and the caller continues.
func (s *Service) lockReconciliation(ctx context.Context, storeCode string, dsrDate string) func() {
	release, err := s.locker.Obtain(ctx, "dsr-seed:"+storeCode+":"+dsrDate, s.seedLockTTL)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"store_code": storeCode,
			"dsr_date":   dsrDate,
		}).WithError(err).Warn("could not obtain dsr seed lock")
		return func() {}
	}
	return release
}
