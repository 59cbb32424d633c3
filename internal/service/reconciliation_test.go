package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
)

func loadOpening(t *testing.T, svc *Service, storeCode string, itemCode string, sizeCode string, opening int64) {
	t.Helper()
	_, err := svc.SetOpeningStock(adminContext(), domain.OpeningStockRequest{
		StoreCode: storeCode,
		ItemCode:  itemCode,
		SizeCode:  sizeCode,
		Opening:   opening,
	})
	if err != nil {
		t.Fatalf("load opening %s/%s/%s: %v", storeCode, itemCode, sizeCode, err)
	}
}

func findDetail(t *testing.T, report domain.DSRReport, itemCode string, sizeCode string) domain.DSRDetail {
	t.Helper()
	for _, detail := range report.Details {
		if detail.ItemCode == itemCode && detail.SizeCode == sizeCode {
			return detail
		}
	}
	t.Fatalf("no dsr detail for %s/%s in %+v", itemCode, sizeCode, report.Details)
	return domain.DSRDetail{}
}

func TestSaleThenSeedOpensAtLedgerClosing(t *testing.T) {
	svc, _ := newTestService()
	ctx := clerkContext()
	loadOpening(t, svc, "S01", "ITEM1", "SZ1", 10)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		StoreCode:   "S01",
		InvoiceDate: "2026-01-01",
		Items:       []domain.DocumentLine{{ItemCode: "ITEM1", SizeCode: "SZ1", Qty: 3}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.InvoiceNo != "SAL-S01-2026-0001" {
		t.Fatalf("unexpected invoice number %s", sale.InvoiceNo)
	}

	rows, err := svc.ListInventory(ctx, "S01")
	if err != nil {
		t.Fatalf("list inventory: %v", err)
	}
	if len(rows) != 1 || rows[0].Outward != 3 || rows[0].Closing != 7 {
		t.Fatalf("expected outward 3 and closing 7, got %+v", rows)
	}

	if err := svc.SeedReconciliation(ctx, "S01", "2026-01-01", "u1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	report, err := svc.GetReconciliation(ctx, "S01", "2026-01-01")
	if err != nil {
		t.Fatalf("get reconciliation: %v", err)
	}
	detail := findDetail(t, report, "ITEM1", "SZ1")
	if detail.Opening != 7 || detail.Closing != 7 || detail.Sale != 0 {
		t.Fatalf("expected opening 7 closing 7, got %+v", detail)
	}
	if report.Head == nil || report.Head.UserID != "u1" || report.Status != domain.DSRStatusNew {
		t.Fatalf("unexpected head %+v status %s", report.Head, report.Status)
	}
}

func TestSeedIsIdempotentAndKeepsEdits(t *testing.T) {
	svc, _ := newTestService()
	ctx := clerkContext()
	loadOpening(t, svc, "S01", "SHIRT01", "M", 10)
	loadOpening(t, svc, "S01", "SHIRT01", "L", 4)

	for i := 0; i < 2; i++ {
		if err := svc.SeedReconciliation(ctx, "S01", "2026-03-09", ""); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	report, err := svc.GetReconciliation(ctx, "S01", "2026-03-09")
	if err != nil {
		t.Fatalf("get reconciliation: %v", err)
	}
	if len(report.Details) != 2 {
		t.Fatalf("expected two details after repeated seed, got %d", len(report.Details))
	}
	medium := findDetail(t, report, "SHIRT01", "M")
	if !medium.MRP.Equal(decimal.NewFromInt(799)) || !medium.PurchasePrice.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("expected price snapshot, got purchase=%s mrp=%s", medium.PurchasePrice, medium.MRP)
	}

	err = svc.SaveReconciliation(ctx, domain.DSRSaveRequest{
		StoreCode: "S01",
		DSRDate:   "2026-03-09",
		Details:   []domain.DSRDetailEdit{{ID: medium.ID, Sale: int64Ptr(3)}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := svc.ApplyInward(ctx, "S01", "SHIRT01", "M", 50); err != nil {
		t.Fatalf("inward: %v", err)
	}
	if err := svc.RefreshReconciliation(ctx, "S01", "2026-03-09", ""); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	report, err = svc.GetReconciliation(ctx, "S01", "2026-03-09")
	if err != nil {
		t.Fatalf("get reconciliation: %v", err)
	}
	medium = findDetail(t, report, "SHIRT01", "M")
	if medium.Opening != 10 || medium.Sale != 3 || medium.Closing != 7 {
		t.Fatalf("expected reseed to leave the edited row alone, got %+v", medium)
	}
	if report.Status != domain.DSRStatusSubmitted {
		t.Fatalf("expected reseed to keep SUBMITTED status, got %s", report.Status)
	}
}

func TestSaveReconciliationAppliesPartialEdits(t *testing.T) {
	svc, _ := newTestService()
	ctx := clerkContext()
	loadOpening(t, svc, "S01", "SHIRT01", "M", 10)
	if err := svc.SeedReconciliation(ctx, "S01", "2026-03-09", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	save := func(edit domain.DSRDetailEdit) domain.DSRDetail {
		t.Helper()
		err := svc.SaveReconciliation(ctx, domain.DSRSaveRequest{
			StoreCode: "S01",
			DSRDate:   "2026-03-09",
			UserID:    "u7",
			Details:   []domain.DSRDetailEdit{edit},
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		report, err := svc.GetReconciliation(ctx, "S01", "2026-03-09")
		if err != nil {
			t.Fatalf("get reconciliation: %v", err)
		}
		return findDetail(t, report, "SHIRT01", "M")
	}

	detail := save(domain.DSRDetailEdit{ItemCode: "SHIRT01", SizeCode: "M", Sale: int64Ptr(3)})
	if detail.Sale != 3 || detail.Closing != 7 {
		t.Fatalf("expected sale 3 closing 7, got %+v", detail)
	}

	detail = save(domain.DSRDetailEdit{ID: detail.ID, Inward: int64Ptr(5)})
	if detail.Sale != 3 || detail.Inward != 5 || detail.Closing != 12 {
		t.Fatalf("expected sale to be kept and closing 12, got %+v", detail)
	}

	status, err := svc.GetReconciliationStatus(ctx, "S01", "2026-03-09")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.DSRStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", status)
	}
}

func TestSaveReconciliationCreatesMissingRowFromLedger(t *testing.T) {
	svc, _ := newTestService()
	ctx := clerkContext()
	loadOpening(t, svc, "S01", "JEANS01", "32", 4)

	err := svc.SaveReconciliation(ctx, domain.DSRSaveRequest{
		StoreCode: "S01",
		DSRDate:   "2026-03-09",
		Details: []domain.DSRDetailEdit{
			{ItemCode: "JEANS01", SizeCode: "32", Outward: int64Ptr(1)},
			{ItemCode: "GHOST", SizeCode: "XL", Sale: int64Ptr(2)},
		},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	report, err := svc.GetReconciliation(ctx, "S01", "2026-03-09")
	if err != nil {
		t.Fatalf("get reconciliation: %v", err)
	}
	if len(report.Details) != 1 {
		t.Fatalf("expected only the ledger-backed row, got %+v", report.Details)
	}
	detail := report.Details[0]
	if detail.Opening != 4 || detail.Outward != 1 || detail.Closing != 3 {
		t.Fatalf("unexpected created row %+v", detail)
	}
	if !detail.PurchasePrice.Equal(decimal.RequireFromString("899.50")) {
		t.Fatalf("expected price snapshot 899.50, got %s", detail.PurchasePrice)
	}
}

func TestSaveReconciliationIgnoresRowFromAnotherStore(t *testing.T) {
	svc, _ := newTestService()
	ctx := clerkContext()
	loadOpening(t, svc, "S01", "SHIRT01", "M", 10)
	if err := svc.SeedReconciliation(ctx, "S01", "2026-03-09", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	report, _ := svc.GetReconciliation(ctx, "S01", "2026-03-09")
	foreign := findDetail(t, report, "SHIRT01", "M")

	err := svc.SaveReconciliation(ctx, domain.DSRSaveRequest{
		StoreCode: "S02",
		DSRDate:   "2026-03-09",
		Details:   []domain.DSRDetailEdit{{ID: foreign.ID, Sale: int64Ptr(9)}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	report, _ = svc.GetReconciliation(ctx, "S01", "2026-03-09")
	if detail := findDetail(t, report, "SHIRT01", "M"); detail.Sale != 0 || detail.Closing != 10 {
		t.Fatalf("expected S01 row untouched, got %+v", detail)
	}
}

func TestSaveReconciliationFallsBackToItemSizeForStaleID(t *testing.T) {
	svc, _ := newTestService()
	ctx := clerkContext()
	loadOpening(t, svc, "S01", "SHIRT01", "M", 10)
	if err := svc.SeedReconciliation(ctx, "S01", "2026-03-09", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := svc.SaveReconciliation(ctx, domain.DSRSaveRequest{
		StoreCode: "S01",
		DSRDate:   "2026-03-09",
		Details:   []domain.DSRDetailEdit{{ID: "dsr-gone", ItemCode: "SHIRT01", SizeCode: "M", Sale: int64Ptr(2)}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	report, err := svc.GetReconciliation(ctx, "S01", "2026-03-09")
	if err != nil {
		t.Fatalf("get reconciliation: %v", err)
	}
	if len(report.Details) != 1 {
		t.Fatalf("expected the seeded row to be edited in place, got %+v", report.Details)
	}
	if detail := report.Details[0]; detail.Sale != 2 || detail.Closing != 8 {
		t.Fatalf("expected sale 2 closing 8, got %+v", detail)
	}
}

func TestReconciliationStatusDefaultsToPending(t *testing.T) {
	svc, _ := newTestService()

	status, err := svc.GetReconciliationStatus(context.Background(), "S01", "2026-03-09")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.DSRStatusPending {
		t.Fatalf("expected PENDING, got %s", status)
	}

	report, err := svc.GetReconciliation(context.Background(), "S01", "2026-03-09")
	if err != nil {
		t.Fatalf("get reconciliation: %v", err)
	}
	if report.Head != nil || report.Status != domain.DSRStatusPending || len(report.Details) != 0 {
		t.Fatalf("expected empty pending report, got %+v", report)
	}
}

func TestReconciliationRejectsMissingFields(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	err := svc.SaveReconciliation(ctx, domain.DSRSaveRequest{DSRDate: "2026-03-09"})
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Fatalf("expected ErrMissingRequiredField for store, got %v", err)
	}
	err = svc.SaveReconciliation(ctx, domain.DSRSaveRequest{StoreCode: "S01"})
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Fatalf("expected ErrMissingRequiredField for date, got %v", err)
	}
	err = svc.SeedReconciliation(ctx, "S01", "09/03/2026", "")
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected bad date to be rejected, got %v", err)
	}
}
