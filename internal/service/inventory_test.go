package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rgsons/backend/internal/domain"
)

func assertLedgerBalanced(t *testing.T, row domain.InventoryLedger) {
	t.Helper()
	if row.Closing != row.Opening+row.Inward-row.Outward {
		t.Fatalf("ledger out of balance: %+v", row)
	}
}

func TestLedgerInvariantAcrossMovements(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	row, err := svc.ApplyInward(ctx, "S01", "ITEM1", "SZ1", 10)
	if err != nil {
		t.Fatalf("inward: %v", err)
	}
	if row.Opening != 0 || row.Inward != 10 || row.Closing != 10 {
		t.Fatalf("expected new row with opening 0, got %+v", row)
	}
	assertLedgerBalanced(t, row)

	row, err = svc.ApplyOutward(ctx, "S01", "ITEM1", "SZ1", 4)
	if err != nil {
		t.Fatalf("outward: %v", err)
	}
	assertLedgerBalanced(t, row)

	row, err = svc.ApplyOutward(ctx, "S01", "ITEM1", "SZ1", 9)
	if err != nil {
		t.Fatalf("outward past zero: %v", err)
	}
	assertLedgerBalanced(t, row)
	if row.Closing != -3 {
		t.Fatalf("expected closing to go negative, got %d", row.Closing)
	}
}

func TestLedgerRequiresFullKey(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ApplyInward(context.Background(), "S01", "", "SZ1", 1)
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Fatalf("expected ErrMissingRequiredField, got %v", err)
	}
	_, err = svc.ListInventory(context.Background(), " ")
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Fatalf("expected ErrMissingRequiredField for list, got %v", err)
	}
}

func TestSetOpeningStockKeepsRunningTotals(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.ApplyInward(ctx, "S01", "ITEM1", "SZ1", 5); err != nil {
		t.Fatalf("inward: %v", err)
	}
	if _, err := svc.ApplyOutward(ctx, "S01", "ITEM1", "SZ1", 2); err != nil {
		t.Fatalf("outward: %v", err)
	}

	_, err := svc.SetOpeningStock(clerkContext(), domain.OpeningStockRequest{StoreCode: "S01", ItemCode: "ITEM1", SizeCode: "SZ1", Opening: 10})
	if !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected admin check, got %v", err)
	}

	row, err := svc.SetOpeningStock(adminContext(), domain.OpeningStockRequest{StoreCode: "S01", ItemCode: "ITEM1", SizeCode: "SZ1", Opening: 10})
	if err != nil {
		t.Fatalf("set opening: %v", err)
	}
	if row.Opening != 10 || row.Inward != 5 || row.Outward != 2 || row.Closing != 13 {
		t.Fatalf("unexpected row after opening load: %+v", row)
	}

	_, err = svc.SetOpeningStock(adminContext(), domain.OpeningStockRequest{StoreCode: "S99", ItemCode: "ITEM1", SizeCode: "SZ1", Opening: 1})
	if !errors.Is(err, ErrInvalidStore) {
		t.Fatalf("expected ErrInvalidStore, got %v", err)
	}
}

func TestConcurrentMovementsOnOneKey(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	const workers = 40
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := svc.ApplyInward(ctx, "S02", "JEANS01", "32", 2); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.ApplyOutward(ctx, "S02", "JEANS01", "32", 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("movement failed: %v", err)
	}

	rows, err := svc.ListInventory(ctx, "S02")
	if err != nil {
		t.Fatalf("list inventory: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(rows))
	}
	row := rows[0]
	if row.Inward != workers*2 || row.Outward != workers || row.Closing != workers {
		t.Fatalf("lost updates under concurrency: %+v", row)
	}
}
