package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
)

func openTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	databaseURL := os.Getenv("RGSONS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set RGSONS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	if err := Migrate(ctx, pool, quiet); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, ctx
}

func TestNextVoucherSequenceIsAtomicUnderConcurrency(t *testing.T) {
	s, ctx := openTestStore(t)

	voucherType := fmt.Sprintf("IT_SEQ_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM voucher_sequences WHERE voucher_type = $1`, voucherType)
	})

	const callers = 20
	var wg sync.WaitGroup
	values := make(chan int64, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(tx store.Tx) error {
				v, err := tx.NextVoucherSequence(ctx, domain.SequenceKey{VoucherType: voucherType, ResetKey: "GLOBAL"}, time.Now())
				if err != nil {
					return err
				}
				values <- v
				return nil
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(values)
	close(errs)
	for err := range errs {
		t.Fatalf("next sequence: %v", err)
	}

	seen := make(map[int64]bool, callers)
	for v := range values {
		if seen[v] {
			t.Fatalf("duplicate sequence value %d", v)
		}
		seen[v] = true
	}
	for i := int64(1); i <= callers; i++ {
		if !seen[i] {
			t.Fatalf("missing sequence value %d", i)
		}
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s, ctx := openTestStore(t)

	voucherType := fmt.Sprintf("IT_RB_%d", time.Now().UnixNano())
	number := voucherType + "-0001"
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM voucher_number_logs WHERE voucher_type = $1`, voucherType)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM voucher_sequences WHERE voucher_type = $1`, voucherType)
	})

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.NextVoucherSequence(ctx, domain.SequenceKey{VoucherType: voucherType, ResetKey: "GLOBAL"}, time.Now()); err != nil {
			return err
		}
		if err := tx.CreateVoucherNumberLog(ctx, domain.VoucherNumberLog{VoucherType: voucherType, VoucherNumber: number, GeneratedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetVoucherSequence(ctx, domain.SequenceKey{VoucherType: voucherType, ResetKey: "GLOBAL"})
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected sequence to be rolled back, got %v", err)
	}

	for i := 0; i < 2; i++ {
		err = s.WithinTx(ctx, func(tx store.Tx) error {
			return tx.CreateVoucherNumberLog(ctx, domain.VoucherNumberLog{VoucherType: voucherType, VoucherNumber: number, GeneratedAt: time.Now()})
		})
		if i == 0 && err != nil {
			t.Fatalf("first log insert: %v", err)
		}
	}
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate voucher number to be ErrConflict, got %v", err)
	}
}

func TestLedgerAndReconciliationRoundTrip(t *testing.T) {
	s, ctx := openTestStore(t)

	storeCode := fmt.Sprintf("IT%d", time.Now().UnixNano()%1_000_000_000)
	dsrDate := "2026-01-01"
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM dsr_details WHERE store_code = $1`, storeCode)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM dsr_heads WHERE store_code = $1`, storeCode)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_ledger WHERE store_code = $1`, storeCode)
	})

	key := domain.LedgerKey{StoreCode: storeCode, ItemCode: "ITEM1", SizeCode: "SZ1"}
	var row *domain.InventoryLedger
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.SetInventoryOpening(ctx, domain.InventoryLedger{StoreCode: storeCode, ItemCode: "ITEM1", SizeCode: "SZ1", Opening: 10}); err != nil {
			return err
		}
		if _, err := tx.ApplyInventoryMovement(ctx, domain.LedgerMovement{Key: key, Inward: 4, At: time.Now()}); err != nil {
			return err
		}
		var err error
		row, err = tx.ApplyInventoryMovement(ctx, domain.LedgerMovement{Key: key, Outward: 3, At: time.Now()})
		return err
	})
	if err != nil {
		t.Fatalf("ledger writes: %v", err)
	}
	if row.Opening != 10 || row.Inward != 4 || row.Outward != 3 || row.Closing != 11 {
		t.Fatalf("unexpected ledger row %+v", row)
	}

	detail := domain.DSRDetail{
		ID:        "dsr-it-" + storeCode,
		StoreCode: storeCode,
		DSRDate:   dsrDate,
		ItemCode:  "ITEM1",
		SizeCode:  "SZ1",
		Opening:   row.Closing,
		UpdatedAt: time.Now().UTC(),
	}
	detail.Recompute()

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		created, err := tx.CreateDSRHeadIfAbsent(ctx, domain.DSRHead{StoreCode: storeCode, DSRDate: dsrDate, Status: domain.DSRStatusNew, CreatedAt: time.Now(), UpdatedAt: time.Now()})
		if err != nil || !created {
			return fmt.Errorf("create head: created=%t err=%v", created, err)
		}
		inserted, err := tx.InsertDSRDetailIfAbsent(ctx, detail)
		if err != nil || !inserted {
			return fmt.Errorf("insert detail: inserted=%t err=%v", inserted, err)
		}
		again := detail
		again.ID = "dsr-it-dup-" + storeCode
		inserted, err = tx.InsertDSRDetailIfAbsent(ctx, again)
		if err != nil || inserted {
			return fmt.Errorf("second insert should be a no-op: inserted=%t err=%v", inserted, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("dsr seed: %v", err)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		locked, err := tx.GetDSRDetailByKey(ctx, storeCode, dsrDate, "ITEM1", "SZ1")
		if err != nil {
			return err
		}
		locked.Sale = 2
		locked.Recompute()
		return tx.UpdateDSRDetail(ctx, *locked)
	})
	if err != nil {
		t.Fatalf("dsr update: %v", err)
	}

	var details []domain.DSRDetail
	err = s.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		details, err = tx.ListDSRDetails(ctx, storeCode, dsrDate)
		return err
	})
	if err != nil {
		t.Fatalf("list details: %v", err)
	}
	if len(details) != 1 || details[0].DSRDate != dsrDate || details[0].Closing != 9 {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestLedgerLockTimeoutMapsToConflict(t *testing.T) {
	s, ctx := openTestStore(t)

	storeCode := fmt.Sprintf("LK%d", time.Now().UnixNano()%1_000_000_000)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_ledger WHERE store_code = $1`, storeCode)
	})

	key := domain.LedgerKey{StoreCode: storeCode, ItemCode: "ITEM1", SizeCode: "SZ1"}
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.SetInventoryOpening(ctx, domain.InventoryLedger{StoreCode: storeCode, ItemCode: "ITEM1", SizeCode: "SZ1", Opening: 5})
		return err
	})
	if err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	locked := make(chan struct{})
	release := make(chan struct{})
	holder := make(chan error, 1)
	go func() {
		holder <- s.WithinTx(ctx, func(tx store.Tx) error {
			if _, err := tx.ApplyInventoryMovement(ctx, domain.LedgerMovement{Key: key, Inward: 1, At: time.Now()}); err != nil {
				close(locked)
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.(*pgTx).tx.ExecContext(ctx, `SET LOCAL lock_timeout = '100ms'`); err != nil {
			return err
		}
		_, err := tx.ApplyInventoryMovement(ctx, domain.LedgerMovement{Key: key, Outward: 1, At: time.Now()})
		return err
	})
	close(release)
	if herr := <-holder; herr != nil {
		t.Fatalf("lock holder: %v", herr)
	}
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected lock timeout to map to ErrConflict, got %v", err)
	}

	var closing int64
	if err := s.db.QueryRowContext(ctx, `SELECT closing FROM inventory_ledger WHERE store_code = $1`, storeCode).Scan(&closing); err != nil {
		t.Fatalf("read closing: %v", err)
	}
	if closing != 6 {
		t.Fatalf("expected only the committed inward to apply, closing = %d", closing)
	}
}
