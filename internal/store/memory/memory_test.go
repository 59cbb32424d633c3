package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
)

func TestWithinTxRestoresStateOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := domain.SequenceKey{VoucherType: "SALE", ResetKey: "GLOBAL"}

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.NextVoucherSequence(ctx, key, time.Now()); err != nil {
			return err
		}
		if _, err := tx.ApplyInventoryMovement(ctx, domain.LedgerMovement{Key: domain.LedgerKey{StoreCode: "S01", ItemCode: "I", SizeCode: "Z"}, Inward: 5}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetVoucherSequence(ctx, key); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected sequence to be rolled back, got %v", err)
		}
		rows, err := tx.ListInventoryLedger(ctx, "S01")
		if err != nil {
			return err
		}
		if len(rows) != 0 {
			t.Fatalf("expected ledger to be rolled back, got %+v", rows)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
}

func TestWithinTxRestoresStateOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = s.WithinTx(ctx, func(tx store.Tx) error {
			_, _ = tx.UpsertStore(ctx, domain.Store{StoreCode: "S09", StoreName: "Temp"})
			panic("boom")
		})
	}()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetStoreByCode(ctx, "S09")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store write to be discarded, got %v", err)
	}
}

func TestInsertDSRDetailIfAbsentKeepsFirstRow(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := domain.DSRDetail{ID: "a", StoreCode: "S01", DSRDate: "2026-01-01", ItemCode: "I", SizeCode: "Z", Opening: 4, Closing: 4}
	second := first
	second.ID = "b"
	second.Opening = 99

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if ok, err := tx.InsertDSRDetailIfAbsent(ctx, first); err != nil || !ok {
			t.Fatalf("first insert: ok=%t err=%v", ok, err)
		}
		if ok, err := tx.InsertDSRDetailIfAbsent(ctx, second); err != nil || ok {
			t.Fatalf("second insert should be skipped: ok=%t err=%v", ok, err)
		}
		got, err := tx.GetDSRDetailByKey(ctx, "S01", "2026-01-01", "I", "Z")
		if err != nil {
			return err
		}
		if got.ID != "a" || got.Opening != 4 {
			t.Fatalf("expected first row to win, got %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateUser(ctx, domain.UserAccount{Username: "Clerk2", Password: "hash", Active: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Username: "clerk2", Password: "hash"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "clerk2" || users[0].Role != "clerk" {
		t.Fatalf("unexpected users %+v", users)
	}
}

func TestKeysWithSeparatorCharactersDoNotCollide(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := domain.LedgerKey{StoreCode: "S01", ItemCode: "A|B", SizeCode: "C"}
	second := domain.LedgerKey{StoreCode: "S01", ItemCode: "A", SizeCode: "B|C"}

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.ApplyInventoryMovement(ctx, domain.LedgerMovement{Key: first, Inward: 4}); err != nil {
			return err
		}
		if _, err := tx.ApplyInventoryMovement(ctx, domain.LedgerMovement{Key: second, Inward: 7}); err != nil {
			return err
		}
		inserted, err := tx.InsertDSRDetailIfAbsent(ctx, domain.DSRDetail{ID: "d1", StoreCode: "S01", DSRDate: "2026-03-09", ItemCode: "A|B", SizeCode: "C"})
		if err != nil || !inserted {
			t.Fatalf("first detail insert: inserted=%v err=%v", inserted, err)
		}
		inserted, err = tx.InsertDSRDetailIfAbsent(ctx, domain.DSRDetail{ID: "d2", StoreCode: "S01", DSRDate: "2026-03-09", ItemCode: "A", SizeCode: "B|C"})
		if err != nil || !inserted {
			t.Fatalf("second detail insert: inserted=%v err=%v", inserted, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		rows, err := tx.ListInventoryLedger(ctx, "S01")
		if err != nil {
			return err
		}
		if len(rows) != 2 {
			t.Fatalf("expected two ledger rows, got %+v", rows)
		}
		row, err := tx.GetInventoryLedger(ctx, second)
		if err != nil {
			return err
		}
		if row.Closing != 7 {
			t.Fatalf("expected closing 7 for %+v, got %d", second, row.Closing)
		}
		detail, err := tx.GetDSRDetailByKey(ctx, "S01", "2026-03-09", "A", "B|C")
		if err != nil {
			return err
		}
		if detail.ID != "d2" {
			t.Fatalf("expected detail d2, got %s", detail.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
}
