package store

import (
	"context"
	"errors"
	"time"

	"rgsons/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// Repository is the persistence port. Every multi-step write goes through
// WithinTx so that a failure rolls back all of its steps together.
type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Tx is the set of keyed reads and writes available inside a transaction.
type Tx interface {
	GetStoreByCode(ctx context.Context, storeCode string) (*domain.Store, error)
	UpsertStore(ctx context.Context, st domain.Store) (*domain.Store, error)
	ListStores(ctx context.Context) ([]domain.Store, error)

	GetVoucherConfig(ctx context.Context, voucherType string) (*domain.VoucherConfig, error)
	UpsertVoucherConfig(ctx context.Context, cfg domain.VoucherConfig) (*domain.VoucherConfig, error)
	ListVoucherConfigs(ctx context.Context) ([]domain.VoucherConfig, error)
	// NextVoucherSequence creates the counter at zero when missing, adds one
	// and returns the new value as a single atomic step.
	NextVoucherSequence(ctx context.Context, key domain.SequenceKey, at time.Time) (int64, error)
	GetVoucherSequence(ctx context.Context, key domain.SequenceKey) (*domain.VoucherSequence, error)
	// CreateVoucherNumberLog returns ErrConflict when the number already exists.
	CreateVoucherNumberLog(ctx context.Context, entry domain.VoucherNumberLog) error
	ListVoucherNumberLogs(ctx context.Context, voucherType string, limit int) ([]domain.VoucherNumberLog, error)
	MaxNumericVoucherNumber(ctx context.Context, voucherType string) (int64, error)

	GetPrice(ctx context.Context, itemCode string, sizeCode string) (*domain.PriceEntry, error)
	UpsertPrice(ctx context.Context, entry domain.PriceEntry) (*domain.PriceEntry, error)

	// ApplyInventoryMovement adds the movement deltas to the ledger row,
	// creating it with opening zero when missing, and recomputes closing.
	ApplyInventoryMovement(ctx context.Context, movement domain.LedgerMovement) (*domain.InventoryLedger, error)
	SetInventoryOpening(ctx context.Context, row domain.InventoryLedger) (*domain.InventoryLedger, error)
	GetInventoryLedger(ctx context.Context, key domain.LedgerKey) (*domain.InventoryLedger, error)
	ListInventoryLedger(ctx context.Context, storeCode string) ([]domain.InventoryLedger, error)

	GetDSRHead(ctx context.Context, storeCode string, dsrDate string) (*domain.DSRHead, error)
	// CreateDSRHeadIfAbsent reports whether a new head was written.
	CreateDSRHeadIfAbsent(ctx context.Context, head domain.DSRHead) (bool, error)
	UpsertDSRHead(ctx context.Context, head domain.DSRHead) (*domain.DSRHead, error)
	// GetDSRDetailForUpdate locks the row until the transaction ends.
	GetDSRDetailForUpdate(ctx context.Context, id string) (*domain.DSRDetail, error)
	// GetDSRDetailByKey locks the row like GetDSRDetailForUpdate.
	GetDSRDetailByKey(ctx context.Context, storeCode string, dsrDate string, itemCode string, sizeCode string) (*domain.DSRDetail, error)
	// InsertDSRDetailIfAbsent never overwrites an existing row for the key.
	InsertDSRDetailIfAbsent(ctx context.Context, detail domain.DSRDetail) (bool, error)
	UpdateDSRDetail(ctx context.Context, detail domain.DSRDetail) error
	ListDSRDetails(ctx context.Context, storeCode string, dsrDate string) ([]domain.DSRDetail, error)

	CreateSale(ctx context.Context, sale domain.Sale) error
	CreatePurchase(ctx context.Context, purchase domain.Purchase) error
	CreateStockTransferOut(ctx context.Context, sto domain.StockTransferOut) error
	ReceiveStockTransferOut(ctx context.Context, stoNumber string, receivedBy string, at time.Time) (*domain.StockTransferOut, error)
	ListPendingTransfers(ctx context.Context, toStore string, limit int) ([]domain.StockTransferOut, error)
	CreateStockTransferIn(ctx context.Context, sti domain.StockTransferIn) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeCode string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
