package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for business dates.
const DateLayout = "2006-01-02"

const (
	VoucherTypeSale             = "SALE"
	VoucherTypePurchase         = "PURCHASE"
	VoucherTypeStockTransferOut = "STOCK_TRANSFER_OUT"
	VoucherTypeStockTransferIn  = "STOCK_TRANSFER_IN"
)

const (
	ResetNever   = "NEVER"
	ResetDaily   = "DAILY"
	ResetMonthly = "MONTHLY"
	ResetYearly  = "YEARLY"
)

const (
	ScopeGlobal    = "GLOBAL"
	ScopeStoreWise = "STORE_WISE"
)

const (
	DSRStatusPending   = "PENDING"
	DSRStatusNew       = "NEW"
	DSRStatusSubmitted = "SUBMITTED"
)

const (
	TransferPending  = "PENDING"
	TransferReceived = "RECEIVED"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// VoucherConfig is the numbering policy for one voucher type. Pointer
// fields distinguish "unset" from an explicit zero value.
type VoucherConfig struct {
	VoucherType       string    `json:"voucher_type" validate:"required,max=40"`
	Prefix            string    `json:"prefix" validate:"max=20"`
	IncludeStoreCode  bool      `json:"include_store_code"`
	StoreCodePosition *int      `json:"store_code_position,omitempty"`
	IncludeYear       bool      `json:"include_year"`
	YearFormat        string    `json:"year_format,omitempty"`
	IncludeMonth      bool      `json:"include_month"`
	MonthFormat       string    `json:"month_format,omitempty"`
	IncludeDay        bool      `json:"include_day"`
	DayFormat         string    `json:"day_format,omitempty"`
	Separator         *string   `json:"separator,omitempty" validate:"omitempty,max=3"`
	NumberPadding     *int      `json:"number_padding,omitempty" validate:"omitempty,min=1,max=12"`
	Suffix            string    `json:"suffix" validate:"max=20"`
	ResetFrequency    string    `json:"reset_frequency" validate:"omitempty,oneof=NEVER DAILY MONTHLY YEARLY"`
	NumberingScope    string    `json:"numbering_scope" validate:"omitempty,oneof=GLOBAL STORE_WISE"`
	PricingMethod     string    `json:"pricing_method,omitempty"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SequenceKey identifies one counter. StoreID is nil for GLOBAL scope.
type SequenceKey struct {
	VoucherType string
	StoreID     *string
	ResetKey    string
}

type VoucherSequence struct {
	VoucherType     string    `json:"voucher_type"`
	StoreID         *string   `json:"store_id,omitempty"`
	ResetKey        string    `json:"reset_key"`
	CurrentNumber   int64     `json:"current_number"`
	LastGeneratedAt time.Time `json:"last_generated_at"`
}

type VoucherNumberLog struct {
	ID            string    `json:"id"`
	VoucherType   string    `json:"voucher_type"`
	StoreID       *string   `json:"store_id,omitempty"`
	VoucherNumber string    `json:"voucher_number"`
	GeneratedAt   time.Time `json:"generated_at"`
}

type VoucherRequest struct {
	VoucherType string `json:"voucher_type" validate:"required"`
	StoreCode   string `json:"store_code"`
}

type VoucherResponse struct {
	VoucherType   string `json:"voucher_type"`
	VoucherNumber string `json:"voucher_number"`
}

type VoucherSampleRequest struct {
	Config    VoucherConfig `json:"config"`
	StoreCode string        `json:"store_code"`
}

type Store struct {
	ID        string    `json:"id"`
	StoreCode string    `json:"store_code"`
	StoreName string    `json:"store_name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type StoreUpsertRequest struct {
	StoreCode string `json:"store_code" validate:"required,max=20"`
	StoreName string `json:"store_name" validate:"required,max=120"`
}

type PriceEntry struct {
	ItemCode      string          `json:"item_code" validate:"required"`
	SizeCode      string          `json:"size_code" validate:"required"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	MRP           decimal.Decimal `json:"mrp"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LedgerKey identifies one inventory ledger row.
type LedgerKey struct {
	StoreCode string
	ItemCode  string
	SizeCode  string
}

type InventoryLedger struct {
	StoreCode string    `json:"store_code"`
	ItemCode  string    `json:"item_code"`
	ItemName  string    `json:"item_name,omitempty"`
	SizeCode  string    `json:"size_code"`
	SizeName  string    `json:"size_name,omitempty"`
	Opening   int64     `json:"opening"`
	Inward    int64     `json:"inward"`
	Outward   int64     `json:"outward"`
	Closing   int64     `json:"closing"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerMovement is one inward or outward delta against a ledger key.
type LedgerMovement struct {
	Key      LedgerKey
	ItemName string
	SizeName string
	Inward   int64
	Outward  int64
	At       time.Time
}

type InventoryMovementRequest struct {
	StoreCode string `json:"store_code" validate:"required"`
	ItemCode  string `json:"item_code" validate:"required"`
	SizeCode  string `json:"size_code" validate:"required"`
	Qty       int64  `json:"qty"`
}

type OpeningStockRequest struct {
	StoreCode string `json:"store_code" validate:"required"`
	ItemCode  string `json:"item_code" validate:"required"`
	ItemName  string `json:"item_name"`
	SizeCode  string `json:"size_code" validate:"required"`
	SizeName  string `json:"size_name"`
	Opening   int64  `json:"opening"`
}

type DSRHead struct {
	StoreCode string    `json:"store_code"`
	DSRDate   string    `json:"dsr_date"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"dsr_status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DSRDetail struct {
	ID            string          `json:"id"`
	StoreCode     string          `json:"store_code"`
	DSRDate       string          `json:"dsr_date"`
	ItemCode      string          `json:"item_code"`
	ItemName      string          `json:"item_name,omitempty"`
	SizeCode      string          `json:"size_code"`
	SizeName      string          `json:"size_name,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	MRP           decimal.Decimal `json:"mrp"`
	Opening       int64           `json:"opening"`
	Inward        int64           `json:"inward"`
	Outward       int64           `json:"outward"`
	Sale          int64           `json:"sale"`
	Closing       int64           `json:"closing"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Recompute restores closing = opening + inward - outward - sale.
func (d *DSRDetail) Recompute() {
	d.Closing = d.Opening + d.Inward - d.Outward - d.Sale
}

type DSRSaveRequest struct {
	StoreCode string          `json:"store_code"`
	DSRDate   string          `json:"dsr_date"`
	UserID    string          `json:"user_id"`
	Details   []DSRDetailEdit `json:"details"`
}

// DSRDetailEdit is a partial update; nil quantities are left untouched.
type DSRDetailEdit struct {
	ID       string `json:"id,omitempty"`
	ItemCode string `json:"item_code,omitempty"`
	SizeCode string `json:"size_code,omitempty"`
	Inward   *int64 `json:"inward,omitempty"`
	Outward  *int64 `json:"outward,omitempty"`
	Sale     *int64 `json:"sale,omitempty"`
}

type DSRSeedRequest struct {
	StoreCode string `json:"store_code"`
	DSRDate   string `json:"dsr_date"`
	UserID    string `json:"user_id"`
}

type DSRReport struct {
	Head    *DSRHead    `json:"head,omitempty"`
	Status  string      `json:"dsr_status"`
	Details []DSRDetail `json:"details"`
}

type DocumentLine struct {
	ItemCode string          `json:"item_code" validate:"required"`
	ItemName string          `json:"item_name,omitempty"`
	SizeCode string          `json:"size_code" validate:"required"`
	SizeName string          `json:"size_name,omitempty"`
	Qty      int64           `json:"qty" validate:"gt=0"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

type SaleRequest struct {
	StoreCode   string         `json:"store_code" validate:"required"`
	InvoiceDate string         `json:"invoice_date" validate:"required"`
	PartyCode   string         `json:"party_code"`
	TenderType  string         `json:"tender_type"`
	UserID      string         `json:"user_id"`
	Items       []DocumentLine `json:"items" validate:"required,min=1,dive"`
}

type Sale struct {
	ID          string          `json:"id"`
	InvoiceNo   string          `json:"invoice_no"`
	InvoiceDate string          `json:"invoice_date"`
	StoreCode   string          `json:"store_code"`
	PartyCode   string          `json:"party_code,omitempty"`
	TenderType  string          `json:"tender_type,omitempty"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []DocumentLine  `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
}

type StockTransferOutRequest struct {
	TransferDate string         `json:"transfer_date" validate:"required"`
	FromStore    string         `json:"from_store" validate:"required"`
	ToStore      string         `json:"to_store" validate:"required,nefield=FromStore"`
	UserID       string         `json:"user_id"`
	Narration    string         `json:"narration"`
	Items        []DocumentLine `json:"items" validate:"required,min=1,dive"`
}

type StockTransferOut struct {
	ID             string         `json:"id"`
	STONumber      string         `json:"sto_number"`
	TransferDate   string         `json:"transfer_date"`
	FromStore      string         `json:"from_store"`
	ToStore        string         `json:"to_store"`
	UserID         string         `json:"user_id"`
	Narration      string         `json:"narration,omitempty"`
	ReceivedStatus string         `json:"received_status"`
	ReceivedBy     string         `json:"received_by,omitempty"`
	ReceivedAt     *time.Time     `json:"received_at,omitempty"`
	Items          []DocumentLine `json:"items"`
	CreatedAt      time.Time      `json:"created_at"`
}

type StockTransferInRequest struct {
	TransferDate string         `json:"transfer_date" validate:"required"`
	STONumber    string         `json:"sto_number"`
	FromStore    string         `json:"from_store"`
	ToStore      string         `json:"to_store" validate:"required"`
	UserID       string         `json:"user_id"`
	Narration    string         `json:"narration"`
	Items        []DocumentLine `json:"items" validate:"required,min=1,dive"`
}

type StockTransferIn struct {
	ID           string         `json:"id"`
	STINumber    string         `json:"sti_number"`
	STONumber    string         `json:"sto_number,omitempty"`
	TransferDate string         `json:"transfer_date"`
	FromStore    string         `json:"from_store,omitempty"`
	ToStore      string         `json:"to_store"`
	UserID       string         `json:"user_id"`
	Narration    string         `json:"narration,omitempty"`
	Items        []DocumentLine `json:"items"`
	CreatedAt    time.Time      `json:"created_at"`
}

type PurchaseRequest struct {
	StoreCode    string         `json:"store_code" validate:"required"`
	PurchaseDate string         `json:"purchase_date" validate:"required"`
	PartyCode    string         `json:"party_code"`
	BillNo       string         `json:"bill_no"`
	UserID       string         `json:"user_id"`
	Items        []DocumentLine `json:"items" validate:"required,min=1,dive"`
}

type Purchase struct {
	ID           string          `json:"id"`
	VoucherNo    string          `json:"voucher_no"`
	PurchaseDate string          `json:"purchase_date"`
	StoreCode    string          `json:"store_code"`
	PartyCode    string          `json:"party_code,omitempty"`
	BillNo       string          `json:"bill_no,omitempty"`
	UserID       string          `json:"user_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Items        []DocumentLine  `json:"items"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ClerkCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ClerkUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreCode     string    `json:"store_code"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
