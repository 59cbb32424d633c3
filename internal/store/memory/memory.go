package memory

import (
	"context"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
	"rgsons/backend/internal/xid"
)

// Store keeps everything in process memory. A single mutex is held for the
// whole of a WithinTx call, and the state is restored from a snapshot when
// the callback fails.
type Store struct {
	mu   sync.Mutex
	data *state
}

type state struct {
	storesByCode   map[string]domain.Store
	configs        map[string]domain.VoucherConfig
	sequences      map[sequenceMapKey]domain.VoucherSequence
	voucherLogs    []domain.VoucherNumberLog
	voucherNumbers map[string]struct{}
	prices         map[priceMapKey]domain.PriceEntry
	ledger         map[domain.LedgerKey]domain.InventoryLedger
	dsrHeads       map[headMapKey]domain.DSRHead
	dsrDetails     map[string]domain.DSRDetail
	dsrDetailIndex map[detailMapKey]string
	sales          []domain.Sale
	purchases      []domain.Purchase
	transfersOut   map[string]domain.StockTransferOut
	transfersIn    []domain.StockTransferIn
	auditLogs      []domain.AuditLog
	users          map[string]domain.UserAccount
}

func newState() *state {
	return &state{
		storesByCode:   make(map[string]domain.Store),
		configs:        make(map[string]domain.VoucherConfig),
		sequences:      make(map[sequenceMapKey]domain.VoucherSequence),
		voucherLogs:    make([]domain.VoucherNumberLog, 0, 64),
		voucherNumbers: make(map[string]struct{}),
		prices:         make(map[priceMapKey]domain.PriceEntry),
		ledger:         make(map[domain.LedgerKey]domain.InventoryLedger),
		dsrHeads:       make(map[headMapKey]domain.DSRHead),
		dsrDetails:     make(map[string]domain.DSRDetail),
		dsrDetailIndex: make(map[detailMapKey]string),
		transfersOut:   make(map[string]domain.StockTransferOut),
		auditLogs:      make([]domain.AuditLog, 0, 64),
		users:          make(map[string]domain.UserAccount),
	}
}

// clone copies every map and slice header. Stored values are never mutated
// in place, so sharing their nested slices is safe.
func (st *state) clone() *state {
	return &state{
		storesByCode:   cloneMap(st.storesByCode),
		configs:        cloneMap(st.configs),
		sequences:      cloneMap(st.sequences),
		voucherLogs:    slices.Clone(st.voucherLogs),
		voucherNumbers: cloneMap(st.voucherNumbers),
		prices:         cloneMap(st.prices),
		ledger:         cloneMap(st.ledger),
		dsrHeads:       cloneMap(st.dsrHeads),
		dsrDetails:     cloneMap(st.dsrDetails),
		dsrDetailIndex: cloneMap(st.dsrDetailIndex),
		sales:          slices.Clone(st.sales),
		purchases:      slices.Clone(st.purchases),
		transfersOut:   cloneMap(st.transfersOut),
		transfersIn:    slices.Clone(st.transfersIn),
		auditLogs:      slices.Clone(st.auditLogs),
		users:          cloneMap(st.users),
	}
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	out := make(map[K]V, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newState()}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD.
func seedUsers(now time.Time) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	clerkPwd := envOr("SEED_CLERK_PASSWORD", "clerk123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CLERK_PASSWORD") == "" {
		logrus.WithField("component", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD to override")
	}

	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"clerk", clerkPwd, "clerk"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("component", "memory-store").Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with two shops, active configs for the four
// document types, a small price list and dev users.
func NewSeeded() *Store {
	now := time.Now().UTC()
	st := newState()

	for _, s := range []domain.Store{
		{ID: "store-1", StoreCode: "S01", StoreName: "RG Sons Main Road", Active: true, CreatedAt: now},
		{ID: "store-2", StoreCode: "S02", StoreName: "RG Sons Market", Active: true, CreatedAt: now},
	} {
		st.storesByCode[s.StoreCode] = s
	}

	position := 1
	padding := 4
	for _, cfg := range []domain.VoucherConfig{
		{VoucherType: domain.VoucherTypePurchase, Prefix: "PUR", ResetFrequency: domain.ResetYearly},
		{VoucherType: domain.VoucherTypeSale, Prefix: "SAL", ResetFrequency: domain.ResetYearly},
		{VoucherType: domain.VoucherTypeStockTransferOut, Prefix: "STO", ResetFrequency: domain.ResetMonthly, IncludeMonth: true},
		{VoucherType: domain.VoucherTypeStockTransferIn, Prefix: "STI", ResetFrequency: domain.ResetMonthly, IncludeMonth: true},
	} {
		cfg.IncludeStoreCode = true
		cfg.StoreCodePosition = &position
		cfg.IncludeYear = true
		cfg.YearFormat = "YYYY"
		cfg.NumberPadding = &padding
		cfg.NumberingScope = domain.ScopeStoreWise
		cfg.IsActive = true
		cfg.CreatedAt = now
		cfg.UpdatedAt = now
		st.configs[cfg.VoucherType] = cfg
	}

	for _, p := range []domain.PriceEntry{
		{ItemCode: "SHIRT01", SizeCode: "M", PurchasePrice: decimal.NewFromInt(450), MRP: decimal.NewFromInt(799)},
		{ItemCode: "SHIRT01", SizeCode: "L", PurchasePrice: decimal.NewFromInt(470), MRP: decimal.NewFromInt(849)},
		{ItemCode: "JEANS01", SizeCode: "32", PurchasePrice: decimal.RequireFromString("899.50"), MRP: decimal.NewFromInt(1499)},
	} {
		p.UpdatedAt = now
		st.prices[priceKey(p.ItemCode, p.SizeCode)] = p
	}

	st.users = seedUsers(now)
	return &Store{data: st}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	committed := false
	defer func() {
		if !committed {
			s.data = snapshot
		}
	}()

	if err := fn(&txView{st: s.data}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "clerk"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.users[user.Username]; exists {
		return store.ErrConflict
	}
	s.data.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]domain.UserAccount, 0, len(s.data.users))
	for _, user := range s.data.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.data.users[username] = user
	return nil
}

// txView operates on state owned by an open WithinTx call and takes no
// locks of its own.
type txView struct {
	st *state
}

func (t *txView) GetStoreByCode(_ context.Context, storeCode string) (*domain.Store, error) {
	found, ok := t.st.storesByCode[strings.TrimSpace(storeCode)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &found, nil
}

func (t *txView) UpsertStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	if st.StoreCode == "" {
		return nil, store.ErrInvalidTransaction
	}
	if existing, ok := t.st.storesByCode[st.StoreCode]; ok {
		st.ID = existing.ID
		st.CreatedAt = existing.CreatedAt
	}
	if st.ID == "" {
		st.ID = xid.New("store")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	t.st.storesByCode[st.StoreCode] = st
	return &st, nil
}

func (t *txView) ListStores(_ context.Context) ([]domain.Store, error) {
	out := make([]domain.Store, 0, len(t.st.storesByCode))
	for _, st := range t.st.storesByCode {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b domain.Store) int {
		return strings.Compare(a.StoreCode, b.StoreCode)
	})
	return out, nil
}

func (t *txView) GetVoucherConfig(_ context.Context, voucherType string) (*domain.VoucherConfig, error) {
	cfg, ok := t.st.configs[voucherType]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &cfg, nil
}

func (t *txView) UpsertVoucherConfig(_ context.Context, cfg domain.VoucherConfig) (*domain.VoucherConfig, error) {
	if cfg.VoucherType == "" {
		return nil, store.ErrInvalidTransaction
	}
	now := time.Now().UTC()
	if existing, ok := t.st.configs[cfg.VoucherType]; ok {
		cfg.CreatedAt = existing.CreatedAt
	} else if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	t.st.configs[cfg.VoucherType] = cfg
	return &cfg, nil
}

func (t *txView) ListVoucherConfigs(_ context.Context) ([]domain.VoucherConfig, error) {
	out := make([]domain.VoucherConfig, 0, len(t.st.configs))
	for _, cfg := range t.st.configs {
		out = append(out, cfg)
	}
	slices.SortFunc(out, func(a, b domain.VoucherConfig) int {
		return strings.Compare(a.VoucherType, b.VoucherType)
	})
	return out, nil
}

func (t *txView) NextVoucherSequence(_ context.Context, key domain.SequenceKey, at time.Time) (int64, error) {
	if key.VoucherType == "" || key.ResetKey == "" {
		return 0, store.ErrInvalidTransaction
	}
	mapKey := sequenceKey(key)
	seq, ok := t.st.sequences[mapKey]
	if !ok {
		seq = domain.VoucherSequence{
			VoucherType: key.VoucherType,
			StoreID:     key.StoreID,
			ResetKey:    key.ResetKey,
		}
	}
	seq.CurrentNumber++
	seq.LastGeneratedAt = at
	t.st.sequences[mapKey] = seq
	return seq.CurrentNumber, nil
}

func (t *txView) GetVoucherSequence(_ context.Context, key domain.SequenceKey) (*domain.VoucherSequence, error) {
	seq, ok := t.st.sequences[sequenceKey(key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &seq, nil
}

func (t *txView) CreateVoucherNumberLog(_ context.Context, entry domain.VoucherNumberLog) error {
	if entry.VoucherNumber == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := t.st.voucherNumbers[entry.VoucherNumber]; exists {
		return store.ErrConflict
	}
	if entry.ID == "" {
		entry.ID = xid.New("vnl")
	}
	t.st.voucherNumbers[entry.VoucherNumber] = struct{}{}
	t.st.voucherLogs = append(t.st.voucherLogs, entry)
	return nil
}

func (t *txView) ListVoucherNumberLogs(_ context.Context, voucherType string, limit int) ([]domain.VoucherNumberLog, error) {
	out := make([]domain.VoucherNumberLog, 0, 32)
	for i := len(t.st.voucherLogs) - 1; i >= 0; i-- {
		entry := t.st.voucherLogs[i]
		if voucherType != "" && entry.VoucherType != voucherType {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (t *txView) MaxNumericVoucherNumber(_ context.Context, voucherType string) (int64, error) {
	numbers := make([]string, 0, 16)
	switch voucherType {
	case domain.VoucherTypeSale:
		for _, sale := range t.st.sales {
			numbers = append(numbers, sale.InvoiceNo)
		}
	case domain.VoucherTypePurchase:
		for _, purchase := range t.st.purchases {
			numbers = append(numbers, purchase.VoucherNo)
		}
	case domain.VoucherTypeStockTransferOut:
		for number := range t.st.transfersOut {
			numbers = append(numbers, number)
		}
	case domain.VoucherTypeStockTransferIn:
		for _, sti := range t.st.transfersIn {
			numbers = append(numbers, sti.STINumber)
		}
	default:
		return 0, store.ErrInvalidTransaction
	}

	var highest int64
	for _, number := range numbers {
		parsed, err := strconv.ParseInt(number, 10, 64)
		if err != nil {
			continue
		}
		highest = max(highest, parsed)
	}
	return highest, nil
}

func (t *txView) GetPrice(_ context.Context, itemCode string, sizeCode string) (*domain.PriceEntry, error) {
	entry, ok := t.st.prices[priceKey(itemCode, sizeCode)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &entry, nil
}

func (t *txView) UpsertPrice(_ context.Context, entry domain.PriceEntry) (*domain.PriceEntry, error) {
	if entry.ItemCode == "" || entry.SizeCode == "" {
		return nil, store.ErrInvalidTransaction
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	t.st.prices[priceKey(entry.ItemCode, entry.SizeCode)] = entry
	return &entry, nil
}

func (t *txView) ApplyInventoryMovement(_ context.Context, movement domain.LedgerMovement) (*domain.InventoryLedger, error) {
	key := movement.Key
	if key.StoreCode == "" || key.ItemCode == "" || key.SizeCode == "" {
		return nil, store.ErrInvalidTransaction
	}
	row, ok := t.st.ledger[key]
	if !ok {
		row = domain.InventoryLedger{
			StoreCode: key.StoreCode,
			ItemCode:  key.ItemCode,
			ItemName:  movement.ItemName,
			SizeCode:  key.SizeCode,
			SizeName:  movement.SizeName,
		}
	}
	row.Inward += movement.Inward
	row.Outward += movement.Outward
	row.Closing = row.Opening + row.Inward - row.Outward
	row.UpdatedAt = movement.At
	t.st.ledger[key] = row
	return &row, nil
}

func (t *txView) SetInventoryOpening(_ context.Context, row domain.InventoryLedger) (*domain.InventoryLedger, error) {
	key := domain.LedgerKey{StoreCode: row.StoreCode, ItemCode: row.ItemCode, SizeCode: row.SizeCode}
	if key.StoreCode == "" || key.ItemCode == "" || key.SizeCode == "" {
		return nil, store.ErrInvalidTransaction
	}
	existing, ok := t.st.ledger[key]
	if ok {
		existing.Opening = row.Opening
		if row.ItemName != "" {
			existing.ItemName = row.ItemName
		}
		if row.SizeName != "" {
			existing.SizeName = row.SizeName
		}
		existing.UpdatedAt = row.UpdatedAt
		row = existing
	}
	row.Closing = row.Opening + row.Inward - row.Outward
	t.st.ledger[key] = row
	return &row, nil
}

func (t *txView) GetInventoryLedger(_ context.Context, key domain.LedgerKey) (*domain.InventoryLedger, error) {
	row, ok := t.st.ledger[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &row, nil
}

func (t *txView) ListInventoryLedger(_ context.Context, storeCode string) ([]domain.InventoryLedger, error) {
	out := make([]domain.InventoryLedger, 0, 32)
	for _, row := range t.st.ledger {
		if row.StoreCode == storeCode {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b domain.InventoryLedger) int {
		if c := strings.Compare(a.ItemCode, b.ItemCode); c != 0 {
			return c
		}
		return strings.Compare(a.SizeCode, b.SizeCode)
	})
	return out, nil
}

func (t *txView) GetDSRHead(_ context.Context, storeCode string, dsrDate string) (*domain.DSRHead, error) {
	head, ok := t.st.dsrHeads[headKey(storeCode, dsrDate)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &head, nil
}

func (t *txView) CreateDSRHeadIfAbsent(_ context.Context, head domain.DSRHead) (bool, error) {
	key := headKey(head.StoreCode, head.DSRDate)
	if _, exists := t.st.dsrHeads[key]; exists {
		return false, nil
	}
	t.st.dsrHeads[key] = head
	return true, nil
}

func (t *txView) UpsertDSRHead(_ context.Context, head domain.DSRHead) (*domain.DSRHead, error) {
	key := headKey(head.StoreCode, head.DSRDate)
	if existing, ok := t.st.dsrHeads[key]; ok {
		head.CreatedAt = existing.CreatedAt
	}
	t.st.dsrHeads[key] = head
	return &head, nil
}

func (t *txView) GetDSRDetailForUpdate(_ context.Context, id string) (*domain.DSRDetail, error) {
	detail, ok := t.st.dsrDetails[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &detail, nil
}

func (t *txView) GetDSRDetailByKey(_ context.Context, storeCode string, dsrDate string, itemCode string, sizeCode string) (*domain.DSRDetail, error) {
	id, ok := t.st.dsrDetailIndex[detailKey(storeCode, dsrDate, itemCode, sizeCode)]
	if !ok {
		return nil, store.ErrNotFound
	}
	detail := t.st.dsrDetails[id]
	return &detail, nil
}

func (t *txView) InsertDSRDetailIfAbsent(_ context.Context, detail domain.DSRDetail) (bool, error) {
	key := detailKey(detail.StoreCode, detail.DSRDate, detail.ItemCode, detail.SizeCode)
	if _, exists := t.st.dsrDetailIndex[key]; exists {
		return false, nil
	}
	if detail.ID == "" {
		detail.ID = xid.New("dsr")
	}
	t.st.dsrDetails[detail.ID] = detail
	t.st.dsrDetailIndex[key] = detail.ID
	return true, nil
}

func (t *txView) UpdateDSRDetail(_ context.Context, detail domain.DSRDetail) error {
	existing, ok := t.st.dsrDetails[detail.ID]
	if !ok {
		return store.ErrNotFound
	}
	// The key columns are immutable.
	detail.StoreCode = existing.StoreCode
	detail.DSRDate = existing.DSRDate
	detail.ItemCode = existing.ItemCode
	detail.SizeCode = existing.SizeCode
	t.st.dsrDetails[detail.ID] = detail
	return nil
}

func (t *txView) ListDSRDetails(_ context.Context, storeCode string, dsrDate string) ([]domain.DSRDetail, error) {
	out := make([]domain.DSRDetail, 0, 32)
	for _, detail := range t.st.dsrDetails {
		if detail.StoreCode == storeCode && detail.DSRDate == dsrDate {
			out = append(out, detail)
		}
	}
	slices.SortFunc(out, func(a, b domain.DSRDetail) int {
		if c := strings.Compare(a.ItemCode, b.ItemCode); c != 0 {
			return c
		}
		return strings.Compare(a.SizeCode, b.SizeCode)
	})
	return out, nil
}

func (t *txView) CreateSale(_ context.Context, sale domain.Sale) error {
	for _, existing := range t.st.sales {
		if existing.InvoiceNo == sale.InvoiceNo {
			return store.ErrConflict
		}
	}
	sale.Items = slices.Clone(sale.Items)
	t.st.sales = append(t.st.sales, sale)
	return nil
}

func (t *txView) CreatePurchase(_ context.Context, purchase domain.Purchase) error {
	for _, existing := range t.st.purchases {
		if existing.VoucherNo == purchase.VoucherNo {
			return store.ErrConflict
		}
	}
	purchase.Items = slices.Clone(purchase.Items)
	t.st.purchases = append(t.st.purchases, purchase)
	return nil
}

func (t *txView) CreateStockTransferOut(_ context.Context, sto domain.StockTransferOut) error {
	if _, exists := t.st.transfersOut[sto.STONumber]; exists {
		return store.ErrConflict
	}
	sto.Items = slices.Clone(sto.Items)
	t.st.transfersOut[sto.STONumber] = sto
	return nil
}

func (t *txView) ReceiveStockTransferOut(_ context.Context, stoNumber string, receivedBy string, at time.Time) (*domain.StockTransferOut, error) {
	sto, ok := t.st.transfersOut[stoNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sto.ReceivedStatus == domain.TransferReceived {
		return nil, store.ErrInvalidTransaction
	}
	sto.ReceivedStatus = domain.TransferReceived
	sto.ReceivedBy = receivedBy
	receivedAt := at
	sto.ReceivedAt = &receivedAt
	t.st.transfersOut[stoNumber] = sto
	return &sto, nil
}

func (t *txView) ListPendingTransfers(_ context.Context, toStore string, limit int) ([]domain.StockTransferOut, error) {
	out := make([]domain.StockTransferOut, 0, 16)
	for _, sto := range t.st.transfersOut {
		if sto.ReceivedStatus != domain.TransferPending {
			continue
		}
		if toStore != "" && sto.ToStore != toStore {
			continue
		}
		out = append(out, sto)
	}
	slices.SortFunc(out, func(a, b domain.StockTransferOut) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *txView) CreateStockTransferIn(_ context.Context, sti domain.StockTransferIn) error {
	for _, existing := range t.st.transfersIn {
		if existing.STINumber == sti.STINumber {
			return store.ErrConflict
		}
	}
	sti.Items = slices.Clone(sti.Items)
	t.st.transfersIn = append(t.st.transfersIn, sti)
	return nil
}

func (t *txView) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	t.st.auditLogs = append(t.st.auditLogs, entry)
	return nil
}

func (t *txView) ListAuditLogs(_ context.Context, storeCode string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	out := make([]domain.AuditLog, 0, 32)
	for i := len(t.st.auditLogs) - 1; i >= 0; i-- {
		entry := t.st.auditLogs[i]
		if storeCode != "" && entry.StoreCode != storeCode {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Map keys are structs so codes containing any separator cannot collide.
type (
	sequenceMapKey struct{ voucherType, storeID, resetKey string }
	priceMapKey    struct{ itemCode, sizeCode string }
	headMapKey     struct{ storeCode, dsrDate string }
	detailMapKey   struct{ storeCode, dsrDate, itemCode, sizeCode string }
)

func sequenceKey(key domain.SequenceKey) sequenceMapKey {
	storeID := ""
	if key.StoreID != nil {
		storeID = *key.StoreID
	}
	return sequenceMapKey{voucherType: key.VoucherType, storeID: storeID, resetKey: key.ResetKey}
}

func priceKey(itemCode string, sizeCode string) priceMapKey {
	return priceMapKey{itemCode: itemCode, sizeCode: sizeCode}
}

func headKey(storeCode string, dsrDate string) headMapKey {
	return headMapKey{storeCode: storeCode, dsrDate: dsrDate}
}

func detailKey(storeCode string, dsrDate string, itemCode string, sizeCode string) detailMapKey {
	return detailMapKey{storeCode: storeCode, dsrDate: dsrDate, itemCode: itemCode, sizeCode: sizeCode}
}
