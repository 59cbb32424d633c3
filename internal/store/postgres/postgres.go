package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
	"rgsons/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a READ COMMITTED transaction. Counters and ledger
// rows are changed with single-statement upserts and DSR rows are locked
// with FOR UPDATE, so the weaker isolation level is enough.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return conflict(err)
	}
	return conflict(sqlTx.Commit())
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (t *pgTx) GetStoreByCode(ctx context.Context, storeCode string) (*domain.Store, error) {
	var st domain.Store
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, store_code, store_name, active, created_at
		FROM stores
		WHERE store_code = $1
	`, strings.TrimSpace(storeCode)).Scan(&st.ID, &st.StoreCode, &st.StoreName, &st.Active, &st.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return &st, nil
}

func (t *pgTx) UpsertStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.StoreCode == "" {
		return nil, store.ErrInvalidTransaction
	}
	if st.ID == "" {
		st.ID = xid.New("store")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}

	var saved domain.Store
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO stores (id, store_code, store_name, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (store_code)
		DO UPDATE SET store_name = EXCLUDED.store_name, active = EXCLUDED.active
		RETURNING id, store_code, store_name, active, created_at
	`, st.ID, st.StoreCode, st.StoreName, st.Active, st.CreatedAt).Scan(&saved.ID, &saved.StoreCode, &saved.StoreName, &saved.Active, &saved.CreatedAt)
	if err != nil {
		return nil, err
	}
	saved.CreatedAt = saved.CreatedAt.UTC()
	return &saved, nil
}

func (t *pgTx) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, store_code, store_name, active, created_at
		FROM stores
		ORDER BY store_code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 16)
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.ID, &st.StoreCode, &st.StoreName, &st.Active, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.CreatedAt = st.CreatedAt.UTC()
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

const voucherConfigColumns = `
	voucher_type, prefix, include_store_code, store_code_position,
	include_year, year_format, include_month, month_format,
	include_day, day_format, separator, number_padding, suffix,
	reset_frequency, numbering_scope, pricing_method, is_active,
	created_at, updated_at`

func scanVoucherConfig(row rowScanner) (*domain.VoucherConfig, error) {
	var cfg domain.VoucherConfig
	var position sql.NullInt64
	var separator sql.NullString
	var padding sql.NullInt64
	if err := row.Scan(
		&cfg.VoucherType,
		&cfg.Prefix,
		&cfg.IncludeStoreCode,
		&position,
		&cfg.IncludeYear,
		&cfg.YearFormat,
		&cfg.IncludeMonth,
		&cfg.MonthFormat,
		&cfg.IncludeDay,
		&cfg.DayFormat,
		&separator,
		&padding,
		&cfg.Suffix,
		&cfg.ResetFrequency,
		&cfg.NumberingScope,
		&cfg.PricingMethod,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if position.Valid {
		v := int(position.Int64)
		cfg.StoreCodePosition = &v
	}
	if separator.Valid {
		v := separator.String
		cfg.Separator = &v
	}
	if padding.Valid {
		v := int(padding.Int64)
		cfg.NumberPadding = &v
	}
	cfg.CreatedAt = cfg.CreatedAt.UTC()
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

func (t *pgTx) GetVoucherConfig(ctx context.Context, voucherType string) (*domain.VoucherConfig, error) {
	cfg, err := scanVoucherConfig(t.tx.QueryRowContext(ctx, `
		SELECT `+voucherConfigColumns+`
		FROM voucher_configs
		WHERE voucher_type = $1
	`, voucherType))
	if err != nil {
		return nil, notFound(err)
	}
	return cfg, nil
}

func (t *pgTx) UpsertVoucherConfig(ctx context.Context, cfg domain.VoucherConfig) (*domain.VoucherConfig, error) {
	if cfg.VoucherType == "" {
		return nil, store.ErrInvalidTransaction
	}
	return scanVoucherConfig(t.tx.QueryRowContext(ctx, `
		INSERT INTO voucher_configs (
			voucher_type, prefix, include_store_code, store_code_position,
			include_year, year_format, include_month, month_format,
			include_day, day_format, separator, number_padding, suffix,
			reset_frequency, numbering_scope, pricing_method, is_active,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now(),now())
		ON CONFLICT (voucher_type)
		DO UPDATE SET
			prefix = EXCLUDED.prefix,
			include_store_code = EXCLUDED.include_store_code,
			store_code_position = EXCLUDED.store_code_position,
			include_year = EXCLUDED.include_year,
			year_format = EXCLUDED.year_format,
			include_month = EXCLUDED.include_month,
			month_format = EXCLUDED.month_format,
			include_day = EXCLUDED.include_day,
			day_format = EXCLUDED.day_format,
			separator = EXCLUDED.separator,
			number_padding = EXCLUDED.number_padding,
			suffix = EXCLUDED.suffix,
			reset_frequency = EXCLUDED.reset_frequency,
			numbering_scope = EXCLUDED.numbering_scope,
			pricing_method = EXCLUDED.pricing_method,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING `+voucherConfigColumns,
		cfg.VoucherType, cfg.Prefix, cfg.IncludeStoreCode, nullInt(cfg.StoreCodePosition),
		cfg.IncludeYear, cfg.YearFormat, cfg.IncludeMonth, cfg.MonthFormat,
		cfg.IncludeDay, cfg.DayFormat, nullString(cfg.Separator), nullInt(cfg.NumberPadding), cfg.Suffix,
		cfg.ResetFrequency, cfg.NumberingScope, cfg.PricingMethod, cfg.IsActive,
	))
}

func (t *pgTx) ListVoucherConfigs(ctx context.Context) ([]domain.VoucherConfig, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+voucherConfigColumns+`
		FROM voucher_configs
		ORDER BY voucher_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]domain.VoucherConfig, 0, 8)
	for rows.Next() {
		cfg, err := scanVoucherConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return configs, nil
}

// NextVoucherSequence is one upsert. Concurrent callers on the same key
// serialize on the row lock taken by ON CONFLICT DO UPDATE.
func (t *pgTx) NextVoucherSequence(ctx context.Context, key domain.SequenceKey, at time.Time) (int64, error) {
	if key.VoucherType == "" || key.ResetKey == "" {
		return 0, store.ErrInvalidTransaction
	}
	var current int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO voucher_sequences (voucher_type, store_id, reset_key, current_number, last_generated_at)
		VALUES ($1,$2,$3,1,$4)
		ON CONFLICT (voucher_type, (COALESCE(store_id, '')), reset_key)
		DO UPDATE SET
			current_number = voucher_sequences.current_number + 1,
			last_generated_at = EXCLUDED.last_generated_at
		RETURNING current_number
	`, key.VoucherType, nullString(key.StoreID), key.ResetKey, at.UTC()).Scan(&current)
	if err != nil {
		return 0, conflict(err)
	}
	return current, nil
}

func (t *pgTx) GetVoucherSequence(ctx context.Context, key domain.SequenceKey) (*domain.VoucherSequence, error) {
	storeID := ""
	if key.StoreID != nil {
		storeID = *key.StoreID
	}

	var seq domain.VoucherSequence
	var scannedStore sql.NullString
	err := t.tx.QueryRowContext(ctx, `
		SELECT voucher_type, store_id, reset_key, current_number, last_generated_at
		FROM voucher_sequences
		WHERE voucher_type = $1 AND COALESCE(store_id, '') = $2 AND reset_key = $3
	`, key.VoucherType, storeID, key.ResetKey).Scan(&seq.VoucherType, &scannedStore, &seq.ResetKey, &seq.CurrentNumber, &seq.LastGeneratedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if scannedStore.Valid {
		v := scannedStore.String
		seq.StoreID = &v
	}
	seq.LastGeneratedAt = seq.LastGeneratedAt.UTC()
	return &seq, nil
}

func (t *pgTx) CreateVoucherNumberLog(ctx context.Context, entry domain.VoucherNumberLog) error {
	if entry.VoucherNumber == "" {
		return store.ErrInvalidTransaction
	}
	if entry.ID == "" {
		entry.ID = xid.New("vnl")
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO voucher_number_logs (id, voucher_type, store_id, voucher_number, generated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.ID, entry.VoucherType, nullString(entry.StoreID), entry.VoucherNumber, entry.GeneratedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (t *pgTx) ListVoucherNumberLogs(ctx context.Context, voucherType string, limit int) ([]domain.VoucherNumberLog, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, voucher_type, store_id, voucher_number, generated_at
		FROM voucher_number_logs
		WHERE ($1 = '' OR voucher_type = $1)
		ORDER BY generated_at DESC, id DESC
		LIMIT $2
	`, voucherType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.VoucherNumberLog, 0, limit)
	for rows.Next() {
		var entry domain.VoucherNumberLog
		var storeID sql.NullString
		if err := rows.Scan(&entry.ID, &entry.VoucherType, &storeID, &entry.VoucherNumber, &entry.GeneratedAt); err != nil {
			return nil, err
		}
		if storeID.Valid {
			v := storeID.String
			entry.StoreID = &v
		}
		entry.GeneratedAt = entry.GeneratedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// documentNumberColumns maps a voucher type to the table and column that
// hold its issued numbers.
var documentNumberColumns = map[string][2]string{
	domain.VoucherTypeSale:             {"sales", "invoice_no"},
	domain.VoucherTypePurchase:         {"purchases", "voucher_no"},
	domain.VoucherTypeStockTransferOut: {"stock_transfers_out", "sto_number"},
	domain.VoucherTypeStockTransferIn:  {"stock_transfers_in", "sti_number"},
}

func (t *pgTx) MaxNumericVoucherNumber(ctx context.Context, voucherType string) (int64, error) {
	target, ok := documentNumberColumns[voucherType]
	if !ok {
		return 0, store.ErrInvalidTransaction
	}
	table, column := target[0], target[1]

	var highest int64
	err := t.tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(MAX(%[2]s::bigint), 0)
		FROM %[1]s
		WHERE %[2]s ~ '^[0-9]+$' AND length(%[2]s) <= 18
	`, table, column)).Scan(&highest)
	if err != nil {
		return 0, err
	}
	return highest, nil
}

func (t *pgTx) GetPrice(ctx context.Context, itemCode string, sizeCode string) (*domain.PriceEntry, error) {
	var entry domain.PriceEntry
	err := t.tx.QueryRowContext(ctx, `
		SELECT item_code, size_code, purchase_price, mrp, updated_at
		FROM price_master
		WHERE item_code = $1 AND size_code = $2
	`, itemCode, sizeCode).Scan(&entry.ItemCode, &entry.SizeCode, &entry.PurchasePrice, &entry.MRP, &entry.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return &entry, nil
}

func (t *pgTx) UpsertPrice(ctx context.Context, entry domain.PriceEntry) (*domain.PriceEntry, error) {
	if entry.ItemCode == "" || entry.SizeCode == "" {
		return nil, store.ErrInvalidTransaction
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO price_master (item_code, size_code, purchase_price, mrp, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (item_code, size_code)
		DO UPDATE SET purchase_price = EXCLUDED.purchase_price, mrp = EXCLUDED.mrp, updated_at = EXCLUDED.updated_at
	`, entry.ItemCode, entry.SizeCode, entry.PurchasePrice, entry.MRP, entry.UpdatedAt)
	if err != nil {
		return nil, err
	}
	saved := entry
	return &saved, nil
}

const ledgerColumns = `store_code, item_code, item_name, size_code, size_name, opening, inward, outward, closing, updated_at`

func scanLedger(row rowScanner) (*domain.InventoryLedger, error) {
	var l domain.InventoryLedger
	if err := row.Scan(&l.StoreCode, &l.ItemCode, &l.ItemName, &l.SizeCode, &l.SizeName, &l.Opening, &l.Inward, &l.Outward, &l.Closing, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}

// ApplyInventoryMovement adds the deltas in one statement. The SET
// expressions read the pre-update row, which keeps closing consistent with
// the new totals without a separate read.
func (t *pgTx) ApplyInventoryMovement(ctx context.Context, movement domain.LedgerMovement) (*domain.InventoryLedger, error) {
	key := movement.Key
	if key.StoreCode == "" || key.ItemCode == "" || key.SizeCode == "" {
		return nil, store.ErrInvalidTransaction
	}
	ledger, err := scanLedger(t.tx.QueryRowContext(ctx, `
		INSERT INTO inventory_ledger (`+ledgerColumns+`)
		VALUES ($1,$2,$3,$4,$5,0,$6::bigint,$7::bigint,$6::bigint - $7::bigint,$8)
		ON CONFLICT (store_code, item_code, size_code)
		DO UPDATE SET
			inward = inventory_ledger.inward + EXCLUDED.inward,
			outward = inventory_ledger.outward + EXCLUDED.outward,
			closing = inventory_ledger.opening
				+ inventory_ledger.inward + EXCLUDED.inward
				- inventory_ledger.outward - EXCLUDED.outward,
			item_name = COALESCE(NULLIF(inventory_ledger.item_name, ''), EXCLUDED.item_name),
			size_name = COALESCE(NULLIF(inventory_ledger.size_name, ''), EXCLUDED.size_name),
			updated_at = EXCLUDED.updated_at
		RETURNING `+ledgerColumns,
		key.StoreCode, key.ItemCode, movement.ItemName, key.SizeCode, movement.SizeName,
		movement.Inward, movement.Outward, movement.At.UTC(),
	))
	if err != nil {
		return nil, conflict(err)
	}
	return ledger, nil
}

func (t *pgTx) SetInventoryOpening(ctx context.Context, row domain.InventoryLedger) (*domain.InventoryLedger, error) {
	if row.StoreCode == "" || row.ItemCode == "" || row.SizeCode == "" {
		return nil, store.ErrInvalidTransaction
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	ledger, err := scanLedger(t.tx.QueryRowContext(ctx, `
		INSERT INTO inventory_ledger (`+ledgerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6::bigint,0,0,$6::bigint,$7)
		ON CONFLICT (store_code, item_code, size_code)
		DO UPDATE SET
			opening = EXCLUDED.opening,
			closing = EXCLUDED.opening + inventory_ledger.inward - inventory_ledger.outward,
			item_name = COALESCE(NULLIF(EXCLUDED.item_name, ''), inventory_ledger.item_name),
			size_name = COALESCE(NULLIF(EXCLUDED.size_name, ''), inventory_ledger.size_name),
			updated_at = EXCLUDED.updated_at
		RETURNING `+ledgerColumns,
		row.StoreCode, row.ItemCode, row.ItemName, row.SizeCode, row.SizeName, row.Opening, row.UpdatedAt.UTC(),
	))
	if err != nil {
		return nil, conflict(err)
	}
	return ledger, nil
}

func (t *pgTx) GetInventoryLedger(ctx context.Context, key domain.LedgerKey) (*domain.InventoryLedger, error) {
	row, err := scanLedger(t.tx.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM inventory_ledger
		WHERE store_code = $1 AND item_code = $2 AND size_code = $3
	`, key.StoreCode, key.ItemCode, key.SizeCode))
	if err != nil {
		return nil, notFound(err)
	}
	return row, nil
}

func (t *pgTx) ListInventoryLedger(ctx context.Context, storeCode string) ([]domain.InventoryLedger, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM inventory_ledger
		WHERE store_code = $1
		ORDER BY item_code, size_code
	`, storeCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ledger := make([]domain.InventoryLedger, 0, 64)
	for rows.Next() {
		row, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		ledger = append(ledger, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ledger, nil
}

const dsrHeadColumns = `store_code, to_char(dsr_date, 'YYYY-MM-DD'), user_id, dsr_status, created_at, updated_at`

func scanDSRHead(row rowScanner) (*domain.DSRHead, error) {
	var head domain.DSRHead
	if err := row.Scan(&head.StoreCode, &head.DSRDate, &head.UserID, &head.Status, &head.CreatedAt, &head.UpdatedAt); err != nil {
		return nil, err
	}
	head.CreatedAt = head.CreatedAt.UTC()
	head.UpdatedAt = head.UpdatedAt.UTC()
	return &head, nil
}

func (t *pgTx) GetDSRHead(ctx context.Context, storeCode string, dsrDate string) (*domain.DSRHead, error) {
	head, err := scanDSRHead(t.tx.QueryRowContext(ctx, `
		SELECT `+dsrHeadColumns+`
		FROM dsr_heads
		WHERE store_code = $1 AND dsr_date = $2::date
	`, storeCode, dsrDate))
	if err != nil {
		return nil, notFound(err)
	}
	return head, nil
}

func (t *pgTx) CreateDSRHeadIfAbsent(ctx context.Context, head domain.DSRHead) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO dsr_heads (store_code, dsr_date, user_id, dsr_status, created_at, updated_at)
		VALUES ($1,$2::date,$3,$4,$5,$6)
		ON CONFLICT (store_code, dsr_date) DO NOTHING
	`, head.StoreCode, head.DSRDate, head.UserID, head.Status, head.CreatedAt, head.UpdatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (t *pgTx) UpsertDSRHead(ctx context.Context, head domain.DSRHead) (*domain.DSRHead, error) {
	return scanDSRHead(t.tx.QueryRowContext(ctx, `
		INSERT INTO dsr_heads (store_code, dsr_date, user_id, dsr_status, created_at, updated_at)
		VALUES ($1,$2::date,$3,$4,$5,$6)
		ON CONFLICT (store_code, dsr_date)
		DO UPDATE SET user_id = EXCLUDED.user_id, dsr_status = EXCLUDED.dsr_status, updated_at = EXCLUDED.updated_at
		RETURNING `+dsrHeadColumns,
		head.StoreCode, head.DSRDate, head.UserID, head.Status, head.CreatedAt, head.UpdatedAt,
	))
}

const dsrDetailColumns = `
	id, store_code, to_char(dsr_date, 'YYYY-MM-DD'), item_code, item_name, size_code, size_name,
	purchase_price, mrp, opening, inward, outward, sale, closing, updated_at`

func scanDSRDetail(row rowScanner) (*domain.DSRDetail, error) {
	var d domain.DSRDetail
	if err := row.Scan(
		&d.ID,
		&d.StoreCode,
		&d.DSRDate,
		&d.ItemCode,
		&d.ItemName,
		&d.SizeCode,
		&d.SizeName,
		&d.PurchasePrice,
		&d.MRP,
		&d.Opening,
		&d.Inward,
		&d.Outward,
		&d.Sale,
		&d.Closing,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

func (t *pgTx) GetDSRDetailForUpdate(ctx context.Context, id string) (*domain.DSRDetail, error) {
	detail, err := scanDSRDetail(t.tx.QueryRowContext(ctx, `
		SELECT `+dsrDetailColumns+`
		FROM dsr_details
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return detail, nil
}

func (t *pgTx) GetDSRDetailByKey(ctx context.Context, storeCode string, dsrDate string, itemCode string, sizeCode string) (*domain.DSRDetail, error) {
	detail, err := scanDSRDetail(t.tx.QueryRowContext(ctx, `
		SELECT `+dsrDetailColumns+`
		FROM dsr_details
		WHERE store_code = $1 AND dsr_date = $2::date AND item_code = $3 AND size_code = $4
		FOR UPDATE
	`, storeCode, dsrDate, itemCode, sizeCode))
	if err != nil {
		return nil, notFound(err)
	}
	return detail, nil
}

func (t *pgTx) InsertDSRDetailIfAbsent(ctx context.Context, d domain.DSRDetail) (bool, error) {
	if d.ID == "" {
		d.ID = xid.New("dsr")
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO dsr_details (
			id, store_code, dsr_date, item_code, item_name, size_code, size_name,
			purchase_price, mrp, opening, inward, outward, sale, closing, updated_at
		)
		VALUES ($1,$2,$3::date,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (store_code, dsr_date, item_code, size_code) DO NOTHING
	`, d.ID, d.StoreCode, d.DSRDate, d.ItemCode, d.ItemName, d.SizeCode, d.SizeName,
		d.PurchasePrice, d.MRP, d.Opening, d.Inward, d.Outward, d.Sale, d.Closing, d.UpdatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (t *pgTx) UpdateDSRDetail(ctx context.Context, d domain.DSRDetail) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE dsr_details
		SET item_name = $2, size_name = $3, purchase_price = $4, mrp = $5,
			opening = $6, inward = $7, outward = $8, sale = $9, closing = $10, updated_at = $11
		WHERE id = $1
	`, d.ID, d.ItemName, d.SizeName, d.PurchasePrice, d.MRP, d.Opening, d.Inward, d.Outward, d.Sale, d.Closing, d.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListDSRDetails(ctx context.Context, storeCode string, dsrDate string) ([]domain.DSRDetail, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+dsrDetailColumns+`
		FROM dsr_details
		WHERE store_code = $1 AND dsr_date = $2::date
		ORDER BY item_code, size_code
	`, storeCode, dsrDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]domain.DSRDetail, 0, 64)
	for rows.Next() {
		detail, err := scanDSRDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

func (t *pgTx) CreateSale(ctx context.Context, sale domain.Sale) error {
	itemsJSON, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO sales (id, invoice_no, invoice_date, store_code, party_code, tender_type, user_id, total_amount, items, created_at)
		VALUES ($1,$2,$3::date,$4,$5,$6,$7,$8,$9,$10)
	`, sale.ID, sale.InvoiceNo, sale.InvoiceDate, sale.StoreCode, sale.PartyCode, sale.TenderType, sale.UserID,
		sale.TotalAmount, itemsJSON, sale.CreatedAt)
	return conflict(err)
}

func (t *pgTx) CreatePurchase(ctx context.Context, purchase domain.Purchase) error {
	itemsJSON, err := json.Marshal(purchase.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO purchases (id, voucher_no, purchase_date, store_code, party_code, bill_no, user_id, total_amount, items, created_at)
		VALUES ($1,$2,$3::date,$4,$5,$6,$7,$8,$9,$10)
	`, purchase.ID, purchase.VoucherNo, purchase.PurchaseDate, purchase.StoreCode, purchase.PartyCode, purchase.BillNo,
		purchase.UserID, purchase.TotalAmount, itemsJSON, purchase.CreatedAt)
	return conflict(err)
}

func (t *pgTx) CreateStockTransferOut(ctx context.Context, sto domain.StockTransferOut) error {
	itemsJSON, err := json.Marshal(sto.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO stock_transfers_out (
			id, sto_number, transfer_date, from_store, to_store, user_id, narration,
			received_status, received_by, received_at, items, created_at
		)
		VALUES ($1,$2,$3::date,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sto.ID, sto.STONumber, sto.TransferDate, sto.FromStore, sto.ToStore, sto.UserID, sto.Narration,
		sto.ReceivedStatus, sto.ReceivedBy, nullTime(sto.ReceivedAt), itemsJSON, sto.CreatedAt)
	return conflict(err)
}

const transferOutColumns = `
	id, sto_number, to_char(transfer_date, 'YYYY-MM-DD'), from_store, to_store, user_id, narration,
	received_status, received_by, received_at, items, created_at`

func scanTransferOut(row rowScanner) (*domain.StockTransferOut, error) {
	var sto domain.StockTransferOut
	var receivedAt sql.NullTime
	var itemsRaw []byte
	if err := row.Scan(
		&sto.ID,
		&sto.STONumber,
		&sto.TransferDate,
		&sto.FromStore,
		&sto.ToStore,
		&sto.UserID,
		&sto.Narration,
		&sto.ReceivedStatus,
		&sto.ReceivedBy,
		&receivedAt,
		&itemsRaw,
		&sto.CreatedAt,
	); err != nil {
		return nil, err
	}
	if receivedAt.Valid {
		at := receivedAt.Time.UTC()
		sto.ReceivedAt = &at
	}
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &sto.Items); err != nil {
			return nil, err
		}
	}
	sto.CreatedAt = sto.CreatedAt.UTC()
	return &sto, nil
}

func (t *pgTx) ReceiveStockTransferOut(ctx context.Context, stoNumber string, receivedBy string, at time.Time) (*domain.StockTransferOut, error) {
	sto, err := scanTransferOut(t.tx.QueryRowContext(ctx, `
		SELECT `+transferOutColumns+`
		FROM stock_transfers_out
		WHERE sto_number = $1
		FOR UPDATE
	`, stoNumber))
	if err != nil {
		return nil, notFound(err)
	}
	if sto.ReceivedStatus == domain.TransferReceived {
		return nil, store.ErrInvalidTransaction
	}

	at = at.UTC()
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE stock_transfers_out
		SET received_status = $2, received_by = $3, received_at = $4
		WHERE sto_number = $1
	`, stoNumber, domain.TransferReceived, receivedBy, at); err != nil {
		return nil, conflict(err)
	}
	sto.ReceivedStatus = domain.TransferReceived
	sto.ReceivedBy = receivedBy
	sto.ReceivedAt = &at
	return sto, nil
}

func (t *pgTx) ListPendingTransfers(ctx context.Context, toStore string, limit int) ([]domain.StockTransferOut, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+transferOutColumns+`
		FROM stock_transfers_out
		WHERE received_status = $1 AND ($2 = '' OR to_store = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, domain.TransferPending, toStore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.StockTransferOut, 0, limit)
	for rows.Next() {
		sto, err := scanTransferOut(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *sto)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transfers, nil
}

func (t *pgTx) CreateStockTransferIn(ctx context.Context, sti domain.StockTransferIn) error {
	itemsJSON, err := json.Marshal(sti.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO stock_transfers_in (
			id, sti_number, sto_number, transfer_date, from_store, to_store, user_id, narration, items, created_at
		)
		VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9,$10)
	`, sti.ID, sti.STINumber, sti.STONumber, sti.TransferDate, sti.FromStore, sti.ToStore, sti.UserID,
		sti.Narration, itemsJSON, sti.CreatedAt)
	return conflict(err)
}

func (t *pgTx) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_code, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreCode, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (t *pgTx) ListAuditLogs(ctx context.Context, storeCode string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, store_code, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_code = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeCode, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(
			&entry.ID,
			&entry.StoreCode,
			&entry.ActorUsername,
			&entry.ActorRole,
			&entry.Action,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Detail,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// lockFailure reports deadlocks, serialization failures and lock timeouts.
// The transaction is dead in each case and the caller may retry it.
func lockFailure(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40P01", "40001", "55P03":
			return pgErr.Code, true
		}
	}
	return "", false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return conflict(err)
}

func conflict(err error) error {
	if err == nil || errors.Is(err, store.ErrConflict) {
		return err
	}
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if code, ok := lockFailure(err); ok {
		return fmt.Errorf("%w: lock failure (sqlstate %s)", store.ErrConflict, code)
	}
	return err
}

func nullString(val *string) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt(val *int) any {
	if val == nil {
		return nil
	}
	return int64(*val)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
