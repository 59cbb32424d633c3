package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rgsons/backend/internal/domain"
	"rgsons/backend/internal/store"
	"rgsons/backend/internal/xid"
)

// CreateSale numbers the invoice, stores it and books every line as
// outward stock for the selling store.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	req.StoreCode = strings.TrimSpace(req.StoreCode)
	req.Items = normalizeLines(req.Items)
	if err := s.validateRequest(req); err != nil {
		return domain.Sale{}, err
	}
	invoiceDate, _, err := parseBusinessDate("invoice_date", req.InvoiceDate)
	if err != nil {
		return domain.Sale{}, err
	}

	var sale domain.Sale
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetStoreByCode(ctx, req.StoreCode); err != nil {
			return storeLookupError(req.StoreCode, err)
		}
		number, err := s.allocateDocumentNumber(ctx, tx, domain.VoucherTypeSale, req.StoreCode)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		sale = domain.Sale{
			ID:          xid.New("sale"),
			InvoiceNo:   number,
			InvoiceDate: invoiceDate,
			StoreCode:   req.StoreCode,
			PartyCode:   strings.TrimSpace(req.PartyCode),
			TenderType:  strings.TrimSpace(req.TenderType),
			UserID:      actingUser(ctx, req.UserID),
			TotalAmount: linesTotal(req.Items),
			Items:       req.Items,
			CreatedAt:   now,
		}
		if err := tx.CreateSale(ctx, sale); err != nil {
			return documentWriteError("sale", err)
		}
		return s.applyLines(ctx, tx, req.StoreCode, sale.Items, false)
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, sale.StoreCode, "sale_create", "sale", sale.InvoiceNo, fmt.Sprintf("lines=%d,total=%s", len(sale.Items), sale.TotalAmount.StringFixed(2)))
	return sale, nil
}

// CreatePurchase numbers the voucher and books every line as inward stock.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseRequest) (domain.Purchase, error) {
	req.StoreCode = strings.TrimSpace(req.StoreCode)
	req.Items = normalizeLines(req.Items)
	if err := s.validateRequest(req); err != nil {
		return domain.Purchase{}, err
	}
	purchaseDate, _, err := parseBusinessDate("purchase_date", req.PurchaseDate)
	if err != nil {
		return domain.Purchase{}, err
	}

	var purchase domain.Purchase
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetStoreByCode(ctx, req.StoreCode); err != nil {
			return storeLookupError(req.StoreCode, err)
		}
		number, err := s.allocateDocumentNumber(ctx, tx, domain.VoucherTypePurchase, req.StoreCode)
		if err != nil {
			return err
		}

		purchase = domain.Purchase{
			ID:           xid.New("pur"),
			VoucherNo:    number,
			PurchaseDate: purchaseDate,
			StoreCode:    req.StoreCode,
			PartyCode:    strings.TrimSpace(req.PartyCode),
			BillNo:       strings.TrimSpace(req.BillNo),
			UserID:       actingUser(ctx, req.UserID),
			TotalAmount:  linesTotal(req.Items),
			Items:        req.Items,
			CreatedAt:    s.now().UTC(),
		}
		if err := tx.CreatePurchase(ctx, purchase); err != nil {
			return documentWriteError("purchase", err)
		}
		return s.applyLines(ctx, tx, req.StoreCode, purchase.Items, true)
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.logAudit(ctx, purchase.StoreCode, "purchase_create", "purchase", purchase.VoucherNo, fmt.Sprintf("lines=%d,total=%s", len(purchase.Items), purchase.TotalAmount.StringFixed(2)))
	return purchase, nil
}

// CreateStockTransferOut ships stock out of FromStore and reseeds that
// store's DSR for the transfer date.
func (s *Service) CreateStockTransferOut(ctx context.Context, req domain.StockTransferOutRequest) (domain.StockTransferOut, error) {
	req.FromStore = strings.TrimSpace(req.FromStore)
	req.ToStore = strings.TrimSpace(req.ToStore)
	req.Items = normalizeLines(req.Items)
	if err := s.validateRequest(req); err != nil {
		return domain.StockTransferOut{}, err
	}
	transferDate, _, err := parseBusinessDate("transfer_date", req.TransferDate)
	if err != nil {
		return domain.StockTransferOut{}, err
	}
	userID := actingUser(ctx, req.UserID)

	release := s.lockReconciliation(ctx, req.FromStore, transferDate)
	defer release()

	var sto domain.StockTransferOut
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		for _, code := range []string{req.FromStore, req.ToStore} {
			if _, err := tx.GetStoreByCode(ctx, code); err != nil {
				return storeLookupError(code, err)
			}
		}
		number, err := s.allocateDocumentNumber(ctx, tx, domain.VoucherTypeStockTransferOut, req.FromStore)
		if err != nil {
			return err
		}

		sto = domain.StockTransferOut{
			ID:             xid.New("sto"),
			STONumber:      number,
			TransferDate:   transferDate,
			FromStore:      req.FromStore,
			ToStore:        req.ToStore,
			UserID:         userID,
			Narration:      strings.TrimSpace(req.Narration),
			ReceivedStatus: domain.TransferPending,
			Items:          req.Items,
			CreatedAt:      s.now().UTC(),
		}
		if err := tx.CreateStockTransferOut(ctx, sto); err != nil {
			return documentWriteError("stock transfer out", err)
		}
		if err := s.applyLines(ctx, tx, req.FromStore, sto.Items, false); err != nil {
			return err
		}
		_, err = s.seed(ctx, tx, req.FromStore, transferDate, userID)
		return err
	})
	if err != nil {
		return domain.StockTransferOut{}, err
	}

	s.logAudit(ctx, sto.FromStore, "stock_transfer_out", "stock_transfer", sto.STONumber, fmt.Sprintf("to=%s,lines=%d", sto.ToStore, len(sto.Items)))
	return sto, nil
}

// CreateStockTransferIn receives stock into ToStore, marks the matching
// transfer-out received and reseeds the receiving store's DSR.
func (s *Service) CreateStockTransferIn(ctx context.Context, req domain.StockTransferInRequest) (domain.StockTransferIn, error) {
	req.ToStore = strings.TrimSpace(req.ToStore)
	req.FromStore = strings.TrimSpace(req.FromStore)
	req.STONumber = strings.TrimSpace(req.STONumber)
	req.Items = normalizeLines(req.Items)
	if err := s.validateRequest(req); err != nil {
		return domain.StockTransferIn{}, err
	}
	transferDate, _, err := parseBusinessDate("transfer_date", req.TransferDate)
	if err != nil {
		return domain.StockTransferIn{}, err
	}
	userID := actingUser(ctx, req.UserID)

	release := s.lockReconciliation(ctx, req.ToStore, transferDate)
	defer release()

	var sti domain.StockTransferIn
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetStoreByCode(ctx, req.ToStore); err != nil {
			return storeLookupError(req.ToStore, err)
		}
		number, err := s.allocateDocumentNumber(ctx, tx, domain.VoucherTypeStockTransferIn, req.ToStore)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		fromStore := req.FromStore
		if req.STONumber != "" {
			sto, err := tx.ReceiveStockTransferOut(ctx, req.STONumber, userID, now)
			if err != nil {
				if errors.Is(err, store.ErrInvalidTransaction) {
					return fmt.Errorf("%w: stock transfer %s was already received", store.ErrInvalidTransaction, req.STONumber)
				}
				return fmt.Errorf("stock transfer %s: %w", req.STONumber, err)
			}
			if sto.ToStore != req.ToStore {
				return fmt.Errorf("%w: stock transfer %s is addressed to %s", store.ErrInvalidTransaction, req.STONumber, sto.ToStore)
			}
			if fromStore == "" {
				fromStore = sto.FromStore
			}
		}

		sti = domain.StockTransferIn{
			ID:           xid.New("sti"),
			STINumber:    number,
			STONumber:    req.STONumber,
			TransferDate: transferDate,
			FromStore:    fromStore,
			ToStore:      req.ToStore,
			UserID:       userID,
			Narration:    strings.TrimSpace(req.Narration),
			Items:        req.Items,
			CreatedAt:    now,
		}
		if err := tx.CreateStockTransferIn(ctx, sti); err != nil {
			return documentWriteError("stock transfer in", err)
		}
		if err := s.applyLines(ctx, tx, req.ToStore, sti.Items, true); err != nil {
			return err
		}
		_, err = s.seed(ctx, tx, req.ToStore, transferDate, userID)
		return err
	})
	if err != nil {
		return domain.StockTransferIn{}, err
	}

	s.logAudit(ctx, sti.ToStore, "stock_transfer_in", "stock_transfer", sti.STINumber, fmt.Sprintf("sto=%s,lines=%d", sti.STONumber, len(sti.Items)))
	return sti, nil
}

func (s *Service) ListPendingTransfers(ctx context.Context, toStore string, limit int) ([]domain.StockTransferOut, error) {
	if limit < 1 {
		limit = 50
	}
	var transfers []domain.StockTransferOut
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		transfers, err = tx.ListPendingTransfers(ctx, strings.TrimSpace(toStore), limit)
		return err
	})
	return transfers, err
}

func (s *Service) applyLines(ctx context.Context, tx store.Tx, storeCode string, lines []domain.DocumentLine, inward bool) error {
	for _, movement := range lineMovements(storeCode, lines, inward, s.now().UTC()) {
		if _, err := s.applyMovement(ctx, tx, movement); err != nil {
			return err
		}
	}
	return nil
}

// lineMovements returns one movement per line ordered by ledger key. Every
// flow locks ledger rows in this order, so two documents sharing rows
// cannot deadlock each other.
func lineMovements(storeCode string, lines []domain.DocumentLine, inward bool, at time.Time) []domain.LedgerMovement {
	movements := make([]domain.LedgerMovement, 0, len(lines))
	for _, line := range lines {
		movement := domain.LedgerMovement{
			Key:      domain.LedgerKey{StoreCode: storeCode, ItemCode: line.ItemCode, SizeCode: line.SizeCode},
			ItemName: line.ItemName,
			SizeName: line.SizeName,
			At:       at,
		}
		if inward {
			movement.Inward = line.Qty
		} else {
			movement.Outward = line.Qty
		}
		movements = append(movements, movement)
	}
	slices.SortStableFunc(movements, func(a, b domain.LedgerMovement) int {
		return cmp.Or(
			strings.Compare(a.Key.StoreCode, b.Key.StoreCode),
			strings.Compare(a.Key.ItemCode, b.Key.ItemCode),
			strings.Compare(a.Key.SizeCode, b.Key.SizeCode),
		)
	})
	return movements
}

// normalizeLines trims codes and fills Amount from Rate*Qty when missing.
func normalizeLines(lines []domain.DocumentLine) []domain.DocumentLine {
	out := make([]domain.DocumentLine, 0, len(lines))
	for _, line := range lines {
		line.ItemCode = strings.TrimSpace(line.ItemCode)
		line.SizeCode = strings.TrimSpace(line.SizeCode)
		line.ItemName = strings.TrimSpace(line.ItemName)
		line.SizeName = strings.TrimSpace(line.SizeName)
		if line.Amount.IsZero() && !line.Rate.IsZero() {
			line.Amount = line.Rate.Mul(decimal.NewFromInt(line.Qty))
		}
		out = append(out, line)
	}
	return out
}

func linesTotal(lines []domain.DocumentLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount)
	}
	return total
}

func documentWriteError(kind string, err error) error {
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: %s number already used", ErrConcurrencyConflict, kind)
	}
	return fmt.Errorf("failed to save %s: %w", kind, err)
}
