package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kulakan/internal/domain"
	"kulakan/internal/store"
)

// arrayConverter lets []string through to the mock the way pgx stdlib does.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	if driver.IsValue(v) {
		return v, nil
	}
	if list, ok := v.([]string); ok {
		return list, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db, nil), mock
}

var (
	orderColumns = []string{"id", "store_id", "supplier_id", "order_date", "status", "total_amount", "notes", "created_at", "ordered_at", "received_at", "received_by", "receipt_id"}
	itemColumns  = []string{"line_id", "sku", "product_name", "ordered_qty", "ordered_unit_price", "received_qty", "received_unit_price", "subtotal"}
)

func expectLockedOrder(mock sqlmock.Sqlmock, status string, receiptID any) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM purchase_orders WHERE id = \$1 FOR UPDATE`).
		WithArgs("po-1").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("po-1", "main-store", "sup-1", at, status, "40000", "", at, at, nil, nil, receiptID))
	mock.ExpectQuery(`FROM purchase_order_items WHERE purchase_order_id = \$1 ORDER BY position`).
		WithArgs("po-1").
		WillReturnRows(sqlmock.NewRows(itemColumns).
			AddRow("pol-1", "SKU-BERAS-01", "Beras Premium", "2", "200", "0", "0", "0"))
}

func receiptCommit() store.ReceiptCommit {
	return store.ReceiptCommit{
		ReceiptID: "rcpt-1",
		OrderID:   "po-1",
		Adjustments: []domain.StockAdjustment{
			{SKU: "SKU-BERAS-01", BaseQty: decimal.NewFromInt(100), BaseUnitCost: decimal.NewFromInt(200)},
		},
		Lines: []domain.PurchaseOrderItem{{
			LineID:            "pol-1",
			SKU:               "SKU-BERAS-01",
			ProductName:       "Beras Premium",
			OrderedQty:        decimal.NewFromInt(2),
			OrderedUnitPrice:  decimal.NewFromInt(200),
			ReceivedQty:       decimal.NewFromInt(2),
			ReceivedUnitPrice: decimal.NewFromInt(10000),
			Subtotal:          decimal.NewFromInt(20000),
		}},
		TotalAmount: decimal.NewFromInt(20000),
		ReceivedBy:  "gudang",
		ReceivedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestGetProductBySKUNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT sku, name, category, .* FROM products WHERE sku = \$1`).
		WithArgs("SKU-NOPE").
		WillReturnRows(sqlmock.NewRows([]string{"sku"}))

	_, err := s.GetProductBySKU(context.Background(), "SKU-NOPE")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReceiptWritesEverythingInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLockedOrder(mock, domain.POStatusOrdered, nil)
	mock.ExpectExec(`INSERT INTO purchase_order_receipts`).
		WithArgs("rcpt-1", "po-1", "gudang", "20000", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM inventory_stocks WHERE store_id = \$1 AND sku = ANY\(\$2\) FOR UPDATE`).
		WithArgs("main-store", []string{"SKU-BERAS-01"}).
		WillReturnRows(sqlmock.NewRows([]string{"sku", "qty", "cost"}).AddRow("SKU-BERAS-01", "10", "180"))
	mock.ExpectExec(`INSERT INTO inventory_stocks`).
		WithArgs("main-store", "SKU-BERAS-01", "110", "198.18", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO inventory_lots`).
		WithArgs(sqlmock.AnyArg(), "main-store", "SKU-BERAS-01", "PO-po-1-01", "100", "200", domain.LotSourcePurchaseOrder, "po-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE purchase_order_items`).
		WithArgs("po-1", "pol-1", "2", "10000", "20000").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE purchase_orders SET status = 'received'`).
		WithArgs("po-1", "20000", sqlmock.AnyArg(), "gudang", "rcpt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	po, duplicate, err := s.CommitReceipt(context.Background(), receiptCommit())
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, domain.POStatusReceived, po.Status)
	assert.Equal(t, "rcpt-1", po.ReceiptID)
	assert.True(t, po.TotalAmount.Equal(decimal.NewFromInt(20000)))
	assert.True(t, po.Items[0].ReceivedUnitPrice.Equal(decimal.NewFromInt(10000)))
	assert.True(t, po.Items[0].OrderedUnitPrice.Equal(decimal.NewFromInt(200)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReceiptReplayReturnsStoredOrder(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLockedOrder(mock, domain.POStatusReceived, "rcpt-1")
	mock.ExpectRollback()

	po, duplicate, err := s.CommitReceipt(context.Background(), receiptCommit())
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, "po-1", po.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReceiptRejectsOrderNotOrdered(t *testing.T) {
	for _, tt := range []struct {
		name      string
		status    string
		receiptID any
	}{
		{name: "draft", status: domain.POStatusDraft},
		{name: "cancelled", status: domain.POStatusCancelled},
		{name: "received by another receipt", status: domain.POStatusReceived, receiptID: "rcpt-0"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)

			mock.ExpectBegin()
			expectLockedOrder(mock, tt.status, tt.receiptID)
			mock.ExpectRollback()

			_, _, err := s.CommitReceipt(context.Background(), receiptCommit())
			assert.ErrorIs(t, err, store.ErrConflict)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCommitReceiptRollsBackOnStockFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLockedOrder(mock, domain.POStatusOrdered, nil)
	mock.ExpectExec(`INSERT INTO purchase_order_receipts`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM inventory_stocks`).
		WillReturnRows(sqlmock.NewRows([]string{"sku", "qty", "cost"}))
	mock.ExpectExec(`INSERT INTO inventory_stocks`).
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})
	mock.ExpectRollback()

	_, _, err := s.CommitReceipt(context.Background(), receiptCommit())
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReceiptRejectsReusedReceiptID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLockedOrder(mock, domain.POStatusOrdered, nil)
	mock.ExpectExec(`INSERT INTO purchase_order_receipts`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})
	mock.ExpectRollback()

	_, _, err := s.CommitReceipt(context.Background(), receiptCommit())
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReceiptMapsSerializationFailureAtOrderLock(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM purchase_orders WHERE id = \$1 FOR UPDATE`).
		WithArgs("po-1").
		WillReturnError(&pgconn.PgError{Code: pgSerializationFailure})
	mock.ExpectRollback()

	_, _, err := s.CommitReceipt(context.Background(), receiptCommit())
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReceiptMapsSerializationFailureAtStockLock(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLockedOrder(mock, domain.POStatusOrdered, nil)
	mock.ExpectExec(`INSERT INTO purchase_order_receipts`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM inventory_stocks`).
		WillReturnError(&pgconn.PgError{Code: pgSerializationFailure})
	mock.ExpectRollback()

	_, _, err := s.CommitReceipt(context.Background(), receiptCommit())
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReceiptMapsDeadlockOnReceiptInsert(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLockedOrder(mock, domain.POStatusOrdered, nil)
	mock.ExpectExec(`INSERT INTO purchase_order_receipts`).
		WillReturnError(&pgconn.PgError{Code: pgDeadlockDetected})
	mock.ExpectRollback()

	_, _, err := s.CommitReceipt(context.Background(), receiptCommit())
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReceiptMissingOrderStaysNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM purchase_orders WHERE id = \$1 FOR UPDATE`).
		WithArgs("po-1").
		WillReturnRows(sqlmock.NewRows(orderColumns))
	mock.ExpectRollback()

	_, _, err := s.CommitReceipt(context.Background(), receiptCommit())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReceiptRejectsMismatchedLines(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLockedOrder(mock, domain.POStatusOrdered, nil)
	mock.ExpectRollback()

	commit := receiptCommit()
	commit.Lines[0].LineID = "pol-other"
	_, _, err := s.CommitReceipt(context.Background(), commit)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionPurchaseOrderConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE purchase_orders SET status = \$3`).
		WithArgs("po-1", []string{domain.POStatusDraft}, domain.POStatusOrdered, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT status FROM purchase_orders WHERE id = \$1`).
		WithArgs("po-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(domain.POStatusReceived))

	_, err := s.TransitionPurchaseOrder(context.Background(), "po-1", []string{domain.POStatusDraft}, domain.POStatusOrdered, time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionPurchaseOrderMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE purchase_orders SET status = \$3`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT status FROM purchase_orders`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err := s.TransitionPurchaseOrder(context.Background(), "po-x", []string{domain.POStatusDraft}, domain.POStatusCancelled, time.Time{})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPurchaseOrdersGroupsItems(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM purchase_orders WHERE .* ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("main-store", "ordered", 200).
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("po-2", "main-store", "sup-1", at, "ordered", "100", "", at, at, nil, nil, nil).
			AddRow("po-1", "main-store", "sup-1", at, "ordered", "400", "", at, at, nil, nil, nil))
	mock.ExpectQuery(`FROM purchase_order_items WHERE purchase_order_id = ANY\(\$1\)`).
		WithArgs([]string{"po-2", "po-1"}).
		WillReturnRows(sqlmock.NewRows(append([]string{"purchase_order_id"}, itemColumns...)).
			AddRow("po-1", "pol-1", "SKU-A", "A", "2", "200", "0", "0", "0").
			AddRow("po-2", "pol-2", "SKU-B", "B", "1", "100", "0", "0", "0"))

	orders, err := s.ListPurchaseOrders(context.Background(), "main-store", " Ordered ", 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "pol-2", orders[0].Items[0].LineID)
	assert.Equal(t, "pol-1", orders[1].Items[0].LineID)
	assert.Nil(t, orders[0].ReceivedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapWriteError(t *testing.T) {
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: pgSerializationFailure}, ""), store.ErrConflict)
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: pgDeadlockDetected}, ""), store.ErrConflict)
	assert.ErrorIs(t, mapTxError(&pgconn.PgError{Code: pgSerializationFailure}), store.ErrConflict)
	assert.ErrorIs(t, mapTxError(store.ErrNotFound), store.ErrNotFound)
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: pgCheckViolation}, ""), store.ErrInvalidTransaction)
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: pgNumericOutOfRange}, ""), store.ErrInvalidTransaction)
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: pgForeignKeyViolation}, "SKU-X"), store.ErrInvalidTransaction)
	other := &pgconn.PgError{Code: "08006"}
	assert.Equal(t, error(other), mapWriteError(other, ""))
}
