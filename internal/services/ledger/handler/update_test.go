package handler

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastra-system/internal/apperrors"
	"gastra-system/internal/database/models"
)

func int32p(v int32) *int32 { return &v }

func TestUpdateEntryRecalculatesDownstream(t *testing.T) {
	ledger, _, db := newTestEngine(t)
	fx := seedLedgerFixtures(t, db)
	ctx := context.Background()

	first, err := ledger.CreateEntry(ctx, CreateEntryInput{
		CustomerID:      fx.CustomerID,
		VariantID:       &fx.VariantID,
		TransactionDate: day(0),
		TransactionType: models.TxSale,
		FilledOut:       5,
		TotalAmount:     dec(500),
	})
	require.NoError(t, err)

	second, err := ledger.CreateEntry(ctx, CreateEntryInput{
		CustomerID:      fx.CustomerID,
		VariantID:       &fx.VariantID,
		TransactionDate: day(1),
		TransactionType: models.TxSale,
		FilledOut:       2,
		TotalAmount:     dec(200),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(7), second.Balance)

	updated, err := ledger.UpdateEntry(ctx, first.ID, UpdateEntryInput{
		FilledOut:    int32p(3),
		TotalAmount:  dec(300),
		UpdateReason: "data entry error",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), updated.Balance)
	assert.True(t, updated.DueAmount.Equal(decimal.NewFromInt(300)))
	require.NotNil(t, updated.UpdateReason)
	assert.Equal(t, "data entry error", *updated.UpdateReason)

	var downstream models.LedgerEntry
	require.NoError(t, db.First(&downstream, second.ID).Error)
	assert.Equal(t, int32(5), downstream.Balance)
	assert.True(t, downstream.DueAmount.Equal(decimal.NewFromInt(500)))
}

func TestUpdateEntryRejectsNegativeDownstream(t *testing.T) {
	ledger, _, db := newTestEngine(t)
	fx := seedLedgerFixtures(t, db)
	ctx := context.Background()

	first, err := ledger.CreateEntry(ctx, CreateEntryInput{
		CustomerID:      fx.CustomerID,
		VariantID:       &fx.VariantID,
		TransactionDate: day(0),
		TransactionType: models.TxSale,
		FilledOut:       5,
	})
	require.NoError(t, err)

	second, err := ledger.CreateEntry(ctx, CreateEntryInput{
		CustomerID:      fx.CustomerID,
		WarehouseID:     &fx.WarehouseID,
		VariantID:       &fx.VariantID,
		TransactionDate: day(1),
		TransactionType: models.TxEmptyReturn,
		EmptyIn:         5,
	})
	require.NoError(t, err)

	// shrinking the first hand-out would drive the return below zero
	_, err = ledger.UpdateEntry(ctx, first.ID, UpdateEntryInput{
		FilledOut:    int32p(2),
		UpdateReason: "correction",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrChainViolation)

	var chainErr *apperrors.ChainViolationError
	require.ErrorAs(t, err, &chainErr)
	require.Len(t, chainErr.Violations, 1)
	assert.Equal(t, second.ID, chainErr.Violations[0].EntryID)
	assert.Equal(t, "balance", chainErr.Violations[0].Kind)

	// nothing may have been written
	var reread models.LedgerEntry
	require.NoError(t, db.First(&reread, first.ID).Error)
	assert.Equal(t, int32(5), reread.FilledOut)
	assert.Equal(t, int32(5), reread.Balance)
}

func TestUpdateEntryCollectsAllViolations(t *testing.T) {
	ledger, _, db := newTestEngine(t)
	fx := seedLedgerFixtures(t, db)
	ctx := context.Background()

	first, err := ledger.CreateEntry(ctx, CreateEntryInput{
		CustomerID:      fx.CustomerID,
		VariantID:       &fx.VariantID,
		TransactionDate: day(0),
		TransactionType: models.TxSale,
		FilledOut:       6,
		TotalAmount:     dec(100),
	})
	require.NoError(t, err)
	_, err = ledger.CreateEntry(ctx, CreateEntryInput{
		CustomerID:      fx.CustomerID,
		WarehouseID:     &fx.WarehouseID,
		VariantID:       &fx.VariantID,
		TransactionDate: day(1),
		TransactionType: models.TxEmptyReturn,
		EmptyIn:         3,
	})
	require.NoError(t, err)
	_, err = ledger.CreateEntry(ctx, CreateEntryInput{
		CustomerID:      fx.CustomerID,
		WarehouseID:     &fx.WarehouseID,
		VariantID:       &fx.VariantID,
		TransactionDate: day(2),
		TransactionType: models.TxEmptyReturn,
		EmptyIn:         3,
	})
	require.NoError(t, err)
	_, err = ledger.RecordPayment(ctx, PaymentInput{
		CustomerID:      fx.CustomerID,
		TransactionDate: day(3),
		Amount:          decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	// cutting both the quantity and the price breaks two balance rows and
	// the payment row at once; all three must be reported
	_, err = ledger.UpdateEntry(ctx, first.ID, UpdateEntryInput{
		FilledOut:    int32p(1),
		TotalAmount:  dec(40),
		UpdateReason: "wrong delivery note",
	})
	require.Error(t, err)

	var chainErr *apperrors.ChainViolationError
	require.ErrorAs(t, err, &chainErr)
	assert.Len(t, chainErr.Violations, 3)

	kinds := map[string]int{}
	for _, v := range chainErr.Violations {
		kinds[v.Kind]++
	}
	assert.Equal(t, 2, kinds["balance"])
	assert.Equal(t, 1, kinds["due"])
}

func TestUpdateEntryOutsideEditWindow(t *testing.T) {
	ledger, _, db := newTestEngine(t)
	fx := seedLedgerFixtures(t, db)
	ctx := context.Background()

	var firstID int64
	for i := 0; i < 16; i++ {
		entry, err := ledger.CreateEntry(ctx, CreateEntryInput{
			CustomerID:      fx.CustomerID,
			VariantID:       &fx.VariantID,
			TransactionDate: day(i),
			TransactionType: models.TxSale,
			FilledOut:       1,
			TotalAmount:     dec(10),
		})
		require.NoError(t, err)
		if i == 0 {
			firstID = entry.ID
		}
	}

	_, err := ledger.UpdateEntry(ctx, firstID, UpdateEntryInput{
		FilledOut:    int32p(2),
		UpdateReason: "late correction",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrEntryTooOld)

	var oldErr *apperrors.EntryTooOldError
	require.ErrorAs(t, err, &oldErr)
	assert.Equal(t, 16, oldErr.ChainLen)
	assert.Equal(t, 15, oldErr.EditWindow)
}

func TestUpdateEntryFieldRestrictions(t *testing.T) {
	ledger, _, db := newTestEngine(t)
	fx := seedLedgerFixtures(t, db)
	ctx := context.Background()

	_, err := ledger.CreateEntry(ctx, CreateEntryInput{
		CustomerID:      fx.CustomerID,
		VariantID:       &fx.VariantID,
		TransactionDate: day(0),
		TransactionType: models.TxSale,
		FilledOut:       5,
		TotalAmount:     dec(100),
	})
	require.NoError(t, err)

	ret, err := ledger.CreateEntry(ctx, CreateEntryInput{
		CustomerID:      fx.CustomerID,
		WarehouseID:     &fx.WarehouseID,
		VariantID:       &fx.VariantID,
		TransactionDate: day(1),
		TransactionType: models.TxEmptyReturn,
		EmptyIn:         2,
	})
	require.NoError(t, err)

	payment, err := ledger.RecordPayment(ctx, PaymentInput{
		CustomerID:      fx.CustomerID,
		TransactionDate: day(2),
		Amount:          decimal.NewFromInt(30),
	})
	require.NoError(t, err)

	_, err = ledger.UpdateEntry(ctx, ret.ID, UpdateEntryInput{
		FilledOut:    int32p(1),
		UpdateReason: "bad edit",
	})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedEdit)

	_, err = ledger.UpdateEntry(ctx, payment.ID, UpdateEntryInput{
		EmptyIn:      int32p(1),
		UpdateReason: "bad edit",
	})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedEdit)

	// repricing the payment itself is allowed
	updated, err := ledger.UpdateEntry(ctx, payment.ID, UpdateEntryInput{
		AmountReceived: dec(40),
		UpdateReason:   "customer paid more",
	})
	require.NoError(t, err)
	assert.True(t, updated.DueAmount.Equal(decimal.NewFromInt(60)))
}

func TestUpdateEntryAdjustsWarehouseCounters(t *testing.T) {
	ledger, inventory, db := newTestEngine(t)
	fx := seedLedgerFixtures(t, db)
	ctx := context.Background()

	require.NoError(t, inventory.IncrementFilled(ctx, fx.WarehouseID, fx.VariantID, 10, 1))

	entry, err := ledger.CreateEntry(ctx, CreateEntryInput{
		CustomerID:      fx.CustomerID,
		WarehouseID:     &fx.WarehouseID,
		VariantID:       &fx.VariantID,
		TransactionDate: day(0),
		TransactionType: models.TxSale,
		FilledOut:       5,
		TotalAmount:     dec(100),
	})
	require.NoError(t, err)

	// the sale handed out 5; correcting to 3 puts 2 back
	_, err = ledger.UpdateEntry(ctx, entry.ID, UpdateEntryInput{
		FilledOut:    int32p(3),
		UpdateReason: "two cylinders came back on the truck",
	})
	require.NoError(t, err)

	stock, err := inventory.GetStock(ctx, fx.WarehouseID, fx.VariantID)
	require.NoError(t, err)
	assert.Equal(t, int32(12), stock.FilledQty)
}

func TestUpdateEntryNotFound(t *testing.T) {
	ledger, _, db := newTestEngine(t)
	seedLedgerFixtures(t, db)

	_, err := ledger.UpdateEntry(context.Background(), 9999, UpdateEntryInput{
		FilledOut:    int32p(1),
		UpdateReason: "x",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRecalculateAllBalancesRepairsCorruption(t *testing.T) {
	ledger, _, db := newTestEngine(t)
	fx := seedLedgerFixtures(t, db)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		entry, err := ledger.CreateEntry(ctx, CreateEntryInput{
			CustomerID:      fx.CustomerID,
			VariantID:       &fx.VariantID,
			TransactionDate: day(i),
			TransactionType: models.TxSale,
			FilledOut:       2,
			TotalAmount:     dec(20),
		})
		require.NoError(t, err)
		ids = append(ids, entry.ID)
	}

	// corrupt the denormalized columns directly
	require.NoError(t, db.Model(&models.LedgerEntry{}).
		Where("id IN ?", ids[2:]).
		Updates(map[string]interface{}{"balance": 999, "due_amount": 999}).Error)

	result, err := ledger.RecalculateAllBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BalanceChains)
	assert.Equal(t, 1, result.DueChains)
	assert.Equal(t, int64(6), result.EntriesUpdated)

	for i, id := range ids {
		var entry models.LedgerEntry
		require.NoError(t, db.First(&entry, id).Error)
		assert.Equal(t, int32(2*(i+1)), entry.Balance, fmt.Sprintf("entry %d", i))
		assert.True(t, entry.DueAmount.Equal(decimal.NewFromInt(int64(20*(i+1)))))
	}
}
