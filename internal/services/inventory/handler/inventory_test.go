package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gastra-system/internal/apperrors"
	"gastra-system/internal/database"
	"gastra-system/internal/database/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive and
	// serializes concurrent test writers the way postgres row locks would
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.MigrateLedgerDB(db))
	return db
}

func seedWarehouseVariant(t *testing.T, db *gorm.DB) (int32, int32) {
	t.Helper()
	warehouse := models.Warehouse{WarehouseCode: "WH-MAIN", WarehouseName: "Main Depot", IsActive: true}
	require.NoError(t, db.Create(&warehouse).Error)
	variant := models.Variant{VariantCode: "LPG-14KG", VariantName: "14kg Cylinder", IsActive: true}
	require.NoError(t, db.Create(&variant).Error)
	return warehouse.ID, variant.ID
}

func TestGetOrCreateStockLazyRow(t *testing.T) {
	db := newTestDB(t)
	warehouseID, variantID := seedWarehouseVariant(t, db)
	h := NewInventoryHandler(db, nil)

	stock, err := h.GetOrCreateStock(context.Background(), warehouseID, variantID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), stock.FilledQty)
	assert.Equal(t, int32(0), stock.EmptyQty)

	again, err := h.GetOrCreateStock(context.Background(), warehouseID, variantID)
	require.NoError(t, err)
	assert.Equal(t, stock.ID, again.ID)
}

func TestIncrementAndDecrement(t *testing.T) {
	db := newTestDB(t)
	warehouseID, variantID := seedWarehouseVariant(t, db)
	h := NewInventoryHandler(db, nil)
	ctx := context.Background()

	require.NoError(t, h.IncrementFilled(ctx, warehouseID, variantID, 10, 1))
	require.NoError(t, h.DecrementFilledWithCheck(ctx, warehouseID, variantID, 4, 1))

	stock, err := h.GetStock(ctx, warehouseID, variantID)
	require.NoError(t, err)
	assert.Equal(t, int32(6), stock.FilledQty)
	assert.Equal(t, int64(2), stock.Version)
}

func TestDecrementBelowZeroRejected(t *testing.T) {
	db := newTestDB(t)
	warehouseID, variantID := seedWarehouseVariant(t, db)
	h := NewInventoryHandler(db, nil)
	ctx := context.Background()

	require.NoError(t, h.IncrementFilled(ctx, warehouseID, variantID, 3, 1))

	err := h.DecrementFilledWithCheck(ctx, warehouseID, variantID, 5, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	var stockErr *apperrors.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int32(3), stockErr.Available)
	assert.Equal(t, int32(5), stockErr.Requested)

	stock, err := h.GetStock(ctx, warehouseID, variantID)
	require.NoError(t, err)
	assert.Equal(t, int32(3), stock.FilledQty)
}

func TestConcurrentIncrementsAllLand(t *testing.T) {
	db := newTestDB(t)
	warehouseID, variantID := seedWarehouseVariant(t, db)
	h := NewInventoryHandler(db, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.IncrementFilled(ctx, warehouseID, variantID, 1, 1))
		}()
	}
	wg.Wait()

	stock, err := h.GetStock(ctx, warehouseID, variantID)
	require.NoError(t, err)
	assert.Equal(t, int32(25), stock.FilledQty)
	assert.Equal(t, int64(25), stock.Version)
}

func TestTransferStock(t *testing.T) {
	db := newTestDB(t)
	warehouseID, variantID := seedWarehouseVariant(t, db)
	other := models.Warehouse{WarehouseCode: "WH-BRANCH", WarehouseName: "Branch Depot", IsActive: true}
	require.NoError(t, db.Create(&other).Error)
	h := NewInventoryHandler(db, nil)
	ctx := context.Background()

	require.NoError(t, h.IncrementFilled(ctx, warehouseID, variantID, 10, 1))

	err := h.TransferStock(ctx, TransferInput{
		FromWarehouseID: warehouseID,
		ToWarehouseID:   other.ID,
		VariantID:       variantID,
		FilledQty:       4,
		TransferredBy:   1,
	})
	require.NoError(t, err)

	from, err := h.GetStock(ctx, warehouseID, variantID)
	require.NoError(t, err)
	to, err := h.GetStock(ctx, other.ID, variantID)
	require.NoError(t, err)
	assert.Equal(t, int32(6), from.FilledQty)
	assert.Equal(t, int32(4), to.FilledQty)

	movements, err := h.ListMovements(ctx, nil, &variantID, 10)
	require.NoError(t, err)
	assert.Len(t, movements, 3)
}

func TestTransferInsufficientSourceAborts(t *testing.T) {
	db := newTestDB(t)
	warehouseID, variantID := seedWarehouseVariant(t, db)
	other := models.Warehouse{WarehouseCode: "WH-BRANCH", WarehouseName: "Branch Depot", IsActive: true}
	require.NoError(t, db.Create(&other).Error)
	h := NewInventoryHandler(db, nil)
	ctx := context.Background()

	require.NoError(t, h.IncrementFilled(ctx, warehouseID, variantID, 2, 1))

	err := h.TransferStock(ctx, TransferInput{
		FromWarehouseID: warehouseID,
		ToWarehouseID:   other.ID,
		VariantID:       variantID,
		FilledQty:       5,
		TransferredBy:   1,
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	// destination row must not have been touched
	to, err := h.GetOrCreateStock(ctx, other.ID, variantID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), to.FilledQty)
}

func TestReceiveSupplierStock(t *testing.T) {
	db := newTestDB(t)
	warehouseID, variantID := seedWarehouseVariant(t, db)
	supplier := models.Supplier{SupplierCode: "SUP-001", SupplierName: "Gas Co", IsActive: true}
	require.NoError(t, db.Create(&supplier).Error)
	h := NewInventoryHandler(db, nil)
	ctx := context.Background()

	err := h.ReceiveSupplierStock(ctx, SupplierReceiptInput{
		SupplierID:  supplier.ID,
		WarehouseID: warehouseID,
		VariantID:   variantID,
		FilledQty:   50,
		ReceivedBy:  1,
	})
	require.NoError(t, err)

	stock, err := h.GetStock(ctx, warehouseID, variantID)
	require.NoError(t, err)
	assert.Equal(t, int32(50), stock.FilledQty)
	assert.WithinDuration(t, time.Now(), stock.LastUpdated, time.Minute)
}

func TestReceiveUnknownSupplier(t *testing.T) {
	db := newTestDB(t)
	warehouseID, variantID := seedWarehouseVariant(t, db)
	h := NewInventoryHandler(db, nil)

	err := h.ReceiveSupplierStock(context.Background(), SupplierReceiptInput{
		SupplierID:  999,
		WarehouseID: warehouseID,
		VariantID:   variantID,
		FilledQty:   5,
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
