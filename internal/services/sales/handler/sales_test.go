package handler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gastra-system/config"
	"gastra-system/internal/apperrors"
	"gastra-system/internal/database"
	"gastra-system/internal/database/models"
	"gastra-system/internal/locking"
	invhandler "gastra-system/internal/services/inventory/handler"
	ledgerhandler "gastra-system/internal/services/ledger/handler"
)

func newTestStack(t *testing.T) (*SalesHandler, *ledgerhandler.LedgerHandler, *invhandler.InventoryHandler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.MigrateLedgerDB(db))

	policy := config.LedgerPolicy{
		EditWindow:    15,
		LockWait:      2 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	}
	inventory := invhandler.NewInventoryHandler(db, nil)
	ledger := ledgerhandler.NewLedgerHandler(db, nil, locking.NewKeyLock(2*time.Second), inventory, policy)
	sales := NewSalesHandler(db, nil, ledger, inventory)
	return sales, ledger, inventory, db
}

type saleFixtures struct {
	CustomerID  int64
	WarehouseID int32
	VariantID   int32
}

func seedSaleFixtures(t *testing.T, db *gorm.DB) saleFixtures {
	t.Helper()
	customer := models.Customer{CustomerCode: "CUST-001", CustomerName: "Acme Hotel", IsActive: true}
	require.NoError(t, db.Create(&customer).Error)
	warehouse := models.Warehouse{WarehouseCode: "WH-MAIN", WarehouseName: "Main Depot", IsActive: true}
	require.NoError(t, db.Create(&warehouse).Error)
	variant := models.Variant{VariantCode: "LPG-14KG", VariantName: "14kg Cylinder", IsActive: true}
	require.NoError(t, db.Create(&variant).Error)
	return saleFixtures{CustomerID: customer.ID, WarehouseID: warehouse.ID, VariantID: variant.ID}
}

func TestCreateSalePostsLedgerAndDecrementsStock(t *testing.T) {
	sales, ledger, inventory, db := newTestStack(t)
	fx := seedSaleFixtures(t, db)
	ctx := context.Background()

	require.NoError(t, inventory.IncrementFilled(ctx, fx.WarehouseID, fx.VariantID, 20, 1))

	sale, err := sales.CreateSale(ctx, CreateSaleInput{
		CustomerID:  fx.CustomerID,
		WarehouseID: fx.WarehouseID,
		SaleDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Items: []SaleItemInput{
			{VariantID: fx.VariantID, Quantity: 3, EmptiesCollected: 1, UnitPrice: decimal.NewFromInt(50)},
		},
		AmountReceived: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sale.SaleNumber)
	assert.True(t, sale.TotalAmount.Equal(decimal.NewFromInt(150)))

	stock, err := inventory.GetStock(ctx, fx.WarehouseID, fx.VariantID)
	require.NoError(t, err)
	assert.Equal(t, int32(17), stock.FilledQty)

	balance, err := ledger.GetCurrentBalance(ctx, fx.CustomerID, fx.VariantID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), balance)

	due, err := ledger.GetCustomerDue(ctx, fx.CustomerID)
	require.NoError(t, err)
	assert.True(t, due.Equal(decimal.NewFromInt(50)))

	entries, total, err := ledger.ListByCustomer(ctx, fx.CustomerID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.NotNil(t, entries[0].TransactionReference)
	assert.Equal(t, sale.SaleNumber, *entries[0].TransactionReference)
}

func TestCreateSaleMoneyRidesFirstItemOnly(t *testing.T) {
	sales, ledger, inventory, db := newTestStack(t)
	fx := seedSaleFixtures(t, db)
	second := models.Variant{VariantCode: "LPG-5KG", VariantName: "5kg Cylinder", IsActive: true}
	require.NoError(t, db.Create(&second).Error)
	ctx := context.Background()

	require.NoError(t, inventory.IncrementFilled(ctx, fx.WarehouseID, fx.VariantID, 10, 1))
	require.NoError(t, inventory.IncrementFilled(ctx, fx.WarehouseID, second.ID, 10, 1))

	_, err := sales.CreateSale(ctx, CreateSaleInput{
		CustomerID:  fx.CustomerID,
		WarehouseID: fx.WarehouseID,
		SaleDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Items: []SaleItemInput{
			{VariantID: fx.VariantID, Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
			{VariantID: second.ID, Quantity: 4, UnitPrice: decimal.NewFromInt(25)},
		},
	})
	require.NoError(t, err)

	// one entry per variant, but the due grows by the sale total exactly once
	entries, total, err := ledger.ListByCustomer(ctx, fx.CustomerID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	due, err := ledger.GetCustomerDue(ctx, fx.CustomerID)
	require.NoError(t, err)
	assert.True(t, due.Equal(decimal.NewFromInt(200)))

	assert.True(t, entries[0].TotalAmount.Equal(decimal.NewFromInt(200)))
	assert.True(t, entries[1].TotalAmount.Equal(decimal.Zero))
}

func TestCreateSaleInsufficientStock(t *testing.T) {
	sales, _, inventory, db := newTestStack(t)
	fx := seedSaleFixtures(t, db)
	ctx := context.Background()

	require.NoError(t, inventory.IncrementFilled(ctx, fx.WarehouseID, fx.VariantID, 2, 1))

	_, err := sales.CreateSale(ctx, CreateSaleInput{
		CustomerID:  fx.CustomerID,
		WarehouseID: fx.WarehouseID,
		SaleDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Items: []SaleItemInput{
			{VariantID: fx.VariantID, Quantity: 5, UnitPrice: decimal.NewFromInt(50)},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	// the sale must not exist and the stock must be untouched
	var count int64
	require.NoError(t, db.Model(&models.Sale{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	stock, err := inventory.GetStock(ctx, fx.WarehouseID, fx.VariantID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), stock.FilledQty)
}

func TestCreateSaleValidation(t *testing.T) {
	sales, _, _, db := newTestStack(t)
	fx := seedSaleFixtures(t, db)
	ctx := context.Background()

	_, err := sales.CreateSale(ctx, CreateSaleInput{
		CustomerID:  fx.CustomerID,
		WarehouseID: fx.WarehouseID,
		SaleDate:    time.Now(),
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = sales.CreateSale(ctx, CreateSaleInput{
		CustomerID:  fx.CustomerID,
		WarehouseID: fx.WarehouseID,
		SaleDate:    time.Now(),
		Items: []SaleItemInput{
			{VariantID: fx.VariantID, Quantity: 1, UnitPrice: decimal.NewFromInt(50)},
		},
		AmountReceived: decimal.NewFromInt(500),
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestVoidSaleReversesLedgerAndStock(t *testing.T) {
	sales, ledger, inventory, db := newTestStack(t)
	fx := seedSaleFixtures(t, db)
	ctx := context.Background()

	require.NoError(t, inventory.IncrementFilled(ctx, fx.WarehouseID, fx.VariantID, 10, 1))

	sale, err := sales.CreateSale(ctx, CreateSaleInput{
		CustomerID:  fx.CustomerID,
		WarehouseID: fx.WarehouseID,
		SaleDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Items: []SaleItemInput{
			{VariantID: fx.VariantID, Quantity: 4, UnitPrice: decimal.NewFromInt(50)},
		},
	})
	require.NoError(t, err)

	voided, err := sales.VoidSale(ctx, sale.ID, "customer cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusVoided, voided.Status)

	stock, err := inventory.GetStock(ctx, fx.WarehouseID, fx.VariantID)
	require.NoError(t, err)
	assert.Equal(t, int32(10), stock.FilledQty)

	balance, err := ledger.GetCurrentBalance(ctx, fx.CustomerID, fx.VariantID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), balance)

	due, err := ledger.GetCustomerDue(ctx, fx.CustomerID)
	require.NoError(t, err)
	assert.True(t, due.Equal(decimal.Zero))

	_, err = sales.VoidSale(ctx, sale.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestGetAndListSales(t *testing.T) {
	sales, _, inventory, db := newTestStack(t)
	fx := seedSaleFixtures(t, db)
	ctx := context.Background()

	require.NoError(t, inventory.IncrementFilled(ctx, fx.WarehouseID, fx.VariantID, 10, 1))

	created, err := sales.CreateSale(ctx, CreateSaleInput{
		CustomerID:  fx.CustomerID,
		WarehouseID: fx.WarehouseID,
		SaleDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Items: []SaleItemInput{
			{VariantID: fx.VariantID, Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
		},
	})
	require.NoError(t, err)

	fetched, err := sales.GetSale(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.SaleNumber, fetched.SaleNumber)
	require.Len(t, fetched.Items, 1)
	assert.Equal(t, int32(2), fetched.Items[0].Quantity)

	list, total, err := sales.ListSales(ctx, &fx.CustomerID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	_, err = sales.GetSale(ctx, 9999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
