package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gastra-system/config"
	"gastra-system/internal/apperrors"
	"gastra-system/internal/database/models"
)

const (
	STOCK_CACHE_PREFIX    = "inventory:stock:"
	STOCKS_CACHE_KEY      = "inventory:stocks"
	LOW_STOCK_CACHE_KEY   = "inventory:low-stock"
	STOCK_CACHE_TTL_SHORT = 5 * time.Minute
)

// InventoryHandler owns the per-(warehouse, variant) filled/empty counters.
// Every mutation is a guarded single-statement update that bumps the row
// version; the guard keeps either quantity from going negative, so a
// concurrent pair of writers can never lose an update or drive a counter
// below zero.
type InventoryHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewInventoryHandler(db *gorm.DB, redisClient *redis.Client) *InventoryHandler {
	return &InventoryHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *InventoryHandler) InvalidateStockCaches(ctx context.Context, warehouseID, variantID int32) {
	if s.redis == nil {
		return
	}
	cacheKey := fmt.Sprintf("%s%d:%d", STOCK_CACHE_PREFIX, warehouseID, variantID)
	if err := s.redis.Del(ctx, cacheKey, STOCKS_CACHE_KEY, LOW_STOCK_CACHE_KEY).Err(); err != nil {
		logger := config.GetLogger()
		logger.WithField("cacheKey", cacheKey).Warn("failed to invalidate stock cache: " + err.Error())
	}
}

// GetOrCreateStock returns the counter row for (warehouse, variant),
// creating it with zero quantities on first reference. Supplier receipts
// and first sales must not require pre-provisioning.
func (s *InventoryHandler) GetOrCreateStock(ctx context.Context, warehouseID, variantID int32) (*models.InventoryStock, error) {
	var stock *models.InventoryStock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stock, err = getOrCreateStockTx(tx, warehouseID, variantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stock, nil
}

func getOrCreateStockTx(tx *gorm.DB, warehouseID, variantID int32) (*models.InventoryStock, error) {
	stock := models.InventoryStock{
		WarehouseID: warehouseID,
		VariantID:   variantID,
		LastUpdated: time.Now(),
	}
	result := tx.Where("warehouse_id = ? AND variant_id = ?", warehouseID, variantID).
		FirstOrCreate(&stock)
	if result.Error != nil {
		return nil, result.Error
	}
	return &stock, nil
}

// AdjustStockTx applies filled/empty deltas to one counter inside the
// caller's transaction. The WHERE guard makes the negativity check and the
// write a single atomic statement; zero rows affected means the guard
// refused the write.
func (s *InventoryHandler) AdjustStockTx(tx *gorm.DB, warehouseID, variantID int32, filledDelta, emptyDelta int32) error {
	if filledDelta == 0 && emptyDelta == 0 {
		return nil
	}
	if _, err := getOrCreateStockTx(tx, warehouseID, variantID); err != nil {
		return err
	}

	result := tx.Model(&models.InventoryStock{}).
		Where("warehouse_id = ? AND variant_id = ? AND filled_qty + ? >= 0 AND empty_qty + ? >= 0",
			warehouseID, variantID, filledDelta, emptyDelta).
		Updates(map[string]interface{}{
			"filled_qty":   gorm.Expr("filled_qty + ?", filledDelta),
			"empty_qty":    gorm.Expr("empty_qty + ?", emptyDelta),
			"version":      gorm.Expr("version + 1"),
			"last_updated": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var stock models.InventoryStock
		if err := tx.Where("warehouse_id = ? AND variant_id = ?", warehouseID, variantID).
			First(&stock).Error; err != nil {
			return err
		}
		if filledDelta < 0 && stock.FilledQty+filledDelta < 0 {
			return &apperrors.InsufficientStockError{
				WarehouseID: warehouseID,
				VariantID:   variantID,
				Bucket:      "filled",
				Requested:   -filledDelta,
				Available:   stock.FilledQty,
			}
		}
		return &apperrors.InsufficientStockError{
			WarehouseID: warehouseID,
			VariantID:   variantID,
			Bucket:      "empty",
			Requested:   -emptyDelta,
			Available:   stock.EmptyQty,
		}
	}
	return nil
}

// AdjustWithMovementTx is AdjustStockTx plus the audit movement row, for
// callers that bundle a counter change into their own transaction.
func (s *InventoryHandler) AdjustWithMovementTx(tx *gorm.DB, warehouseID, variantID int32, filledDelta, emptyDelta int32, movementType models.MovementType, refID *int64, refType *string) error {
	if err := s.AdjustStockTx(tx, warehouseID, variantID, filledDelta, emptyDelta); err != nil {
		return err
	}
	return recordMovement(tx, warehouseID, variantID, movementType, filledDelta, emptyDelta, refID, refType, nil, 0)
}

func (s *InventoryHandler) adjust(ctx context.Context, warehouseID, variantID int32, filledDelta, emptyDelta int32, movementType models.MovementType, refID *int64, refType *string, createdBy int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.AdjustStockTx(tx, warehouseID, variantID, filledDelta, emptyDelta); err != nil {
			return err
		}
		return recordMovement(tx, warehouseID, variantID, movementType, filledDelta, emptyDelta, refID, refType, nil, createdBy)
	})
	if err != nil {
		return err
	}
	s.InvalidateStockCaches(ctx, warehouseID, variantID)
	return nil
}

func (s *InventoryHandler) IncrementFilled(ctx context.Context, warehouseID, variantID int32, qty int32, createdBy int64) error {
	if qty < 0 {
		return &apperrors.ValidationError{Field: "qty", Message: "must not be negative"}
	}
	return s.adjust(ctx, warehouseID, variantID, qty, 0, models.MovementIn, nil, nil, createdBy)
}

func (s *InventoryHandler) IncrementEmpty(ctx context.Context, warehouseID, variantID int32, qty int32, createdBy int64) error {
	if qty < 0 {
		return &apperrors.ValidationError{Field: "qty", Message: "must not be negative"}
	}
	return s.adjust(ctx, warehouseID, variantID, 0, qty, models.MovementIn, nil, nil, createdBy)
}

// DecrementFilledWithCheck fails with InsufficientStock instead of letting
// the filled counter go negative.
func (s *InventoryHandler) DecrementFilledWithCheck(ctx context.Context, warehouseID, variantID int32, qty int32, createdBy int64) error {
	if qty < 0 {
		return &apperrors.ValidationError{Field: "qty", Message: "must not be negative"}
	}
	return s.adjust(ctx, warehouseID, variantID, -qty, 0, models.MovementOut, nil, nil, createdBy)
}

func (s *InventoryHandler) DecrementEmptyWithCheck(ctx context.Context, warehouseID, variantID int32, qty int32, createdBy int64) error {
	if qty < 0 {
		return &apperrors.ValidationError{Field: "qty", Message: "must not be negative"}
	}
	return s.adjust(ctx, warehouseID, variantID, 0, -qty, models.MovementOut, nil, nil, createdBy)
}

func recordMovement(tx *gorm.DB, warehouseID, variantID int32, movementType models.MovementType, filledDelta, emptyDelta int32, refID *int64, refType *string, notes *string, createdBy int64) error {
	movement := models.StockMovement{
		WarehouseID:  warehouseID,
		VariantID:    variantID,
		MovementType: movementType,
		FilledDelta:  filledDelta,
		EmptyDelta:   emptyDelta,
		RefID:        refID,
		RefType:      refType,
		Notes:        notes,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now(),
	}
	return tx.Create(&movement).Error
}

type TransferInput struct {
	FromWarehouseID int32
	ToWarehouseID   int32
	VariantID       int32
	FilledQty       int32
	EmptyQty        int32
	TransferredBy   int64
	Notes           *string
}

// TransferStock moves filled/empty cylinders between warehouses. Both
// counters and both movement rows commit in one transaction; an
// insufficient source aborts the whole transfer.
func (s *InventoryHandler) TransferStock(ctx context.Context, in TransferInput) error {
	if in.FromWarehouseID == in.ToWarehouseID {
		return &apperrors.ValidationError{Field: "to_warehouse_id", Message: "cannot transfer to the same warehouse"}
	}
	if in.FilledQty < 0 || in.EmptyQty < 0 {
		return &apperrors.ValidationError{Field: "qty", Message: "must not be negative"}
	}
	if in.FilledQty == 0 && in.EmptyQty == 0 {
		return &apperrors.ValidationError{Field: "qty", Message: "nothing to transfer"}
	}

	refType := models.RefTypeTransfer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.AdjustStockTx(tx, in.FromWarehouseID, in.VariantID, -in.FilledQty, -in.EmptyQty); err != nil {
			return err
		}
		if err := s.AdjustStockTx(tx, in.ToWarehouseID, in.VariantID, in.FilledQty, in.EmptyQty); err != nil {
			return err
		}
		if err := recordMovement(tx, in.FromWarehouseID, in.VariantID, models.MovementTransfer,
			-in.FilledQty, -in.EmptyQty, nil, &refType, in.Notes, in.TransferredBy); err != nil {
			return err
		}
		return recordMovement(tx, in.ToWarehouseID, in.VariantID, models.MovementTransfer,
			in.FilledQty, in.EmptyQty, nil, &refType, in.Notes, in.TransferredBy)
	})
	if err != nil {
		return err
	}
	s.InvalidateStockCaches(ctx, in.FromWarehouseID, in.VariantID)
	s.InvalidateStockCaches(ctx, in.ToWarehouseID, in.VariantID)
	return nil
}

type SupplierReceiptInput struct {
	SupplierID  int32
	WarehouseID int32
	VariantID   int32
	FilledQty   int32
	EmptyQty    int32
	ReceivedBy  int64
	Notes       *string
}

// ReceiveSupplierStock books a supplier delivery into the warehouse
// counters. The counter row is created lazily so a first delivery of a new
// variant needs no setup.
func (s *InventoryHandler) ReceiveSupplierStock(ctx context.Context, in SupplierReceiptInput) error {
	if in.FilledQty < 0 || in.EmptyQty < 0 {
		return &apperrors.ValidationError{Field: "qty", Message: "must not be negative"}
	}
	if in.FilledQty == 0 && in.EmptyQty == 0 {
		return &apperrors.ValidationError{Field: "qty", Message: "nothing to receive"}
	}

	var supplier models.Supplier
	if err := s.db.WithContext(ctx).First(&supplier, in.SupplierID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: supplier %d", apperrors.ErrNotFound, in.SupplierID)
		}
		return err
	}

	refType := models.RefTypeSupplier
	refID := int64(in.SupplierID)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.AdjustStockTx(tx, in.WarehouseID, in.VariantID, in.FilledQty, in.EmptyQty); err != nil {
			return err
		}
		return recordMovement(tx, in.WarehouseID, in.VariantID, models.MovementIn,
			in.FilledQty, in.EmptyQty, &refID, &refType, in.Notes, in.ReceivedBy)
	})
	if err != nil {
		return err
	}
	s.InvalidateStockCaches(ctx, in.WarehouseID, in.VariantID)
	return nil
}

func (s *InventoryHandler) GetStock(ctx context.Context, warehouseID, variantID int32) (*models.InventoryStock, error) {
	var stock models.InventoryStock
	err := s.db.WithContext(ctx).
		Where("warehouse_id = ? AND variant_id = ?", warehouseID, variantID).
		First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: stock for warehouse %d variant %d", apperrors.ErrNotFound, warehouseID, variantID)
	}
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

func (s *InventoryHandler) ListStocks(ctx context.Context, warehouseID *int32) ([]models.InventoryStock, error) {
	var stocks []models.InventoryStock
	query := s.db.WithContext(ctx).Preload("Warehouse").Preload("Variant")
	if warehouseID != nil && *warehouseID != 0 {
		query = query.Where("warehouse_id = ?", *warehouseID)
	}
	if err := query.Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
}

func (s *InventoryHandler) ListLowStock(ctx context.Context, threshold int32) ([]models.InventoryStock, error) {
	var stocks []models.InventoryStock
	err := s.db.WithContext(ctx).
		Preload("Warehouse").Preload("Variant").
		Where("filled_qty <= ?", threshold).
		Find(&stocks).Error
	if err != nil {
		return nil, err
	}
	return stocks, nil
}

func (s *InventoryHandler) ListMovements(ctx context.Context, warehouseID, variantID *int32, limit int) ([]models.StockMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	var movements []models.StockMovement
	query := s.db.WithContext(ctx).Model(&models.StockMovement{})
	if warehouseID != nil && *warehouseID != 0 {
		query = query.Where("warehouse_id = ?", *warehouseID)
	}
	if variantID != nil && *variantID != 0 {
		query = query.Where("variant_id = ?", *variantID)
	}
	if err := query.Order("created_at DESC").Limit(limit).Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
