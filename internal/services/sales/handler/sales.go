package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"gastra-system/config"
	"gastra-system/internal/apperrors"
	"gastra-system/internal/database/models"
	invhandler "gastra-system/internal/services/inventory/handler"
	ledgerhandler "gastra-system/internal/services/ledger/handler"
	"gastra-system/internal/utils"
)

const (
	SALE_CACHE_PREFIX = "sales:sale:"
	SALES_CACHE_KEY   = "sales:list"
)

// SalesHandler composes the two engines: a sale decrements warehouse
// filled stock and posts one ledger entry per line item.
type SalesHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	ledger    *ledgerhandler.LedgerHandler
	inventory *invhandler.InventoryHandler
}

func NewSalesHandler(db *gorm.DB, redisClient *redis.Client, ledger *ledgerhandler.LedgerHandler, inventory *invhandler.InventoryHandler) *SalesHandler {
	return &SalesHandler{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		inventory: inventory,
	}
}

type SaleItemInput struct {
	VariantID        int32
	Quantity         int32
	EmptiesCollected int32
	UnitPrice        decimal.Decimal
}

type CreateSaleInput struct {
	CustomerID     int64
	WarehouseID    int32
	SaleDate       time.Time
	Items          []SaleItemInput
	AmountReceived decimal.Decimal
	PaymentTypeID  *int32
	BankAccountID  *int64
	Notes          *string
	CreatedBy      int64
}

func (s *SalesHandler) validateCreate(in CreateSaleInput) error {
	if len(in.Items) == 0 {
		return &apperrors.ValidationError{Field: "items", Message: "at least one item is required"}
	}
	seen := make(map[int32]bool, len(in.Items))
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return &apperrors.ValidationError{Field: "quantity", Message: "must be positive"}
		}
		if item.EmptiesCollected < 0 {
			return &apperrors.ValidationError{Field: "empties_collected", Message: "must not be negative"}
		}
		if item.UnitPrice.IsNegative() {
			return &apperrors.ValidationError{Field: "unit_price", Message: "must not be negative"}
		}
		if seen[item.VariantID] {
			return &apperrors.ValidationError{Field: "variant_id", Message: fmt.Sprintf("variant %d appears twice", item.VariantID)}
		}
		seen[item.VariantID] = true
	}
	if in.AmountReceived.IsNegative() {
		return &apperrors.ValidationError{Field: "amount_received", Message: "must not be negative"}
	}
	return nil
}

// CreateSale persists the sale with its items and decrements warehouse
// filled stock in one transaction, then posts the per-item ledger
// entries. The sale's money rides on the first item's entry so the due
// chain sees it exactly once; remaining items post quantities only.
func (s *SalesHandler) CreateSale(ctx context.Context, in CreateSaleInput) (*models.Sale, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	var totalAmount decimal.Decimal
	items := make([]models.SaleItem, 0, len(in.Items))
	for _, item := range in.Items {
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt32(item.Quantity))
		totalAmount = totalAmount.Add(lineTotal)
		items = append(items, models.SaleItem{
			VariantID:        item.VariantID,
			Quantity:         item.Quantity,
			EmptiesCollected: item.EmptiesCollected,
			UnitPrice:        item.UnitPrice,
			LineTotal:        lineTotal,
		})
	}
	if in.AmountReceived.GreaterThan(totalAmount) {
		return nil, &apperrors.ValidationError{Field: "amount_received", Message: "exceeds sale total"}
	}

	sale := models.Sale{
		SaleNumber:     generateSaleNumber(in.SaleDate),
		CustomerID:     in.CustomerID,
		WarehouseID:    in.WarehouseID,
		SaleDate:       in.SaleDate,
		Status:         models.SaleStatusOpen,
		TotalAmount:    totalAmount,
		AmountReceived: in.AmountReceived,
		PaymentTypeID:  in.PaymentTypeID,
		BankAccountID:  in.BankAccountID,
		Notes:          in.Notes,
		Items:          items,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sale).Error; err != nil {
			return err
		}
		refType := models.RefTypeSale
		for _, item := range sale.Items {
			if err := s.inventory.AdjustWithMovementTx(tx, in.WarehouseID, item.VariantID,
				-item.Quantity, 0, models.MovementOut, &sale.ID, &refType); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Ledger posting happens after the sale commit so the entries can
	// resolve the sale number. The duplicate guard on (customer, variant,
	// sale) makes a retried posting idempotent.
	refType := models.RefTypeSale
	policy := s.ledger.Policy()
	for i, item := range sale.Items {
		entryIn := ledgerhandler.CreateEntryInput{
			CustomerID:      in.CustomerID,
			WarehouseID:     &in.WarehouseID,
			VariantID:       &sale.Items[i].VariantID,
			TransactionDate: in.SaleDate,
			TransactionType: models.TxSale,
			RefID:           &sale.ID,
			RefType:         &refType,
			FilledOut:       item.Quantity,
			EmptyIn:         item.EmptiesCollected,
			PaymentTypeID:   in.PaymentTypeID,
			BankAccountID:   in.BankAccountID,
		}
		if i == 0 {
			entryIn.TotalAmount = &totalAmount
			entryIn.AmountReceived = &in.AmountReceived
		}
		err := utils.WithRetry(ctx, policy.RetryAttempts, policy.RetryBackoff, func() error {
			_, err := s.ledger.CreateEntry(ctx, entryIn)
			return err
		})
		if err != nil {
			config.GetLogger().
				WithField("saleId", sale.ID).
				Error("sale committed but ledger posting failed: " + err.Error())
			return nil, fmt.Errorf("sale %s created but ledger posting failed: %w", sale.SaleNumber, err)
		}
	}

	s.invalidateSaleCaches(ctx, sale.ID)
	return &sale, nil
}

// VoidSale reverses a sale: every ledger entry it posted is zeroed
// through the engine's edit path, which recalculates both chains and
// returns the cylinders to the warehouse. A void that would break a
// downstream entry is rejected the same way a bad edit is.
func (s *SalesHandler) VoidSale(ctx context.Context, saleID int64, reason string) (*models.Sale, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status == models.SaleStatusVoided {
		return nil, &apperrors.ValidationError{Field: "status", Message: "sale is already voided"}
	}
	if reason == "" {
		reason = "sale " + sale.SaleNumber + " voided"
	}

	var entries []models.LedgerEntry
	err = s.db.WithContext(ctx).
		Where("ref_id = ? AND ref_type = ?", saleID, models.RefTypeSale).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	zero := decimal.Zero
	zeroQty := int32(0)
	for _, entry := range entries {
		_, err := s.ledger.UpdateEntry(ctx, entry.ID, ledgerhandler.UpdateEntryInput{
			FilledOut:      &zeroQty,
			EmptyIn:        &zeroQty,
			TotalAmount:    &zero,
			AmountReceived: &zero,
			UpdateReason:   reason,
		})
		if err != nil {
			return nil, fmt.Errorf("voiding sale %s: %w", sale.SaleNumber, err)
		}
	}

	err = s.db.WithContext(ctx).Model(&models.Sale{}).
		Where("id = ?", saleID).
		Update("status", models.SaleStatusVoided).Error
	if err != nil {
		return nil, err
	}

	s.invalidateSaleCaches(ctx, saleID)
	return s.GetSale(ctx, saleID)
}

func (s *SalesHandler) GetSale(ctx context.Context, saleID int64) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Items").
		Preload("Items.Variant").
		First(&sale, saleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: sale %d", apperrors.ErrNotFound, saleID)
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *SalesHandler) ListSales(ctx context.Context, customerID *int64, page, pageSize int) ([]models.Sale, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	query := s.db.WithContext(ctx).Model(&models.Sale{})
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var sales []models.Sale
	err := query.Preload("Items").
		Order("sale_date DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&sales).Error
	if err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func (s *SalesHandler) invalidateSaleCaches(ctx context.Context, saleID int64) {
	if s.redis == nil {
		return
	}
	cacheKey := fmt.Sprintf("%s%d", SALE_CACHE_PREFIX, saleID)
	if err := s.redis.Del(ctx, cacheKey, SALES_CACHE_KEY).Err(); err != nil {
		config.GetLogger().WithField("cacheKey", cacheKey).Warn("failed to invalidate sale cache: " + err.Error())
	}
}

func generateSaleNumber(saleDate time.Time) string {
	return fmt.Sprintf("SALE-%s-%d", saleDate.Format("20060102"), time.Now().UnixNano()%1000000)
}
