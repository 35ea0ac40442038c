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
	"gastra-system/internal/ledger/calculator"
	"gastra-system/internal/locking"
	invhandler "gastra-system/internal/services/inventory/handler"
)

const (
	BALANCE_CACHE_PREFIX = "ledger:balance:"
	DUE_CACHE_PREFIX     = "ledger:due:"
	SUMMARY_CACHE_PREFIX = "ledger:summary:"
	LEDGER_CACHE_TTL     = 5 * time.Minute
)

// LedgerHandler is the ledger consistency engine. It owns entry creation,
// balance/due computation, and chain recalculation on edit. All chain
// reads and writes happen under key-scoped locks: the customer lock
// serializes due computation across variants, the customer+variant lock
// serializes one cylinder-balance chain. Locks are always taken in that
// order.
type LedgerHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	locker    locking.Locker
	inventory *invhandler.InventoryHandler
	policy    config.LedgerPolicy
}

func NewLedgerHandler(db *gorm.DB, redisClient *redis.Client, locker locking.Locker, inventory *invhandler.InventoryHandler, policy config.LedgerPolicy) *LedgerHandler {
	return &LedgerHandler{
		db:        db,
		redis:     redisClient,
		locker:    locker,
		inventory: inventory,
		policy:    policy,
	}
}

// Policy exposes the engine's business constants to composing services.
func (h *LedgerHandler) Policy() config.LedgerPolicy {
	return h.policy
}

// CreateEntryInput collapses the historical create overloads into one
// shape: nil means "not supplied", which is distinct from an explicit
// zero amount.
type CreateEntryInput struct {
	CustomerID      int64
	WarehouseID     *int32
	VariantID       *int32
	TransactionDate time.Time
	TransactionType models.TransactionType
	RefID           *int64
	RefType         *string
	FilledOut       int32
	EmptyIn         int32
	TotalAmount     *decimal.Decimal
	AmountReceived  *decimal.Decimal
	PaymentTypeID   *int32
	BankAccountID   *int64
}

func (h *LedgerHandler) validateCreate(ctx context.Context, in CreateEntryInput) error {
	switch in.TransactionType {
	case models.TxInitialStock, models.TxSale, models.TxEmptyReturn, models.TxTransfer:
	case models.TxPayment:
		return &apperrors.ValidationError{Field: "transaction_type", Message: "payments go through the payment operation"}
	default:
		return &apperrors.ValidationError{Field: "transaction_type", Message: "unknown type"}
	}
	if in.FilledOut < 0 {
		return &apperrors.ValidationError{Field: "filled_out", Message: "must not be negative"}
	}
	if in.EmptyIn < 0 {
		return &apperrors.ValidationError{Field: "empty_in", Message: "must not be negative"}
	}
	if in.TotalAmount != nil && in.TotalAmount.IsNegative() {
		return &apperrors.ValidationError{Field: "total_amount", Message: "must not be negative"}
	}
	if in.AmountReceived != nil && in.AmountReceived.IsNegative() {
		return &apperrors.ValidationError{Field: "amount_received", Message: "must not be negative"}
	}
	if in.VariantID == nil {
		return &apperrors.ValidationError{Field: "variant_id", Message: "required"}
	}
	if in.TransactionType == models.TxEmptyReturn && in.WarehouseID == nil {
		return &apperrors.ValidationError{Field: "warehouse_id", Message: "required for empty returns"}
	}
	if in.TransactionType == models.TxSale && in.RefID != nil && in.RefType == nil {
		return &apperrors.ValidationError{Field: "ref_type", Message: "required when ref_id is set"}
	}

	if err := h.checkCustomer(ctx, in.CustomerID); err != nil {
		return err
	}
	var variant models.Variant
	if err := h.db.WithContext(ctx).First(&variant, *in.VariantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: variant %d", apperrors.ErrNotFound, *in.VariantID)
		}
		return err
	}
	if in.WarehouseID != nil {
		var warehouse models.Warehouse
		if err := h.db.WithContext(ctx).First(&warehouse, *in.WarehouseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: warehouse %d", apperrors.ErrNotFound, *in.WarehouseID)
			}
			return err
		}
	}
	return nil
}

func (h *LedgerHandler) checkCustomer(ctx context.Context, customerID int64) error {
	var customer models.Customer
	if err := h.db.WithContext(ctx).First(&customer, customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: customer %d", apperrors.ErrNotFound, customerID)
		}
		return err
	}
	return nil
}

// CreateEntry runs the full create path: lock, duplicate guard, balance
// and due computation, persistence, and the empty-return warehouse side
// effect, all committing together.
func (h *LedgerHandler) CreateEntry(ctx context.Context, in CreateEntryInput) (*models.LedgerEntry, error) {
	if err := h.validateCreate(ctx, in); err != nil {
		return nil, err
	}

	keys := []string{
		locking.CustomerKey(in.CustomerID),
		locking.CustomerVariantKey(in.CustomerID, *in.VariantID),
	}
	if in.TransactionType == models.TxSale && in.RefID != nil {
		keys = append(keys, locking.SaleRefKey(in.CustomerID, *in.VariantID, *in.RefID))
	}
	release, err := locking.AcquireInOrder(ctx, h.locker, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	var entry models.LedgerEntry
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.TransactionType == models.TxSale && in.RefID != nil {
			var count int64
			if err := tx.Model(&models.LedgerEntry{}).
				Where("customer_id = ? AND variant_id = ? AND ref_id = ? AND ref_type = ?",
					in.CustomerID, *in.VariantID, *in.RefID, models.RefTypeSale).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("%w: sale %d already posted for customer %d variant %d",
					apperrors.ErrDuplicateTransaction, *in.RefID, in.CustomerID, *in.VariantID)
			}
		}

		prevBalance, err := latestBalanceTx(tx, in.CustomerID, *in.VariantID)
		if err != nil {
			return err
		}
		if short := calculator.ReturnShortfall(prevBalance, in.FilledOut, in.EmptyIn); short > 0 {
			return &apperrors.InsufficientInventoryError{
				CustomerID: in.CustomerID,
				VariantID:  *in.VariantID,
				Held:       prevBalance,
				FilledOut:  in.FilledOut,
				EmptyIn:    in.EmptyIn,
			}
		}

		totalAmount := decimal.Zero
		if in.TotalAmount != nil {
			totalAmount = *in.TotalAmount
		}
		amountReceived := decimal.Zero
		if in.AmountReceived != nil {
			amountReceived = *in.AmountReceived
		}
		prevDue, err := latestDueTx(tx, in.CustomerID)
		if err != nil {
			return err
		}

		entry = models.LedgerEntry{
			CustomerID:           in.CustomerID,
			WarehouseID:          in.WarehouseID,
			VariantID:            in.VariantID,
			TransactionDate:      in.TransactionDate,
			TransactionType:      in.TransactionType,
			RefID:                in.RefID,
			RefType:              in.RefType,
			FilledOut:            in.FilledOut,
			EmptyIn:              in.EmptyIn,
			Balance:              calculator.CylinderBalance(prevBalance, in.FilledOut, in.EmptyIn),
			TotalAmount:          totalAmount,
			AmountReceived:       amountReceived,
			DueAmount:            calculator.DueAmount(prevDue, totalAmount, amountReceived),
			PaymentTypeID:        in.PaymentTypeID,
			BankAccountID:        in.BankAccountID,
			TransactionReference: h.resolveReferenceTx(tx, in.RefType, in.RefID),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		if in.TransactionType == models.TxEmptyReturn && in.EmptyIn > 0 {
			refType := models.RefTypeLedger
			if err := h.inventory.AdjustWithMovementTx(tx, *in.WarehouseID, *in.VariantID,
				0, in.EmptyIn, models.MovementIn, &entry.ID, &refType); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.InvalidateLedgerCaches(ctx, in.CustomerID, in.VariantID)
	if in.TransactionType == models.TxEmptyReturn && in.WarehouseID != nil {
		h.inventory.InvalidateStockCaches(ctx, *in.WarehouseID, *in.VariantID)
	}
	return &entry, nil
}

type PaymentInput struct {
	CustomerID      int64
	TransactionDate time.Time
	Amount          decimal.Decimal
	PaymentTypeID   *int32
	BankAccountID   *int64
}

// RecordPayment posts a PAYMENT entry: customer scope only, no variant or
// warehouse, quantities zero. Overpaying the cumulative due is rejected.
func (h *LedgerHandler) RecordPayment(ctx context.Context, in PaymentInput) (*models.LedgerEntry, error) {
	if !in.Amount.IsPositive() {
		return nil, &apperrors.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if err := h.checkCustomer(ctx, in.CustomerID); err != nil {
		return nil, err
	}

	release, err := h.locker.Acquire(ctx, locking.CustomerKey(in.CustomerID))
	if err != nil {
		return nil, err
	}
	defer release()

	var entry models.LedgerEntry
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prevDue, err := latestDueTx(tx, in.CustomerID)
		if err != nil {
			return err
		}
		if calculator.DueShortfall(prevDue, decimal.Zero, in.Amount).IsPositive() {
			return &apperrors.PaymentExceedsDueError{
				CustomerID: in.CustomerID,
				Due:        prevDue,
				Received:   in.Amount,
			}
		}
		entry = models.LedgerEntry{
			CustomerID:      in.CustomerID,
			TransactionDate: in.TransactionDate,
			TransactionType: models.TxPayment,
			TotalAmount:     decimal.Zero,
			AmountReceived:  in.Amount,
			DueAmount:       calculator.DueAmount(prevDue, decimal.Zero, in.Amount),
			PaymentTypeID:   in.PaymentTypeID,
			BankAccountID:   in.BankAccountID,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}

	h.InvalidateLedgerCaches(ctx, in.CustomerID, nil)
	return &entry, nil
}

// latestBalanceTx reads the tail of the (customer, variant) chain. Chains
// are ordered by business date first, then id as the tiebreak.
func latestBalanceTx(tx *gorm.DB, customerID int64, variantID int32) (int32, error) {
	var last models.LedgerEntry
	err := tx.Where("customer_id = ? AND variant_id = ?", customerID, variantID).
		Order("transaction_date DESC, id DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.Balance, nil
}

// latestDueTx reads the tail of the customer's all-variant chain.
func latestDueTx(tx *gorm.DB, customerID int64) (decimal.Decimal, error) {
	var last models.LedgerEntry
	err := tx.Where("customer_id = ?", customerID).
		Order("transaction_date DESC, id DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return last.DueAmount, nil
}

// resolveReferenceTx denormalizes (refType, refID) into a human-readable
// reference. Best effort: a miss is logged, never fatal.
func (h *LedgerHandler) resolveReferenceTx(tx *gorm.DB, refType *string, refID *int64) *string {
	if refType == nil || refID == nil {
		return nil
	}
	logger := config.GetLogger()
	switch *refType {
	case models.RefTypeSale:
		var sale models.Sale
		if err := tx.First(&sale, *refID).Error; err != nil {
			logger.WithField("saleId", *refID).Warn("could not resolve sale reference: " + err.Error())
			return nil
		}
		return &sale.SaleNumber
	case models.RefTypeSupplier:
		var supplier models.Supplier
		if err := tx.First(&supplier, *refID).Error; err != nil {
			logger.WithField("supplierId", *refID).Warn("could not resolve supplier reference: " + err.Error())
			return nil
		}
		return &supplier.SupplierCode
	default:
		logger.WithField("refType", *refType).Warn("unknown reference type")
		return nil
	}
}

func logWarn(field string, value interface{}, msg string, err error) {
	config.GetLogger().WithField(field, value).Warn(msg + ": " + err.Error())
}

func (h *LedgerHandler) InvalidateLedgerCaches(ctx context.Context, customerID int64, variantID *int32) {
	if h.redis == nil {
		return
	}
	keys := []string{
		fmt.Sprintf("%s%d", DUE_CACHE_PREFIX, customerID),
		fmt.Sprintf("%s%d", SUMMARY_CACHE_PREFIX, customerID),
	}
	if variantID != nil {
		keys = append(keys, fmt.Sprintf("%s%d:%d", BALANCE_CACHE_PREFIX, customerID, *variantID))
	}
	if err := h.redis.Del(ctx, keys...).Err(); err != nil {
		config.GetLogger().WithField("customerId", customerID).Warn("failed to invalidate ledger cache: " + err.Error())
	}
}
