package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"gastra-system/internal/apperrors"
	"gastra-system/internal/database/models"
)

func (h *LedgerHandler) GetEntry(ctx context.Context, entryID int64) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := h.db.WithContext(ctx).
		Preload("Customer").Preload("Variant").Preload("Warehouse").
		First(&entry, entryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: ledger entry %d", apperrors.ErrNotFound, entryID)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByCustomer pages through the customer's full chain in chain order,
// oldest first, so running columns read top to bottom.
func (h *LedgerHandler) ListByCustomer(ctx context.Context, customerID int64, page, pageSize int) ([]models.LedgerEntry, int64, error) {
	return h.listEntries(ctx, h.db.WithContext(ctx).Where("customer_id = ?", customerID), page, pageSize)
}

func (h *LedgerHandler) ListByCustomerVariant(ctx context.Context, customerID int64, variantID int32, page, pageSize int) ([]models.LedgerEntry, int64, error) {
	return h.listEntries(ctx,
		h.db.WithContext(ctx).Where("customer_id = ? AND variant_id = ?", customerID, variantID),
		page, pageSize)
}

func (h *LedgerHandler) ListByDateRange(ctx context.Context, customerID *int64, from, to time.Time, page, pageSize int) ([]models.LedgerEntry, int64, error) {
	query := h.db.WithContext(ctx).Where("transaction_date >= ? AND transaction_date <= ?", from, to)
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}
	return h.listEntries(ctx, query, page, pageSize)
}

func (h *LedgerHandler) listEntries(ctx context.Context, query *gorm.DB, page, pageSize int) ([]models.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	var total int64
	if err := query.Model(&models.LedgerEntry{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []models.LedgerEntry
	err := query.Order("transaction_date ASC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// GetCurrentBalance returns the filled cylinders a customer currently
// holds for one variant. Redis read-through; a customer with no history
// holds zero.
func (h *LedgerHandler) GetCurrentBalance(ctx context.Context, customerID int64, variantID int32) (int32, error) {
	cacheKey := fmt.Sprintf("%s%d:%d", BALANCE_CACHE_PREFIX, customerID, variantID)
	if h.redis != nil {
		if cached, err := h.redis.Get(ctx, cacheKey).Result(); err == nil {
			if v, err := strconv.ParseInt(cached, 10, 32); err == nil {
				return int32(v), nil
			}
		} else if !errors.Is(err, redis.Nil) {
			logWarn("cacheKey", cacheKey, "redis read failed for balance", err)
		}
	}

	balance, err := latestBalanceTx(h.db.WithContext(ctx), customerID, variantID)
	if err != nil {
		return 0, err
	}
	if h.redis != nil {
		if err := h.redis.Set(ctx, cacheKey, strconv.FormatInt(int64(balance), 10), LEDGER_CACHE_TTL).Err(); err != nil {
			logWarn("cacheKey", cacheKey, "redis write failed for balance", err)
		}
	}
	return balance, nil
}

// GetCustomerDue returns the customer's current cumulative due across all
// variants.
func (h *LedgerHandler) GetCustomerDue(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	cacheKey := fmt.Sprintf("%s%d", DUE_CACHE_PREFIX, customerID)
	if h.redis != nil {
		if cached, err := h.redis.Get(ctx, cacheKey).Result(); err == nil {
			if d, err := decimal.NewFromString(cached); err == nil {
				return d, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			logWarn("cacheKey", cacheKey, "redis read failed for due", err)
		}
	}

	due, err := latestDueTx(h.db.WithContext(ctx), customerID)
	if err != nil {
		return decimal.Zero, err
	}
	if h.redis != nil {
		if err := h.redis.Set(ctx, cacheKey, due.String(), LEDGER_CACHE_TTL).Err(); err != nil {
			logWarn("cacheKey", cacheKey, "redis write failed for due", err)
		}
	}
	return due, nil
}

// GetCustomerPreviousDue reads the due off the newest entry by id alone,
// ignoring the business date. Kept for parity with the reports that were
// built on insertion order; chain math itself always orders by
// (transaction_date, id).
func (h *LedgerHandler) GetCustomerPreviousDue(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	var last models.LedgerEntry
	err := h.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("id DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return last.DueAmount, nil
}

// GetPendingReturnCount sums the empties a customer has handed back over
// their whole history. Note this counts cylinders already returned, not
// cylinders still out; use GetCurrentBalance for what the customer holds.
func (h *LedgerHandler) GetPendingReturnCount(ctx context.Context, customerID int64) (int64, error) {
	var total int64
	err := h.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("customer_id = ?", customerID).
		Select("COALESCE(SUM(empty_in), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

type VariantBalance struct {
	VariantID   int32  `json:"variantId"`
	VariantCode string `json:"variantCode"`
	Balance     int32  `json:"balance"`
}

type CustomerSummary struct {
	CustomerID int64            `json:"customerId"`
	Name       string           `json:"name"`
	DueAmount  decimal.Decimal  `json:"dueAmount"`
	Balances   []VariantBalance `json:"balances"`
}

// GetCustomerSummary collects the current due plus every per-variant
// balance for one customer.
func (h *LedgerHandler) GetCustomerSummary(ctx context.Context, customerID int64) (*CustomerSummary, error) {
	var customer models.Customer
	if err := h.db.WithContext(ctx).First(&customer, customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: customer %d", apperrors.ErrNotFound, customerID)
		}
		return nil, err
	}

	due, err := latestDueTx(h.db.WithContext(ctx), customerID)
	if err != nil {
		return nil, err
	}

	// Walk the customer's variant entries in chain order; the last row
	// seen per variant carries that chain's current balance.
	var entries []models.LedgerEntry
	err = h.db.WithContext(ctx).
		Preload("Variant").
		Where("customer_id = ? AND variant_id IS NOT NULL", customerID).
		Order("transaction_date ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	latest := make(map[int32]VariantBalance)
	var order []int32
	for _, e := range entries {
		vid := *e.VariantID
		vb := VariantBalance{VariantID: vid, Balance: e.Balance}
		if e.Variant != nil {
			vb.VariantCode = e.Variant.VariantCode
		}
		if _, seen := latest[vid]; !seen {
			order = append(order, vid)
		}
		latest[vid] = vb
	}
	balances := make([]VariantBalance, 0, len(order))
	for _, vid := range order {
		balances = append(balances, latest[vid])
	}

	return &CustomerSummary{
		CustomerID: customerID,
		Name:       customer.CustomerName,
		DueAmount:  due,
		Balances:   balances,
	}, nil
}

func (h *LedgerHandler) ListCustomerSummaries(ctx context.Context, page, pageSize int) ([]CustomerSummary, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var total int64
	if err := h.db.WithContext(ctx).Model(&models.Customer{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var customers []models.Customer
	err := h.db.WithContext(ctx).
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&customers).Error
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]CustomerSummary, 0, len(customers))
	for _, c := range customers {
		s, err := h.GetCustomerSummary(ctx, c.ID)
		if err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, *s)
	}
	return summaries, total, nil
}
