package handler

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"gastra-system/config"
	"gastra-system/internal/database/models"
	"gastra-system/internal/ledger/calculator"
	"gastra-system/internal/locking"
)

type RecalcResult struct {
	BalanceChains  int   `json:"balanceChains"`
	DueChains      int   `json:"dueChains"`
	EntriesUpdated int64 `json:"entriesUpdated"`
}

type chainKey struct {
	CustomerID int64
	VariantID  int32
}

// RecalculateAllBalances rebuilds every running column from the raw
// quantities and amounts, repairing any drift in the denormalized chain
// state. One chain per transaction, under the chain's own locks, so
// normal traffic keeps flowing while the repair runs.
func (h *LedgerHandler) RecalculateAllBalances(ctx context.Context) (*RecalcResult, error) {
	logger := config.GetLogger()
	result := &RecalcResult{}

	var pairs []chainKey
	err := h.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Distinct("customer_id", "variant_id").
		Where("variant_id IS NOT NULL").
		Order("customer_id ASC, variant_id ASC").
		Scan(&pairs).Error
	if err != nil {
		return nil, err
	}

	for _, pair := range pairs {
		updated, err := h.recalcBalanceChain(ctx, pair.CustomerID, pair.VariantID)
		if err != nil {
			return nil, err
		}
		result.BalanceChains++
		result.EntriesUpdated += updated
	}

	var customerIDs []int64
	err = h.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Distinct("customer_id").
		Order("customer_id ASC").
		Pluck("customer_id", &customerIDs).Error
	if err != nil {
		return nil, err
	}

	for _, customerID := range customerIDs {
		updated, err := h.recalcDueChain(ctx, customerID)
		if err != nil {
			return nil, err
		}
		result.DueChains++
		result.EntriesUpdated += updated
		h.InvalidateLedgerCaches(ctx, customerID, nil)
	}

	logger.WithField("entriesUpdated", result.EntriesUpdated).Info("ledger recalculation finished")
	return result, nil
}

func (h *LedgerHandler) recalcBalanceChain(ctx context.Context, customerID int64, variantID int32) (int64, error) {
	release, err := locking.AcquireInOrder(ctx, h.locker,
		locking.CustomerKey(customerID),
		locking.CustomerVariantKey(customerID, variantID))
	if err != nil {
		return 0, err
	}
	defer release()

	var updated int64
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chain []models.LedgerEntry
		if err := tx.Where("customer_id = ? AND variant_id = ?", customerID, variantID).
			Order("transaction_date ASC, id ASC").
			Find(&chain).Error; err != nil {
			return err
		}
		running := int32(0)
		for i := range chain {
			running = calculator.CylinderBalance(running, chain[i].FilledOut, chain[i].EmptyIn)
			if running < 0 {
				config.GetLogger().
					WithField("entryId", chain[i].ID).
					Warn("recalculated balance is negative, raw quantities are inconsistent")
			}
			if chain[i].Balance == running {
				continue
			}
			if err := tx.Model(&models.LedgerEntry{}).Where("id = ?", chain[i].ID).
				Update("balance", running).Error; err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	h.InvalidateLedgerCaches(ctx, customerID, &variantID)
	return updated, nil
}

func (h *LedgerHandler) recalcDueChain(ctx context.Context, customerID int64) (int64, error) {
	release, err := h.locker.Acquire(ctx, locking.CustomerKey(customerID))
	if err != nil {
		return 0, err
	}
	defer release()

	var updated int64
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chain []models.LedgerEntry
		if err := tx.Where("customer_id = ?", customerID).
			Order("transaction_date ASC, id ASC").
			Find(&chain).Error; err != nil {
			return err
		}
		running := decimal.Zero
		for i := range chain {
			running = calculator.DueAmount(running, chain[i].TotalAmount, chain[i].AmountReceived)
			if chain[i].DueAmount.Equal(running) {
				continue
			}
			if err := tx.Model(&models.LedgerEntry{}).Where("id = ?", chain[i].ID).
				Update("due_amount", running).Error; err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
