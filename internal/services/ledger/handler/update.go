package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"gastra-system/config"
	"gastra-system/internal/apperrors"
	"gastra-system/internal/database/models"
	"gastra-system/internal/ledger/calculator"
	"gastra-system/internal/locking"
)

// UpdateEntryInput carries the editable fields. Nil means "keep the
// stored value". TransactionDate, type, and references are immutable;
// moving an entry in time means deleting and re-posting it.
type UpdateEntryInput struct {
	FilledOut      *int32
	EmptyIn        *int32
	TotalAmount    *decimal.Decimal
	AmountReceived *decimal.Decimal
	UpdateReason   string
}

// UpdateEntry edits a historical entry and recalculates both running
// chains downstream of it.
//
// The walk is validate-before-mutate: every downstream balance and due is
// recomputed in memory first, and if any would break an invariant the
// edit is rejected with the complete violation list and nothing is
// written. Only a fully valid recalculation commits, entry, downstream
// rows, and warehouse counter deltas together.
func (h *LedgerHandler) UpdateEntry(ctx context.Context, entryID int64, in UpdateEntryInput) (*models.LedgerEntry, error) {
	if in.FilledOut != nil && *in.FilledOut < 0 {
		return nil, &apperrors.ValidationError{Field: "filled_out", Message: "must not be negative"}
	}
	if in.EmptyIn != nil && *in.EmptyIn < 0 {
		return nil, &apperrors.ValidationError{Field: "empty_in", Message: "must not be negative"}
	}
	if in.TotalAmount != nil && in.TotalAmount.IsNegative() {
		return nil, &apperrors.ValidationError{Field: "total_amount", Message: "must not be negative"}
	}
	if in.AmountReceived != nil && in.AmountReceived.IsNegative() {
		return nil, &apperrors.ValidationError{Field: "amount_received", Message: "must not be negative"}
	}

	var probe models.LedgerEntry
	if err := h.db.WithContext(ctx).First(&probe, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: ledger entry %d", apperrors.ErrNotFound, entryID)
		}
		return nil, err
	}
	if err := checkEditableFields(probe.TransactionType, in); err != nil {
		return nil, err
	}

	keys := []string{locking.CustomerKey(probe.CustomerID)}
	if probe.VariantID != nil {
		keys = append(keys, locking.CustomerVariantKey(probe.CustomerID, *probe.VariantID))
	}
	release, err := locking.AcquireInOrder(ctx, h.locker, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	var updated models.LedgerEntry
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.LedgerEntry
		if err := tx.First(&entry, entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: ledger entry %d", apperrors.ErrNotFound, entryID)
			}
			return err
		}

		newFilled := entry.FilledOut
		if in.FilledOut != nil {
			newFilled = *in.FilledOut
		}
		newEmpty := entry.EmptyIn
		if in.EmptyIn != nil {
			newEmpty = *in.EmptyIn
		}
		newTotal := entry.TotalAmount
		if in.TotalAmount != nil {
			newTotal = *in.TotalAmount
		}
		newReceived := entry.AmountReceived
		if in.AmountReceived != nil {
			newReceived = *in.AmountReceived
		}

		var violations []apperrors.ChainViolation

		// Cylinder chain: per (customer, variant).
		var balances []int32
		var balanceChain []models.LedgerEntry
		balanceIdx := -1
		if entry.VariantID != nil {
			if err := tx.Where("customer_id = ? AND variant_id = ?", entry.CustomerID, *entry.VariantID).
				Order("transaction_date ASC, id ASC").
				Find(&balanceChain).Error; err != nil {
				return err
			}
			balanceIdx = indexOfEntry(balanceChain, entryID)
			if balanceIdx < 0 {
				return fmt.Errorf("%w: ledger entry %d dropped out of its chain", apperrors.ErrConcurrencyConflict, entryID)
			}
			if err := h.checkEditWindow(entryID, len(balanceChain), balanceIdx); err != nil {
				return err
			}

			running := int32(0)
			if balanceIdx > 0 {
				running = balanceChain[balanceIdx-1].Balance
			}
			for i := balanceIdx; i < len(balanceChain); i++ {
				f, e := balanceChain[i].FilledOut, balanceChain[i].EmptyIn
				if i == balanceIdx {
					f, e = newFilled, newEmpty
				}
				if short := calculator.ReturnShortfall(running, f, e); short > 0 {
					violations = append(violations, apperrors.ChainViolation{
						EntryID:         balanceChain[i].ID,
						TransactionDate: balanceChain[i].TransactionDate,
						Kind:            "balance",
						Computed:        fmt.Sprintf("%d", running+f-e),
					})
				}
				running = calculator.CylinderBalance(running, f, e)
				balances = append(balances, running)
			}
		}

		// Due chain: customer-wide, payments included.
		var dueChain []models.LedgerEntry
		if err := tx.Where("customer_id = ?", entry.CustomerID).
			Order("transaction_date ASC, id ASC").
			Find(&dueChain).Error; err != nil {
			return err
		}
		dueIdx := indexOfEntry(dueChain, entryID)
		if dueIdx < 0 {
			return fmt.Errorf("%w: ledger entry %d dropped out of its chain", apperrors.ErrConcurrencyConflict, entryID)
		}
		if entry.VariantID == nil {
			// Payments have no variant chain, so the edit window is
			// measured on the customer-wide chain instead.
			if err := h.checkEditWindow(entryID, len(dueChain), dueIdx); err != nil {
				return err
			}
		}

		runningDue := decimal.Zero
		if dueIdx > 0 {
			runningDue = dueChain[dueIdx-1].DueAmount
		}
		dues := make([]decimal.Decimal, 0, len(dueChain)-dueIdx)
		for i := dueIdx; i < len(dueChain); i++ {
			total, received := dueChain[i].TotalAmount, dueChain[i].AmountReceived
			if i == dueIdx {
				total, received = newTotal, newReceived
			}
			if short := calculator.DueShortfall(runningDue, total, received); short.IsPositive() {
				violations = append(violations, apperrors.ChainViolation{
					EntryID:         dueChain[i].ID,
					TransactionDate: dueChain[i].TransactionDate,
					Kind:            "due",
					Computed:        short.Neg().String(),
				})
			}
			runningDue = calculator.DueAmount(runningDue, total, received)
			dues = append(dues, runningDue)
		}

		if len(violations) > 0 {
			return &apperrors.ChainViolationError{Violations: violations}
		}

		// Counter deltas mirror what the create path touched: a sale moved
		// warehouse filled stock, an empty return moved the empty pile.
		if entry.VariantID != nil && entry.WarehouseID != nil {
			var filledDelta, emptyDelta int32
			switch entry.TransactionType {
			case models.TxSale:
				filledDelta = entry.FilledOut - newFilled
			case models.TxEmptyReturn:
				emptyDelta = newEmpty - entry.EmptyIn
			}
			if filledDelta != 0 || emptyDelta != 0 {
				refType := models.RefTypeLedger
				if err := h.inventory.AdjustWithMovementTx(tx, *entry.WarehouseID, *entry.VariantID,
					filledDelta, emptyDelta, models.MovementAdjust, &entry.ID, &refType); err != nil {
					return err
				}
			}
		}

		updates := map[string]interface{}{
			"filled_out":      newFilled,
			"empty_in":        newEmpty,
			"total_amount":    newTotal,
			"amount_received": newReceived,
			"due_amount":      dues[0],
			"update_reason":   in.UpdateReason,
			"updated_at":      time.Now(),
		}
		if len(balances) > 0 {
			updates["balance"] = balances[0]
		}
		if err := tx.Model(&models.LedgerEntry{}).Where("id = ?", entryID).Updates(updates).Error; err != nil {
			return err
		}

		for i := balanceIdx + 1; i < len(balanceChain); i++ {
			if balanceChain[i].Balance == balances[i-balanceIdx] {
				continue
			}
			if err := tx.Model(&models.LedgerEntry{}).Where("id = ?", balanceChain[i].ID).
				Update("balance", balances[i-balanceIdx]).Error; err != nil {
				return err
			}
		}
		for i := dueIdx + 1; i < len(dueChain); i++ {
			if dueChain[i].DueAmount.Equal(dues[i-dueIdx]) {
				continue
			}
			if err := tx.Model(&models.LedgerEntry{}).Where("id = ?", dueChain[i].ID).
				Update("due_amount", dues[i-dueIdx]).Error; err != nil {
				return err
			}
		}

		return tx.First(&updated, entryID).Error
	})
	if err != nil {
		return nil, err
	}

	h.propagateToSale(ctx, &probe, &updated)
	h.InvalidateLedgerCaches(ctx, probe.CustomerID, probe.VariantID)
	if probe.WarehouseID != nil && probe.VariantID != nil {
		h.inventory.InvalidateStockCaches(ctx, *probe.WarehouseID, *probe.VariantID)
	}
	return &updated, nil
}

// checkEditableFields enforces the per-type edit surface: sales allow all
// four fields, empty returns cannot grow a filled quantity they never
// had, and payments only reprice the received amount.
func checkEditableFields(txType models.TransactionType, in UpdateEntryInput) error {
	switch txType {
	case models.TxSale:
		return nil
	case models.TxEmptyReturn:
		if in.FilledOut != nil {
			return fmt.Errorf("%w: empty returns carry no filled quantity", apperrors.ErrUnsupportedEdit)
		}
		return nil
	case models.TxPayment:
		if in.FilledOut != nil || in.EmptyIn != nil || in.TotalAmount != nil {
			return fmt.Errorf("%w: only the received amount of a payment can change", apperrors.ErrUnsupportedEdit)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s entries cannot be edited", apperrors.ErrUnsupportedEdit, txType)
	}
}

// checkEditWindow keeps edits inside the newest policy.EditWindow entries
// of the chain.
func (h *LedgerHandler) checkEditWindow(entryID int64, chainLen, idx int) error {
	window := h.policy.EditWindow
	if window <= 0 || chainLen <= window {
		return nil
	}
	if idx < chainLen-window {
		return &apperrors.EntryTooOldError{
			EntryID:    entryID,
			ChainLen:   chainLen,
			EditWindow: window,
		}
	}
	return nil
}

func indexOfEntry(chain []models.LedgerEntry, id int64) int {
	for i := range chain {
		if chain[i].ID == id {
			return i
		}
	}
	return -1
}

// propagateToSale mirrors an edited sale-backed entry onto its sale and
// line item. Best effort: the ledger is the source of truth, a failed
// mirror only logs.
func (h *LedgerHandler) propagateToSale(ctx context.Context, before, after *models.LedgerEntry) {
	if before.RefType == nil || *before.RefType != models.RefTypeSale || before.RefID == nil {
		return
	}
	logger := config.GetLogger()
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sale models.Sale
		if err := tx.First(&sale, *before.RefID).Error; err != nil {
			return err
		}
		totalDelta := after.TotalAmount.Sub(before.TotalAmount)
		receivedDelta := after.AmountReceived.Sub(before.AmountReceived)
		if err := tx.Model(&models.Sale{}).Where("id = ?", sale.ID).Updates(map[string]interface{}{
			"total_amount":    gorm.Expr("total_amount + ?", totalDelta),
			"amount_received": gorm.Expr("amount_received + ?", receivedDelta),
		}).Error; err != nil {
			return err
		}
		if before.VariantID == nil {
			return nil
		}
		return tx.Model(&models.SaleItem{}).
			Where("sale_id = ? AND variant_id = ?", sale.ID, *before.VariantID).
			Updates(map[string]interface{}{
				"quantity":          after.FilledOut,
				"empties_collected": after.EmptyIn,
				"line_total":        after.TotalAmount,
			}).Error
	})
	if err != nil {
		logger.WithField("entryId", before.ID).Warn("failed to mirror ledger edit onto sale: " + err.Error())
	}
}
