package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxInitialStock TransactionType = "INITIAL_STOCK"
	TxSale         TransactionType = "SALE"
	TxEmptyReturn  TransactionType = "EMPTY_RETURN"
	TxPayment      TransactionType = "PAYMENT"
	TxTransfer     TransactionType = "TRANSFER"
)

const (
	RefTypeSale     = "SALE"
	RefTypeTransfer = "TRANSFER"
	RefTypeSupplier = "SUPPLIER"
	RefTypeLedger   = "LEDGER"
)

// LedgerEntry is one row of the customer transaction ledger.
//
// Balance is the running filled-cylinder count for the (customer, variant)
// chain; DueAmount is the running money owed across all of the customer's
// variants. Both chains are ordered by (TransactionDate, ID) and both are
// recomputed downstream whenever a historical entry is edited.
//
// PAYMENT entries carry no warehouse/variant and no quantities; they only
// move DueAmount.
type LedgerEntry struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	CustomerID      int64     `gorm:"index;not null"`
	WarehouseID     *int32    `gorm:"index"`
	VariantID       *int32    `gorm:"index:idx_ledger_customer_variant"`
	TransactionDate time.Time `gorm:"index;not null"`
	TransactionType TransactionType `gorm:"size:20;index;not null"`

	RefID   *int64  `gorm:"index:idx_ledger_ref"`
	RefType *string `gorm:"size:20;index:idx_ledger_ref"`

	FilledOut int32 `gorm:"not null;default:0"`
	EmptyIn   int32 `gorm:"not null;default:0"`
	Balance   int32 `gorm:"not null;default:0"`

	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	AmountReceived decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	DueAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`

	PaymentTypeID *int32
	BankAccountID *int64

	TransactionReference *string `gorm:"size:100"`
	UpdateReason         *string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Customer    *Customer    `gorm:"foreignKey:CustomerID"`
	Warehouse   *Warehouse   `gorm:"foreignKey:WarehouseID"`
	Variant     *Variant     `gorm:"foreignKey:VariantID"`
	PaymentType *PaymentType `gorm:"foreignKey:PaymentTypeID"`
	BankAccount *BankAccount `gorm:"foreignKey:BankAccountID"`
}
