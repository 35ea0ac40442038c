package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID           int64   `gorm:"primaryKey;autoIncrement"`
	CustomerCode string  `gorm:"size:100;uniqueIndex"`
	CustomerName string  `gorm:"size:255;not null"`
	Phone        *string `gorm:"size:50"`
	Address      *string `gorm:"size:255"`
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type PaymentType struct {
	ID          int32  `gorm:"primaryKey;autoIncrement"`
	PaymentName string `gorm:"type:varchar(64);not null"`
	IsActive    bool   `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type BankAccount struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	AccountName   string `gorm:"size:128;not null"`
	AccountNumber string `gorm:"size:64;uniqueIndex;not null"`
	BankName      string `gorm:"size:128;not null"`
	IsActive      bool   `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type SaleStatus int32

const (
	SaleStatusOpen   SaleStatus = 0
	SaleStatusClosed SaleStatus = 1
	SaleStatusVoided SaleStatus = 2
)

// Sale is the originating record a SALE ledger entry points back at via
// (RefID, RefType). SaleNumber is what reference resolution denormalizes
// into LedgerEntry.TransactionReference.
type Sale struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	SaleNumber  string     `gorm:"uniqueIndex;not null"`
	CustomerID  int64      `gorm:"index;not null"`
	WarehouseID int32      `gorm:"not null"`
	SaleDate    time.Time  `gorm:"index;not null"`
	Status      SaleStatus `gorm:"not null;default:0"`

	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	AmountReceived decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`

	PaymentTypeID *int32
	BankAccountID *int64
	Notes         *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Customer *Customer  `gorm:"foreignKey:CustomerID"`
	Items    []SaleItem `gorm:"foreignKey:SaleID"`
}

type SaleItem struct {
	ID               int64 `gorm:"primaryKey;autoIncrement"`
	SaleID           int64 `gorm:"index;not null"`
	VariantID        int32 `gorm:"not null"`
	Quantity         int32 `gorm:"not null"`
	EmptiesCollected int32 `gorm:"not null;default:0"`

	UnitPrice decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	LineTotal decimal.Decimal `gorm:"type:decimal(18,2);not null"`

	CreatedAt time.Time

	Variant *Variant `gorm:"foreignKey:VariantID"`
}
