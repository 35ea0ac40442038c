package models

import "time"

// Variant is a distinct cylinder product/size.
type Variant struct {
	ID          int32  `gorm:"primaryKey"`
	VariantCode string `gorm:"size:100;uniqueIndex"`
	VariantName string `gorm:"size:255"`
	CapacityKg  string `gorm:"size:50"`
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Stocks []InventoryStock `gorm:"foreignKey:VariantID"`
}

type Warehouse struct {
	ID            int32   `gorm:"primaryKey"`
	WarehouseCode string  `gorm:"size:100;uniqueIndex"`
	WarehouseName string  `gorm:"size:255"`
	Location      *string `gorm:"size:255"`
	ManagerID     *int64
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Stocks []InventoryStock `gorm:"foreignKey:WarehouseID"`
}

type Supplier struct {
	ID            int32   `gorm:"primaryKey"`
	SupplierCode  string  `gorm:"size:100;uniqueIndex"`
	SupplierName  string  `gorm:"size:255"`
	ContactPerson *string `gorm:"size:100"`
	Phone         *string `gorm:"size:50"`
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InventoryStock is the denormalized filled/empty counter per
// (warehouse, variant). Rows are created lazily on first reference and
// mutated only through guarded single-statement updates that also bump
// Version; never by blind overwrite of the full row.
type InventoryStock struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	WarehouseID int32 `gorm:"uniqueIndex:idx_stock_warehouse_variant;not null"`
	VariantID   int32 `gorm:"uniqueIndex:idx_stock_warehouse_variant;not null"`
	FilledQty   int32 `gorm:"not null;default:0"`
	EmptyQty    int32 `gorm:"not null;default:0"`
	Version     int64 `gorm:"not null;default:0"`
	LastUpdated time.Time

	Warehouse *Warehouse `gorm:"foreignKey:WarehouseID"`
	Variant   *Variant   `gorm:"foreignKey:VariantID"`
}

type MovementType int32

const (
	MovementIn       MovementType = 1
	MovementOut      MovementType = 2
	MovementTransfer MovementType = 3
	MovementAdjust   MovementType = 4
)

// StockMovement is the audit row written alongside every counter mutation.
type StockMovement struct {
	ID           int64        `gorm:"primaryKey;autoIncrement"`
	WarehouseID  int32        `gorm:"index;not null"`
	VariantID    int32        `gorm:"index;not null"`
	MovementType MovementType `gorm:"not null"`
	FilledDelta  int32        `gorm:"not null;default:0"`
	EmptyDelta   int32        `gorm:"not null;default:0"`
	RefID        *int64
	RefType      *string `gorm:"size:20"`
	Notes        *string `gorm:"size:255"`
	CreatedBy    int64
	CreatedAt    time.Time
}
