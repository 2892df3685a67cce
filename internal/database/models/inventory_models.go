package models

import "time"

const (
	TransactionTypeIn         = "IN"
	TransactionTypeOut        = "OUT"
	TransactionTypeAdjustment = "ADJUSTMENT"
)

// InventoryItem is a base catalog entry. Its ID never carries a variant
// suffix; variants are labels on the item, not separate catalog rows.
type InventoryItem struct {
	ID        string `gorm:"primaryKey;size:128" json:"id"`
	NameEn    string `gorm:"size:255;not null" json:"name_en"`
	NameAr    string `gorm:"size:255" json:"name_ar"`
	Category  string `gorm:"size:100;index" json:"category"`
	Unit      string `gorm:"size:50" json:"unit"`
	Variants  StringList `gorm:"type:text" json:"variants"`
	UnitCost  string `gorm:"size:50" json:"unit_cost"`
	// Stock is the denormalized total across all residences. It is always
	// recomputed from ResidenceStock rows, never incremented on its own.
	Stock     int64 `json:"stock"`
	IsActive  bool  `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ResidenceStocks []ResidenceStock `gorm:"foreignKey:ItemID" json:"residence_stocks,omitempty"`
}

// ResidenceStock is one residence's sub-balance for one item.
type ResidenceStock struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ItemID      string `gorm:"size:128;index:idx_item_residence,unique;not null" json:"item_id"`
	ResidenceID string `gorm:"size:64;index:idx_item_residence,unique;not null" json:"residence_id"`
	Quantity    int64  `json:"quantity"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InventoryTransaction is an append-only audit row. Rows are created inside
// the same database transaction as the stock mutation they describe and are
// never updated or deleted.
type InventoryTransaction struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Type          string `gorm:"size:20;index;not null" json:"type"`
	ItemID        string `gorm:"size:128;index;not null" json:"item_id"`
	ItemNameEn    string `gorm:"size:255" json:"item_name_en"`
	ItemNameAr    string `gorm:"size:255" json:"item_name_ar"`
	ResidenceID   string `gorm:"size:64;index" json:"residence_id"`
	ResidenceName string `gorm:"size:255" json:"residence_name"`
	Quantity      int64  `json:"quantity"`
	Reference     string `gorm:"size:100;index" json:"reference"`
	Notes         *string `gorm:"size:255" json:"notes,omitempty"`
	CreatedBy     int64   `json:"created_by"`
	Date          time.Time `gorm:"index" json:"date"`
	CreatedAt     time.Time
}

// DepreciationEntry records a write-off of stock with its monetary value.
type DepreciationEntry struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ItemID      string `gorm:"size:128;index;not null" json:"item_id"`
	ResidenceID string `gorm:"size:64;index;not null" json:"residence_id"`
	Quantity    int64  `json:"quantity"`
	UnitValue   string `gorm:"size:50" json:"unit_value"`
	TotalValue  string `gorm:"size:50" json:"total_value"`
	Reason      string `gorm:"size:255" json:"reason"`
	CreatedBy   int64  `json:"created_by"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time
}
