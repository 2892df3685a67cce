package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	OrderStatusPending            = "Pending"
	OrderStatusApproved           = "Approved"
	OrderStatusPartiallyDelivered = "Partially Delivered"
	OrderStatusDelivered          = "Delivered"
	OrderStatusCancelled          = "Cancelled"
)

type StringList []string

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = []string{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("failed to scan StringList: %v", value)
}

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Order is a material requisition document, numbered MR-<yy><mm><seq>.
type Order struct {
	ID            string `gorm:"primaryKey;size:64" json:"id"`
	ResidenceID   string `gorm:"size:64;index" json:"residence_id"`
	ResidenceName string `gorm:"size:255" json:"residence_name"`
	Status        string `gorm:"size:30;index;not null" json:"status"`
	RequestedBy   int64  `json:"requested_by"`
	Notes         *string `gorm:"size:255" json:"notes,omitempty"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// OrderItem is one order line. LineID may be a composite of the base item id
// and a variant suffix ("base::variant" or "base-suffix"); the base catalog
// entry is recovered by stripping known separators at receive time.
type OrderItem struct {
	ID               int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID          string  `gorm:"size:64;index;not null" json:"order_id"`
	LineID           string  `gorm:"size:160;not null" json:"line_id"`
	ItemNameEn       string  `gorm:"size:255" json:"item_name_en"`
	ItemNameAr       string  `gorm:"size:255" json:"item_name_ar"`
	Variant          *string `gorm:"size:100" json:"variant,omitempty"`
	Quantity         int64   `json:"quantity"`
	QuantityReceived int64   `json:"quantity_received"`
	Position         int32   `gorm:"index" json:"position"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IssueVoucher is a stock issuance document targeting a location inside a
// residence, down to a specific room.
type IssueVoucher struct {
	ID          string  `gorm:"primaryKey;size:64" json:"id"`
	ResidenceID string  `gorm:"size:64;index;not null" json:"residence_id"`
	BuildingID  *string `gorm:"size:64" json:"building_id,omitempty"`
	RoomID      *string `gorm:"size:64" json:"room_id,omitempty"`
	IssuedTo    string  `gorm:"size:255" json:"issued_to"`
	Notes       *string `gorm:"size:255" json:"notes,omitempty"`
	CreatedBy   int64   `json:"created_by"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Items []IssueVoucherItem `gorm:"foreignKey:VoucherID" json:"items,omitempty"`
}

type IssueVoucherItem struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	VoucherID  string `gorm:"size:64;index;not null" json:"voucher_id"`
	ItemID     string `gorm:"size:128;not null" json:"item_id"`
	ItemNameEn string `gorm:"size:255" json:"item_name_en"`
	Quantity   int64  `json:"quantity"`
	CreatedAt  time.Time
}
