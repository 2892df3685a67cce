package models

import "time"

// Residence hierarchy: Complex -> Building -> Floor -> Room -> Facility.
// A Complex is the unit that holds its own stock sub-balances.

type Complex struct {
	ID        string  `gorm:"primaryKey;size:64" json:"id"`
	Name      string  `gorm:"size:255;not null" json:"name"`
	NameAr    string  `gorm:"size:255" json:"name_ar"`
	City      *string `gorm:"size:100" json:"city,omitempty"`
	IsActive  bool    `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Buildings []Building `gorm:"foreignKey:ComplexID" json:"buildings,omitempty"`
}

type Building struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	ComplexID string `gorm:"size:64;index;not null" json:"complex_id"`
	Name      string `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Floors []Floor `gorm:"foreignKey:BuildingID" json:"floors,omitempty"`
}

type Floor struct {
	ID         string `gorm:"primaryKey;size:64" json:"id"`
	BuildingID string `gorm:"size:64;index;not null" json:"building_id"`
	Name       string `gorm:"size:255;not null" json:"name"`
	Level      int32  `json:"level"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Rooms []Room `gorm:"foreignKey:FloorID" json:"rooms,omitempty"`
}

type Room struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	FloorID   string `gorm:"size:64;index;not null" json:"floor_id"`
	Name      string `gorm:"size:255;not null" json:"name"`
	RoomType  string `gorm:"size:100" json:"room_type"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Facilities []Facility `gorm:"foreignKey:RoomID" json:"facilities,omitempty"`
}

type Facility struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	RoomID    string `gorm:"size:64;index;not null" json:"room_id"`
	Name      string `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
