package database

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"estatecare-system/internal/database/models"
)

func NewConnection(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Complex{},
		&models.Building{},
		&models.Floor{},
		&models.Room{},
		&models.Facility{},
		&models.InventoryItem{},
		&models.ResidenceStock{},
		&models.InventoryTransaction{},
		&models.DepreciationEntry{},
		&models.Order{},
		&models.OrderItem{},
		&models.IssueVoucher{},
		&models.IssueVoucherItem{},
	)
}

// SeedAdmin creates the default admin account on an empty database so the
// protected endpoints are reachable after a fresh deploy.
func SeedAdmin(db *gorm.DB, username, password string) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := models.User{
		Username:  username,
		Email:     username + "@estatecare.local",
		Password:  string(pwHash),
		Firstname: "System",
		Lastname:  "Administrator",
		Role:      models.RoleAdmin,
		IsActive:  true,
	}
	return db.Create(&admin).Error
}
