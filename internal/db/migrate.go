package db

import (
	"bank_system/internal/domain" // Importing domain models

	"github.com/shopspring/decimal" // Seed balances
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt" // Seed password hashing

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
)

// AutoMigrate creates or updates the schema for all domain models on an
// already-open database handle. Shared by cmd/migrate and the tests.
func AutoMigrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	return db.AutoMigrate(&domain.User{}, &domain.Account{}, &domain.Transaction{})
}

// Migrate connects using the DSN and performs the schema migration, optionally
// seeding demo data afterwards.
func Migrate(dsn string, seed bool) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{}) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	if err := AutoMigrate(db); err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	logrus.Info("Migration completed.") // Log successful migration
	if seed {
		if err := Seed(db); err != nil {
			logrus.Fatalf("seeding failed: %v", err)
		}
		logrus.Info("Demo data seeded.")
	}
}

// Seed inserts two demo customers with funded accounts and one admin, the way
// the demo database bootstrap script used to. Safe to skip when users exist.
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&domain.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil // Already populated
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("changeme123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	users := []domain.User{
		{Username: "alice", Password: string(hash), Accounts: []domain.Account{
			{Balance: decimal.NewFromInt(100)},  // Checking
			{Balance: decimal.NewFromInt(5000)}, // Savings
		}},
		{Username: "bob", Password: string(hash), Accounts: []domain.Account{
			{Balance: decimal.NewFromInt(250)},
		}},
		{Username: "auditor", Password: string(hash), Role: "admin"},
	}
	return db.Create(&users).Error
}
