package database

import (
	"github.com/lavoex/exchange-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "exchange.db"
	}

	// TranslateError surfaces unique-index violations as
	// gorm.ErrDuplicatedKey so races on email registration map to a
	// conflict instead of an internal error.
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema for every entity. Also used by test
// setups against in-memory databases.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.User{},
		&types.Wallet{},
		&types.Deposit{},
		&types.Withdrawal{},
		&types.Order{},
		&types.P2POffer{},
		&types.P2PTrade{},
		&types.EarnProduct{},
		&types.EarnSubscription{},
		&types.KYCSubmission{},
	)
}
