package ledger

import (
	"errors"

	"github.com/lavoex/exchange-api/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errVersionConflict signals a lost compare-and-swap race; the engine retries
// the whole mutation set on it.
var errVersionConflict = errors.New("wallet version conflict")

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetWallet(userID, asset string) (*types.Wallet, error) {
	var wallet types.Wallet
	if err := d.db.Where("user_id = ? AND asset = ?", userID, asset).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (d *Database) GetWallets(userID string) ([]types.Wallet, error) {
	var wallets []types.Wallet
	if err := d.db.Where("user_id = ?", userID).Order("asset").Find(&wallets).Error; err != nil {
		return nil, err
	}
	return wallets, nil
}

// CreateWalletIfAbsent inserts the wallet unless one already exists for the
// (user, asset) pair. Safe to race: the unique index plus a conflict-ignoring
// insert makes concurrent first-login provisioning idempotent.
func (d *Database) CreateWalletIfAbsent(wallet *types.Wallet) error {
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "asset"}},
		DoNothing: true,
	}).Create(wallet).Error
}

// applyMutations applies a set of balance deltas in a single transaction.
// Each wallet row is updated with a conditional write on its version column;
// a lost race rolls the whole set back and surfaces errVersionConflict.
// Callers must pass mutations pre-sorted in the global wallet order.
func (d *Database) applyMutations(muts []mutation) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range muts {
			var wallet types.Wallet
			if err := tx.Where("user_id = ? AND asset = ?", m.UserID, m.Asset).First(&wallet).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return types.ErrNotFound
				}
				return err
			}

			newBalance := wallet.Balance + m.Delta
			if newBalance < 0 {
				return types.ErrInsufficientFunds
			}

			res := tx.Model(&types.Wallet{}).
				Where("user_id = ? AND asset = ? AND version = ?", m.UserID, m.Asset, wallet.Version).
				Updates(map[string]interface{}{
					"balance": newBalance,
					"version": wallet.Version + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errVersionConflict
			}
		}
		return nil
	})
}
