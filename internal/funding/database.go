package funding

import (
	"errors"
	"fmt"
	"time"

	"github.com/lavoex/exchange-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateDeposit(deposit *types.Deposit) error {
	return d.db.Create(deposit).Error
}

func (d *Database) UpdateDeposit(deposit *types.Deposit) error {
	return d.db.Save(deposit).Error
}

func (d *Database) ListDeposits(userID string) ([]types.Deposit, error) {
	var deposits []types.Deposit
	if err := d.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&deposits).Error; err != nil {
		return nil, err
	}
	return deposits, nil
}

func (d *Database) CreateWithdrawal(withdrawal *types.Withdrawal) error {
	return d.db.Create(withdrawal).Error
}

func (d *Database) GetWithdrawal(withdrawalID string) (*types.Withdrawal, error) {
	var withdrawal types.Withdrawal
	if err := d.db.Where("withdrawal_id = ?", withdrawalID).First(&withdrawal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &withdrawal, nil
}

// TransitionWithdrawal flips the withdrawal status only if the current
// status matches from. The conditional write makes concurrent decisions on
// the same withdrawal race safely: the loser sees zero affected rows and
// gets ErrInvalidState.
func (d *Database) TransitionWithdrawal(withdrawalID, from, to string) error {
	res := d.db.Model(&types.Withdrawal{}).
		Where("withdrawal_id = ? AND status = ?", withdrawalID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: withdrawal is not %s", types.ErrInvalidState, from)
	}
	return nil
}

// ListWithdrawals returns the user's withdrawals, or every withdrawal when
// userID is empty (admin view).
func (d *Database) ListWithdrawals(userID string) ([]types.Withdrawal, error) {
	q := d.db.Order("created_at DESC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var withdrawals []types.Withdrawal
	if err := q.Find(&withdrawals).Error; err != nil {
		return nil, err
	}
	return withdrawals, nil
}
