package earn

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

func (d *Database) CreateProduct(product *types.EarnProduct) error {
	return d.db.Create(product).Error
}

func (d *Database) GetProduct(productID string) (*types.EarnProduct, error) {
	var product types.EarnProduct
	if err := d.db.Where("product_id = ?", productID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (d *Database) ListActiveProducts() ([]types.EarnProduct, error) {
	var products []types.EarnProduct
	err := d.db.Where("status = ?", types.ProductStatusActive).
		Order("created_at DESC").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (d *Database) SetProductStatus(productID, status string) error {
	res := d.db.Model(&types.EarnProduct{}).
		Where("product_id = ?", productID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (d *Database) CreateSubscription(subscription *types.EarnSubscription) error {
	return d.db.Create(subscription).Error
}

func (d *Database) GetSubscription(subscriptionID, userID string) (*types.EarnSubscription, error) {
	var subscription types.EarnSubscription
	err := d.db.Where("subscription_id = ? AND user_id = ?", subscriptionID, userID).
		First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &subscription, nil
}

// TransitionSubscription flips the subscription status only if the current
// status matches from, setting or clearing the end date in the same write.
// Concurrent redemptions race on this conditional update; the loser sees
// zero affected rows and gets ErrInvalidState.
func (d *Database) TransitionSubscription(subscriptionID, from, to string, endDate *time.Time) error {
	res := d.db.Model(&types.EarnSubscription{}).
		Where("subscription_id = ? AND status = ?", subscriptionID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"end_date":   endDate,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: subscription is not %s", types.ErrInvalidState, from)
	}
	return nil
}

func (d *Database) ListSubscriptions(userID string) ([]types.EarnSubscription, error) {
	var subscriptions []types.EarnSubscription
	err := d.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}
