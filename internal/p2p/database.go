package p2p

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

func (d *Database) CreateOffer(offer *types.P2POffer) error {
	return d.db.Create(offer).Error
}

func (d *Database) GetOffer(offerID string) (*types.P2POffer, error) {
	var offer types.P2POffer
	if err := d.db.Where("offer_id = ?", offerID).First(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &offer, nil
}

func (d *Database) UpdateOffer(offer *types.P2POffer) error {
	return d.db.Save(offer).Error
}

func (d *Database) ListOffers(asset, side string) ([]types.P2POffer, error) {
	q := d.db.Where("status = ?", types.OfferStatusActive).Order("created_at DESC")
	if asset != "" {
		q = q.Where("asset = ?", asset)
	}
	if side != "" {
		q = q.Where("side = ?", side)
	}
	var offers []types.P2POffer
	if err := q.Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

func (d *Database) CreateTrade(trade *types.P2PTrade) error {
	return d.db.Create(trade).Error
}

func (d *Database) GetTrade(tradeID string) (*types.P2PTrade, error) {
	var trade types.P2PTrade
	if err := d.db.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &trade, nil
}

// TransitionTrade flips the trade status only if the current status matches
// from. Concurrent transitions race on this conditional write; the loser sees
// zero affected rows and gets ErrInvalidState.
func (d *Database) TransitionTrade(tradeID, from, to string) error {
	res := d.db.Model(&types.P2PTrade{}).
		Where("trade_id = ? AND status = ?", tradeID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: trade is not %s", types.ErrInvalidState, from)
	}
	return nil
}

func (d *Database) ListTrades(userID string) ([]types.P2PTrade, error) {
	var trades []types.P2PTrade
	err := d.db.Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}
