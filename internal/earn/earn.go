package earn

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lavoex/exchange-api/internal/ledger"
	"github.com/lavoex/exchange-api/internal/types"
	"github.com/lavoex/exchange-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service runs the fixed-term yield products. Rewards are simple interest,
// prorated over elapsed whole days and computed at redemption time.
type Service struct {
	db     *Database
	ledger *ledger.Engine
	now    func() time.Time
}

func NewService(gormDB *gorm.DB, engine *ledger.Engine) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: engine,
		now:    time.Now,
	}
}

// RedemptionResult is the payout summary returned by Redeem.
type RedemptionResult struct {
	Subscription *types.EarnSubscription `json:"subscription"`
	Reward       float64                 `json:"reward"`
	Payout       float64                 `json:"payout"`
}

// CreateProduct registers a new yield product. Admin only.
func (s *Service) CreateProduct(asset string, apy float64, lockDays int) (*types.EarnProduct, error) {
	if !types.ValidAsset(asset) {
		return nil, fmt.Errorf("%w: unsupported asset %q", types.ErrInvalidInput, asset)
	}
	if apy <= 0 {
		return nil, fmt.Errorf("%w: apy must be positive", types.ErrInvalidInput)
	}
	if lockDays < 0 {
		return nil, fmt.Errorf("%w: lock days cannot be negative", types.ErrInvalidInput)
	}

	product := &types.EarnProduct{
		ProductID: "PRD_" + uuid.New().String(),
		Asset:     asset,
		APY:       apy,
		LockDays:  lockDays,
		Status:    types.ProductStatusActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.CreateProduct(product); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "earn").
		Str("product_id", product.ProductID).
		Str("asset", asset).
		Float64("apy", apy).
		Msg("earn product created")
	return product, nil
}

// ListProducts returns all active products.
func (s *Service) ListProducts() ([]types.EarnProduct, error) {
	return s.db.ListActiveProducts()
}

// Subscribe debits the principal and opens an accruing subscription.
func (s *Service) Subscribe(userID, productID string, amount float64) (*types.EarnSubscription, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrInvalidInput)
	}

	product, err := s.db.GetProduct(productID)
	if err != nil {
		return nil, err
	}
	if product.Status != types.ProductStatusActive {
		return nil, fmt.Errorf("%w: product is %s", types.ErrInvalidState, product.Status)
	}

	if err := s.ledger.Debit(userID, product.Asset, amount); err != nil {
		return nil, err
	}

	subscription := &types.EarnSubscription{
		SubscriptionID: "SUB_" + uuid.New().String(),
		UserID:         userID,
		ProductID:      product.ProductID,
		Amount:         amount,
		StartDate:      s.now(),
		Status:         types.SubscriptionStatusAccruing,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.db.CreateSubscription(subscription); err != nil {
		// Principal was taken but the subscription did not record; give it
		// back.
		if creditErr := s.ledger.Credit(userID, product.Asset, amount); creditErr != nil {
			log.Error().Err(creditErr).
				Str("service", "earn").
				Str("user_id", userID).
				Msg("failed to refund unrecorded subscription principal")
		}
		return nil, err
	}

	log.Info().
		Str("service", "earn").
		Str("subscription_id", subscription.SubscriptionID).
		Str("user_id", userID).
		Float64("amount", amount).
		Msg("subscription opened")
	return subscription, nil
}

// Redeem pays out principal plus reward and closes the subscription.
// reward = amount x (apy/100) x (elapsed whole days / 365). Lock days are
// informational only; early redemption is allowed and simply accrues fewer
// days.
func (s *Service) Redeem(userID, subscriptionID string) (*RedemptionResult, error) {
	subscription, err := s.db.GetSubscription(subscriptionID, userID)
	if err != nil {
		return nil, err
	}

	product, err := s.db.GetProduct(subscription.ProductID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	days := int(now.Sub(subscription.StartDate).Hours() / 24)
	if days < 0 {
		days = 0
	}
	reward := subscription.Amount * (product.APY / 100.0) * (float64(days) / 365.0)
	payout := subscription.Amount + reward

	// Claim the accruing -> redeemed transition before paying out so
	// concurrent redemptions cannot both pass the status check.
	if err := s.db.TransitionSubscription(subscriptionID, types.SubscriptionStatusAccruing, types.SubscriptionStatusRedeemed, &now); err != nil {
		return nil, err
	}

	if err := s.ledger.Credit(userID, product.Asset, payout); err != nil {
		if revertErr := s.db.TransitionSubscription(subscriptionID, types.SubscriptionStatusRedeemed, types.SubscriptionStatusAccruing, nil); revertErr != nil {
			log.Error().Err(revertErr).
				Str("service", "earn").
				Str("subscription_id", subscription.SubscriptionID).
				Msg("failed to revert unpaid redemption")
		}
		return nil, err
	}

	subscription.Status = types.SubscriptionStatusRedeemed
	subscription.EndDate = &now
	subscription.UpdatedAt = time.Now()

	log.Info().
		Str("service", "earn").
		Str("subscription_id", subscription.SubscriptionID).
		Int("days", days).
		Float64("reward", reward).
		Msg("subscription redeemed")
	return &RedemptionResult{
		Subscription: subscription,
		Reward:       reward,
		Payout:       payout,
	}, nil
}

// ListSubscriptions returns the user's subscriptions.
func (s *Service) ListSubscriptions(userID string) ([]types.EarnSubscription, error) {
	return s.db.ListSubscriptions(userID)
}

// GinHandlers contains HTTP handlers for earn endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateProductHandler handles POST requests to create products. Admin only.
func (h *GinHandlers) CreateProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Asset    string  `json:"asset" binding:"required"`
			APY      float64 `json:"apy" binding:"required"`
			LockDays int     `json:"lock_days"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		product, err := h.service.CreateProduct(body.Asset, body.APY, body.LockDays)
		response.Handle(c, product, err)
	}
}

// ListProductsHandler handles GET requests for active products
func (h *GinHandlers) ListProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := h.service.ListProducts()
		response.Handle(c, products, err)
	}
}

// SubscribeHandler handles POST requests to open subscriptions
func (h *GinHandlers) SubscribeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			ProductID string  `json:"product_id" binding:"required"`
			Amount    float64 `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		subscription, err := h.service.Subscribe(c.GetString("user_id"), body.ProductID, body.Amount)
		response.Handle(c, subscription, err)
	}
}

// RedeemHandler handles POST requests to redeem subscriptions
// URL parameter: subscription_id
func (h *GinHandlers) RedeemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.Redeem(c.GetString("user_id"), c.Param("subscription_id"))
		response.Handle(c, result, err)
	}
}

// ListSubscriptionsHandler handles GET requests for the caller's
// subscriptions
func (h *GinHandlers) ListSubscriptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subscriptions, err := h.service.ListSubscriptions(c.GetString("user_id"))
		response.Handle(c, subscriptions, err)
	}
}
