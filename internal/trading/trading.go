package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lavoex/exchange-api/internal/ledger"
	"github.com/lavoex/exchange-api/internal/pricefeed"
	"github.com/lavoex/exchange-api/internal/types"
	"github.com/lavoex/exchange-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service executes market orders against the external price feed. There is
// no order book: a single quote fills the whole order instantly, and the
// paired debit+credit goes through the ledger engine as one atomic unit.
type Service struct {
	db     *Database
	ledger *ledger.Engine
	feed   pricefeed.Feed
}

func NewService(gormDB *gorm.DB, engine *ledger.Engine, feed pricefeed.Feed) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: engine,
		feed:   feed,
	}
}

// ExecuteMarketOrder fills a market order at the current quoted price.
// Buy: debit quote asset at amount x price, credit base asset with amount.
// Sell: the inverse. A failed debit aborts before any credit.
func (s *Service) ExecuteMarketOrder(ctx context.Context, userID, side, pair string, amount float64) (*types.Order, error) {
	if !types.ValidPair(pair) {
		return nil, fmt.Errorf("%w: unsupported pair %q", types.ErrInvalidInput, pair)
	}
	if side != types.SideBuy && side != types.SideSell {
		return nil, fmt.Errorf("%w: side must be buy or sell", types.ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrInvalidInput)
	}

	price, err := s.feed.Quote(ctx, pair)
	if err != nil {
		return nil, err
	}

	base, quote := types.SplitPair(pair)

	logger := log.With().
		Str("service", "trading").
		Str("user_id", userID).
		Str("pair", pair).
		Str("side", side).
		Float64("amount", amount).
		Float64("price", price).
		Logger()

	switch side {
	case types.SideBuy:
		err = s.ledger.Exchange(userID, quote, amount*price, base, amount)
	case types.SideSell:
		err = s.ledger.Exchange(userID, base, amount, quote, amount*price)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("market order aborted")
		return nil, err
	}

	order := &types.Order{
		OrderID:       "ORD_" + uuid.New().String(),
		UserID:        userID,
		Side:          side,
		Pair:          pair,
		Amount:        amount,
		PriceExecuted: price,
		Status:        types.OrderStatusFilled,
		CreatedAt:     time.Now(),
	}
	if err := s.db.CreateOrder(order); err != nil {
		// The fill went through but the record did not; unwind the fill so
		// balances and order history stay consistent.
		var reverseErr error
		switch side {
		case types.SideBuy:
			reverseErr = s.ledger.Exchange(userID, base, amount, quote, amount*price)
		case types.SideSell:
			reverseErr = s.ledger.Exchange(userID, quote, amount*price, base, amount)
		}
		if reverseErr != nil {
			logger.Error().Err(reverseErr).Msg("failed to unwind unrecorded fill")
		}
		return nil, err
	}

	logger.Info().Str("order_id", order.OrderID).Msg("market order filled")
	return order, nil
}

// Prices returns the current quote for every supported pair. A feed failure
// for one pair yields a null price for that pair rather than failing the
// whole response.
func (s *Service) Prices(ctx context.Context) map[string]*float64 {
	out := make(map[string]*float64, len(types.SupportedPairs))
	for _, pair := range types.SupportedPairs {
		price, err := s.feed.Quote(ctx, pair)
		if err != nil {
			log.Warn().
				Str("service", "trading").
				Str("pair", pair).
				Err(err).
				Msg("quote unavailable for price list")
			out[pair] = nil
			continue
		}
		p := price
		out[pair] = &p
	}
	return out
}

// GetOrder retrieves an order scoped to its owner.
func (s *Service) GetOrder(orderID, userID string) (*types.Order, error) {
	return s.db.GetOrderByOrderIDAndUserID(orderID, userID)
}

// ListOrders returns the user's order history, newest first.
func (s *Service) ListOrders(userID string) ([]types.Order, error) {
	return s.db.ListOrders(userID)
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOrderHandler handles POST requests to place market orders
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Side   string  `json:"side" binding:"required"`
			Pair   string  `json:"pair" binding:"required"`
			Amount float64 `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.ExecuteMarketOrder(c.Request.Context(), c.GetString("user_id"), body.Side, body.Pair, body.Amount)
		response.Handle(c, order, err)
	}
}

// GetOrderHandler handles GET requests for a single order
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrder(c.Param("order_id"), c.GetString("user_id"))
		response.Handle(c, order, err)
	}
}

// ListOrdersHandler handles GET requests for the caller's order history
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := h.service.ListOrders(c.GetString("user_id"))
		response.Handle(c, orders, err)
	}
}

// PricesHandler handles GET requests for the current price list
func (h *GinHandlers) PricesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.service.Prices(c.Request.Context()))
	}
}
