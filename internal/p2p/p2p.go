package p2p

import (
	"encoding/json"
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

// Service runs the peer-to-peer escrow trade engine. A trade moves through
// escrow -> released, or escrow -> cancelled when either party backs out.
// The seller's funds are debited when the deal opens and live on the trade
// record until release credits the buyer or cancellation refunds the seller.
type Service struct {
	db     *Database
	ledger *ledger.Engine
}

func NewService(gormDB *gorm.DB, engine *ledger.Engine) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: engine,
	}
}

// OfferParams holds the fields of a new P2P offer.
type OfferParams struct {
	Asset          string   `json:"asset" binding:"required"`
	Side           string   `json:"side" binding:"required"`
	Price          float64  `json:"price" binding:"required"`
	MinAmount      float64  `json:"min_amount" binding:"required"`
	MaxAmount      float64  `json:"max_amount" binding:"required"`
	PaymentMethods []string `json:"payment_methods"`
}

// CreateOffer validates and records a maker offer.
func (s *Service) CreateOffer(userID string, params OfferParams) (*types.P2POffer, error) {
	if !types.ValidAsset(params.Asset) {
		return nil, fmt.Errorf("%w: unsupported asset %q", types.ErrInvalidInput, params.Asset)
	}
	if params.Side != types.SideBuy && params.Side != types.SideSell {
		return nil, fmt.Errorf("%w: side must be buy or sell", types.ErrInvalidInput)
	}
	if params.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", types.ErrInvalidInput)
	}
	if params.MinAmount <= 0 || params.MaxAmount < params.MinAmount {
		return nil, fmt.Errorf("%w: amount bounds require 0 < min <= max", types.ErrInvalidInput)
	}

	methods, err := json.Marshal(params.PaymentMethods)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment methods: %w", err)
	}

	offer := &types.P2POffer{
		OfferID:        "OFR_" + uuid.New().String(),
		UserID:         userID,
		Asset:          params.Asset,
		Side:           params.Side,
		Price:          params.Price,
		MinAmount:      params.MinAmount,
		MaxAmount:      params.MaxAmount,
		PaymentMethods: string(methods),
		Status:         types.OfferStatusActive,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.db.CreateOffer(offer); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "p2p").
		Str("offer_id", offer.OfferID).
		Str("user_id", userID).
		Str("asset", offer.Asset).
		Str("side", offer.Side).
		Msg("offer created")
	return offer, nil
}

// ListOffers returns active offers, optionally filtered by asset and side.
func (s *Service) ListOffers(asset, side string) ([]types.P2POffer, error) {
	return s.db.ListOffers(asset, side)
}

// SetOfferStatus lets the maker pause, reactivate or cancel their offer.
func (s *Service) SetOfferStatus(userID, offerID, status string) (*types.P2POffer, error) {
	switch status {
	case types.OfferStatusActive, types.OfferStatusPaused, types.OfferStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: status must be active, paused or cancelled", types.ErrInvalidInput)
	}

	offer, err := s.db.GetOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer.UserID != userID {
		return nil, fmt.Errorf("%w: only the maker may update the offer", types.ErrForbidden)
	}
	if offer.Status == types.OfferStatusCancelled || offer.Status == types.OfferStatusFilled {
		return nil, fmt.Errorf("%w: offer is %s", types.ErrInvalidState, offer.Status)
	}

	offer.Status = status
	offer.UpdatedAt = time.Now()
	if err := s.db.UpdateOffer(offer); err != nil {
		return nil, err
	}
	return offer, nil
}

// OpenDeal opens a trade against an active offer. The seller's funds are
// debited here, at deal creation, and held by the trade record in escrow.
func (s *Service) OpenDeal(callerID, offerID string, amount float64) (*types.P2PTrade, error) {
	offer, err := s.db.GetOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != types.OfferStatusActive {
		return nil, fmt.Errorf("%w: offer is %s", types.ErrInvalidState, offer.Status)
	}
	if amount < offer.MinAmount || amount > offer.MaxAmount {
		return nil, fmt.Errorf("%w: amount outside offer bounds", types.ErrInvalidInput)
	}

	// The maker of a sell offer is the seller; the maker of a buy offer is
	// the buyer, with the caller taking the selling side.
	var sellerID, buyerID string
	if offer.Side == types.SideSell {
		sellerID = offer.UserID
		buyerID = callerID
	} else {
		sellerID = callerID
		buyerID = offer.UserID
	}

	if err := s.ledger.Debit(sellerID, offer.Asset, amount); err != nil {
		return nil, err
	}

	trade := &types.P2PTrade{
		TradeID:   "TRD_" + uuid.New().String(),
		OfferID:   offer.OfferID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Asset:     offer.Asset,
		Amount:    amount,
		Price:     offer.Price,
		Status:    types.TradeStatusEscrow,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.CreateTrade(trade); err != nil {
		// The escrow debit landed but the trade record did not; refund the
		// seller so no value is destroyed.
		if creditErr := s.ledger.Credit(sellerID, offer.Asset, amount); creditErr != nil {
			log.Error().Err(creditErr).
				Str("service", "p2p").
				Str("seller_id", sellerID).
				Msg("failed to refund unrecorded escrow")
		}
		return nil, err
	}

	log.Info().
		Str("service", "p2p").
		Str("trade_id", trade.TradeID).
		Str("seller_id", sellerID).
		Str("buyer_id", buyerID).
		Float64("amount", amount).
		Msg("deal opened, funds in escrow")
	return trade, nil
}

// Release pays the escrowed amount out to the buyer. Only the seller may
// release, and only while the trade is still in escrow. Authorization is
// checked before state so non-parties learn nothing about the trade's
// lifecycle; the escrow -> released transition is a conditional write, so
// concurrent release or cancel calls cannot both move the funds.
func (s *Service) Release(callerID, tradeID string) (*types.P2PTrade, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade.SellerID != callerID {
		return nil, fmt.Errorf("%w: only the seller may release", types.ErrForbidden)
	}

	if err := s.db.TransitionTrade(tradeID, types.TradeStatusEscrow, types.TradeStatusReleased); err != nil {
		return nil, err
	}

	if err := s.ledger.Credit(trade.BuyerID, trade.Asset, trade.Amount); err != nil {
		// The trade was claimed but the payout failed; put it back in
		// escrow so the funds are not stranded.
		if revertErr := s.db.TransitionTrade(tradeID, types.TradeStatusReleased, types.TradeStatusEscrow); revertErr != nil {
			log.Error().Err(revertErr).
				Str("service", "p2p").
				Str("trade_id", trade.TradeID).
				Msg("failed to revert unpaid release")
		}
		return nil, err
	}

	trade.Status = types.TradeStatusReleased
	trade.UpdatedAt = time.Now()

	log.Info().
		Str("service", "p2p").
		Str("trade_id", trade.TradeID).
		Str("buyer_id", trade.BuyerID).
		Float64("amount", trade.Amount).
		Msg("escrow released to buyer")
	return trade, nil
}

// Cancel returns the escrowed funds to the seller and closes the trade.
// Either party may cancel while the trade is still in escrow; a deal that is
// never released no longer strands the seller's funds.
func (s *Service) Cancel(callerID, tradeID string) (*types.P2PTrade, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if callerID != trade.SellerID && callerID != trade.BuyerID {
		return nil, fmt.Errorf("%w: only a trade party may cancel", types.ErrForbidden)
	}

	if err := s.db.TransitionTrade(tradeID, types.TradeStatusEscrow, types.TradeStatusCancelled); err != nil {
		return nil, err
	}

	if err := s.ledger.Credit(trade.SellerID, trade.Asset, trade.Amount); err != nil {
		if revertErr := s.db.TransitionTrade(tradeID, types.TradeStatusCancelled, types.TradeStatusEscrow); revertErr != nil {
			log.Error().Err(revertErr).
				Str("service", "p2p").
				Str("trade_id", trade.TradeID).
				Msg("failed to revert unrefunded cancellation")
		}
		return nil, err
	}

	trade.Status = types.TradeStatusCancelled
	trade.UpdatedAt = time.Now()

	log.Info().
		Str("service", "p2p").
		Str("trade_id", trade.TradeID).
		Str("seller_id", trade.SellerID).
		Float64("amount", trade.Amount).
		Msg("trade cancelled, escrow refunded to seller")
	return trade, nil
}

// ListTrades returns trades where the user is buyer or seller.
func (s *Service) ListTrades(userID string) ([]types.P2PTrade, error) {
	return s.db.ListTrades(userID)
}

// GinHandlers contains HTTP handlers for P2P endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOfferHandler handles POST requests to create offers
func (h *GinHandlers) CreateOfferHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params OfferParams
		if err := c.ShouldBindJSON(&params); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		offer, err := h.service.CreateOffer(c.GetString("user_id"), params)
		response.Handle(c, offer, err)
	}
}

// ListOffersHandler handles GET requests for active offers
// Query parameters: asset, side
func (h *GinHandlers) ListOffersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		offers, err := h.service.ListOffers(c.Query("asset"), c.Query("side"))
		response.Handle(c, offers, err)
	}
}

// UpdateOfferStatusHandler handles POST requests to pause, reactivate or
// cancel an offer
// URL parameter: offer_id
func (h *GinHandlers) UpdateOfferStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		offer, err := h.service.SetOfferStatus(c.GetString("user_id"), c.Param("offer_id"), body.Status)
		response.Handle(c, offer, err)
	}
}

// OpenDealHandler handles POST requests to open a trade against an offer
func (h *GinHandlers) OpenDealHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			OfferID string  `json:"offer_id" binding:"required"`
			Amount  float64 `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.OpenDeal(c.GetString("user_id"), body.OfferID, body.Amount)
		response.Handle(c, trade, err)
	}
}

// ReleaseTradeHandler handles POST requests to release escrow to the buyer
// URL parameter: trade_id
func (h *GinHandlers) ReleaseTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.Release(c.GetString("user_id"), c.Param("trade_id"))
		response.Handle(c, trade, err)
	}
}

// CancelTradeHandler handles POST requests to cancel an escrow trade
// URL parameter: trade_id
func (h *GinHandlers) CancelTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.Cancel(c.GetString("user_id"), c.Param("trade_id"))
		response.Handle(c, trade, err)
	}
}

// ListTradesHandler handles GET requests for the caller's trades
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trades, err := h.service.ListTrades(c.GetString("user_id"))
		response.Handle(c, trades, err)
	}
}
