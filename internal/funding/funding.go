package funding

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

// Service handles deposits and the withdrawal approval workflow. All balance
// movement goes through the ledger engine; this package only manages the
// funding records around it.
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

// Deposit records an external deposit and credits the wallet. Deposits are
// simulated: they complete immediately.
func (s *Service) Deposit(userID, asset string, amount float64) (*types.Deposit, error) {
	if !types.ValidAsset(asset) {
		return nil, fmt.Errorf("%w: unsupported asset %q", types.ErrInvalidInput, asset)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrInvalidInput)
	}

	deposit := &types.Deposit{
		DepositID: "DEP_" + uuid.New().String(),
		UserID:    userID,
		Asset:     asset,
		Amount:    amount,
		Status:    types.DepositStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.CreateDeposit(deposit); err != nil {
		return nil, err
	}

	if err := s.ledger.Credit(userID, asset, amount); err != nil {
		deposit.Status = types.DepositStatusFailed
		deposit.UpdatedAt = time.Now()
		if saveErr := s.db.UpdateDeposit(deposit); saveErr != nil {
			log.Error().Err(saveErr).
				Str("service", "funding").
				Str("deposit_id", deposit.DepositID).
				Msg("failed to mark deposit failed")
		}
		return nil, err
	}

	deposit.Status = types.DepositStatusCompleted
	deposit.UpdatedAt = time.Now()
	if err := s.db.UpdateDeposit(deposit); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "funding").
		Str("deposit_id", deposit.DepositID).
		Str("user_id", userID).
		Str("asset", asset).
		Float64("amount", amount).
		Msg("deposit completed")
	return deposit, nil
}

// RequestWithdrawal creates a pending withdrawal awaiting admin approval.
// The balance is checked but NOT debited here: funds leave the wallet only
// at approval time, so a request never blocks the user's spendable balance.
func (s *Service) RequestWithdrawal(userID, asset string, amount float64, toAddress string) (*types.Withdrawal, error) {
	if !types.ValidAsset(asset) {
		return nil, fmt.Errorf("%w: unsupported asset %q", types.ErrInvalidInput, asset)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrInvalidInput)
	}
	if toAddress == "" {
		return nil, fmt.Errorf("%w: destination address is required", types.ErrInvalidInput)
	}

	balance, err := s.ledger.Balance(userID, asset)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, types.ErrInsufficientFunds
	}

	withdrawal := &types.Withdrawal{
		WithdrawalID: "WDR_" + uuid.New().String(),
		UserID:       userID,
		Asset:        asset,
		Amount:       amount,
		ToAddress:    toAddress,
		Status:       types.WithdrawalStatusPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.db.CreateWithdrawal(withdrawal); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "funding").
		Str("withdrawal_id", withdrawal.WithdrawalID).
		Str("user_id", userID).
		Str("asset", asset).
		Float64("amount", amount).
		Msg("withdrawal requested")
	return withdrawal, nil
}

// Decide approves or rejects a pending withdrawal. The pending -> sent (or
// pending -> rejected) transition is a conditional write claimed before the
// debit, so concurrent decisions on the same withdrawal cannot both move
// funds. If the approval debit fails the withdrawal is put back to pending
// so the admin can retry or reject later. Rejection never touches the
// balance.
func (s *Service) Decide(withdrawalID string, approve bool) (*types.Withdrawal, error) {
	withdrawal, err := s.db.GetWithdrawal(withdrawalID)
	if err != nil {
		return nil, err
	}

	logger := log.With().
		Str("service", "funding").
		Str("withdrawal_id", withdrawal.WithdrawalID).
		Str("user_id", withdrawal.UserID).
		Logger()

	if !approve {
		if err := s.db.TransitionWithdrawal(withdrawalID, types.WithdrawalStatusPending, types.WithdrawalStatusRejected); err != nil {
			return nil, err
		}
		withdrawal.Status = types.WithdrawalStatusRejected
		withdrawal.UpdatedAt = time.Now()
		logger.Info().Msg("withdrawal rejected")
		return withdrawal, nil
	}

	if err := s.db.TransitionWithdrawal(withdrawalID, types.WithdrawalStatusPending, types.WithdrawalStatusSent); err != nil {
		return nil, err
	}

	if err := s.ledger.Debit(withdrawal.UserID, withdrawal.Asset, withdrawal.Amount); err != nil {
		if revertErr := s.db.TransitionWithdrawal(withdrawalID, types.WithdrawalStatusSent, types.WithdrawalStatusPending); revertErr != nil {
			logger.Error().Err(revertErr).Msg("failed to revert unfunded approval")
		}
		logger.Warn().Err(err).Msg("withdrawal approval failed, staying pending")
		return nil, err
	}

	withdrawal.Status = types.WithdrawalStatusSent
	withdrawal.UpdatedAt = time.Now()
	logger.Info().Float64("amount", withdrawal.Amount).Msg("withdrawal approved and sent")
	return withdrawal, nil
}

// ListWithdrawals returns the caller's withdrawals, or all of them for
// admins.
func (s *Service) ListWithdrawals(userID string, isAdmin bool) ([]types.Withdrawal, error) {
	if isAdmin {
		return s.db.ListWithdrawals("")
	}
	return s.db.ListWithdrawals(userID)
}

// ListDeposits returns the caller's deposits.
func (s *Service) ListDeposits(userID string) ([]types.Deposit, error) {
	return s.db.ListDeposits(userID)
}

// GinHandlers contains HTTP handlers for funding endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// DepositHandler handles POST requests to record deposits
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Asset  string  `json:"asset" binding:"required"`
			Amount float64 `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		deposit, err := h.service.Deposit(c.GetString("user_id"), body.Asset, body.Amount)
		response.Handle(c, deposit, err)
	}
}

// ListDepositsHandler handles GET requests for the caller's deposits
func (h *GinHandlers) ListDepositsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deposits, err := h.service.ListDeposits(c.GetString("user_id"))
		response.Handle(c, deposits, err)
	}
}

// RequestWithdrawalHandler handles POST requests to create withdrawals
func (h *GinHandlers) RequestWithdrawalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Asset     string  `json:"asset" binding:"required"`
			Amount    float64 `json:"amount" binding:"required"`
			ToAddress string  `json:"to_address" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		withdrawal, err := h.service.RequestWithdrawal(c.GetString("user_id"), body.Asset, body.Amount, body.ToAddress)
		response.Handle(c, withdrawal, err)
	}
}

// ListWithdrawalsHandler handles GET requests for withdrawals
// Admins see every withdrawal; users see their own.
func (h *GinHandlers) ListWithdrawalsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		withdrawals, err := h.service.ListWithdrawals(c.GetString("user_id"), c.GetBool("is_admin"))
		response.Handle(c, withdrawals, err)
	}
}

// DecideWithdrawalHandler handles POST requests to approve or reject
// withdrawals. Admin only.
// URL parameter: withdrawal_id
func (h *GinHandlers) DecideWithdrawalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Approve *bool `json:"approve" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		withdrawal, err := h.service.Decide(c.Param("withdrawal_id"), *body.Approve)
		response.Handle(c, withdrawal, err)
	}
}
