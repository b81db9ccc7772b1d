package types

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Supported assets and trading pairs. Every user has exactly one wallet per
// supported asset; market orders are restricted to the pair allow-list.
var (
	SupportedAssets = []string{"BTC", "ETH", "USDT"}
	SupportedPairs  = []string{"BTC-USDT", "ETH-USDT"}
)

// ValidAsset reports whether the asset is in the supported set.
func ValidAsset(asset string) bool {
	for _, a := range SupportedAssets {
		if a == asset {
			return true
		}
	}
	return false
}

// ValidPair reports whether the pair is in the allow-list.
func ValidPair(pair string) bool {
	for _, p := range SupportedPairs {
		if p == pair {
			return true
		}
	}
	return false
}

// SplitPair splits "BTC-USDT" into base and quote assets.
// Callers must validate the pair first.
func SplitPair(pair string) (base, quote string) {
	parts := strings.SplitN(pair, "-", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

const (
	KYCStatusPending  = "pending"
	KYCStatusApproved = "approved"
	KYCStatusRejected = "rejected"
)

type User struct {
	gorm.Model     `json:"-"`
	UserID         string     `gorm:"uniqueIndex" json:"user_id"`
	Email          string     `gorm:"uniqueIndex" json:"email"`
	PasswordHash   string     `json:"-"`
	FullName       string     `json:"full_name"`
	KYCStatus      string     `json:"kyc_status"` // pending, approved, rejected
	KYCSubmittedAt *time.Time `json:"kyc_submitted_at,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Wallet is the per-user, per-asset balance record. Balances are mutated
// exclusively by the ledger engine; Version backs its compare-and-swap
// updates.
type Wallet struct {
	gorm.Model `json:"-"`
	WalletID   string    `gorm:"uniqueIndex" json:"wallet_id"`
	UserID     string    `gorm:"uniqueIndex:idx_wallet_user_asset" json:"user_id"`
	Asset      string    `gorm:"uniqueIndex:idx_wallet_user_asset" json:"asset"`
	Address    string    `json:"address"`
	Balance    float64   `json:"balance"`
	Version    int64     `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	DepositStatusPending   = "pending"
	DepositStatusCompleted = "completed"
	DepositStatusFailed    = "failed"
)

type Deposit struct {
	gorm.Model `json:"-"`
	DepositID  string    `gorm:"uniqueIndex" json:"deposit_id"`
	UserID     string    `gorm:"index" json:"user_id"`
	Asset      string    `json:"asset"`
	Amount     float64   `json:"amount"`
	TxID       string    `json:"txid,omitempty"`
	Status     string    `json:"status"` // pending, completed, failed
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	WithdrawalStatusPending  = "pending"
	WithdrawalStatusApproved = "approved"
	WithdrawalStatusRejected = "rejected"
	WithdrawalStatusSent     = "sent"
)

type Withdrawal struct {
	gorm.Model   `json:"-"`
	WithdrawalID string    `gorm:"uniqueIndex" json:"withdrawal_id"`
	UserID       string    `gorm:"index" json:"user_id"`
	Asset        string    `json:"asset"`
	Amount       float64   `json:"amount"`
	ToAddress    string    `json:"to_address"`
	Status       string    `json:"status"` // pending, approved, rejected, sent
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	OrderStatusFilled = "filled"
)

// Order is an executed market order. Orders fill instantly against a single
// quoted price and are immutable once created.
type Order struct {
	gorm.Model    `json:"-"`
	OrderID       string    `gorm:"uniqueIndex" json:"order_id"`
	UserID        string    `gorm:"index" json:"user_id"`
	Side          string    `json:"side"` // buy or sell
	Pair          string    `json:"pair"`
	Amount        float64   `json:"amount"` // base-asset units
	PriceExecuted float64   `json:"price_executed"`
	Status        string    `json:"status"` // filled
	CreatedAt     time.Time `json:"created_at"`
}

const (
	OfferStatusActive    = "active"
	OfferStatusPaused    = "paused"
	OfferStatusFilled    = "filled"
	OfferStatusCancelled = "cancelled"
)

type P2POffer struct {
	gorm.Model `json:"-"`
	OfferID    string  `gorm:"uniqueIndex" json:"offer_id"`
	UserID     string  `gorm:"index" json:"user_id"`
	Asset      string  `json:"asset"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	MinAmount  float64 `json:"min_amount"`
	MaxAmount  float64 `json:"max_amount"`
	// JSON-encoded list of payment method labels
	PaymentMethods string    `json:"payment_methods"`
	Status         string    `json:"status"` // active, paused, filled, cancelled
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const (
	TradeStatusEscrow    = "escrow"
	TradeStatusReleased  = "released"
	TradeStatusCancelled = "cancelled"
)

// P2PTrade holds escrowed funds implicitly: the seller's balance is debited
// when the deal opens and the amount lives on the trade record until release
// or cancellation.
type P2PTrade struct {
	gorm.Model `json:"-"`
	TradeID    string    `gorm:"uniqueIndex" json:"trade_id"`
	OfferID    string    `gorm:"index" json:"offer_id"`
	BuyerID    string    `gorm:"index" json:"buyer_id"`
	SellerID   string    `gorm:"index" json:"seller_id"`
	Asset      string    `json:"asset"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	Status     string    `json:"status"` // escrow, released, cancelled
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

type EarnProduct struct {
	gorm.Model `json:"-"`
	ProductID  string    `gorm:"uniqueIndex" json:"product_id"`
	Asset      string    `json:"asset"`
	APY        float64   `json:"apy"`       // percent, annualized
	LockDays   int       `json:"lock_days"` // informational, not enforced
	Status     string    `json:"status"`    // active, inactive
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	SubscriptionStatusAccruing  = "accruing"
	SubscriptionStatusRedeemed  = "redeemed"
	SubscriptionStatusCancelled = "cancelled"
)

type EarnSubscription struct {
	gorm.Model     `json:"-"`
	SubscriptionID string     `gorm:"uniqueIndex" json:"subscription_id"`
	UserID         string     `gorm:"index" json:"user_id"`
	ProductID      string     `json:"product_id"`
	Amount         float64    `json:"amount"` // principal
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Status         string     `json:"status"` // accruing, redeemed, cancelled
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type KYCSubmission struct {
	gorm.Model     `json:"-"`
	SubmissionID   string     `gorm:"uniqueIndex" json:"submission_id"`
	UserID         string     `gorm:"index" json:"user_id"`
	DocumentType   string     `json:"document_type"`
	DocumentNumber string     `json:"document_number"`
	Status         string     `json:"status"` // pending, approved, rejected
	SubmittedAt    time.Time  `json:"submitted_at"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
}
