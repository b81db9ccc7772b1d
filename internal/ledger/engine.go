package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lavoex/exchange-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Engine is the transactional balance-mutation core. It is the sole writer
// of wallet balances: deposits, withdrawals, orders, escrow trades and yield
// payouts are all expressed as one or two engine calls.
type Engine struct {
	db          *Database
	maxAttempts int
}

// mutation is a signed balance delta against one wallet.
type mutation struct {
	UserID string
	Asset  string
	Delta  float64
}

func NewEngine(gormDB *gorm.DB) *Engine {
	return &Engine{
		db:          NewDatabase(gormDB),
		maxAttempts: 5,
	}
}

// Credit increases the wallet balance. Fails only on malformed input or a
// missing wallet.
func (e *Engine) Credit(userID, asset string, amount float64) error {
	if err := validateMutation(userID, asset, amount); err != nil {
		return err
	}
	log.Debug().
		Str("service", "ledger").
		Str("user_id", userID).
		Str("asset", asset).
		Float64("amount", amount).
		Msg("credit")
	return e.apply(mutation{UserID: userID, Asset: asset, Delta: amount})
}

// Debit decreases the wallet balance, failing with ErrInsufficientFunds when
// the amount exceeds the current balance.
func (e *Engine) Debit(userID, asset string, amount float64) error {
	if err := validateMutation(userID, asset, amount); err != nil {
		return err
	}
	log.Debug().
		Str("service", "ledger").
		Str("user_id", userID).
		Str("asset", asset).
		Float64("amount", amount).
		Msg("debit")
	return e.apply(mutation{UserID: userID, Asset: asset, Delta: -amount})
}

// Transfer moves amount from one user to another in a single atomic unit:
// either both the debit and the credit are durably recorded or neither is.
func (e *Engine) Transfer(fromUserID, toUserID, asset string, amount float64) error {
	if err := validateMutation(fromUserID, asset, amount); err != nil {
		return err
	}
	if toUserID == "" || fromUserID == toUserID {
		return fmt.Errorf("%w: invalid transfer counterparty", types.ErrInvalidInput)
	}
	log.Debug().
		Str("service", "ledger").
		Str("from_user_id", fromUserID).
		Str("to_user_id", toUserID).
		Str("asset", asset).
		Float64("amount", amount).
		Msg("transfer")
	return e.apply(
		mutation{UserID: fromUserID, Asset: asset, Delta: -amount},
		mutation{UserID: toUserID, Asset: asset, Delta: amount},
	)
}

// Exchange debits one asset and credits another on the same user atomically.
// Order execution is built on this: a failed debit aborts before any credit,
// so partial application is never observed.
func (e *Engine) Exchange(userID, debitAsset string, debitAmount float64, creditAsset string, creditAmount float64) error {
	if err := validateMutation(userID, debitAsset, debitAmount); err != nil {
		return err
	}
	if err := validateMutation(userID, creditAsset, creditAmount); err != nil {
		return err
	}
	if debitAsset == creditAsset {
		return fmt.Errorf("%w: exchange assets must differ", types.ErrInvalidInput)
	}
	log.Debug().
		Str("service", "ledger").
		Str("user_id", userID).
		Str("debit_asset", debitAsset).
		Float64("debit_amount", debitAmount).
		Str("credit_asset", creditAsset).
		Float64("credit_amount", creditAmount).
		Msg("exchange")
	return e.apply(
		mutation{UserID: userID, Asset: debitAsset, Delta: -debitAmount},
		mutation{UserID: userID, Asset: creditAsset, Delta: creditAmount},
	)
}

// Balance returns the current balance for the wallet.
func (e *Engine) Balance(userID, asset string) (float64, error) {
	wallet, err := e.db.GetWallet(userID, asset)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// Wallets returns all wallets for the user.
func (e *Engine) Wallets(userID string) ([]types.Wallet, error) {
	return e.db.GetWallets(userID)
}

// apply commits the mutation set with a bounded optimistic retry loop.
// Mutations are sorted into the global (user, asset) order first so that
// concurrent multi-wallet operations touch rows in the same sequence and
// cannot deadlock each other. Exhausting the retry budget surfaces
// ErrContention; the caller may retry the whole request.
func (e *Engine) apply(muts ...mutation) error {
	sort.Slice(muts, func(i, j int) bool {
		if muts[i].UserID != muts[j].UserID {
			return muts[i].UserID < muts[j].UserID
		}
		return muts[i].Asset < muts[j].Asset
	})

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err := e.db.applyMutations(muts)
		if err == nil {
			return nil
		}
		if errors.Is(err, errVersionConflict) {
			log.Debug().
				Str("service", "ledger").
				Int("attempt", attempt).
				Msg("wallet version conflict, retrying mutation set")
			continue
		}
		return err
	}

	log.Warn().
		Str("service", "ledger").
		Int("attempts", e.maxAttempts).
		Msg("mutation retry budget exhausted")
	return types.ErrContention
}

func validateMutation(userID, asset string, amount float64) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", types.ErrInvalidInput)
	}
	if !types.ValidAsset(asset) {
		return fmt.Errorf("%w: unsupported asset %q", types.ErrInvalidInput, asset)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", types.ErrInvalidInput)
	}
	return nil
}
