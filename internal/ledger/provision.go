package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/lavoex/exchange-api/internal/types"
	"github.com/rs/zerolog/log"
)

// EnsureWallets creates a zero-balance wallet for every supported asset the
// user does not have one for yet. Idempotent and safe to race: a second or
// concurrent call produces no duplicates and no side effects.
func (e *Engine) EnsureWallets(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", types.ErrInvalidInput)
	}

	for _, asset := range types.SupportedAssets {
		wallet := &types.Wallet{
			WalletID: "WAL_" + uuid.New().String(),
			UserID:   userID,
			Asset:    asset,
			Address:  DepositAddress(asset, userID),
			Balance:  0,
		}
		if err := e.db.CreateWalletIfAbsent(wallet); err != nil {
			return fmt.Errorf("failed to provision %s wallet: %w", asset, err)
		}
	}

	log.Debug().
		Str("service", "ledger").
		Str("user_id", userID).
		Int("assets", len(types.SupportedAssets)).
		Msg("wallets provisioned")
	return nil
}

// DepositAddress derives the deterministic display address for a wallet.
// Addresses are opaque strings, not real chain addresses.
func DepositAddress(asset, userID string) string {
	suffix := userID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return asset + "_ADDR_" + suffix
}
