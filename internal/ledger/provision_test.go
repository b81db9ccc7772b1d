package ledger

import (
	"sync"
	"testing"

	"github.com/lavoex/exchange-api/internal/types"
)

func TestEnsureWalletsIdempotent(t *testing.T) {
	engine := setupTestEngine(t)

	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("First EnsureWallets failed: %v", err)
	}
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("Second EnsureWallets failed: %v", err)
	}

	wallets, err := engine.Wallets("user1")
	if err != nil {
		t.Fatalf("Wallets failed: %v", err)
	}
	if len(wallets) != len(types.SupportedAssets) {
		t.Fatalf("Expected %d wallets, got %d", len(types.SupportedAssets), len(wallets))
	}
	for _, w := range wallets {
		if w.Balance != 0 {
			t.Errorf("Expected zero balance for %s wallet, got %v", w.Asset, w.Balance)
		}
		if w.Address == "" {
			t.Errorf("Expected address for %s wallet", w.Asset)
		}
	}
}

func TestEnsureWalletsConcurrent(t *testing.T) {
	engine := setupTestEngine(t)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- engine.EnsureWallets("user1")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Concurrent EnsureWallets failed: %v", err)
		}
	}

	wallets, err := engine.Wallets("user1")
	if err != nil {
		t.Fatalf("Wallets failed: %v", err)
	}
	if len(wallets) != len(types.SupportedAssets) {
		t.Errorf("Expected %d wallets after concurrent provisioning, got %d",
			len(types.SupportedAssets), len(wallets))
	}
}

func TestDepositAddressDeterministic(t *testing.T) {
	got := DepositAddress("BTC", "USR_123456789")
	if got != "BTC_ADDR_456789" {
		t.Errorf("Expected BTC_ADDR_456789, got %s", got)
	}

	// Short IDs use the whole ID as suffix
	if got := DepositAddress("ETH", "abc"); got != "ETH_ADDR_abc" {
		t.Errorf("Expected ETH_ADDR_abc, got %s", got)
	}

	if DepositAddress("BTC", "USR_123456789") != DepositAddress("BTC", "USR_123456789") {
		t.Error("Address derivation is not deterministic")
	}
}
