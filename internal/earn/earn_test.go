package earn

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/lavoex/exchange-api/internal/database"
	"github.com/lavoex/exchange-api/internal/ledger"
	"github.com/lavoex/exchange-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestService(t *testing.T) (*Service, *ledger.Engine) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate schema: %v", err)
	}
	t.Cleanup(func() {
		sqlDB.Close()
	})

	engine := ledger.NewEngine(db)
	return NewService(db, engine), engine
}

func balance(t *testing.T, engine *ledger.Engine, userID, asset string) float64 {
	t.Helper()
	got, err := engine.Balance(userID, asset)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	return got
}

func TestCreateProductValidation(t *testing.T) {
	service, _ := setupTestService(t)

	if _, err := service.CreateProduct("DOGE", 10.0, 30); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unsupported asset, got %v", err)
	}
	if _, err := service.CreateProduct("USDT", 0, 30); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero apy, got %v", err)
	}
	if _, err := service.CreateProduct("USDT", 10.0, -1); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative lock days, got %v", err)
	}
}

// TestFullYearReward subscribes 100 USDT at 10% APY and redeems exactly 365
// days later; the reward must come out to 10.
func TestFullYearReward(t *testing.T) {
	service, engine := setupTestService(t)
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}
	if err := engine.Credit("user1", "USDT", 100.0); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return start }

	product, err := service.CreateProduct("USDT", 10.0, 90)
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	subscription, err := service.Subscribe("user1", product.ProductID, 100.0)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if got := balance(t, engine, "user1", "USDT"); got != 0 {
		t.Errorf("Expected principal debited to 0, got %v", got)
	}

	service.now = func() time.Time { return start.AddDate(1, 0, 0) }
	result, err := service.Redeem("user1", subscription.SubscriptionID)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if math.Abs(result.Reward-10.0) > 1e-9 {
		t.Errorf("Expected reward 10.0, got %v", result.Reward)
	}
	if math.Abs(result.Payout-110.0) > 1e-9 {
		t.Errorf("Expected payout 110.0, got %v", result.Payout)
	}
	if got := balance(t, engine, "user1", "USDT"); math.Abs(got-110.0) > 1e-9 {
		t.Errorf("Expected balance 110.0, got %v", got)
	}
	if result.Subscription.Status != types.SubscriptionStatusRedeemed {
		t.Errorf("Expected status redeemed, got %s", result.Subscription.Status)
	}
	if result.Subscription.EndDate == nil {
		t.Error("Expected end date to be set")
	}
}

// TestSameDayRedemption redeems before a full day has elapsed; the reward is
// zero and only the principal comes back.
func TestSameDayRedemption(t *testing.T) {
	service, engine := setupTestService(t)
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}
	if err := engine.Credit("user1", "USDT", 100.0); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return start }

	product, err := service.CreateProduct("USDT", 10.0, 90)
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	subscription, err := service.Subscribe("user1", product.ProductID, 100.0)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	service.now = func() time.Time { return start.Add(6 * time.Hour) }
	result, err := service.Redeem("user1", subscription.SubscriptionID)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if result.Reward != 0 {
		t.Errorf("Expected zero reward, got %v", result.Reward)
	}
	if got := balance(t, engine, "user1", "USDT"); got != 100.0 {
		t.Errorf("Expected balance 100.0, got %v", got)
	}
}

func TestRedeemTwiceRejected(t *testing.T) {
	service, engine := setupTestService(t)
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}
	if err := engine.Credit("user1", "USDT", 100.0); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	product, err := service.CreateProduct("USDT", 10.0, 90)
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	subscription, err := service.Subscribe("user1", product.ProductID, 100.0)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := service.Redeem("user1", subscription.SubscriptionID); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	if _, err := service.Redeem("user1", subscription.SubscriptionID); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState on second redemption, got %v", err)
	}
}

// TestConcurrentRedemptionsPayOnce races two redemptions of the same
// subscription; only one may claim the accruing transition, so the payout
// lands exactly once.
func TestConcurrentRedemptionsPayOnce(t *testing.T) {
	service, engine := setupTestService(t)
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}
	if err := engine.Credit("user1", "USDT", 100.0); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	product, err := service.CreateProduct("USDT", 10.0, 90)
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	subscription, err := service.Subscribe("user1", product.ProductID, 100.0)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Redeem("user1", subscription.SubscriptionID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins int
	for err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, types.ErrInvalidState) {
			t.Fatalf("Unexpected redemption error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("Expected exactly one winning redemption, got %d", wins)
	}
	if got := balance(t, engine, "user1", "USDT"); got != 100.0 {
		t.Errorf("Expected principal paid back exactly once, got %v", got)
	}
}

func TestRedeemForeignSubscription(t *testing.T) {
	service, engine := setupTestService(t)
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}
	if err := engine.Credit("user1", "USDT", 100.0); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	product, err := service.CreateProduct("USDT", 10.0, 90)
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	subscription, err := service.Subscribe("user1", product.ProductID, 100.0)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if _, err := service.Redeem("user2", subscription.SubscriptionID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for foreign user, got %v", err)
	}
}

func TestSubscribeInsufficientFunds(t *testing.T) {
	service, engine := setupTestService(t)
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}

	product, err := service.CreateProduct("USDT", 10.0, 90)
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	if _, err := service.Subscribe("user1", product.ProductID, 100.0); !errors.Is(err, types.ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
	subscriptions, err := service.ListSubscriptions("user1")
	if err != nil {
		t.Fatalf("ListSubscriptions failed: %v", err)
	}
	if len(subscriptions) != 0 {
		t.Errorf("Expected no subscriptions, got %d", len(subscriptions))
	}
}

func TestSubscribeInactiveProduct(t *testing.T) {
	service, engine := setupTestService(t)
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}
	if err := engine.Credit("user1", "USDT", 100.0); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	product, err := service.CreateProduct("USDT", 10.0, 90)
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	if err := service.db.SetProductStatus(product.ProductID, types.ProductStatusInactive); err != nil {
		t.Fatalf("SetProductStatus failed: %v", err)
	}

	if _, err := service.Subscribe("user1", product.ProductID, 100.0); !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
}
