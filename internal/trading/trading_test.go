package trading

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lavoex/exchange-api/internal/database"
	"github.com/lavoex/exchange-api/internal/ledger"
	"github.com/lavoex/exchange-api/internal/pricefeed"
	"github.com/lavoex/exchange-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestService(t *testing.T, feed pricefeed.Feed) (*Service, *ledger.Engine) {
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
	return NewService(db, engine, feed), engine
}

func staticFeed() *pricefeed.StaticFeed {
	return &pricefeed.StaticFeed{Prices: map[string]float64{
		"BTC-USDT": 50000.0,
		"ETH-USDT": 2000.0,
	}}
}

func balance(t *testing.T, engine *ledger.Engine, userID, asset string) float64 {
	t.Helper()
	got, err := engine.Balance(userID, asset)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	return got
}

func TestExecuteMarketOrderBuy(t *testing.T) {
	service, engine := setupTestService(t, staticFeed())
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}
	if err := engine.Credit("user1", "USDT", 5000.0); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	order, err := service.ExecuteMarketOrder(context.Background(), "user1", types.SideBuy, "ETH-USDT", 1.0)
	if err != nil {
		t.Fatalf("ExecuteMarketOrder failed: %v", err)
	}
	if order.Status != types.OrderStatusFilled {
		t.Errorf("Expected status filled, got %s", order.Status)
	}
	if order.PriceExecuted != 2000.0 {
		t.Errorf("Expected fill price 2000.0, got %v", order.PriceExecuted)
	}
	if got := balance(t, engine, "user1", "ETH"); got != 1.0 {
		t.Errorf("Expected 1.0 ETH, got %v", got)
	}
	if got := balance(t, engine, "user1", "USDT"); got != 3000.0 {
		t.Errorf("Expected 3000.0 USDT, got %v", got)
	}
}

func TestExecuteMarketOrderSell(t *testing.T) {
	service, engine := setupTestService(t, staticFeed())
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}
	if err := engine.Credit("user1", "BTC", 2.0); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	_, err := service.ExecuteMarketOrder(context.Background(), "user1", types.SideSell, "BTC-USDT", 0.5)
	if err != nil {
		t.Fatalf("ExecuteMarketOrder failed: %v", err)
	}
	if got := balance(t, engine, "user1", "BTC"); got != 1.5 {
		t.Errorf("Expected 1.5 BTC, got %v", got)
	}
	if got := balance(t, engine, "user1", "USDT"); got != 25000.0 {
		t.Errorf("Expected 25000.0 USDT, got %v", got)
	}
}

// TestBuyInsufficientQuoteBalance checks that a failed fill leaves both
// legs untouched and records no order.
func TestBuyInsufficientQuoteBalance(t *testing.T) {
	service, engine := setupTestService(t, staticFeed())
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}
	if err := engine.Credit("user1", "USDT", 100.0); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	_, err := service.ExecuteMarketOrder(context.Background(), "user1", types.SideBuy, "ETH-USDT", 1.0)
	if !errors.Is(err, types.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	if got := balance(t, engine, "user1", "USDT"); got != 100.0 {
		t.Errorf("Expected USDT untouched at 100.0, got %v", got)
	}
	if got := balance(t, engine, "user1", "ETH"); got != 0.0 {
		t.Errorf("Expected ETH untouched at 0.0, got %v", got)
	}
	orders, err := service.ListOrders("user1")
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("Expected no orders recorded, got %d", len(orders))
	}
}

func TestExecuteMarketOrderValidation(t *testing.T) {
	service, _ := setupTestService(t, staticFeed())

	cases := []struct {
		name   string
		side   string
		pair   string
		amount float64
	}{
		{"unknown pair", types.SideBuy, "DOGE-USDT", 1.0},
		{"bad side", "short", "BTC-USDT", 1.0},
		{"zero amount", types.SideBuy, "BTC-USDT", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.ExecuteMarketOrder(context.Background(), "user1", tc.side, tc.pair, tc.amount)
			if !errors.Is(err, types.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestExecuteMarketOrderFeedUnavailable(t *testing.T) {
	service, engine := setupTestService(t, &pricefeed.StaticFeed{Prices: map[string]float64{}})
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}

	_, err := service.ExecuteMarketOrder(context.Background(), "user1", types.SideBuy, "BTC-USDT", 1.0)
	if !errors.Is(err, types.ErrFeedUnavailable) {
		t.Fatalf("Expected ErrFeedUnavailable, got %v", err)
	}
}

func TestPricesPartialFailure(t *testing.T) {
	feed := &pricefeed.StaticFeed{Prices: map[string]float64{"BTC-USDT": 50000.0}}
	service, _ := setupTestService(t, feed)

	prices := service.Prices(context.Background())
	if prices["BTC-USDT"] == nil || *prices["BTC-USDT"] != 50000.0 {
		t.Errorf("Expected BTC-USDT price 50000.0, got %v", prices["BTC-USDT"])
	}
	if price, ok := prices["ETH-USDT"]; !ok || price != nil {
		t.Errorf("Expected nil entry for unavailable ETH-USDT, got %v", price)
	}
}

func TestGetOrderScopedToUser(t *testing.T) {
	service, engine := setupTestService(t, staticFeed())
	if err := engine.EnsureWallets("user1"); err != nil {
		t.Fatalf("EnsureWallets failed: %v", err)
	}
	if err := engine.Credit("user1", "USDT", 5000.0); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	order, err := service.ExecuteMarketOrder(context.Background(), "user1", types.SideBuy, "ETH-USDT", 1.0)
	if err != nil {
		t.Fatalf("ExecuteMarketOrder failed: %v", err)
	}

	if _, err := service.GetOrder(order.OrderID, "user2"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for foreign user, got %v", err)
	}
	got, err := service.GetOrder(order.OrderID, "user1")
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.OrderID != order.OrderID {
		t.Errorf("Expected order %s, got %s", order.OrderID, got.OrderID)
	}
}
