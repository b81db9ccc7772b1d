package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serverAddress = "http://localhost:8080"

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes min, max, mean and median durations for the route
func (rs *routeStats) calculate() (min, max, mean, median time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	return
}

// apiResponse mirrors the server's response envelope
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// simulationClient handles HTTP communication with the exchange API
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 15 * time.Second},
		stats: map[string]*routeStats{
			"auth":     {name: "Auth"},
			"deposit":  {name: "Deposit"},
			"withdraw": {name: "Withdrawal"},
			"order":    {name: "Market Order"},
			"p2p":      {name: "P2P"},
			"earn":     {name: "Earn"},
		},
	}
}

// call performs a request against the API and decodes the response envelope
func (sc *simulationClient) call(stat, method, path, token string, body interface{}) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		sc.stats[stat].addDuration(time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats[stat].failures++
		return nil, err
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		sc.stats[stat].failures++
		return nil, err
	}
	if !envelope.Success {
		sc.stats[stat].failures++
		if envelope.Error != nil {
			return nil, fmt.Errorf("%s %s: %s (%s)", method, path, envelope.Error.Message, envelope.Error.Code)
		}
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return envelope.Data, nil
}

func (sc *simulationClient) register(email, password string) (string, error) {
	data, err := sc.call("auth", http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (sc *simulationClient) login(email, password string) (string, error) {
	data, err := sc.call("auth", http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (sc *simulationClient) printStats() {
	fmt.Println("\nRoute statistics:")
	for _, rs := range sc.stats {
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median := rs.calculate()
		fmt.Printf("  %-14s calls=%-4d failures=%-3d min=%v max=%v mean=%v median=%v\n",
			rs.name, rs.totalCalls, rs.failures, min, max, mean, median)
	}
}

// main drives an end-to-end flow against a running server: two users funded
// by deposits, a market order, a P2P escrow round-trip, an earn
// subscription and a withdrawal approval. The server must be started with
// ADMIN_EMAIL/ADMIN_PASSWORD matching the values below.
func main() {
	sc := newSimulationClient()
	run := time.Now().UnixNano()

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminEmail == "" {
		adminEmail = "admin@lavo.exchange"
		adminPassword = "admin-password"
	}

	adminToken, err := sc.login(adminEmail, adminPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("admin login failed, is the server running with ADMIN_EMAIL set?")
	}

	aliceToken, err := sc.register(fmt.Sprintf("alice+%d@example.com", run), "simulation-pass")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register first user")
	}
	bobToken, err := sc.register(fmt.Sprintf("bob+%d@example.com", run), "simulation-pass")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register second user")
	}
	log.Info().Msg("registered two users")

	// Fund both users
	if _, err := sc.call("deposit", http.MethodPost, "/api/v1/deposits", aliceToken, map[string]interface{}{
		"asset": "USDT", "amount": 10000.0,
	}); err != nil {
		log.Fatal().Err(err).Msg("deposit failed")
	}
	if _, err := sc.call("deposit", http.MethodPost, "/api/v1/deposits", bobToken, map[string]interface{}{
		"asset": "BTC", "amount": 1.5,
	}); err != nil {
		log.Fatal().Err(err).Msg("deposit failed")
	}
	log.Info().Msg("deposits completed")

	// Market order: may fail when the external feed is unreachable, which
	// is fine for the rest of the flow.
	if _, err := sc.call("order", http.MethodPost, "/api/v1/orders", aliceToken, map[string]interface{}{
		"side": "buy", "pair": "BTC-USDT", "amount": 0.01,
	}); err != nil {
		log.Warn().Err(err).Msg("market order failed, continuing")
	} else {
		log.Info().Msg("market order filled")
	}

	// P2P: bob sells 0.5 BTC to alice and releases escrow
	offerData, err := sc.call("p2p", http.MethodPost, "/api/v1/p2p/offers", bobToken, map[string]interface{}{
		"asset": "BTC", "side": "sell", "price": 64000.0,
		"min_amount": 0.1, "max_amount": 1.0,
		"payment_methods": []string{"SEPA"},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("offer creation failed")
	}
	var offer struct {
		OfferID string `json:"offer_id"`
	}
	if err := json.Unmarshal(offerData, &offer); err != nil {
		log.Fatal().Err(err).Msg("bad offer payload")
	}

	tradeData, err := sc.call("p2p", http.MethodPost, "/api/v1/p2p/deals", aliceToken, map[string]interface{}{
		"offer_id": offer.OfferID, "amount": 0.5,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("deal open failed")
	}
	var trade struct {
		TradeID string `json:"trade_id"`
	}
	if err := json.Unmarshal(tradeData, &trade); err != nil {
		log.Fatal().Err(err).Msg("bad trade payload")
	}

	if _, err := sc.call("p2p", http.MethodPost, "/api/v1/p2p/deals/"+trade.TradeID+"/release", bobToken, nil); err != nil {
		log.Fatal().Err(err).Msg("escrow release failed")
	}
	log.Info().Str("trade_id", trade.TradeID).Msg("p2p escrow round-trip completed")

	// Earn: admin creates a product, alice subscribes and redeems
	productData, err := sc.call("earn", http.MethodPost, "/api/v1/admin/earn/products", adminToken, map[string]interface{}{
		"asset": "USDT", "apy": 8.0, "lock_days": 30,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("product creation failed")
	}
	var product struct {
		ProductID string `json:"product_id"`
	}
	if err := json.Unmarshal(productData, &product); err != nil {
		log.Fatal().Err(err).Msg("bad product payload")
	}

	subData, err := sc.call("earn", http.MethodPost, "/api/v1/earn/subscriptions", aliceToken, map[string]interface{}{
		"product_id": product.ProductID, "amount": 500.0,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("subscription failed")
	}
	var sub struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := json.Unmarshal(subData, &sub); err != nil {
		log.Fatal().Err(err).Msg("bad subscription payload")
	}
	if _, err := sc.call("earn", http.MethodPost, "/api/v1/earn/subscriptions/"+sub.SubscriptionID+"/redeem", aliceToken, nil); err != nil {
		log.Fatal().Err(err).Msg("redemption failed")
	}
	log.Info().Msg("earn subscribe/redeem completed")

	// Withdrawal: alice requests, admin approves
	wdData, err := sc.call("withdraw", http.MethodPost, "/api/v1/withdrawals", aliceToken, map[string]interface{}{
		"asset": "USDT", "amount": 100.0, "to_address": "USDT_EXT_SIMULATION",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("withdrawal request failed")
	}
	var wd struct {
		WithdrawalID string `json:"withdrawal_id"`
	}
	if err := json.Unmarshal(wdData, &wd); err != nil {
		log.Fatal().Err(err).Msg("bad withdrawal payload")
	}
	if _, err := sc.call("withdraw", http.MethodPost, "/api/v1/admin/withdrawals/"+wd.WithdrawalID+"/decide", adminToken, map[string]interface{}{
		"approve": true,
	}); err != nil {
		log.Fatal().Err(err).Msg("withdrawal approval failed")
	}
	log.Info().Str("withdrawal_id", wd.WithdrawalID).Msg("withdrawal approved and sent")

	sc.printStats()
}
