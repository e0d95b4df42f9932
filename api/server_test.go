package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketcrash/db"
	"rocketcrash/engine"
	"rocketcrash/game"
	"rocketcrash/ws"
)

const testWallet = "0x1111111111111111111111111111111111111111"

func newTestServer(t *testing.T) (*httptest.Server, *db.MemStore) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := db.NewMemStore()
	eng := engine.New(engine.Options{Store: store, Logger: log})
	feed := ws.NewFeed(log)
	go feed.Run()

	mux := http.NewServeMux()
	NewServer(eng, nil, feed, nil, log).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestAdvanceOpensRound(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.AddPoolDeposit(context.Background(), 1000))

	resp := postJSON(t, srv.URL+"/api/round/advance", struct{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result engine.TickResult
	decode(t, resp, &result)
	assert.Equal(t, engine.ActionOpened, result.Action)
	require.NotNil(t, result.Round)
	assert.Empty(t, result.Round.ServerSeed, "seed stays hidden while betting")
}

func TestAdvanceReportsPoolPause(t *testing.T) {
	srv, _ := newTestServer(t)

	// Empty pool: the engine refuses to open and says why.
	resp := postJSON(t, srv.URL+"/api/round/advance", struct{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result engine.TickResult
	decode(t, resp, &result)
	assert.Equal(t, engine.ActionPaused, result.Action)
	assert.Equal(t, "pool below threshold", result.Reason)

	var status StatusResponse
	r, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	decode(t, r, &status)
	assert.False(t, status.Status.Enabled)
}

func TestTicketAndBetFlow(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.AddPoolDeposit(context.Background(), 1000))

	resp := postJSON(t, srv.URL+"/api/round/advance", struct{}{})
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/ticket/buy", BuyTicketRequest{
		Wallet: testWallet, FaceValue: 2, Currency: "A", Amount: 1.5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var ticket TicketResponse
	decode(t, resp, &ticket)

	resp = postJSON(t, srv.URL+"/api/bet", BetRequest{
		Wallet: testWallet, TicketID: ticket.Ticket.ID.String(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var bet BetResponse
	decode(t, resp, &bet)
	assert.Equal(t, 2.0, bet.Bet.StakeAmount)

	// Second bet for the same wallet maps to 409.
	resp = postJSON(t, srv.URL+"/api/ticket/buy", BuyTicketRequest{
		Wallet: testWallet, FaceValue: 1, Currency: "A", Amount: 1,
	})
	var second TicketResponse
	decode(t, resp, &second)
	resp = postJSON(t, srv.URL+"/api/bet", BetRequest{
		Wallet: testWallet, TicketID: second.Ticket.ID.String(),
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Garbage wallet maps to 400.
	resp = postJSON(t, srv.URL+"/api/ticket/buy", BuyTicketRequest{
		Wallet: "nope", FaceValue: 1, Currency: "A", Amount: 1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestVerifyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	seed := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	sum := sha256.Sum256([]byte(seed))
	hash := hex.EncodeToString(sum[:])
	cp := game.CrashPoint(seed, 7)

	url := fmt.Sprintf("%s/api/verify?serverSeed=%s&serverSeedHash=%s&sequence=7&crashPoint=%.2f", srv.URL, seed, hash, cp)
	resp, err := http.Get(url)
	require.NoError(t, err)
	var out VerifyResponse
	decode(t, resp, &out)
	assert.True(t, out.Valid)
	assert.InDelta(t, cp, out.ComputedCrashPoint, 0.005)

	// Tampered crash point fails verification.
	url = fmt.Sprintf("%s/api/verify?serverSeed=%s&serverSeedHash=%s&sequence=7&crashPoint=%.2f", srv.URL, seed, hash, cp+1)
	resp, err = http.Get(url)
	require.NoError(t, err)
	decode(t, resp, &out)
	assert.False(t, out.Valid)
}

func TestHealthOnMemoryStore(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	decode(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "memory", health.Database)
	assert.Equal(t, "disabled", health.Redis)
}

func TestPoolDepositAndStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/pool/deposit", DepositRequest{Amount: 500})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	r, err := http.Get(srv.URL + "/api/pool")
	require.NoError(t, err)
	var pool PoolResponse
	decode(t, r, &pool)
	assert.Equal(t, 500.0, pool.Pool.CurrentBalance)

	// Zero deposit is a validation error.
	resp = postJSON(t, srv.URL+"/api/pool/deposit", DepositRequest{Amount: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
