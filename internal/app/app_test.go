package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"people-registry/config"
	"people-registry/internal/core/domain"
	"people-registry/internal/service"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp runs the full stack over the memory substrate, optionally with
// miniredis standing in for Redis.
type testApp struct {
	app    *App
	server *httptest.Server
	redis  *miniredis.Miniredis
}

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: config.StorageMemory},
		JWT:     config.JWTConfig{Secret: "test-jwt-secret-key-32bytes!!", Expiry: time.Hour, Issuer: "people-registry-test"},
		Ledger:  config.LedgerConfig{Fee: "1", InitialAllowance: "100"},
	}
}

func newTestApp(t *testing.T, withRedis bool, opts ...Option) *testApp {
	t.Helper()

	ta := &testApp{}
	opts = append(opts, WithArgon2Params(service.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}))
	if withRedis {
		ta.redis = miniredis.RunT(t)
		rdb := goredis.NewClient(&goredis.Options{Addr: ta.redis.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		opts = append(opts, WithRedisClient(rdb))
	}

	a, err := New(context.Background(), testConfig(), zerolog.Nop(), opts...)
	require.NoError(t, err)
	ta.app = a
	ta.server = httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		ta.server.Close()
		a.Close()
	})
	return ta
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
}

// do sends a JSON request and decodes the envelope. body may be nil.
func (ta *testApp) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (int, envelope) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ta.server.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decodeInto(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

// registerAndLogin returns the new account's address and a bearer token.
func (ta *testApp) registerAndLogin(t *testing.T, username string) (string, string) {
	t.Helper()
	creds := map[string]string{"username": username, "password": "StrongPass123!"}

	code, env := ta.do(t, http.MethodPost, "/api/v1/accounts/register", "", creds)
	require.Equal(t, http.StatusCreated, code, env.ErrorCode)
	var reg struct {
		Address string `json:"address"`
	}
	decodeInto(t, env, &reg)

	code, env = ta.do(t, http.MethodPost, "/api/v1/accounts/login", "", creds)
	require.Equal(t, http.StatusOK, code, env.ErrorCode)
	var login struct {
		Token string `json:"token"`
	}
	decodeInto(t, env, &login)
	return reg.Address, login.Token
}

func (ta *testApp) deploy(t *testing.T, token string) string {
	t.Helper()
	code, env := ta.do(t, http.MethodPost, "/api/v1/ledgers", token, nil)
	require.Equal(t, http.StatusCreated, code, env.ErrorCode)
	var ledger struct {
		ID string `json:"id"`
	}
	decodeInto(t, env, &ledger)
	return ledger.ID
}

type ledgerSummary struct {
	Balance    string `json:"balance"`
	Held       string `json:"held"`
	Persons    int64  `json:"persons"`
	Reconciled bool   `json:"reconciled"`
}

func (ta *testApp) summary(t *testing.T, token, ledgerID string) ledgerSummary {
	t.Helper()
	code, env := ta.do(t, http.MethodGet, "/api/v1/ledgers/"+ledgerID, token, nil)
	require.Equal(t, http.StatusOK, code, env.ErrorCode)
	var s ledgerSummary
	decodeInto(t, env, &s)
	return s
}

func (ta *testApp) funds(t *testing.T, token string) string {
	t.Helper()
	code, env := ta.do(t, http.MethodGet, "/api/v1/accounts/me", token, nil)
	require.Equal(t, http.StatusOK, code, env.ErrorCode)
	var me struct {
		Funds string `json:"funds"`
	}
	decodeInto(t, env, &me)
	return me.Funds
}

func person(name string, age int, payment string) map[string]interface{} {
	return map[string]interface{}{"name": name, "age": age, "height": 190, "payment": payment}
}

func TestApp_Scenario(t *testing.T) {
	ta := newTestApp(t, true)

	_, ownerToken := ta.registerAndLogin(t, "owner")
	bobAddr, bobToken := ta.registerAndLogin(t, "bob")
	ledgerID := ta.deploy(t, ownerToken)
	personsPath := "/api/v1/ledgers/" + ledgerID + "/persons"

	code, env := ta.do(t, http.MethodPost, personsPath, bobToken, person("Bob", 200, "1"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "REG_001", env.ErrorCode)

	code, env = ta.do(t, http.MethodPost, personsPath, bobToken, person("Bob", 50, "0.000001"))
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "REG_002", env.ErrorCode)

	s := ta.summary(t, ownerToken, ledgerID)
	assert.Equal(t, "0", s.Balance)
	assert.Equal(t, int64(0), s.Persons)
	assert.Equal(t, "100", ta.funds(t, bobToken))

	code, env = ta.do(t, http.MethodPost, personsPath, bobToken, person("Bob", 65, "1"))
	require.Equal(t, http.StatusCreated, code, env.ErrorCode)

	code, env = ta.do(t, http.MethodGet, personsPath+"/me", bobToken, nil)
	require.Equal(t, http.StatusOK, code, env.ErrorCode)
	var got struct {
		Name   string `json:"name"`
		Age    uint64 `json:"age"`
		Senior bool   `json:"senior"`
	}
	decodeInto(t, env, &got)
	assert.Equal(t, "Bob", got.Name)
	assert.Equal(t, uint64(65), got.Age)
	assert.True(t, got.Senior)
	assert.Equal(t, "99", ta.funds(t, bobToken))

	// Non-owner privileged operations.
	code, env = ta.do(t, http.MethodDelete, personsPath+"/"+bobAddr, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "REG_003", env.ErrorCode)
	code, env = ta.do(t, http.MethodPost, "/api/v1/ledgers/"+ledgerID+"/withdraw", bobToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "REG_003", env.ErrorCode)

	s = ta.summary(t, ownerToken, ledgerID)
	assert.Equal(t, "1", s.Balance)
	assert.True(t, s.Reconciled)

	code, env = ta.do(t, http.MethodPost, "/api/v1/ledgers/"+ledgerID+"/withdraw", ownerToken, nil)
	require.Equal(t, http.StatusOK, code, env.ErrorCode)
	var withdrawn struct {
		Amount string `json:"amount"`
	}
	decodeInto(t, env, &withdrawn)
	assert.Equal(t, "1", withdrawn.Amount)

	s = ta.summary(t, ownerToken, ledgerID)
	assert.Equal(t, "0", s.Balance)
	assert.Equal(t, "0", s.Held)
	assert.True(t, s.Reconciled)
	assert.Equal(t, "101", ta.funds(t, ownerToken))

	// Owner delete succeeds, and again on the now absent record.
	for i := 0; i < 2; i++ {
		code, env = ta.do(t, http.MethodDelete, personsPath+"/"+bobAddr, ownerToken, nil)
		assert.Equal(t, http.StatusOK, code, env.ErrorCode)
	}
	code, _ = ta.do(t, http.MethodGet, personsPath+"/me", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = ta.do(t, http.MethodGet, "/api/v1/ledgers/"+ledgerID+"/events", ownerToken, nil)
	require.Equal(t, http.StatusOK, code)
	var events struct {
		Items []struct {
			Type string `json:"type"`
		} `json:"items"`
	}
	decodeInto(t, env, &events)
	types := make([]string, 0, len(events.Items))
	for _, e := range events.Items {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		string(domain.EventPersonDeleted),
		string(domain.EventFundsWithdrawn),
		string(domain.EventPersonCreated),
		string(domain.EventLedgerDeployed),
	}, types)
}

func TestApp_IdempotentCreate(t *testing.T) {
	ta := newTestApp(t, true)

	_, ownerToken := ta.registerAndLogin(t, "owner")
	_, bobToken := ta.registerAndLogin(t, "bob")
	ledgerID := ta.deploy(t, ownerToken)

	for i := 0; i < 3; i++ {
		code, env := ta.do(t, http.MethodPost, "/api/v1/ledgers/"+ledgerID+"/persons", bobToken,
			person("Bob", 30, "1"), "Idempotency-Key", "create-bob-1")
		require.Equal(t, http.StatusCreated, code, env.ErrorCode)
	}

	s := ta.summary(t, ownerToken, ledgerID)
	assert.Equal(t, "1", s.Balance)
	assert.True(t, s.Reconciled)
	assert.Equal(t, "99", ta.funds(t, bobToken))
}

func TestApp_IdempotencyKeyReuse(t *testing.T) {
	ta := newTestApp(t, true)

	_, ownerToken := ta.registerAndLogin(t, "owner")
	bobAddr, bobToken := ta.registerAndLogin(t, "bob")
	ledgerID := ta.deploy(t, ownerToken)
	personsPath := "/api/v1/ledgers/" + ledgerID + "/persons"

	code, env := ta.do(t, http.MethodPost, personsPath, bobToken, person("Bob", 30, "1"), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, code, env.ErrorCode)

	// Same key, different body: a new create, not the earlier result.
	code, env = ta.do(t, http.MethodPost, personsPath, bobToken, person("Robert", 31, "1"), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, code, env.ErrorCode)
	var got struct {
		Name string `json:"name"`
		Age  uint64 `json:"age"`
	}
	decodeInto(t, env, &got)
	assert.Equal(t, "Robert", got.Name)
	assert.Equal(t, uint64(31), got.Age)
	assert.Equal(t, "98", ta.funds(t, bobToken))

	// The record is gone, so the original key and body create it again.
	code, env = ta.do(t, http.MethodDelete, personsPath+"/"+bobAddr, ownerToken, nil)
	require.Equal(t, http.StatusOK, code, env.ErrorCode)
	code, env = ta.do(t, http.MethodPost, personsPath, bobToken, person("Robert", 31, "1"), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, code, env.ErrorCode)

	code, env = ta.do(t, http.MethodGet, personsPath+"/me", bobToken, nil)
	require.Equal(t, http.StatusOK, code, env.ErrorCode)
	decodeInto(t, env, &got)
	assert.Equal(t, "Robert", got.Name)
	assert.Equal(t, "97", ta.funds(t, bobToken))

	s := ta.summary(t, ownerToken, ledgerID)
	assert.Equal(t, "3", s.Balance)
	assert.Equal(t, int64(1), s.Persons)
}

func TestApp_PersonFieldsRoundTrip(t *testing.T) {
	ta := newTestApp(t, false)

	_, ownerToken := ta.registerAndLogin(t, "owner")
	_, bobToken := ta.registerAndLogin(t, "bob")
	ledgerID := ta.deploy(t, ownerToken)
	personsPath := "/api/v1/ledgers/" + ledgerID + "/persons"

	code, env := ta.do(t, http.MethodPost, personsPath, bobToken, map[string]interface{}{
		"name": "Bob", "age": uint64(4294967296), "height": 190, "payment": "1",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "REG_001", env.ErrorCode)

	name := "O'Brien & Sons " + strings.Repeat("x", 300)
	code, env = ta.do(t, http.MethodPost, personsPath, bobToken, map[string]interface{}{
		"name": name, "age": 40, "height": uint64(math.MaxUint64), "payment": "1",
	})
	require.Equal(t, http.StatusCreated, code, env.ErrorCode)

	code, env = ta.do(t, http.MethodGet, personsPath+"/me", bobToken, nil)
	require.Equal(t, http.StatusOK, code, env.ErrorCode)
	var got struct {
		Name   string `json:"name"`
		Age    uint64 `json:"age"`
		Height uint64 `json:"height"`
	}
	decodeInto(t, env, &got)
	assert.Equal(t, name, got.Name)
	assert.Equal(t, uint64(40), got.Age)
	assert.Equal(t, uint64(math.MaxUint64), got.Height)
}

func TestApp_ConcurrentCreates(t *testing.T) {
	ta := newTestApp(t, false)

	_, ownerToken := ta.registerAndLogin(t, "owner")
	ledgerID := ta.deploy(t, ownerToken)

	const callers = 20
	tokens := make([]string, callers)
	for i := range tokens {
		_, tokens[i] = ta.registerAndLogin(t, fmt.Sprintf("caller_%d", i))
	}

	var wg sync.WaitGroup
	codes := make([]int, callers)
	for i := range tokens {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			code, _ := ta.do(t, http.MethodPost, "/api/v1/ledgers/"+ledgerID+"/persons", tokens[idx],
				person(fmt.Sprintf("p%d", idx), 20+idx, "1"))
			codes[idx] = code
		}(i)
	}
	// Owner withdrawals race with the creates.
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ta.do(t, http.MethodPost, "/api/v1/ledgers/"+ledgerID+"/withdraw", ownerToken, nil)
		}()
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusCreated, code, "caller %d", i)
	}

	s := ta.summary(t, ownerToken, ledgerID)
	assert.Equal(t, int64(callers), s.Persons)
	assert.True(t, s.Reconciled, "balance %s, held %s", s.Balance, s.Held)

	// Whatever the owner has not withdrawn yet is still held.
	code, env := ta.do(t, http.MethodPost, "/api/v1/ledgers/"+ledgerID+"/withdraw", ownerToken, nil)
	require.Equal(t, http.StatusOK, code, env.ErrorCode)
	assert.Equal(t, "120", ta.funds(t, ownerToken))
}

func TestApp_RegisterRateLimit(t *testing.T) {
	ta := newTestApp(t, true)

	for i := 0; i < 5; i++ {
		code, env := ta.do(t, http.MethodPost, "/api/v1/accounts/register", "",
			map[string]string{"username": fmt.Sprintf("user_%d", i), "password": "StrongPass123!"})
		require.Equal(t, http.StatusCreated, code, env.ErrorCode)
	}

	code, env := ta.do(t, http.MethodPost, "/api/v1/accounts/register", "",
		map[string]string{"username": "user_6", "password": "StrongPass123!"})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE_001", env.ErrorCode)
}

func TestApp_RedisOutageDegradesOpen(t *testing.T) {
	ta := newTestApp(t, true)

	_, ownerToken := ta.registerAndLogin(t, "owner")
	ledgerID := ta.deploy(t, ownerToken)

	ta.redis.Close()

	resp, err := http.Get(ta.server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Rate limiting and idempotency fail open.
	code, env := ta.do(t, http.MethodPost, "/api/v1/ledgers/"+ledgerID+"/persons", ownerToken,
		person("Owner", 40, "1"), "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusCreated, code, env.ErrorCode)
}

func TestApp_HealthAndMetrics(t *testing.T) {
	ta := newTestApp(t, true)

	resp, err := http.Get(ta.server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, token := ta.registerAndLogin(t, "owner")
	ta.deploy(t, token)

	resp, err = http.Get(ta.server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Contains(t, string(body), `people_registry_operations_total{operation="deploy",outcome="success"} 1`)
	assert.Contains(t, string(body), `people_registry_http_requests_total{method="POST",route="/api/v1/ledgers",status="201"} 1`)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.EventType
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, e *domain.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e.Type)
	return nil
}

func (p *recordingPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func TestApp_PublishesCommittedEvents(t *testing.T) {
	pub := &recordingPublisher{}
	ta := newTestApp(t, false, WithEventPublisher(pub))

	_, ownerToken := ta.registerAndLogin(t, "owner")
	ledgerID := ta.deploy(t, ownerToken)
	code, _ := ta.do(t, http.MethodPost, "/api/v1/ledgers/"+ledgerID+"/persons", ownerToken, person("Owner", 70, "1"))
	require.Equal(t, http.StatusCreated, code)
	code, _ = ta.do(t, http.MethodPost, "/api/v1/ledgers/"+ledgerID+"/persons", ownerToken, person("Owner", 70, "5"))
	require.Equal(t, http.StatusPaymentRequired, code)

	ta.app.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.True(t, pub.closed)
	assert.ElementsMatch(t, []domain.EventType{domain.EventLedgerDeployed, domain.EventPersonCreated}, pub.events)
}

func TestNew_RequiresJWTSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = ""

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
