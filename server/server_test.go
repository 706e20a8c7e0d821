package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/blndgs/okto"
	"github.com/blndgs/okto/client"
	"github.com/blndgs/okto/store"
)

const (
	testClientKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testClientAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	testSender        = "0x9f1d3a1b2c3d4e5f60718293a4b5c6d7e8f90a1b"
	testRecipient     = "0x66C0AeE289c4D332302dda4DeD0c0Cdc3784939A"
	otherSender       = "0x1111111111111111111111111111111111111111"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func envelope(t *testing.T, data any) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"status": "success", "data": data})
	require.NoError(t, err)
	return string(raw)
}

type testEnv struct {
	backend *http.ServeMux
	router  *gin.Engine
	jobs    *store.MemoryJobStore
	// swa is the wallet the next login resolves to.
	swa atomic.Value
}

func (e *testEnv) userSWA() string {
	return e.swa.Load().(string)
}

// newTestEnv starts a fake backend that accepts every login.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{}
	e.swa.Store(testSender)
	mux := http.NewServeMux()
	mux.HandleFunc("/authenticate", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, envelope(t, client.AuthResponseData{UserSWA: e.userSWA()}))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := okto.DefaultConfig()
	cfg.ClientSWA = testClientAddress
	cfg.ClientPrivateKey = testClientKey

	jobs := store.NewMemoryJobStore()
	s, err := New(cfg, client.New(srv.URL), store.NewMemorySessionStore(), jobs, nil)
	require.NoError(t, err)
	e.backend, e.router, e.jobs = mux, s.Router(), jobs
	return e
}

func (e *testEnv) reply(path string, status int, body string) {
	e.backend.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (e *testEnv) do(method, path, sessionID string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	w := e.do(http.MethodPost, "/v1/login/google", "", map[string]string{"idToken": "google-id-token"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	require.Equal(t, e.userSWA(), resp.UserSWA)
	return resp.SessionID
}

type errorBody struct {
	Error okto.Error `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) okto.Error {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error
}

func TestLoginAndSession(t *testing.T) {
	e := newTestEnv(t)
	e.reply("/wallets", http.StatusOK, envelope(t, []client.Wallet{{NetworkName: "POLYGON", Address: testSender}}))
	e.reply("/verify-session", http.StatusOK, envelope(t, client.SessionInfo{IsValid: true, UserID: "u1"}))

	id := e.login(t)

	w := e.do(http.MethodGet, "/v1/wallets", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var wallets []client.Wallet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallets))
	require.Len(t, wallets, 1)

	w = e.do(http.MethodGet, "/v1/session", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"userSWA":"`+testSender+`"`)

	w = e.do(http.MethodPost, "/v1/logout", id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, "/v1/wallets", id, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSession(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/v1/wallets", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, okto.KindAuthentication, decodeError(t, w).Kind)

	w = e.do(http.MethodGet, "/v1/wallets", "unknown", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginValidation(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/v1/login/google", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, okto.KindEncoding, decodeError(t, w).Kind)

	w = e.do(http.MethodPost, "/v1/login/email", "", map[string]string{"email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/v1/login/email/verify", "", map[string]string{"email": "a@b.co", "token": "t", "otp": "12ab"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBackendErrorStatus(t *testing.T) {
	e := newTestEnv(t)
	e.reply("/portfolio/nft", http.StatusInternalServerError, `{"status":"error","message":"nft indexer down"}`)
	id := e.login(t)

	w := e.do(http.MethodGet, "/v1/nfts", id, nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	got := decodeError(t, w)
	require.Equal(t, okto.KindNetwork, got.Kind)
	require.Equal(t, "nft indexer down", got.Message)
}

func TestDashboard(t *testing.T) {
	e := newTestEnv(t)
	e.reply("/aggregated-portfolio", http.StatusOK, envelope(t, client.PortfolioOverview{
		AggregatedData: client.AggregatedData{TotalHoldingPriceUsdt: "42"},
	}))
	e.reply("/wallets", http.StatusOK, envelope(t, []client.Wallet{{Address: testSender}}))
	e.reply("/portfolio/nft", http.StatusInternalServerError, `{"status":"error","message":"nft indexer down"}`)
	e.reply("/portfolio/activity", http.StatusOK, envelope(t, []client.Activity{{ID: "a"}}))
	id := e.login(t)

	w := e.do(http.MethodGet, "/v1/dashboard", id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Stats client.DashboardStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "$42.00", body.Stats.PortfolioValue)
	require.Equal(t, 1, body.Stats.WalletCount)
	require.Equal(t, 1, body.Stats.ActivityCount)
	require.Zero(t, body.Stats.NFTCount)
	require.Equal(t, "nft indexer down", body.Stats.Errors["nfts"])
}

func holdings(t *testing.T, e *testEnv) {
	e.reply("/aggregated-portfolio", http.StatusOK, envelope(t, client.PortfolioOverview{
		GroupTokens: []client.PortfolioGroupToken{{Tokens: []client.PortfolioToken{
			{Symbol: "POL", NetworkID: "n-polygon", Balance: "5", IsPrimary: true, Precision: "18"},
			{Symbol: "USDC", NetworkID: "n-polygon", Balance: "10", Precision: "6", TokenAddress: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"},
		}}},
	}))
	e.reply("/supported/networks", http.StatusOK, envelope(t, map[string]any{
		"network": []client.Network{{NetworkID: "n-polygon", CaipID: "eip155:137", ChainID: "137"}},
	}))
}

func estimatedOp() okto.UnsignedUserOperation {
	return okto.UnsignedUserOperation{
		Sender:               testSender,
		Nonce:                "1",
		CallGasLimit:         "50000",
		VerificationGasLimit: "100000",
		PreVerificationGas:   "21000",
		MaxFeePerGas:         okto.DefaultGasPrice,
		MaxPriorityFeePerGas: okto.DefaultGasPrice,
		CallData:             "0x",
	}
}

func TestTransferToken(t *testing.T) {
	e := newTestEnv(t)
	holdings(t, e)

	var estimate struct {
		Details okto.TokenTransferDetails `json:"details"`
	}
	e.backend.HandleFunc("/estimate", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&estimate))
		_, _ = io.WriteString(w, envelope(t, client.EstimateResponseData{UserOps: estimatedOp()}))
	})
	e.reply("/execute", http.StatusOK, envelope(t, client.ExecuteResponseData{TransactionHash: "0xfeed"}))
	id := e.login(t)

	w := e.do(http.MethodPost, "/v1/transfer", id, map[string]string{
		"caip2Id":   "eip155:137",
		"symbol":    "usdc",
		"recipient": testRecipient,
		"amount":    "1.25",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var receipt client.TransferReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	require.Equal(t, "0xfeed", receipt.TransactionHash)
	require.Equal(t, okto.JobSubmitted, receipt.Status)
	require.Equal(t, "1250000", estimate.Details.Amount)
	require.Equal(t, "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", estimate.Details.TokenAddress)

	job, err := e.jobs.Get(context.Background(), receipt.JobID)
	require.NoError(t, err)
	require.Equal(t, okto.JobSubmitted, job.Status)

	w = e.do(http.MethodGet, "/v1/jobs", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), receipt.JobID)
}

func TestTransferToken_Errors(t *testing.T) {
	e := newTestEnv(t)
	holdings(t, e)
	e.reply("/estimate", http.StatusBadRequest, `{"status":"error","error":{"message":"estimate failed","details":"insufficient balance"}}`)
	id := e.login(t)

	w := e.do(http.MethodPost, "/v1/transfer", id, map[string]string{"caip2Id": "eip155:137", "recipient": "nope", "amount": "1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/v1/transfer", id, map[string]string{"caip2Id": "eip155:1", "recipient": testRecipient, "amount": "1"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, "/v1/transfer", id, map[string]string{"caip2Id": "eip155:137", "recipient": testRecipient, "amount": "1"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	got := decodeError(t, w)
	require.Equal(t, okto.KindEstimation, got.Kind)
	require.Equal(t, "insufficient balance", got.Message)
}

func TestTransferRaw(t *testing.T) {
	e := newTestEnv(t)
	e.reply("/estimate", http.StatusOK, envelope(t, client.EstimateResponseData{UserOps: estimatedOp()}))
	e.reply("/execute", http.StatusInternalServerError, `{"status":"error","message":"bundler rejected user operation"}`)
	id := e.login(t)

	w := e.do(http.MethodPost, "/v1/transfer/raw", id, map[string]any{"caip2Id": "eip155:137", "transactions": []any{}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/v1/transfer/raw", id, map[string]any{
		"caip2Id":      "eip155:137",
		"transactions": []okto.RawTransaction{{From: testSender, To: testRecipient, Data: "0x", Value: "0"}},
	})
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, okto.KindExecution, decodeError(t, w).Kind)

	jobs, err := e.jobs.List(context.Background(), testSender, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, okto.JobFailed, jobs[0].Status)
}

func TestJobStatus(t *testing.T) {
	e := newTestEnv(t)
	e.reply("/orders", http.StatusOK, envelope(t, map[string]any{
		"items": []client.Order{{IntentID: "job-1", Status: "SUCCESSFUL", TransactionHash: []string{"0xfeed"}}},
	}))
	require.NoError(t, e.jobs.Save(context.Background(), &okto.Job{ID: "job-1", Sender: testSender, Status: okto.JobSubmitted, CreatedAt: time.Now()}))
	id := e.login(t)

	w := e.do(http.MethodGet, "/v1/jobs/job-1", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), `"SUCCESSFUL"`))

	job, err := e.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, okto.JobSuccessful, job.Status)
	require.Equal(t, "0xfeed", job.TransactionHash)

	w = e.do(http.MethodGet, "/v1/jobs/job-2", id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobs_ScopedToSessionWallet(t *testing.T) {
	e := newTestEnv(t)
	holdings(t, e)
	e.reply("/estimate", http.StatusOK, envelope(t, client.EstimateResponseData{UserOps: estimatedOp()}))
	e.reply("/execute", http.StatusOK, envelope(t, client.ExecuteResponseData{TransactionHash: "0xfeed"}))
	e.reply("/orders", http.StatusOK, envelope(t, []client.Order{}))

	owner := e.login(t)
	w := e.do(http.MethodPost, "/v1/transfer", owner, map[string]string{
		"caip2Id":   "eip155:137",
		"recipient": testRecipient,
		"amount":    "1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var receipt client.TransferReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))

	e.swa.Store(otherSender)
	stranger := e.login(t)
	require.NoError(t, e.jobs.Save(context.Background(), &okto.Job{ID: "stranger-job", Sender: otherSender, Status: okto.JobSubmitted, CreatedAt: time.Now()}))

	var listed []okto.Job
	w = e.do(http.MethodGet, "/v1/jobs", stranger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, "stranger-job", listed[0].ID)

	w = e.do(http.MethodGet, "/v1/jobs/"+receipt.JobID, stranger, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotContains(t, w.Body.String(), receipt.UserOpHash)

	w = e.do(http.MethodGet, "/v1/jobs", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, receipt.JobID, listed[0].ID)

	w = e.do(http.MethodGet, "/v1/jobs/stranger-job", owner, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodGet, "/v1/jobs/"+receipt.JobID, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), receipt.UserOpHash)
}

func TestStatusFor(t *testing.T) {
	tests := map[okto.ErrorKind]int{
		okto.KindConfiguration:  http.StatusInternalServerError,
		okto.KindEncoding:       http.StatusBadRequest,
		okto.KindKey:            http.StatusUnauthorized,
		okto.KindNetwork:        http.StatusBadGateway,
		okto.KindEstimation:     http.StatusUnprocessableEntity,
		okto.KindExecution:      http.StatusBadGateway,
		okto.KindAuthentication: http.StatusUnauthorized,
	}
	for kind, want := range tests {
		require.Equal(t, want, statusFor(kind), kind)
	}
}
