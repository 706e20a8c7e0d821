package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/blndgs/okto"
)

const (
	testClientKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testClientAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	testSender        = "0x9f1d3a1b2c3d4e5f60718293a4b5c6d7e8f90a1b"
	testRecipient     = "0x66C0AeE289c4D332302dda4DeD0c0Cdc3784939A"
	testToken         = "test-token"
)

// fakeBackend serves canned envelopes per path and remembers what it was sent.
type fakeBackend struct {
	srv *httptest.Server
	mux *http.ServeMux

	mu      sync.Mutex
	bodies  map[string][]byte
	headers map[string]http.Header
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		mux:     http.NewServeMux(),
		bodies:  make(map[string][]byte),
		headers: make(map[string]http.Header),
	}
	b.srv = httptest.NewServer(b.mux)
	t.Cleanup(b.srv.Close)
	return b
}

// reply registers a fixed response for path.
func (b *fakeBackend) reply(path string, status int, body string) {
	b.handle(path, func(w http.ResponseWriter, _ []byte) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

// handle registers fn for path; fn receives the request body.
func (b *fakeBackend) handle(path string, fn func(w http.ResponseWriter, body []byte)) {
	b.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies[path] = body
		b.headers[path] = r.Header.Clone()
		b.mu.Unlock()
		fn(w, body)
	})
}

func (b *fakeBackend) body(path string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[path]
}

func (b *fakeBackend) header(path string) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[path]
}

func (b *fakeBackend) client(opts ...Option) *Client {
	return New(b.srv.URL, opts...)
}

func okEnvelope(t *testing.T, data any) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"status": "success", "data": data})
	require.NoError(t, err)
	return string(raw)
}

func testConfig() *okto.Config {
	cfg := okto.DefaultConfig()
	cfg.ClientSWA = testClientAddress
	cfg.ClientPrivateKey = testClientKey
	return cfg
}

func TestCall_Success(t *testing.T) {
	b := newFakeBackend(t)
	b.reply("/wallets", http.StatusOK, okEnvelope(t, []Wallet{
		{NetworkName: "POLYGON", Address: testSender},
		{NetworkName: "BASE", Address: testSender},
	}))

	r := b.client().Wallets(context.Background(), testToken)
	require.True(t, r.OK)
	require.Nil(t, r.Err)
	require.Len(t, r.Data, 2)
	require.Equal(t, "POLYGON", r.Data[0].NetworkName)
	require.Equal(t, "Bearer "+testToken, b.header("/wallets").Get("Authorization"))
}

func TestCall_UnwrapsNestedData(t *testing.T) {
	b := newFakeBackend(t)
	b.reply("/supported/networks", http.StatusOK, okEnvelope(t, map[string]any{
		"network": []Network{{CaipID: "eip155:137", NetworkName: "POLYGON", ChainID: "137", NetworkID: "n1"}},
	}))
	b.reply("/supported/tokens", http.StatusOK, okEnvelope(t, map[string]any{
		"tokens": []SupportedToken{{ID: "t1", Symbol: "POL"}},
	}))

	c := b.client()
	networks, err := c.SupportedNetworks(context.Background(), testToken).Unwrap()
	require.NoError(t, err)
	require.Len(t, networks, 1)
	require.Equal(t, "eip155:137", networks[0].CaipID)

	tokens, err := c.SupportedTokens(context.Background(), testToken).Unwrap()
	require.NoError(t, err)
	require.Equal(t, "POL", tokens[0].Symbol)
}

func TestCall_ErrorEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		call    func(c *Client) *okto.Error
		path    string
		status  int
		body    string
		kind    okto.ErrorKind
		message string
		code    int
	}{
		{
			name: "backend message kept verbatim",
			call: func(c *Client) *okto.Error {
				return c.Wallets(context.Background(), testToken).Err
			},
			path:    "/wallets",
			status:  http.StatusUnauthorized,
			body:    `{"status":"error","message":"Session expired","error":{"code":401}}`,
			kind:    okto.KindNetwork,
			message: "Session expired",
			code:    401,
		},
		{
			name: "error.message preferred over message",
			call: func(c *Client) *okto.Error {
				return c.Portfolio(context.Background(), testToken).Err
			},
			path:    "/aggregated-portfolio",
			status:  http.StatusBadRequest,
			body:    `{"status":"error","message":"Bad request","error":{"message":"portfolio unavailable","details":"ignored"}}`,
			kind:    okto.KindNetwork,
			message: "portfolio unavailable",
			code:    400,
		},
		{
			name: "estimate prefers details",
			call: func(c *Client) *okto.Error {
				return c.Estimate(context.Background(), testToken, &okto.EstimateRequest{}).Err
			},
			path:    "/estimate",
			status:  http.StatusBadRequest,
			body:    `{"status":"error","message":"Bad request","error":{"message":"estimation failed","details":"insufficient balance","traceId":"abc"}}`,
			kind:    okto.KindEstimation,
			message: "insufficient balance",
			code:    400,
		},
		{
			name: "execute falls back to fixed message",
			call: func(c *Client) *okto.Error {
				return c.Execute(context.Background(), testToken, &okto.SignedUserOperation{}).Err
			},
			path:    "/execute",
			status:  http.StatusInternalServerError,
			body:    `{"status":"error"}`,
			kind:    okto.KindExecution,
			message: "Failed to execute transaction.",
			code:    500,
		},
		{
			name: "success status with non-2xx code",
			call: func(c *Client) *okto.Error {
				return c.Authenticate(context.Background(), &AuthenticatePayload{}).Err
			},
			path:    "/authenticate",
			status:  http.StatusForbidden,
			body:    `{"status":"success","data":null}`,
			kind:    okto.KindAuthentication,
			message: "Authentication failed",
			code:    403,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend(t)
			b.reply(tt.path, tt.status, tt.body)

			e := tt.call(b.client())
			require.NotNil(t, e)
			require.Equal(t, tt.kind, e.Kind)
			require.Equal(t, tt.message, e.Message)
			require.Equal(t, tt.code, e.Code)
		})
	}
}

func TestCall_NetworkFailure(t *testing.T) {
	b := newFakeBackend(t)
	c := b.client()
	b.srv.Close()

	r := c.Wallets(context.Background(), testToken)
	require.False(t, r.OK)
	require.Equal(t, okto.KindNetwork, r.Err.Kind)

	_, err := r.Unwrap()
	require.ErrorIs(t, err, okto.ErrNetwork)
}

func TestCall_NonJSONResponse(t *testing.T) {
	b := newFakeBackend(t)
	b.reply("/orders", http.StatusBadGateway, "<html>bad gateway</html>")

	r := b.client().Orders(context.Background(), testToken)
	require.False(t, r.OK)
	require.Equal(t, okto.KindNetwork, r.Err.Kind)
	require.Equal(t, http.StatusBadGateway, r.Err.Code)
}

func TestCall_CanceledContext(t *testing.T) {
	b := newFakeBackend(t)
	b.handle("/wallets", func(w http.ResponseWriter, _ []byte) {
		time.Sleep(200 * time.Millisecond)
		_, _ = io.WriteString(w, `{"status":"success","data":[]}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := b.client().Wallets(ctx, testToken)
	require.False(t, r.OK)
	require.Equal(t, okto.KindNetwork, r.Err.Kind)
}

func TestCall_RateLimit(t *testing.T) {
	b := newFakeBackend(t)
	b.reply("/wallets", http.StatusOK, okEnvelope(t, []Wallet{}))

	c := b.client(WithRateLimit(0, 0))
	r := c.Wallets(context.Background(), testToken)
	require.False(t, r.OK)
	require.Equal(t, okto.KindNetwork, r.Err.Kind)
}

func TestResult_Unwrap(t *testing.T) {
	_, err := Result[int]{}.Unwrap()
	require.ErrorIs(t, err, okto.ErrNetwork)

	v, err := success(7).Unwrap()
	require.NoError(t, err)
	require.Equal(t, 7, v)

	m := mapResult(success(2), func(i int) string { return "n" })
	require.True(t, m.OK)
	require.Equal(t, "n", m.Data)
}
