package client

import (
	"context"
	"net/http"

	"github.com/blndgs/okto"
)

var (
	authenticateEndpoint  = endpoint{method: http.MethodPost, path: "/authenticate", kind: okto.KindAuthentication, fallback: "Authentication failed"}
	emailOTPEndpoint      = endpoint{method: http.MethodPost, path: "/authenticate/email", kind: okto.KindAuthentication, fallback: "Failed to send OTP."}
	verifyOTPEndpoint     = endpoint{method: http.MethodPost, path: "/authenticate/email/verify", kind: okto.KindAuthentication, fallback: "Failed to verify OTP."}
	walletsEndpoint       = endpoint{method: http.MethodGet, path: "/wallets"}
	networksEndpoint      = endpoint{method: http.MethodGet, path: "/supported/networks"}
	tokensEndpoint        = endpoint{method: http.MethodGet, path: "/supported/tokens"}
	portfolioEndpoint     = endpoint{method: http.MethodGet, path: "/aggregated-portfolio"}
	activityEndpoint      = endpoint{method: http.MethodGet, path: "/portfolio/activity"}
	nftEndpoint           = endpoint{method: http.MethodGet, path: "/portfolio/nft"}
	ordersEndpoint        = endpoint{method: http.MethodGet, path: "/orders"}
	verifySessionEndpoint = endpoint{method: http.MethodGet, path: "/verify-session"}
	estimateEndpoint      = endpoint{method: http.MethodPost, path: "/estimate", kind: okto.KindEstimation, fallback: "Failed to estimate transaction.", detailsFirst: true}
	executeEndpoint       = endpoint{method: http.MethodPost, path: "/execute", kind: okto.KindExecution, fallback: "Failed to execute transaction.", detailsFirst: true}
)

// Authenticate exchanges a signed session registration for a user session.
func (c *Client) Authenticate(ctx context.Context, payload *AuthenticatePayload) Result[AuthResponseData] {
	return call[AuthResponseData](ctx, c, authenticateEndpoint, "", payload)
}

// SendEmailOTP asks the backend to mail a one-time password.
func (c *Client) SendEmailOTP(ctx context.Context, req *SignedRequest[EmailOTPData]) Result[EmailOTPResponse] {
	return call[EmailOTPResponse](ctx, c, emailOTPEndpoint, "", req)
}

// VerifyEmailOTP trades the OTP and its request token for an id token.
func (c *Client) VerifyEmailOTP(ctx context.Context, req *SignedRequest[EmailOTPVerifyData]) Result[VerifyEmailOTPResponse] {
	return call[VerifyEmailOTPResponse](ctx, c, verifyOTPEndpoint, "", req)
}

func (c *Client) Wallets(ctx context.Context, token string) Result[[]Wallet] {
	return call[[]Wallet](ctx, c, walletsEndpoint, token, nil)
}

func (c *Client) SupportedNetworks(ctx context.Context, token string) Result[[]Network] {
	r := call[supportedNetworksData](ctx, c, networksEndpoint, token, nil)
	return mapResult(r, func(d supportedNetworksData) []Network { return d.Network })
}

type supportedNetworksData struct {
	Network []Network `json:"network"`
}

func (c *Client) SupportedTokens(ctx context.Context, token string) Result[[]SupportedToken] {
	r := call[supportedTokensData](ctx, c, tokensEndpoint, token, nil)
	return mapResult(r, func(d supportedTokensData) []SupportedToken { return d.Tokens })
}

type supportedTokensData struct {
	Tokens []SupportedToken `json:"tokens"`
}

func (c *Client) Portfolio(ctx context.Context, token string) Result[PortfolioOverview] {
	return call[PortfolioOverview](ctx, c, portfolioEndpoint, token, nil)
}

func (c *Client) PortfolioActivity(ctx context.Context, token string) Result[[]Activity] {
	return call[[]Activity](ctx, c, activityEndpoint, token, nil)
}

func (c *Client) PortfolioNFTs(ctx context.Context, token string) Result[[]Nft] {
	return call[[]Nft](ctx, c, nftEndpoint, token, nil)
}

func (c *Client) Orders(ctx context.Context, token string) Result[OrderHistory] {
	return call[OrderHistory](ctx, c, ordersEndpoint, token, nil)
}

func (c *Client) VerifySession(ctx context.Context, token string) Result[SessionInfo] {
	return call[SessionInfo](ctx, c, verifySessionEndpoint, token, nil)
}

// Estimate submits an intent for gas estimation and returns the unsigned
// user operation the backend built for it.
func (c *Client) Estimate(ctx context.Context, token string, req *okto.EstimateRequest) Result[EstimateResponseData] {
	return call[EstimateResponseData](ctx, c, estimateEndpoint, token, req)
}

// Execute submits a signed user operation.
func (c *Client) Execute(ctx context.Context, token string, op *okto.SignedUserOperation) Result[ExecuteResponseData] {
	return call[ExecuteResponseData](ctx, c, executeEndpoint, token, op)
}
