package client

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blndgs/okto"
)

type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderOkto   Provider = "okto"
)

// SessionGasPrice is the fee cap registered with every new session.
const SessionGasPrice = "0xBA43B7400"

const clientSignatureType = "ethsign"

type AuthData struct {
	IDToken  string   `json:"idToken"`
	Provider Provider `json:"provider"`
}

type SessionData struct {
	Nonce                string `json:"nonce"`
	ClientSWA            string `json:"clientSWA"`
	SessionPk            string `json:"sessionPk"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	Paymaster            string `json:"paymaster"`
	PaymasterData        string `json:"paymasterData"`
}

// AuthenticatePayload is the body of POST /authenticate.
type AuthenticatePayload struct {
	AuthData                 AuthData    `json:"authData"`
	SessionData              SessionData `json:"sessionData"`
	SessionPkClientSignature string      `json:"sessionPkClientSignature"`
	SessionDataUserSignature string      `json:"sessionDataUserSignature"`
}

// SignedRequest carries Data together with the client key's signature over
// its JSON serialization.
type SignedRequest[T any] struct {
	Data            T      `json:"data"`
	ClientSignature string `json:"client_signature"`
	Type            string `json:"type"`
}

type EmailOTPData struct {
	Email     string `json:"email"`
	ClientSWA string `json:"client_swa"`
	Timestamp int64  `json:"timestamp"`
}

type EmailOTPVerifyData struct {
	Email     string `json:"email"`
	Token     string `json:"token"`
	OTP       string `json:"otp"`
	ClientSWA string `json:"client_swa"`
	Timestamp int64  `json:"timestamp"`
}

// Session is an authenticated user session: the backend's account data and
// the locally held session key with its bearer token.
type Session struct {
	okto.SessionCredential
	Nonce         string
	ClientSWA     string
	SessionExpiry int64
}

// AuthResponse renders the session the way the authenticate call reports it.
func (s *Session) AuthResponse() AuthResponseData {
	return AuthResponseData{
		UserSWA:        s.UserSWA,
		Nonce:          s.Nonce,
		ClientSWA:      s.ClientSWA,
		SessionExpiry:  s.SessionExpiry,
		AuthToken:      s.AuthToken,
		SessionPrivKey: s.SessionKey.PrivateKeyHex(),
	}
}

// Authenticator runs the login flows. The client key configured in cfg
// co-signs every session registration and OTP request.
type Authenticator struct {
	client   *Client
	cfg      *okto.Config
	logger   *zap.Logger
	now      func() time.Time
	newNonce func() string
}

type AuthenticatorOption func(*Authenticator)

func WithAuthClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.now = now
	}
}

func WithAuthLogger(l *zap.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = l
	}
}

func NewAuthenticator(c *Client, cfg *okto.Config, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		client:   c,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		newNonce: uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login registers a fresh session key for idToken and returns the session.
// A new key and nonce are generated on every call.
func (a *Authenticator) Login(ctx context.Context, idToken string, provider Provider) (*Session, error) {
	if idToken == "" {
		return nil, &okto.Error{Kind: okto.KindAuthentication, Message: "id token is required"}
	}
	clientKey, err := a.cfg.ClientSigner()
	if err != nil {
		return nil, err
	}
	sessionKey, err := okto.GenerateKeySigner()
	if err != nil {
		return nil, err
	}

	now := a.now()
	nonce := a.newNonce()
	sponsorship, err := okto.SignPaymasterData(
		clientKey,
		common.HexToAddress(a.cfg.ClientSWA),
		nonce,
		uint64(now.Add(a.cfg.SponsorshipTTL).Unix()),
		0,
	)
	if err != nil {
		return nil, err
	}
	clientSig, sessionSig, err := okto.SignSessionData(clientKey, sessionKey)
	if err != nil {
		return nil, err
	}

	payload := &AuthenticatePayload{
		AuthData: AuthData{IDToken: idToken, Provider: provider},
		SessionData: SessionData{
			Nonce:                nonce,
			ClientSWA:            a.cfg.ClientSWA,
			SessionPk:            sessionKey.PublicKeyHex(),
			MaxPriorityFeePerGas: SessionGasPrice,
			MaxFeePerGas:         SessionGasPrice,
			Paymaster:            a.cfg.PaymasterAddress.Hex(),
			PaymasterData:        sponsorship.Encoded,
		},
		SessionPkClientSignature: clientSig,
		SessionDataUserSignature: sessionSig,
	}

	data, err := a.client.Authenticate(ctx, payload).Unwrap()
	if err != nil {
		a.logger.Info("authentication rejected", zap.String("provider", string(provider)), zap.Error(err))
		return nil, err
	}

	token, err := okto.BuildAuthToken(sessionKey, a.cfg.TokenTTL, now)
	if err != nil {
		return nil, err
	}
	claim, err := okto.ParseAuthToken(token)
	if err != nil {
		return nil, err
	}

	a.logger.Info("session established",
		zap.String("provider", string(provider)),
		zap.String("userSWA", data.UserSWA),
		zap.String("sessionAddress", sessionKey.Address().Hex()),
		zap.Time("expiresAt", claim.ExpiresAt()))

	return &Session{
		SessionCredential: okto.SessionCredential{
			AuthToken:  token,
			SessionKey: sessionKey,
			UserSWA:    data.UserSWA,
			ExpiresAt:  claim.ExpiresAt(),
		},
		Nonce:         data.Nonce,
		ClientSWA:     data.ClientSWA,
		SessionExpiry: data.SessionExpiry,
	}, nil
}

// SendEmailOTP requests an OTP for email and returns the request token
// needed to verify it.
func (a *Authenticator) SendEmailOTP(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &okto.Error{Kind: okto.KindAuthentication, Message: "email is required"}
	}
	req, err := signRequest(a, EmailOTPData{
		Email:     email,
		ClientSWA: a.cfg.ClientSWA,
		Timestamp: a.now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	data, err := a.client.SendEmailOTP(ctx, req).Unwrap()
	if err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", &okto.Error{Kind: okto.KindAuthentication, Message: emailOTPEndpoint.fallback}
	}
	return data.Token, nil
}

// VerifyEmailOTP checks otp and returns the id token to log in with under
// the okto provider.
func (a *Authenticator) VerifyEmailOTP(ctx context.Context, email, token, otp string) (string, error) {
	req, err := signRequest(a, EmailOTPVerifyData{
		Email:     strings.TrimSpace(email),
		Token:     token,
		OTP:       strings.TrimSpace(otp),
		ClientSWA: a.cfg.ClientSWA,
		Timestamp: a.now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	data, err := a.client.VerifyEmailOTP(ctx, req).Unwrap()
	if err != nil {
		return "", err
	}
	if data.AuthToken == "" {
		return "", &okto.Error{Kind: okto.KindAuthentication, Message: verifyOTPEndpoint.fallback}
	}
	return data.AuthToken, nil
}

// LoginWithEmailOTP verifies the OTP and logs in with the resulting token.
func (a *Authenticator) LoginWithEmailOTP(ctx context.Context, email, token, otp string) (*Session, error) {
	idToken, err := a.VerifyEmailOTP(ctx, email, token, otp)
	if err != nil {
		return nil, err
	}
	return a.Login(ctx, idToken, ProviderOkto)
}

func signRequest[T any](a *Authenticator, data T) (*SignedRequest[T], error) {
	clientKey, err := a.cfg.ClientSigner()
	if err != nil {
		return nil, err
	}
	message, err := json.Marshal(data)
	if err != nil {
		return nil, okto.NewError(okto.KindEncoding, err)
	}
	sig, err := clientKey.SignMessage(message)
	if err != nil {
		return nil, okto.AsError(err, okto.KindKey)
	}
	return &SignedRequest[T]{
		Data:            data,
		ClientSignature: hexutil.Encode(sig),
		Type:            clientSignatureType,
	}, nil
}
