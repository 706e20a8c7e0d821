package okto

import (
	"encoding/base64"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
)

const (
	AuthTokenType   = "ecdsa_uncompressed"
	DefaultTokenTTL = 5400 * time.Second
)

// PublicKeySigner is a Signer that can also reveal its uncompressed public key.
type PublicKeySigner interface {
	Signer
	PublicKeyHex() string
}

// AuthClaim is the signed part of the authorization token. Field order is
// part of the signed bytes.
type AuthClaim struct {
	ExpireAt      int64  `json:"expire_at"`
	SessionPubKey string `json:"session_pub_key"`
}

// AuthTokenPayload is the decoded authorization token.
type AuthTokenPayload struct {
	Type          string    `json:"type"`
	Data          AuthClaim `json:"data"`
	DataSignature string    `json:"data_signature"`
}

// BuildAuthToken produces the bearer token presented on every authenticated
// backend call: base64 of the claim, its type and the session key's
// signature over the claim JSON. expire_at is now rounded to the nearest
// second plus ttl.
func BuildAuthToken(session PublicKeySigner, ttl time.Duration, now time.Time) (string, error) {
	if session == nil {
		return "", NewError(KindKey, ErrMissingPrivateKey)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claim := AuthClaim{
		ExpireAt:      now.Round(time.Second).Unix() + int64(ttl/time.Second),
		SessionPubKey: session.PublicKeyHex(),
	}
	claimJSON, err := json.Marshal(claim)
	if err != nil {
		return "", NewError(KindEncoding, err)
	}
	sig, err := session.SignMessage(claimJSON)
	if err != nil {
		return "", AsError(err, KindKey)
	}

	payload, err := json.Marshal(AuthTokenPayload{
		Type:          AuthTokenType,
		Data:          claim,
		DataSignature: hexutil.Encode(sig),
	})
	if err != nil {
		return "", NewError(KindEncoding, err)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// ParseAuthToken decodes a token produced by BuildAuthToken without
// checking its signature.
func ParseAuthToken(token string) (*AuthTokenPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, encodingError("authToken", ErrInvalidAuthToken)
	}
	var payload AuthTokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, encodingError("authToken", ErrInvalidAuthToken)
	}
	if payload.Type != AuthTokenType {
		return nil, encodingError("authToken", ErrInvalidAuthToken)
	}
	return &payload, nil
}

// Verify checks that the signature over the claim was made by the session
// key named in the claim.
func (p *AuthTokenPayload) Verify() error {
	claimJSON, err := json.Marshal(p.Data)
	if err != nil {
		return NewError(KindEncoding, err)
	}
	sig, err := hexutil.Decode(p.DataSignature)
	if err != nil {
		return ErrInvalidSignature
	}
	signer, err := RecoverMessageSigner(claimJSON, sig)
	if err != nil {
		return err
	}
	expected, err := PublicKeyAddress(p.Data.SessionPubKey)
	if err != nil {
		return err
	}
	if signer != expected {
		return ErrInvalidSignature
	}
	return nil
}

func (p *AuthTokenPayload) ExpiresAt() time.Time {
	return time.Unix(p.Data.ExpireAt, 0)
}

func (p *AuthTokenPayload) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt())
}
