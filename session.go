package okto

import (
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var sessionAddressArgs = abi.Arguments{{Name: "session", Type: addressT}}

// SessionCredential is what a successful authentication leaves behind: an
// ephemeral session key and the bearer token built from it.
type SessionCredential struct {
	AuthToken  string
	SessionKey *KeySigner
	UserSWA    string
	ExpiresAt  time.Time
}

// NewSessionCredential creates a fresh session key and signs a token for it.
func NewSessionCredential(ttl time.Duration, now time.Time) (*SessionCredential, error) {
	key, err := GenerateKeySigner()
	if err != nil {
		return nil, err
	}
	return newSessionCredential(key, ttl, now)
}

func newSessionCredential(key *KeySigner, ttl time.Duration, now time.Time) (*SessionCredential, error) {
	token, err := BuildAuthToken(key, ttl, now)
	if err != nil {
		return nil, err
	}
	payload, err := ParseAuthToken(token)
	if err != nil {
		return nil, err
	}
	return &SessionCredential{
		AuthToken:  token,
		SessionKey: key,
		ExpiresAt:  payload.ExpiresAt(),
	}, nil
}

// RestoreSession rebuilds a credential from a stored token and session
// private key. The key must match the public key inside the token.
func RestoreSession(authToken, sessionPrivateKey string) (*SessionCredential, error) {
	key, err := NewKeySigner(sessionPrivateKey)
	if err != nil {
		return nil, err
	}
	payload, err := ParseAuthToken(authToken)
	if err != nil {
		return nil, err
	}
	if err := payload.Verify(); err != nil {
		return nil, encodingError("authToken", err)
	}
	if payload.Data.SessionPubKey != key.PublicKeyHex() {
		return nil, &Error{Kind: KindKey, Message: "session key does not match auth token", Err: ErrInvalidPrivateKey}
	}
	return &SessionCredential{
		AuthToken:  authToken,
		SessionKey: key,
		ExpiresAt:  payload.ExpiresAt(),
	}, nil
}

func (c *SessionCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// SessionDataHash is keccak256(abi.encode(address session)), the message
// both the client and the session key sign when a session is registered.
func SessionDataHash(session common.Address) (common.Hash, error) {
	encoded, err := sessionAddressArgs.Pack(session)
	if err != nil {
		return common.Hash{}, NewError(KindEncoding, err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// SignSessionData returns the client's and the session's signatures over
// SessionDataHash(session.Address()).
func SignSessionData(client, session Signer) (clientSig, sessionSig string, err error) {
	if client == nil {
		return "", "", NewError(KindKey, ErrMissingClientKey)
	}
	if session == nil {
		return "", "", NewError(KindKey, ErrMissingPrivateKey)
	}
	hash, err := SessionDataHash(session.Address())
	if err != nil {
		return "", "", err
	}
	c, err := client.SignMessage(hash.Bytes())
	if err != nil {
		return "", "", AsError(err, KindKey)
	}
	s, err := session.SignMessage(hash.Bytes())
	if err != nil {
		return "", "", AsError(err, KindKey)
	}
	return hexutil.Encode(c), hexutil.Encode(s), nil
}
