package okto

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the narrow signing capability the packing and hashing code
// depends on. SignMessage applies the Ethereum signed-message prefix
// (EIP-191) before signing and returns a 65-byte [R || S || V] signature
// with V in {27, 28}.
type Signer interface {
	Address() common.Address
	SignMessage(msg []byte) ([]byte, error)
}

// KeySigner signs with an in-process secp256k1 private key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner parses a hex private key, with or without the 0x prefix.
func NewKeySigner(hexKey string) (*KeySigner, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, NewError(KindKey, ErrMissingPrivateKey)
	}
	if has0xPrefix(hexKey) {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, &Error{Kind: KindKey, Message: ErrInvalidPrivateKey.Error(), Err: ErrInvalidPrivateKey}
	}
	return newKeySigner(key), nil
}

// GenerateKeySigner creates a fresh ephemeral key, as used for sessions.
func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, NewError(KindKey, err)
	}
	return newKeySigner(key), nil
}

func newKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *KeySigner) Address() common.Address {
	return s.address
}

// PublicKeyHex returns the uncompressed public key, 0x04 prefixed.
func (s *KeySigner) PublicKeyHex() string {
	return hexutil.Encode(crypto.FromECDSAPub(&s.key.PublicKey))
}

// PrivateKeyHex returns the 0x-prefixed private key.
func (s *KeySigner) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.key))
}

func (s *KeySigner) SignMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, NewError(KindKey, err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverMessageSigner returns the address that produced sig over the
// EIP-191 prefixed msg.
func RecoverMessageSigner(msg, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// PublicKeyAddress derives the account address of a hex-encoded
// uncompressed public key.
func PublicKeyAddress(pubHex string) (common.Address, error) {
	raw, err := hexutil.Decode(pubHex)
	if err != nil {
		return common.Address{}, ErrInvalidHexData
	}
	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		return common.Address{}, ErrInvalidHexData
	}
	return crypto.PubkeyToAddress(*pub), nil
}
