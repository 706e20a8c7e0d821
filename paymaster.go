package okto

import (
	"encoding/binary"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const maxUint48 = 1<<48 - 1

var (
	uint48T, _ = abi.NewType("uint48", "", nil)
	bytesT, _  = abi.NewType("bytes", "", nil)

	// abi.encode(address sponsor, uint48 validUntil, uint48 validAfter, bytes signature)
	paymasterDataArgs = abi.Arguments{
		{Name: "sponsor", Type: addressT},
		{Name: "validUntil", Type: uint48T},
		{Name: "validAfter", Type: uint48T},
		{Name: "signature", Type: bytesT},
	}
)

// PaymasterSponsorship is the client's authorization for the paymaster to
// cover gas for one nonce within a validity window.
type PaymasterSponsorship struct {
	Sponsor    common.Address
	Nonce      *big.Int
	ValidUntil uint64
	ValidAfter uint64
	Signature  []byte
	// Encoded is the hex string sent to the backend as paymasterData.
	Encoded string
}

// NonceToBigInt reads a UUID-style nonce as one hex number once the dashes
// are removed.
func NonceToBigInt(nonce string) (*big.Int, error) {
	digits := strings.ReplaceAll(nonce, "-", "")
	if digits == "" {
		return nil, encodingError("nonce", ErrInvalidNonce)
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, encodingError("nonce", ErrInvalidNonce)
	}
	if n.BitLen() > 256 {
		return nil, encodingError("nonce", ErrUint256Overflow)
	}
	return n, nil
}

// PaymasterDataHash computes
// keccak256(bytes32(nonce) || address(sponsor) || uint48(validUntil) || uint48(validAfter)).
func PaymasterDataHash(nonce *big.Int, sponsor common.Address, validUntil, validAfter uint64) (common.Hash, error) {
	if nonce == nil || nonce.Sign() < 0 || nonce.BitLen() > 256 {
		return common.Hash{}, encodingError("nonce", ErrInvalidNonce)
	}
	if validUntil > maxUint48 {
		return common.Hash{}, encodingError("validUntil", ErrUint48Overflow)
	}
	if validAfter > maxUint48 {
		return common.Hash{}, encodingError("validAfter", ErrUint48Overflow)
	}

	packed := make([]byte, 0, 32+AddressLength+6+6)
	packed = append(packed, common.LeftPadBytes(nonce.Bytes(), 32)...)
	packed = append(packed, sponsor.Bytes()...)
	packed = append(packed, uint48Bytes(validUntil)...)
	packed = append(packed, uint48Bytes(validAfter)...)
	return crypto.Keccak256Hash(packed), nil
}

// SignPaymasterData signs the sponsorship hash for nonce with the client
// signer and ABI-encodes the result.
func SignPaymasterData(client Signer, sponsor common.Address, nonce string, validUntil, validAfter uint64) (*PaymasterSponsorship, error) {
	if client == nil {
		return nil, NewError(KindKey, ErrMissingClientKey)
	}
	n, err := NonceToBigInt(nonce)
	if err != nil {
		return nil, err
	}
	hash, err := PaymasterDataHash(n, sponsor, validUntil, validAfter)
	if err != nil {
		return nil, err
	}
	sig, err := client.SignMessage(hash.Bytes())
	if err != nil {
		return nil, AsError(err, KindKey)
	}

	encoded, err := paymasterDataArgs.Pack(
		sponsor,
		new(big.Int).SetUint64(validUntil),
		new(big.Int).SetUint64(validAfter),
		sig,
	)
	if err != nil {
		return nil, NewError(KindEncoding, err)
	}

	return &PaymasterSponsorship{
		Sponsor:    sponsor,
		Nonce:      n,
		ValidUntil: validUntil,
		ValidAfter: validAfter,
		Signature:  sig,
		Encoded:    hexutil.Encode(encoded),
	}, nil
}

// GeneratePaymasterData is the string-in string-out form of
// SignPaymasterData used when credentials come straight from configuration.
func GeneratePaymasterData(sponsor, clientPrivateKey, nonce string, validUntil, validAfter uint64) (string, error) {
	if sponsor == "" {
		return "", &Error{Kind: KindConfiguration, Message: ErrMissingClientSWA.Error(), Err: ErrMissingClientSWA}
	}
	if !common.IsHexAddress(sponsor) {
		return "", encodingError("sponsor", ErrInvalidAddress)
	}
	if clientPrivateKey == "" {
		return "", &Error{Kind: KindConfiguration, Message: ErrMissingClientKey.Error(), Err: ErrMissingClientKey}
	}
	signer, err := NewKeySigner(clientPrivateKey)
	if err != nil {
		return "", err
	}
	sponsorship, err := SignPaymasterData(signer, common.HexToAddress(sponsor), nonce, validUntil, validAfter)
	if err != nil {
		return "", err
	}
	return sponsorship.Encoded, nil
}

// DecodePaymasterData reverses the ABI encoding of a paymasterData blob.
// Nonce is not part of the blob and stays nil.
func DecodePaymasterData(data string) (*PaymasterSponsorship, error) {
	raw, err := hexutil.Decode(data)
	if err != nil {
		return nil, encodingError("paymasterData", ErrInvalidHexData)
	}
	values, err := paymasterDataArgs.Unpack(raw)
	if err != nil {
		return nil, encodingError("paymasterData", err)
	}
	if len(values) != len(paymasterDataArgs) {
		return nil, encodingError("paymasterData", ErrInvalidHexData)
	}
	sponsor, ok := values[0].(common.Address)
	if !ok {
		return nil, encodingError("sponsor", ErrInvalidAddress)
	}
	validUntil, ok := values[1].(*big.Int)
	if !ok {
		return nil, encodingError("validUntil", ErrInvalidNumeric)
	}
	validAfter, ok := values[2].(*big.Int)
	if !ok {
		return nil, encodingError("validAfter", ErrInvalidNumeric)
	}
	sig, ok := values[3].([]byte)
	if !ok {
		return nil, encodingError("signature", ErrInvalidSignature)
	}
	return &PaymasterSponsorship{
		Sponsor:    sponsor,
		ValidUntil: validUntil.Uint64(),
		ValidAfter: validAfter.Uint64(),
		Signature:  sig,
		Encoded:    data,
	}, nil
}

// Verify checks that the sponsorship signature over nonce was produced by
// expected.
func (p *PaymasterSponsorship) Verify(nonce string, expected common.Address) error {
	n, err := NonceToBigInt(nonce)
	if err != nil {
		return err
	}
	hash, err := PaymasterDataHash(n, p.Sponsor, p.ValidUntil, p.ValidAfter)
	if err != nil {
		return err
	}
	signer, err := RecoverMessageSigner(hash.Bytes(), p.Signature)
	if err != nil {
		return err
	}
	if signer != expected {
		return ErrInvalidSignature
	}
	return nil
}

func uint48Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[2:]
}
