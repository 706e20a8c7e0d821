// Package okto builds, hashes and signs ERC-4337 user operations for the
// Okto wallet API, and produces the paymaster sponsorship data and session
// authorization tokens exchanged with its backend.
//
// A user operation travels through the package in three shapes:
//
// 1. UnsignedUserOperation: the record returned by the backend's /estimate
// endpoint, with every numeric field as a decimal or 0x-hex string.
//
// 2. PackedUserOperation: the fixed-width layout consumed by the EntryPoint
// contract (v0.7 packing), derived by Pack and used only for hashing.
//
// 3. SignedUserOperation: the unsigned record plus the session key's
// signature over the user operation hash, posted to /execute.
package okto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UnsignedUserOperation is the user operation exactly as the backend
// estimates it.
type UnsignedUserOperation struct {
	Sender                        string `json:"sender"                        binding:"required,eth_addr"`
	Nonce                         string `json:"nonce"                         binding:"required"`
	Paymaster                     string `json:"paymaster"`
	CallGasLimit                  string `json:"callGasLimit"                  binding:"required"`
	VerificationGasLimit          string `json:"verificationGasLimit"          binding:"required"`
	PreVerificationGas            string `json:"preVerificationGas"            binding:"required"`
	MaxFeePerGas                  string `json:"maxFeePerGas"                  binding:"required"`
	MaxPriorityFeePerGas          string `json:"maxPriorityFeePerGas"          binding:"required"`
	PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit"`
	PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit"`
	CallData                      string `json:"callData"`
	PaymasterData                 string `json:"paymasterData"`
}

// SignedUserOperation is the execute request: the unsigned operation with
// its signature appended.
type SignedUserOperation struct {
	UnsignedUserOperation
	Signature string `json:"signature"`
}

// HasPaymaster reports whether the operation names a paymaster. A bare
// "0x" counts as no paymaster.
func (op *UnsignedUserOperation) HasPaymaster() bool {
	return len(op.Paymaster) > 2
}

// Hash packs the operation and derives its user operation hash.
func (op *UnsignedUserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := op.Pack()
	if err != nil {
		return common.Hash{}, err
	}
	return packed.Hash(entryPoint, chainID)
}

// SignUserOp packs and hashes op and signs the hash with the session key
// using the signed-message convention. op itself is left untouched; the
// result carries a copy.
func SignUserOp(op *UnsignedUserOperation, sessionKey Signer, entryPoint common.Address, chainID *big.Int) (*SignedUserOperation, error) {
	if sessionKey == nil {
		return nil, NewError(KindKey, ErrMissingPrivateKey)
	}
	hash, err := op.Hash(entryPoint, chainID)
	if err != nil {
		return nil, err
	}
	sig, err := sessionKey.SignMessage(hash.Bytes())
	if err != nil {
		return nil, AsError(err, KindKey)
	}
	return &SignedUserOperation{
		UnsignedUserOperation: *op,
		Signature:             hexutil.Encode(sig),
	}, nil
}

// RecoverSigner returns the address whose key produced the operation's
// signature.
func (op *SignedUserOperation) RecoverSigner(entryPoint common.Address, chainID *big.Int) (common.Address, error) {
	hash, err := op.UnsignedUserOperation.Hash(entryPoint, chainID)
	if err != nil {
		return common.Address{}, err
	}
	sig, err := hexutil.Decode(op.Signature)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return RecoverMessageSigner(hash.Bytes(), sig)
}

func (op *UnsignedUserOperation) String() string {
	formatHex := func(s string) string {
		if s == "" {
			return "0x"
		}
		return s
	}
	formatNumeric := func(s string) string {
		i, err := ParseBigInt(s)
		if err != nil {
			return fmt.Sprintf("%q (invalid)", s)
		}
		return fmt.Sprintf("0x%x, %s", i, i.Text(10))
	}

	return fmt.Sprintf(
		"UserOperation{\n"+
			"  Sender: %s\n"+
			"  Nonce: %s\n"+
			"  CallData: %s\n"+
			"  CallGasLimit: %s\n"+
			"  VerificationGasLimit: %s\n"+
			"  PreVerificationGas: %s\n"+
			"  MaxFeePerGas: %s\n"+
			"  MaxPriorityFeePerGas: %s\n"+
			"  Paymaster: %s\n"+
			"  PaymasterVerificationGasLimit: %s\n"+
			"  PaymasterPostOpGasLimit: %s\n"+
			"  PaymasterData: %s\n"+
			"}",
		op.Sender,
		formatNumeric(op.Nonce),
		formatHex(op.CallData),
		formatNumeric(op.CallGasLimit),
		formatNumeric(op.VerificationGasLimit),
		formatNumeric(op.PreVerificationGas),
		formatNumeric(op.MaxFeePerGas),
		formatNumeric(op.MaxPriorityFeePerGas),
		formatHex(op.Paymaster),
		formatNumeric(op.PaymasterVerificationGasLimit),
		formatNumeric(op.PaymasterPostOpGasLimit),
		formatHex(op.PaymasterData),
	)
}
