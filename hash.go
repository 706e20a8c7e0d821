package okto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressT, _ = abi.NewType("address", "", nil)
	uint256T, _ = abi.NewType("uint256", "", nil)
	bytes32T, _ = abi.NewType("bytes32", "", nil)

	// abi.encode(sender, nonce, keccak(initCode), keccak(callData),
	// keccak(accountGasLimits), preVerificationGas, keccak(gasFees),
	// keccak(paymasterAndData))
	packedOpArgs = abi.Arguments{
		{Name: "sender", Type: addressT},
		{Name: "nonce", Type: uint256T},
		{Name: "hashInitCode", Type: bytes32T},
		{Name: "hashCallData", Type: bytes32T},
		{Name: "accountGasLimits", Type: bytes32T},
		{Name: "preVerificationGas", Type: uint256T},
		{Name: "gasFees", Type: bytes32T},
		{Name: "hashPaymasterAndData", Type: bytes32T},
	}

	// abi.encode(keccak(packedOp), entryPoint, chainId)
	userOpHashArgs = abi.Arguments{
		{Name: "packedOpHash", Type: bytes32T},
		{Name: "entryPoint", Type: addressT},
		{Name: "chainId", Type: uint256T},
	}
)

// Hash returns the user operation hash the EntryPoint contract at entryPoint
// computes on chainID. It is a pure function of its inputs.
func (p *PackedUserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	if chainID == nil || chainID.Sign() < 0 {
		return common.Hash{}, encodingError("chainId", ErrInvalidChainID)
	}
	if _, err := toUint256(chainID); err != nil {
		return common.Hash{}, encodingError("chainId", err)
	}
	nonce := p.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}
	preVerificationGas := p.PreVerificationGas
	if preVerificationGas == nil {
		preVerificationGas = new(big.Int)
	}

	inner, err := packedOpArgs.Pack(
		p.Sender,
		nonce,
		crypto.Keccak256Hash(p.InitCode),
		crypto.Keccak256Hash(p.CallData),
		crypto.Keccak256Hash(p.AccountGasLimits[:]),
		preVerificationGas,
		crypto.Keccak256Hash(p.GasFees[:]),
		crypto.Keccak256Hash(p.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, NewError(KindEncoding, err)
	}

	outer, err := userOpHashArgs.Pack(
		crypto.Keccak256Hash(inner),
		entryPoint,
		chainID,
	)
	if err != nil {
		return common.Hash{}, NewError(KindEncoding, err)
	}

	return crypto.Keccak256Hash(outer), nil
}

// UserOpHash packs op and hashes it for the given EntryPoint and chain.
func UserOpHash(op *UnsignedUserOperation, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	return op.Hash(entryPoint, chainID)
}
