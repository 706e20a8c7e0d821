package okto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	AddressLength      = common.AddressLength
	GasFieldSize       = 16
	GasPairSize        = 2 * GasFieldSize
	PaymasterGasOffset = AddressLength
	PaymasterDataIndex = AddressLength + GasPairSize
)

// PackedUserOperation is the EntryPoint v0.7 layout of a user operation,
// without its signature. It exists only to feed the hash.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [GasPairSize]byte
	PreVerificationGas *big.Int
	GasFees            [GasPairSize]byte
	PaymasterAndData   []byte
}

// Pack converts the operation into its fixed-width positional layout:
//
//	accountGasLimits = verificationGasLimit(16) || callGasLimit(16)
//	gasFees          = maxFeePerGas(16) || maxPriorityFeePerGas(16)
//	paymasterAndData = paymaster(20) || paymasterVerificationGasLimit(16) ||
//	                   paymasterPostOpGasLimit(16) || paymasterData
//
// paymasterAndData is empty when no paymaster is set and initCode is always
// empty. Values that do not fit their field fail with an EncodingError.
func (op *UnsignedUserOperation) Pack() (*PackedUserOperation, error) {
	if !common.IsHexAddress(op.Sender) {
		return nil, encodingError("sender", ErrInvalidAddress)
	}

	nonce, err := parseField("nonce", op.Nonce)
	if err != nil {
		return nil, err
	}
	preVerificationGas, err := parseField("preVerificationGas", op.PreVerificationGas)
	if err != nil {
		return nil, err
	}
	callData, err := decodeHexField("callData", op.CallData)
	if err != nil {
		return nil, err
	}

	accountGasLimits, err := packGasFields(
		"verificationGasLimit", op.VerificationGasLimit,
		"callGasLimit", op.CallGasLimit,
	)
	if err != nil {
		return nil, err
	}
	gasFees, err := packGasFields(
		"maxFeePerGas", op.MaxFeePerGas,
		"maxPriorityFeePerGas", op.MaxPriorityFeePerGas,
	)
	if err != nil {
		return nil, err
	}

	paymasterAndData := []byte{}
	if op.HasPaymaster() {
		if !common.IsHexAddress(op.Paymaster) {
			return nil, encodingError("paymaster", ErrInvalidAddress)
		}
		verificationGas, err := parseField("paymasterVerificationGasLimit", op.PaymasterVerificationGasLimit)
		if err != nil {
			return nil, err
		}
		postOpGas, err := parseField("paymasterPostOpGasLimit", op.PaymasterPostOpGasLimit)
		if err != nil {
			return nil, err
		}
		data, err := decodeHexField("paymasterData", op.PaymasterData)
		if err != nil {
			return nil, err
		}
		paymasterAndData, err = PackPaymasterAndData(common.HexToAddress(op.Paymaster), verificationGas, postOpGas, data)
		if err != nil {
			return nil, err
		}
	}

	return &PackedUserOperation{
		Sender:             common.HexToAddress(op.Sender),
		Nonce:              nonce,
		InitCode:           []byte{},
		CallData:           callData,
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: preVerificationGas,
		GasFees:            gasFees,
		PaymasterAndData:   paymasterAndData,
	}, nil
}

// PackGasPair concatenates the 16-byte big-endian encodings of hi and lo.
func PackGasPair(hi, lo *big.Int) ([GasPairSize]byte, error) {
	var out [GasPairSize]byte
	hiBytes, err := toUint128Bytes(hi)
	if err != nil {
		return out, err
	}
	loBytes, err := toUint128Bytes(lo)
	if err != nil {
		return out, err
	}
	copy(out[:GasFieldSize], hiBytes[:])
	copy(out[GasFieldSize:], loBytes[:])
	return out, nil
}

// UnpackGasPair splits a packed gas pair back into its two values.
func UnpackGasPair(packed [GasPairSize]byte) (hi, lo *big.Int) {
	hi = new(big.Int).SetBytes(packed[:GasFieldSize])
	lo = new(big.Int).SetBytes(packed[GasFieldSize:])
	return hi, lo
}

// PackPaymasterAndData constructs the paymasterAndData field.
func PackPaymasterAndData(paymaster common.Address, verificationGasLimit, postOpGasLimit *big.Int, data []byte) ([]byte, error) {
	gas, err := PackGasPair(verificationGasLimit, postOpGasLimit)
	if err != nil {
		return nil, encodingError("paymasterGasLimits", err)
	}

	result := make([]byte, 0, PaymasterDataIndex+len(data))
	result = append(result, paymaster.Bytes()...) // 20 bytes
	result = append(result, gas[:]...)            // 16 + 16 bytes
	result = append(result, data...)
	return result, nil
}

// Paymaster returns the paymaster address of a packed paymasterAndData
// value, or the zero address when there is none.
func (p *PackedUserOperation) Paymaster() common.Address {
	if len(p.PaymasterAndData) < AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(p.PaymasterAndData[:AddressLength])
}

func packGasFields(hiName, hiValue, loName, loValue string) ([GasPairSize]byte, error) {
	var out [GasPairSize]byte
	hi, err := parseField(hiName, hiValue)
	if err != nil {
		return out, err
	}
	lo, err := parseField(loName, loValue)
	if err != nil {
		return out, err
	}
	hiBytes, err := toUint128Bytes(hi)
	if err != nil {
		return out, encodingError(hiName, err)
	}
	loBytes, err := toUint128Bytes(lo)
	if err != nil {
		return out, encodingError(loName, err)
	}
	copy(out[:GasFieldSize], hiBytes[:])
	copy(out[GasFieldSize:], loBytes[:])
	return out, nil
}

func decodeHexField(name, value string) ([]byte, error) {
	if value == "" {
		return []byte{}, nil
	}
	if !has0xPrefix(value) {
		return nil, encodingError(name, ErrInvalidHexData)
	}
	b, err := hexutil.Decode(value)
	if err != nil {
		return nil, encodingError(name, ErrInvalidHexData)
	}
	return b, nil
}
