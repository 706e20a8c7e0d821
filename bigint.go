package okto

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ParseBigInt converts a decimal or 0x-prefixed hexadecimal string into a
// non-negative *big.Int. An empty string or a bare "0x" is zero.
func ParseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}

	var (
		i  *big.Int
		ok bool
	)
	if has0xPrefix(s) {
		digits := s[2:]
		if digits == "" {
			return new(big.Int), nil
		}
		i, ok = new(big.Int).SetString(digits, 16)
	} else {
		i, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return nil, ErrInvalidNumeric
	}
	if i.Sign() < 0 {
		return nil, ErrNegativeNumeric
	}
	return i, nil
}

// toUint256 rejects values that do not fit the EVM word size.
func toUint256(i *big.Int) (*uint256.Int, error) {
	if i == nil {
		return new(uint256.Int), nil
	}
	if i.Sign() < 0 {
		return nil, ErrNegativeNumeric
	}
	u, overflow := uint256.FromBig(i)
	if overflow {
		return nil, ErrUint256Overflow
	}
	return u, nil
}

// toUint128Bytes returns the 16-byte big-endian encoding of i.
func toUint128Bytes(i *big.Int) ([16]byte, error) {
	var out [16]byte
	u, err := toUint256(i)
	if err != nil {
		return out, err
	}
	if u.BitLen() > 128 {
		return out, ErrUint128Overflow
	}
	word := u.Bytes32()
	copy(out[:], word[16:])
	return out, nil
}

// parseField parses a named numeric field and tags failures as encoding errors.
func parseField(name, value string) (*big.Int, error) {
	i, err := ParseBigInt(value)
	if err != nil {
		return nil, encodingError(name, err)
	}
	if _, err := toUint256(i); err != nil {
		return nil, encodingError(name, err)
	}
	return i, nil
}

func encodingError(field string, err error) *Error {
	return &Error{
		Kind:    KindEncoding,
		Message: fmt.Sprintf("%s: %v", field, err),
		Err:     err,
	}
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
