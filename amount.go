package okto

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// NativeTokenDecimals is the precision of the primary token of every EVM chain.
const NativeTokenDecimals = 18

// TokenDecimals picks the precision used to convert a human amount of a
// portfolio token into base units. Primary tokens on eip155 chains always
// use 18; everything else uses the precision the backend reports.
func TokenDecimals(caip2ID string, isPrimary bool, precision string) (int32, error) {
	if isPrimary && IsEVM(caip2ID) {
		return NativeTokenDecimals, nil
	}
	d, err := cast.ToInt32E(strings.TrimSpace(precision))
	if err != nil || d < 0 || d > 77 {
		return 0, encodingError("precision", ErrInvalidNumeric)
	}
	return d, nil
}

// ToBaseUnits converts a decimal amount such as "1,000.5" into integer base
// units with the given number of decimals. Thousands separators are ignored
// and digits beyond the precision are truncated.
func ToBaseUnits(amount string, decimals int32) (*big.Int, error) {
	amount = strings.ReplaceAll(strings.TrimSpace(amount), ",", "")
	if amount == "" {
		return nil, encodingError("amount", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, encodingError("amount", ErrInvalidAmount)
	}
	if d.IsNegative() {
		return nil, encodingError("amount", ErrNegativeNumeric)
	}
	units := d.Shift(decimals).Truncate(0).BigInt()
	if units.BitLen() > 256 {
		return nil, encodingError("amount", ErrUint256Overflow)
	}
	return units, nil
}

// FromBaseUnits renders base units as a decimal string.
func FromBaseUnits(units *big.Int, decimals int32) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -decimals).String()
}
