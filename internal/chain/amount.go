// Package chain provides chain-facing utilities shared by the RPC client and
// the marketplace service: amount conversion, retry, and rate limiting.
package chain

import (
	"math/big"
	"strings"

	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// EthDecimals is the number of decimal places in one ETH.
const EthDecimals = 18

// WeiPerEth is the single conversion constant between wei and ETH.
// Every decimal<->wei conversion in the service goes through this value;
// no call site re-derives its own scale factor.
//
//nolint:gochecknoglobals // Chain constant, immutable
var WeiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(EthDecimals), nil)

// ToWei converts a human-facing decimal ETH amount string to wei.
// Fails with ErrInvalidAmount for negative, malformed, or unrepresentable
// values (more than 18 fractional digits of precision).
func ToWei(amount string) (*big.Int, error) {
	return ParseDecimalAmount(amount, EthDecimals)
}

// FromWei converts a wei amount to a decimal ETH string with trailing zeros
// trimmed. FromWei(ToWei(s)) preserves the numeric value exactly.
func FromWei(wei *big.Int) string {
	return FormatDecimalAmount(wei, EthDecimals)
}

// ParseDecimalAmount parses a decimal amount string to big.Int with the given
// decimal places. For example, "1.5" with 18 decimals returns
// 1500000000000000000. Excess fractional digits are rejected rather than
// truncated, so no representable amount loses precision.
//
//nolint:gocognit,gocyclo // Decimal parsing requires sequential validation steps
func ParseDecimalAmount(amount string, decimalPlaces int) (*big.Int, error) {
	if amount == "" {
		return nil, mkterr.ErrInvalidAmount
	}

	// Negative amounts are never valid on this path
	if strings.HasPrefix(amount, "-") {
		return nil, mkterr.ErrInvalidAmount
	}

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, mkterr.ErrInvalidAmount
	}

	intPart := parts[0]
	decPart := ""
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if intPart == "" {
		intPart = "0"
	}
	for _, c := range intPart {
		if c < '0' || c > '9' {
			return nil, mkterr.ErrInvalidAmount
		}
	}
	intVal, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, mkterr.ErrInvalidAmount
	}

	multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimalPlaces)), nil)
	result := new(big.Int).Mul(intVal, multiplier)

	if decPart != "" {
		for _, c := range decPart {
			if c < '0' || c > '9' {
				return nil, mkterr.ErrInvalidAmount
			}
		}

		// Reject sub-wei precision instead of silently truncating
		if len(decPart) > decimalPlaces {
			return nil, mkterr.WithDetails(mkterr.ErrInvalidAmount, map[string]string{
				"reason": "too many decimal places",
				"max":    "18",
			})
		}

		for len(decPart) < decimalPlaces {
			decPart += "0"
		}

		decVal, ok := new(big.Int).SetString(decPart, 10)
		if !ok {
			return nil, mkterr.ErrInvalidAmount
		}

		result = result.Add(result, decVal)
	}

	return result, nil
}

// FormatDecimalAmount converts a big.Int to a human-readable string with the
// given decimal places. Trailing zeros after the decimal point are removed.
// For example, 1500000000000000000 with 18 decimals returns "1.5".
func FormatDecimalAmount(amount *big.Int, decimalPlaces int) string {
	if amount == nil {
		return "0"
	}

	str := amount.String()

	// Pad with leading zeros if necessary
	for len(str) <= decimalPlaces {
		str = "0" + str
	}

	// Insert decimal point
	decimalPos := len(str) - decimalPlaces
	result := str[:decimalPos] + "." + str[decimalPos:]

	// Remove unnecessary trailing zeros
	for len(result) > 1 && result[len(result)-1] == '0' && result[len(result)-2] != '.' {
		result = result[:len(result)-1]
	}

	// "1." -> "1"
	result = strings.TrimSuffix(result, ".0")

	return result
}
