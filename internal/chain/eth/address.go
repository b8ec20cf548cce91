package eth

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// IsValidAddress reports whether the string is a syntactically valid
// Ethereum address (0x followed by 40 hex characters).
func IsValidAddress(address string) bool {
	return addressRegex.MatchString(address)
}

// ToChecksumAddress converts an Ethereum address to EIP-55 checksum format.
func ToChecksumAddress(address string) string {
	addr := strings.ToLower(strings.TrimPrefix(address, "0x"))
	if len(addr) != 40 {
		return address
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(addr))
	hash := hex.EncodeToString(hasher.Sum(nil))

	result := make([]byte, 42)
	result[0] = '0'
	result[1] = 'x'

	for i := 0; i < 40; i++ {
		c := addr[i]
		// A hash nibble >= 8 uppercases the corresponding hex letter
		if hash[i] >= '8' && c >= 'a' && c <= 'f' {
			result[i+2] = c - 32
		} else {
			result[i+2] = c
		}
	}

	return string(result)
}

// ValidateChecksumAddress verifies the EIP-55 checksum of a mixed-case
// address. All-lowercase and all-uppercase addresses carry no checksum and
// pass unchanged.
func ValidateChecksumAddress(address string) error {
	if !IsValidAddress(address) {
		return mkterr.WithDetails(mkterr.ErrInvalidAddress, map[string]string{
			"address": address,
		})
	}

	hexPart := strings.TrimPrefix(address, "0x")
	if hexPart == strings.ToLower(hexPart) || hexPart == strings.ToUpper(hexPart) {
		return nil
	}

	if ToChecksumAddress(address) != address {
		return mkterr.WithDetails(mkterr.ErrInvalidAddress, map[string]string{
			"address": address,
			"reason":  "EIP-55 checksum mismatch",
		})
	}

	return nil
}
