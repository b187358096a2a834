// Package chain provides address canonicalization for chain account identifiers.
//
// Providers deliver addresses in mixed or all-lowercase casings. Every key
// used for storage or comparison must first pass through Normalize so that
// equality is well defined across import paths.
package chain

import (
	"strings"

	"github.com/blockso/blockso/internal/errors"
	"github.com/ethereum/go-ethereum/common"
)

// Normalize validates the given address and returns its EIP-55
// checksum-cased canonical form. It fails with an invalid-address error
// if the input is not a 20-byte hex address.
func Normalize(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", errors.NewInvalidAddressError(address)
	}
	return common.HexToAddress(address).Hex(), nil
}

// MustNormalize is Normalize for inputs already known to be well formed,
// such as provider log topics. It panics on malformed input.
func MustNormalize(address string) string {
	normalized, err := Normalize(address)
	if err != nil {
		panic(err)
	}
	return normalized
}

// Equal reports whether two addresses identify the same account,
// regardless of casing. Malformed inputs are never equal.
func Equal(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return strings.EqualFold(a, b)
}

// IsZero reports whether the address is the zero address.
func IsZero(address string) bool {
	return common.IsHexAddress(address) && common.HexToAddress(address) == (common.Address{})
}
