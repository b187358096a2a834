package chain

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genAddress produces random 20-byte addresses in lowercase hex form.
func genAddress() gopter.Gen {
	return gen.SliceOfN(20, gen.UInt8()).Map(func(b []byte) string {
		return "0x" + hex.EncodeToString(b)
	})
}

func TestAddressProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("normalization is idempotent", prop.ForAll(
		func(addr string) bool {
			once, err := Normalize(addr)
			if err != nil {
				return false
			}
			twice, err := Normalize(once)
			return err == nil && once == twice
		},
		genAddress(),
	))

	properties.Property("normalization is casing-insensitive", prop.ForAll(
		func(addr string) bool {
			lower, err := Normalize(strings.ToLower(addr))
			if err != nil {
				return false
			}
			upper, err := Normalize("0x" + strings.ToUpper(addr[2:]))
			return err == nil && lower == upper
		},
		genAddress(),
	))

	properties.Property("normalized addresses equal their raw form", prop.ForAll(
		func(addr string) bool {
			normalized, err := Normalize(addr)
			return err == nil && Equal(addr, normalized)
		},
		genAddress(),
	))

	properties.TestingRun(t)
}
