package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"vaultcore/crypto"
)

func decodeBech32(value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("address required")
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, err
	}
	return addr, nil
}

// parseAmount decodes a base-10 integer string. Amounts travel as strings
// because Wad, Ray and Rad magnitudes overflow JSON numbers.
func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", value)
	}
	return parsed, nil
}

func parseUnsignedAmount(value string) (*big.Int, error) {
	parsed, err := parseAmount(value)
	if err != nil {
		return nil, err
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return parsed, nil
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
