package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

func AreAddressesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// NormalizeAddress lowercases a 0x-prefixed 20 byte hex address. Anything else normalizes to "".
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return ""
	}
	if !common.IsHexAddress(address) {
		return ""
	}
	return strings.ToLower(common.HexToAddress(address).Hex())
}

// NewId returns a time-ordered UUIDv7 string.
func NewId() string {
	return uuid.Must(uuid.NewV7()).String()
}
