package solana

import (
	"fmt"

	"github.com/mr-tron/base58"
)

const LamportsPerSol = 1_000_000_000

// ValidateAddress checks that addr is a base58-encoded 32-byte public key.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("empty address")
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("invalid base58 address %q: %w", addr, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("invalid address %q: expected 32 bytes, got %d", addr, len(decoded))
	}
	return nil
}

// IsValidAddress reports whether addr is a well-formed Solana public key.
func IsValidAddress(addr string) bool {
	return ValidateAddress(addr) == nil
}

// EncodePubkey renders a raw 32-byte public key as base58.
func EncodePubkey(raw []byte) (string, error) {
	if len(raw) != 32 {
		return "", fmt.Errorf("expected 32-byte pubkey, got %d bytes", len(raw))
	}
	return base58.Encode(raw), nil
}

func LamportsToSol(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSol
}

func SolToLamports(sol float64) uint64 {
	return uint64(sol * LamportsPerSol)
}

// ShortAddress abbreviates an address for log output, e.g. "DGPT…WPW6".
func ShortAddress(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + "…" + addr[len(addr)-4:]
}
