package solana

import (
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	t.Run("valid 32-byte address", func(t *testing.T) {
		addr := base58.Encode(make([]byte, 32))
		assert.NoError(t, ValidateAddress(addr))
		assert.True(t, IsValidAddress(addr))
	})

	t.Run("known mainnet address", func(t *testing.T) {
		assert.NoError(t, ValidateAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"))
	})

	t.Run("empty", func(t *testing.T) {
		err := ValidateAddress("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty address")
	})

	t.Run("bad base58 characters", func(t *testing.T) {
		err := ValidateAddress("0OIl+/=")
		require.Error(t, err)
	})

	t.Run("wrong length", func(t *testing.T) {
		addr := base58.Encode([]byte{1, 2, 3})
		err := ValidateAddress(addr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 32 bytes")
	})
}

func TestEncodePubkey(t *testing.T) {
	raw := make([]byte, 32)
	raw[31] = 1
	addr, err := EncodePubkey(raw)
	require.NoError(t, err)
	assert.True(t, IsValidAddress(addr))

	_, err = EncodePubkey([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestLamportsConversion(t *testing.T) {
	assert.Equal(t, 1.5, LamportsToSol(1_500_000_000))
	assert.Equal(t, uint64(2_250_000_000), SolToLamports(2.25))
	assert.Equal(t, 0.0, LamportsToSol(0))
}

func TestShortAddress(t *testing.T) {
	addr := "DGPTxgKaBPJv3Ng7dc9AFDpX6E7kgUMZEgyTm3VGWPW6"
	short := ShortAddress(addr)
	assert.True(t, strings.HasPrefix(short, "DGPT"))
	assert.True(t, strings.HasSuffix(short, "WPW6"))
	assert.Equal(t, "abc", ShortAddress("abc"))
}
