package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	t.Run("accepts and trims ordinary addresses", func(t *testing.T) {
		addr, err := ParseAddress("  alice  ")
		require.NoError(t, err)
		assert.Equal(t, "alice", addr.String())
		assert.False(t, addr.IsZero())
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := ParseAddress("")
		assert.Error(t, err)
		_, err = ParseAddress("   ")
		assert.Error(t, err)
	})

	t.Run("rejects oversized input", func(t *testing.T) {
		_, err := ParseAddress(strings.Repeat("a", 129))
		assert.Error(t, err)
		_, err = ParseAddress(strings.Repeat("a", 128))
		assert.NoError(t, err)
	})

	t.Run("zero value reports zero", func(t *testing.T) {
		var addr Address
		assert.True(t, addr.IsZero())
	})
}

// FuzzParseAddress verifies parsing never panics on arbitrary input and that
// accepted addresses round-trip unchanged.
func FuzzParseAddress(f *testing.F) {
	f.Add("")
	f.Add("alice")
	f.Add("  spaced  ")
	f.Add("'; DROP TABLE holdings;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add(strings.Repeat("x", 200))

	f.Fuzz(func(t *testing.T, input string) {
		addr, err := ParseAddress(input)
		if err != nil {
			return
		}
		roundTrip, err2 := ParseAddress(addr.String())
		if err2 != nil {
			t.Errorf("accepted address failed round-trip: %v", err2)
		}
		if roundTrip != addr {
			t.Error("round-trip changed address value")
		}
	})
}
