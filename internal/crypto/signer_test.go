package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner("")
	require.ErrorIs(t, err, ErrMissingSecret)

	s, err := NewSigner("topsecret")
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestSignDeterministic(t *testing.T) {
	s, err := NewSigner("topsecret")
	require.NoError(t, err)

	payload := map[string]any{
		"type":        "crypto.quote",
		"assetSymbol": "BTC",
		"priceUsd":    42000.5,
		"sources":     []any{"coingecko", "binance"},
		"metadata": map[string]any{
			"targetDate": "2026-08-28",
			"automation": true,
		},
	}

	first, err := s.Sign(payload)
	require.NoError(t, err)
	second, err := s.Sign(payload)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // hex sha256
}

func TestSignIgnoresKeyInsertionOrder(t *testing.T) {
	s, err := NewSigner("topsecret")
	require.NoError(t, err)

	a := map[string]any{
		"b": 2,
		"a": 1,
		"nested": map[string]any{
			"y": "second",
			"x": "first",
		},
	}
	b := map[string]any{
		"nested": map[string]any{
			"x": "first",
			"y": "second",
		},
		"a": 1,
		"b": 2,
	}

	sigA, err := s.Sign(a)
	require.NoError(t, err)
	sigB, err := s.Sign(b)
	require.NoError(t, err)
	assert.Equal(t, sigA, sigB)
}

func TestSignSensitiveToLeafChanges(t *testing.T) {
	s, err := NewSigner("topsecret")
	require.NoError(t, err)

	base := map[string]any{
		"eventId": "603310",
		"score":   map[string]any{"home": 2, "away": 1},
	}
	changed := map[string]any{
		"eventId": "603310",
		"score":   map[string]any{"home": 2, "away": 2},
	}

	sigBase, err := s.Sign(base)
	require.NoError(t, err)
	sigChanged, err := s.Sign(changed)
	require.NoError(t, err)
	assert.NotEqual(t, sigBase, sigChanged)
}

func TestSignDependsOnSecret(t *testing.T) {
	s1, err := NewSigner("secret-one")
	require.NoError(t, err)
	s2, err := NewSigner("secret-two")
	require.NoError(t, err)

	payload := map[string]any{"assetSymbol": "ETH", "priceUsd": 3400}
	sig1, err := s1.Sign(payload)
	require.NoError(t, err)
	sig2, err := s2.Sign(payload)
	require.NoError(t, err)
	assert.NotEqual(t, sig1, sig2)
}

func TestVerify(t *testing.T) {
	s, err := NewSigner("topsecret")
	require.NoError(t, err)

	payload := map[string]any{"assetSymbol": "SOL", "priceUsd": 150.0}
	sig, err := s.Sign(payload)
	require.NoError(t, err)

	ok, err := s.Verify(payload, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Verify(payload, "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanonicalizeOrdering(t *testing.T) {
	got, err := Canonicalize(map[string]any{
		"z":   1,
		"a":   []any{3, 2, 1},
		"m":   map[string]any{"k2": nil, "k1": true},
		"num": 42000,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[3,2,1],"m":{"k1":true,"k2":null},"num":42000,"z":1}`, string(got))
}
