package core

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsContext(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		claims := Claims{
			"sub":   "user-1",
			"scope": "read write",
			"cnf":   map[string]any{"jkt": "thumb"},
		}
		ctx := SetClaims(context.Background(), claims)

		got, err := GetClaims(ctx)
		require.NoError(t, err)
		if diff := cmp.Diff(claims, got); diff != "" {
			t.Errorf("claims mismatch (-want +got):\n%s", diff)
		}
		assert.True(t, HasClaims(ctx))
	})

	t.Run("empty context", func(t *testing.T) {
		_, err := GetClaims(context.Background())
		assert.ErrorIs(t, err, ErrClaimsNotFound)
		assert.False(t, HasClaims(context.Background()))
	})
}

func TestDPoPContextStorage(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		dc := &DPoPContext{
			PublicKeyThumbprint: "thumb",
			IssuedAt:            time.Unix(1700000000, 0),
			Proof:               "raw-proof",
		}
		ctx := SetDPoPContext(context.Background(), dc)

		assert.Same(t, dc, GetDPoPContext(ctx))
		assert.True(t, HasDPoPContext(ctx))
	})

	t.Run("bearer request has no DPoP context", func(t *testing.T) {
		assert.Nil(t, GetDPoPContext(context.Background()))
		assert.False(t, HasDPoPContext(context.Background()))
	})
}
