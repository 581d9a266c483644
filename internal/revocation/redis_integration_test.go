//go:build integration

package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/efiling/internal/testutil/containers"
)

func TestRedis_RevokeAndExpire(t *testing.T) {
	r := NewRedis(containers.NewRedis(t))
	ctx := context.Background()

	ok, err := r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.Revoke(ctx, "jti-1", time.Second))
	ok, err = r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		ok, err := r.IsRevoked(ctx, "jti-1")
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedis_ClaimOnce(t *testing.T) {
	r := NewRedis(containers.NewRedis(t))
	ctx := context.Background()

	ok, err := r.Claim(ctx, "jti-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Claim(ctx, "jti-2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	revoked, err := r.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	require.True(t, revoked)
}
