package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/internal/service"
	"github.com/Tonic56/stock-trading-simulator/lib/errs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDenylist struct {
	mu  sync.Mutex
	ids map[string]time.Duration
}

func (d *memoryDenylist) Add(_ context.Context, tokenID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ids == nil {
		d.ids = make(map[string]time.Duration)
	}
	d.ids[tokenID] = ttl
	return nil
}

func (d *memoryDenylist) Contains(_ context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.ids[tokenID]
	return ok, nil
}

func TestTokenIssueAndParse(t *testing.T) {
	denylist := &memoryDenylist{}
	tokens := service.NewTokenService("secret", time.Hour, denylist)
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Username: "alice"}
	signed, expiresAt, err := tokens.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := tokens.Parse(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "alice", claims.UserName)
	assert.NotEmpty(t, claims.TokenID)

	require.NoError(t, tokens.Revoke(ctx, claims))
	_, err = tokens.Parse(ctx, signed)
	assert.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestTokenRejections(t *testing.T) {
	ctx := context.Background()
	user := &models.User{ID: uuid.New(), Username: "alice"}

	t.Run("wrong secret", func(t *testing.T) {
		signed, _, err := service.NewTokenService("one", time.Hour, nil).Issue(user)
		require.NoError(t, err)

		_, err = service.NewTokenService("two", time.Hour, nil).Parse(ctx, signed)
		assert.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		tokens := service.NewTokenService("secret", -time.Minute, nil)
		signed, _, err := tokens.Issue(user)
		require.NoError(t, err)

		_, err = tokens.Parse(ctx, signed)
		assert.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := service.NewTokenService("secret", time.Hour, nil).Parse(ctx, "not-a-token")
		assert.ErrorIs(t, err, errs.ErrInvalidToken)
	})
}
