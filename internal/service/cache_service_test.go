package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
)

type erroringCacheRepo struct {
	err error
}

func (r erroringCacheRepo) Get(ctx context.Context, key string, dest interface{}) error { return r.err }

func (r erroringCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (r erroringCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error { return nil }

func TestCacheServiceGetTreatsMissByCode(t *testing.T) {
	metrics := NewMetricsService()
	var dest map[string]string

	miss := appErrors.Clone(appErrors.ErrCacheMiss, "key expired")
	svc := NewCacheService(erroringCacheRepo{err: miss}, metrics, time.Minute, nil, true)
	hit, err := svc.Get(context.Background(), "gpa:u1", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	boom := errors.New("connection reset")
	svc = NewCacheService(erroringCacheRepo{err: boom}, metrics, time.Minute, nil, true)
	hit, err = svc.Get(context.Background(), "gpa:u1", &dest)
	assert.ErrorIs(t, err, boom)
	assert.False(t, hit)

	assert.Equal(t, uint64(2), metrics.Snapshot().CacheMisses)
}

func TestCacheServiceDisabledSkipsRepository(t *testing.T) {
	svc := NewCacheService(erroringCacheRepo{err: errors.New("unreachable")}, nil, 0, nil, false)
	hit, err := svc.Get(context.Background(), "gpa:u1", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)
}
