package oauth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttempt(t *testing.T) {
	t.Parallel()
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := NewAttempt()
		require.NoError(err)
		assert.NotNil(got.Verifier())
		assert.Len(got.State(), csrfStateLen)
		assert.NotEqual(got.Verifier().Verifier(), got.State())
		assert.WithinDuration(time.Now(), got.CreatedAt(), time.Second)
		assert.False(got.IsExpired())
	})
	t.Run("WithNow", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		testNow := func() time.Time {
			return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		}
		got, err := NewAttempt(WithNow(testNow))
		require.NoError(err)
		assert.Equal(testNow(), got.CreatedAt())
	})
}

func TestRestoreAttempt(t *testing.T) {
	t.Parallel()
	validVerifier := func(t *testing.T) string {
		t.Helper()
		v, err := NewCodeVerifier()
		require.NoError(t, err)
		return v.Verifier()
	}
	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		verifier := validVerifier(t)
		createdAt := time.Now().Add(-time.Minute)
		got, err := RestoreAttempt(verifier, "test-state", createdAt)
		require.NoError(err)
		assert.Equal(verifier, got.Verifier().Verifier())
		assert.Equal("test-state", got.State())
		assert.Equal(createdAt, got.CreatedAt())
	})
	t.Run("empty-state", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := RestoreAttempt(validVerifier(t), "", time.Now())
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("zero-created-at", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := RestoreAttempt(validVerifier(t), "test-state", time.Time{})
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("invalid-verifier", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := RestoreAttempt("too-short", "test-state", time.Now())
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestAttempt_IsExpired(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		age         time.Duration
		wantExpired bool
	}{
		{
			name:        "fresh",
			age:         0,
			wantExpired: false,
		},
		{
			name:        "just-under-ttl",
			age:         599 * time.Second,
			wantExpired: false,
		},
		{
			name:        "exactly-ttl",
			age:         600 * time.Second,
			wantExpired: true,
		},
		{
			name:        "just-over-ttl",
			age:         601 * time.Second,
			wantExpired: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			v, err := NewCodeVerifier()
			require.NoError(err)
			got, err := RestoreAttempt(v.Verifier(), "test-state", now.Add(-tt.age), WithNow(func() time.Time { return now }))
			require.NoError(err)
			assert.Equal(tt.wantExpired, got.IsExpired())
		})
	}
}
