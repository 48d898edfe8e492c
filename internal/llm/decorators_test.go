package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	m := ModelFunc(func(ctx context.Context, instruction string, images []string) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	r := WithRetry(m, RetryConfig{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, nil)
	out, err := r.Generate(context.Background(), "i", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	m := ModelFunc(func(ctx context.Context, instruction string, images []string) (string, error) {
		calls.Add(1)
		return "", boom
	})

	r := WithRetry(m, RetryConfig{Attempts: 2, InitialBackoff: time.Millisecond}, nil)
	_, err := r.Generate(context.Background(), "i", nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	m := ModelFunc(func(ctx context.Context, instruction string, images []string) (string, error) {
		calls.Add(1)
		cancel()
		return "", ctx.Err()
	})

	r := WithRetry(m, RetryConfig{Attempts: 5, InitialBackoff: time.Millisecond}, nil)
	_, err := r.Generate(ctx, "i", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithRetry_PerAttemptTimeout(t *testing.T) {
	m := ModelFunc(func(ctx context.Context, instruction string, images []string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := WithRetry(m, RetryConfig{Attempts: 1, Timeout: 5 * time.Millisecond}, nil)
	_, err := r.Generate(context.Background(), "i", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithRateLimit(t *testing.T) {
	var calls atomic.Int32
	m := ModelFunc(func(ctx context.Context, instruction string, images []string) (string, error) {
		calls.Add(1)
		return "ok", nil
	})

	assert.NotNil(t, WithRateLimit(m, 0, 0))

	limited := WithRateLimit(m, 1, 1)
	_, err := limited.Generate(context.Background(), "i", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limited.Generate(ctx, "i", nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	jpg := filepath.Join(dir, "a.JPG")
	require.NoError(t, os.WriteFile(jpg, []byte("abc"), 0o600))

	im, err := LoadImage(jpg)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", im.MIMEType)
	assert.Equal(t, "jpeg", im.Format())
	assert.Equal(t, "data:image/jpeg;base64,YWJj", im.DataURL())

	_, err = LoadImages([]string{jpg, filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}
