package verimail_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/verimail"
)

func TestNew_LocalStagesOnly(t *testing.T) {
	v := verimail.New()
	ctx := context.Background()

	res, err := v.Verify(ctx, "user@example.com")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "user@example.com", res.Value)
	assert.Empty(t, res.Warning)

	res, err = v.Verify(ctx, "invalid")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, verimail.ReasonInvalidFormat, res.Value)
}

func TestVerify_NormalizesDomainCase(t *testing.T) {
	res, err := verimail.New().Verify(context.Background(), "User@EXAMPLE.Com")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "User@example.com", res.Value)
}

func TestVerify_DisposableDomainCaseInsensitive(t *testing.T) {
	v := verimail.New()
	ctx := context.Background()

	for _, email := range []string{
		"a@mailinator.com",
		"b@MAILINATOR.COM",
		"c@TempMail.com",
	} {
		res, err := v.Verify(ctx, email)
		require.NoError(t, err)
		assert.False(t, res.Valid, email)
		assert.Equal(t, verimail.ReasonDisposableDomain, res.Value, email)
	}
}

func TestWithExistence_MissingOptions(t *testing.T) {
	v := verimail.New().WithExistence(verimail.ExistenceOptions{
		// HeloDomain and MailFrom are missing
	})
	_, err := v.Verify(context.Background(), "user@example.com")
	assert.ErrorIs(t, err, verimail.ErrInvalidExistenceOptions)
}

func TestVerify_LocalRejectionSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	v := verimail.New().WithDeliverability(verimail.DeliverabilityOptions{
		LookupMX: staticMX("mx.example.com.", &calls),
	})
	ctx := context.Background()

	for _, email := range []string{"not-an-email", "x@mailinator.com"} {
		res, err := v.Verify(ctx, email)
		require.NoError(t, err)
		assert.False(t, res.Valid)
	}
	assert.Equal(t, int64(0), calls.Load())
}

func TestWithCache_CorruptFileIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	log := logrus.New()
	log.SetOutput(os.Stderr)

	v := verimail.New().WithLogger(log).WithCache(path)

	res, err := v.Verify(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestWithCache_PersistedAcrossVerifiers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")
	ctx := context.Background()

	var first atomic.Int64
	v1 := verimail.New().
		WithCache(path).
		WithDeliverability(verimail.DeliverabilityOptions{
			LookupMX: staticMX("mx.example.com.", &first),
		})

	res, err := v1.Verify(ctx, "user@example.com")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, int64(1), first.Load())
	require.NoError(t, v1.Close())

	// A fresh Verifier loads the persisted verdict and skips DNS.
	var second atomic.Int64
	v2 := verimail.New().
		WithCache(path).
		WithDeliverability(verimail.DeliverabilityOptions{
			LookupMX: staticMX("mx.example.com.", &second),
		})

	res, err = v2.Verify(ctx, "other@example.com")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, int64(0), second.Load())
}

func TestClose_WithoutProbesIsHarmless(t *testing.T) {
	v := verimail.New()
	assert.NoError(t, v.Close())
	assert.NoError(t, v.Close())
}
