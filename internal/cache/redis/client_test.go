package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	t.Run("host and port", func(t *testing.T) {
		opts, err := options(ClientConfig{Addr: "localhost:6379", Password: "pw", DB: 2, PoolSize: 7, TLSEnabled: true})
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, "pw", opts.Password)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 7, opts.PoolSize)
		assert.NotNil(t, opts.TLSConfig)
	})

	t.Run("url", func(t *testing.T) {
		opts, err := options(ClientConfig{Addr: "redis://:secret@cache.internal:6380/3", Password: "ignored"})
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6380", opts.Addr)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 3, opts.DB)
		assert.Nil(t, opts.TLSConfig)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := options(ClientConfig{Addr: "redis://host:port:bad/x"})
		assert.Error(t, err)
	})
}

func TestSignalBusGlobChannels(t *testing.T) {
	assert.True(t, isGlob("arb:*"))
	assert.True(t, isGlob("arb:[ot]*"))
	assert.False(t, isGlob("arb:opportunity"))
	assert.False(t, isGlob("arb:risk"))
}
