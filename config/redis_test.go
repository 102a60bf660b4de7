package config

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name    string
		config  *RedisConfig
		wantTLS bool
	}{
		{
			name:    "local redis",
			config:  &RedisConfig{Address: "localhost:6379", DB: 1, PoolSize: 10, MinIdleConns: 2},
			wantTLS: false,
		},
		{
			name:    "explicit TLS",
			config:  &RedisConfig{Address: "redis.internal:6380", Password: "pw", UseTLS: true, PoolSize: 3},
			wantTLS: true,
		},
		{
			name:    "upstash host",
			config:  &RedisConfig{Address: "actual-serval-57447.upstash.io:6379", PoolSize: 3},
			wantTLS: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := RedisOptions(tt.config)
			require.NotNil(t, opts)
			assert.Equal(t, tt.config.Address, opts.Addr)
			assert.Equal(t, tt.config.Password, opts.Password)
			assert.Equal(t, tt.config.DB, opts.DB)
			assert.Equal(t, tt.config.PoolSize, opts.PoolSize)
			assert.Equal(t, 3, opts.MaxRetries)
			assert.Equal(t, 5*time.Second, opts.DialTimeout)
			assert.Equal(t, tt.wantTLS, opts.TLSConfig != nil)
		})
	}
}

func TestPingRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, PingRedis(context.Background(), client, 3, 10*time.Millisecond))

	mr.Close()
	err := PingRedis(context.Background(), client, 2, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}
