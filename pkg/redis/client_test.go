package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedisOptions(t *testing.T) {
	opts := Options{Addr: "cache:6379", Password: "pw", DB: 2, PoolSize: 20}.redisOptions()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)

	assert.Zero(t, Options{Addr: "x"}.redisOptions().PoolSize)
}
