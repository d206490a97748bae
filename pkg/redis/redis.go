// Package redis opens the shared go-redis client used for sessions,
// idempotency keys, rate limiting and the report cache.
package redis

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Alijeyrad/simorq_billing/config"
)

const pingTimeout = 5 * time.Second

// Options maps central config onto go-redis options. Zero values fall back
// to the defaults below.
func Options(c config.RedisConfig) *goredis.Options {
	seconds := func(n, def int) time.Duration {
		return time.Duration(cmp.Or(n, def)) * time.Second
	}
	return &goredis.Options{
		Addr:         c.Addr,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     cmp.Or(c.PoolSize, 10),
		MinIdleConns: cmp.Or(c.MinIdleConns, 2),
		DialTimeout:  seconds(c.DialTimeoutSeconds, 5),
		ReadTimeout:  seconds(c.ReadTimeoutSeconds, 3),
		WriteTimeout: seconds(c.WriteTimeoutSeconds, 3),
	}
}

// NewRedisFromCentral connects and pings. A failed ping closes the client.
func NewRedisFromCentral(c config.RedisConfig) (*goredis.Client, error) {
	if c.Addr == "" {
		return nil, errors.New("redis addr is empty")
	}
	rdb := goredis.NewClient(Options(c))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.Addr, err)
	}
	return rdb, nil
}
