package redis

import (
	"context"
	"fmt"
	"time"

	redigo "github.com/gomodule/redigo/redis"
	"go.uber.org/zap"
)

const scanCount = 500

type Logger interface {
	Info(ctx context.Context, message string, fields ...zap.Field)
	Error(ctx context.Context, message string, fields ...zap.Field)
}

type Client interface {
	HSet(ctx context.Context, key, field string, value interface{}) error
	HSetNX(ctx context.Context, key, field string, value interface{}) (bool, error)
	HashSet(ctx context.Context, key string, values interface{}) error
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HMGet(ctx context.Context, key string, fields ...string) ([][]byte, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HScan(ctx context.Context, key string, fn func(field string, value []byte) error) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exec(ctx context.Context, batch *Batch) error
	Ping(ctx context.Context) error
}

type client struct {
	pool              *redigo.Pool
	logger            Logger
	connectionTimeout time.Duration
}

type redisFn func(ctx context.Context, conn redigo.Conn) error

func NewClient(pool *redigo.Pool, logger Logger, connectionTimeout time.Duration) *client {
	return &client{
		pool:              pool,
		logger:            logger,
		connectionTimeout: connectionTimeout,
	}
}

func NewPool(address string, db int, password string, maxIdle, maxActive int, idleTimeout, timeout time.Duration) *redigo.Pool {
	return &redigo.Pool{
		MaxIdle:     maxIdle,
		MaxActive:   maxActive,
		IdleTimeout: idleTimeout,
		Wait:        true,
		DialContext: func(ctx context.Context) (redigo.Conn, error) {
			return redigo.DialContext(
				ctx,
				"tcp",
				address,
				redigo.DialDatabase(db),
				redigo.DialPassword(password),
				redigo.DialConnectTimeout(timeout),
				redigo.DialReadTimeout(timeout),
				redigo.DialWriteTimeout(timeout),
			)
		},
		TestOnBorrow: func(conn redigo.Conn, lastUsed time.Time) error {
			if time.Since(lastUsed) < time.Minute {
				return nil
			}
			_, err := conn.Do("PING")
			return err
		},
	}
}

func (c *client) withConn(ctx context.Context, fn redisFn) error {
	connection, err := c.getConn(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if cErr := connection.Close(); cErr != nil {
			c.logger.Error(ctx, "failed to close redis connection",
				zap.Error(cErr),
			)
		}
	}()

	return fn(ctx, connection)
}

func (c *client) getConn(ctx context.Context) (redigo.Conn, error) {
	connCtx, cancel := context.WithTimeout(ctx, c.connectionTimeout)
	defer cancel()

	connection, err := c.pool.GetContext(connCtx)
	if err != nil {
		c.logger.Error(ctx, "failed to get redis connection",
			zap.Error(err),
		)
		return nil, err
	}

	return connection, nil
}

func (c *client) HSet(ctx context.Context, key, field string, value interface{}) error {
	return c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		_, err := redigo.DoContext(conn, ctx, "HSET", key, field, value)
		return err
	})
}

func (c *client) HSetNX(ctx context.Context, key, field string, value interface{}) (bool, error) {
	var created bool
	err := c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		ok, err := redigo.Bool(redigo.DoContext(conn, ctx, "HSETNX", key, field, value))
		if err != nil {
			return err
		}

		created = ok
		return nil
	})

	return created, err
}

func (c *client) HashSet(ctx context.Context, key string, values interface{}) error {
	return c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		_, err := redigo.DoContext(conn, ctx, "HSET", redigo.Args{key}.AddFlat(values)...)
		return err
	})
}

// HGet returns redigo.ErrNil when the field does not exist.
func (c *client) HGet(ctx context.Context, key, field string) ([]byte, error) {
	var result []byte
	err := c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		value, err := redigo.Bytes(redigo.DoContext(conn, ctx, "HGET", key, field))
		if err != nil {
			return err
		}

		result = value
		return nil
	})

	return result, err
}

// HMGet keeps the position of missing fields as nil entries.
func (c *client) HMGet(ctx context.Context, key string, fields ...string) ([][]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	var result [][]byte
	err := c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		values, err := redigo.ByteSlices(redigo.DoContext(conn, ctx, "HMGET", redigo.Args{key}.AddFlat(fields)...))
		if err != nil {
			return err
		}

		result = values
		return nil
	})

	return result, err
}

func (c *client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var result map[string]string
	err := c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		values, err := redigo.StringMap(redigo.DoContext(conn, ctx, "HGETALL", key))
		if err != nil {
			return err
		}

		result = values
		return nil
	})

	return result, err
}

func (c *client) HScan(ctx context.Context, key string, fn func(field string, value []byte) error) error {
	return c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		cursor := 0
		for {
			values, err := redigo.Values(redigo.DoContext(conn, ctx, "HSCAN", key, cursor, "COUNT", scanCount))
			if err != nil {
				return err
			}
			if len(values) != 2 {
				return fmt.Errorf("HSCAN: unexpected reply length %d", len(values))
			}

			cursor, err = redigo.Int(values[0], nil)
			if err != nil {
				return err
			}

			items, err := redigo.ByteSlices(values[1], nil)
			if err != nil {
				return err
			}

			for i := 0; i+1 < len(items); i += 2 {
				if err := fn(string(items[i]), items[i+1]); err != nil {
					return err
				}
			}

			if cursor == 0 {
				return nil
			}
		}
	})
}

func (c *client) SMembers(ctx context.Context, key string) ([]string, error) {
	var result []string
	err := c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		values, err := redigo.Strings(redigo.DoContext(conn, ctx, "SMEMBERS", key))
		if err != nil {
			return err
		}

		result = values
		return nil
	})

	return result, err
}

// Keys walks the keyspace with SCAN so large databases are never blocked.
func (c *client) Keys(ctx context.Context, pattern string) ([]string, error) {
	var result []string
	err := c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		cursor := 0
		seen := make(map[string]struct{})
		for {
			values, err := redigo.Values(redigo.DoContext(conn, ctx, "SCAN", cursor, "MATCH", pattern, "COUNT", scanCount))
			if err != nil {
				return err
			}
			if len(values) != 2 {
				return fmt.Errorf("SCAN: unexpected reply length %d", len(values))
			}

			cursor, err = redigo.Int(values[0], nil)
			if err != nil {
				return err
			}

			keys, err := redigo.Strings(values[1], nil)
			if err != nil {
				return err
			}

			for _, key := range keys {
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				result = append(result, key)
			}

			if cursor == 0 {
				return nil
			}
		}
	})

	return result, err
}

func (c *client) Incr(ctx context.Context, key string) (int64, error) {
	var count int64
	err := c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		value, err := redigo.Int64(redigo.DoContext(conn, ctx, "INCR", key))
		if err != nil {
			return err
		}

		count = value
		return nil
	})

	return count, err
}

func (c *client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		_, err := redigo.DoContext(conn, ctx, "PEXPIRE", key, expiration.Milliseconds())
		return err
	})
}

func (c *client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		_, err := redigo.DoContext(conn, ctx, "DEL", redigo.Args{}.AddFlat(keys)...)
		return err
	})
}

func (c *client) Ping(ctx context.Context) error {
	return c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		_, err := redigo.DoContext(conn, ctx, "PING")
		return err
	})
}
