package redis

import (
	"context"
	"errors"
	"fmt"

	redigo "github.com/gomodule/redigo/redis"
)

var ErrTransactionAborted = errors.New("redis transaction aborted")

type command struct {
	name string
	args redigo.Args
}

// Batch collects writes that must be applied as one MULTI/EXEC unit.
type Batch struct {
	commands []command
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Add(name string, args ...interface{}) *Batch {
	b.commands = append(b.commands, command{name: name, args: redigo.Args(args)})
	return b
}

func (b *Batch) HSet(key, field string, value interface{}) *Batch {
	return b.Add("HSET", key, field, value)
}

func (b *Batch) HDel(key string, fields ...string) *Batch {
	return b.Add("HDEL", redigo.Args{key}.AddFlat(fields)...)
}

func (b *Batch) SAdd(key string, members ...string) *Batch {
	return b.Add("SADD", redigo.Args{key}.AddFlat(members)...)
}

func (b *Batch) SRem(key string, members ...string) *Batch {
	return b.Add("SREM", redigo.Args{key}.AddFlat(members)...)
}

func (b *Batch) Del(keys ...string) *Batch {
	return b.Add("DEL", redigo.Args{}.AddFlat(keys)...)
}

func (b *Batch) Len() int {
	return len(b.commands)
}

func (b *Batch) Commands() []string {
	names := make([]string, 0, len(b.commands))
	for _, cmd := range b.commands {
		names = append(names, cmd.name)
	}
	return names
}

func (c *client) Exec(ctx context.Context, batch *Batch) error {
	const op = "redis.Exec"

	if batch == nil || batch.Len() == 0 {
		return nil
	}

	return c.withConn(ctx, func(ctx context.Context, conn redigo.Conn) error {
		if err := conn.Send("MULTI"); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		for _, cmd := range batch.commands {
			if err := conn.Send(cmd.name, cmd.args...); err != nil {
				_, _ = conn.Do("DISCARD")
				return fmt.Errorf("%s: send %s: %w", op, cmd.name, err)
			}
		}

		replies, err := redigo.Values(redigo.DoContext(conn, ctx, "EXEC"))
		if err != nil {
			if errors.Is(err, redigo.ErrNil) {
				return fmt.Errorf("%s: %w", op, ErrTransactionAborted)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		for i, reply := range replies {
			if replyErr, isErr := reply.(redigo.Error); isErr {
				return fmt.Errorf("%s: %s: %w", op, batch.commands[i].name, replyErr)
			}
		}

		return nil
	})
}
