package redis_repository

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/lumina/config"
)

// Conn dials redis and verifies it answers PING before handing the client out.
func Conn(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		DialTimeout: timeout,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})
	log.Println("redis options -> " + client.String())

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pong, err := client.Ping(pingCtx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}

	return client, nil
}
