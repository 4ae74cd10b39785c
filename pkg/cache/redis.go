package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/krs-api/pkg/config"
)

const pingTimeout = 3 * time.Second

// Connect dials Redis and verifies the connection within pingTimeout.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", client.Options().Addr, err)
	}

	return client, nil
}

// CatalogKey builds the key for one cached catalog list page.
func CatalogKey(parts ...string) string {
	key := "catalog:courses"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// CatalogPattern matches every cached catalog list page.
const CatalogPattern = "catalog:courses:*"
