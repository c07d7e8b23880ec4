package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/diagnosis/hanguk-bookings/pkg/config"
)

// DefaultMongoDatabase is used when the connection string names no database.
const DefaultMongoDatabase = "hanguk_bites"

func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	pcfg.MinConns = int32(cfg.MinConns)
	pcfg.MaxConns = int32(cfg.MaxConns)
	pcfg.MaxConnLifetime = cfg.MaxLifetime
	pcfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// ConnectMongo returns a connected client and the database named in uri.
func ConnectMongo(ctx context.Context, uri string, maxPool int) (*mongo.Client, string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse mongo uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = DefaultMongoDatabase
	}

	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(5 * time.Second)
	if maxPool > 0 {
		opts.SetMaxPoolSize(uint64(maxPool))
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, "", fmt.Errorf("ping mongo: %w", err)
	}
	return client, dbName, nil
}

func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
