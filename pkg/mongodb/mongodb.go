package mongodb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/config"
)

type Client struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// Connect dials and pings the server within cfg.Timeout.
func Connect(ctx context.Context, cfg config.MongoConfig, log *zap.Logger) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongodb")
	}
	log.Info("connected to mongodb", zap.String("database", cfg.Database))
	return &Client{Client: client, Database: client.Database(cfg.Database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.Client.Disconnect(ctx)
}
