package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/config"
)

type RabbitMqClient struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Config  config.RabbitMQConfig
	log     *zap.Logger
}

func NewRabbitMqService(cfg config.RabbitMQConfig, log *zap.Logger) (*RabbitMqClient, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to rabbitmq")
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open rabbitmq channel")
	}
	return &RabbitMqClient{
		Conn:    conn,
		Channel: channel,
		Config:  cfg,
		log:     log.With(zap.String("component", "rabbitmq")),
	}, nil
}

func (r *RabbitMqClient) IsConnected() bool {
	return r.Conn != nil && !r.Conn.IsClosed() && r.Channel != nil && !r.Channel.IsClosed()
}

func (r *RabbitMqClient) CloseConnection() {
	if err := r.Channel.Close(); err != nil {
		r.log.Warn("failed to close channel", zap.Error(err))
	}
	if err := r.Conn.Close(); err != nil {
		r.log.Warn("failed to close connection", zap.Error(err))
	}
}

// SetUpExchangeAndQueue declares the direct exchange and binds the email and
// failed queues to it under their own names.
func (r *RabbitMqClient) SetUpExchangeAndQueue() error {
	if err := r.Channel.ExchangeDeclare(
		r.Config.Exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return errors.Wrapf(err, "declare exchange %s", r.Config.Exchange)
	}
	for _, queueName := range []string{r.Config.EmailQueue, r.Config.FailedQueue} {
		if _, err := r.Channel.QueueDeclare(
			queueName,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return errors.Wrapf(err, "declare queue %s", queueName)
		}
		if err := r.Channel.QueueBind(
			queueName,
			queueName,
			r.Config.Exchange,
			false,
			nil,
		); err != nil {
			return errors.Wrapf(err, "bind queue %s", queueName)
		}
	}
	return nil
}

func (r *RabbitMqClient) Publish(ctx context.Context, routingKey string, message interface{}) error {
	by, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	err = r.Channel.PublishWithContext(
		ctx,
		r.Config.Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         by,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return errors.Wrapf(err, "publish to %s", routingKey)
	}
	return nil
}

func (r *RabbitMqClient) PublishEmail(ctx context.Context, message interface{}) error {
	return r.Publish(ctx, r.Config.EmailQueue, message)
}
