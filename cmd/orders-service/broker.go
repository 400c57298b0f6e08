package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/kafka"
	"github.com/velmie/txoutbox/rabbitmq"
	"github.com/velmie/txoutbox/redis"
)

// broker is the configured publisher together with its lifecycle hooks.
type broker struct {
	publisher outbox.Publisher
	ready     readyCheck
	close     func()
}

func openBroker(cfg serviceConfig, codec outbox.Codec, logger *slog.Logger) (*broker, error) {
	switch cfg.broker {
	case brokerKafka:
		return openKafka(cfg, codec)
	case brokerRedis:
		return openRedisStream(cfg, codec)
	default:
		return openRabbitMQ(cfg, codec, logger)
	}
}

func openRabbitMQ(cfg serviceConfig, codec outbox.Codec, logger *slog.Logger) (*broker, error) {
	conn, err := amqp.Dial(cfg.rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	pub, err := rabbitmq.NewPublisher(ch,
		rabbitmq.WithExchange(cfg.rabbitExchange),
		rabbitmq.WithDeclareExchange(cfg.rabbitDeclare),
		rabbitmq.WithCodec(codec),
		rabbitmq.WithLogger(logger),
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &broker{
		publisher: pub,
		ready: readyCheck{name: "rabbitmq", check: func(context.Context) error {
			if conn.IsClosed() {
				return amqp.ErrClosed
			}
			return nil
		}},
		close: func() {
			_ = ch.Close()
			_ = conn.Close()
		},
	}, nil
}

func openKafka(cfg serviceConfig, codec outbox.Codec) (*broker, error) {
	brokers := kafka.SplitBrokers(cfg.kafkaBrokers)
	if len(brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is empty")
	}

	w := kafka.NewWriter(brokers)
	pub, err := kafka.NewPublisher(w, kafka.WithTopic(cfg.kafkaTopic), kafka.WithCodec(codec))
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	return &broker{
		publisher: pub,
		ready: readyCheck{name: "kafka", check: func(ctx context.Context) error {
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", brokers[0])
			if err != nil {
				return err
			}
			return conn.Close()
		}},
		close: func() { _ = w.Close() },
	}, nil
}

func openRedisStream(cfg serviceConfig, codec outbox.Codec) (*broker, error) {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.redisAddr})
	pub, err := redis.NewStreamPublisher(client,
		redis.WithStreamPrefix(cfg.redisStreamPrefix),
		redis.WithMaxLen(int64(cfg.redisStreamMax)),
		redis.WithStreamCodec(codec),
	)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &broker{
		publisher: pub,
		ready:     readyCheck{name: "redis", check: redisPing(client)},
		close:     func() { _ = client.Close() },
	}, nil
}

// openCycleLock returns a redis-backed guard so only one replica dispatches
// per cycle. The client is owned by the returned close func.
func openCycleLock(cfg serviceConfig, logger *slog.Logger) (outbox.CycleGuard, readyCheck, func(), error) {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.redisAddr})
	lock, err := redis.NewCycleLock(client, redis.WithLockLogger(logger))
	if err != nil {
		_ = client.Close()
		return nil, readyCheck{}, nil, err
	}

	return lock, readyCheck{name: "redis-lock", check: redisPing(client)}, func() { _ = client.Close() }, nil
}

func redisPing(client *goredis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
