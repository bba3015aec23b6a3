package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"recording-service/config"
	"recording-service/constant"
)

type Consumer[T any] interface {
	Consume(ctx context.Context, dependencies T) error
}

type consumer[T any] struct {
	conn       *amqp.Connection
	cfg        *config.RabbitMQ
	queue      QueueConfig
	handler    func(ctx context.Context, msg amqp.Delivery, dependencies T) error
	numWorkers int
}

// NewConsumer builds a worker-pool consumer for one queue. The handler runs
// under backoff.Retry with MaxJobAttempts total tries; terminal outcomes are
// the handler's business (it returns nil for them). Exhausted messages are
// nacked without requeue so the DLQ keeps them for operator inspection.
func NewConsumer[T any](
	conn *amqp.Connection,
	cfg *config.RabbitMQ,
	queue QueueConfig,
	numWorkers int,
	handler func(ctx context.Context, msg amqp.Delivery, dependencies T) error,
) Consumer[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &consumer[T]{
		conn:       conn,
		cfg:        cfg,
		queue:      queue,
		handler:    handler,
		numWorkers: numWorkers,
	}
}

func (c consumer[T]) Consume(ctx context.Context, dependencies T) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(c.queue.Exchange, c.cfg.Kind, true, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("exchange", c.queue.Exchange).Msg("failed to declare exchange")
		return err
	}

	err = ch.ExchangeDeclare(c.queue.DLX, c.cfg.Kind, true, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("exchange", c.queue.DLX).Msg("failed to declare dlx")
		return err
	}

	dlq, err := ch.QueueDeclare(c.queue.DLQ, true, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", c.queue.DLQ).Msg("failed to declare dlq")
		return err
	}

	err = ch.QueueBind(dlq.Name, c.queue.DLQRoutingKey, c.queue.DLX, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Msg("failed to bind dlq")
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    c.queue.DLX,
		"x-dead-letter-routing-key": c.queue.DLQRoutingKey,
	}
	q, err := ch.QueueDeclare(c.queue.Queue, true, false, false, false, args)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", c.queue.Queue).Msg("failed to declare queue")
		return err
	}

	err = ch.QueueBind(q.Name, c.queue.RoutingKey, c.queue.Exchange, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", c.queue.Queue).Msg("failed to bind queue")
		return err
	}

	err = ch.Qos(c.numWorkers, 0, false)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", c.queue.Queue).Msg("failed to set QoS")
		return err
	}

	deliveries, err := ch.Consume(c.queue.Queue, "", false, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", c.queue.Queue).Msg("failed to consume queue")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("queue", c.queue.Queue).
		Str("exchange", c.queue.Exchange).
		Str("routing_key", c.queue.RoutingKey).
		Int("workers", c.numWorkers).
		Msg("consumer started")

	jobs := make(chan amqp.Delivery, c.numWorkers)
	var wg sync.WaitGroup
	for i := 1; i <= c.numWorkers; i++ {
		wg.Add(1)
		go func(workerId int) {
			defer wg.Done()
			for msg := range jobs {
				operation := func() (string, error) {
					return "", c.handler(ctx, msg, dependencies)
				}

				bo := backoff.NewExponentialBackOff()
				bo.MaxInterval = 10 * time.Second

				_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(constant.MaxJobAttempts))
				if err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Int("worker_id", workerId).Msg("message failed after all retries")
					if nackErr := msg.Nack(false, false); nackErr != nil {
						zerolog.Ctx(ctx).Error().Err(nackErr).Msg("failed to nack message to DLQ")
					}
				} else {
					if ackErr := msg.Ack(false); ackErr != nil {
						zerolog.Ctx(ctx).Error().Err(ackErr).Msg("failed to acknowledge message")
					}
				}
			}
		}(i)
	}

	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				close(jobs)
				wg.Wait()
				return nil
			}

			jobs <- delivery
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
}
