package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"recording-service/config"
)

// Publisher hands jobs across the durable queue boundary. Messages are
// published persistent so a broker restart does not lose accepted work.
type Publisher interface {
	Publish(ctx context.Context, queue QueueConfig, message any) error
}

type publisher struct {
	conn *amqp.Connection
	cfg  *config.RabbitMQ
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) Publisher {
	return &publisher{conn: conn, cfg: cfg}
}

func (p *publisher) Publish(ctx context.Context, queue QueueConfig, message any) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(queue.Exchange, p.cfg.Kind, true, false, false, false, nil)
	if err != nil {
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		queue.Exchange,
		queue.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}
