package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// PaymentsExchange — exchange для событий платёжного шлюза.
const PaymentsExchange = "payments"

// PaymentsConfirmedQueue — очередь подтверждённых платежей.
const PaymentsConfirmedQueue = "payments.confirmed"

// QueueConfig связывает очередь с ключом маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetPaymentQueues возвращает очереди платёжных событий.
func GetPaymentQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: PaymentsConfirmedQueue, RoutingKey: "confirmed"},
	}
}

// SetupChannel открывает канал, объявляет exchange платежей и
// привязывает к нему переданные очереди.
func SetupChannel(conn *amqp.Connection, prefetch int, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("%s: failed to set QoS: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		PaymentsExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			q.QueueName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}

		err = ch.QueueBind(
			q.QueueName,
			q.RoutingKey,
			PaymentsExchange,
			false,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}
