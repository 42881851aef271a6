// Package rabbitmq инкапсулирует публикацию исходящих писем в очередь.
//
// Доставка писем вынесена во внешний сервис-отправитель; граница этого
// сервиса — сообщение в очереди mail.outgoing.
package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

const (
	// MailExchange — exchange для исходящей почты.
	MailExchange = "mail"
	// MailQueue — очередь исходящих писем.
	MailQueue = "mail.outgoing"
	// MailRoutingKey — ключ маршрутизации исходящих писем.
	MailRoutingKey = "outgoing"
)

// Connect устанавливает соединение с RabbitMQ с повторными попытками.
func Connect(connection string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"
	var conn *amqp.Connection
	var err error

	for range retries {
		conn, err = amqp.Dial(connection)
		if err == nil {
			return conn, nil
		}
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("%s: %w", op, err)
}

// SetupChannel открывает канал и объявляет exchange и очередь исходящей почты.
func SetupChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		MailExchange,
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

	_, err = ch.QueueDeclare(
		MailQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, MailQueue, err)
	}

	err = ch.QueueBind(
		MailQueue,
		MailRoutingKey,
		MailExchange,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to bind queue %s: %w", op, MailQueue, err)
	}

	return ch, nil
}

// PublishMessage публикует сообщение в RabbitMQ.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Publisher публикует сообщения почты поверх открытого канала.
type Publisher struct {
	ch *amqp.Channel
}

// NewPublisher создаёт Publisher на заданном канале.
func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// MailMessage — сообщение для сервиса-отправителя писем.
type MailMessage struct {
	To       string `json:"to"`
	Template string `json:"template"`
	ResetURL string `json:"reset_url,omitempty"`
}

// PublishMail отправляет письмо в очередь исходящей почты.
func (p *Publisher) PublishMail(msg MailMessage) error {
	return PublishMessage(p.ch, MailExchange, MailRoutingKey, msg)
}
