// Package notify публикует предупреждения о дневном бюджете.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/streadway/amqp"

	"github.com/tulung-app/tulung/internal/budget"
)

// BudgetAlert описывает сообщение о превышении порога дневного бюджета.
type BudgetAlert struct {
	UserID      uuid.UUID       `json:"user_id"`
	Day         string          `json:"day"`
	Tier        budget.Tier     `json:"type"`
	Message     string          `json:"message"`
	Percentage  decimal.Decimal `json:"percentage"`
	SpentToday  decimal.Decimal `json:"spent_today"`
	DailyBudget decimal.Decimal `json:"daily_budget"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Publisher доставляет предупреждения потребителям (push, почта).
type Publisher interface {
	Publish(ctx context.Context, alert BudgetAlert) error
	Close() error
}

// Noop отбрасывает предупреждения; используется, когда брокер не настроен.
type Noop struct{}

// Publish ничего не отправляет.
func (Noop) Publish(context.Context, BudgetAlert) error { return nil }

// Close ничего не освобождает.
func (Noop) Close() error { return nil }

// RabbitMQPublisher публикует предупреждения в очередь RabbitMQ.
type RabbitMQPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

// NewRabbitMQPublisher подключается к брокеру и объявляет устойчивую очередь.
func NewRabbitMQPublisher(url, queueName string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	queue, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &RabbitMQPublisher{
		conn:    conn,
		channel: ch,
		queue:   queue,
	}, nil
}

// Publish отправляет предупреждение в очередь. amqp.Channel не потокобезопасен
// для публикации, поэтому вызовы сериализуются.
func (p *RabbitMQPublisher) Publish(ctx context.Context, alert BudgetAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(
		"",
		p.queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    alert.CreatedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close освобождает ресурсы соединения с брокером.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return fmt.Errorf("close channel: %w", err)
	}
	return p.conn.Close()
}
