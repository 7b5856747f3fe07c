package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EmailQueue        = "email_queue"
	OptimizationQueue = "optimization_queue"
)

// DeclareQueues 声明服务用到的所有持久化队列
func DeclareQueues(ch *amqp.Channel) error {
	for _, name := range []string{EmailQueue, OptimizationQueue} {
		_, err := ch.QueueDeclare(
			name,  // 队列名称
			true,  // 是否持久化
			false, // 是否自动删除
			false, // 是否独占
			false, // 是否不等待
			nil,   // 额外参数
		)
		if err != nil {
			return err
		}
	}
	return nil
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher 将消息序列化为 JSON 后投递到默认交换机
type Publisher struct {
	ch      channel
	timeout time.Duration
}

func NewPublisher(ch *amqp.Channel, timeout time.Duration) *Publisher {
	return &Publisher{ch: ch, timeout: timeout}
}

// Publish 返回消息 ID
func (p *Publisher) Publish(ctx context.Context, queue string, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	id := uuid.NewString()
	if err := p.ch.PublishWithContext(
		ctx,
		"",
		queue,
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    id,
			Timestamp:    time.Now(),
			Body:         body,
		},
	); err != nil {
		return "", err
	}

	return id, nil
}
