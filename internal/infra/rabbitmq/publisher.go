package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	StatusRoutingKey     = "video.status"
	ExtractionRoutingKey = "video.extraction"
	AnalysisRoutingKey   = "video.analysis"
)

// Publisher serializes publishes on one channel; amqp channels are not safe
// for concurrent use.
type Publisher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
		},
	)
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

type StatusPublisher struct {
	pub *Publisher
}

func NewStatusPublisher(pub *Publisher) *StatusPublisher {
	return &StatusPublisher{pub: pub}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.pub.publish(ctx, sp.pub.exchange, StatusRoutingKey, msg, nil)
}

type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.publish(ctx, "", dp.queue, msg, amqp.Table{"x-dlq-reason": reason})
}

// JobPublisher enqueues extraction and analysis work.
type JobPublisher struct {
	pub *Publisher
}

func NewJobPublisher(pub *Publisher) *JobPublisher {
	return &JobPublisher{pub: pub}
}

func (jp *JobPublisher) ScheduleExtraction(ctx context.Context, msg entity.ExtractionMessage) error {
	return jp.send(ctx, ExtractionRoutingKey, msg)
}

func (jp *JobPublisher) ScheduleAnalysis(ctx context.Context, msg entity.AnalysisMessage) error {
	return jp.send(ctx, AnalysisRoutingKey, msg)
}

func (jp *JobPublisher) send(ctx context.Context, routingKey string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", routingKey, err)
	}
	return jp.pub.publish(ctx, jp.pub.exchange, routingKey, body, nil)
}
