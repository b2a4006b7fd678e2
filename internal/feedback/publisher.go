package feedback

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// DefaultExchange is the topic exchange feedback jobs are published to.
const DefaultExchange = "interview_results"

// Job is the message published when a session reaches a terminal state.
// Async workers pick it up to run heavier analysis than the inline path.
type Job struct {
	SessionID   string    `json:"session_id"`
	CandidateID string    `json:"candidate_id,omitempty"`
	Role        string    `json:"role,omitempty"`
	Status      string    `json:"status"`
	Answers     int       `json:"answers"`
	CompletedAt time.Time `json:"completed_at"`
	Report      *Report   `json:"report,omitempty"`
}

// Publisher sends feedback jobs to RabbitMQ. A fresh channel is opened per
// publish; amqp channels are not safe for concurrent use.
type Publisher struct {
	conn     *amqp.Connection
	exchange string
}

// NewPublisher declares the topic exchange and returns a Publisher bound to
// it. An empty exchange name selects [DefaultExchange].
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("feedback: amqp connection must not be nil")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("feedback: open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("feedback: declare exchange %q: %w", exchange, err)
	}
	return &Publisher{conn: conn, exchange: exchange}, nil
}

// PublishJob emits job with routing key "feedback.generate.<session-id>".
func (p *Publisher) PublishJob(job Job) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("feedback: open channel: %w", err)
	}
	defer ch.Close()

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("feedback: marshal job: %w", err)
	}

	routingKey := fmt.Sprintf("feedback.generate.%s", job.SessionID)
	err = ch.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   job.CompletedAt,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("feedback: publish job for %s: %w", job.SessionID, err)
	}
	return nil
}
