// Package audit publishes restore outcomes to a Kafka topic so runs can
// be tracked outside the terminal.
package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers       []string
	Topic         string
	SASLMechanism string // "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512", or ""
	SASLUser      string
	SASLPassword  string
	TLSEnabled    bool
	TLSSkipVerify bool
}

// Event is one per-object restore outcome.
type Event struct {
	Timestamp    string `json:"timestamp"`
	TargetOrg    string `json:"targetOrg"`
	ObjectName   string `json:"objectName"`
	Mode         string `json:"mode"`
	TotalRecords int    `json:"totalRecords"`
	SuccessCount int    `json:"successCount"`
	FailureCount int    `json:"failureCount"`
	Completed    bool   `json:"completed"`
}

// NewEvent stamps an event with the current time.
func NewEvent(targetOrg, objectName, mode string, total, success, failure int, completed bool) Event {
	return Event{
		Timestamp:    time.Now().Format(time.RFC3339),
		TargetOrg:    targetOrg,
		ObjectName:   objectName,
		Mode:         mode,
		TotalRecords: total,
		SuccessCount: success,
		FailureCount: failure,
		Completed:    completed,
	}
}

// Producer wraps a franz-go client for publishing restore events.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer creates a new Kafka producer with the given configuration.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	}

	// SASL authentication
	switch cfg.SASLMechanism {
	case "PLAIN":
		mechanism := plain.Auth{
			User: cfg.SASLUser,
			Pass: cfg.SASLPassword,
		}
		opts = append(opts, kgo.SASL(mechanism.AsMechanism()))
	case "SCRAM-SHA-256":
		mechanism := scram.Auth{
			User: cfg.SASLUser,
			Pass: cfg.SASLPassword,
		}
		opts = append(opts, kgo.SASL(mechanism.AsSha256Mechanism()))
	case "SCRAM-SHA-512":
		mechanism := scram.Auth{
			User: cfg.SASLUser,
			Pass: cfg.SASLPassword,
		}
		opts = append(opts, kgo.SASL(mechanism.AsSha512Mechanism()))
	case "":
		// No SASL
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s (supported: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512)", cfg.SASLMechanism)
	}

	// TLS
	if cfg.TLSEnabled {
		tlsCfg := &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, // #nosec G402 -- user-controlled flag
		}
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return &Producer{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

// Publish sends one event, keyed by object name. Blocks until the broker
// acknowledges or the context is cancelled.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.ObjectName),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// Close flushes pending events and releases resources.
func (p *Producer) Close() {
	p.client.Close()
}
