// Package redpanda publishes evaluation events to a Redpanda/Kafka topic.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	obsctx "github.com/fairyhunter13/ai-resume-matcher/internal/observability"
)

const (
	// DefaultTopic receives one record per stored evaluation.
	DefaultTopic = "evaluation-events"
	// EventEvaluationCompleted is the type of every record on the topic.
	EventEvaluationCompleted = "evaluation.completed"
)

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// EvaluationEvent is the JSON value of an evaluation record.
type EvaluationEvent struct {
	Type           string         `json:"type"`
	EvaluationID   string         `json:"evaluation_id"`
	ResumeID       string         `json:"resume_id"`
	JobID          string         `json:"job_id"`
	RelevanceScore float64        `json:"relevance_score"`
	HardMatchScore float64        `json:"hard_match_score"`
	SoftMatchScore float64        `json:"soft_match_score"`
	Verdict        domain.Verdict `json:"verdict"`
	MissingSkills  []string       `json:"missing_skills"`
	CreatedAt      time.Time      `json:"created_at"`
	RequestID      string         `json:"request_id,omitempty"`
}

// Publisher writes evaluation events. It is safe for concurrent use.
type Publisher struct {
	client Producer
	topic  string
}

// New connects to brokers, ensures topic exists and returns a Publisher.
func New(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: no seed brokers provided", domain.ErrInvalidArgument)
	}
	if topic == "" {
		topic = DefaultTopic
	}
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kot := kotel.NewKotel(kotel.WithTracer(tracer))
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.DialTimeout(10*time.Second),
		kgo.WithHooks(kot.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.New: %w", err)
	}
	if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("evaluation event publisher ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return NewWithProducer(client, topic), nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(p Producer, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: p, topic: topic}
}

// PublishEvaluations writes one record per evaluation and waits for the acks.
func (p *Publisher) PublishEvaluations(ctx context.Context, evs []domain.Evaluation) error {
	if len(evs) == 0 {
		return nil
	}
	reqID := obsctx.RequestIDFromContext(ctx)
	recs := make([]*kgo.Record, 0, len(evs))
	for _, ev := range evs {
		rec, err := evaluationRecord(p.topic, ev, reqID)
		if err != nil {
			return fmt.Errorf("op=redpanda.PublishEvaluations: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := p.client.ProduceSync(ctx, recs...).FirstErr(); err != nil {
		return fmt.Errorf("op=redpanda.PublishEvaluations: %w", err)
	}
	obsctx.LoggerFromContext(ctx).Debug("evaluation events published", slog.String("topic", p.topic), slog.Int("count", len(recs)))
	return nil
}

// Close flushes and closes the underlying client.
func (p *Publisher) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}

// evaluationRecord keys records by job id so a job's events stay ordered.
func evaluationRecord(topic string, ev domain.Evaluation, requestID string) (*kgo.Record, error) {
	missing := ev.MissingSkills
	if missing == nil {
		missing = []string{}
	}
	b, err := json.Marshal(EvaluationEvent{
		Type:           EventEvaluationCompleted,
		EvaluationID:   ev.ID,
		ResumeID:       ev.ResumeID,
		JobID:          ev.JobID,
		RelevanceScore: ev.RelevanceScore,
		HardMatchScore: ev.HardMatchScore,
		SoftMatchScore: ev.SoftMatchScore,
		Verdict:        ev.Verdict,
		MissingSkills:  missing,
		CreatedAt:      ev.CreatedAt,
		RequestID:      requestID,
	})
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.JobID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(EventEvaluationCompleted)},
			{Key: "job_id", Value: []byte(ev.JobID)},
			{Key: "resume_id", Value: []byte(ev.ResumeID)},
			{Key: "verdict", Value: []byte(ev.Verdict)},
			{Key: "relevance", Value: []byte(strconv.FormatFloat(ev.RelevanceScore, 'f', 2, 64))},
		},
	}, nil
}
