package messaging

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bardlex/stobixd/internal/orchestrator"
	"github.com/bardlex/stobixd/internal/pipeline"
	"github.com/bardlex/stobixd/pkg/errors"
	"github.com/bardlex/stobixd/pkg/log"
)

// Format selects the event encoding
type Format string

const (
	FormatJSON  Format = "json"
	FormatProto Format = "proto"
)

// PublishTimeout bounds one event publish including its retries
const PublishTimeout = 5 * time.Second

// Publisher is an orchestrator observer that sends run events to Kafka.
// Publishing failures are logged and never affect the run.
type Publisher struct {
	client       *KafkaClient
	service      string
	accountTopic string
	cycleTopic   string
	format       Format
	timeout      time.Duration
	logger       *log.Logger
	now          func() time.Time
}

// NewPublisher creates a Publisher. An empty accountTopic uses TopicAccountResults.
func NewPublisher(client *KafkaClient, service, accountTopic string, format Format, logger *log.Logger) *Publisher {
	if accountTopic == "" {
		accountTopic = TopicAccountResults
	}
	if format == "" {
		format = FormatJSON
	}
	return &Publisher{
		client:       client,
		service:      service,
		accountTopic: accountTopic,
		cycleTopic:   TopicCycleReports,
		format:       format,
		timeout:      PublishTimeout,
		logger:       logger.WithComponent("publisher"),
		now:          time.Now,
	}
}

// AccountDone publishes the account's result keyed by wallet address
func (p *Publisher) AccountDone(ctx context.Context, result pipeline.AccountResult) {
	msg := NewAccountResultMessage(p.service, result, p.now())
	if err := p.send(ctx, p.accountTopic, msg.Wallet, msg); err != nil {
		p.logger.WithError(err).Warn("failed to publish account result", "wallet", msg.Wallet)
	}
}

// CycleDone publishes the cycle report keyed by cycle number
func (p *Publisher) CycleDone(ctx context.Context, report orchestrator.CycleReport) {
	msg := NewCycleReportMessage(p.service, report)
	if err := p.send(ctx, p.cycleTopic, strconv.Itoa(msg.Cycle), msg); err != nil {
		p.logger.WithError(err).Warn("failed to publish cycle report", "cycle", msg.Cycle)
	}
}

func (p *Publisher) send(ctx context.Context, topic, key string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "json_marshal", "failed to encode event")
	}

	if p.format != FormatProto {
		return p.client.PublishJSON(ctx, topic, key, data)
	}

	envelope, err := EncodeStruct(data)
	if err != nil {
		return err
	}
	return p.client.PublishProto(ctx, topic, key, envelope)
}

// EncodeStruct converts a JSON object into a protobuf Struct
func EncodeStruct(data []byte) (*structpb.Struct, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "protobuf_encode", "event is not a JSON object")
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "protobuf_encode", "failed to build protobuf struct")
	}
	return s, nil
}
