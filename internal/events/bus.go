// Package events carries pipeline state changes to whoever renders them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/policy-rag/backend/pkg/logger"
)

const (
	TopicTierChanged         = "tier.changed"
	TopicCorpusChanged       = "corpus.changed"
	TopicIndexRebuilt        = "index.rebuilt"
	TopicGovernanceRefreshed = "governance.refreshed"
	TopicCategoriesUpdated   = "categories.updated"
)

// Topics lists every topic the bus carries.
func Topics() []string {
	return []string{
		TopicTierChanged,
		TopicCorpusChanged,
		TopicIndexRebuilt,
		TopicGovernanceRefreshed,
		TopicCategoriesUpdated,
	}
}

type Event struct {
	Topic     string         `json:"topic"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

// Publisher is the part of the bus producers depend on.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type Bus struct {
	pubSub *gochannel.GoChannel
}

func NewBus() *Bus {
	return &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			zapAdapter{},
		),
	}
}

// Publish sends evt on its topic. Events published while nobody listens are dropped.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubSub.Publish(evt.Topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", evt.Topic, err)
	}
	return nil
}

// Subscribe merges the given topics, or all of them, into one channel. The channel is
// closed once ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, topics ...string) (<-chan Event, error) {
	if len(topics) == 0 {
		topics = Topics()
	}

	out := make(chan Event, 16)
	var wg sync.WaitGroup
	for _, topic := range topics {
		messages, err := b.pubSub.Subscribe(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range messages {
				var evt Event
				if err := json.Unmarshal(msg.Payload, &evt); err != nil {
					logger.Warn("Dropping malformed event", zap.String("uuid", msg.UUID), zap.Error(err))
					msg.Ack()
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
				}
				msg.Ack()
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}

// zapAdapter routes watermill's own logging into the package logger.
type zapAdapter struct {
	fields watermill.LogFields
}

func (a zapAdapter) Error(msg string, err error, fields watermill.LogFields) {
	logger.Error(msg, append(a.zapFields(fields), zap.Error(err))...)
}

func (a zapAdapter) Info(msg string, fields watermill.LogFields) {
	logger.Debug(msg, a.zapFields(fields)...)
}

func (a zapAdapter) Debug(msg string, fields watermill.LogFields) {
	logger.Debug(msg, a.zapFields(fields)...)
}

func (a zapAdapter) Trace(string, watermill.LogFields) {}

func (a zapAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zapAdapter{fields: a.fields.Add(fields)}
}

func (a zapAdapter) zapFields(fields watermill.LogFields) []zap.Field {
	merged := a.fields.Add(fields)
	out := make([]zap.Field, 0, len(merged))
	for k, v := range merged {
		out = append(out, zap.Any(k, v))
	}
	return out
}
