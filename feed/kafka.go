// Copyright 2025 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"github.com/streamnative/tranche/common/channel"
	"github.com/streamnative/tranche/common/metric"
	"github.com/streamnative/tranche/common/process"
	"github.com/streamnative/tranche/coordinator"
)

const eventBufferSize = 1024

// kafkaFeed publishes placement events to a Kafka topic, keyed by shard so
// per-shard ordering is preserved across topic partitions. Events are
// handed off through a buffered channel: when the buffer is full the event
// is dropped and counted, never blocking a placement.
type kafkaFeed struct {
	*slog.Logger
	*sync.WaitGroup

	writer *kafka.Writer
	events chan coordinator.PlacementEvent

	published metric.Counter
	dropped   metric.Counter

	ctx    context.Context
	cancel context.CancelFunc
}

func NewKafkaFeed(brokers []string, topic string) Feed {
	f := &kafkaFeed{
		Logger: slog.With(
			slog.String("component", "kafka-feed"),
			slog.String("topic", topic),
		),
		WaitGroup: &sync.WaitGroup{},
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		events: make(chan coordinator.PlacementEvent, eventBufferSize),
		published: metric.NewCounter("tranche_feed_events_published",
			"The total number of placement events published", metric.Count, map[string]any{"topic": topic}),
		dropped: metric.NewCounter("tranche_feed_events_dropped",
			"The total number of placement events dropped on a full buffer", metric.Count, map[string]any{"topic": topic}),
	}
	f.ctx, f.cancel = context.WithCancel(context.Background())

	f.Add(1)
	go process.DoWithLabels(f.ctx, map[string]string{
		"component": "kafka-feed",
	}, f.publishLoop)

	return f
}

func (f *kafkaFeed) OrderPlaced(event coordinator.PlacementEvent) {
	if !channel.PushNoBlock(f.events, event) {
		f.dropped.Inc()
	}
}

func (f *kafkaFeed) publishLoop() {
	defer f.Done()
	for {
		select {
		case event := <-f.events:
			f.publish(event)
		case <-f.ctx.Done():
			return
		}
	}
}

func (f *kafkaFeed) publish(event coordinator.PlacementEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		f.Error("Failed to serialize placement event", slog.Any("error", err))
		return
	}

	err = f.writer.WriteMessages(f.ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.Shard), 10)),
		Value: value,
	})
	if err != nil {
		f.Warn(
			"Failed to publish placement event",
			slog.Any("error", err),
			slog.String("order-id", event.OrderID),
		)
		return
	}
	f.published.Inc()
}

func (f *kafkaFeed) Close() error {
	f.cancel()
	f.Wait()

	var err error
	if pending := len(f.events); pending > 0 {
		f.Warn("Discarding buffered placement events on close", slog.Int("pending", pending))
	}
	err = multierr.Append(err, f.writer.Close())
	return err
}
