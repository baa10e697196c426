//go:build integration

package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"refroute/internal/platform/kafka"
	"refroute/internal/platform/logger"
	"refroute/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	brokers []string
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
}

func (s *KafkaSinkSuite) TestProducesKeyedEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "reference-events-" + uuid.NewString()
	s.Require().NoError(kafka.EnsureTopics(ctx, s.brokers, 1, topic))

	producer, err := kafka.NewProducer(s.brokers, topic)
	s.Require().NoError(err)
	defer producer.Close()

	sink := NewKafkaSink(producer, topic, nil, logger.Discard())
	ev := event(0)
	sink.Notify(ctx, ev)
	s.Require().NoError(sink.Flush(ctx))

	consumer, err := kgo.NewClient(kgo.SeedBrokers(s.brokers...), kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	var got Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(ev.ReferenceID, got.ReferenceID)
	s.Equal(ev.ReferenceID.String(), string(records[0].Key))
}
