//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"openletter/internal/audit"
	"openletter/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	kafka *containers.KafkaContainer
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
}

func (s *KafkaSinkSuite) TestEventsArriveKeyedByNation() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "audit-test-" + time.Now().Format("150405.000")
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic))

	sink, err := audit.NewKafkaSink([]string{s.kafka.Broker}, topic)
	s.Require().NoError(err)
	defer sink.Close()
	s.Require().NoError(sink.Ping(ctx))

	s.Require().NoError(sink.Write(ctx, audit.Event{
		Action:    audit.ActionSignatureCreated,
		Nation:    "Testlandia",
		Actor:     audit.ActorPublic,
		Timestamp: time.Now().UTC(),
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("Testlandia", string(records[0].Key))

	var got audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(audit.ActionSignatureCreated, got.Action)
}
