//go:build integration

package outbox_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"formvault/internal/outbox"
	outboxpg "formvault/internal/outbox/store/postgres"
	txcontext "formvault/pkg/platform/tx"
	"formvault/pkg/testutil/containers"
)

type OutboxIntegrationSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	redpanda  *containers.RedpandaContainer
	store     *outboxpg.Store
	publisher *outbox.KafkaPublisher
	topic     string
}

func TestOutboxIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxIntegrationSuite))
}

func (s *OutboxIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())
	s.store = outboxpg.New(s.postgres.DB)
	s.topic = "formvault.outbox.test"

	admin, err := kgo.NewClient(kgo.SeedBrokers(s.redpanda.Broker))
	s.Require().NoError(err)
	defer admin.Close()
	_, err = kadm.NewClient(admin).CreateTopic(context.Background(), 1, 1, nil, s.topic)
	s.Require().NoError(err)

	s.publisher, err = outbox.NewKafkaPublisher([]string{s.redpanda.Broker}, s.topic)
	s.Require().NoError(err)
}

func (s *OutboxIntegrationSuite) TearDownSuite() {
	if s.publisher != nil {
		s.publisher.Close()
	}
}

func (s *OutboxIntegrationSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *OutboxIntegrationSuite) newEvent(aggregateID, eventType string) outbox.Event {
	e, err := outbox.NewEvent("person", aggregateID, eventType, map[string]string{"personId": aggregateID}, time.Now())
	s.Require().NoError(err)
	return e
}

func (s *OutboxIntegrationSuite) TestAppendFollowsTransaction() {
	ctx := context.Background()

	s.Run("rolled back append leaves nothing", func() {
		tx, err := s.postgres.DB.BeginTx(ctx, nil)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Append(txcontext.WithTx(ctx, tx), s.newEvent("1", "submission.recorded")))
		s.Require().NoError(tx.Rollback())

		n, err := s.store.Pending(ctx)
		s.Require().NoError(err)
		s.Equal(0, n)
	})

	s.Run("committed append is pending", func() {
		tx, err := s.postgres.DB.BeginTx(ctx, &sql.TxOptions{})
		s.Require().NoError(err)
		s.Require().NoError(s.store.Append(txcontext.WithTx(ctx, tx), s.newEvent("1", "submission.recorded")))
		s.Require().NoError(tx.Commit())

		n, err := s.store.Pending(ctx)
		s.Require().NoError(err)
		s.Equal(1, n)
	})
}

func (s *OutboxIntegrationSuite) TestRelayPublishesToKafka() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.Require().NoError(s.store.Append(ctx, s.newEvent("7", "submission.recorded")))
	s.Require().NoError(s.store.Append(ctx, s.newEvent("7", "person.deleted")))

	relay := outbox.NewRelay(s.store, s.publisher, outbox.WithBatchSize(10))
	n, err := relay.ProcessBatch(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	pending, err := s.store.Pending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var types []string
	for len(types) < 2 {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			s.Equal("7", string(r.Key))
			for _, h := range r.Headers {
				if h.Key == outbox.HeaderEventType {
					types = append(types, string(h.Value))
				}
			}
		})
	}
	s.ElementsMatch([]string{"submission.recorded", "person.deleted"}, types)
}
