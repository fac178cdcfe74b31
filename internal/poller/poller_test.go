package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/redis/go-redis/v9"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
)

type MockCarts struct {
	mu      sync.RWMutex
	cleared []string
	Err     error
}

func (m *MockCarts) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.cleared = append(m.cleared, userID)
	return nil
}

func paidMessage(t *testing.T, eventType string, paid domain.CheckoutPaid) kafkaGo.Message {
	payload, err := json.Marshal(paid)
	require.NoError(t, err)
	return kafkaGo.Message{
		Key:   []byte(paid.AttemptID),
		Value: payload,
		Headers: []kafkaGo.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
}

// brokenReader fails every read.
type brokenReader struct {
	mu    sync.Mutex
	reads int
}

func (r *brokenReader) ReadMessage(context.Context) (kafkaGo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	return kafkaGo.Message{}, errors.New("dial tcp: connection refused")
}

func (r *brokenReader) Close() error { return nil }

func (r *brokenReader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func TestRun_BacksOffOnReadErrors(t *testing.T) {
	reader := &brokenReader{}
	p := &Poller{carts: &MockCarts{}, reader: reader, log: zap.NewNop(), retry: readBackoff(50 * time.Millisecond)}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the context ended")
	}

	// 50ms, then doubling with jitter: a handful of reads, not a busy loop
	reads := reader.count()
	assert.Assert(t, reads >= 2, "reads: %d", reads)
	assert.Assert(t, reads <= 8, "reads: %d", reads)
}

func TestHandle(t *testing.T) {
	paid := domain.CheckoutPaid{AttemptID: "a1", UserID: "user-1", SessionID: "cs_1", TotalAmount: 5000, Currency: "usd"}

	tests := []struct {
		name    string
		msg     kafkaGo.Message
		carts   *MockCarts
		cleared []string
		wantErr bool
	}{
		{
			name:    "paid event clears cart",
			msg:     paidMessage(t, domain.EventCheckoutPaid, paid),
			carts:   &MockCarts{},
			cleared: []string{"user-1"},
		},
		{
			name:  "other event types are skipped",
			msg:   paidMessage(t, "checkout_refunded", paid),
			carts: &MockCarts{},
		},
		{
			name:    "malformed payload",
			msg:     kafkaGo.Message{Value: []byte(`{corrupted`), Headers: []kafkaGo.Header{{Key: "event_type", Value: []byte(domain.EventCheckoutPaid)}}},
			carts:   &MockCarts{},
			wantErr: true,
		},
		{
			name:    "missing user id",
			msg:     paidMessage(t, domain.EventCheckoutPaid, domain.CheckoutPaid{AttemptID: "a2"}),
			carts:   &MockCarts{},
			wantErr: true,
		},
		{
			name:    "clear fails",
			msg:     paidMessage(t, domain.EventCheckoutPaid, paid),
			carts:   &MockCarts{Err: errors.New("mongo down")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Poller{carts: tt.carts, log: zap.NewNop()}
			err := p.handle(context.Background(), tt.msg)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.DeepEqual(t, tt.cleared, tt.carts.cleared)
		})
	}
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	// Start Kafka container using testcontainers Kafka module
	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

type anyProduct struct{}

func (anyProduct) Lookup(_ context.Context, id string) (domain.Product, bool, error) {
	return domain.Product{ID: id, AvailableSizes: []string{"M"}, Price: 2500}, true, nil
}

func TestPoller_ClearsCartOnPaidEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	defer func() {
		if err := mongoContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}()
	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)
	db, err := cart.ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	brokers, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	createTopic(t, brokers, publisher.Topic)

	lines := cache.NewVersioned[[]domain.CartLine](
		cache.NewRedisStore[[]domain.CartLine](client, "cart"),
		cache.NewRedisGenerations(client),
		zap.NewNop(),
	)
	carts := cart.NewService(cart.NewMongoRepository(db), anyProduct{}, lines, zap.NewNop())

	require.NoError(t, carts.AddOrIncrement(ctx, "123", "P1", "M", 1))
	got, err := carts.Lines(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, 1, len(got))

	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers),
		Topic:                  publisher.Topic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	err = w.WriteMessages(ctx, paidMessage(t, domain.EventCheckoutPaid, domain.CheckoutPaid{
		AttemptID: "chId", UserID: "123", SessionID: "cs_1", TotalAmount: 2500, Currency: "usd",
	}))
	require.NoError(t, err)
	w.Close()

	p := NewPoller(carts, zap.NewNop(), brokers)
	defer p.Close()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		got, err := carts.Lines(ctx, "123")
		return err == nil && len(got) == 0 // cart is cleared and the cached read is stale
	}, 30*time.Second, 500*time.Millisecond)
}
