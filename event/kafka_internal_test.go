package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKafkaPublisher_RequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"})
	assert.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestKafkaPublisher_MessagesKeyedByProduct(t *testing.T) {
	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "rental.events", Producer: "test"})
	require.NoError(t, err)
	defer p.Close()
	p.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	msgs, err := p.messages([]Event{
		BookingCreated{ProductID: 42, Booker: "0xc1", ReservationID: 3, Start: 10, Stop: 20},
		BookingCancelled{ProductID: 42, ReservationID: 3},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	for _, m := range msgs {
		assert.Equal(t, "42", string(m.Key))
	}
	assert.Equal(t, "BookingCreated", string(msgs[0].Headers[0].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(msgs[0].Value, &env))
	assert.Equal(t, "test", env.Producer)
	assert.Equal(t, uint64(42), env.ProductID)
}
