package msg

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"
)

func TestSubscribe(t *testing.T) {
	pidPub, err := uuid.NewUUID()
	assert.NilError(t, err)

	pidSub1, err := uuid.NewUUID()
	assert.NilError(t, err)

	pidSub2, err := uuid.NewUUID()
	assert.NilError(t, err)

	pubsub := NewPublisher(pidPub)
	ch1, err := pubsub.Subscribe(pidSub1, Status)
	assert.NilError(t, err)
	ch2, err := pubsub.Subscribe(pidSub2, Status)
	assert.NilError(t, err)

	randValue := rand.Float64()
	pubsub.Publish(Status, randValue)

	select {
	case incoming := <-ch1:
		assert.Equal(t, incoming.Payload(), randValue, "first subscriber did not receive the published value")
		assert.Equal(t, incoming.PID(), pidPub)
		assert.Equal(t, incoming.Topic(), Status)
	case <-time.After(time.Second):
		t.Fatal("first subscriber timed out")
	}

	select {
	case incoming := <-ch2:
		assert.Equal(t, incoming.Payload(), randValue, "second subscriber did not receive the published value")
	case <-time.After(time.Second):
		t.Fatal("second subscriber timed out")
	}
}

func TestSubscribeTwiceRejected(t *testing.T) {
	pid, _ := uuid.NewUUID()
	sub, _ := uuid.NewUUID()

	pubsub := NewPublisher(pid)
	_, err := pubsub.Subscribe(sub, Status)
	assert.NilError(t, err)
	_, err = pubsub.Subscribe(sub, Status)
	assert.Assert(t, err != nil)
}

func TestUnsubscribe(t *testing.T) {
	pid, _ := uuid.NewUUID()
	sub, _ := uuid.NewUUID()

	pubsub := NewPublisher(pid)
	ch, err := pubsub.Subscribe(sub, Result)
	assert.NilError(t, err)

	pubsub.Unsubscribe(sub)
	_, open := <-ch
	assert.Assert(t, !open, "channel should be closed after unsubscribe")

	// publishing to a topic with no subscribers is a no-op
	pubsub.Publish(Result, 1.0)
}

func TestTopicsAreIndependent(t *testing.T) {
	pid, _ := uuid.NewUUID()
	sub, _ := uuid.NewUUID()

	pubsub := NewPublisher(pid)
	chStatus, err := pubsub.Subscribe(sub, Status)
	assert.NilError(t, err)

	pubsub.Publish(Result, "for nobody")
	pubsub.Publish(Status, "for status")

	incoming := <-chStatus
	assert.Equal(t, incoming.Payload(), "for status")
	assert.Equal(t, len(chStatus), 0)
}

func TestStop(t *testing.T) {
	pid, _ := uuid.NewUUID()
	sub, _ := uuid.NewUUID()

	pubsub := NewPublisher(pid)
	ch, err := pubsub.Subscribe(sub, Status)
	assert.NilError(t, err)

	pubsub.Stop()
	_, open := <-ch
	assert.Assert(t, !open)

	_, err = pubsub.Subscribe(sub, Status)
	assert.Assert(t, err != nil, "stopped publisher should reject new subscribers")
}
