package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/logger"
)

type published struct {
	subject string
	payload []byte
	opts    int
}

type fakeJetStream struct {
	msgs []published
	err  error
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, payload: payload, opts: len(opts)})
	return &jetstream.PubAck{Stream: DefaultStream, Sequence: uint64(len(f.msgs))}, nil
}

func record(deleted bool) ir.VersionRecord {
	return ir.VersionRecord{
		VersionID:   "00000000-0000-7000-8000-000000000004",
		Entity:      "widget",
		Node:        "932c6e48-9f24-58d3-b700-f13f4ccccad2",
		Definition:  ir.IRObject{"color": ir.IRString("blue")},
		Metadata:    ir.IRNull{},
		ContentHash: "9d1fbd81eeb62d34ed1a2eb3f9edc1fb8b534a6e8c492c69975857423bc8b3ad",
		ObservedAt:  time.Date(2024, 1, 1, 0, 0, 4, 0, time.UTC),
		Deleted:     deleted,
		Inserted:    true,
	}
}

func TestJetStreamPublisher_Publish(t *testing.T) {
	js := &fakeJetStream{}
	p := NewJetStreamPublisher(js, "", logger.NewTestLogger())

	require.NoError(t, p.Publish(context.Background(), record(true)))
	require.Len(t, js.msgs, 1)

	msg := js.msgs[0]
	assert.Equal(t, "fleetcrawl.changes.widget", msg.subject)
	assert.Equal(t, 1, msg.opts, "message id option is set")

	var event map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &event))
	assert.Equal(t, "1.0", event["specversion"])
	assert.Equal(t, "00000000-0000-7000-8000-000000000004", event["id"])
	assert.Equal(t, TypeVersionDeleted, event["type"])
	assert.Equal(t, "fleetcrawl.changes.widget", event["subject"])
	assert.Equal(t, "2024-01-01T00:00:04Z", event["time"])

	data := event["data"].(map[string]any)
	assert.Equal(t, map[string]any{"color": "blue"}, data["definition"])
	assert.Nil(t, data["metadata"])
	assert.Equal(t, true, data["deleted"])
}

func TestJetStreamPublisher_CustomPrefix(t *testing.T) {
	js := &fakeJetStream{}
	p := NewJetStreamPublisher(js, "inventory", logger.NewTestLogger())

	require.NoError(t, p.Publish(context.Background(), record(false)))
	assert.Equal(t, "inventory.widget", js.msgs[0].subject)
}

func TestJetStreamPublisher_Error(t *testing.T) {
	boom := errors.New("no responders")
	p := NewJetStreamPublisher(&fakeJetStream{err: boom}, "", logger.NewTestLogger())

	err := p.Publish(context.Background(), record(false))
	assert.ErrorIs(t, err, boom)
}

func TestNewChangeEvent_Type(t *testing.T) {
	assert.Equal(t, TypeVersionCreated, NewChangeEvent("s", record(false)).Type)
	assert.Equal(t, TypeVersionDeleted, NewChangeEvent("s", record(true)).Type)
}

func TestMemory(t *testing.T) {
	var m Memory
	ctx := context.Background()
	require.NoError(t, m.Publish(ctx, record(false)))
	require.NoError(t, m.Publish(ctx, record(true)))

	got := m.Records()
	require.Len(t, got, 2)
	assert.False(t, got[0].Deleted)
	assert.True(t, got[1].Deleted)

	require.NoError(t, Nop{}.Publish(ctx, record(false)))
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{URL: "nats://localhost:4222"}.Enabled())
}
