// Package events publishes version changes to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/logger"
)

const (
	// DefaultStream is the JetStream stream holding change events.
	DefaultStream = "FLEETCRAWL_CHANGES"
	// DefaultSubjectPrefix prefixes every change subject.
	DefaultSubjectPrefix = "fleetcrawl.changes"

	TypeVersionCreated = "fleetcrawl.version.created"
	TypeVersionDeleted = "fleetcrawl.version.deleted"
)

// Publisher receives every appended version and tombstone.
type Publisher interface {
	Publish(ctx context.Context, rec ir.VersionRecord) error
}

// ChangeEvent is the CloudEvents envelope written to the stream.
type ChangeEvent struct {
	SpecVersion     string           `json:"specversion"`
	ID              string           `json:"id"`
	Source          string           `json:"source"`
	Type            string           `json:"type"`
	Subject         string           `json:"subject"`
	Time            time.Time        `json:"time"`
	DataContentType string           `json:"datacontenttype"`
	Data            ir.VersionRecord `json:"data"`
}

// NewChangeEvent wraps a version record. The event id is the version id.
func NewChangeEvent(subject string, rec ir.VersionRecord) ChangeEvent {
	typ := TypeVersionCreated
	if rec.Deleted {
		typ = TypeVersionDeleted
	}
	return ChangeEvent{
		SpecVersion:     "1.0",
		ID:              rec.VersionID,
		Source:          "fleetcrawl/" + ir.CrawlerVersion,
		Type:            typ,
		Subject:         subject,
		Time:            rec.ObservedAt,
		DataContentType: "application/json",
		Data:            rec,
	}
}

// Subject returns the subject for an entity type.
func Subject(prefix, entity string) string {
	return prefix + "." + entity
}

// streamPublisher is the part of jetstream.JetStream the publisher uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher publishes change events as JSON.
type JetStreamPublisher struct {
	js     streamPublisher
	prefix string
	log    logger.Logger
}

// NewJetStreamPublisher creates a publisher on an existing JetStream handle.
func NewJetStreamPublisher(js streamPublisher, prefix string, log logger.Logger) *JetStreamPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &JetStreamPublisher{js: js, prefix: prefix, log: log.WithComponent("events")}
}

// Publish sends one change event. The version id doubles as the JetStream
// message id so redelivered publishes are deduplicated by the server.
func (p *JetStreamPublisher) Publish(ctx context.Context, rec ir.VersionRecord) error {
	subject := Subject(p.prefix, rec.Entity)
	payload, err := json.Marshal(NewChangeEvent(subject, rec))
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	ack, err := p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(rec.VersionID))
	if err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("version_id", rec.VersionID).
		Uint64("seq", ack.Sequence).
		Msg("published change event")
	return nil
}

// Config selects the NATS server and stream.
type Config struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
	CredsFile     string `yaml:"creds_file"`
}

// Enabled reports whether a server is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// Connect dials NATS, ensures the change stream exists and returns a
// publisher plus a function that closes the connection.
func Connect(ctx context.Context, cfg Config, log logger.Logger) (*JetStreamPublisher, func(), error) {
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	opts := []nats.Option{
		nats.Name("fleetcrawl"),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Warn().Err(err).Msg("nats error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{prefix + ".>"},
	}); err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create or get stream %s: %w", stream, err)
	}

	return NewJetStreamPublisher(js, prefix, log), nc.Close, nil
}

// Nop discards every change.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, ir.VersionRecord) error { return nil }

// Memory keeps published records in order. It is used by tests and by
// dry runs.
type Memory struct {
	mu      sync.Mutex
	records []ir.VersionRecord
}

// Publish implements Publisher.
func (m *Memory) Publish(_ context.Context, rec ir.VersionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything published so far.
func (m *Memory) Records() []ir.VersionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ir.VersionRecord(nil), m.records...)
}
