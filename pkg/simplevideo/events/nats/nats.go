// Package nats publishes asset lifecycle events to NATS JetStream and
// consumes generator status callbacks delivered over the same stream.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

// Event types, also used as the last subject token.
const (
	EventCreated   = "created"
	EventStatus    = "status"
	EventDeleted   = "deleted"
	CallbackSuffix = "callbacks"
)

// Config describes the JetStream layout.
type Config struct {
	URL string
	// Stream is created if missing and captures SubjectPrefix.>
	Stream        string
	SubjectPrefix string
	// Consumer is the durable name used for status callbacks.
	Consumer   string
	MaxDeliver int
	ClientName string
}

func (c Config) withDefaults() Config {
	if c.Stream == "" {
		c.Stream = "VIDEO_EVENTS"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "videos"
	}
	c.SubjectPrefix = strings.Trim(c.SubjectPrefix, ".")
	if c.Consumer == "" {
		c.Consumer = "video-status-callbacks"
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 5
	}
	if c.ClientName == "" {
		c.ClientName = "simple-video"
	}
	return c
}

// Subject returns the subject an event of the given type is published on.
func (c Config) Subject(eventType string) string {
	return c.withDefaults().SubjectPrefix + "." + eventType
}

// Event is the message body for every lifecycle event. Asset never carries
// the secret key.
type Event struct {
	ID             string                   `json:"id"`
	Type           string                   `json:"type"`
	VideoID        string                   `json:"videoId"`
	Asset          *simplevideo.PublicAsset `json:"asset,omitempty"`
	PreviousStatus simplevideo.AssetStatus  `json:"previousStatus,omitempty"`
	StorageDeleted *bool                    `json:"storageDeleted,omitempty"`
	OccurredAt     time.Time                `json:"occurredAt"`
}

// EncodeEvent builds the JSON body for an event.
func EncodeEvent(ev Event) ([]byte, error) {
	if ev.Type == "" || ev.VideoID == "" {
		return nil, errors.New("event type and video id are required")
	}
	return json.Marshal(ev)
}

func connect(cfg Config, logger *slog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to connect to JetStream: %w", err)
	}
	return conn, js, nil
}

// Publisher is a simplevideo.EventSink backed by JetStream.
type Publisher struct {
	logger *slog.Logger
	conn   *nats.Conn
	js     jetstream.JetStream
	config Config
	now    func() time.Time
}

var _ simplevideo.EventSink = (*Publisher)(nil)

// NewPublisher connects and makes sure the stream exists.
func NewPublisher(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	conn, js, err := connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
	}
	return &Publisher{
		logger: logger,
		conn:   conn,
		js:     js,
		config: cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *Publisher) AssetCreated(ctx context.Context, asset *simplevideo.VideoAsset) error {
	return p.publish(ctx, Event{
		Type:    EventCreated,
		VideoID: asset.VideoID,
		Asset:   asset.Public(),
	})
}

func (p *Publisher) AssetStatusChanged(ctx context.Context, asset *simplevideo.VideoAsset, previous simplevideo.AssetStatus) error {
	return p.publish(ctx, Event{
		Type:           EventStatus,
		VideoID:        asset.VideoID,
		Asset:          asset.Public(),
		PreviousStatus: previous,
	})
}

func (p *Publisher) AssetDeleted(ctx context.Context, videoID string, storageDeleted bool) error {
	return p.publish(ctx, Event{
		Type:           EventDeleted,
		VideoID:        videoID,
		StorageDeleted: &storageDeleted,
	})
}

func (p *Publisher) publish(ctx context.Context, ev Event) error {
	ev.ID = uuid.NewString()
	ev.OccurredAt = p.now()
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	subject := p.config.Subject(ev.Type)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(ev.ID)); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	p.logger.Debug("Published video event", "subject", subject, "video_id", ev.VideoID)
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	if p.conn != nil {
		return p.conn.Drain()
	}
	return nil
}

// StatusUpdater is the part of simplevideo.Service the consumer drives.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, update simplevideo.StatusUpdate) (*simplevideo.StatusResult, error)
}

// CallbackConsumer applies generator status callbacks published on
// <prefix>.callbacks.
type CallbackConsumer struct {
	logger *slog.Logger
	conn   *nats.Conn
	js     jetstream.JetStream
	config Config
	iter   jetstream.MessagesContext
	wg     sync.WaitGroup
}

// NewCallbackConsumer connects to NATS. The stream must already exist; the
// Publisher creates it.
func NewCallbackConsumer(cfg Config, logger *slog.Logger) (*CallbackConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	conn, js, err := connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &CallbackConsumer{
		logger: logger,
		conn:   conn,
		js:     js,
		config: cfg,
	}, nil
}

// Subscribe starts delivering callbacks to updater until ctx is done or
// Close is called.
func (c *CallbackConsumer) Subscribe(ctx context.Context, updater StatusUpdater) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.config.Stream, jetstream.ConsumerConfig{
		Durable:       c.config.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: c.config.Subject(CallbackSuffix),
		AckWait:       30 * time.Second,
		MaxDeliver:    c.config.MaxDeliver,
		BackOff:       []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", c.config.Consumer, err)
	}

	iter, err := cons.Messages()
	if err != nil {
		return err
	}
	c.iter = iter

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Info("Status callback subscription started", "subject", c.config.Subject(CallbackSuffix))
		c.consume(ctx, iter, updater)
		c.logger.Info("Status callback subscription stopped")
	}()
	return nil
}

// messageIterator is the part of jetstream.MessagesContext consume reads.
type messageIterator interface {
	Next() (jetstream.Msg, error)
}

// consume settles messages until the iterator is closed or ctx is done.
// Other receive errors, such as missed heartbeats while the server is
// unreachable, are logged and the loop keeps pulling.
func (c *CallbackConsumer) consume(ctx context.Context, iter messageIterator, updater StatusUpdater) {
	for {
		msg, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return
			}
			c.logger.Warn("Failed to receive message", "error", err)
			continue
		}
		c.settle(msg, HandleCallback(ctx, updater, msg.Data()))
	}
}

func (c *CallbackConsumer) settle(msg jetstream.Msg, err error) {
	var ackErr error
	switch {
	case err == nil:
		ackErr = msg.Ack()
	case Permanent(err):
		c.logger.Warn("Dropping status callback", "subject", msg.Subject(), "error", err)
		ackErr = msg.Term()
	default:
		c.logger.Warn("Failed to handle status callback", "subject", msg.Subject(), "error", err)
		ackErr = msg.Nak()
	}
	if ackErr != nil {
		c.logger.Error("Failed to settle message", "error", ackErr)
	}
}

// HandleCallback decodes one callback body and applies it.
func HandleCallback(ctx context.Context, updater StatusUpdater, data []byte) error {
	update, err := simplevideo.ParseStatusCallback(data)
	if err != nil {
		return err
	}
	_, err = updater.UpdateStatus(ctx, update)
	return err
}

// Permanent reports whether redelivering a callback cannot succeed.
func Permanent(err error) bool {
	return errors.Is(err, simplevideo.ErrValidation) ||
		errors.Is(err, simplevideo.ErrAssetNotFound) ||
		errors.Is(err, simplevideo.ErrAccessDenied)
}

// Close stops the iterator and waits for the handler loop.
func (c *CallbackConsumer) Close() error {
	if c.iter != nil {
		c.iter.Stop()
	}
	c.wg.Wait()
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}
