// Package natspub publishes engine events to NATS so external consumers
// (indexers, UIs, settlement bots watching for races to settle) can follow
// the race lifecycle without polling the API.
package natspub

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"
	"github.com/ohler55/ojg/oj"

	"github.com/BrianLudlam/block-racer/log"
	"github.com/BrianLudlam/block-racer/pkg/racing"
)

// envelope is the wire form of one published event. Data carries the
// event's own JSON shape under its kind.
type envelope struct {
	ID   string       `json:"id"`
	Time time.Time    `json:"time"`
	Kind string       `json:"kind"`
	Data racing.Event `json:"data"`
}

type Publisher struct {
	conn    *nats.Conn
	subject string
	l       *log.Logger
}

type Option func(*Publisher)

func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) { p.l = l }
}

// WithSubjectPrefix overrides the default "race.event" subject prefix.
func WithSubjectPrefix(prefix string) Option {
	return func(p *Publisher) { p.subject = prefix }
}

func NewPublisher(conn *nats.Conn, opts ...Option) *Publisher {
	p := &Publisher{
		conn:    conn,
		subject: "race.event",
		l:       log.Default().Named("natspub"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Close() {
	p.conn.Close()
}

// Publish sends one event as a JSON envelope on "<prefix>.<kind>".
// Publish failures are logged, not propagated: the engine's state machine
// never depends on the event fan-out.
func (p *Publisher) Publish(ev racing.Event) {
	id, err := uuid.NewV7()
	if err != nil {
		p.l.Error("event id generation failed", log.ErrorField(err))
		return
	}
	env := envelope{
		ID:   id.String(),
		Time: time.Now().UTC(),
		Kind: ev.EventKind(),
		Data: ev,
	}
	data, err := oj.Marshal(&env)
	if err != nil {
		p.l.Error("event marshal failed", log.ErrorField(err))
		return
	}
	subject := fmt.Sprintf("%s.%s", p.subject, ev.EventKind())
	if err := p.conn.Publish(subject, data); err != nil {
		p.l.Error("publish failed",
			log.String("subject", subject),
			log.ErrorField(err))
		return
	}
	p.l.Debug("event published",
		log.String("subject", subject),
		log.String("id", env.ID))
}
