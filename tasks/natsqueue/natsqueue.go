// Package natsqueue publishes tasks over NATS core and feeds results back into a tasks.Registry.
package natsqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/mindcraft-auth/tasks"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const headerTaskID = "Task-Id"

// Connect dials url and keeps reconnecting for the life of the process.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	return nc, errors.Wrapf(err, "connecting to nats %s", url)
}

type Queue struct {
	nc       *nats.Conn
	subject  string
	sub      *nats.Subscription
	registry *tasks.Registry
	logger   zerolog.Logger
}

var _ tasks.Queue = (*Queue)(nil)

type Option func(*Queue)

func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// New publishes on subject and resolves registry from messages on resultSubject.
func New(nc *nats.Conn, registry *tasks.Registry, subject, resultSubject string, options ...Option) (*Queue, error) {
	q := &Queue{
		nc:       nc,
		subject:  subject,
		registry: registry,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(q)
	}

	sub, err := nc.Subscribe(resultSubject, q.handleResult)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribing to %s", resultSubject)
	}
	q.sub = sub
	return q, nil
}

func (q *Queue) Publish(ctx context.Context, task tasks.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return errors.Wrap(err, "marshal task")
	}

	msg := nats.NewMsg(q.subject)
	msg.Data = data
	msg.Header.Set(headerTaskID, task.ID)

	if err := q.nc.PublishMsg(msg); err != nil {
		return errors.Wrap(err, "publish failed")
	}
	return errors.Wrap(q.nc.FlushWithContext(ctx), "flush failed")
}

func (q *Queue) handleResult(m *nats.Msg) {
	var res tasks.Result
	if err := json.Unmarshal(m.Data, &res); err != nil {
		q.logger.Warn().Err(err).Str("subject", m.Subject).Msg("discarding malformed task result")
		return
	}
	if res.ID == "" {
		res.ID = m.Header.Get(headerTaskID)
	}
	if !q.registry.Resolve(res) {
		q.logger.Debug().Str("task_id", res.ID).Msg("no waiter for task result")
	}
}

// Close drains the result subscription. The connection is owned by the caller.
func (q *Queue) Close() error {
	return q.sub.Drain()
}
