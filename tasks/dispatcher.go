package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Queue delivers tasks to the workers. Results come back through Registry.Resolve.
type Queue interface {
	Publish(ctx context.Context, task Task) error
}

type Dispatcher struct {
	queue    Queue
	registry *Registry
	logger   zerolog.Logger
}

type DispatcherOption func(*Dispatcher)

func WithLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(queue Queue, registry *Registry, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:    queue,
		registry: registry,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Submit publishes a task and waits for its result.
func (d *Dispatcher) Submit(ctx context.Context, userID int64, kind string, payload json.RawMessage) (*Result, error) {
	task := Task{
		ID:      uuid.NewString(),
		Kind:    kind,
		UserID:  userID,
		Payload: payload,
	}

	future, err := d.registry.Register(task.ID)
	if err != nil {
		return nil, err
	}

	if err := d.queue.Publish(ctx, task); err != nil {
		future.Cancel()
		return nil, errors.Wrapf(err, "publishing task %s", task.ID)
	}

	res, err := future.Wait(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Str("task_id", task.ID).Str("kind", kind).Msg("task did not complete")
		return nil, err
	}
	if res.Error != "" {
		return res, fmt.Errorf("%w: %s", ErrTaskFailed, res.Error)
	}
	return res, nil
}
