package ingest

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/educates/lookup-service/internal/cache"
)

// Sink accepts ingestion messages. Submit returns once the message was
// applied, reporting the error of applying it.
type Sink interface {
	Submit(ctx context.Context, message Message) error
}

// StoreSink applies messages directly on the caller's goroutine.
type StoreSink struct {
	Store *cache.Store
}

func (s StoreSink) Submit(ctx context.Context, message Message) error {
	return message.Apply(s.Store)
}

type envelope struct {
	message Message
	result  chan error
}

// Pump applies messages from every watcher one at a time in arrival order.
type Pump struct {
	store  *cache.Store
	logger logr.Logger
	queue  chan envelope
}

func NewPump(store *cache.Store, logger logr.Logger, buffer int) *Pump {
	return &Pump{
		store:  store,
		logger: logger.WithName("ingest-pump"),
		queue:  make(chan envelope, buffer),
	}
}

// Submit queues the message and waits for it to be applied.
func (p *Pump) Submit(ctx context.Context, message Message) error {
	env := envelope{message: message, result: make(chan error, 1)}

	select {
	case p.queue <- env:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-env.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run applies queued messages until ctx is done.
func (p *Pump) Run(ctx context.Context) error {
	p.logger.Info("Starting ingestion pump")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping ingestion pump")
			return nil
		case env := <-p.queue:
			err := env.message.Apply(p.store)
			if err != nil {
				p.logger.V(1).Info("Failed to apply ingestion message",
					"message", fmt.Sprintf("%T", env.message), "error", err.Error())
			}
			env.result <- err
		}
	}
}
