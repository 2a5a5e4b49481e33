package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
)

// DispatchMessage is the queue payload that hands a document to the worker.
type DispatchMessage struct {
	DocumentID uuid.UUID `json:"document_id"`
	JobID      uuid.UUID `json:"job_id"`
}

// Dispatcher publishes dispatch messages to the pipeline topic so the
// processor's lifetime is decoupled from the triggering request.
type Dispatcher struct {
	publisher *pubsub.Publisher
}

// NewDispatcher constructs a dispatcher over the pipeline topic publisher.
func NewDispatcher(publisher *pubsub.Publisher) (*Dispatcher, error) {
	if publisher == nil {
		return nil, errors.New("pipeline publisher is required")
	}
	return &Dispatcher{publisher: publisher}, nil
}

// Dispatch publishes the message and waits for the broker's acknowledgement.
func (d *Dispatcher) Dispatch(ctx context.Context, msg DispatchMessage) error {
	if msg.DocumentID == uuid.Nil {
		return errors.New("document id is required")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode dispatch message: %w", err)
	}
	result := d.publisher.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish dispatch message: %w", err)
	}
	return nil
}
