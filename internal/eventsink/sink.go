// Package eventsink mirrors engine events to message brokers. Publishing is
// best-effort; the relational store stays the record of truth.
package eventsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"imagegate/internal/storage"
)

type Sink interface {
	Publish(ctx context.Context, e storage.EngineEvent) error
	Close() error
}

func Encode(e storage.EngineEvent) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode engine event: %w", err)
	}
	return b, nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e storage.EngineEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
