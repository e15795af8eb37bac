package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticker-ingest/internal/resilience"
)

// ErrNoData is returned when a provider answers but has nothing for the
// requested entity or artifact.
var ErrNoData = eris.New("provider: no data")

// Kind classifies a provider failure.
type Kind int

const (
	KindPermanent Kind = iota
	KindTransient
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindEmpty:
		return "empty"
	default:
		return "permanent"
	}
}

// FetchError is the error every adapter returns.
type FetchError struct {
	Provider string
	Op       string
	Kind     Kind
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Wrap classifies err and attaches the provider and operation. A nil err
// stays nil and an existing FetchError is returned unchanged.
func Wrap(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	kind := KindPermanent
	switch {
	case errors.Is(err, ErrNoData):
		kind = KindEmpty
	case resilience.IsTransient(err),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, context.DeadlineExceeded):
		kind = KindTransient
	}
	return &FetchError{Provider: provider, Op: op, Kind: kind, Err: err}
}

// IsEmpty reports whether err means the provider had no data.
func IsEmpty(err error) bool {
	if errors.Is(err, ErrNoData) {
		return true
	}
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindEmpty
}

// KindOf returns the classification of err, KindPermanent when unknown.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, ErrNoData) {
		return KindEmpty
	}
	return KindPermanent
}
