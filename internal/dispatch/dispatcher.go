// Package dispatch routes client messages to library operations by
// (payload type, action).
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"reflect"
	"slices"

	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/eventbus"
	"github.com/lumenlib/lumen-server/internal/library"
	"github.com/lumenlib/lumen-server/internal/logger"
	"github.com/lumenlib/lumen-server/internal/metrics"
	"github.com/lumenlib/lumen-server/internal/validation"
)

// handlerFunc runs one routed message.
type handlerFunc func(ctx context.Context, d *Dispatcher, msg Message) (any, error)

// Dispatcher owns the operation table.
type Dispatcher struct {
	registry  *library.Registry
	validator *validation.Validator
	logger    *slog.Logger
	handlers  map[string]handlerFunc

	importRoots []string
}

// New builds a dispatcher over registry.
func New(registry *library.Registry, log *slog.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	d := &Dispatcher{
		registry:  registry,
		validator: validation.New(),
		logger:    log,
		handlers:  make(map[string]handlerFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.registerLibrary()
	d.registerFiles()
	d.registerNodes()
	d.registerPlugins()
	return d
}

// Routes lists every "type.action" the dispatcher accepts, sorted.
func (d *Dispatcher) Routes() []string {
	return slices.Sorted(maps.Keys(d.handlers))
}

// Dispatch validates msg, runs its handler and returns a JSON-serializable result.
// Errors keep their code.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (result any, err error) {
	defer func() {
		metrics.ObserveOperation(msg.Payload.Type, msg.Action, err)
		if err != nil {
			d.logger.Debug("dispatch failed",
				slog.String("route", msg.Route()),
				slog.String("library_id", msg.LibraryID),
				slog.String("error", err.Error()))
		}
	}()

	if err := d.validator.Validate(msg); err != nil {
		return nil, err
	}
	h, ok := d.handlers[msg.Route()]
	if !ok {
		return nil, errors.NotFoundf("unknown action %s for type %s", msg.Action, msg.Payload.Type)
	}
	return h(ctx, d, msg)
}

// DecodeMessage parses a raw message.
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, errors.Validationf("malformed message: %v", err)
	}
	return msg, nil
}

func (d *Dispatcher) on(typ, action string, h handlerFunc) {
	d.handlers[typ+"."+action] = h
}

// decode unmarshals the payload data into T and validates it. Absent data
// decodes as the zero value.
func decode[T any](d *Dispatcher, msg Message) (T, error) {
	var v T
	data := bytes.TrimSpace(msg.Payload.Data)
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, &v); err != nil {
			return v, errors.Validationf("invalid %s payload: %v", msg.Route(), err)
		}
	}
	if reflect.TypeFor[T]().Kind() == reflect.Struct {
		if err := d.validator.Validate(&v); err != nil {
			return v, err
		}
	}
	return v, nil
}

// session resolves the message's active library.
func (d *Dispatcher) session(msg Message) (*library.Session, error) {
	if msg.LibraryID == "" {
		return nil, errors.Validation("libraryId is required")
	}
	return d.registry.Get(msg.LibraryID)
}

// withSession adapts a typed, session-scoped handler.
func withSession[T any](fn func(ctx context.Context, s *library.Session, in T) (any, error)) handlerFunc {
	return func(ctx context.Context, d *Dispatcher, msg Message) (any, error) {
		s, err := d.session(msg)
		if err != nil {
			return nil, err
		}
		in, err := decode[T](d, msg)
		if err != nil {
			return nil, err
		}
		return fn(ctx, s, in)
	}
}

type clientKey struct{}

// WithClient attaches the calling client to ctx; library.open passes it to the
// session's connect hooks.
func WithClient(ctx context.Context, c eventbus.ClientData) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the client attached by WithClient.
func ClientFrom(ctx context.Context) eventbus.ClientData {
	c, _ := ctx.Value(clientKey{}).(eventbus.ClientData)
	return c
}
