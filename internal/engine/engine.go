/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/tschaefer/filterctl/internal/backend"
	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrBatchAddFailed = errors.New("no filter of the batch could be added")
	ErrNotReady       = errors.New("filter engine not ready")
	ErrClosed         = errors.New("filter engine closed")
)

// Observer is told about every filter the engine installs, fails to
// install, or removes.
type Observer interface {
	Installed(r *rule.Rule, unit compiler.Unit, id rule.FilterID)
	Failed(r *rule.Rule, layer compiler.Layer, err error)
	Rejected(r *rule.Rule, err error)
	Removed(id rule.FilterID)
}

// Engine compiles rules into units, installs them through a backend session
// and tracks the returned identifiers until cleanup.
//
// An Engine is not safe for concurrent use, callers sharing one must
// serialize access.
type Engine struct {
	backend   backend.Backend
	session   backend.Session
	logger    *slog.Logger
	observers []Observer
	registry  map[rule.FilterID]struct{}
	state     State
	id        uuid.UUID
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

func New(b backend.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:  b,
		logger:   slog.Default(),
		registry: make(map[rule.FilterID]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize opens the backend session.
func (e *Engine) Initialize() error {
	switch e.state {
	case StateReady:
		return nil
	case StateClosed:
		return ErrClosed
	}

	session, err := e.backend.Open()
	if err != nil {
		if !errors.Is(err, backend.ErrSessionOpen) {
			err = fmt.Errorf("%w: %w", backend.ErrSessionOpen, err)
		}
		e.logger.Error("Failed to open filter engine session.", "backend", e.backend.Name(), "error", err)
		return err
	}

	e.session = session
	e.id = uuid.New()
	e.state = StateReady
	e.logger.Info("Filter engine session opened.",
		"backend", e.backend.Name(), "session", session.String(), "id", e.id.String(),
	)

	return nil
}

// AddFilters installs every rule on the layers it selects. Invalid rules
// and failed submissions are logged and skipped. ErrBatchAddFailed is
// returned when not a single unit was installed.
func (e *Engine) AddFilters(rules []*rule.Rule) ([]rule.FilterID, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	var ids []rule.FilterID
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			e.logger.Warn("Skipping invalid rule.", "rule", r.Name, "error", err)
			for _, o := range e.observers {
				o.Rejected(r, err)
			}
			continue
		}

		for _, layer := range compiler.Select(r) {
			id, ok := e.install(r, layer)
			if !ok {
				continue
			}
			r.InstalledIDs = append(r.InstalledIDs, id)
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		e.logger.Error("Failed to add any filter.", "rules", len(rules))
		return nil, ErrBatchAddFailed
	}

	e.logger.Info("Filters added.", "rules", len(rules), "filters", len(ids))
	return ids, nil
}

func (e *Engine) install(r *rule.Rule, layer compiler.Layer) (rule.FilterID, bool) {
	unit, err := compiler.Build(r, layer)
	if err != nil {
		e.fail(r, layer, err)
		return 0, false
	}

	if e.logger.Enabled(context.Background(), slog.LevelDebug) {
		e.logger.Debug("Compiled filter unit.",
			"rule", r.Name, "layer", layer.String(), "weight", unit.Weight,
			"action", unit.Action.String(), "conditions", len(unit.Conditions),
		)
		if app, ok := unit.AppIdentity(); ok {
			e.logger.Debug("Application identity.",
				"path", app.Path, "size", len(app.Blob()), "units", app.Units(), "blob", app.Hex(),
			)
		}
	}

	id, err := e.session.Submit(unit)
	if err != nil {
		e.fail(r, layer, err)
		return 0, false
	}

	e.registry[id] = struct{}{}
	e.logger.Info("Filter installed.",
		"rule", r.Name, "layer", layer.String(), "id", uint64(id), "action", unit.Action.String(),
	)
	for _, o := range e.observers {
		o.Installed(r, unit, id)
	}

	return id, true
}

func (e *Engine) fail(r *rule.Rule, layer compiler.Layer, err error) {
	reason := backend.ReasonOf(err)
	e.logger.Warn("Failed to install filter.",
		"rule", r.Name, "layer", layer.String(), "reason", reason.String(), "error", err,
	)
	for _, o := range e.observers {
		o.Failed(r, layer, err)
	}
}

// DeleteFilters removes the given filters and returns how many were removed.
// Unknown identifiers and failed deletions are skipped.
func (e *Engine) DeleteFilters(ids []rule.FilterID) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		if _, ok := e.registry[id]; !ok {
			e.logger.Debug("Skipping untracked filter.", "id", uint64(id))
			continue
		}
		if e.remove(id) {
			count++
		}
	}

	return count, nil
}

func (e *Engine) remove(id rule.FilterID) bool {
	if err := e.session.Delete(id); err != nil {
		e.logger.Warn("Failed to delete filter.", "id", uint64(id), "error", err)
		return false
	}

	delete(e.registry, id)
	e.logger.Info("Filter deleted.", "id", uint64(id))
	for _, o := range e.observers {
		o.Removed(id)
	}
	return true
}

// Cleanup removes every tracked filter and closes the session. The registry
// is empty afterwards, whatever the backend reported. Calling Cleanup on an
// engine that was never initialized only marks it closed.
func (e *Engine) Cleanup() error {
	switch e.state {
	case StateClosed:
		return ErrClosed
	case StateUninitialized:
		e.state = StateClosed
		return nil
	}

	for _, id := range e.Installed() {
		e.remove(id)
	}

	err := e.session.Close()
	if err != nil && !errors.Is(err, backend.ErrSessionClose) {
		err = fmt.Errorf("%w: %w", backend.ErrSessionClose, err)
	}
	if err != nil {
		e.logger.Error("Failed to close filter engine session.", "id", e.id.String(), "error", err)
	} else {
		e.logger.Info("Filter engine session closed.", "id", e.id.String())
	}

	clear(e.registry)
	e.session = nil
	e.state = StateClosed

	return err
}

// LayerName returns the debug name of a layer.
func (e *Engine) LayerName(layer compiler.Layer) string {
	return layer.String()
}

// Installed returns the tracked identifiers in ascending order.
func (e *Engine) Installed() []rule.FilterID {
	return slices.Sorted(maps.Keys(e.registry))
}

func (e *Engine) State() State {
	return e.state
}

// ID identifies the current session, it is the zero UUID before Initialize.
func (e *Engine) ID() uuid.UUID {
	return e.id
}

// Backend returns the name of the backend sessions are opened on.
func (e *Engine) Backend() string {
	return e.backend.Name()
}

// Session returns the label of the open session.
func (e *Engine) Session() string {
	if e.session == nil {
		return ""
	}
	return e.session.String()
}

func (e *Engine) ready() error {
	switch e.state {
	case StateReady:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotReady
	}
}
