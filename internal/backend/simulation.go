/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package backend

import (
	"fmt"
	"maps"
	"runtime"
	"slices"

	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

// Simulation keeps units in memory instead of installing them. Identifiers
// increase across all sessions of one Simulation, starting at 1.
type Simulation struct {
	next rule.FilterID
}

func NewSimulation() *Simulation {
	return &Simulation{}
}

func (s *Simulation) Name() string {
	return "simulation"
}

func (s *Simulation) Open() (Session, error) {
	return &SimulationSession{
		backend: s,
		label:   fmt.Sprintf("simulation (platform: %s)", runtime.GOOS),
		units:   make(map[rule.FilterID]compiler.Unit),
	}, nil
}

func (s *Simulation) allocate() rule.FilterID {
	s.next++
	return s.next
}

type SimulationSession struct {
	backend *Simulation
	label   string
	units   map[rule.FilterID]compiler.Unit
	closed  bool
}

func (s *SimulationSession) Submit(unit compiler.Unit) (rule.FilterID, error) {
	if s.closed {
		return 0, &SubmitError{Reason: ReasonInvalidParameter, Err: fmt.Errorf("session closed")}
	}
	id := s.backend.allocate()
	s.units[id] = unit
	return id, nil
}

func (s *SimulationSession) Delete(id rule.FilterID) error {
	if _, ok := s.units[id]; !ok {
		return fmt.Errorf("%w: %d not tracked", ErrDelete, id)
	}
	delete(s.units, id)
	return nil
}

func (s *SimulationSession) Close() error {
	s.closed = true
	return nil
}

func (s *SimulationSession) String() string {
	return s.label
}

// Unit returns the unit installed under id.
func (s *SimulationSession) Unit(id rule.FilterID) (compiler.Unit, bool) {
	unit, ok := s.units[id]
	return unit, ok
}

// IDs returns the tracked identifiers in ascending order.
func (s *SimulationSession) IDs() []rule.FilterID {
	return slices.Sorted(maps.Keys(s.units))
}
