//go:build linux

/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package iptables

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/coreos/go-iptables/iptables"

	"github.com/tschaefer/filterctl/internal/backend"
	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

const (
	Table     = "filter"
	ChainIn   = "FILTERCTL-IN"
	ChainOut  = "FILTERCTL-OUT"
	tagPrefix = "filterctl:"
)

// Tables is the subset of *iptables.IPTables the backend uses.
type Tables interface {
	ClearChain(table, chain string) error
	ClearAndDeleteChain(table, chain string) error
	Exists(table, chain string, rulespec ...string) (bool, error)
	Insert(table, chain string, pos int, rulespec ...string) error
	Delete(table, chain string, rulespec ...string) error
}

// Backend installs units into dedicated chains jumped to from INPUT and
// OUTPUT. IPv6 layers go through ip6tables.
type Backend struct {
	dial func(iptables.Protocol) (Tables, error)
}

func New() *Backend {
	return &Backend{dial: func(proto iptables.Protocol) (Tables, error) {
		return iptables.NewWithProtocol(proto)
	}}
}

// NewWithTables returns a backend whose sessions use the given handles.
func NewWithTables(v4, v6 Tables) *Backend {
	return &Backend{dial: func(proto iptables.Protocol) (Tables, error) {
		if proto == iptables.ProtocolIPv6 {
			return v6, nil
		}
		return v4, nil
	}}
}

func (b *Backend) Name() string {
	return "iptables"
}

func (b *Backend) Open() (backend.Session, error) {
	s := &Session{entries: make(map[chainKey][]entry)}

	for _, proto := range []iptables.Protocol{iptables.ProtocolIPv4, iptables.ProtocolIPv6} {
		ipt, err := b.dial(proto)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", backend.ErrSessionOpen, err)
		}
		for _, hook := range hooks {
			if err := ipt.ClearChain(Table, hook.chain); err != nil {
				return nil, fmt.Errorf("%w: %w", backend.ErrSessionOpen, err)
			}
			exists, err := ipt.Exists(Table, hook.builtin, "-j", hook.chain)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", backend.ErrSessionOpen, err)
			}
			if !exists {
				if err := ipt.Insert(Table, hook.builtin, 1, "-j", hook.chain); err != nil {
					return nil, fmt.Errorf("%w: %w", backend.ErrSessionOpen, err)
				}
			}
		}
		if proto == iptables.ProtocolIPv6 {
			s.v6 = ipt
		} else {
			s.v4 = ipt
		}
	}

	return s, nil
}

var hooks = []struct {
	builtin string
	chain   string
}{
	{"INPUT", ChainIn},
	{"OUTPUT", ChainOut},
}

type chainKey struct {
	v6    bool
	chain string
}

type entry struct {
	id     rule.FilterID
	weight uint64
	spec   []string
}

type Session struct {
	v4, v6  Tables
	next    rule.FilterID
	entries map[chainKey][]entry
}

func (s *Session) Submit(unit compiler.Unit) (rule.FilterID, error) {
	id := s.next + 1
	spec, err := ruleSpec(unit, fmt.Sprintf("%s%d", tagPrefix, id))
	if err != nil {
		return 0, err
	}

	key := chainKey{v6: unit.Layer.Family() == compiler.FamilyIPv6, chain: ChainIn}
	if unit.Layer.IsOutbound() {
		key.chain = ChainOut
	}

	// iptables evaluates top down, keep descending weight
	chain := s.entries[key]
	idx := slices.IndexFunc(chain, func(e entry) bool { return e.weight < unit.Weight })
	if idx < 0 {
		idx = len(chain)
	}

	if err := s.tables(key.v6).Insert(Table, key.chain, idx+1, spec...); err != nil {
		return 0, classify(err)
	}

	s.next = id
	s.entries[key] = slices.Insert(chain, idx, entry{id: id, weight: unit.Weight, spec: spec})
	return id, nil
}

func (s *Session) Delete(id rule.FilterID) error {
	for key, chain := range s.entries {
		idx := slices.IndexFunc(chain, func(e entry) bool { return e.id == id })
		if idx < 0 {
			continue
		}
		if err := s.tables(key.v6).Delete(Table, key.chain, chain[idx].spec...); err != nil {
			return fmt.Errorf("%w: %w", backend.ErrDelete, err)
		}
		s.entries[key] = slices.Delete(chain, idx, idx+1)
		return nil
	}

	return fmt.Errorf("%w: %d not installed by this session", backend.ErrDelete, id)
}

// Close removes the jumps and the dedicated chains of both families.
func (s *Session) Close() error {
	var errs []error
	for _, ipt := range []Tables{s.v4, s.v6} {
		for _, hook := range hooks {
			if err := ipt.Delete(Table, hook.builtin, "-j", hook.chain); err != nil {
				errs = append(errs, err)
			}
			if err := ipt.ClearAndDeleteChain(Table, hook.chain); err != nil {
				errs = append(errs, err)
			}
		}
	}
	clear(s.entries)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", backend.ErrSessionClose, err)
	}
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("iptables (chains: %s, %s)", ChainIn, ChainOut)
}

func (s *Session) tables(v6 bool) Tables {
	if v6 {
		return s.v6
	}
	return s.v4
}

func classify(err error) error {
	reason := backend.ReasonUnknown

	var ierr *iptables.Error
	if errors.As(err, &ierr) {
		msg := strings.ToLower(ierr.Error())
		switch {
		case strings.Contains(msg, "permission denied"):
			reason = backend.ReasonAccessDenied
		case ierr.IsNotExist():
			reason = backend.ReasonNotFound
		case strings.Contains(msg, "already exists"):
			reason = backend.ReasonAlreadyExists
		case ierr.ExitStatus() == 2:
			reason = backend.ReasonInvalidParameter
		}
	}

	return &backend.SubmitError{Reason: reason, Err: err}
}
