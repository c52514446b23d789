//go:build linux

/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package nft

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/nftables"
	"golang.org/x/sys/unix"

	"github.com/tschaefer/filterctl/internal/backend"
	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

const (
	TableName  = "filterctl"
	tagPrefix  = "filterctl:"
	chainIn    = "input"
	chainOut   = "output"
	backendTag = "nftables"
)

// Conn is the subset of *nftables.Conn the backend uses.
type Conn interface {
	AddTable(t *nftables.Table) *nftables.Table
	DelTable(t *nftables.Table)
	FlushTable(t *nftables.Table)
	AddChain(c *nftables.Chain) *nftables.Chain
	AddRule(r *nftables.Rule) *nftables.Rule
	InsertRule(r *nftables.Rule) *nftables.Rule
	DelRule(r *nftables.Rule) error
	GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error)
	Flush() error
}

// Backend installs units into the inet table "filterctl". Units of outbound
// layers go to the output chain, inbound ones to the input chain, ordered by
// descending weight.
type Backend struct {
	dial func() (Conn, error)
}

func New() *Backend {
	return &Backend{dial: func() (Conn, error) {
		return nftables.New()
	}}
}

// NewWithConn returns a backend whose sessions use the given connection.
func NewWithConn(conn Conn) *Backend {
	return &Backend{dial: func() (Conn, error) { return conn, nil }}
}

func (b *Backend) Name() string {
	return backendTag
}

func (b *Backend) Open() (backend.Session, error) {
	conn, err := b.dial()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrSessionOpen, err)
	}

	table := conn.AddTable(&nftables.Table{
		Name:   TableName,
		Family: nftables.TableFamilyINet,
	})
	// Rules left behind by a session that never closed carry tags the new
	// session would hand out again.
	conn.FlushTable(table)
	s := &Session{
		conn:  conn,
		table: table,
		input: conn.AddChain(&nftables.Chain{
			Name:     chainIn,
			Table:    table,
			Type:     nftables.ChainTypeFilter,
			Hooknum:  nftables.ChainHookInput,
			Priority: nftables.ChainPriorityFilter,
		}),
		output: conn.AddChain(&nftables.Chain{
			Name:     chainOut,
			Table:    table,
			Type:     nftables.ChainTypeFilter,
			Hooknum:  nftables.ChainHookOutput,
			Priority: nftables.ChainPriorityFilter,
		}),
		chains: make(map[rule.FilterID]*nftables.Chain),
	}

	if err := conn.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrSessionOpen, err)
	}

	return s, nil
}

type Session struct {
	conn   Conn
	table  *nftables.Table
	input  *nftables.Chain
	output *nftables.Chain
	next   rule.FilterID
	chains map[rule.FilterID]*nftables.Chain
}

func (s *Session) Submit(unit compiler.Unit) (rule.FilterID, error) {
	e, err := exprs(unit)
	if err != nil {
		return 0, err
	}

	chain := s.input
	if unit.Layer.IsOutbound() {
		chain = s.output
	}

	existing, err := s.conn.GetRules(s.table, chain)
	if err != nil {
		return 0, classify(err)
	}

	id := s.next + 1
	r := &nftables.Rule{
		Table:    s.table,
		Chain:    chain,
		Exprs:    e,
		UserData: []byte(tag(id, unit.Weight)),
	}
	if pos, ok := position(existing, unit.Weight); ok {
		r.Position = pos
		s.conn.InsertRule(r)
	} else {
		s.conn.AddRule(r)
	}

	if err := s.conn.Flush(); err != nil {
		return 0, classify(err)
	}

	s.next = id
	s.chains[id] = chain
	return id, nil
}

func (s *Session) Delete(id rule.FilterID) error {
	chain, ok := s.chains[id]
	if !ok {
		return fmt.Errorf("%w: %d not installed by this session", backend.ErrDelete, id)
	}

	rules, err := s.conn.GetRules(s.table, chain)
	if err != nil {
		return fmt.Errorf("%w: %w", backend.ErrDelete, err)
	}
	for _, r := range rules {
		if ruleID, _, ok := parseTag(r.UserData); ok && ruleID == id {
			if err := s.conn.DelRule(r); err != nil {
				return fmt.Errorf("%w: %w", backend.ErrDelete, err)
			}
			if err := s.conn.Flush(); err != nil {
				return fmt.Errorf("%w: %w", backend.ErrDelete, err)
			}
			delete(s.chains, id)
			return nil
		}
	}

	return fmt.Errorf("%w: %d not found in chain %s", backend.ErrDelete, id, chain.Name)
}

// Close removes the table with every rule left in it.
func (s *Session) Close() error {
	s.conn.DelTable(s.table)
	if err := s.conn.Flush(); err != nil {
		return fmt.Errorf("%w: %w", backend.ErrSessionClose, err)
	}
	clear(s.chains)
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("nftables (table: inet %s)", TableName)
}

// position returns the handle of the first rule with a lower weight. A new
// rule inserted before it keeps the chain ordered by descending weight.
func position(rules []*nftables.Rule, weight uint64) (uint64, bool) {
	for _, r := range rules {
		_, w, ok := parseTag(r.UserData)
		if ok && w < weight {
			return r.Handle, true
		}
	}
	return 0, false
}

func tag(id rule.FilterID, weight uint64) string {
	return fmt.Sprintf("%s%d:%d", tagPrefix, id, weight)
}

func parseTag(data []byte) (rule.FilterID, uint64, bool) {
	rest, ok := strings.CutPrefix(string(data), tagPrefix)
	if !ok {
		return 0, 0, false
	}
	idText, weightText, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(idText, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	weight, err := strconv.ParseUint(weightText, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return rule.FilterID(id), weight, true
}

func classify(err error) error {
	reason := backend.ReasonUnknown
	switch {
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		reason = backend.ReasonAccessDenied
	case errors.Is(err, unix.EINVAL):
		reason = backend.ReasonInvalidParameter
	case errors.Is(err, unix.EOPNOTSUPP):
		reason = backend.ReasonNotSupported
	case errors.Is(err, unix.EEXIST):
		reason = backend.ReasonAlreadyExists
	case errors.Is(err, unix.ENOENT):
		reason = backend.ReasonNotFound
	}
	return &backend.SubmitError{Reason: reason, Err: err}
}
