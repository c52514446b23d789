//go:build windows

/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package wfp

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/tailscale/wf"
	"golang.org/x/sys/windows"

	"github.com/tschaefer/filterctl/internal/backend"
	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

// UniversalSublayer is FWPM_SUBLAYER_UNIVERSAL.
var UniversalSublayer = wf.SublayerID{
	Data1: 0xeebecc03,
	Data2: 0xced4,
	Data3: 0x4380,
	Data4: [8]byte{0x81, 0x9a, 0x27, 0x34, 0x39, 0x7b, 0x2b, 0x74},
}

var layers = map[compiler.Layer]wf.LayerID{
	compiler.LayerALEAuthConnectV4:    wf.LayerALEAuthConnectV4,
	compiler.LayerALEAuthConnectV6:    wf.LayerALEAuthConnectV6,
	compiler.LayerALEAuthRecvAcceptV4: wf.LayerALEAuthRecvAcceptV4,
	compiler.LayerALEAuthRecvAcceptV6: wf.LayerALEAuthRecvAcceptV6,
	compiler.LayerOutboundIPPacketV4:  wf.LayerOutboundIPPacketV4,
	compiler.LayerOutboundIPPacketV6:  wf.LayerOutboundIPPacketV6,
	compiler.LayerInboundIPPacketV4:   wf.LayerInboundIPPacketV4,
	compiler.LayerInboundIPPacketV6:   wf.LayerInboundIPPacketV6,
}

var fields = map[compiler.Field]wf.FieldID{
	compiler.FieldAppID:         wf.FieldALEAppID,
	compiler.FieldLocalAddress:  wf.FieldIPLocalAddress,
	compiler.FieldRemoteAddress: wf.FieldIPRemoteAddress,
	compiler.FieldLocalPort:     wf.FieldIPLocalPort,
	compiler.FieldRemotePort:    wf.FieldIPRemotePort,
	compiler.FieldProtocol:      wf.FieldIPProtocol,
}

type Options struct {
	Name        string
	Description string

	// ResolveAppID matches applications by the NT device path that
	// FwpmGetAppIdFromFileName0 derives from the executable path, instead of
	// the path blob built by the compiler.
	ResolveAppID bool
}

// Backend opens dynamic WFP sessions, every filter added by a session is
// removed by the engine when the session ends.
type Backend struct {
	opts Options
}

func New(opts Options) *Backend {
	if opts.Name == "" {
		opts.Name = "filterctl"
	}
	if opts.Description == "" {
		opts.Description = "filterctl traffic filters"
	}
	return &Backend{opts: opts}
}

func (b *Backend) Name() string {
	return "wfp"
}

func (b *Backend) Open() (backend.Session, error) {
	session, err := wf.New(&wf.Options{
		Name:        b.opts.Name,
		Description: b.opts.Description,
		Dynamic:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrSessionOpen, err)
	}

	return &Session{
		session: session,
		opts:    b.opts,
		rules:   make(map[rule.FilterID]wf.RuleID),
	}, nil
}

type Session struct {
	session *wf.Session
	opts    Options
	next    rule.FilterID
	rules   map[rule.FilterID]wf.RuleID
}

func (s *Session) Submit(unit compiler.Unit) (rule.FilterID, error) {
	r, err := convert(unit, s.opts.ResolveAppID)
	if err != nil {
		return 0, err
	}

	guid, err := windows.GenerateGUID()
	if err != nil {
		return 0, &backend.SubmitError{Reason: backend.ReasonUnknown, Err: err}
	}
	r.ID = wf.RuleID(guid)

	if err := s.session.AddRule(r); err != nil {
		return 0, classify(err)
	}

	s.next++
	s.rules[s.next] = r.ID
	return s.next, nil
}

func (s *Session) Delete(id rule.FilterID) error {
	ruleID, ok := s.rules[id]
	if !ok {
		return fmt.Errorf("%w: %d not installed by this session", backend.ErrDelete, id)
	}
	if err := s.session.DeleteRule(ruleID); err != nil {
		return fmt.Errorf("%w: %w", backend.ErrDelete, err)
	}
	delete(s.rules, id)
	return nil
}

func (s *Session) Close() error {
	clear(s.rules)
	if err := s.session.Close(); err != nil {
		return fmt.Errorf("%w: %w", backend.ErrSessionClose, err)
	}
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("wfp (session: %s, dynamic)", s.opts.Name)
}

// convert builds the WFP rule for a unit, the ID is left to the caller.
func convert(unit compiler.Unit, resolveAppID bool) (*wf.Rule, error) {
	layer, ok := layers[unit.Layer]
	if !ok {
		return nil, &backend.SubmitError{Reason: backend.ReasonNotFound, Err: fmt.Errorf("layer %s", unit.Layer)}
	}

	r := &wf.Rule{
		Name:        unit.Name,
		Description: unit.Description,
		Layer:       layer,
		Sublayer:    UniversalSublayer,
		Weight:      unit.Weight,
		Action:      wf.ActionBlock,
	}
	if unit.Action == rule.ActionAllow {
		r.Action = wf.ActionPermit
	}

	for _, c := range unit.Conditions {
		m, err := match(c, resolveAppID)
		if err != nil {
			return nil, err
		}
		r.Conditions = append(r.Conditions, m)
	}

	return r, nil
}

func match(c compiler.Condition, resolveAppID bool) (*wf.Match, error) {
	field, ok := fields[c.Field]
	if !ok {
		return nil, invalid("field %s", c.Field)
	}
	m := &wf.Match{Field: field, Op: wf.MatchTypeEqual}

	switch v := c.Value.(type) {
	case *compiler.AppIdentity:
		if resolveAppID {
			appID, err := wf.AppID(v.Path)
			if err != nil {
				return nil, &backend.SubmitError{Reason: backend.ReasonNotFound, Err: err}
			}
			m.Value = appID
		} else {
			// wf encodes string values as the same NUL terminated UTF-16 blob.
			m.Value = v.Path
		}
	case netip.Addr:
		m.Value = v
	case compiler.AddrRange:
		m.Op = wf.MatchTypeRange
		m.Value = wf.Range{From: v.Low, To: v.High}
	case uint16:
		m.Value = v
	case rule.PortRange:
		m.Op = wf.MatchTypeRange
		m.Value = wf.Range{From: v.Start, To: v.End}
	case uint8:
		m.Value = v
	default:
		return nil, invalid("value %v for %s", c.Value, c.Field)
	}

	return m, nil
}

func classify(err error) error {
	reason := backend.ReasonUnknown
	switch {
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		reason = backend.ReasonAccessDenied
	case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
		reason = backend.ReasonInvalidParameter
	case errors.Is(err, windows.ERROR_NOT_SUPPORTED):
		reason = backend.ReasonNotSupported
	case errors.Is(err, windows.ERROR_ALREADY_EXISTS):
		reason = backend.ReasonAlreadyExists
	case errors.Is(err, windows.ERROR_NOT_FOUND):
		reason = backend.ReasonNotFound
	}
	return &backend.SubmitError{Reason: reason, Err: err}
}

func invalid(format string, args ...any) error {
	return &backend.SubmitError{Reason: backend.ReasonInvalidParameter, Err: fmt.Errorf("wfp: "+format, args...)}
}
