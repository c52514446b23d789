//go:build linux

/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package flows

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/mdlayher/netlink"
	"github.com/ti-mo/conntrack"
	"github.com/ti-mo/netfilter"

	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

// Conn is the part of a conntrack connection the terminator uses.
type Conn interface {
	Dump(opts *conntrack.DumpOptions) ([]conntrack.Flow, error)
	Delete(f conntrack.Flow) error
	Close() error
}

// Terminator deletes tracked flows matched by installed block filters,
// so connections established before the filter do not outlive it.
type Terminator struct {
	mu     sync.Mutex
	conn   Conn
	logger *slog.Logger
	units  map[rule.FilterID]compiler.Unit
}

func New(logger *slog.Logger) (*Terminator, error) {
	con, err := conntrack.Dial(nil)
	if err != nil {
		logger.Error("Failed to dial conntrack.", "error", err)
		return nil, err
	}

	if err := con.SetOption(netlink.ExtendedAcknowledge, true); err != nil {
		_ = con.Close()
		logger.Error("Failed to set conntrack options.", "error", err)
		return nil, err
	}

	return NewWithConn(con, logger), nil
}

func NewWithConn(conn Conn, logger *slog.Logger) *Terminator {
	return &Terminator{
		conn:   conn,
		logger: logger,
		units:  make(map[rule.FilterID]compiler.Unit),
	}
}

func (t *Terminator) Installed(r *rule.Rule, unit compiler.Unit, id rule.FilterID) {
	if !Terminable(unit) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.units[id] = unit

	flows, err := t.conn.Dump(nil)
	if err != nil {
		t.logger.Warn("Failed to dump conntrack flows.", "rule", r.Name, "error", err)
		return
	}

	count := 0
	for _, flow := range flows {
		if Match(unit, flow) && t.terminate(flow, id) {
			count++
		}
	}
	if count > 0 {
		t.logger.Info("Terminated flows.", "rule", r.Name, "id", uint64(id), "flows", count)
	}
}

func (t *Terminator) Failed(r *rule.Rule, layer compiler.Layer, err error) {}

func (t *Terminator) Rejected(r *rule.Rule, err error) {}

func (t *Terminator) Removed(id rule.FilterID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.units, id)
}

// Watch listens for new conntrack flows until ctx is done and terminates
// those matched by a unit still installed.
func (t *Terminator) Watch(ctx context.Context) error {
	con, err := conntrack.Dial(nil)
	if err != nil {
		t.logger.Error("Failed to dial conntrack.", "error", err)
		return err
	}
	defer func() {
		_ = con.Close()
	}()

	if err := con.SetOption(netlink.ListenAllNSID|netlink.NoENOBUFS, true); err != nil {
		t.logger.Error("Failed to set conntrack listen options.", "error", err)
		return err
	}

	evCh := make(chan conntrack.Event, 1024)
	errCh, err := con.Listen(evCh, 1, netfilter.GroupsCT)
	if err != nil {
		t.logger.Error("Failed to listen to conntrack events.", "error", err)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil {
				t.logger.Error("Conntrack listener error.", "error", err)
			}
			return err
		case event := <-evCh:
			if event.Type != conntrack.EventNew || event.Flow == nil {
				continue
			}
			t.enforce(*event.Flow)
		}
	}
}

func (t *Terminator) enforce(flow conntrack.Flow) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, unit := range t.units {
		if Match(unit, flow) {
			t.terminate(flow, id)
			return
		}
	}
}

func (t *Terminator) terminate(flow conntrack.Flow, id rule.FilterID) bool {
	if err := t.conn.Delete(flow); err != nil {
		t.logger.Debug("Failed to delete conntrack flow.", "flow", flow.ID, "error", err)
		return false
	}
	t.logger.Debug("Flow terminated.",
		"id", uint64(id), "flow", flow.ID,
		"src_addr", flow.TupleOrig.IP.SourceAddress.String(),
		"dst_addr", flow.TupleOrig.IP.DestinationAddress.String(),
	)
	return true
}

func (t *Terminator) Close() error {
	return t.conn.Close()
}

// Match reports whether a flow's original tuple satisfies every condition of
// a unit. The unit's layer decides which side of the tuple is local.
func Match(unit compiler.Unit, flow conntrack.Flow) bool {
	if !Terminable(unit) {
		return false
	}

	tuple := flow.TupleOrig
	if tuple.IP.SourceAddress.Is4() != (unit.Layer.Family() == compiler.FamilyIPv4) {
		return false
	}

	local, remote := tuple.IP.DestinationAddress, tuple.IP.SourceAddress
	localPort, remotePort := tuple.Proto.DestinationPort, tuple.Proto.SourcePort
	if unit.Layer.IsOutbound() {
		local, remote = remote, local
		localPort, remotePort = remotePort, localPort
	}

	for _, c := range unit.Conditions {
		var ok bool
		switch c.Field {
		case compiler.FieldLocalAddress:
			ok = matchAddr(c, local)
		case compiler.FieldRemoteAddress:
			ok = matchAddr(c, remote)
		case compiler.FieldLocalPort:
			ok = matchPort(c, localPort)
		case compiler.FieldRemotePort:
			ok = matchPort(c, remotePort)
		case compiler.FieldProtocol:
			v, isProto := c.Value.(uint8)
			ok = isProto && v == tuple.Proto.Protocol
		}
		if !ok {
			return false
		}
	}

	return true
}

func matchAddr(c compiler.Condition, addr netip.Addr) bool {
	switch v := c.Value.(type) {
	case netip.Addr:
		return v == addr
	case compiler.AddrRange:
		return v.Low.Compare(addr) <= 0 && addr.Compare(v.High) <= 0
	}
	return false
}

func matchPort(c compiler.Condition, port uint16) bool {
	switch v := c.Value.(type) {
	case uint16:
		return v == port
	case rule.PortRange:
		return v.Start <= port && port <= v.End
	}
	return false
}
