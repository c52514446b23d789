//go:build linux

/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package flows

import (
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ti-mo/conntrack"

	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

type fakeConn struct {
	flows   []conntrack.Flow
	deleted []conntrack.Flow
	dumpErr error
}

func (c *fakeConn) Dump(opts *conntrack.DumpOptions) ([]conntrack.Flow, error) {
	return c.flows, c.dumpErr
}

func (c *fakeConn) Delete(f conntrack.Flow) error {
	c.deleted = append(c.deleted, f)
	return nil
}

func (c *fakeConn) Close() error {
	return nil
}

func __flow(proto uint8, src, dst string, sport, dport uint16) conntrack.Flow {
	return conntrack.NewFlow(
		proto,
		conntrack.StatusAssured,
		netip.MustParseAddr(src),
		netip.MustParseAddr(dst),
		sport, dport,
		59, 0,
	)
}

func __outboundUnit(conditions ...compiler.Condition) compiler.Unit {
	return compiler.Unit{
		Layer:      compiler.LayerOutboundIPPacketV4,
		Action:     rule.ActionBlock,
		Conditions: conditions,
	}
}

func TestMatch(t *testing.T) {
	remote := compiler.Condition{
		Field: compiler.FieldRemoteAddress, Match: compiler.MatchEqual,
		Value: netip.MustParseAddr("93.184.216.34"),
	}
	remoteRange := compiler.Condition{
		Field: compiler.FieldRemoteAddress, Match: compiler.MatchRange,
		Value: compiler.AddrRange{Low: netip.MustParseAddr("10.0.0.0"), High: netip.MustParseAddr("10.255.255.255")},
	}
	remotePort := compiler.Condition{Field: compiler.FieldRemotePort, Match: compiler.MatchEqual, Value: uint16(443)}
	localPorts := compiler.Condition{
		Field: compiler.FieldLocalPort, Match: compiler.MatchRange,
		Value: rule.PortRange{Start: 8000, End: 8080},
	}
	tcp := compiler.Condition{Field: compiler.FieldProtocol, Match: compiler.MatchEqual, Value: uint8(syscall.IPPROTO_TCP)}

	tests := []struct {
		name string
		unit compiler.Unit
		flow conntrack.Flow
		want bool
	}{
		{
			name: "outbound remote address is destination",
			unit: __outboundUnit(remote, remotePort, tcp),
			flow: __flow(syscall.IPPROTO_TCP, "192.168.1.10", "93.184.216.34", 50000, 443),
			want: true,
		},
		{
			name: "outbound other destination",
			unit: __outboundUnit(remote),
			flow: __flow(syscall.IPPROTO_TCP, "192.168.1.10", "1.1.1.1", 50000, 443),
			want: false,
		},
		{
			name: "protocol mismatch",
			unit: __outboundUnit(remote, tcp),
			flow: __flow(syscall.IPPROTO_UDP, "192.168.1.10", "93.184.216.34", 50000, 443),
			want: false,
		},
		{
			name: "address range",
			unit: __outboundUnit(remoteRange),
			flow: __flow(syscall.IPPROTO_UDP, "192.168.1.10", "10.1.2.3", 50000, 53),
			want: true,
		},
		{
			name: "inbound remote address is source",
			unit: compiler.Unit{
				Layer: compiler.LayerInboundIPPacketV4, Action: rule.ActionBlock,
				Conditions: []compiler.Condition{remoteRange, localPorts},
			},
			flow: __flow(syscall.IPPROTO_TCP, "10.9.9.9", "192.168.1.10", 40000, 8008),
			want: true,
		},
		{
			name: "inbound local port out of range",
			unit: compiler.Unit{
				Layer: compiler.LayerInboundIPPacketV4, Action: rule.ActionBlock,
				Conditions: []compiler.Condition{localPorts},
			},
			flow: __flow(syscall.IPPROTO_TCP, "10.9.9.9", "192.168.1.10", 40000, 9000),
			want: false,
		},
		{
			name: "family mismatch",
			unit: compiler.Unit{Layer: compiler.LayerOutboundIPPacketV6, Action: rule.ActionBlock},
			flow: __flow(syscall.IPPROTO_TCP, "192.168.1.10", "1.1.1.1", 50000, 443),
			want: false,
		},
		{
			name: "allow unit never matches",
			unit: compiler.Unit{Layer: compiler.LayerOutboundIPPacketV4, Action: rule.ActionAllow},
			flow: __flow(syscall.IPPROTO_TCP, "192.168.1.10", "1.1.1.1", 50000, 443),
			want: false,
		},
		{
			name: "application unit never matches",
			unit: compiler.Unit{
				Layer: compiler.LayerALEAuthConnectV4, Action: rule.ActionBlock,
				Conditions: []compiler.Condition{
					{Field: compiler.FieldAppID, Match: compiler.MatchEqual, Value: compiler.NewAppIdentity("/usr/bin/curl")},
				},
			},
			flow: __flow(syscall.IPPROTO_TCP, "192.168.1.10", "1.1.1.1", 50000, 443),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run("flows.Match "+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.unit, tt.flow))
		})
	}
}

func installedTerminatesMatchingFlows(t *testing.T) {
	conn := &fakeConn{flows: []conntrack.Flow{
		__flow(syscall.IPPROTO_TCP, "192.168.1.10", "93.184.216.34", 50000, 443),
		__flow(syscall.IPPROTO_TCP, "192.168.1.10", "1.1.1.1", 50001, 443),
	}}
	term := NewWithConn(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))

	unit := __outboundUnit(compiler.Condition{
		Field: compiler.FieldRemoteAddress, Match: compiler.MatchEqual,
		Value: netip.MustParseAddr("93.184.216.34"),
	})
	term.Installed(rule.New("example"), unit, 7)

	assert.Len(t, conn.deleted, 1)
	assert.Equal(t, netip.MustParseAddr("93.184.216.34"), conn.deleted[0].TupleOrig.IP.DestinationAddress)
	assert.Contains(t, term.units, rule.FilterID(7))
}

func installedSkipsAllowUnits(t *testing.T) {
	conn := &fakeConn{flows: []conntrack.Flow{
		__flow(syscall.IPPROTO_TCP, "192.168.1.10", "93.184.216.34", 50000, 443),
	}}
	term := NewWithConn(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))

	term.Installed(rule.New("example"), compiler.Unit{
		Layer: compiler.LayerOutboundIPPacketV4, Action: rule.ActionAllow,
	}, 1)

	assert.Empty(t, conn.deleted)
	assert.Empty(t, term.units)
}

func installedAbsorbsDumpError(t *testing.T) {
	conn := &fakeConn{dumpErr: errors.New("netlink: operation not permitted")}
	term := NewWithConn(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.NotPanics(t, func() {
		term.Installed(rule.New("example"), __outboundUnit(), 1)
	})
	assert.Empty(t, conn.deleted)
}

func enforceUsesTrackedUnits(t *testing.T) {
	conn := &fakeConn{}
	term := NewWithConn(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	term.Installed(rule.New("example"), __outboundUnit(), 3)

	flow := __flow(syscall.IPPROTO_UDP, "192.168.1.10", "8.8.8.8", 50000, 53)
	term.enforce(flow)
	assert.Len(t, conn.deleted, 1)

	term.Removed(3)
	term.enforce(flow)
	assert.Len(t, conn.deleted, 1)
}

func TestTerminator(t *testing.T) {
	t.Run("flows.Installed terminates matching flows", installedTerminatesMatchingFlows)
	t.Run("flows.Installed skips allow units", installedSkipsAllowUnits)
	t.Run("flows.Installed absorbs dump errors", installedAbsorbsDumpError)
	t.Run("flows.enforce uses tracked units", enforceUsesTrackedUnits)
}
