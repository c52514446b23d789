//go:build linux

/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package nft

import (
	"fmt"
	"net/netip"

	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"github.com/tschaefer/filterctl/internal/backend"
	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

const (
	// IPv4 header offsets (RFC 791)
	ipv4SrcOffset = 12
	ipv4DstOffset = 16
	ipv4AddrLen   = 4

	// IPv6 header offsets (RFC 8200)
	ipv6SrcOffset = 8
	ipv6DstOffset = 24
	ipv6AddrLen   = 16

	// TCP and UDP share the port layout
	srcPortOffset = 0
	dstPortOffset = 2
	portLen       = 2
)

// exprs translates a unit into nftables expressions. Local means source on
// outbound layers and destination on inbound layers.
func exprs(unit compiler.Unit) ([]expr.Any, error) {
	family := unit.Layer.Family()
	outbound := unit.Layer.IsOutbound()

	nfproto := byte(unix.NFPROTO_IPV4)
	if family == compiler.FamilyIPv6 {
		nfproto = byte(unix.NFPROTO_IPV6)
	}
	out := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{nfproto}},
	}

	hasProtocol := false
	for _, c := range unit.Conditions {
		if c.Field == compiler.FieldProtocol {
			hasProtocol = true
		}
	}

	for _, c := range unit.Conditions {
		switch c.Field {
		case compiler.FieldAppID:
			return nil, unsupported("application identity")
		case compiler.FieldLocalAddress, compiler.FieldRemoteAddress:
			src := (c.Field == compiler.FieldLocalAddress) == outbound
			e, err := addressExprs(c, family, src)
			if err != nil {
				return nil, err
			}
			out = append(out, e...)
		case compiler.FieldLocalPort, compiler.FieldRemotePort:
			if !hasProtocol {
				return nil, unsupported("port match without protocol")
			}
			src := (c.Field == compiler.FieldLocalPort) == outbound
			e, err := portExprs(c, src)
			if err != nil {
				return nil, err
			}
			out = append(out, e...)
		case compiler.FieldProtocol:
			proto, ok := c.Value.(uint8)
			if !ok {
				return nil, invalid("protocol value %v", c.Value)
			}
			out = append(out,
				&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
				&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{proto}},
			)
		default:
			return nil, invalid("field %s", c.Field)
		}
	}

	verdict := expr.VerdictDrop
	if unit.Action == rule.ActionAllow {
		verdict = expr.VerdictAccept
	}
	out = append(out, &expr.Counter{}, &expr.Verdict{Kind: verdict})

	return out, nil
}

func addressExprs(c compiler.Condition, family compiler.Family, src bool) ([]expr.Any, error) {
	load := &expr.Payload{
		DestRegister: 1,
		Base:         expr.PayloadBaseNetworkHeader,
	}
	if family == compiler.FamilyIPv6 {
		load.Len = ipv6AddrLen
		load.Offset = ipv6DstOffset
		if src {
			load.Offset = ipv6SrcOffset
		}
	} else {
		load.Len = ipv4AddrLen
		load.Offset = ipv4DstOffset
		if src {
			load.Offset = ipv4SrcOffset
		}
	}

	switch v := c.Value.(type) {
	case netip.Addr:
		if err := sameFamily(v, family); err != nil {
			return nil, err
		}
		return []expr.Any{
			load,
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: v.AsSlice()},
		}, nil
	case compiler.AddrRange:
		if err := sameFamily(v.Low, family); err != nil {
			return nil, err
		}
		return []expr.Any{
			load,
			&expr.Range{Op: expr.CmpOpEq, Register: 1, FromData: v.Low.AsSlice(), ToData: v.High.AsSlice()},
		}, nil
	default:
		return nil, invalid("address value %v", c.Value)
	}
}

func portExprs(c compiler.Condition, src bool) ([]expr.Any, error) {
	load := &expr.Payload{
		DestRegister: 1,
		Base:         expr.PayloadBaseTransportHeader,
		Offset:       dstPortOffset,
		Len:          portLen,
	}
	if src {
		load.Offset = srcPortOffset
	}

	switch v := c.Value.(type) {
	case uint16:
		return []expr.Any{
			load,
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: binaryutil.BigEndian.PutUint16(v)},
		}, nil
	case rule.PortRange:
		return []expr.Any{
			load,
			&expr.Range{
				Op:       expr.CmpOpEq,
				Register: 1,
				FromData: binaryutil.BigEndian.PutUint16(v.Start),
				ToData:   binaryutil.BigEndian.PutUint16(v.End),
			},
		}, nil
	default:
		return nil, invalid("port value %v", c.Value)
	}
}

func sameFamily(addr netip.Addr, family compiler.Family) error {
	if addr.Is6() != (family == compiler.FamilyIPv6) {
		return invalid("address %s on %s layer", addr, family)
	}
	return nil
}

func unsupported(what string) error {
	return &backend.SubmitError{Reason: backend.ReasonNotSupported, Err: fmt.Errorf("nftables: %s", what)}
}

func invalid(format string, args ...any) error {
	return &backend.SubmitError{Reason: backend.ReasonInvalidParameter, Err: fmt.Errorf("nftables: "+format, args...)}
}
