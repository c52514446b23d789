//go:build linux

/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package iptables

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/tschaefer/filterctl/internal/backend"
	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

// ruleSpec converts a unit into iptables arguments. Local means source on
// outbound layers and destination on inbound layers. Port matches need a
// protocol, iptables loads the port match from it.
func ruleSpec(unit compiler.Unit, comment string) ([]string, error) {
	outbound := unit.Layer.IsOutbound()
	v6 := unit.Layer.Family() == compiler.FamilyIPv6

	var protocol, addresses, ports []string
	for _, c := range unit.Conditions {
		switch c.Field {
		case compiler.FieldAppID:
			return nil, unsupported("application identity")
		case compiler.FieldLocalAddress, compiler.FieldRemoteAddress:
			src := (c.Field == compiler.FieldLocalAddress) == outbound
			spec, err := addressSpec(c, v6, src)
			if err != nil {
				return nil, err
			}
			addresses = append(addresses, spec...)
		case compiler.FieldLocalPort, compiler.FieldRemotePort:
			src := (c.Field == compiler.FieldLocalPort) == outbound
			spec, err := portSpec(c, src)
			if err != nil {
				return nil, err
			}
			ports = append(ports, spec...)
		case compiler.FieldProtocol:
			proto, ok := c.Value.(uint8)
			if !ok {
				return nil, invalid("protocol value %v", c.Value)
			}
			protocol = []string{"-p", protocolName(proto)}
		default:
			return nil, invalid("field %s", c.Field)
		}
	}

	if len(ports) > 0 && protocol == nil {
		return nil, unsupported("port match without protocol")
	}

	target := "DROP"
	if unit.Action == rule.ActionAllow {
		target = "ACCEPT"
	}

	spec := append(protocol, addresses...)
	spec = append(spec, ports...)
	spec = append(spec, "-m", "comment", "--comment", comment, "-j", target)
	return spec, nil
}

func addressSpec(c compiler.Condition, v6, src bool) ([]string, error) {
	switch v := c.Value.(type) {
	case netip.Addr:
		if err := sameFamily(v, v6); err != nil {
			return nil, err
		}
		flag := "-d"
		if src {
			flag = "-s"
		}
		return []string{flag, v.String()}, nil
	case compiler.AddrRange:
		if err := sameFamily(v.Low, v6); err != nil {
			return nil, err
		}
		flag := "--dst-range"
		if src {
			flag = "--src-range"
		}
		return []string{"-m", "iprange", flag, v.String()}, nil
	default:
		return nil, invalid("address value %v", c.Value)
	}
}

func portSpec(c compiler.Condition, src bool) ([]string, error) {
	flag := "--dport"
	if src {
		flag = "--sport"
	}

	switch v := c.Value.(type) {
	case uint16:
		return []string{flag, strconv.Itoa(int(v))}, nil
	case rule.PortRange:
		return []string{flag, fmt.Sprintf("%d:%d", v.Start, v.End)}, nil
	default:
		return nil, invalid("port value %v", c.Value)
	}
}

func protocolName(proto uint8) string {
	switch rule.Protocol(proto) {
	case rule.ProtocolTCP:
		return "tcp"
	case rule.ProtocolUDP:
		return "udp"
	default:
		return strconv.Itoa(int(proto))
	}
}

func sameFamily(addr netip.Addr, v6 bool) error {
	if addr.Is6() != v6 {
		return invalid("address %s does not match layer family", addr)
	}
	return nil
}

func unsupported(what string) error {
	return &backend.SubmitError{Reason: backend.ReasonNotSupported, Err: fmt.Errorf("iptables: %s", what)}
}

func invalid(format string, args ...any) error {
	return &backend.SubmitError{Reason: backend.ReasonInvalidParameter, Err: fmt.Errorf("iptables: "+format, args...)}
}
