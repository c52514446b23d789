/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package rule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tschaefer/filterctl/internal/address"
)

// DefaultPriority is used by NewWithParams when no priority is given.
const DefaultPriority uint32 = 200

// FilterID is the opaque identifier a backend returns for an installed filter.
type FilterID uint64

// Direction of the traffic a rule applies to
type Direction int

const (
	DirectionBoth Direction = iota
	DirectionInbound
	DirectionOutbound
)

var Directions = []string{"inbound", "outbound", "both"}

func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "inbound"
	case DirectionOutbound:
		return "outbound"
	case DirectionBoth:
		return "both"
	default:
		return "unknown"
	}
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "inbound", "in":
		return DirectionInbound, nil
	case "outbound", "out":
		return DirectionOutbound, nil
	case "both":
		return DirectionBoth, nil
	}
	return DirectionBoth, fmt.Errorf("unknown direction: %q", s)
}

// Action taken when all conditions of a rule match
type Action int

const (
	ActionBlock Action = iota
	ActionAllow
)

func (a Action) String() string {
	switch a {
	case ActionBlock:
		return "block"
	case ActionAllow:
		return "allow"
	default:
		return "unknown"
	}
}

// Protocol is the IP protocol number, ProtocolAny leaves it unmatched.
type Protocol uint8

const (
	ProtocolAny Protocol = 0
	ProtocolTCP Protocol = 6
	ProtocolUDP Protocol = 17
)

var Protocols = []string{"tcp", "udp"}

func (p Protocol) String() string {
	switch p {
	case ProtocolAny:
		return "any"
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	default:
		return fmt.Sprintf("proto(%d)", uint8(p))
	}
}

func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return ProtocolTCP, nil
	case "udp":
		return ProtocolUDP, nil
	}
	return ProtocolAny, fmt.Errorf("unknown protocol: %q", s)
}

// PortRange is an inclusive port range. The zero value means unset.
type PortRange struct {
	Start uint16
	End   uint16
}

func (r PortRange) IsSet() bool {
	return r.End != 0
}

func (r PortRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

var ErrUnresolvableAddress = errors.New("unresolvable IP address")

type UnresolvableAddressError struct {
	Field string
	Value string
}

func (e *UnresolvableAddressError) Error() string {
	return fmt.Sprintf("unresolvable %s address: %q", e.Field, e.Value)
}

func (e *UnresolvableAddressError) Is(target error) bool {
	return target == ErrUnresolvableAddress
}

// Rule describes one filtering intent.
//
// Empty strings, zero ports, unset port ranges and ProtocolAny mean the
// field does not take part in matching. When a side has both a port and a
// port range the single port wins.
type Rule struct {
	Name            string
	AppPath         string
	Local           string
	Remote          string
	LocalPort       uint16
	RemotePort      uint16
	LocalPortRange  PortRange
	RemotePortRange PortRange
	Protocol        Protocol
	Direction       Direction
	Action          Action
	Priority        uint32
	Description     string

	// InstalledIDs is filled by the engine after successful submission.
	InstalledIDs []FilterID
}

// Params holds the optional fields of NewWithParams.
type Params struct {
	AppPath         string
	Local           string
	Remote          string
	LocalPort       uint16
	RemotePort      uint16
	LocalPortRange  PortRange
	RemotePortRange PortRange
	Protocol        Protocol
	Direction       Direction
	Action          Action
	Priority        *uint32
	Description     string
}

// New returns a rule that blocks both directions with priority 0.
func New(name string) *Rule {
	return &Rule{
		Name:      name,
		Direction: DirectionBoth,
		Action:    ActionBlock,
	}
}

// NewWithParams returns a rule with every field given, priority defaults
// to DefaultPriority.
func NewWithParams(name string, p Params) *Rule {
	priority := DefaultPriority
	if p.Priority != nil {
		priority = *p.Priority
	}

	return &Rule{
		Name:            name,
		AppPath:         p.AppPath,
		Local:           p.Local,
		Remote:          p.Remote,
		LocalPort:       p.LocalPort,
		RemotePort:      p.RemotePort,
		LocalPortRange:  p.LocalPortRange,
		RemotePortRange: p.RemotePortRange,
		Protocol:        p.Protocol,
		Direction:       p.Direction,
		Action:          p.Action,
		Priority:        priority,
		Description:     p.Description,
	}
}

func (r *Rule) SetAppPath(path string)           { r.AppPath = path }
func (r *Rule) SetLocal(addr string)             { r.Local = addr }
func (r *Rule) SetRemote(addr string)            { r.Remote = addr }
func (r *Rule) SetLocalPort(port uint16)         { r.LocalPort = port }
func (r *Rule) SetRemotePort(port uint16)        { r.RemotePort = port }
func (r *Rule) SetLocalPortRange(pr PortRange)   { r.LocalPortRange = pr }
func (r *Rule) SetRemotePortRange(pr PortRange)  { r.RemotePortRange = pr }
func (r *Rule) SetProtocol(protocol Protocol)    { r.Protocol = protocol }
func (r *Rule) SetDirection(direction Direction) { r.Direction = direction }
func (r *Rule) SetAction(action Action)          { r.Action = action }
func (r *Rule) SetPriority(priority uint32)      { r.Priority = priority }
func (r *Rule) SetDescription(text string)       { r.Description = text }

// Validate checks that local and remote addresses resolve to an address
// or a CIDR range. Nothing else is checked.
func (r *Rule) Validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"remote", r.Remote},
		{"local", r.Local},
	} {
		if field.value == "" {
			continue
		}
		if _, _, err := address.ParseAddrOrRange(field.value); err != nil {
			return &UnresolvableAddressError{Field: field.name, Value: field.value}
		}
	}

	return nil
}

// LocalPorts returns the effective local port match: a single port as a
// one element range, the configured range, or false if neither is set.
func (r *Rule) LocalPorts() (PortRange, bool) {
	return effectivePorts(r.LocalPort, r.LocalPortRange)
}

// RemotePorts is LocalPorts for the remote side.
func (r *Rule) RemotePorts() (PortRange, bool) {
	return effectivePorts(r.RemotePort, r.RemotePortRange)
}

func effectivePorts(port uint16, pr PortRange) (PortRange, bool) {
	if port != 0 {
		return PortRange{Start: port, End: port}, true
	}
	if pr.IsSet() {
		return pr, true
	}
	return PortRange{}, false
}

func (r *Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", r.Action, r.Direction)
	if r.Name != "" {
		fmt.Fprintf(&b, " name %q", r.Name)
	}
	if r.AppPath != "" {
		fmt.Fprintf(&b, " app %q", r.AppPath)
	}
	if r.Local != "" {
		fmt.Fprintf(&b, " local address %s", r.Local)
	}
	if r.Remote != "" {
		fmt.Fprintf(&b, " remote address %s", r.Remote)
	}
	if pr, ok := r.LocalPorts(); ok {
		fmt.Fprintf(&b, " local port %s", formatPorts(pr))
	}
	if pr, ok := r.RemotePorts(); ok {
		fmt.Fprintf(&b, " remote port %s", formatPorts(pr))
	}
	if r.Protocol != ProtocolAny {
		fmt.Fprintf(&b, " protocol %s", strings.ToLower(r.Protocol.String()))
	}
	fmt.Fprintf(&b, " priority %d", r.Priority)
	return b.String()
}

func formatPorts(pr PortRange) string {
	if pr.Start == pr.End {
		return fmt.Sprintf("%d", pr.Start)
	}
	return pr.String()
}
