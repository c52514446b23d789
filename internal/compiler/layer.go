/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package compiler

import (
	"slices"
	"strings"

	"github.com/tschaefer/filterctl/internal/rule"
)

// Layer is an enforcement point of the filtering engine.
type Layer int

const (
	LayerUnknown Layer = iota
	LayerALEAuthConnectV4
	LayerALEAuthConnectV6
	LayerALEAuthRecvAcceptV4
	LayerALEAuthRecvAcceptV6
	LayerOutboundIPPacketV4
	LayerOutboundIPPacketV6
	LayerInboundIPPacketV4
	LayerInboundIPPacketV6
)

var Layers = []Layer{
	LayerALEAuthConnectV4,
	LayerALEAuthConnectV6,
	LayerALEAuthRecvAcceptV4,
	LayerALEAuthRecvAcceptV6,
	LayerOutboundIPPacketV4,
	LayerOutboundIPPacketV6,
	LayerInboundIPPacketV4,
	LayerInboundIPPacketV6,
}

func (l Layer) String() string {
	switch l {
	case LayerALEAuthConnectV4:
		return "ALE_AUTH_CONNECT_V4"
	case LayerALEAuthConnectV6:
		return "ALE_AUTH_CONNECT_V6"
	case LayerALEAuthRecvAcceptV4:
		return "ALE_AUTH_RECV_ACCEPT_V4"
	case LayerALEAuthRecvAcceptV6:
		return "ALE_AUTH_RECV_ACCEPT_V6"
	case LayerOutboundIPPacketV4:
		return "OUTBOUND_IPPACKET_V4"
	case LayerOutboundIPPacketV6:
		return "OUTBOUND_IPPACKET_V6"
	case LayerInboundIPPacketV4:
		return "INBOUND_IPPACKET_V4"
	case LayerInboundIPPacketV6:
		return "INBOUND_IPPACKET_V6"
	default:
		return "UNKNOWN_LAYER"
	}
}

func (l Layer) Family() Family {
	switch l {
	case LayerALEAuthConnectV6, LayerALEAuthRecvAcceptV6, LayerOutboundIPPacketV6, LayerInboundIPPacketV6:
		return FamilyIPv6
	default:
		return FamilyIPv4
	}
}

// IsApplication reports whether the layer can attribute traffic to a process.
func (l Layer) IsApplication() bool {
	switch l {
	case LayerALEAuthConnectV4, LayerALEAuthConnectV6, LayerALEAuthRecvAcceptV4, LayerALEAuthRecvAcceptV6:
		return true
	default:
		return false
	}
}

// IsOutbound reports whether the layer sees locally originated traffic.
// On outbound layers the local side is the packet source.
func (l Layer) IsOutbound() bool {
	switch l {
	case LayerALEAuthConnectV4, LayerALEAuthConnectV6, LayerOutboundIPPacketV4, LayerOutboundIPPacketV6:
		return true
	default:
		return false
	}
}

type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

func (f Family) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// DetectFamily treats a rule as IPv6 if its local or remote address contains
// a colon. A rule without addresses is IPv4.
func DetectFamily(r *rule.Rule) Family {
	if strings.Contains(r.Local, ":") || strings.Contains(r.Remote, ":") {
		return FamilyIPv6
	}
	return FamilyIPv4
}

type selector struct {
	application bool
	direction   rule.Direction
	family      Family
}

var layerTable = map[selector][]Layer{
	{true, rule.DirectionOutbound, FamilyIPv4}: {LayerALEAuthConnectV4},
	{true, rule.DirectionOutbound, FamilyIPv6}: {LayerALEAuthConnectV6},
	{true, rule.DirectionInbound, FamilyIPv4}:  {LayerALEAuthRecvAcceptV4},
	{true, rule.DirectionInbound, FamilyIPv6}:  {LayerALEAuthRecvAcceptV6},
	{true, rule.DirectionBoth, FamilyIPv4}:     {LayerALEAuthConnectV4, LayerALEAuthRecvAcceptV4},
	{true, rule.DirectionBoth, FamilyIPv6}:     {LayerALEAuthConnectV6, LayerALEAuthRecvAcceptV6},

	{false, rule.DirectionOutbound, FamilyIPv4}: {LayerOutboundIPPacketV4},
	{false, rule.DirectionOutbound, FamilyIPv6}: {LayerOutboundIPPacketV6},
	{false, rule.DirectionInbound, FamilyIPv4}:  {LayerInboundIPPacketV4},
	{false, rule.DirectionInbound, FamilyIPv6}:  {LayerInboundIPPacketV6},
	{false, rule.DirectionBoth, FamilyIPv4}:     {LayerOutboundIPPacketV4, LayerInboundIPPacketV4},
	{false, rule.DirectionBoth, FamilyIPv6}:     {LayerOutboundIPPacketV6, LayerInboundIPPacketV6},
}

// Select returns the layers a rule has to be installed on. A rule with an
// application path goes to the connection authorization layers, any other
// rule to the IP packet layers. Unknown directions yield nil.
func Select(r *rule.Rule) []Layer {
	key := selector{
		application: r.AppPath != "",
		direction:   r.Direction,
		family:      DetectFamily(r),
	}
	return slices.Clone(layerTable[key])
}
