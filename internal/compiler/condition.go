/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package compiler

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/netip"
	"unicode/utf16"

	"github.com/tschaefer/filterctl/internal/rule"
)

// Field is the traffic property a condition matches on.
type Field int

const (
	FieldAppID Field = iota
	FieldLocalAddress
	FieldRemoteAddress
	FieldLocalPort
	FieldRemotePort
	FieldProtocol
)

func (f Field) String() string {
	switch f {
	case FieldAppID:
		return "ALE_APP_ID"
	case FieldLocalAddress:
		return "IP_LOCAL_ADDRESS"
	case FieldRemoteAddress:
		return "IP_REMOTE_ADDRESS"
	case FieldLocalPort:
		return "IP_LOCAL_PORT"
	case FieldRemotePort:
		return "IP_REMOTE_PORT"
	case FieldProtocol:
		return "IP_PROTOCOL"
	default:
		return "UNKNOWN_FIELD"
	}
}

type Match int

const (
	MatchEqual Match = iota
	MatchRange
)

func (m Match) String() string {
	if m == MatchRange {
		return "range"
	}
	return "equal"
}

// Condition is one match on a unit. Value depends on Field and Match:
//
//	FieldAppID                      *AppIdentity
//	address, MatchEqual             netip.Addr
//	address, MatchRange             AddrRange
//	port, MatchEqual                uint16
//	port, MatchRange                rule.PortRange
//	FieldProtocol                   uint8
type Condition struct {
	Field Field
	Match Match
	Value any
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Match, c.Value)
}

// AddrRange is an inclusive address range.
type AddrRange struct {
	Low  netip.Addr
	High netip.Addr
}

func (r AddrRange) String() string {
	return fmt.Sprintf("%s-%s", r.Low, r.High)
}

// AppIdentity bundles an executable path with the identity blob derived
// from it: the path as UTF-16 little endian, NUL terminated. The blob is
// built once and must not be modified while a unit referencing it is being
// submitted.
type AppIdentity struct {
	Path string
	blob []byte
}

func NewAppIdentity(path string) *AppIdentity {
	units := utf16.Encode([]rune(path))
	units = append(units, 0)

	blob := make([]byte, 0, len(units)*2)
	for _, u := range units {
		blob = binary.LittleEndian.AppendUint16(blob, u)
	}

	return &AppIdentity{Path: path, blob: blob}
}

// Blob returns the identity bytes including the terminating NUL.
func (a *AppIdentity) Blob() []byte {
	return a.blob
}

// Units returns the number of UTF-16 code units, NUL included.
func (a *AppIdentity) Units() int {
	return len(a.blob) / 2
}

func (a *AppIdentity) Hex() string {
	return hex.EncodeToString(a.blob)
}

func (a *AppIdentity) String() string {
	return a.Path
}

func addressCondition(field Field, side, text string) (Condition, error) {
	addr, r, err := parseAddress(side, text)
	if err != nil {
		return Condition{}, err
	}
	if addr.IsValid() {
		return Condition{Field: field, Match: MatchEqual, Value: addr}, nil
	}

	low, high, err := r.Bounds()
	if err != nil {
		return Condition{}, fmt.Errorf("%w: %s range %s", ErrNotSupported, side, r)
	}
	return Condition{Field: field, Match: MatchRange, Value: AddrRange{Low: low, High: high}}, nil
}

func portCondition(field Field, pr rule.PortRange) Condition {
	if pr.Start == pr.End {
		return Condition{Field: field, Match: MatchEqual, Value: pr.Start}
	}
	return Condition{Field: field, Match: MatchRange, Value: pr}
}
