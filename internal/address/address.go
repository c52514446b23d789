/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package address

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"go4.org/netipx"
)

var (
	ErrMalformedCIDR       = errors.New("malformed CIDR")
	ErrInvalidAddress      = errors.New("invalid IP address")
	ErrInvalidPrefixLength = errors.New("invalid prefix length")

	// ErrNotSupported is returned by Bounds for IPv6 networks.
	ErrNotSupported = errors.New("IPv6 network ranges are not supported")
)

// Range is an address with a prefix length, parsed from CIDR notation.
//
// For IPv4 the stored address is always the network address. IPv6
// addresses are kept as given, host bits are not cleared.
type Range struct {
	addr netip.Addr
	bits uint8
}

// Parse parses "<address>/<prefix-length>".
func Parse(text string) (Range, error) {
	parts := strings.Split(text, "/")
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("%w: %q", ErrMalformedCIDR, text)
	}

	addr, err := netip.ParseAddr(parts[0])
	if err != nil || addr.Zone() != "" {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidAddress, parts[0])
	}

	prefix, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidPrefixLength, parts[1])
	}
	if int(prefix) > addr.BitLen() {
		return Range{}, fmt.Errorf("%w: %d exceeds maximum %d", ErrInvalidPrefixLength, prefix, addr.BitLen())
	}

	r := Range{addr: addr, bits: uint8(prefix)}
	if addr.Is4() {
		r.addr = fromUint32(toUint32(addr) & Mask(r.bits))
	}

	return r, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) Range {
	r, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return r
}

// Mask returns the IPv4 netmask for a prefix length.
func Mask(bits uint8) uint32 {
	switch {
	case bits == 0:
		return 0
	case bits >= 32:
		return 0xFFFFFFFF
	default:
		return ^((uint32(1) << (32 - bits)) - 1)
	}
}

func (r Range) Addr() netip.Addr {
	return r.addr
}

func (r Range) Bits() uint8 {
	return r.bits
}

func (r Range) Is6() bool {
	return r.addr.Is6()
}

func (r Range) IsValid() bool {
	return r.addr.IsValid()
}

func (r Range) String() string {
	return fmt.Sprintf("%s/%d", r.addr, r.bits)
}

// Prefix returns the range as a netip.Prefix.
func (r Range) Prefix() netip.Prefix {
	return netip.PrefixFrom(r.addr, int(r.bits))
}

// Bounds returns the first and last address of an IPv4 range.
func (r Range) Bounds() (netip.Addr, netip.Addr, error) {
	if !r.addr.Is4() {
		return netip.Addr{}, netip.Addr{}, ErrNotSupported
	}

	ipr := netipx.RangeOfPrefix(r.Prefix())
	return ipr.From(), ipr.To(), nil
}

// Contains reports whether addr falls inside the range.
func (r Range) Contains(addr netip.Addr) bool {
	if addr.Is4() != r.addr.Is4() {
		return false
	}
	if addr.Is4() {
		mask := Mask(r.bits)
		return toUint32(addr)&mask == toUint32(r.addr)
	}

	return r.Prefix().Contains(addr)
}

// ParseAddrOrRange accepts a bare address or a CIDR range. Exactly one of
// the returned values is valid on success.
func ParseAddrOrRange(text string) (netip.Addr, Range, error) {
	if addr, err := netip.ParseAddr(text); err == nil {
		return addr, Range{}, nil
	}

	r, err := Parse(text)
	if err != nil {
		return netip.Addr{}, Range{}, err
	}
	return netip.Addr{}, r, nil
}

// Uint32 returns the host order value of an IPv4 address.
func Uint32(addr netip.Addr) uint32 {
	return toUint32(addr)
}

func toUint32(addr netip.Addr) uint32 {
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func fromUint32(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
