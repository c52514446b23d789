/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package compiler

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/tschaefer/filterctl/internal/address"
	"github.com/tschaefer/filterctl/internal/rule"
)

// ErrNotSupported is returned when a rule field has no condition on the
// target layer, currently IPv6 network ranges.
var ErrNotSupported = errors.New("condition not supported")

// Unit is what a backend installs for one rule on one layer. All conditions
// must match for Action to apply.
type Unit struct {
	Layer       Layer
	Conditions  []Condition
	Weight      uint64
	Action      rule.Action
	Name        string
	Description string
}

// AppIdentity returns the application condition value, if any.
func (u Unit) AppIdentity() (*AppIdentity, bool) {
	for _, c := range u.Conditions {
		if c.Field == FieldAppID {
			id, ok := c.Value.(*AppIdentity)
			return id, ok
		}
	}
	return nil, false
}

func (u Unit) String() string {
	parts := make([]string, 0, len(u.Conditions))
	for _, c := range u.Conditions {
		parts = append(parts, c.String())
	}
	return fmt.Sprintf("%s %s weight=%d [%s]", u.Layer, u.Action, u.Weight, strings.Join(parts, ", "))
}

// Build compiles a rule for one layer. The rule is expected to be valid.
func Build(r *rule.Rule, layer Layer) (Unit, error) {
	unit := Unit{
		Layer:       layer,
		Weight:      uint64(r.Priority),
		Action:      r.Action,
		Name:        r.Name,
		Description: Describe(r),
	}

	if r.AppPath != "" {
		unit.Conditions = append(unit.Conditions, Condition{
			Field: FieldAppID,
			Match: MatchEqual,
			Value: NewAppIdentity(r.AppPath),
		})
	}

	if r.Local != "" {
		c, err := addressCondition(FieldLocalAddress, "local", r.Local)
		if err != nil {
			return Unit{}, err
		}
		unit.Conditions = append(unit.Conditions, c)
	}

	if r.Remote != "" {
		c, err := addressCondition(FieldRemoteAddress, "remote", r.Remote)
		if err != nil {
			return Unit{}, err
		}
		unit.Conditions = append(unit.Conditions, c)
	}

	if pr, ok := r.LocalPorts(); ok {
		unit.Conditions = append(unit.Conditions, portCondition(FieldLocalPort, pr))
	}

	if pr, ok := r.RemotePorts(); ok {
		unit.Conditions = append(unit.Conditions, portCondition(FieldRemotePort, pr))
	}

	if r.Protocol != rule.ProtocolAny {
		unit.Conditions = append(unit.Conditions, Condition{
			Field: FieldProtocol,
			Match: MatchEqual,
			Value: uint8(r.Protocol),
		})
	}

	return unit, nil
}

// Compile validates a rule and builds a unit for every selected layer.
// Units that cannot be built are left out, their errors are joined.
func Compile(r *rule.Rule) ([]Unit, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var units []Unit
	var errs []error
	for _, layer := range Select(r) {
		unit, err := Build(r, layer)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", layer, err))
			continue
		}
		units = append(units, unit)
	}

	return units, errors.Join(errs...)
}

// Describe returns the human readable filter description.
func Describe(r *rule.Rule) string {
	if r.Description != "" {
		return r.Description
	}
	return fmt.Sprintf("controls traffic of %s", r.Name)
}

func parseAddress(side, text string) (netip.Addr, address.Range, error) {
	addr, r, err := address.ParseAddrOrRange(text)
	if err != nil {
		return netip.Addr{}, address.Range{}, &rule.UnresolvableAddressError{Field: side, Value: text}
	}
	return addr, r, nil
}
