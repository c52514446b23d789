/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package record

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/tschaefer/filterctl/internal/backend"
	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/geoip"
	"github.com/tschaefer/filterctl/internal/rule"
)

type Locator interface {
	Location(ip netip.Addr) *geoip.Location
}

// Recorder writes one audit record per filter event to the sink logger.
type Recorder struct {
	logger *slog.Logger
	geo    Locator
	rules  map[rule.FilterID]string
}

func New(logger *slog.Logger, geo Locator) *Recorder {
	return &Recorder{
		logger: logger,
		geo:    geo,
		rules:  make(map[rule.FilterID]string),
	}
}

// Bind tags every following record with the engine session.
func (rec *Recorder) Bind(backendName, session string) {
	rec.logger = rec.logger.With(
		slog.String("backend", backendName),
		slog.String("session", session),
	)
}

func (rec *Recorder) Installed(r *rule.Rule, unit compiler.Unit, id rule.FilterID) {
	rec.rules[id] = r.Name

	attrs := []any{
		slog.String("event", "installed"),
		slog.Uint64("id", uint64(id)),
		slog.String("rule", r.Name),
		slog.String("layer", unit.Layer.String()),
		slog.String("action", unit.Action.String()),
		slog.Uint64("weight", unit.Weight),
		slog.String("direction", r.Direction.String()),
	}
	attrs = append(attrs, conditionAttrs(unit)...)
	attrs = append(attrs, rec.location(unit)...)

	msg := fmt.Sprintf("%s filter %q installed on %s", unit.Action, r.Name, unit.Layer)
	rec.logger.Info(msg, attrs...)
}

func (rec *Recorder) Failed(r *rule.Rule, layer compiler.Layer, err error) {
	reason := backend.ReasonOf(err)
	msg := fmt.Sprintf("filter %q not installed on %s: %s", r.Name, layer, reason.Message())
	rec.logger.Warn(msg,
		slog.String("event", "failed"),
		slog.String("rule", r.Name),
		slog.String("layer", layer.String()),
		slog.String("action", r.Action.String()),
		slog.String("reason", reason.String()),
		slog.String("error", err.Error()),
	)
}

func (rec *Recorder) Rejected(r *rule.Rule, err error) {
	msg := fmt.Sprintf("rule %q rejected", r.Name)
	rec.logger.Warn(msg,
		slog.String("event", "rejected"),
		slog.String("rule", r.Name),
		slog.String("action", r.Action.String()),
		slog.String("error", err.Error()),
	)
}

func (rec *Recorder) Removed(id rule.FilterID) {
	name := rec.rules[id]
	delete(rec.rules, id)

	msg := fmt.Sprintf("filter %q removed", name)
	rec.logger.Info(msg,
		slog.String("event", "removed"),
		slog.Uint64("id", uint64(id)),
		slog.String("rule", name),
	)
}

func conditionAttrs(unit compiler.Unit) []any {
	var attrs []any
	for _, c := range unit.Conditions {
		switch c.Field {
		case compiler.FieldAppID:
			if app, ok := c.Value.(*compiler.AppIdentity); ok {
				attrs = append(attrs, slog.String("app", app.Path))
			}
		case compiler.FieldLocalAddress:
			attrs = append(attrs, slog.String("local", fmt.Sprint(c.Value)))
		case compiler.FieldRemoteAddress:
			attrs = append(attrs, slog.String("remote", fmt.Sprint(c.Value)))
		case compiler.FieldLocalPort:
			attrs = append(attrs, slog.String("local_port", fmt.Sprint(c.Value)))
		case compiler.FieldRemotePort:
			attrs = append(attrs, slog.String("remote_port", fmt.Sprint(c.Value)))
		case compiler.FieldProtocol:
			if v, ok := c.Value.(uint8); ok {
				attrs = append(attrs, slog.String("protocol", rule.Protocol(v).String()))
			}
		}
	}
	return attrs
}

// location resolves the remote side when it is a single address.
func (rec *Recorder) location(unit compiler.Unit) []any {
	if rec.geo == nil {
		return nil
	}

	for _, c := range unit.Conditions {
		if c.Field != compiler.FieldRemoteAddress {
			continue
		}
		addr, ok := c.Value.(netip.Addr)
		if !ok {
			return nil
		}
		loc := rec.geo.Location(addr)
		if loc == nil {
			return nil
		}
		return []any{
			slog.String("remote_city", loc.City),
			slog.String("remote_country", loc.Country),
			slog.Float64("remote_lat", loc.Lat),
			slog.Float64("remote_lon", loc.Lon),
		}
	}

	return nil
}
