/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package geoip

import (
	"log/slog"
	"net/netip"

	"github.com/oschwald/geoip2-golang/v2"
)

// GeoIP resolves remote filter addresses to a location for audit records.
type GeoIP struct {
	Database string
	reader   *geoip2.Reader
}

type Location struct {
	Country string
	City    string
	Lat     float64
	Lon     float64
}

func Open(path string) (*GeoIP, error) {
	slog.Debug("Opening GeoIP2 database.", "path", path)

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &GeoIP{Database: path, reader: reader}, nil
}

func (g *GeoIP) Close() error {
	if g.reader == nil {
		return nil
	}
	return g.reader.Close()
}

// Location returns nil for addresses a public database cannot know, and for
// addresses without country, city or coordinates.
func (g *GeoIP) Location(ip netip.Addr) *Location {
	if g == nil || g.reader == nil || !routable(ip) {
		return nil
	}

	record, err := g.reader.City(ip)
	if err != nil {
		return nil
	}
	if !record.HasData() {
		return nil
	}

	var country, city string
	if record.Country.HasData() {
		country = record.Country.Names.English
	}
	if record.City.HasData() {
		city = record.City.Names.English
	}

	var lat, lon float64
	if record.Location.HasCoordinates() {
		lat = *record.Location.Latitude
		lon = *record.Location.Longitude
	}

	if country == "" && city == "" &&
		lat == 0 && lon == 0 {
		return nil
	}

	return &Location{
		Country: country,
		City:    city,
		Lat:     lat,
		Lon:     lon,
	}
}

func routable(ip netip.Addr) bool {
	switch {
	case !ip.IsValid(), ip.IsUnspecified(), ip.IsLoopback(), ip.IsPrivate():
		return false
	case ip.IsMulticast(), ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return false
	}
	return true
}
