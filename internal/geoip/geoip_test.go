/*
Copyright (c) Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package geoip

import (
	"net/netip"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openReturnsErrorIfDatabaseIsInvalid(t *testing.T) {
	_, err := Open("geoip.go")
	assert.Error(t, err)
}

func locationSkipsUnroutableAddresses(t *testing.T) {
	geo := &GeoIP{}
	for ipStr, desc := range map[string]string{
		"::1":         "loopback address",
		"10.19.80.12": "private address",
		"224.0.1.1":   "multicast address",
		"fe80::1":     "link local address",
		"0.0.0.0":     "unspecified address",
	} {
		assert.Nil(t, geo.Location(netip.MustParseAddr(ipStr)), desc)
	}
	assert.Nil(t, geo.Location(netip.Addr{}), "invalid address")
	assert.NoError(t, geo.Close())
}

func locationReturnsLocationIfAddressIsResolved(t *testing.T) {
	path, ok := os.LookupEnv("FILTERCTL_GEOIP_DATABASE")
	if !ok || path == "" {
		path = "/tmp/GeoLite2-City.mmdb"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("GeoIP database not found, skipping lookup")
	}

	geo, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = geo.Close() }()

	assert.Equal(t, path, geo.Database)
	assert.Nil(t, geo.Location(netip.MustParseAddr("172.66.43.195")), "unresolved address")

	location := geo.Location(netip.MustParseAddr("63.176.75.230"))
	assert.NotNil(t, location, "resolved address")
	assert.IsType(t, &Location{}, location, "location type")
}

func TestGeoIP(t *testing.T) {
	t.Run("geoip.Open returns error if database is invalid", openReturnsErrorIfDatabaseIsInvalid)
	t.Run("geoip.Location skips unroutable addresses", locationSkipsUnroutableAddresses)
	t.Run("geoip.Location returns location if IP is resolved", locationReturnsLocationIfAddressIsResolved)
}
