/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ActionAndDirection(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		action    Action
		direction Direction
		valid     bool
	}{
		{"block default direction", "block", ActionBlock, DirectionBoth, true},
		{"allow outbound", "allow outbound", ActionAllow, DirectionOutbound, true},
		{"permit alias", "permit in", ActionAllow, DirectionInbound, true},
		{"uppercase", "BLOCK OUT", ActionBlock, DirectionOutbound, true},
		{"both", "block both", ActionBlock, DirectionBoth, true},
		{"missing action", "outbound", ActionBlock, DirectionBoth, false},
		{"invalid action", "drop outbound", ActionBlock, DirectionBoth, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.input)
			if !tt.valid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.action, r.Action)
			assert.Equal(t, tt.direction, r.Direction)
			assert.Equal(t, DefaultPriority, r.Priority)
		})
	}
}

func TestParser_Clauses(t *testing.T) {
	input := `block outbound name web app "C:\Program Files\App\app.exe" ` +
		`local address 192.168.1.5 remote address 10.0.0.0/8 ` +
		`local port 5000 remote port 80-90 protocol tcp priority 300 description "no web"`

	r, err := Parse(input)
	require.NoError(t, err)

	assert.Equal(t, "web", r.Name)
	assert.Equal(t, `C:\Program Files\App\app.exe`, r.AppPath)
	assert.Equal(t, "192.168.1.5", r.Local)
	assert.Equal(t, "10.0.0.0/8", r.Remote)
	assert.Equal(t, uint16(5000), r.LocalPort)
	assert.False(t, r.LocalPortRange.IsSet())
	assert.Equal(t, uint16(0), r.RemotePort)
	assert.Equal(t, PortRange{Start: 80, End: 90}, r.RemotePortRange)
	assert.Equal(t, ProtocolTCP, r.Protocol)
	assert.Equal(t, uint32(300), r.Priority)
	assert.Equal(t, "no web", r.Description)
	assert.NoError(t, r.Validate())
}

func TestParser_Addresses(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ipv4", "block remote address 1.2.3.4", "1.2.3.4"},
		{"ipv4 cidr", "block remote address 10.0.0.0/8", "10.0.0.0/8"},
		{"ipv6", "block remote address 2001:db8::1", "2001:db8::1"},
		{"ipv6 loopback", "block remote address ::1", "::1"},
		{"ipv6 cidr", "block remote address fe80::/10 protocol udp", "fe80::/10"},
		{"ipv6 leading zero group", "block remote address 2001:0db8::1", "2001:0db8::1"},
		{"quoted", `block remote address "172.16.0.0/12"`, "172.16.0.0/12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, r.Remote)
			assert.NoError(t, r.Validate())
		})
	}
}

func TestParser_Ports(t *testing.T) {
	r, err := Parse("allow local port 53 local port 1000-2000")
	require.NoError(t, err)
	assert.Equal(t, uint16(53), r.LocalPort)
	assert.Equal(t, PortRange{Start: 1000, End: 2000}, r.LocalPortRange)
	pr, ok := r.LocalPorts()
	assert.True(t, ok)
	assert.Equal(t, PortRange{Start: 53, End: 53}, pr, "single port takes precedence")

	for _, input := range []string{
		"block remote port 0",
		"block remote port 90-80",
		"block remote port 70000",
		"block remote port http",
		"block remote port 80-",
	} {
		_, err := Parse(input)
		assert.Error(t, err, input)
	}
}

func TestParser_Errors(t *testing.T) {
	for _, input := range []string{
		"",
		"block app /usr/bin/curl",
		`block app "/usr/bin/curl`,
		"block protocol icmp",
		"block protocol",
		"block priority high",
		"block priority 99999999999",
		"block remote",
		"block remote host 1.2.3.4",
		"block remote address",
		"block name",
		"block unknown",
		"block outbound !",
	} {
		_, err := Parse(input)
		assert.Error(t, err, input)
	}
}

func TestParser_StringEscapes(t *testing.T) {
	r, err := Parse(`block name "say \"hi\"" app "C:\dir\a.exe"`)
	require.NoError(t, err)
	assert.Equal(t, `say "hi"`, r.Name)
	assert.Equal(t, `C:\dir\a.exe`, r.AppPath)
}

func TestParser_RoundTripsString(t *testing.T) {
	r, err := Parse(`allow inbound name ssh local port 22 protocol tcp priority 10`)
	require.NoError(t, err)

	again, err := Parse(r.String())
	require.NoError(t, err)
	assert.Equal(t, r, again)
}

func TestParser_ParseAll(t *testing.T) {
	rules, err := ParseAll([]string{
		"block outbound name web remote port 80 protocol tcp",
		"allow inbound name ssh local port 22 protocol tcp",
	})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "web", rules[0].Name)
	assert.Equal(t, ActionAllow, rules[1].Action)

	_, err = ParseAll([]string{"block", "drop everything"})
	assert.ErrorContains(t, err, "rule 2:")
}
