// SPDX-License-Identifier: GPL-3.0-or-later

package ipv4_test

import (
	"testing"

	"github.com/ZhuChongjing/NetLabX/ipv4"
	"github.com/stretchr/testify/assert"
)

func TestSubnet(t *testing.T) {
	tests := []struct {
		name    string
		address string
		mask    string
		want    string
	}{
		{
			name:    "classic /24",
			address: "192.168.1.10",
			mask:    "255.255.255.0",
			want:    "192.168.1.0",
		},
		{
			name:    "classic /16",
			address: "172.16.31.7",
			mask:    "255.255.0.0",
			want:    "172.16.0.0",
		},
		{
			name:    "classic /8",
			address: "10.9.8.7",
			mask:    "255.0.0.0",
			want:    "10.0.0.0",
		},
		{
			name:    "/26 splits the last octet",
			address: "192.168.1.70",
			mask:    "255.255.255.192",
			want:    "192.168.1.64",
		},
		{
			name:    "/30 point to point",
			address: "10.0.0.2",
			mask:    "255.255.255.252",
			want:    "10.0.0.0",
		},
		{
			name:    "malformed mask degrades to /24",
			address: "192.168.1.10",
			mask:    "banana",
			want:    "192.168.1.0",
		},
		{
			name:    "empty mask degrades to /24",
			address: "10.20.30.40",
			mask:    "",
			want:    "10.20.30.0",
		},
		{
			name:    "malformed address degrades to zero",
			address: "not-an-address",
			mask:    "255.255.255.0",
			want:    "0.0.0.0",
		},
		{
			name:    "both malformed degrades to zero",
			address: "nope",
			mask:    "nope",
			want:    "0.0.0.0",
		},
		{
			name:    "octet out of range degrades to zero",
			address: "192.168.1.256",
			mask:    "255.255.255.0",
			want:    "0.0.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ipv4.Subnet(tt.address, tt.mask)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidMask(t *testing.T) {
	tests := []struct {
		mask string
		want bool
	}{
		{"255.0.0.0", true},
		{"255.255.0.0", true},
		{"255.255.255.0", true},
		{"255.255.255.128", true},
		{"255.255.255.192", true},
		{"255.255.255.224", true},
		{"255.255.255.240", true},
		{"255.255.255.248", true},
		{"255.255.255.252", true},

		// Syntactically fine but not canonical for the lab.
		{"255.255.255.254", false},
		{"255.255.255.255", false},
		{"255.255.254.0", false},
		{"255.254.0.0", false},
		{"0.0.0.0", false},

		// Not masks at all.
		{"", false},
		{"255.255.255", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.mask, func(t *testing.T) {
			assert.Equal(t, tt.want, ipv4.ValidMask(tt.mask))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, ipv4.Valid("192.168.1.0"))
	assert.True(t, ipv4.Valid("0.0.0.0"))
	assert.True(t, ipv4.Valid("255.255.255.255"))
	assert.False(t, ipv4.Valid("192.168.1"))
	assert.False(t, ipv4.Valid("192.168.1.1.1"))
	assert.False(t, ipv4.Valid("192.168.1.256"))
	assert.False(t, ipv4.Valid("192.168.1.-1"))
	assert.False(t, ipv4.Valid("192.168.1.+1"))
	assert.False(t, ipv4.Valid("192.168.1.0010"))
	assert.False(t, ipv4.Valid(""))
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wanterr string
	}{
		{
			name:    "plain host address",
			address: "192.168.1.10",
			wanterr: "",
		},
		{
			name:    "backbone host address",
			address: "10.0.0.1",
			wanterr: "",
		},
		{
			name:    "not a quad",
			address: "192.168.1",
			wanterr: "not four dot-separated octets",
		},
		{
			name:    "octet out of range",
			address: "192.168.1.300",
			wanterr: "not four dot-separated octets",
		},
		{
			name:    "first octet zero",
			address: "0.1.2.3",
			wanterr: "first octet 0 is reserved",
		},
		{
			name:    "loopback",
			address: "127.0.0.1",
			wanterr: "loopback range",
		},
		{
			name:    "first octet broadcast",
			address: "255.0.0.1",
			wanterr: "reserved for broadcast",
		},
		{
			name:    "network address",
			address: "192.168.1.0",
			wanterr: "names the network itself",
		},
		{
			name:    "broadcast address",
			address: "192.168.1.255",
			wanterr: "subnet broadcast",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ipv4.ValidateHost(tt.address)
			if tt.wanterr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wanterr)
		})
	}
}

func TestInSubnet(t *testing.T) {
	assert.True(t, ipv4.InSubnet("192.168.1.10", "192.168.1.0", "255.255.255.0"))
	assert.False(t, ipv4.InSubnet("192.168.2.10", "192.168.1.0", "255.255.255.0"))
	assert.True(t, ipv4.InSubnet("10.0.3.2", "10.0.3.0", "255.255.255.0"))
}
