package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeUUID verifies that NormalizeUUID correctly handles various UUID formats
func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit short form", input: "2a01", expected: "2a01"},
		{name: "16-bit with 0x prefix", input: "0x2A01", expected: "2a01"},
		{name: "Full Bluetooth SIG UUID with dashes", input: "00001803-0000-1000-8000-00805f9b34fb", expected: "1803"},
		{name: "Full Bluetooth SIG UUID without dashes", input: "0000180400001000800000805F9B34FB", expected: "1804"},
		{name: "Custom 128-bit UUID (not SIG base)", input: "6e400001-b5a3-f393-e0a9-e50e24dcca9e", expected: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{name: "UUID with braces", input: "{00002a00-0000-1000-8000-00805f9b34fb}", expected: "2a00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestExpandUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "short form", input: "2a02", expected: "00002a02-0000-1000-8000-00805f9b34fb"},
		{name: "already full", input: "00001803-0000-1000-8000-00805f9b34fb", expected: "00001803-0000-1000-8000-00805f9b34fb"},
		{name: "custom 128-bit", input: "6e400001b5a3f393e0a9e50e24dcca9e", expected: "6e400001-b5a3-f393-e0a9-e50e24dcca9e"},
		{name: "invalid length", input: "12345", expected: ""},
		{name: "non-hex", input: "zzzz", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExpandUUID(tt.input))
		})
	}
}

// TestLookupWithFullUUID verifies that lookups work with both short and full UUIDs
func TestLookupWithFullUUID(t *testing.T) {
	assert.Equal(t, "Link Loss", LookupService("1803"))
	assert.Equal(t, "Tx Power", LookupService("00001804-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "Device Name", LookupCharacteristic("0x2A00"))
	assert.Equal(t, "Appearance", LookupCharacteristic("00002a01-0000-1000-8000-00805f9b34fb"))
	assert.Empty(t, LookupService("6e400001-b5a3-f393-e0a9-e50e24dcca9e"))
}
