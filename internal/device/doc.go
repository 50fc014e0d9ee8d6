// Package device provides the transport-neutral Bluetooth Low Energy central abstractions
// used by the scanner and the device session.
//
// The package defines:
//   - Central, Peripheral, Service, Characteristic and Advertisement interfaces implemented by the
//     go-ble and tinygo backends
//   - the wire identifiers of the LED/button peripheral profile
//   - the error taxonomy shared by every layer (permission, scanner, discovery, write, link loss)
//   - UUID normalization helpers
package device
