package device

import "github.com/srg/blepanel/internal/bledb"

// Wire identifiers of the LED/button peripheral.
const (
	ServiceButtonPrimaryUUID   = "00001803-0000-1000-8000-00805f9b34fb"
	ServiceButtonSecondaryUUID = "00001804-0000-1000-8000-00805f9b34fb"

	CharLedUUID             = "00002a00-0000-1000-8000-00805f9b34fb"
	CharPrimaryButtonUUID   = "00002a01-0000-1000-8000-00805f9b34fb"
	CharSecondaryButtonUUID = "00002a02-0000-1000-8000-00805f9b34fb"
)

// NormalizeUUID is re-exported from bledb for convenience.
// It converts a UUID string to the internal format (lowercase, no dashes).
// For full 128-bit UUIDs in Bluetooth SIG base format (0000xxxx-0000-1000-8000-00805f9b34fb),
// extracts the 16-bit short form (xxxx).
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// ExpandUUID returns the dashed 128-bit form of uuid.
func ExpandUUID(uuid string) string {
	return bledb.ExpandUUID(uuid)
}
