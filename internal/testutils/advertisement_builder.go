package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/blepanel/internal/device"
)

// FakeAdvertisement is a static device.Advertisement.
type FakeAdvertisement struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Signal  int    `json:"rssi"`
}

func (a *FakeAdvertisement) LocalName() string { return a.Name }
func (a *FakeAdvertisement) RSSI() int         { return a.Signal }
func (a *FakeAdvertisement) Addr() string      { return strings.ToLower(a.Address) }

// AdvertisementBuilder builds fake BLE advertisements for testing.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder creates a new AdvertisementBuilder.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Signal = rssi
	return b
}

// FromJSON fills the advertisement from JSON ({"name": ..., "address": ..., "rssi": ...}).
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &b.adv); err != nil {
		panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	return b
}

// Build returns the advertisement.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	return &adv
}

// AdvertisementsFromJSON parses a JSON array of advertisements.
func AdvertisementsFromJSON(jsonStrFmt string, args ...interface{}) []device.Advertisement {
	var raw []FakeAdvertisement
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &raw); err != nil {
		panic(fmt.Sprintf("AdvertisementsFromJSON: failed to unmarshal: %v", err))
	}
	ads := make([]device.Advertisement, len(raw))
	for i := range raw {
		ads[i] = &raw[i]
	}
	return ads
}
