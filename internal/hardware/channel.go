package hardware

import (
	"fmt"
)

// Channel identifies a pump or relay output.
type Channel string

// Pump and relay channels wired on the reservoir controller.
const (
	WaterOut   Channel = "water_out"
	WaterIn    Channel = "water_in"
	FloraMicro Channel = "flora_micro"
	FloraGro   Channel = "flora_gro"
	FloraBloom Channel = "flora_bloom"

	// ACRelay switches the mains outlet feeding the grow light and the air
	// pump (two air stones). Anything that mixes the reservoir also lights
	// the canopy.
	ACRelay Channel = "ac_relay"
)

// Pumps lists every pump channel.
var Pumps = []Channel{WaterOut, WaterIn, FloraMicro, FloraGro, FloraBloom}

// Nutrients lists the nutrient pumps in dosing order.
var Nutrients = []Channel{FloraMicro, FloraGro, FloraBloom}

// Channels lists every output, pumps first.
var Channels = []Channel{WaterOut, WaterIn, FloraMicro, FloraGro, FloraBloom, ACRelay}

// ParseChannel returns the Channel named s.
//
// Returns:
//   - Channel: The matching channel
//   - error: ErrUnknownChannel if s names no output
func ParseChannel(s string) (Channel, error) {
	for _, ch := range Channels {
		if string(ch) == s {
			return ch, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// IsPump reports whether ch is a pump channel.
func (ch Channel) IsPump() bool {
	return contains(Pumps, ch)
}

// IsNutrient reports whether ch is a nutrient pump.
func (ch Channel) IsNutrient() bool {
	return contains(Nutrients, ch)
}

// Valid reports whether ch names a known output.
func (ch Channel) Valid() bool {
	return contains(Channels, ch)
}

func (ch Channel) String() string {
	return string(ch)
}

func contains(list []Channel, ch Channel) bool {
	for _, c := range list {
		if c == ch {
			return true
		}
	}
	return false
}
