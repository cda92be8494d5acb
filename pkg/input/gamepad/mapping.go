package gamepad

// Mapping gives the SDL joystick indexes of the controls the pilot reads.
// Y axes report down as positive and are inverted on read.
type Mapping struct {
	Name                    string
	LeftX, LeftY            int32
	RightX, RightY          int32
	A, B, X, Y, Back, Start int32
}

// XboxMapping matches XInput-style pads and most generic controllers.
var XboxMapping = Mapping{
	Name:   "xbox",
	LeftX:  0,
	LeftY:  1,
	RightX: 2,
	RightY: 3,
	A:      0,
	B:      1,
	X:      2,
	Y:      3,
	Back:   6,
	Start:  7,
}

// PlayStationMapping matches DualShock 4 and DualSense pads.
var PlayStationMapping = Mapping{
	Name:   "playstation",
	LeftX:  0,
	LeftY:  1,
	RightX: 2,
	RightY: 3,
	A:      0,
	B:      1,
	X:      2,
	Y:      3,
	Back:   4,
	Start:  6,
}

type deviceKey struct {
	VendorID  uint16
	ProductID uint16
}

var knownDevices = map[deviceKey]Mapping{
	{0x054C, 0x0CE6}: PlayStationMapping, // DualSense
	{0x054C, 0x09CC}: PlayStationMapping, // DualShock 4 v2
	{0x054C, 0x05C4}: PlayStationMapping, // DualShock 4 v1
}

// MappingFor returns the mapping for a vendor/product pair, defaulting to
// XboxMapping.
func MappingFor(vendorID, productID uint16) Mapping {
	if m, ok := knownDevices[deviceKey{vendorID, productID}]; ok {
		return m
	}
	return XboxMapping
}
