package core

import "errors"

var errBadPinName = errors.New("invalid pin name")

// LookupPin parses a pin name from configuration: "gpio12", "GPIO12" or a
// bare number.
func LookupPin(name string) (GPIOPin, error) {
	digits := name
	if len(digits) > 4 && (digits[:4] == "gpio" || digits[:4] == "GPIO") {
		digits = digits[4:]
	}
	if digits == "" || len(digits) > 3 {
		return 0, errBadPinName
	}

	var n uint32
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, errBadPinName
		}
		n = n*10 + uint32(c-'0')
	}
	return GPIOPin(n), nil
}

// PinName formats a pin the way LookupPin accepts it
func PinName(pin GPIOPin) string {
	return "gpio" + utoa(uint32(pin))
}
