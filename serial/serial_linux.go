//go:build linux

package serial

import (
	"github.com/hedhyw/Go-Serial-Detector/pkg/v1/serialdet"
)

// FindModemPortName returns the device file of the first serial device whose description matches one of the hints.
func FindModemPortName(hints []string) (string, error) {
	devices, err := serialdet.List()
	if err != nil {
		return "", err
	}

	for _, device := range devices {
		if matchesHints(device.Description(), hints) {
			return device.Path(), nil
		}
	}

	return "", ErrNoModemFound
}
