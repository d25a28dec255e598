//go:build !linux

package serial

// FindModemPortName is not supported on other OSes, the port name must be configured.
func FindModemPortName([]string) (string, error) {
	return "", ErrNoModemFound
}
