/*
Package serial opens the serial port of a GSM modem and connects it to an AT command channel.
*/
package serial

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jacobsa/go-serial/serial"
	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/com"
)

// ErrNoModemFound indicates that no serial device looks like a GSM modem.
var ErrNoModemFound = errors.New("no GSM modem found")

// DefaultBaudRate of the modem's AT interface.
const DefaultBaudRate = 115200

// DefaultDescriptionHints are matched against the description of serial devices to find a modem.
var DefaultDescriptionHints = []string{"modem", "gsm", "lte", "quectel", "simcom", "sierra", "huawei", "telit"}

// Config of the modem's serial port.
type Config struct {
	// PortName is the device file of the port. If empty, the port is detected by its description.
	PortName string
	BaudRate uint
	// RTSCTS enables hardware flow control.
	RTSCTS bool
	// DescriptionHints override DefaultDescriptionHints.
	DescriptionHints []string
}

// Open the serial port of the modem and return the AT command channel together with the port, which must be
// closed by the caller.
func Open(cfg Config, log zerolog.Logger) (*com.COM, io.Closer, error) {
	portName := strings.TrimSpace(cfg.PortName)
	if portName == "" {
		hints := cfg.DescriptionHints
		if len(hints) == 0 {
			hints = DefaultDescriptionHints
		}
		var err error
		portName, err = FindModemPortName(hints)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("port", portName).Msg("modem detected")
	}

	device, err := openSerial(portName, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", portName, err)
	}

	return com.New(device, com.WithLogger(log.With().Str("port", portName).Logger())), device, nil
}

func openSerial(portName string, cfg Config) (io.ReadWriteCloser, error) {
	baudRate := cfg.BaudRate
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	portConfig := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		RTSCTSFlowControl:     cfg.RTSCTS,
		MinimumReadSize:       4,
		InterCharacterTimeout: 100,
	}

	return serial.Open(portConfig)
}

// matchesHints reports whether the given device description contains one of the hints.
func matchesHints(description string, hints []string) bool {
	description = strings.ToLower(description)
	for _, hint := range hints {
		hint = strings.ToLower(strings.TrimSpace(hint))
		if hint != "" && strings.Contains(description, hint) {
			return true
		}
	}
	return false
}
