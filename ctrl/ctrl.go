/*
Package ctrl provides the AT commands to control a GSM modem that receives cell broadcast messages: enable the
reception, read the incoming messages, and query the current cell and position.

References:
  - [AT] 3GPP TS 27.005 and 3GPP TS 27.007, AT command sets for GSM/UMTS modems
*/
package ctrl

import (
	"fmt"
	"strings"
)

// RegistrationStatusByName returns the RegistrationStatus with the given name
func RegistrationStatusByName(name string) (RegistrationStatus, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(name))
	result, ok := RegistrationStatusesByName[sanitized]
	if !ok {
		return 0, fmt.Errorf("invalid registration status %s", name)
	}
	return result, nil
}

// RegistrationStatus represents the network registration status according to [AT] 27.007 7.2
type RegistrationStatus byte

func (s RegistrationStatus) String() string {
	for k, v := range RegistrationStatusesByName {
		if v == s {
			return k
		}
	}
	return "UNKNOWN"
}

// Registered reports whether the modem is registered to its home network or roaming.
func (s RegistrationStatus) Registered() bool {
	return s == RegisteredHome || s == RegisteredRoaming
}

// All registration states
const (
	NotRegistered RegistrationStatus = iota
	RegisteredHome
	Searching
	RegistrationDenied
	RegistrationUnknown
	RegisteredRoaming
)

// RegistrationStatusesByName maps all registration states by their string representation
var RegistrationStatusesByName = map[string]RegistrationStatus{
	"NOT REGISTERED": NotRegistered,
	"HOME":           RegisteredHome,
	"SEARCHING":      Searching,
	"DENIED":         RegistrationDenied,
	"UNKNOWN":        RegistrationUnknown,
	"ROAMING":        RegisteredRoaming,
}

// BroadcastMode selects whether the listed message identifiers are accepted or rejected according to [AT] 27.005 3.3.4
type BroadcastMode byte

// All broadcast modes
const (
	AcceptMessages BroadcastMode = 0
	RejectMessages BroadcastMode = 1
)
