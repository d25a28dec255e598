package gsm

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Unknown marks a location area code or cell id that is not part of a location,
// either because the geographical scope does not include it or because it is not available.
const Unknown = -1

// CellLocation identifies where a cell broadcast message is valid or where the device currently is:
// the PLMN (MCC+MNC), the location area code and the cell id. LAC and CID are Unknown if not relevant.
type CellLocation struct {
	PLMN string
	LAC  int
	CID  int
}

// UnknownLocation returns a location without any known part.
func UnknownLocation() CellLocation {
	return CellLocation{LAC: Unknown, CID: Unknown}
}

// NewCellLocation returns a location with the given parts. Negative values for lac or cid are normalized to Unknown.
func NewCellLocation(plmn string, lac int, cid int) CellLocation {
	if lac < 0 {
		lac = Unknown
	}
	if cid < 0 {
		cid = Unknown
	}
	return CellLocation{PLMN: plmn, LAC: lac, CID: cid}
}

// Matches reports whether the given current location is within the area described by this location.
// A LAC or CID of this location that is Unknown matches any value. A part of the current location that
// is Unknown (or an empty PLMN) never causes a mismatch, as long as the device location cannot be
// determined, nothing is considered out of area.
func (l CellLocation) Matches(current CellLocation) bool {
	if l.CID != Unknown && current.CID != Unknown && l.CID != current.CID {
		return false
	}
	if l.LAC != Unknown && current.LAC != Unknown && l.LAC != current.LAC {
		return false
	}
	if current.PLMN != "" && l.PLMN != current.PLMN {
		return false
	}
	return true
}

func (l CellLocation) String() string {
	return fmt.Sprintf("[plmn=%s lac=%d cid=%d]", l.PLMN, l.LAC, l.CID)
}

// Requester sends an AT request to the modem and returns the response lines.
type Requester interface {
	Request(context.Context, string) ([]string, error)
}

// RequesterFunc wraps a function into a Requester.
type RequesterFunc func(context.Context, string) ([]string, error)

func (f RequesterFunc) Request(ctx context.Context, request string) ([]string, error) {
	return f(ctx, request)
}

var hexSanitizer = regexp.MustCompile(`\s+`)

// HexToBinary converts the hex representation used along the AT interface for binary data into a slice of bytes
func HexToBinary(s string) ([]byte, error) {
	sanitized := hexSanitizer.ReplaceAllString(s, "")
	return hex.DecodeString(sanitized)
}

// BinaryToHex converts a slice of bytes into the hex representation used along the AT interface for binary data
func BinaryToHex(pdu []byte) string {
	return strings.ToUpper(hex.EncodeToString(pdu))
}
