package ctrl

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/gsm"
)

// ErrNoResponse indicates that the modem answered a request without any response line.
var ErrNoResponse = errors.New("no response received")

// SetMessageFormatPDU selects the PDU mode for messages according to [AT] 27.005 3.2.3
const SetMessageFormatPDU = "AT+CMGF=0"

// SetNewMessageIndications routes new cell broadcast messages directly to the terminal (+CBM) according to [AT] 27.005 3.4.1
const SetNewMessageIndications = "AT+CNMI=2,0,2,0,0"

// EnableRegistrationLocation enables the unsolicited registration result code with location information according to [AT] 27.007 7.2
const EnableRegistrationLocation = "AT+CREG=2"

// SetOperatorFormatNumeric selects the numeric format (MCC and MNC) for the operator according to [AT] 27.007 7.3
const SetOperatorFormatNumeric = "AT+COPS=3,2"

// CBMIndicationPrefix is the prefix of the unsolicited result code for a new cell broadcast message. The indication
// has one trailing line with the PDU.
const CBMIndicationPrefix = "+CBM:"

// CREGIndicationPrefix is the prefix of the unsolicited network registration result code.
const CREGIndicationPrefix = "+CREG:"

// IdentifierRange is a range of message identifiers, both ends included.
type IdentifierRange struct {
	First cb.MessageIdentifier
	Last  cb.MessageIdentifier
}

func (r IdentifierRange) String() string {
	if r.Last <= r.First {
		return strconv.Itoa(int(r.First))
	}
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// WarningRanges are the message identifiers of all public warning messages, including the geo-fencing trigger.
var WarningRanges = []IdentifierRange{
	{First: cb.ETWSFirst, Last: cb.ETWSLast},
	{First: cb.CMASFirst, Last: cb.CMASGeoFencingTrigger},
}

// SelectMessageIdentifiers accepts or rejects all messages in the given ranges according to [AT] 27.005 3.3.4
func SelectMessageIdentifiers(mode BroadcastMode, ranges ...IdentifierRange) string {
	parts := make([]string, 0, len(ranges))
	for _, r := range ranges {
		parts = append(parts, r.String())
	}
	return fmt.Sprintf(`AT+CSCB=%d,"%s",""`, mode, strings.Join(parts, ","))
}

// EnableCellBroadcast configures the modem to forward all messages with the given identifiers as +CBM indications.
func EnableCellBroadcast(ctx context.Context, requester gsm.Requester, ranges ...IdentifierRange) error {
	requests := []string{
		SetMessageFormatPDU,
		SelectMessageIdentifiers(AcceptMessages, ranges...),
		SetNewMessageIndications,
		EnableRegistrationLocation,
		SetOperatorFormatNumeric,
	}
	for _, request := range requests {
		_, err := requester.Request(ctx, request)
		if err != nil {
			return fmt.Errorf("%s failed: %w", request, err)
		}
	}
	return nil
}

var cbmIndication = regexp.MustCompile(`^\+CBM: ?(\d+)$`)

// ParseCBMIndication returns the PDU of a +CBM indication according to [AT] 27.005 3.4.1
func ParseCBMIndication(lines []string) ([]byte, error) {
	if len(lines) != 2 {
		return nil, fmt.Errorf("invalid +CBM indication: %d lines", len(lines))
	}
	parts := cbmIndication.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(lines[0])))
	if len(parts) != 2 {
		return nil, fmt.Errorf("unexpected indication: %s", lines[0])
	}
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, err
	}

	pdu, err := gsm.HexToBinary(lines[1])
	if err != nil {
		return nil, fmt.Errorf("invalid +CBM PDU: %w", err)
	}
	if len(pdu) != length {
		return nil, fmt.Errorf("invalid +CBM PDU length: expected %d, got %d", length, len(pdu))
	}
	return pdu, nil
}

var registrationResponse = regexp.MustCompile(`^\+CREG: (?:(\d),)?(\d)(?:,"?([0-9A-F]+)"?,"?([0-9A-F]+)"?)?`)

// Registration is the network registration status with the current location area and cell.
type Registration struct {
	Status RegistrationStatus
	LAC    int
	CID    int
}

// ParseRegistration parses both the response to AT+CREG? and the unsolicited +CREG result code.
func ParseRegistration(line string) (Registration, error) {
	line = strings.ToUpper(strings.TrimSpace(line))
	parts := registrationResponse.FindStringSubmatch(line)
	if len(parts) != 5 {
		return Registration{}, fmt.Errorf("unexpected response: %s", line)
	}

	// the unsolicited result code has no <n>
	status, err := strconv.Atoi(parts[2])
	if err != nil {
		return Registration{}, err
	}
	result := Registration{
		Status: RegistrationStatus(status),
		LAC:    gsm.Unknown,
		CID:    gsm.Unknown,
	}
	if parts[3] == "" {
		return result, nil
	}

	lac, err := strconv.ParseInt(parts[3], 16, 32)
	if err != nil {
		return Registration{}, err
	}
	cid, err := strconv.ParseInt(parts[4], 16, 32)
	if err != nil {
		return Registration{}, err
	}
	result.LAC = int(lac)
	result.CID = int(cid)
	return result, nil
}

// RequestRegistration reads the current network registration according to [AT] 27.007 7.2
func RequestRegistration(ctx context.Context, requester gsm.Requester) (Registration, error) {
	responses, err := requester.Request(ctx, "AT+CREG?")
	if err != nil {
		return Registration{}, err
	}
	if len(responses) < 1 {
		return Registration{}, ErrNoResponse
	}
	return ParseRegistration(responses[0])
}

var operatorResponse = regexp.MustCompile(`^\+COPS: (\d)(?:,(\d),"?([^",]*)"?)?`)

// RequestOperator reads the PLMN (MCC and MNC) of the current operator according to [AT] 27.007 7.3. The operator
// format must be numeric (see SetOperatorFormatNumeric). If no operator is selected, the PLMN is empty.
func RequestOperator(ctx context.Context, requester gsm.Requester) (string, error) {
	responses, err := requester.Request(ctx, "AT+COPS?")
	if err != nil {
		return "", err
	}
	if len(responses) < 1 {
		return "", ErrNoResponse
	}
	response := strings.ToUpper(strings.TrimSpace(responses[0]))
	parts := operatorResponse.FindStringSubmatch(response)

	if len(parts) != 4 {
		return "", fmt.Errorf("unexpected response: %s", responses[0])
	}
	if parts[2] != "" && parts[2] != "2" {
		return "", fmt.Errorf("operator format is not numeric: %s", responses[0])
	}

	return parts[3], nil
}

var gpsPositionResponse = regexp.MustCompile(`^\+GPSPOS: (\d{2}):(\d{2}):(\d{2}),([NS]): (\d+)_(\d+\.\d+),([EW]): (\d+)_(\d+\.\d+),(\d+)$`)

// RequestGPSPosition reads the current position from the modem's GPS receiver. The response contains the time of
// the fix, latitude and longitude in degrees and decimal minutes, and the number of satellites in use.
func RequestGPSPosition(ctx context.Context, requester gsm.Requester) (geo.Fix, error) {
	responses, err := requester.Request(ctx, "AT+GPSPOS?")
	if err != nil {
		return geo.NoFix, err
	}
	if len(responses) < 1 {
		return geo.NoFix, ErrNoResponse
	}
	response := strings.ToUpper(strings.TrimSpace(responses[0]))
	if strings.Contains(response, "NO FIX") {
		return geo.NoFix, nil
	}

	parts := gpsPositionResponse.FindStringSubmatch(response)
	if len(parts) != 11 {
		return geo.NoFix, fmt.Errorf("unexpected response: %s", responses[0])
	}

	satellites, err := strconv.Atoi(parts[10])
	if err != nil {
		return geo.NoFix, err
	}
	if satellites == 0 {
		return geo.NoFix, nil
	}

	lat, err := parseDegreesMinutes(parts[4], parts[5], parts[6])
	if err != nil {
		return geo.NoFix, err
	}
	lng, err := parseDegreesMinutes(parts[7], parts[8], parts[9])
	if err != nil {
		return geo.NoFix, err
	}
	return geo.FixAt(lat, lng), nil
}

func parseDegreesMinutes(direction, degreesValue, minutesValue string) (float64, error) {
	degrees, err := strconv.ParseFloat(degreesValue, 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseFloat(minutesValue, 64)
	if err != nil {
		return 0, err
	}
	return degreesMinutesToDecimalDegrees(direction, degrees, minutes), nil
}

func degreesMinutesToDecimalDegrees(direction string, degrees, minutes float64) float64 {
	result := degrees + minutes/60
	if direction == "S" || direction == "W" {
		return -result
	}
	return result
}
