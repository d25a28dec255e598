package cb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/linxGnu/gosmpp/data"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

/* Text related types and functions */

var (
	// ErrUnsupportedEncoding indicates a data coding scheme that cannot be decoded, e.g. compressed text.
	ErrUnsupportedEncoding = errors.New("unsupported data coding scheme")
	// ErrMalformedBody indicates a message body that cannot be decoded with its data coding scheme.
	ErrMalformedBody = errors.New("malformed cell broadcast body")
)

// CharacterSet enum according to [DCS] 5
type CharacterSet byte

// All character sets used by cell broadcast messages
const (
	GSM7Bit CharacterSet = iota
	EightBit
	UCS2
)

func (c CharacterSet) String() string {
	switch c {
	case GSM7Bit:
		return "GSM7"
	case EightBit:
		return "8bit"
	case UCS2:
		return "UCS2"
	default:
		return "unknown"
	}
}

// TextCodecs contains encoding.Encoding instances for the character sets that are octet based.
var TextCodecs = map[CharacterSet]encoding.Encoding{
	EightBit: charmap.ISO8859_1,
	UCS2:     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
}

var fallbackCodec encoding.Encoding = charmap.ISO8859_1 // be lenient and use ISO8859-1 as fallback if anything goes havoc

// languages of the coding group 0000 according to [DCS] 5
var languageCodesGroup0 = [16]string{"de", "en", "it", "fr", "es", "nl", "sv", "da", "pt", "fi", "no", "el", "tr", "hu", "pl", ""}

// languages of the coding group 0010 according to [DCS] 5
var languageCodesGroup2 = [16]string{"cs", "he", "ar", "ru", "is"}

// DataCodingScheme represents the decoded CBS data coding scheme according to [DCS] 5
type DataCodingScheme struct {
	CharacterSet CharacterSet
	Language     string
	// LanguageIndicator is set if the language is given in the first characters of the message body.
	LanguageIndicator bool
}

// ParseDataCodingScheme decodes the given data coding scheme byte.
func ParseDataCodingScheme(dcs byte) (DataCodingScheme, error) {
	var result DataCodingScheme

	switch dcs >> 4 {
	case 0x00:
		result.CharacterSet = GSM7Bit
		result.Language = languageCodesGroup0[dcs&0x0F]
	case 0x01:
		result.LanguageIndicator = true
		if dcs&0x0F == 0x01 {
			result.CharacterSet = UCS2
		} else {
			result.CharacterSet = GSM7Bit
		}
	case 0x02:
		result.CharacterSet = GSM7Bit
		result.Language = languageCodesGroup2[dcs&0x0F]
	case 0x03:
		result.CharacterSet = GSM7Bit
	case 0x04, 0x05, 0x06, 0x07, 0x09:
		if dcs&0x20 != 0 {
			return DataCodingScheme{}, fmt.Errorf("%w: compressed text 0x%02x", ErrUnsupportedEncoding, dcs)
		}
		result.CharacterSet = generalCharacterSet(dcs)
	case 0x0F:
		if dcs&0x04 != 0 {
			result.CharacterSet = EightBit
		} else {
			result.CharacterSet = GSM7Bit
		}
	default: // reserved coding groups are treated as the default alphabet
		result.CharacterSet = GSM7Bit
	}

	return result, nil
}

func generalCharacterSet(dcs byte) CharacterSet {
	switch (dcs & 0x0C) >> 2 {
	case 0x01:
		return EightBit
	case 0x02:
		return UCS2
	default:
		return GSM7Bit
	}
}

// DecodePageText decodes the text of one page using the given data coding scheme. It returns the language
// given in the body, if the scheme has a language indicator, and the text without trailing padding.
func DecodePageText(dcs DataCodingScheme, page []byte) (string, string, error) {
	switch dcs.CharacterSet {
	case GSM7Bit:
		return decodeGSM7Page(dcs, page)
	case UCS2:
		return decodeUCS2Page(dcs, page)
	default:
		text, err := decodeOctets(dcs.CharacterSet, page)
		return dcs.Language, trimPadding(text), err
	}
}

func decodeGSM7Page(dcs DataCodingScheme, page []byte) (string, string, error) {
	text, err := decodeGSM7(page, len(page)*8/7)
	if err != nil {
		return "", "", err
	}

	language := dcs.Language
	if dcs.LanguageIndicator {
		// two characters language, followed by a CR
		if len(text) < 3 {
			return "", "", fmt.Errorf("%w: missing language indicator", ErrMalformedBody)
		}
		language = text[0:2]
		text = text[3:]
	}
	return language, trimPadding(text), nil
}

func decodeUCS2Page(dcs DataCodingScheme, page []byte) (string, string, error) {
	language := dcs.Language
	if dcs.LanguageIndicator {
		// two GSM 7-bit characters language, packed into two octets
		if len(page) < 2 {
			return "", "", fmt.Errorf("%w: missing language indicator", ErrMalformedBody)
		}
		var err error
		language, err = decodeGSM7(page[0:2], 2)
		if err != nil {
			return "", "", err
		}
		page = page[2:]
	}
	if len(page)%2 != 0 {
		page = page[:len(page)-1]
	}

	text, err := decodeOctets(UCS2, page)
	if err != nil {
		return "", "", err
	}
	return language, trimPadding(text), nil
}

func decodeGSM7(packed []byte, count int) (string, error) {
	septets := unpackSeptets(packed, count)
	text, err := data.GSM7BIT.Decode(septets)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return text, nil
}

func decodeOctets(characterSet CharacterSet, octets []byte) (string, error) {
	var decoder *encoding.Decoder
	codec, ok := TextCodecs[characterSet]
	if ok {
		decoder = codec.NewDecoder()
	} else { // we have no matching codec, but be lenient and use the fallback
		decoder = fallbackCodec.NewDecoder()
	}

	utf8, err := decoder.Bytes(octets)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return string(utf8), nil
}

// trimPadding removes the CR characters used to fill up a page according to [CBS] 9.4.1.2.4
func trimPadding(text string) string {
	return strings.TrimRight(text, "\r\x00")
}
