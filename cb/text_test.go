package cb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataCodingScheme(t *testing.T) {
	tt := []struct {
		desc     string
		dcs      byte
		expected DataCodingScheme
	}{
		{"group 0 german", 0x00, DataCodingScheme{CharacterSet: GSM7Bit, Language: "de"}},
		{"group 0 english", 0x01, DataCodingScheme{CharacterSet: GSM7Bit, Language: "en"}},
		{"group 0 unspecified", 0x0F, DataCodingScheme{CharacterSet: GSM7Bit}},
		{"language indicator GSM7", 0x10, DataCodingScheme{CharacterSet: GSM7Bit, LanguageIndicator: true}},
		{"language indicator UCS2", 0x11, DataCodingScheme{CharacterSet: UCS2, LanguageIndicator: true}},
		{"group 2 czech", 0x20, DataCodingScheme{CharacterSet: GSM7Bit, Language: "cs"}},
		{"group 2 unknown", 0x2F, DataCodingScheme{CharacterSet: GSM7Bit}},
		{"group 3", 0x31, DataCodingScheme{CharacterSet: GSM7Bit}},
		{"general 8bit", 0x44, DataCodingScheme{CharacterSet: EightBit}},
		{"general UCS2", 0x48, DataCodingScheme{CharacterSet: UCS2}},
		{"general GSM7", 0x40, DataCodingScheme{CharacterSet: GSM7Bit}},
		{"user data header UCS2", 0x98, DataCodingScheme{CharacterSet: UCS2}},
		{"data coding 8bit", 0xF4, DataCodingScheme{CharacterSet: EightBit}},
		{"data coding GSM7", 0xF0, DataCodingScheme{CharacterSet: GSM7Bit}},
		{"reserved", 0xA0, DataCodingScheme{CharacterSet: GSM7Bit}},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			actual, err := ParseDataCodingScheme(tc.dcs)

			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestParseDataCodingScheme_Compressed(t *testing.T) {
	_, err := ParseDataCodingScheme(0x60)

	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}

func TestDecodePageText(t *testing.T) {
	tt := []struct {
		desc             string
		dcs              DataCodingScheme
		page             []byte
		expectedLanguage string
		expectedText     string
	}{
		{
			desc:             "GSM7 padded",
			dcs:              DataCodingScheme{CharacterSet: GSM7Bit, Language: "en"},
			page:             gsm7Page("Test alert"),
			expectedLanguage: "en",
			expectedText:     "Test alert",
		},
		{
			desc:             "GSM7 unpadded",
			dcs:              DataCodingScheme{CharacterSet: GSM7Bit},
			page:             []byte{0xE8, 0x32, 0x9B, 0xFD, 0x06},
			expectedLanguage: "",
			expectedText:     "hello",
		},
		{
			desc:             "GSM7 with language indicator",
			dcs:              DataCodingScheme{CharacterSet: GSM7Bit, LanguageIndicator: true},
			page:             gsm7Page("fr\rBonjour"),
			expectedLanguage: "fr",
			expectedText:     "Bonjour",
		},
		{
			desc:             "UCS2",
			dcs:              DataCodingScheme{CharacterSet: UCS2},
			page:             []byte{0x00, 0x48, 0x00, 0x69, 0x04, 0x14, 0x00, 0x0D},
			expectedLanguage: "",
			expectedText:     "HiД",
		},
		{
			desc:             "UCS2 with language indicator",
			dcs:              DataCodingScheme{CharacterSet: UCS2, LanguageIndicator: true},
			page:             append(packGSM7("ru"), 0x04, 0x14, 0x04, 0x30, 0x00),
			expectedLanguage: "ru",
			expectedText:     "Да",
		},
		{
			desc:             "8bit",
			dcs:              DataCodingScheme{CharacterSet: EightBit},
			page:             []byte{'C', 'a', 'f', 0xE9, '\r', '\r'},
			expectedLanguage: "",
			expectedText:     "Café",
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			language, text, err := DecodePageText(tc.dcs, tc.page)

			require.NoError(t, err)
			assert.Equal(t, tc.expectedLanguage, language)
			assert.Equal(t, tc.expectedText, text)
		})
	}
}

func TestDecodePageText_MissingLanguageIndicator(t *testing.T) {
	_, _, err := DecodePageText(DataCodingScheme{CharacterSet: UCS2, LanguageIndicator: true}, []byte{0x41})

	assert.ErrorIs(t, err, ErrMalformedBody)
}

func TestUnpackSeptets(t *testing.T) {
	packed := packGSM7("hellohello")

	actual := unpackSeptets(packed, 10)

	assert.Equal(t, []byte("hellohello"), actual)
	assert.Equal(t, []byte{0xE8, 0x32, 0x9B, 0xFD, 0x46, 0x97, 0xD9, 0xEC, 0x37}, packed)
}
