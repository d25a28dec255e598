package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesHints(t *testing.T) {
	tt := []struct {
		description string
		expected    bool
	}{
		{"Quectel EG25-G LTE Modem", true},
		{"SIMCOM_SIM7600G-H", true},
		{"FT232R USB UART", false},
		{"", false},
	}
	for _, tc := range tt {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.expected, matchesHints(tc.description, DefaultDescriptionHints))
		})
	}

	assert.False(t, matchesHints("anything", []string{" "}), "blank hints never match")
}
