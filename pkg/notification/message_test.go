package notification

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEmergencyMessage(t *testing.T) {
	at := time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC)
	battery := 80
	msg := FormatEmergencyMessage(DefaultTexts(), "Asha Verma", at, 19.0760, 72.8777, &battery)

	assert.True(t, strings.HasPrefix(msg, "🚨 EMERGENCY ALERT 🚨"))
	assert.Contains(t, msg, "Asha Verma needs immediate help!")
	assert.Contains(t, msg, "https://maps.google.com/?q=19.076000,72.877700")
	assert.Contains(t, msg, "Coordinates: 19.076000, 72.877700")
	assert.Contains(t, msg, "Battery: 80%")
}

func TestFormatEmergencyMessageWithoutBattery(t *testing.T) {
	msg := FormatEmergencyMessage(DefaultTexts(), "Ravi", time.Now(), 28.6139, 77.2090, nil)
	assert.NotContains(t, msg, "Battery")
}

func TestFormatEmergencyMessageDeterministic(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := FormatEmergencyMessage(DefaultTexts(), "X", at, 1, 2, nil)
	b := FormatEmergencyMessage(DefaultTexts(), "X", at, 1, 2, nil)
	require.Equal(t, a, b)
}

func TestDeepLinks(t *testing.T) {
	assert.Equal(t, "https://wa.me/919876543210?text=help+me", WhatsAppLink("+91 98765-43210", "help me"))
	assert.Equal(t, "sms:+919876543210?body=help+me", SMSComposeLink("+919876543210", "help me"))
	assert.Equal(t, "tel:112", TelLink("112"))
}
