package sos

import (
	"context"
	"testing"

	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/pkg/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActuatorPrimaryPreferred(t *testing.T) {
	a := NewActuator("siren", alwaysOnDriver("tone"), alwaysOnDriver("media"))
	assert.Equal(t, StatusOk, a.Enable(context.Background()))
	assert.True(t, a.Enabled())
}

func TestActuatorFallsBackWhenPrimaryFails(t *testing.T) {
	a := NewActuator("flashlight", failingDriver("torch"), alwaysOnDriver("screen"))
	assert.Equal(t, StatusDegraded, a.Enable(context.Background()))
	assert.True(t, a.Enabled())
}

func TestActuatorFailsWhenAllDriversFail(t *testing.T) {
	a := NewActuator("siren", failingDriver("tone"), failingDriver("media"))
	assert.Equal(t, StatusFailed, a.Enable(context.Background()))
	assert.False(t, a.Enabled())
}

func TestActuatorEnableIdempotent(t *testing.T) {
	starts := 0
	a := NewActuator("siren", DriverFunc{Label: "tone", OnStart: func(context.Context) error {
		starts++
		return nil
	}}, nil)
	assert.Equal(t, StatusOk, a.Enable(context.Background()))
	assert.Equal(t, StatusOk, a.Enable(context.Background()))
	assert.Equal(t, 1, starts)
}

func TestActuatorDisableIdempotent(t *testing.T) {
	stops := 0
	a := NewActuator("siren", DriverFunc{Label: "tone", OnStop: func(context.Context) error {
		stops++
		return nil
	}}, nil)
	a.Disable(context.Background()) // 未开启时空操作
	a.Enable(context.Background())
	a.Disable(context.Background())
	a.Disable(context.Background())
	assert.Equal(t, 1, stops)
}

func TestDispatcherIndependentCells(t *testing.T) {
	// SMS 网关失败不影响 WhatsApp 深链格
	sms := &fakeSMSClient{failFirst: 100}
	d := NewDispatcher(nil, notification.NewSMSGateway(notification.SMSConfig{}, sms), nil, nil)

	user := &models.User{DisplayName: "Asha", Language: "en"}
	battery := 80
	incident := &models.SOSIncident{
		Reference: "ref-1", Latitude: 19.0760, Longitude: 72.8777, BatteryLevel: &battery,
	}
	guardians := []models.GuardianContact{
		{Name: "Ravi", Phone: "+91 98765 43210"},
		{Name: "Meera", Phone: "+91 91234 56789"},
	}

	report := d.NotifyGuardians(context.Background(), user, incident, guardians)
	assert.Zero(t, report.Delivered)
	assert.Equal(t, 2, report.Failed) // 两个联系人的 SMS 格
	assert.False(t, report.AnyDelivered())

	found := false
	for _, r := range report.Results {
		if r.Channel == ChannelWhatsApp && r.Guardian == "Ravi" {
			require.True(t, r.OK)
			assert.Contains(t, r.Link, "https://wa.me/919876543210?text=")
			found = true
		}
	}
	assert.True(t, found)
}

func TestDispatcherSkipsMissingChannels(t *testing.T) {
	sms := &fakeSMSClient{}
	d := NewDispatcher(nil, notification.NewSMSGateway(notification.SMSConfig{}, sms), nil, nil)

	user := &models.User{DisplayName: "Asha", Language: "en"}
	incident := &models.SOSIncident{Reference: "ref-2", Latitude: 19.0760, Longitude: 72.8777}
	guardians := []models.GuardianContact{{Name: "Ravi", Phone: "+91 98765 43210"}}

	report := d.NotifyGuardians(context.Background(), user, incident, guardians)
	assert.Equal(t, 1, report.Delivered)
	for _, r := range report.Results {
		switch r.Channel {
		case ChannelPush, ChannelEmail:
			assert.True(t, r.Skipped, "channel %s should be skipped", r.Channel)
		}
	}
}
