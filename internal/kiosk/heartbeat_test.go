package kiosk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/recycle-kiosk/internal/backend"
	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
)

type fakeHeartbeatSender struct {
	sent []*backend.Heartbeat
	err  error
}

func (f *fakeHeartbeatSender) SendHeartbeat(_ context.Context, hb *backend.Heartbeat) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, hb)
	return nil
}

func TestHeartbeatReportsStockAndHealth(t *testing.T) {
	mock := hardware.NewMockController()
	require.NoError(t, mock.Connect())
	sender := &fakeHeartbeatSender{}
	h := NewHeartbeat(config.HeartbeatConfig{Interval: time.Minute}, sender, mock, NewStock(42, 100))

	h.beat(context.Background())

	require.Len(t, sender.sent, 1)
	hb := sender.sent[0]
	assert.Equal(t, "online", hb.Status)
	assert.Equal(t, 42, hb.PaperStock)
	assert.Equal(t, 100, hb.PaperCapacity)
	assert.Equal(t, "ok", hb.SensorHealth["ir_sensor"])
	assert.Equal(t, "ok", hb.SensorHealth["servo_reward"])
}

func TestHeartbeatDegradedOnSensorFault(t *testing.T) {
	mock := hardware.NewMockController()
	require.NoError(t, mock.Connect())
	mock.SetHealth(&hardware.SensorHealth{
		IRSensorOK:     false,
		CardReaderOK:   true,
		ServoCollectOK: true,
		ServoRewardOK:  true,
	})
	sender := &fakeHeartbeatSender{}
	h := NewHeartbeat(config.HeartbeatConfig{}, sender, mock, NewStock(10, 100))

	h.beat(context.Background())

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "degraded", sender.sent[0].Status)
	assert.Equal(t, "error", sender.sent[0].SensorHealth["ir_sensor"])
	assert.Equal(t, "ok", sender.sent[0].SensorHealth["card_reader"])
}
