package kiosk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
)

type fakeStreamer struct {
	connected  bool
	sensorData []map[string]any
	statuses   []string
	stocks     []int
}

func (f *fakeStreamer) IsConnected() bool { return f.connected }

func (f *fakeStreamer) SendSensorData(_ string, value any) error {
	f.sensorData = append(f.sensorData, value.(map[string]any))
	return nil
}

func (f *fakeStreamer) SendMachineStatus(status string, _ map[string]string, paperStock int) error {
	f.statuses = append(f.statuses, status)
	f.stocks = append(f.stocks, paperStock)
	return nil
}

func TestStatusStreamPushes(t *testing.T) {
	mock := hardware.NewMockController()
	require.NoError(t, mock.Connect())
	mock.QueueIRReadings(true)
	streamer := &fakeStreamer{connected: true}
	s := NewStatusStream(config.RealtimeConfig{}, streamer, mock, NewStock(33, 100))

	s.push()

	require.Len(t, streamer.sensorData, 1)
	assert.Equal(t, true, streamer.sensorData[0]["paperPresent"])
	assert.Equal(t, []string{"online"}, streamer.statuses)
	assert.Equal(t, []int{33}, streamer.stocks)
}

func TestStatusStreamSkipsWhenDisconnected(t *testing.T) {
	mock := hardware.NewMockController()
	require.NoError(t, mock.Connect())
	streamer := &fakeStreamer{connected: false}
	s := NewStatusStream(config.RealtimeConfig{}, streamer, mock, NewStock(10, 100))

	s.push()

	assert.Empty(t, streamer.sensorData)
	assert.Empty(t, streamer.statuses)
}

func TestStatusStreamDegradedHealth(t *testing.T) {
	mock := hardware.NewMockController()
	require.NoError(t, mock.Connect())
	mock.SetHealth(&hardware.SensorHealth{CardReaderOK: true})
	streamer := &fakeStreamer{connected: true}
	s := NewStatusStream(config.RealtimeConfig{}, streamer, mock, NewStock(10, 100))

	s.push()

	assert.Equal(t, []string{"degraded"}, streamer.statuses)
}
