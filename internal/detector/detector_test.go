package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/recycle-kiosk/internal/config"
	apperrors "github.com/wfunc/recycle-kiosk/internal/errors"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
)

func fastDetectorConfig() config.DetectorConfig {
	return config.DetectorConfig{
		PollInterval:      time.Millisecond,
		DebounceDuration:  5 * time.Millisecond,
		InitialTimeout:    100 * time.Millisecond,
		InactivityTimeout: 50 * time.Millisecond,
		MaxUnits:          20,
		PrerollWait:       50 * time.Millisecond,
		ClearWait:         50 * time.Millisecond,
	}
}

func newMock(t *testing.T) *hardware.MockController {
	mock := hardware.NewMockController()
	require.NoError(t, mock.Connect())
	return mock
}

func TestDetectUnitsCountsAndCompletes(t *testing.T) {
	mock := newMock(t)
	// 前置检查通过后，一张纸持续遮挡，随后光路恢复直至静默结束
	mock.QueueIRReadings(false, false, false, false, false)
	mock.QueueIRReadings(true, true, true, true, true, true, true, true, true, true)
	mock.QueueIRReadings(false)

	var counts []int
	d := NewDetector(fastDetectorConfig(), mock)
	d.OnCount(func(c int) { counts = append(counts, c) })

	result, err := d.DetectUnits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, ReasonCompleted, result.Reason)
	assert.True(t, result.Accepted())
	assert.Equal(t, []int{1}, counts)
}

func TestDetectUnitsInitialTimeout(t *testing.T) {
	mock := newMock(t)
	mock.QueueIRReadings(false)

	d := NewDetector(fastDetectorConfig(), mock)
	result, err := d.DetectUnits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.Equal(t, ReasonTimedOut, result.Reason)
	assert.False(t, result.Accepted())
}

func TestDetectUnitsCancel(t *testing.T) {
	mock := newMock(t)
	mock.QueueIRReadings(false)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	d := NewDetector(fastDetectorConfig(), mock)
	_, err := d.DetectUnits(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCanceled, apperrors.GetCode(err))
}

func TestDetectUnitsSensorFault(t *testing.T) {
	mock := newMock(t)
	mock.QueueIRReadings(false, false, false, false, false)
	mock.SetIRError(assert.AnError)

	cfg := fastDetectorConfig()
	d := NewDetector(cfg, mock)
	_, err := d.DetectUnits(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrSensorFault, apperrors.GetCode(err))
}
