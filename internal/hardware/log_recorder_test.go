package hardware

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/recycle-kiosk/internal/models"
	"github.com/wfunc/recycle-kiosk/internal/repository"
)

func TestLogRecorderPersistsOnClose(t *testing.T) {
	db := repository.SetupTestDB()
	defer repository.CleanupTestDB(db)
	repo := repository.NewHardwareLogRepository(db)

	rec := NewLogRecorder(repo)

	frame := []byte{0xAA, byte(CmdServoSet), 0x01, 0x5A, 0x5A, 0x55}
	rec.RecordSend("servo", CmdServoSet, frame)
	rec.RecordError("display", CmdDisplay, "write timeout")
	rec.RecordEvent(models.HardwareLogLevelInfo, "connection", "重连成功")

	// Close 应冲刷所有未落库的缓冲条目
	rec.Close()

	logs, err := repo.GetRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)

	byFunc := make(map[string]*models.HardwareLog, len(logs))
	for _, l := range logs {
		byFunc[l.Function] = l
	}

	send := byFunc["servo"]
	require.NotNil(t, send)
	assert.Equal(t, "SEND", send.Direction)
	assert.Equal(t, models.HardwareLogLevelDebug, send.Level)
	assert.Equal(t, "SERVO_SET", send.Command)
	assert.Equal(t, fmt.Sprintf("%X", frame), send.HexData)
	assert.Equal(t, len(frame), send.BytesCount)

	fail := byFunc["display"]
	require.NotNil(t, fail)
	assert.Equal(t, models.HardwareLogLevelError, fail.Level)
	assert.Equal(t, "DISPLAY", fail.Command)

	event := byFunc["connection"]
	require.NotNil(t, event)
	assert.Equal(t, models.HardwareLogLevelInfo, event.Level)
	assert.Equal(t, "重连成功", event.ResponseMsg)
}

func TestLogRecorderControllerWiring(t *testing.T) {
	db := repository.SetupTestDB()
	defer repository.CleanupTestDB(db)
	repo := repository.NewHardwareLogRepository(db)

	rec := NewLogRecorder(repo)
	s := testSerialController()
	s.SetLogRecorder(rec)

	// 高频轮询命令不落库，低频控制命令落库
	s.recordSend(s.buildCommand(CmdReadIR, nil))
	s.recordSend(s.buildCommand(CmdLEDSet, []byte{0x01}))
	s.recordError(s.buildCommand(CmdLEDSet, []byte{0x01}), fmt.Errorf("port closed"))

	rec.Close()

	logs, err := repo.GetRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, "LED_SET", l.Command)
		assert.Equal(t, "led", l.Function)
	}
}
