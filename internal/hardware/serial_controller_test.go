package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSerialController() *SerialController {
	return NewSerialController(&SerialConfig{
		Port:     "/dev/null",
		BaudRate: 115200,
	})
}

func TestParseResponseFrameRoundTrip(t *testing.T) {
	s := testSerialController()

	// 应答帧与命令帧同构，按协议构造后应能原样解析出数据段
	frame := s.buildCommand(CmdPollCard, []byte{0x04, 0xA3, 0xB2, 0xC1})
	data, ok, err := parseResponseFrame(frame)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x04, 0xA3, 0xB2, 0xC1}, data)
}

func TestParseResponseFrameEmptyData(t *testing.T) {
	s := testSerialController()

	// 无卡应答数据段为空
	frame := s.buildCommand(CmdPollCard, nil)
	data, ok, err := parseResponseFrame(frame)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestParseResponseFrameIncomplete(t *testing.T) {
	s := testSerialController()
	frame := s.buildCommand(CmdReadHealth, []byte{1, 1, 1, 1})

	// 逐字节累积，帧收满之前不报错也不产出数据
	for end := 0; end < len(frame); end++ {
		_, ok, err := parseResponseFrame(frame[:end])
		assert.NoError(t, err)
		assert.False(t, ok)
	}

	_, ok, err := parseResponseFrame(frame)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseResponseFrameBadTerminator(t *testing.T) {
	s := testSerialController()
	frame := s.buildCommand(CmdReadIR, []byte{1})
	frame[len(frame)-1] = 0x00

	_, _, err := parseResponseFrame(frame)
	assert.Error(t, err)
}

func TestParseResponseFrameChecksumMismatch(t *testing.T) {
	s := testSerialController()
	frame := s.buildCommand(CmdReadIR, []byte{1})
	frame[3] ^= 0xFF // 篡改数据段，校验和不再匹配

	_, _, err := parseResponseFrame(frame)
	assert.Error(t, err)
}

func TestDiscardToFrameStart(t *testing.T) {
	s := testSerialController()
	frame := s.buildCommand(CmdReadIR, []byte{1})

	// 帧前的线路噪声被丢弃后仍能解析
	noisy := append([]byte{0x00, 0x13, 0x37}, frame...)
	data, ok, err := parseResponseFrame(discardToFrameStart(noisy))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, data)

	// 全是噪声时清空缓冲
	assert.Empty(t, discardToFrameStart([]byte{0x01, 0x02, 0x03}))
}
