package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/logger"
	"github.com/wfunc/recycle-kiosk/internal/models"
	"github.com/wfunc/recycle-kiosk/internal/repository"
)

// LogRecorder 控制板交互日志落库。异步缓冲批量写入，
// 串口操作路径上只做非阻塞入队。
type LogRecorder struct {
	repo     repository.HardwareLogRepository
	logger   *zap.Logger
	mu       sync.Mutex
	buffer   []*models.HardwareLog
	bufferCh chan *models.HardwareLog
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLogRecorder 创建硬件日志记录器
func NewLogRecorder(repo repository.HardwareLogRepository) *LogRecorder {
	r := &LogRecorder{
		repo:     repo,
		logger:   logger.GetModuleLogger("hardware"),
		buffer:   make([]*models.HardwareLog, 0, 100),
		bufferCh: make(chan *models.HardwareLog, 1000),
		stopCh:   make(chan struct{}),
	}

	go r.backgroundWriter()

	return r
}

func (r *LogRecorder) backgroundWriter() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case entry := <-r.bufferCh:
			r.mu.Lock()
			r.buffer = append(r.buffer, entry)
			if len(r.buffer) >= 100 {
				r.flushBuffer()
			}
			r.mu.Unlock()

		case <-ticker.C:
			r.mu.Lock()
			r.flushBuffer()
			r.mu.Unlock()

		case <-r.stopCh:
			// 退出前写入剩余的日志
			r.mu.Lock()
			for {
				select {
				case entry := <-r.bufferCh:
					r.buffer = append(r.buffer, entry)
					continue
				default:
				}
				break
			}
			r.flushBuffer()
			r.mu.Unlock()
			return
		}
	}
}

func (r *LogRecorder) flushBuffer() {
	if len(r.buffer) == 0 {
		return
	}

	if err := r.repo.BatchCreate(context.Background(), r.buffer); err != nil {
		r.logger.Error("批量写入硬件日志失败", zap.Error(err))
	}
	r.buffer = r.buffer[:0]
}

// Close 停止后台写入并落盘缓冲中的日志
func (r *LogRecorder) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
}

func (r *LogRecorder) enqueue(entry *models.HardwareLog) {
	select {
	case r.bufferCh <- entry:
	default:
		// 缓冲已满时丢弃，不阻塞串口路径
	}
}

// RecordSend 记录一次下行命令
func (r *LogRecorder) RecordSend(function string, cmd Command, frame []byte) {
	r.enqueue(&models.HardwareLog{
		Direction:  "SEND",
		Level:      models.HardwareLogLevelDebug,
		Command:    commandName(cmd),
		Function:   function,
		HexData:    fmt.Sprintf("%X", frame),
		BytesCount: len(frame),
	})
}

// RecordError 记录一次交互失败
func (r *LogRecorder) RecordError(function string, cmd Command, errMsg string) {
	r.enqueue(&models.HardwareLog{
		Direction: "SEND",
		Level:     models.HardwareLogLevelError,
		Command:   commandName(cmd),
		Function:  function,
		ErrorMsg:  errMsg,
	})
}

// RecordEvent 记录连接层事件（断开、重连）
func (r *LogRecorder) RecordEvent(level models.HardwareLogLevel, function, msg string) {
	r.enqueue(&models.HardwareLog{
		Direction:   "SEND",
		Level:       level,
		Function:    function,
		ResponseMsg: msg,
	})
}

// commandName 命令字节的可读名称
func commandName(cmd Command) string {
	switch cmd {
	case CmdServoSet:
		return "SERVO_SET"
	case CmdLEDSet:
		return "LED_SET"
	case CmdDisplay:
		return "DISPLAY"
	case CmdClearDisplay:
		return "CLEAR_DISPLAY"
	case CmdReadIR:
		return "READ_IR"
	case CmdPollCard:
		return "POLL_CARD"
	case CmdReadHealth:
		return "READ_HEALTH"
	case CmdHeartbeat:
		return "HEARTBEAT"
	default:
		return fmt.Sprintf("0x%02X", byte(cmd))
	}
}
