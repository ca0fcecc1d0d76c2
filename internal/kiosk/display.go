package kiosk

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/hardware"
	"github.com/wfunc/recycle-kiosk/internal/logger"
)

// Display 操作界面显示。固定消息集，两行文本，
// 显示失败只记日志，不影响交易流程。
type Display struct {
	controller hardware.Controller
	logger     *zap.Logger
}

// NewDisplay 创建显示控制
func NewDisplay(controller hardware.Controller) *Display {
	return &Display{
		controller: controller,
		logger:     logger.GetModuleLogger("display"),
	}
}

func (d *Display) show(line1, line2 string) {
	if err := d.controller.DisplayMessage(line1, line2); err != nil {
		d.logger.Warn("显示更新失败", zap.Error(err))
	}
}

func (d *Display) led(state hardware.LEDState) {
	if err := d.controller.SetLED(state); err != nil {
		d.logger.Warn("LED设置失败", zap.Error(err))
	}
}

// Welcome 待机欢迎界面
func (d *Display) Welcome() {
	d.show("R3-Cycle Ready", "Scan RFID Card")
	d.led(hardware.LEDIdle)
}

// CardDetected 读到卡片，验证中
func (d *Display) CardDetected() {
	d.show("Card Detected", "Verifying...")
	d.led(hardware.LEDActive)
}

// UserVerified 验证通过，提示投纸
func (d *Display) UserVerified(name string) {
	d.show(fmt.Sprintf("Hello %s!", name), "Insert paper")
}

// Counting 逐张计数反馈
func (d *Display) Counting(count int) {
	d.show("Counting...", fmt.Sprintf("%d paper(s)", count))
}

// Success 交易成功
func (d *Display) Success(points, total int64) {
	d.show(fmt.Sprintf("Success! +%d", points), fmt.Sprintf("Total: %dpts", total))
	d.led(hardware.LEDSuccess)
}

// OfflineSuccess 离线排队成功
func (d *Display) OfflineSuccess(points, total int64) {
	d.show(fmt.Sprintf("Offline: +%d", points), fmt.Sprintf("Total: %dpts", total))
	d.led(hardware.LEDSuccess)
}

// Rejected 交易被拒绝
func (d *Display) Rejected() {
	d.show("Transaction", "Rejected")
	d.led(hardware.LEDError)
}

// NotRegistered 卡片未注册
func (d *Display) NotRegistered() {
	d.show("Card not found", "Please register")
	d.led(hardware.LEDError)
}

// Error 系统错误
func (d *Display) Error() {
	d.show("System Error", "Try again later")
	d.led(hardware.LEDError)
}

// Scanning 后台扫卡进行中
func (d *Display) Scanning() {
	d.show("Registration", "Scan your card")
	d.led(hardware.LEDScanning)
}

// ScanSuccess 扫卡成功，提示取卡
func (d *Display) ScanSuccess() {
	d.show("Scan success", "Card detected")
	d.led(hardware.LEDSuccess)
}

// ScanFailed 扫卡失败
func (d *Display) ScanFailed() {
	d.show("Scan Failed", "Try again...")
	d.led(hardware.LEDError)
}

// Dispensing 兑换出纸中
func (d *Display) Dispensing(count int) {
	d.show("Redemption", fmt.Sprintf("Dispensing x%d", count))
	d.led(hardware.LEDActive)
}

// DispenseComplete 出纸完成
func (d *Display) DispenseComplete(count int) {
	d.show("Redemption done", fmt.Sprintf("%d paper(s)", count))
	d.led(hardware.LEDSuccess)
}
