package hardware

// Controller 控制板接口
//
// 控制板集成了红外对射传感器、RFID读卡器、双路舵机、LCD显示屏
// 和状态LED，主控通过串口与其通信。mock_mode下使用MockController。
type Controller interface {
	// 连接管理
	Connect() error
	Disconnect() error
	IsConnected() bool

	// 传感器读取
	// PaperPresent 红外对射被遮挡（有纸）时返回true
	PaperPresent() (bool, error)

	// 读卡器
	// PollCard 非阻塞查询读卡器，读到卡片时第二个返回值为true
	PollCard() (*CardEvent, bool, error)

	// 舵机控制
	// SetServoAngle 设置舵机角度，角度范围 [0, 180]
	SetServoAngle(ch ServoChannel, angle float64) error

	// 显示与指示
	DisplayMessage(line1, line2 string) error
	ClearDisplay() error
	SetLED(state LEDState) error

	// 状态查询
	GetStatus() (*BoardStatus, error)
	GetSensorHealth() (*SensorHealth, error)
	SetStatusCallback(callback StatusCallback)
}
