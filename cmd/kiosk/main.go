package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/actuator"
	"github.com/wfunc/recycle-kiosk/internal/backend"
	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/database"
	"github.com/wfunc/recycle-kiosk/internal/detector"
	apperrors "github.com/wfunc/recycle-kiosk/internal/errors"
	"github.com/wfunc/recycle-kiosk/internal/gateway"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
	"github.com/wfunc/recycle-kiosk/internal/kiosk"
	"github.com/wfunc/recycle-kiosk/internal/logger"
	"github.com/wfunc/recycle-kiosk/internal/realtime"
	"github.com/wfunc/recycle-kiosk/internal/repository"
	"github.com/wfunc/recycle-kiosk/internal/server"
	"github.com/wfunc/recycle-kiosk/internal/syncer"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// App 回收机主程序
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	hardwareMgr  *hardware.Manager
	client       *backend.Client
	monitor      *backend.Monitor
	realtime     *realtime.Client
	syncer       *syncer.Syncer
	orchestrator *kiosk.Orchestrator
	dispatcher   *kiosk.Dispatcher
	heartbeat    *kiosk.Heartbeat
	statusStream *kiosk.StatusStream
	maintenance  *server.Server
	stock        *kiosk.Stock
	hwRecorder   *hardware.LogRecorder

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	setupSystem(&cfg.System)

	app := NewApp(cfg)
	if err := app.Start(); err != nil {
		logger.Fatal("回收机启动失败", zap.Error(err))
	}

	app.WaitForShutdown()

	if err := app.Shutdown(); err != nil {
		logger.Error("回收机关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("回收机已安全关闭")
}

// NewApp 创建主程序实例
func NewApp(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 初始化组件并启动所有服务
func (a *App) Start() error {
	a.logger.Info("正在启动回收机控制程序...",
		zap.String("version", Version),
		zap.String("machine_id", a.cfg.Machine.ID))

	if err := a.initDatabase(); err != nil {
		return err
	}
	if err := a.initHardware(); err != nil {
		return err
	}
	a.initComponents()
	a.startServices()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		a.logger.Info("配置已更新，正在重新加载...")
		a.reloadConfig(newCfg)
	})

	a.logger.Info("回收机启动成功",
		zap.Bool("mock_hardware", a.hardwareMgr.IsMockMode()),
		zap.Bool("realtime", a.cfg.Realtime.Enabled))
	return nil
}

func (a *App) initDatabase() error {
	if err := database.Init(&a.cfg.Database); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	if a.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}
	return nil
}

func (a *App) initHardware() error {
	a.hardwareMgr = hardware.NewManager(&a.cfg.Hardware)
	if err := a.hardwareMgr.Start(a.ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrSerialPortOpen, "控制板连接失败")
	}
	return nil
}

func (a *App) initComponents() {
	db := database.GetDB()
	users := repository.NewCachedUserRepository(db)
	txns := repository.NewPendingTransactionRepository(db)
	syncLogs := repository.NewSyncLogRepository(db)
	redemptions := repository.NewRedemptionRepository(db)
	hardwareLogs := repository.NewHardwareLogRepository(db)

	a.hwRecorder = hardware.NewLogRecorder(hardwareLogs)
	a.hardwareMgr.SetLogRecorder(a.hwRecorder)

	controller := a.hardwareMgr.Controller()
	display := kiosk.NewDisplay(controller)

	a.client = backend.NewClient(a.cfg.Backend, a.cfg.Machine)
	a.monitor = backend.NewMonitor(a.client, a.cfg.Sync)
	a.stock = kiosk.NewStock(int64(a.cfg.Machine.PaperStock), int64(a.cfg.Machine.PaperCapacity))

	gw := gateway.NewGateway(a.client, a.monitor, users, txns, a.cfg.Machine)
	a.syncer = syncer.NewSyncer(a.client, a.monitor, txns, syncLogs, a.cfg.Sync)

	det := detector.NewDetector(a.cfg.Detector, controller)
	sequencer := actuator.NewSequencer(a.cfg.Actuator, controller)

	// 实时通道未启用时用独立的扫卡互斥门，行为不变
	var gate *realtime.ScanGate
	var telemetry kiosk.Telemetry
	var notifier kiosk.RedemptionNotifier
	var streamer kiosk.StatusStreamer
	if a.cfg.Realtime.Enabled {
		a.realtime = realtime.NewClient(a.cfg.Realtime, a.cfg.Machine)
		gate = a.realtime.Gate()
		telemetry = a.realtime
		notifier = a.realtime
		streamer = a.realtime
	} else {
		gate = realtime.NewScanGate(a.cfg.Realtime.ScanCooldown, a.cfg.Realtime.CooldownSkipWindow)
	}

	a.orchestrator = kiosk.NewOrchestrator(a.cfg.Identity, controller, gate, gw, det, telemetry)
	a.dispatcher = kiosk.NewDispatcher(a.cfg.Redeem, a.client, sequencer, display, a.stock, redemptions, notifier)
	a.heartbeat = kiosk.NewHeartbeat(a.cfg.Heartbeat, a.client, controller, a.stock)

	if a.realtime != nil {
		scanner := kiosk.NewScanner(a.cfg.Identity, controller, display, gate, a.realtime)
		a.realtime.OnScanRequest(func(req *realtime.ScanRequest) {
			scanner.HandleRequest(a.ctx, req)
		})
		a.realtime.OnRedemption(func(push *realtime.RedemptionPush) {
			a.dispatcher.HandlePush(a.ctx, push)
		})
		a.realtime.OnCommand(func(cmd *realtime.Command) {
			a.handleCommand(cmd, sequencer)
		})
		a.statusStream = kiosk.NewStatusStream(a.cfg.Realtime, streamer, controller, a.stock)
	}

	if a.cfg.Server.Enabled {
		var connChecker server.ConnChecker
		if a.realtime != nil {
			connChecker = a.realtime
		}
		router := server.NewRouter(a.cfg.Server.Mode, &server.Deps{
			Machine:      a.cfg.Machine,
			Security:     a.cfg.Security,
			Controller:   controller,
			Orchestrator: a.orchestrator,
			Monitor:      a.monitor,
			Realtime:     connChecker,
			Stock:        a.stock,
			Sequencer:    sequencer,
			Syncer:       a.syncer,
			Txns:         txns,
			Redemptions:  redemptions,
			Users:        users,
			HardwareLogs: hardwareLogs,
			SyncLogs:     syncLogs,
		})
		a.maintenance = server.New(a.cfg.Server, router)
	}
}

// handleCommand 处理管理端下发的控制命令
func (a *App) handleCommand(cmd *realtime.Command, sequencer *actuator.Sequencer) {
	a.logger.Info("收到管理命令",
		zap.String("command", cmd.Command),
		zap.String("from", cmd.FromAdmin))

	switch cmd.Command {
	case "restart":
		// 交给进程管理器重新拉起
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
	case "dispense_test":
		if sequencer.Busy() {
			a.logger.Warn("出纸机构正忙，忽略测试命令")
			return
		}
		if err := sequencer.RunCycles(a.ctx, "maintenance", 1); err != nil {
			a.logger.Error("出纸测试失败", zap.Error(err))
		}
	case "sync_now":
		if _, err := a.syncer.SyncPending(a.ctx, "remote"); err != nil {
			a.logger.Error("远程触发补传失败", zap.Error(err))
		}
	default:
		a.logger.Warn("未知管理命令", zap.String("command", cmd.Command))
	}
}

func (a *App) startServices() {
	a.run(func() { a.orchestrator.Run(a.ctx) })
	a.run(func() { a.dispatcher.Run(a.ctx) })
	a.run(func() { a.heartbeat.Run(a.ctx) })
	a.run(func() { a.syncer.Run(a.ctx) })

	if a.realtime != nil {
		a.run(func() { a.realtime.Run(a.ctx) })
		a.run(func() { a.statusStream.Run(a.ctx) })
	}

	if a.maintenance != nil {
		a.run(func() {
			if err := a.maintenance.Start(); err != nil {
				a.logger.Error("维护API服务器异常退出", zap.Error(err))
			}
		})
	}
}

func (a *App) run(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// reloadConfig 应用热更新后的配置
func (a *App) reloadConfig(newCfg *config.Config) {
	a.cfg = newCfg

	// 运行中组件持有各自的配置快照，热更新当前只调整日志级别
	logger.SetLevel(newCfg.Log.Level)

	a.logger.Info("配置重新加载完成")
}

// WaitForShutdown 阻塞等待退出信号
func (a *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-sigCh
	a.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭
func (a *App) Shutdown() error {
	a.logger.Info("正在优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.maintenance != nil {
		if err := a.maintenance.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("维护API服务器关闭失败", zap.Error(err))
		}
	}

	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.logger.Info("所有后台任务已退出")
	case <-shutdownCtx.Done():
		a.logger.Warn("关闭超时，强制退出")
	}

	if err := a.hardwareMgr.Stop(); err != nil {
		a.logger.Warn("控制板断开失败", zap.Error(err))
	}
	if a.hwRecorder != nil {
		a.hwRecorder.Close()
	}
	if err := database.Close(); err != nil {
		a.logger.Warn("数据库关闭失败", zap.Error(err))
	}
	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
	return nil
}

// setupSystem 应用系统级配置
func setupSystem(cfg *config.SystemConfig) {
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}
}

func printVersion() {
	fmt.Printf("recycle-kiosk %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
	fmt.Printf("  go version: %s\n", runtime.Version())
}
