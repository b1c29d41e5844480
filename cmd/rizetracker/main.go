package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"rizetracker/internal/config"
	"rizetracker/internal/pomodoro"
	"rizetracker/internal/recorder"
	"rizetracker/internal/remote"
	"rizetracker/internal/scheduler"
	"rizetracker/internal/server"
	"rizetracker/internal/session"
	"rizetracker/internal/singleton"
	"rizetracker/internal/storage"
	syncengine "rizetracker/internal/sync"
	"rizetracker/internal/tracker"
	"rizetracker/internal/tray"
	"rizetracker/pkg/logger"
)

const (
	AppName    = "RizeTracker"
	AppVersion = "1.4.0"
)

// getAppDataDir 获取应用数据目录
// Windows: %LOCALAPPDATA%\RizeTracker
// 如果环境变量不存在，则使用当前工作目录
func getAppDataDir() string {
	// 优先使用 LOCALAPPDATA 环境变量（Windows）
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		return filepath.Join(localAppData, AppName)
	}

	// 其他平台或环境变量不存在时，使用当前工作目录
	workDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("❌ 无法获取工作目录: %v", err)
	}
	return workDir
}

func main() {
	// 单实例检测 - 防止程序重复启动
	mutex, err := singleton.EnsureSingleInstance(AppName)
	if err != nil {
		// 已有实例在运行，退出
		os.Exit(1)
	}
	// 确保程序退出时释放互斥锁
	defer mutex.Close()

	// 获取应用数据目录
	appDataDir := getAppDataDir()

	// 确保应用数据目录存在
	if err := os.MkdirAll(appDataDir, 0755); err != nil {
		log.Fatalf("❌ 创建应用数据目录失败 %s: %v", appDataDir, err)
	}

	// 初始化配置管理器
	configPath := filepath.Join(appDataDir, "data", "config.json")
	configMgr, err := config.NewManager(configPath)
	if err != nil {
		log.Fatalf("❌ 初始化配置管理器失败: %v", err)
	}
	fmt.Println("✅ 配置管理器初始化完成")

	// 确保必要的目录存在
	storageCfg := configMgr.GetStorage()
	dataDir := storageCfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(appDataDir, "data")
	}
	logsDir := storageCfg.LogsDir
	if logsDir == "" {
		logsDir = filepath.Join(dataDir, "logs")
	}
	for _, dir := range []string{dataDir, logsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("❌ 创建目录失败 %s: %v", dir, err)
		}
	}
	fmt.Println("✅ 目录结构初始化完成")

	// 初始化日志系统
	if err := logger.Init(logsDir, false); err != nil {
		log.Printf("⚠️ 日志系统初始化失败: %v, 使用控制台输出", err)
	} else {
		fmt.Println("✅ 日志系统初始化完成")
		logger.Info("==================== RizeTracker %s 启动 ====================", AppVersion)
		logger.Info("应用数据目录: %s", appDataDir)
		logger.Info("数据目录: %s", dataDir)
	}

	// 初始化存储管理器
	trackingCfg := configMgr.GetTracking()
	storageMgr, err := storage.NewManager(dataDir, trackingCfg.MaxActivities)
	if err != nil {
		log.Fatalf("❌ 初始化存储管理器失败: %v", err)
	}
	fmt.Println("✅ 存储管理器初始化完成")

	// 初始化登录会话管理器（恢复上次会话）
	remoteCfg := configMgr.GetRemote()
	timeout := time.Duration(remoteCfg.TimeoutSeconds) * time.Second
	sessionMgr := session.NewManager(remoteCfg.BaseURL, remoteCfg.AnonKey, timeout, storageMgr)
	sessionMgr.Restore()
	fmt.Println("✅ 会话管理器初始化完成")

	// 初始化远端客户端与同步引擎
	remoteCli := remote.NewClient(remoteCfg.BaseURL, remoteCfg.AnonKey, timeout, sessionMgr.Token)
	syncEng := syncengine.NewEngine(remoteCli, storageMgr, sessionMgr)
	fmt.Println("✅ 同步引擎初始化完成")

	// 初始化活动记录器与追踪控制器（恢复上次追踪开关）
	rec := recorder.NewRecorder(storageMgr, syncEng, trackingCfg.MinDurationSeconds)
	tracking := tracker.NewController(rec, sessionMgr, storageMgr, trackingCfg)
	tracking.Restore()
	fmt.Println("✅ 追踪控制器初始化完成")

	// 初始化番茄钟（恢复上次状态）
	// 托盘晚于番茄钟创建,完成回调做 nil 保护
	var trayApp *tray.TrayApp
	machine := pomodoro.NewMachine(configMgr.GetPomodoro(), syncEng, storageMgr, func(mode string) {
		if trayApp != nil {
			trayApp.NotifySessionComplete(mode)
		}
	})
	machine.Restore()
	fmt.Println("✅ 番茄钟初始化完成")

	// 初始化任务调度器
	sched := scheduler.NewScheduler(configMgr, storageMgr, tracking, syncEng)
	if err := sched.Start(); err != nil {
		log.Fatalf("❌ 启动任务调度器失败: %v", err)
	}

	// 初始化 Web 服务器
	webServer := server.NewServer(configMgr, storageMgr, tracking, machine, syncEng, sessionMgr, remoteCli, AppVersion)

	// 启动 Web 服务器（在独立 goroutine 中）
	go func() {
		if err := webServer.Start(); err != nil {
			log.Printf("❌ Web 服务器错误: %v", err)
		}
	}()

	// 启动时补传上次遗留的未同步数据
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		syncEng.PushPending(ctx)
	}()

	// 获取 Web 地址
	serverCfg := configMgr.GetServer()
	webURL := fmt.Sprintf("http://%s:%d", serverCfg.Host, serverCfg.Port)

	// 初始化系统托盘
	fmt.Println("🎯 启动系统托盘...")
	trayApp = tray.NewTrayApp(
		tracking,
		machine,
		sched,
		webURL,
		func() {
			// 清理资源
			fmt.Println("📦 正在清理资源...")
			webServer.Shutdown()
			storageMgr.Close()
			logger.Close()
			fmt.Println("✅ 资源清理完成")
		},
	)

	// 运行托盘应用（阻塞）
	trayApp.Run()
}
