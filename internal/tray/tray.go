package tray

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"rizetracker/internal/pomodoro"
	"rizetracker/internal/scheduler"
	"rizetracker/internal/tracker"
	"rizetracker/pkg/models"
	"rizetracker/pkg/utils"

	"github.com/getlantern/systray"
)

// TrayApp 托盘应用
// 扩展的角标(badge)在桌面端以托盘文字呈现:
// 倒计时中显示剩余时间,追踪中显示 ● 标记
type TrayApp struct {
	tracking  *tracker.Controller
	machine   *pomodoro.Machine
	scheduler *scheduler.Scheduler
	webURL    string
	onExit    func()

	mStatus *systray.MenuItem
	mToggle *systray.MenuItem
	mTimer  *systray.MenuItem
}

// NewTrayApp 创建托盘应用
func NewTrayApp(
	tracking *tracker.Controller,
	machine *pomodoro.Machine,
	scheduler *scheduler.Scheduler,
	webURL string,
	onExit func(),
) *TrayApp {
	return &TrayApp{
		tracking:  tracking,
		machine:   machine,
		scheduler: scheduler,
		webURL:    webURL,
		onExit:    onExit,
	}
}

// Run 运行托盘应用（阻塞）
func (t *TrayApp) Run() {
	systray.Run(t.onReady, t.onQuit)
}

// onReady 托盘准备就绪
func (t *TrayApp) onReady() {
	systray.SetIcon(getIcon())
	systray.SetTitle("RizeTracker")
	systray.SetTooltip("RizeTracker - 生产力追踪\n点击右键查看选项")

	t.mStatus = systray.AddMenuItem("状态: 未追踪", "当前追踪状态")
	t.mStatus.Disable()

	systray.AddSeparator()

	t.mToggle = systray.AddMenuItem("▶️ 开始追踪", "开启或关闭活动追踪")
	t.mTimer = systray.AddMenuItem("🍅 开始番茄钟", "开始或暂停番茄钟")
	mOpen := systray.AddMenuItem("🌐 打开仪表盘", "在浏览器中打开仪表盘")

	systray.AddSeparator()

	mQuit := systray.AddMenuItem("❌ 退出程序", "退出 RizeTracker")

	// 事件循环
	go func() {
		for {
			select {
			case <-t.mToggle.ClickedCh:
				t.toggleTracking()

			case <-t.mTimer.ClickedCh:
				t.togglePomodoro()

			case <-mOpen.ClickedCh:
				fmt.Println("📱 打开浏览器...")
				t.openBrowser()

			case <-mQuit.ClickedCh:
				fmt.Println("🛑 用户请求退出...")
				systray.Quit()
				return
			}
		}
	}()

	// 状态刷新循环: 每秒同步一次标题和菜单文案
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			t.refresh()
		}
	}()
}

// refresh 按当前快照刷新托盘显示
func (t *TrayApp) refresh() {
	pomo := t.machine.Snapshot()
	isTracking := t.tracking.IsTracking()

	switch {
	case pomo.IsActive:
		systray.SetTitle(utils.FormatCountdown(pomo.TimeLeftSeconds))
	case isTracking:
		systray.SetTitle("● RizeTracker")
	default:
		systray.SetTitle("RizeTracker")
	}

	if isTracking {
		t.mStatus.SetTitle("状态: 追踪中")
		t.mToggle.SetTitle("⏸️ 停止追踪")
	} else {
		t.mStatus.SetTitle("状态: 未追踪")
		t.mToggle.SetTitle("▶️ 开始追踪")
	}

	if pomo.IsActive {
		t.mTimer.SetTitle(fmt.Sprintf("🍅 暂停番茄钟 (%s)", utils.FormatCountdown(pomo.TimeLeftSeconds)))
	} else {
		t.mTimer.SetTitle("🍅 开始番茄钟")
	}
}

// toggleTracking 切换追踪开关
func (t *TrayApp) toggleTracking() {
	if t.tracking.IsTracking() {
		t.tracking.Disable()
		fmt.Println("⏸️ 活动追踪已停止")
		return
	}

	if err := t.tracking.Enable(); err != nil {
		fmt.Printf("⚠️ 无法开启追踪: %v\n", err)
		return
	}
	fmt.Println("▶️ 活动追踪已开启")
}

// togglePomodoro 切换番茄钟
func (t *TrayApp) togglePomodoro() {
	if t.machine.Snapshot().IsActive {
		t.machine.Pause()
		fmt.Println("⏸️ 番茄钟已暂停")
		return
	}

	t.machine.Start()
	fmt.Println("🍅 番茄钟已开始")
}

// NotifySessionComplete 番茄钟完成时的托盘提示
func (t *TrayApp) NotifySessionComplete(mode string) {
	if mode == models.ModeFocus {
		systray.SetTooltip("🍅 专注完成！该休息一下了")
	} else {
		systray.SetTooltip("☕ 休息结束！准备好继续专注了吗")
	}
}

// onQuit 托盘退出
func (t *TrayApp) onQuit() {
	// 清理资源
	if t.tracking.IsTracking() {
		t.tracking.Disable()
	}
	t.machine.Stop()
	if t.scheduler.IsRunning() {
		t.scheduler.Stop()
	}

	if t.onExit != nil {
		t.onExit()
	}

	fmt.Println("👋 RizeTracker 已退出")
}

// openBrowser 打开浏览器
func (t *TrayApp) openBrowser() {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", t.webURL)
	case "darwin":
		cmd = exec.Command("open", t.webURL)
	default: // linux
		cmd = exec.Command("xdg-open", t.webURL)
	}

	if err := cmd.Start(); err != nil {
		fmt.Printf("无法打开浏览器: %v\n", err)
	}
}

// getIcon 获取托盘图标
// 优先使用可执行文件同目录下的 asserts 图标,找不到时回退到内置图标
func getIcon() []byte {
	exePath, err := os.Executable()
	baseDir := "."
	if err == nil {
		baseDir = filepath.Dir(exePath)
	}

	var candidates []string
	if runtime.GOOS == "windows" {
		// Windows 托盘图标优先使用 .ico
		candidates = []string{
			filepath.Join(baseDir, "asserts", "RizeTracker.ico"),
		}
	} else {
		candidates = []string{
			filepath.Join(baseDir, "asserts", "RizeTracker.png"),
			filepath.Join(baseDir, "asserts", "RizeTracker.ico"),
		}
	}

	for _, iconPath := range candidates {
		if data, err := os.ReadFile(iconPath); err == nil && len(data) > 0 {
			return data
		}
	}

	// 最后备选：内置的 16x16 纯色 PNG
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x91, 0x68,
		0x36, 0x00, 0x00, 0x00, 0x19, 0x49, 0x44, 0x41,
		0x54, 0x28, 0x91, 0x63, 0x64, 0x60, 0xF8, 0x0F,
		0x04, 0x0C, 0x0C, 0x8C, 0x40, 0x06, 0x06, 0x46,
		0x20, 0x03, 0x03, 0x23, 0x00, 0x00, 0x0F, 0x70,
		0x01, 0x18, 0xE5, 0xD4, 0x8F, 0x4F, 0x00, 0x00,
		0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE, 0x42,
		0x60, 0x82,
	}
}
