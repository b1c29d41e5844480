package pomodoro

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"rizetracker/internal/observability"
	"rizetracker/pkg/logger"
	"rizetracker/pkg/models"

	"github.com/google/uuid"
)

const stateKey = "pomodoro_state"

// syncEngine 会话上报入口
type syncEngine interface {
	OpenFocusSession(ctx context.Context, s *models.FocusSession)
	CompleteFocusSession(ctx context.Context, s *models.FocusSession)
	AbandonFocusSession(id string)
}

// store 会话历史与状态快照的本地持久化
type store interface {
	SaveFocusSession(*models.FocusSession) error
	SetState(key, value string) error
	GetState(key string) (string, error)
}

// Machine 番茄钟状态机
// 两个状态: 空闲和倒计时中;长驻循环,没有终态
// 每次状态变更前都会先撤销旧的滴答源,保证任何时刻
// 最多只有一个滴答源存活,被撤销的滴答永远不会再改状态
type Machine struct {
	cfg  models.PomodoroConfig
	sync syncEngine
	st   store

	// 完成时的通知回调(托盘提示),可以为空
	onComplete func(mode string)

	mu         sync.Mutex
	running    bool
	mode       string
	timeLeft   int
	completed  int
	current    *models.FocusSession
	cancel     context.CancelFunc
	generation uint64

	now func() time.Time
}

// NewMachine 创建番茄钟状态机
// 初始状态: 空闲(focus, 标称时长)
func NewMachine(cfg models.PomodoroConfig, se syncEngine, st store, onComplete func(mode string)) *Machine {
	if cfg.FocusSeconds <= 0 {
		cfg.FocusSeconds = 25 * 60
	}
	if cfg.ShortBreakSeconds <= 0 {
		cfg.ShortBreakSeconds = 5 * 60
	}
	if cfg.LongBreakSeconds <= 0 {
		cfg.LongBreakSeconds = 15 * 60
	}
	if cfg.SessionsBeforeLong <= 0 {
		cfg.SessionsBeforeLong = 4
	}

	return &Machine{
		cfg:        cfg,
		sync:       se,
		st:         st,
		onComplete: onComplete,
		mode:       models.ModeFocus,
		timeLeft:   cfg.FocusSeconds,
		now:        time.Now,
	}
}

// duration 模式的标称时长(秒)
func (m *Machine) duration(mode string) int {
	switch mode {
	case models.ModeShortBreak:
		return m.cfg.ShortBreakSeconds
	case models.ModeLongBreak:
		return m.cfg.LongBreakSeconds
	default:
		return m.cfg.FocusSeconds
	}
}

func validMode(mode string) bool {
	switch mode {
	case models.ModeFocus, models.ModeShortBreak, models.ModeLongBreak:
		return true
	}
	return false
}

// Restore 从本地存储恢复状态快照
// 只恢复空闲态的模式/剩余时间/完成计数,不会恢复进行中的倒计时
func (m *Machine) Restore() {
	raw, err := m.st.GetState(stateKey)
	if err != nil || raw == "" {
		return
	}

	var snap models.PomodoroSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		logger.Warn("番茄钟状态无法解析,使用初始值: %v", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if validMode(snap.Mode) {
		m.mode = snap.Mode
	}
	m.completed = snap.CompletedSessions
	if snap.TimeLeftSeconds > 0 && snap.TimeLeftSeconds <= m.duration(m.mode) {
		m.timeLeft = snap.TimeLeftSeconds
	} else {
		m.timeLeft = m.duration(m.mode)
	}
	logger.Info("番茄钟状态已恢复: %s 剩余 %d 秒, 已完成 %d 个", m.mode, m.timeLeft, m.completed)
}

// Start 开始倒计时
// 已在倒计时中则为空操作;从暂停处继续时开出一个新会话,
// 被中断的旧会话视为放弃
func (m *Machine) Start() {
	m.mu.Lock()

	if m.running {
		m.mu.Unlock()
		return
	}

	// 任何状态变更前先撤销旧滴答源,避免叠加
	m.cancelTickerLocked()
	m.abandonCurrentLocked()

	s := &models.FocusSession{
		ID:              uuid.NewString(),
		Mode:            m.mode,
		DurationSeconds: m.duration(m.mode),
		StartedAt:       m.now(),
	}
	m.current = s
	m.running = true

	m.generation++
	gen := m.generation
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.tickLoop(ctx, gen)

	m.persistLocked()
	opened := *s
	m.mu.Unlock()

	logger.Info("番茄钟开始: %s (%d秒)", opened.Mode, opened.DurationSeconds)

	// 远端开出临时会话行,失败不影响计时
	go m.sync.OpenFocusSession(context.Background(), &opened)
}

// Pause 暂停倒计时
// 保留剩余时间;进行中的会话被放弃,不会被标记完成或上报
func (m *Machine) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.cancelTickerLocked()
	m.abandonCurrentLocked()
	m.running = false
	m.persistLocked()

	logger.Info("番茄钟已暂停: %s 剩余 %d 秒", m.mode, m.timeLeft)
}

// Reset 重置倒计时到当前模式的标称时长
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelTickerLocked()
	m.abandonCurrentLocked()
	m.running = false
	m.timeLeft = m.duration(m.mode)
	m.persistLocked()

	logger.Info("番茄钟已重置: %s", m.mode)
}

// SwitchMode 切换模式并停止倒计时
// 进行中的会话被放弃(自然完成的那次切换不走这里的放弃路径)
func (m *Machine) SwitchMode(mode string) error {
	if !validMode(mode) {
		return fmt.Errorf("invalid pomodoro mode: %s", mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelTickerLocked()
	m.abandonCurrentLocked()
	m.running = false
	m.mode = mode
	m.timeLeft = m.duration(mode)
	m.persistLocked()

	logger.Info("番茄钟切换模式: %s (%d秒)", mode, m.timeLeft)
	return nil
}

// Snapshot 返回只读状态快照
func (m *Machine) Snapshot() models.PomodoroSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Stop 关闭状态机(进程退出时调用)
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelTickerLocked()
	m.abandonCurrentLocked()
	m.running = false
	m.persistLocked()
}

// tickLoop 滴答循环,每秒一次,只在倒计时中存活
func (m *Machine) tickLoop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(gen)
		}
	}
}

// tick 处理一次滴答
// 世代号不匹配说明滴答源已被撤销,直接忽略,
// 保证被取消的计时器不会再改动状态
func (m *Machine) tick(gen uint64) {
	m.mu.Lock()

	if !m.running || gen != m.generation {
		m.mu.Unlock()
		return
	}

	m.timeLeft--
	if m.timeLeft > 0 {
		m.persistLocked()
		m.mu.Unlock()
		return
	}

	m.completeLocked()
	m.mu.Unlock()
}

// completeLocked 倒计时自然走到 0
// 结算当前会话、计数、自动切换下一个模式并停在空闲态
// 调用方必须持有 m.mu
func (m *Machine) completeLocked() {
	m.cancelTickerLocked()
	m.running = false

	finishedMode := m.mode
	s := m.current
	m.current = nil

	// 自动切换: 专注结束后,每完成 N 个进入长休息,否则短休息;
	// 休息结束后一律回到专注
	var nextMode string
	if finishedMode == models.ModeFocus {
		m.completed++
		observability.RecordPomodoroCompleted()
		if m.completed%m.cfg.SessionsBeforeLong == 0 {
			nextMode = models.ModeLongBreak
		} else {
			nextMode = models.ModeShortBreak
		}
	} else {
		nextMode = models.ModeFocus
	}

	m.mode = nextMode
	m.timeLeft = m.duration(nextMode)
	m.persistLocked()

	logger.Info("番茄钟完成: %s, 已完成 %d 个专注, 下一个模式: %s", finishedMode, m.completed, nextMode)

	if s != nil {
		endedAt := m.now()
		s.EndedAt = &endedAt
		s.Completed = true

		// 本地先落账(权威),再尽力上报
		if err := m.st.SaveFocusSession(s); err != nil {
			logger.Error("保存番茄钟会话失败: %v", err)
		}
		finished := *s
		go m.sync.CompleteFocusSession(context.Background(), &finished)
	}

	if m.onComplete != nil {
		go m.onComplete(finishedMode)
	}
}

// cancelTickerLocked 撤销当前滴答源
// 世代号同时递增,在途的旧滴答回来也会被拒绝
func (m *Machine) cancelTickerLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.generation++
}

// abandonCurrentLocked 放弃进行中的会话
func (m *Machine) abandonCurrentLocked() {
	if m.current == nil {
		return
	}
	m.sync.AbandonFocusSession(m.current.ID)
	logger.Debug("番茄钟会话被放弃: %s", m.current.ID)
	m.current = nil
}

func (m *Machine) snapshotLocked() models.PomodoroSnapshot {
	return models.PomodoroSnapshot{
		IsActive:          m.running,
		Mode:              m.mode,
		TimeLeftSeconds:   m.timeLeft,
		CompletedSessions: m.completed,
	}
}

func (m *Machine) persistLocked() {
	data, err := json.Marshal(m.snapshotLocked())
	if err != nil {
		return
	}
	if err := m.st.SetState(stateKey, string(data)); err != nil {
		logger.Warn("持久化番茄钟状态失败: %v", err)
	}
}
