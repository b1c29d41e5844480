package tracker

import (
	"errors"
	"strings"
	"sync"
	"time"

	"rizetracker/internal/session"
	"rizetracker/pkg/logger"
	"rizetracker/pkg/models"
	"rizetracker/pkg/utils"
)

// ErrSignInRequired 开始追踪要求已登录
// 错误文案原样返回给调用方
var ErrSignInRequired = errors.New("Please sign in first")

// recorderIface 观测落账入口
type recorderIface interface {
	Record(surface models.Surface, startedAt time.Time, durationSeconds int) *models.Activity
}

// identity 当前登录身份
type identity interface {
	Current() *session.Session
}

// stateStore 追踪开关的持久化
type stateStore interface {
	SetState(key, value string) error
	GetState(key string) (string, error)
}

const trackingStateKey = "is_tracking"

// Controller 标签页/窗口追踪控制器
// 两个状态: 空闲(无观测)和观测中(surface + 起点)
// 不变量: 换到新 surface 之前必须先把旧观测冲账成活动,
// 任何时刻最多只有一个 surface 在计时
type Controller struct {
	recorder recorderIface
	identity identity
	store    stateStore

	internalSchemes []string
	requireSignIn   bool

	mu         sync.Mutex
	isTracking bool
	current    *models.ObservedSurface

	now func() time.Time
}

// NewController 创建追踪控制器
func NewController(rec recorderIface, id identity, store stateStore, cfg models.TrackingConfig) *Controller {
	return &Controller{
		recorder:        rec,
		identity:        id,
		store:           store,
		internalSchemes: cfg.InternalSchemes,
		requireSignIn:   cfg.RequireSignIn,
		now:             time.Now,
	}
}

// Restore 从本地存储恢复追踪开关
// 恢复只还原开关,不会凭空恢复观测中的 surface
func (c *Controller) Restore() {
	v, err := c.store.GetState(trackingStateKey)
	if err != nil {
		logger.Warn("恢复追踪状态失败: %v", err)
		return
	}
	if v == "1" {
		c.mu.Lock()
		c.isTracking = true
		c.mu.Unlock()
		logger.Info("追踪状态已恢复: 开启")
	}
}

// Enable 开启追踪
// 开启后不立刻指定 surface,等下一个激活事件
func (c *Controller) Enable() error {
	if c.requireSignIn && c.identity.Current() == nil {
		return ErrSignInRequired
	}

	c.mu.Lock()
	c.isTracking = true
	c.mu.Unlock()

	c.persist(true)
	logger.Info("活动追踪已开启")
	return nil
}

// Disable 关闭追踪
// 关闭前把当前观测冲账
func (c *Controller) Disable() {
	c.mu.Lock()
	c.flushLocked()
	c.isTracking = false
	c.mu.Unlock()

	c.persist(false)
	logger.Info("活动追踪已关闭")
}

// HandleActivated 处理 surface 激活事件
// 先冲账旧观测,再决定是否开始新观测:
// 不可追踪的 surface(内部页面、元数据缺失)让控制器回到无观测状态
func (c *Controller) HandleActivated(s models.Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTracking {
		return
	}

	c.flushLocked()

	if !c.trackable(s) {
		c.current = nil
		return
	}

	if s.Domain == "" {
		s.Domain = utils.ExtractDomain(s.URL)
	}

	c.current = &models.ObservedSurface{
		Surface: s,
		Since:   c.now(),
	}
	logger.Debug("开始观测: %s (%s)", s.Title, s.Domain)
}

// HandleUpdated 处理 surface 更新事件
// 只有聚焦中的 URL 变化才构成一次切换
func (c *Controller) HandleUpdated(s models.Surface, urlChanged, isFocused bool) {
	if urlChanged && isFocused {
		c.HandleActivated(s)
	}
}

// HandleFocusGained 浏览器重新获得焦点
func (c *Controller) HandleFocusGained(s models.Surface) {
	c.HandleActivated(s)
}

// HandleFocusLost 浏览器失去焦点
// 冲账当前观测,追踪开关保持不变
func (c *Controller) HandleFocusLost() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTracking {
		return
	}
	c.flushLocked()
}

// IsTracking 追踪开关状态
func (c *Controller) IsTracking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isTracking
}

// Snapshot 返回只读状态快照
func (c *Controller) Snapshot() models.TrackingSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := models.TrackingSnapshot{IsTracking: c.isTracking}
	if c.current != nil {
		copied := *c.current
		snap.CurrentSurface = &copied
	}
	return snap
}

// flushLocked 把当前观测交给记录器并清空
// 没有观测时是空操作;阈值判断由记录器负责
// 调用方必须持有 c.mu
func (c *Controller) flushLocked() {
	if c.current == nil {
		return
	}

	obs := c.current
	c.current = nil

	duration := int(c.now().Sub(obs.Since).Seconds())
	c.recorder.Record(obs.Surface, obs.Since, duration)
}

// trackable 判断 surface 是否可以追踪
// 元数据读取失败在上游已退化为空 URL,这里一并判为不可追踪
func (c *Controller) trackable(s models.Surface) bool {
	if s.URL == "" {
		return false
	}
	for _, scheme := range c.internalSchemes {
		if strings.HasPrefix(s.URL, scheme) {
			return false
		}
	}
	return true
}

func (c *Controller) persist(on bool) {
	v := "0"
	if on {
		v = "1"
	}
	if err := c.store.SetState(trackingStateKey, v); err != nil {
		logger.Warn("持久化追踪状态失败: %v", err)
	}
}
