package sync

import (
	"context"
	"sync"
	"time"

	"rizetracker/internal/observability"
	"rizetracker/internal/remote"
	"rizetracker/internal/session"
	"rizetracker/pkg/logger"
	"rizetracker/pkg/models"
)

// localStore 同步引擎依赖的本地存储子集
type localStore interface {
	UnsyncedActivities() ([]*models.Activity, error)
	MarkActivitySynced(id string) error
	MarkActivitiesSynced(ids []string) error
	UnsyncedFocusSessions() ([]*models.FocusSession, error)
	MarkFocusSessionSynced(id string) error
}

// Identity 当前登录身份提供者
type Identity interface {
	Current() *session.Session
}

// activityRow 远端 activities 表的行结构
type activityRow struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Name              string    `json:"name"`
	URL               string    `json:"url,omitempty"`
	Domain            string    `json:"domain,omitempty"`
	Category          string    `json:"category"`
	Duration          int       `json:"duration"`
	Timestamp         time.Time `json:"timestamp"`
	ProductivityScore int       `json:"productivity_score"`
	UserID            string    `json:"user_id"`
}

// sessionRow 远端 focus_sessions 表的行结构
type sessionRow struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Duration  int        `json:"duration"`
	Completed bool       `json:"completed"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	UserID    string     `json:"user_id"`
}

// Engine 远端同步引擎
// 所有推送都是尽力而为: 失败只记日志,本地记录保持未同步,
// 等待下一个自然时机(进程启动、登录成功、显式补传)再试
// 同步永远不阻塞、不破坏本地记录路径
type Engine struct {
	store    remote.Store
	local    localStore
	identity Identity

	// 已成功在远端开出临时行的会话 id
	// 完成推送据此决定走 update 还是退化为 insert
	mu     sync.Mutex
	opened map[string]bool
}

// NewEngine 创建同步引擎
func NewEngine(store remote.Store, local localStore, identity Identity) *Engine {
	return &Engine{
		store:    store,
		local:    local,
		identity: identity,
		opened:   make(map[string]bool),
	}
}

// PushOne 推送单条活动
// 未登录时静默跳过: 同步暂停,本地记录照常保留
func (e *Engine) PushOne(ctx context.Context, a *models.Activity) {
	sess := e.identity.Current()
	if sess == nil {
		logger.Debug("未登录,跳过活动同步: %s", a.ID)
		return
	}

	if err := e.store.Insert(ctx, "activities", toActivityRow(a, sess.UserID)); err != nil {
		logger.Warn("活动同步失败(等待补传): %s: %v", a.ID, err)
		observability.RecordPush(false)
		return
	}

	if err := e.local.MarkActivitySynced(a.ID); err != nil {
		logger.Error("标记活动已同步失败: %s: %v", a.ID, err)
		return
	}
	a.Synced = true
	observability.RecordPush(true)
	e.updateBacklog()
}

// PushPending 补传所有未同步记录
// 活动整批插入,要么全部成功要么全部保持未同步;
// 已完成的番茄钟会话逐条推送,单条确认
func (e *Engine) PushPending(ctx context.Context) {
	sess := e.identity.Current()
	if sess == nil {
		logger.Debug("未登录,跳过补传")
		return
	}

	e.pushPendingActivities(ctx, sess.UserID)
	e.pushPendingSessions(ctx, sess.UserID)
	e.updateBacklog()
}

func (e *Engine) pushPendingActivities(ctx context.Context, userID string) {
	pending, err := e.local.UnsyncedActivities()
	if err != nil {
		logger.Error("读取未同步活动失败: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	rows := make([]activityRow, len(pending))
	ids := make([]string, len(pending))
	for i, a := range pending {
		rows[i] = toActivityRow(a, userID)
		ids[i] = a.ID
	}

	if err := e.store.BulkInsert(ctx, "activities", rows); err != nil {
		logger.Warn("批量补传 %d 条活动失败(保持未同步): %v", len(rows), err)
		observability.RecordPush(false)
		return
	}

	if err := e.local.MarkActivitiesSynced(ids); err != nil {
		logger.Error("批量标记已同步失败: %v", err)
		return
	}
	observability.RecordPush(true)
	logger.Info("补传完成: %d 条活动", len(rows))
}

func (e *Engine) pushPendingSessions(ctx context.Context, userID string) {
	pending, err := e.local.UnsyncedFocusSessions()
	if err != nil {
		logger.Error("读取未同步会话失败: %v", err)
		return
	}

	for _, s := range pending {
		if err := e.store.Insert(ctx, "focus_sessions", toSessionRow(s, userID)); err != nil {
			logger.Warn("补传会话失败(保持未同步): %s: %v", s.ID, err)
			observability.RecordPush(false)
			continue
		}
		if err := e.local.MarkFocusSessionSynced(s.ID); err != nil {
			logger.Error("标记会话已同步失败: %s: %v", s.ID, err)
			continue
		}
		observability.RecordPush(true)
	}
}

// OpenFocusSession 计时开始时在远端开出临时会话行
// 失败不影响计时,完成推送会退化为一次完整插入
func (e *Engine) OpenFocusSession(ctx context.Context, s *models.FocusSession) {
	sess := e.identity.Current()
	if sess == nil {
		return
	}

	if err := e.store.Insert(ctx, "focus_sessions", toSessionRow(s, sess.UserID)); err != nil {
		logger.Warn("远端开启会话失败: %s: %v", s.ID, err)
		observability.RecordPush(false)
		return
	}

	e.mu.Lock()
	e.opened[s.ID] = true
	e.mu.Unlock()
	observability.RecordPush(true)
}

// CompleteFocusSession 推送自然完成的会话
// 只有倒计时走到 0 的会话才会到这里,被放弃的会话永远不会
func (e *Engine) CompleteFocusSession(ctx context.Context, s *models.FocusSession) {
	sess := e.identity.Current()
	if sess == nil {
		logger.Debug("未登录,完成的会话留待补传: %s", s.ID)
		return
	}

	e.mu.Lock()
	wasOpened := e.opened[s.ID]
	delete(e.opened, s.ID)
	e.mu.Unlock()

	var err error
	if wasOpened {
		err = e.store.Update(ctx, "focus_sessions", s.ID, map[string]interface{}{
			"completed": true,
			"end_time":  s.EndedAt,
		})
	} else {
		// 开启插入没有落地,退化为插入完整的已完成行
		err = e.store.Insert(ctx, "focus_sessions", toSessionRow(s, sess.UserID))
	}

	if err != nil {
		logger.Warn("会话完成同步失败(等待补传): %s: %v", s.ID, err)
		observability.RecordPush(false)
		return
	}

	if err := e.local.MarkFocusSessionSynced(s.ID); err != nil {
		logger.Error("标记会话已同步失败: %s: %v", s.ID, err)
		return
	}
	s.Synced = true
	observability.RecordPush(true)
}

// AbandonFocusSession 放弃会话时清理开启记录
// 被放弃的会话不重试、不标记完成
func (e *Engine) AbandonFocusSession(id string) {
	e.mu.Lock()
	delete(e.opened, id)
	e.mu.Unlock()
}

// updateBacklog 刷新未同步积压指标
func (e *Engine) updateBacklog() {
	activities, err := e.local.UnsyncedActivities()
	if err != nil {
		return
	}
	sessions, err := e.local.UnsyncedFocusSessions()
	if err != nil {
		return
	}
	observability.SetBacklog(len(activities) + len(sessions))
}

func toActivityRow(a *models.Activity, userID string) activityRow {
	return activityRow{
		ID:                a.ID,
		Type:              a.Kind,
		Name:              a.Name,
		URL:               a.URL,
		Domain:            a.Domain,
		Category:          a.Category,
		Duration:          a.DurationSeconds,
		Timestamp:         a.StartedAt,
		ProductivityScore: a.ProductivityScore,
		UserID:            userID,
	}
}

func toSessionRow(s *models.FocusSession, userID string) sessionRow {
	return sessionRow{
		ID:        s.ID,
		Type:      s.Mode,
		Duration:  s.DurationSeconds,
		Completed: s.Completed,
		StartTime: s.StartedAt,
		EndTime:   s.EndedAt,
		UserID:    userID,
	}
}
