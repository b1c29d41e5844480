package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rizetracker/pkg/models"
	"rizetracker/pkg/utils"

	_ "modernc.org/sqlite"
)

// Manager 存储管理器
// 本地存储是权威数据源,远端只是最终一致的镜像
type Manager struct {
	db            *sql.DB
	dbPath        string
	maxActivities int
}

// NewManager 创建存储管理器
// maxActivities: 本地活动保留上限,超出后从最旧一端淘汰
func NewManager(dataDir string, maxActivities int) (*Manager, error) {
	// 确保数据目录存在
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "rizetracker.db")

	// 注意：modernc.org/sqlite 的驱动名称是 "sqlite" 而不是 "sqlite3"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxActivities <= 0 {
		maxActivities = 1000
	}

	m := &Manager{
		db:            db,
		dbPath:        dbPath,
		maxActivities: maxActivities,
	}

	if err := m.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return m, nil
}

// initSchema 初始化数据库表结构
// seq 列记录插入顺序: 列表按 seq 倒序即最近优先,容量淘汰按 seq 正序删除
func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activities (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		domain TEXT,
		url TEXT,
		category TEXT NOT NULL,
		productivity_score INTEGER NOT NULL,
		duration_seconds INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		day_key TEXT NOT NULL,
		synced BOOLEAN DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_activities_synced ON activities(synced);
	CREATE INDEX IF NOT EXISTS idx_activities_day ON activities(day_key);

	CREATE TABLE IF NOT EXISTS focus_sessions (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		completed BOOLEAN DEFAULT 0,
		synced BOOLEAN DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_synced ON focus_sessions(completed, synced);

	CREATE TABLE IF NOT EXISTS daily_stats (
		day_key TEXT PRIMARY KEY,
		total_seconds INTEGER NOT NULL DEFAULT 0,
		productive_seconds INTEGER NOT NULL DEFAULT 0,
		activity_count INTEGER NOT NULL DEFAULT 0,
		categories_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS app_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := m.db.Exec(schema)
	return err
}

// Close 关闭数据库
func (m *Manager) Close() error {
	return m.db.Close()
}

// ===== 活动 =====

// AppendActivity 追加一条活动记录
// 插入后立刻按容量上限修剪,淘汰永远从最旧一端开始
func (m *Manager) AppendActivity(a *models.Activity) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO activities (id, kind, name, domain, url, category, productivity_score, duration_seconds, started_at, day_key, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.Kind,
		a.Name,
		a.Domain,
		a.URL,
		a.Category,
		a.ProductivityScore,
		a.DurationSeconds,
		a.StartedAt,
		utils.DayKey(a.StartedAt),
		a.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	// 容量修剪: 只保留 seq 最大的 N 条
	_, err = tx.Exec(`
		DELETE FROM activities WHERE seq NOT IN (
			SELECT seq FROM activities ORDER BY seq DESC LIMIT ?
		)
	`, m.maxActivities)
	if err != nil {
		return fmt.Errorf("failed to trim activities: %w", err)
	}

	return tx.Commit()
}

// activityColumns 查询列顺序与 scanActivity 保持一致
const activityColumns = `id, kind, name, domain, url, category, productivity_score, duration_seconds, started_at, synced`

func scanActivity(rows *sql.Rows) (*models.Activity, error) {
	a := &models.Activity{}
	var domain, url sql.NullString
	err := rows.Scan(
		&a.ID,
		&a.Kind,
		&a.Name,
		&domain,
		&url,
		&a.Category,
		&a.ProductivityScore,
		&a.DurationSeconds,
		&a.StartedAt,
		&a.Synced,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}
	a.Domain = domain.String
	a.URL = url.String
	return a, nil
}

// ListActivities 按插入顺序倒序(最近优先)返回活动
// limit <= 0 表示不限制
func (m *Manager) ListActivities(limit int) ([]*models.Activity, error) {
	if limit <= 0 {
		limit = m.maxActivities
	}

	rows, err := m.db.Query(`
		SELECT `+activityColumns+` FROM activities ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	return activities, rows.Err()
}

// ListActivitiesByDay 返回指定日期键的全部活动(最近优先)
func (m *Manager) ListActivitiesByDay(dayKey string) ([]*models.Activity, error) {
	rows, err := m.db.Query(`
		SELECT `+activityColumns+` FROM activities WHERE day_key = ? ORDER BY seq DESC
	`, dayKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities by day: %w", err)
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	return activities, rows.Err()
}

// UnsyncedActivities 返回所有未同步的活动(最旧优先,便于按序补传)
func (m *Manager) UnsyncedActivities() ([]*models.Activity, error) {
	rows, err := m.db.Query(`
		SELECT ` + activityColumns + ` FROM activities WHERE synced = 0 ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced activities: %w", err)
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	return activities, rows.Err()
}

// MarkActivitySynced 标记单条活动已同步
// 幂等: id 不存在时不报错
func (m *Manager) MarkActivitySynced(id string) error {
	_, err := m.db.Exec(`UPDATE activities SET synced = 1 WHERE id = ?`, id)
	return err
}

// MarkActivitiesSynced 批量标记活动已同步
func (m *Manager) MarkActivitiesSynced(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE activities SET synced = 1 WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to mark activity %s synced: %w", id, err)
		}
	}

	return tx.Commit()
}

// CountActivities 返回本地活动总数
func (m *Manager) CountActivities() (int, error) {
	var count int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM activities`).Scan(&count)
	return count, err
}

// CleanupSyncedActivities 删除超过保留期且已同步的旧活动
func (m *Manager) CleanupSyncedActivities(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := m.db.Exec(`DELETE FROM activities WHERE synced = 1 AND started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup activities: %w", err)
	}

	return result.RowsAffected()
}

// ===== 番茄钟会话 =====

// SaveFocusSession 保存番茄钟会话(插入或整行更新)
func (m *Manager) SaveFocusSession(s *models.FocusSession) error {
	var endedAt interface{}
	if s.EndedAt != nil {
		endedAt = *s.EndedAt
	}

	_, err := m.db.Exec(`
		INSERT INTO focus_sessions (id, mode, duration_seconds, started_at, ended_at, completed, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			completed = excluded.completed,
			synced = excluded.synced
	`,
		s.ID,
		s.Mode,
		s.DurationSeconds,
		s.StartedAt,
		endedAt,
		s.Completed,
		s.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to save focus session: %w", err)
	}
	return nil
}

func scanFocusSession(rows *sql.Rows) (*models.FocusSession, error) {
	s := &models.FocusSession{}
	var endedAt sql.NullTime
	err := rows.Scan(
		&s.ID,
		&s.Mode,
		&s.DurationSeconds,
		&s.StartedAt,
		&endedAt,
		&s.Completed,
		&s.Synced,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan focus session: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return s, nil
}

// ListFocusSessions 返回最近的番茄钟会话
func (m *Manager) ListFocusSessions(limit int) ([]*models.FocusSession, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := m.db.Query(`
		SELECT id, mode, duration_seconds, started_at, ended_at, completed, synced
		FROM focus_sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query focus sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.FocusSession
	for rows.Next() {
		s, err := scanFocusSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// UnsyncedFocusSessions 返回已完成但未同步的会话
// 被放弃的会话(completed=0)永远不会被补传
func (m *Manager) UnsyncedFocusSessions() ([]*models.FocusSession, error) {
	rows, err := m.db.Query(`
		SELECT id, mode, duration_seconds, started_at, ended_at, completed, synced
		FROM focus_sessions
		WHERE completed = 1 AND synced = 0
		ORDER BY started_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.FocusSession
	for rows.Next() {
		s, err := scanFocusSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// MarkFocusSessionSynced 标记会话已同步(幂等)
func (m *Manager) MarkFocusSessionSynced(id string) error {
	_, err := m.db.Exec(`UPDATE focus_sessions SET synced = 1 WHERE id = ?`, id)
	return err
}

// ===== 每日统计 =====

// AddToDayStats 把一条活动累加进当日统计
func (m *Manager) AddToDayStats(dayKey, category string, seconds int, productive bool) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var categoriesJSON string
	stats := &models.DayStats{Date: dayKey, CategorySeconds: map[string]int{}}

	err = tx.QueryRow(`
		SELECT total_seconds, productive_seconds, activity_count, categories_json
		FROM daily_stats WHERE day_key = ?
	`, dayKey).Scan(&stats.TotalSeconds, &stats.ProductiveSecs, &stats.ActivityCount, &categoriesJSON)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query day stats: %w", err)
	}
	if categoriesJSON != "" {
		if err := json.Unmarshal([]byte(categoriesJSON), &stats.CategorySeconds); err != nil {
			return fmt.Errorf("failed to unmarshal categories: %w", err)
		}
	}

	stats.TotalSeconds += seconds
	stats.ActivityCount++
	if productive {
		stats.ProductiveSecs += seconds
	}
	stats.CategorySeconds[category] += seconds

	data, err := json.Marshal(stats.CategorySeconds)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO daily_stats (day_key, total_seconds, productive_seconds, activity_count, categories_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day_key) DO UPDATE SET
			total_seconds = excluded.total_seconds,
			productive_seconds = excluded.productive_seconds,
			activity_count = excluded.activity_count,
			categories_json = excluded.categories_json
	`, dayKey, stats.TotalSeconds, stats.ProductiveSecs, stats.ActivityCount, string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert day stats: %w", err)
	}

	return tx.Commit()
}

// GetDayStats 读取指定日期的统计,没有记录时返回零值
func (m *Manager) GetDayStats(dayKey string) (*models.DayStats, error) {
	stats := &models.DayStats{Date: dayKey, CategorySeconds: map[string]int{}}
	var categoriesJSON string

	err := m.db.QueryRow(`
		SELECT total_seconds, productive_seconds, activity_count, categories_json
		FROM daily_stats WHERE day_key = ?
	`, dayKey).Scan(&stats.TotalSeconds, &stats.ProductiveSecs, &stats.ActivityCount, &categoriesJSON)
	if err == sql.ErrNoRows {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query day stats: %w", err)
	}

	if categoriesJSON != "" {
		if err := json.Unmarshal([]byte(categoriesJSON), &stats.CategorySeconds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
	}

	return stats, nil
}

// ===== 应用状态 =====

// SetState 写入一条键值状态
func (m *Manager) SetState(key, value string) error {
	_, err := m.db.Exec(`
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetState 读取键值状态,不存在时返回空字符串
func (m *Manager) GetState(key string) (string, error) {
	var value string
	err := m.db.QueryRow(`SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query state: %w", err)
	}
	return value, nil
}

// DeleteState 删除键值状态(幂等)
func (m *Manager) DeleteState(key string) error {
	_, err := m.db.Exec(`DELETE FROM app_state WHERE key = ?`, key)
	return err
}
