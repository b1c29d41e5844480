package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"rizetracker/internal/session"
	"rizetracker/pkg/models"

	"github.com/stretchr/testify/require"
)

type remoteCall struct {
	op    string
	table string
	id    string
}

// fakeRemote 可按操作注入失败的远端存储
type fakeRemote struct {
	calls      []remoteCall
	failInsert bool
	failBulk   bool
	failUpdate bool
}

func (f *fakeRemote) Insert(ctx context.Context, table string, record interface{}) error {
	f.calls = append(f.calls, remoteCall{op: "insert", table: table})
	if f.failInsert {
		return errors.New("remote down")
	}
	return nil
}

func (f *fakeRemote) BulkInsert(ctx context.Context, table string, records interface{}) error {
	f.calls = append(f.calls, remoteCall{op: "bulk", table: table})
	if f.failBulk {
		return errors.New("remote down")
	}
	return nil
}

func (f *fakeRemote) Update(ctx context.Context, table, id string, patch interface{}) error {
	f.calls = append(f.calls, remoteCall{op: "update", table: table, id: id})
	if f.failUpdate {
		return errors.New("remote down")
	}
	return nil
}

type fakeLocal struct {
	activities []*models.Activity
	sessions   []*models.FocusSession
}

func (f *fakeLocal) UnsyncedActivities() ([]*models.Activity, error) {
	var out []*models.Activity
	for _, a := range f.activities {
		if !a.Synced {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeLocal) MarkActivitySynced(id string) error {
	for _, a := range f.activities {
		if a.ID == id {
			a.Synced = true
		}
	}
	return nil
}

func (f *fakeLocal) MarkActivitiesSynced(ids []string) error {
	for _, id := range ids {
		if err := f.MarkActivitySynced(id); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLocal) UnsyncedFocusSessions() ([]*models.FocusSession, error) {
	var out []*models.FocusSession
	for _, s := range f.sessions {
		if s.Completed && !s.Synced {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeLocal) MarkFocusSessionSynced(id string) error {
	for _, s := range f.sessions {
		if s.ID == id {
			s.Synced = true
		}
	}
	return nil
}

type fakeIdentity struct {
	sess *session.Session
}

func (f *fakeIdentity) Current() *session.Session { return f.sess }

func signedIn() *fakeIdentity {
	return &fakeIdentity{sess: &session.Session{UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}}
}

func unsyncedActivity(id string) *models.Activity {
	return &models.Activity{
		ID:              id,
		Kind:            models.ActivityKindWebsite,
		Name:            "GitHub",
		Domain:          "github.com",
		Category:        "Development",
		DurationSeconds: 60,
		StartedAt:       time.Now(),
	}
}

func TestPushOneSkipsWhenSignedOut(t *testing.T) {
	rm := &fakeRemote{}
	local := &fakeLocal{}
	e := NewEngine(rm, local, &fakeIdentity{})

	a := unsyncedActivity("a1")
	local.activities = append(local.activities, a)
	e.PushOne(context.Background(), a)

	// 未登录时同步暂停,本地记录保持未同步
	require.Empty(t, rm.calls)
	require.False(t, a.Synced)
}

func TestPushOneMarksSynced(t *testing.T) {
	rm := &fakeRemote{}
	local := &fakeLocal{}
	e := NewEngine(rm, local, signedIn())

	a := unsyncedActivity("a1")
	local.activities = append(local.activities, a)
	e.PushOne(context.Background(), a)

	require.Len(t, rm.calls, 1)
	require.Equal(t, "activities", rm.calls[0].table)
	require.True(t, a.Synced)
}

func TestPushOneFailureLeavesUnsynced(t *testing.T) {
	rm := &fakeRemote{failInsert: true}
	local := &fakeLocal{}
	e := NewEngine(rm, local, signedIn())

	a := unsyncedActivity("a1")
	local.activities = append(local.activities, a)
	e.PushOne(context.Background(), a)

	require.False(t, a.Synced)
}

func TestPushPendingBatchAllOrNothing(t *testing.T) {
	local := &fakeLocal{activities: []*models.Activity{
		unsyncedActivity("a1"),
		unsyncedActivity("a2"),
		unsyncedActivity("a3"),
	}}

	// 整批失败: 所有记录保持未同步
	rm := &fakeRemote{failBulk: true}
	e := NewEngine(rm, local, signedIn())
	e.PushPending(context.Background())
	for _, a := range local.activities {
		require.False(t, a.Synced)
	}

	// 整批成功: 所有记录一起标记
	rm.failBulk = false
	e.PushPending(context.Background())
	for _, a := range local.activities {
		require.True(t, a.Synced)
	}
}

func TestPushPendingEmptyIsNoop(t *testing.T) {
	rm := &fakeRemote{}
	e := NewEngine(rm, &fakeLocal{}, signedIn())

	e.PushPending(context.Background())
	require.Empty(t, rm.calls)
}

func TestPushPendingSessions(t *testing.T) {
	ended := time.Now()
	local := &fakeLocal{sessions: []*models.FocusSession{
		{ID: "s1", Mode: models.ModeFocus, DurationSeconds: 1500, Completed: true, EndedAt: &ended},
		{ID: "s2", Mode: models.ModeFocus, DurationSeconds: 1500}, // 未完成,不推送
	}}
	rm := &fakeRemote{}
	e := NewEngine(rm, local, signedIn())

	e.PushPending(context.Background())

	require.Len(t, rm.calls, 1)
	require.Equal(t, "focus_sessions", rm.calls[0].table)
	require.True(t, local.sessions[0].Synced)
	require.False(t, local.sessions[1].Synced)
}

func TestCompleteFocusSessionUpdatesOpenedRow(t *testing.T) {
	rm := &fakeRemote{}
	local := &fakeLocal{}
	e := NewEngine(rm, local, signedIn())

	s := &models.FocusSession{ID: "s1", Mode: models.ModeFocus, DurationSeconds: 1500, StartedAt: time.Now()}
	local.sessions = append(local.sessions, s)

	e.OpenFocusSession(context.Background(), s)

	ended := time.Now()
	s.EndedAt = &ended
	s.Completed = true
	e.CompleteFocusSession(context.Background(), s)

	// 开启落地后,完成走 update 路径
	require.Len(t, rm.calls, 2)
	require.Equal(t, "insert", rm.calls[0].op)
	require.Equal(t, "update", rm.calls[1].op)
	require.Equal(t, "s1", rm.calls[1].id)
	require.True(t, s.Synced)
}

func TestCompleteFocusSessionFallsBackToInsert(t *testing.T) {
	rm := &fakeRemote{failInsert: true}
	local := &fakeLocal{}
	e := NewEngine(rm, local, signedIn())

	s := &models.FocusSession{ID: "s1", Mode: models.ModeFocus, DurationSeconds: 1500, StartedAt: time.Now()}
	local.sessions = append(local.sessions, s)

	// 开启插入失败
	e.OpenFocusSession(context.Background(), s)

	rm.failInsert = false
	ended := time.Now()
	s.EndedAt = &ended
	s.Completed = true
	e.CompleteFocusSession(context.Background(), s)

	// 完成退化为插入完整的已完成行
	require.Equal(t, "insert", rm.calls[len(rm.calls)-1].op)
	require.True(t, s.Synced)
}

func TestAbandonClearsOpenedRow(t *testing.T) {
	rm := &fakeRemote{}
	local := &fakeLocal{}
	e := NewEngine(rm, local, signedIn())

	s := &models.FocusSession{ID: "s1", Mode: models.ModeFocus, DurationSeconds: 1500, StartedAt: time.Now()}
	local.sessions = append(local.sessions, s)
	e.OpenFocusSession(context.Background(), s)
	e.AbandonFocusSession(s.ID)

	ended := time.Now()
	s.EndedAt = &ended
	s.Completed = true
	e.CompleteFocusSession(context.Background(), s)

	// 放弃后开启记录被清理,后续完成不再走 update
	require.Equal(t, "insert", rm.calls[len(rm.calls)-1].op)
}
