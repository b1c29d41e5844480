package tracker

import (
	"testing"
	"time"

	"rizetracker/internal/session"
	"rizetracker/pkg/models"

	"github.com/stretchr/testify/require"
)

type recordedObs struct {
	surface  models.Surface
	started  time.Time
	duration int
}

type fakeRecorder struct {
	records []recordedObs
}

func (f *fakeRecorder) Record(surface models.Surface, startedAt time.Time, durationSeconds int) *models.Activity {
	f.records = append(f.records, recordedObs{surface: surface, started: startedAt, duration: durationSeconds})
	return &models.Activity{ID: "recorded"}
}

type fakeIdentity struct {
	sess *session.Session
}

func (f *fakeIdentity) Current() *session.Session { return f.sess }

type fakeStateStore struct {
	state map[string]string
}

func (f *fakeStateStore) SetState(key, value string) error {
	if f.state == nil {
		f.state = map[string]string{}
	}
	f.state[key] = value
	return nil
}

func (f *fakeStateStore) GetState(key string) (string, error) {
	return f.state[key], nil
}

func testConfig() models.TrackingConfig {
	return models.TrackingConfig{
		MinDurationSeconds: 5,
		MaxActivities:      1000,
		InternalSchemes:    []string{"chrome://", "chrome-extension://", "about:"},
		RequireSignIn:      true,
	}
}

// newTestController 返回控制器和一个可推进的假时钟
func newTestController(rec *fakeRecorder, signedIn bool) (*Controller, *time.Time) {
	id := &fakeIdentity{}
	if signedIn {
		id.sess = &session.Session{UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	}
	c := NewController(rec, id, &fakeStateStore{}, testConfig())

	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.Local)
	clock := &now
	c.now = func() time.Time { return *clock }
	return c, clock
}

func TestEnableRequiresSignIn(t *testing.T) {
	c, _ := newTestController(&fakeRecorder{}, false)

	err := c.Enable()
	require.ErrorIs(t, err, ErrSignInRequired)
	require.EqualError(t, err, "Please sign in first")
	require.False(t, c.IsTracking())
}

func TestEnableDisable(t *testing.T) {
	c, _ := newTestController(&fakeRecorder{}, true)

	require.NoError(t, c.Enable())
	require.True(t, c.IsTracking())

	c.Disable()
	require.False(t, c.IsTracking())
}

func TestSwitchFlushesPreviousObservation(t *testing.T) {
	rec := &fakeRecorder{}
	c, clock := newTestController(rec, true)
	require.NoError(t, c.Enable())

	start := *clock
	c.HandleActivated(models.Surface{ID: "t1", URL: "https://github.com/", Domain: "github.com", Title: "GitHub"})
	*clock = clock.Add(12 * time.Second)
	c.HandleActivated(models.Surface{ID: "t2", URL: "https://notion.so/", Domain: "notion.so", Title: "Notion"})

	// 切换时旧观测必须先冲账,时长等于两次激活的间隔
	require.Len(t, rec.records, 1)
	require.Equal(t, "github.com", rec.records[0].surface.Domain)
	require.Equal(t, start, rec.records[0].started)
	require.Equal(t, 12, rec.records[0].duration)

	snap := c.Snapshot()
	require.NotNil(t, snap.CurrentSurface)
	require.Equal(t, "notion.so", snap.CurrentSurface.Surface.Domain)
}

func TestInternalPageNotTracked(t *testing.T) {
	rec := &fakeRecorder{}
	c, clock := newTestController(rec, true)
	require.NoError(t, c.Enable())

	c.HandleActivated(models.Surface{ID: "t1", URL: "https://github.com/", Domain: "github.com"})
	*clock = clock.Add(10 * time.Second)

	// 内部页面冲账旧观测后回到无观测状态
	c.HandleActivated(models.Surface{ID: "t2", URL: "chrome://settings"})
	require.Len(t, rec.records, 1)
	require.Nil(t, c.Snapshot().CurrentSurface)

	// 空 URL(元数据缺失)同样不可追踪
	c.HandleActivated(models.Surface{ID: "t3"})
	require.Nil(t, c.Snapshot().CurrentSurface)
	require.Len(t, rec.records, 1)
}

func TestFocusLostFlushesButKeepsTracking(t *testing.T) {
	rec := &fakeRecorder{}
	c, clock := newTestController(rec, true)
	require.NoError(t, c.Enable())

	c.HandleActivated(models.Surface{ID: "t1", URL: "https://github.com/", Domain: "github.com"})
	*clock = clock.Add(30 * time.Second)
	c.HandleFocusLost()

	require.Len(t, rec.records, 1)
	require.Equal(t, 30, rec.records[0].duration)
	require.True(t, c.IsTracking())
	require.Nil(t, c.Snapshot().CurrentSurface)
}

func TestDisableFlushesCurrentObservation(t *testing.T) {
	rec := &fakeRecorder{}
	c, clock := newTestController(rec, true)
	require.NoError(t, c.Enable())

	c.HandleActivated(models.Surface{ID: "t1", URL: "https://github.com/", Domain: "github.com"})
	*clock = clock.Add(7 * time.Second)
	c.Disable()

	require.Len(t, rec.records, 1)
	require.Equal(t, 7, rec.records[0].duration)
}

func TestUpdatedOnlySwitchesOnFocusedURLChange(t *testing.T) {
	rec := &fakeRecorder{}
	c, clock := newTestController(rec, true)
	require.NoError(t, c.Enable())

	c.HandleActivated(models.Surface{ID: "t1", URL: "https://github.com/", Domain: "github.com"})
	*clock = clock.Add(10 * time.Second)

	// 未聚焦或 URL 未变的更新都不构成切换
	c.HandleUpdated(models.Surface{ID: "t1", URL: "https://github.com/pulls", Domain: "github.com"}, true, false)
	c.HandleUpdated(models.Surface{ID: "t1", URL: "https://github.com/", Domain: "github.com"}, false, true)
	require.Empty(t, rec.records)

	c.HandleUpdated(models.Surface{ID: "t1", URL: "https://github.com/pulls", Domain: "github.com"}, true, true)
	require.Len(t, rec.records, 1)
	require.Equal(t, 10, rec.records[0].duration)
}

func TestEventsIgnoredWhenNotTracking(t *testing.T) {
	rec := &fakeRecorder{}
	c, _ := newTestController(rec, true)

	c.HandleActivated(models.Surface{ID: "t1", URL: "https://github.com/", Domain: "github.com"})
	c.HandleFocusLost()

	require.Empty(t, rec.records)
	require.Nil(t, c.Snapshot().CurrentSurface)
}

func TestDomainDerivedFromURL(t *testing.T) {
	rec := &fakeRecorder{}
	c, clock := newTestController(rec, true)
	require.NoError(t, c.Enable())

	// 事件里缺失 domain 时从 URL 推导
	c.HandleActivated(models.Surface{ID: "t1", URL: "https://www.github.com/golang"})
	*clock = clock.Add(10 * time.Second)
	c.HandleFocusLost()

	require.Len(t, rec.records, 1)
	require.Equal(t, "github.com", rec.records[0].surface.Domain)
}

func TestRestoreTrackingSwitch(t *testing.T) {
	st := &fakeStateStore{state: map[string]string{"is_tracking": "1"}}
	c := NewController(&fakeRecorder{}, &fakeIdentity{}, st, testConfig())

	c.Restore()
	require.True(t, c.IsTracking())
}
