package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rizetracker/internal/config"
	"rizetracker/internal/pomodoro"
	"rizetracker/internal/recorder"
	"rizetracker/internal/remote"
	"rizetracker/internal/session"
	"rizetracker/internal/storage"
	syncengine "rizetracker/internal/sync"
	"rizetracker/internal/tracker"
	"rizetracker/pkg/models"

	"github.com/stretchr/testify/require"
)

// newTestServer 拉起一套完整的本地栈,远端指向一个不存在的地址
func newTestServer(t *testing.T) (*Server, *storage.Manager) {
	t.Helper()

	dir := t.TempDir()
	configMgr, err := config.NewManager(filepath.Join(dir, "config.json"))
	require.NoError(t, err)

	storageMgr, err := storage.NewManager(dir, 1000)
	require.NoError(t, err)
	t.Cleanup(func() { storageMgr.Close() })

	sessions := session.NewManager("http://127.0.0.1:1", "anon", time.Second, storageMgr)
	remoteCli := remote.NewClient("http://127.0.0.1:1", "anon", time.Second, sessions.Token)
	syncEng := syncengine.NewEngine(remoteCli, storageMgr, sessions)

	rec := recorder.NewRecorder(storageMgr, syncEng, 5)
	trackingCfg := configMgr.GetTracking()
	tracking := tracker.NewController(rec, sessions, storageMgr, trackingCfg)
	machine := pomodoro.NewMachine(configMgr.GetPomodoro(), syncEng, storageMgr, nil)
	t.Cleanup(machine.Stop)

	return NewServer(configMgr, storageMgr, tracking, machine, syncEng, sessions, remoteCli, "test"), storageMgr
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestVersionEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "test", body["version"])
}

func TestStartTrackingRequiresSignIn(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/tracking/start", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Success)
	// 错误文案原样返回给扩展
	require.Equal(t, "Please sign in first", body.Error)
}

func TestPomodoroMessageFlow(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/pomodoro/mode", `{"mode":"short_break"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodGet, "/api/state", "")
	var state struct {
		Pomodoro models.PomodoroSnapshot `json:"pomodoro_state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	require.Equal(t, models.ModeShortBreak, state.Pomodoro.Mode)
	require.Equal(t, 300, state.Pomodoro.TimeLeftSeconds)
	require.False(t, state.Pomodoro.IsActive)

	doRequest(s, http.MethodPost, "/api/pomodoro/start", "")
	w = doRequest(s, http.MethodGet, "/api/state", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	require.True(t, state.Pomodoro.IsActive)

	doRequest(s, http.MethodPost, "/api/pomodoro/pause", "")
	w = doRequest(s, http.MethodGet, "/api/state", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	require.False(t, state.Pomodoro.IsActive)
}

func TestSwitchModeRejectsUnknownMode(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/pomodoro/mode", `{"mode":"nap"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Success)
}

func TestMalformedEventDoesNotCrash(t *testing.T) {
	s, _ := newTestServer(t)

	// 解析失败的事件退化为空 surface,永远返回成功
	w := doRequest(s, http.MethodPost, "/api/events/activated", `{not json`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodGet, "/api/state", "")
	var state struct {
		IsTracking     bool        `json:"is_tracking"`
		CurrentSurface interface{} `json:"current_surface"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	require.Nil(t, state.CurrentSurface)
}

func TestDailyStatsRecomputedFromActivities(t *testing.T) {
	s, st := newTestServer(t)
	day := time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)

	require.NoError(t, st.AppendActivity(&models.Activity{
		ID: "a1", Kind: models.ActivityKindWebsite, Name: "GitHub",
		Domain: "github.com", Category: "Development",
		ProductivityScore: 5, DurationSeconds: 300, StartedAt: day,
	}))
	require.NoError(t, st.AppendActivity(&models.Activity{
		ID: "a2", Kind: models.ActivityKindWebsite, Name: "YouTube",
		Domain: "youtube.com", Category: "Entertainment",
		ProductivityScore: 2, DurationSeconds: 60, StartedAt: day,
	}))

	w := doRequest(s, http.MethodGet, "/api/stats/daily?date=2026-08-31", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.DayStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, 360, got.TotalSeconds)
	require.Equal(t, 300, got.ProductiveSecs)
	require.Equal(t, 2, got.ActivityCount)
}

func TestDailyStatsRejectsBadDate(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/stats/daily?date=yesterday", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSessionWhenSignedOut(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/auth/session", "")
	var body struct {
		SignedIn bool `json:"signed_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.SignedIn)
}
