package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStateStore struct {
	state map[string]string
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{state: map[string]string{}}
}

func (f *fakeStateStore) SetState(key, value string) error {
	f.state[key] = value
	return nil
}

func (f *fakeStateStore) GetState(key string) (string, error) {
	return f.state[key], nil
}

func (f *fakeStateStore) DeleteState(key string) error {
	delete(f.state, key)
	return nil
}

func authServer(t *testing.T, status int, body map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/token" {
			require.Equal(t, "password", r.URL.Query().Get("grant_type"))
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(body)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestSignInSuccess(t *testing.T) {
	srv := authServer(t, http.StatusOK, map[string]interface{}{
		"access_token":  "tok-123",
		"refresh_token": "ref-123",
		"expires_in":    3600,
		"user":          map[string]string{"id": "u1", "email": "dev@example.com"},
	})
	defer srv.Close()

	st := newFakeStateStore()
	m := NewManager(srv.URL, "anon-key", time.Second, st)

	var notified *Session
	m.OnChange(func(s *Session) { notified = s })

	s, err := m.SignIn(context.Background(), "dev@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "u1", s.UserID)
	require.Equal(t, "dev@example.com", s.Email)
	require.Equal(t, "tok-123", s.AccessToken)
	require.False(t, s.Expired())

	require.NotNil(t, m.Current())
	require.Equal(t, "tok-123", m.Token())
	require.NotNil(t, notified)

	// 会话已持久化,可供下次启动恢复
	require.NotEmpty(t, st.state[stateKey])
}

func TestSignInRejected(t *testing.T) {
	srv := authServer(t, http.StatusBadRequest, map[string]interface{}{
		"error": "invalid_grant",
	})
	defer srv.Close()

	m := NewManager(srv.URL, "anon-key", time.Second, newFakeStateStore())
	_, err := m.SignIn(context.Background(), "dev@example.com", "wrong")
	require.ErrorIs(t, err, ErrSignInFailed)
	require.Nil(t, m.Current())
	require.Empty(t, m.Token())
}

func TestRestoreValidSession(t *testing.T) {
	st := newFakeStateStore()
	s := Session{
		UserID:      "u1",
		Email:       "dev@example.com",
		AccessToken: "tok-123",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	st.state[stateKey] = string(data)

	m := NewManager("http://localhost", "anon-key", time.Second, st)
	require.NoError(t, m.Restore())

	got := m.Current()
	require.NotNil(t, got)
	require.Equal(t, "u1", got.UserID)
}

func TestRestoreDiscardsExpiredSession(t *testing.T) {
	st := newFakeStateStore()
	s := Session{UserID: "u1", AccessToken: "tok", ExpiresAt: time.Now().Add(-time.Hour)}
	data, _ := json.Marshal(s)
	st.state[stateKey] = string(data)

	m := NewManager("http://localhost", "anon-key", time.Second, st)
	require.NoError(t, m.Restore())

	require.Nil(t, m.Current())
	// 过期会话同时从本地清除
	require.Empty(t, st.state[stateKey])
}

func TestRestoreDiscardsCorruptState(t *testing.T) {
	st := newFakeStateStore()
	st.state[stateKey] = "not json"

	m := NewManager("http://localhost", "anon-key", time.Second, st)
	require.NoError(t, m.Restore())
	require.Nil(t, m.Current())
	require.Empty(t, st.state[stateKey])
}

func TestSignOutClearsLocalSession(t *testing.T) {
	srv := authServer(t, http.StatusOK, map[string]interface{}{
		"access_token": "tok-123",
		"expires_in":   3600,
		"user":         map[string]string{"id": "u1", "email": "dev@example.com"},
	})
	defer srv.Close()

	st := newFakeStateStore()
	m := NewManager(srv.URL, "anon-key", time.Second, st)
	_, err := m.SignIn(context.Background(), "dev@example.com", "secret")
	require.NoError(t, err)

	var lastNotify *Session = &Session{}
	m.OnChange(func(s *Session) { lastNotify = s })

	m.SignOut(context.Background())
	require.Nil(t, m.Current())
	require.Empty(t, m.Token())
	require.Empty(t, st.state[stateKey])
	require.Nil(t, lastNotify)
}

func TestCurrentHidesExpiredSession(t *testing.T) {
	m := NewManager("http://localhost", "anon-key", time.Second, newFakeStateStore())
	m.mu.Lock()
	m.current = &Session{UserID: "u1", AccessToken: "tok", ExpiresAt: time.Now().Add(-time.Minute)}
	m.mu.Unlock()

	require.Nil(t, m.Current())
	require.Empty(t, m.Token())
}
