package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"rizetracker/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// 持久化键名
const stateKey = "session"

// ErrSignInFailed 登录失败(凭证错误或远端不可达)
var ErrSignInFailed = errors.New("sign in failed")

// Session 已登录身份
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired 令牌是否已过期
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// stateStore 会话持久化依赖的最小存储接口
type stateStore interface {
	SetState(key, value string) error
	GetState(key string) (string, error)
	DeleteState(key string) error
}

// Manager 会话管理器
// "未登录"对核心意味着同步暂停,本地记录照常进行
type Manager struct {
	baseURL string
	anonKey string
	client  *http.Client
	store   stateStore

	mu        sync.RWMutex
	current   *Session
	callbacks []func(*Session)
}

// NewManager 创建会话管理器
func NewManager(baseURL, anonKey string, timeout time.Duration, store stateStore) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		baseURL: baseURL,
		anonKey: anonKey,
		client:  &http.Client{Timeout: timeout},
		store:   store,
	}
}

// Restore 从本地存储恢复上次的会话
// 过期的令牌直接丢弃,等用户重新登录
func (m *Manager) Restore() error {
	raw, err := m.store.GetState(stateKey)
	if err != nil {
		return fmt.Errorf("failed to load session state: %w", err)
	}
	if raw == "" {
		return nil
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		logger.Warn("本地会话数据无法解析,已丢弃: %v", err)
		return m.store.DeleteState(stateKey)
	}

	if s.Expired() {
		logger.Info("本地会话已过期,需要重新登录")
		return m.store.DeleteState(stateKey)
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()

	logger.Info("会话已恢复: %s", s.Email)
	m.notify(&s)
	return nil
}

// SignIn 用邮箱密码登录
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}

	url := m.baseURL + "/auth/v1/token?grant_type=password"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", m.anonKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		logger.Warn("登录失败: status=%d body=%s", resp.StatusCode, string(data))
		return nil, fmt.Errorf("%w: status %d", ErrSignInFailed, resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		User         struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode sign-in response: %w", err)
	}

	s := &Session{
		UserID:       body.User.ID,
		Email:        body.User.Email,
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}

	// 响应缺少 expires_in/user 时退回到令牌声明
	// 客户端没有签名密钥,只能做不验证的解析
	if claims := parseClaims(body.AccessToken); claims != nil {
		if s.UserID == "" {
			s.UserID = claims.subject
		}
		if !claims.expiresAt.IsZero() {
			s.ExpiresAt = claims.expiresAt
		}
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	if err := m.persist(s); err != nil {
		logger.Warn("持久化会话失败: %v", err)
	}

	logger.Info("登录成功: %s", s.Email)
	m.notify(s)
	return s, nil
}

// SignOut 退出登录
// 远端注销是尽力而为,本地会话必定被清除
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if err := m.store.DeleteState(stateKey); err != nil {
		logger.Warn("清除本地会话失败: %v", err)
	}

	if s != nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/auth/v1/logout", nil)
		if err == nil {
			req.Header.Set("apikey", m.anonKey)
			req.Header.Set("Authorization", "Bearer "+s.AccessToken)
			if resp, err := m.client.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}

	logger.Info("已退出登录")
	m.notify(nil)
}

// Current 返回当前会话,未登录或已过期时返回 nil
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil || m.current.Expired() {
		return nil
	}
	copied := *m.current
	return &copied
}

// Token 实现 remote.TokenProvider
func (m *Manager) Token() string {
	if s := m.Current(); s != nil {
		return s.AccessToken
	}
	return ""
}

// OnChange 注册会话变化回调(登录传入新会话,退出传入 nil)
func (m *Manager) OnChange(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

func (m *Manager) notify(s *Session) {
	m.mu.RLock()
	callbacks := make([]func(*Session), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.RUnlock()

	for _, fn := range callbacks {
		fn(s)
	}
}

func (m *Manager) persist(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.store.SetState(stateKey, string(data))
}

type tokenClaims struct {
	subject   string
	expiresAt time.Time
}

// parseClaims 不验证签名地读取令牌声明
func parseClaims(token string) *tokenClaims {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}

	out := &tokenClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.expiresAt = exp.Time
	}
	return out
}
