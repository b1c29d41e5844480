package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"rizetracker/pkg/logger"
)

// Store 远端记录存储
// 核心只需要三个写操作,读取由仪表盘自行调用
type Store interface {
	Insert(ctx context.Context, table string, record interface{}) error
	BulkInsert(ctx context.Context, table string, records interface{}) error
	Update(ctx context.Context, table, id string, patch interface{}) error
}

// RemoteError 远端调用失败
// 失败只影响本次尝试,本地记录保持未同步,等待下一个自然补传时机
type RemoteError struct {
	Status int
	Body   string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote call failed: %v", e.Err)
	}
	return fmt.Sprintf("remote call failed: status=%d body=%s", e.Status, e.Body)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// TokenProvider 返回当前访问令牌,未登录时返回空字符串
type TokenProvider func() string

// Client Supabase REST 客户端
type Client struct {
	baseURL string
	anonKey string
	client  *http.Client
	tokenFn TokenProvider
}

// NewClient 创建远端存储客户端
func NewClient(baseURL, anonKey string, timeout time.Duration, tokenFn TokenProvider) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		anonKey: anonKey,
		client:  &http.Client{Timeout: timeout},
		tokenFn: tokenFn,
	}
}

// Insert 插入单条记录
func (c *Client) Insert(ctx context.Context, table string, record interface{}) error {
	// REST 接口统一接收数组
	return c.do(ctx, http.MethodPost, "/rest/v1/"+table, []interface{}{record})
}

// BulkInsert 批量插入
// 单条语句执行,整批要么全部成功要么全部失败
func (c *Client) BulkInsert(ctx context.Context, table string, records interface{}) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/"+table, records)
}

// Update 按 id 更新单条记录
func (c *Client) Update(ctx context.Context, table, id string, patch interface{}) error {
	path := fmt.Sprintf("/rest/v1/%s?id=eq.%s", table, url.QueryEscape(id))
	return c.do(ctx, http.MethodPatch, path, patch)
}

// do 执行一次 REST 请求
func (c *Client) do(ctx context.Context, method, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &RemoteError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &RemoteError{Err: fmt.Errorf("build request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Prefer", "return=minimal")
	if token := c.tokenFn(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &RemoteError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Warn("远端请求失败: %s %s -> %d", method, path, resp.StatusCode)
		return &RemoteError{Status: resp.StatusCode, Body: string(data)}
	}

	return nil
}

// SelectRaw 透传一次读取请求,返回远端原始 JSON
// 仅供仪表盘的任务/目标列表等非核心读取使用
func (c *Client) SelectRaw(ctx context.Context, table, rawQuery string) ([]byte, error) {
	path := "/rest/v1/" + table
	if rawQuery != "" {
		path += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &RemoteError{Err: fmt.Errorf("build request: %w", err)}
	}

	req.Header.Set("apikey", c.anonKey)
	if token := c.tokenFn(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RemoteError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}
