package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"rizetracker/internal/config"
	"rizetracker/internal/pomodoro"
	"rizetracker/internal/remote"
	"rizetracker/internal/session"
	"rizetracker/internal/stats"
	"rizetracker/internal/storage"
	syncengine "rizetracker/internal/sync"
	"rizetracker/internal/tracker"
	"rizetracker/pkg/models"
	"rizetracker/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server Web 服务器
// 对扩展和仪表盘暴露消息协议: 所有状态变更只能通过这里的
// 操作请求完成,读取接口一律只返回快照,绝不直接改状态
type Server struct {
	router     *gin.Engine
	configMgr  *config.Manager
	storageMgr *storage.Manager
	tracking   *tracker.Controller
	machine    *pomodoro.Machine
	syncEng    *syncengine.Engine
	sessions   *session.Manager
	remoteCli  *remote.Client
	addr       string
	version    string
	httpServer *http.Server
}

// NewServer 创建 Web 服务器
func NewServer(
	configMgr *config.Manager,
	storageMgr *storage.Manager,
	tracking *tracker.Controller,
	machine *pomodoro.Machine,
	syncEng *syncengine.Engine,
	sessions *session.Manager,
	remoteCli *remote.Client,
	version string,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	serverCfg := configMgr.GetServer()
	addr := fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)

	s := &Server{
		router:     router,
		configMgr:  configMgr,
		storageMgr: storageMgr,
		tracking:   tracking,
		machine:    machine,
		syncEng:    syncEng,
		sessions:   sessions,
		remoteCli:  remoteCli,
		addr:       addr,
		version:    version,
	}

	if serverCfg.EnableCORS {
		router.Use(corsMiddleware())
	}

	s.setupRoutes()
	return s
}

// corsMiddleware 允许扩展和仪表盘跨域访问
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 指标
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		// 系统信息
		api.GET("/version", s.handleGetVersion)

		// 配置管理
		api.GET("/config", s.handleGetConfig)
		api.PUT("/config", s.handleUpdateConfig)

		// 消息协议: 状态变更操作
		api.POST("/tracking/start", s.handleStartTracking)
		api.POST("/tracking/stop", s.handleStopTracking)
		api.POST("/pomodoro/start", s.handleStartPomodoro)
		api.POST("/pomodoro/pause", s.handlePausePomodoro)
		api.POST("/pomodoro/reset", s.handleResetPomodoro)
		api.POST("/pomodoro/mode", s.handleSwitchPomodoroMode)
		api.GET("/state", s.handleGetState)

		// 扩展上报的 surface 事件
		api.POST("/events/activated", s.handleSurfaceActivated)
		api.POST("/events/updated", s.handleSurfaceUpdated)
		api.POST("/events/focus-gained", s.handleFocusGained)
		api.POST("/events/focus-lost", s.handleFocusLost)

		// 登录态
		api.POST("/auth/signin", s.handleSignIn)
		api.POST("/auth/signout", s.handleSignOut)
		api.GET("/auth/session", s.handleGetSession)

		// 仪表盘读取
		api.GET("/activities", s.handleGetActivities)
		api.GET("/stats/daily", s.handleGetDailyStats)
		api.GET("/sessions", s.handleGetFocusSessions)

		// 显式补传
		api.POST("/sync/flush", s.handleFlush)

		// 目标列表透传(非核心,直达远端)
		api.GET("/goals", s.handleListGoals)
		api.POST("/goals", s.handleCreateGoal)
		api.PATCH("/goals/:id", s.handleUpdateGoal)
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	fmt.Printf("🌐 Web服务器启动: http://%s\n", s.addr)

	// 启动服务器（会阻塞）
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}

	fmt.Println("🛑 正在关闭 Web 服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		fmt.Printf("⚠️ 服务器关闭错误: %v\n", err)
		return err
	}

	fmt.Println("✅ Web 服务器已关闭")
	return nil
}

// ===== 通用响应 =====

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// ===== 处理函数 =====

// handleGetVersion 获取版本信息
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.version,
		"name":    "RizeTracker",
	})
}

// handleGetConfig 获取配置
func (s *Server) handleGetConfig(c *gin.Context) {
	cfg := s.configMgr.Get()
	c.JSON(http.StatusOK, cfg)
}

// handleUpdateConfig 更新配置
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var newConfig models.AppConfig
	if err := c.ShouldBindJSON(&newConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.configMgr.Update(func(cfg *models.AppConfig) {
		*cfg = newConfig
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "配置已更新"})
}

// handleStartTracking 开启追踪
// 未登录时返回 {success:false, error:"Please sign in first"}
func (s *Server) handleStartTracking(c *gin.Context) {
	if err := s.tracking.Enable(); err != nil {
		fail(c, http.StatusOK, err)
		return
	}
	ok(c)
}

// handleStopTracking 关闭追踪
func (s *Server) handleStopTracking(c *gin.Context) {
	s.tracking.Disable()
	ok(c)
}

// handleStartPomodoro 开始番茄钟
func (s *Server) handleStartPomodoro(c *gin.Context) {
	s.machine.Start()
	ok(c)
}

// handlePausePomodoro 暂停番茄钟
func (s *Server) handlePausePomodoro(c *gin.Context) {
	s.machine.Pause()
	ok(c)
}

// handleResetPomodoro 重置番茄钟
func (s *Server) handleResetPomodoro(c *gin.Context) {
	s.machine.Reset()
	ok(c)
}

// handleSwitchPomodoroMode 切换番茄钟模式
func (s *Server) handleSwitchPomodoroMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	if err := s.machine.SwitchMode(req.Mode); err != nil {
		fail(c, http.StatusOK, err)
		return
	}
	ok(c)
}

// handleGetState 获取状态快照(无副作用)
func (s *Server) handleGetState(c *gin.Context) {
	trackingSnap := s.tracking.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"is_tracking":     trackingSnap.IsTracking,
		"current_surface": trackingSnap.CurrentSurface,
		"pomodoro_state":  s.machine.Snapshot(),
	})
}

// surfaceRequest 扩展上报的 surface 元数据
type surfaceRequest struct {
	SurfaceID  string `json:"surface_id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	URLChanged bool   `json:"url_changed"`
	IsFocused  bool   `json:"is_focused"`
}

func (r surfaceRequest) toSurface() models.Surface {
	return models.Surface{
		ID:     r.SurfaceID,
		URL:    r.URL,
		Domain: utils.ExtractDomain(r.URL),
		Title:  r.Title,
	}
}

// handleSurfaceActivated surface 激活事件
// 元数据解析失败就当没有可追踪的 surface,绝不让事件打挂控制器
func (s *Server) handleSurfaceActivated(c *gin.Context) {
	var req surfaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.tracking.HandleActivated(models.Surface{})
		ok(c)
		return
	}

	s.tracking.HandleActivated(req.toSurface())
	ok(c)
}

// handleSurfaceUpdated surface 更新事件
func (s *Server) handleSurfaceUpdated(c *gin.Context) {
	var req surfaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ok(c)
		return
	}

	s.tracking.HandleUpdated(req.toSurface(), req.URLChanged, req.IsFocused)
	ok(c)
}

// handleFocusGained 浏览器重新获得焦点
func (s *Server) handleFocusGained(c *gin.Context) {
	var req surfaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ok(c)
		return
	}

	s.tracking.HandleFocusGained(req.toSurface())
	ok(c)
}

// handleFocusLost 浏览器失去焦点
func (s *Server) handleFocusLost(c *gin.Context) {
	s.tracking.HandleFocusLost()
	ok(c)
}

// handleSignIn 登录
// 成功后立刻触发一次补传
func (s *Server) handleSignIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	sess, err := s.sessions.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, http.StatusOK, err)
		return
	}

	// 登录是补传的自然时机
	go s.syncEng.PushPending(context.Background())

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user_id": sess.UserID,
		"email":   sess.Email,
	})
}

// handleSignOut 退出登录
func (s *Server) handleSignOut(c *gin.Context) {
	s.sessions.SignOut(c.Request.Context())
	ok(c)
}

// handleGetSession 查询登录态
func (s *Server) handleGetSession(c *gin.Context) {
	sess := s.sessions.Current()
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"signed_in": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signed_in": true,
		"user_id":   sess.UserID,
		"email":     sess.Email,
	})
}

// handleGetActivities 获取活动列表(最近优先)
func (s *Server) handleGetActivities(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	activities, err := s.storageMgr.ListActivities(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, activities)
}

// handleGetDailyStats 获取单日统计
// 每次请求都对当日活动重新折叠,不读缓存
func (s *Server) handleGetDailyStats(c *gin.Context) {
	dayKey := utils.DayKey(time.Now())
	if d := c.Query("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的日期格式"})
			return
		}
		dayKey = utils.DayKey(parsed)
	}

	activities, err := s.storageMgr.ListActivitiesByDay(dayKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats.Aggregate(activities, dayKey))
}

// handleGetFocusSessions 获取番茄钟历史
func (s *Server) handleGetFocusSessions(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	sessions, err := s.storageMgr.ListFocusSessions(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// handleFlush 显式触发一次补传
func (s *Server) handleFlush(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	go func() {
		defer cancel()
		s.syncEng.PushPending(ctx)
	}()
	ok(c)
}

// ===== 目标列表透传(非核心) =====

// handleListGoals 读取当前用户的目标列表
func (s *Server) handleListGoals(c *gin.Context) {
	sess := s.sessions.Current()
	if sess == nil {
		fail(c, http.StatusOK, tracker.ErrSignInRequired)
		return
	}

	data, err := s.remoteCli.SelectRaw(c.Request.Context(), "goals",
		"user_id=eq."+sess.UserID+"&order=created_at.desc")
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

// handleCreateGoal 创建目标
func (s *Server) handleCreateGoal(c *gin.Context) {
	sess := s.sessions.Current()
	if sess == nil {
		fail(c, http.StatusOK, tracker.ErrSignInRequired)
		return
	}

	var goal map[string]interface{}
	if err := c.ShouldBindJSON(&goal); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	goal["user_id"] = sess.UserID

	if err := s.remoteCli.Insert(c.Request.Context(), "goals", goal); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	ok(c)
}

// handleUpdateGoal 更新目标
func (s *Server) handleUpdateGoal(c *gin.Context) {
	sess := s.sessions.Current()
	if sess == nil {
		fail(c, http.StatusOK, tracker.ErrSignInRequired)
		return
	}

	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	if err := s.remoteCli.Update(c.Request.Context(), "goals", c.Param("id"), patch); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	ok(c)
}
