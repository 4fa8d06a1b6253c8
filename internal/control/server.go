// Package control 提供可选的本地 HTTP 控制端点
// 只监听回环地址，暴露与界面相同的两个命令：输入文本和退出。
// 必须配置 token；带 Origin 头的请求（浏览器页面发起）一律拒绝，POST 只接受 application/json。
package control

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/netutil"

	"github.com/pkd-app/echo-flow/internal/inject"
)

// 同一时刻只处理一个连接
const maxConnections = 1

// ErrNoToken 未配置 token 时拒绝启动
var ErrNoToken = errors.New("control endpoint requires a token")

// Injector 文本注入能力
type Injector interface {
	Inject(text string) (string, error)
	InjectAndWait(ctx context.Context, text string) (inject.Result, error)
	Busy() bool
}

// Quitter 进程退出能力
type Quitter interface {
	Quit()
}

// Options 控制端点参数
type Options struct {
	Addr    string
	Token   string
	Version string

	Injector Injector
	Quitter  Quitter
	// TrayActive 托盘是否已创建
	TrayActive func() bool
	// OnRejected 已有任务在执行，请求被拒绝时调用
	OnRejected func(source string, chars int)

	Logger *slog.Logger
}

// Server 本地控制端点
type Server struct {
	opts   Options
	logger *slog.Logger
	engine *gin.Engine

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

type typeRequest struct {
	Text string `json:"text"`
	Wait bool   `json:"wait"`
}

// New 创建控制端点（未启动）
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		opts:   opts,
		logger: logger.With("component", "control"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.logRequest())

	v1 := engine.Group("/v1")
	v1.Use(s.rejectBrowser(), s.requireToken())
	{
		v1.POST("/type", s.handleType)
		v1.POST("/quit", s.handleQuit)
		v1.GET("/status", s.handleStatus)
	}

	s.engine = engine
	return s
}

// Handler 返回 HTTP 处理器（测试使用）
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 绑定回环地址并在后台提供服务
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("control server already started")
	}
	if s.opts.Token == "" {
		return ErrNoToken
	}

	host, _, err := net.SplitHostPort(s.opts.Addr)
	if err != nil {
		return fmt.Errorf("invalid control address %q: %w", s.opts.Addr, err)
	}
	if !isLoopback(host) {
		return fmt.Errorf("control address must be loopback, got %q", host)
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("端口绑定失败: %w", err)
	}
	listener = netutil.LimitListener(listener, maxConnections)

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("❌ 控制端点异常退出", "error", err)
		}
	}()

	s.logger.Info("✅ 控制端点已启动", "address", listener.Addr().String())
	return nil
}

// Addr 实际监听地址，未启动时为空
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown 停止接收新请求
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return err
	}
	return nil
}

func (s *Server) handleType(c *gin.Context) {
	var req typeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Wait {
		result, err := s.opts.Injector.InjectAndWait(c.Request.Context(), req.Text)
		if err != nil {
			s.writeInjectError(c, req.Text, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"job_id": result.JobID,
			"chars":  result.Chars,
			"sent":   result.Sent,
			"failed": result.Failed,
		})
		return
	}

	jobID, err := s.opts.Injector.Inject(req.Text)
	if err != nil {
		s.writeInjectError(c, req.Text, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (s *Server) writeInjectError(c *gin.Context, text string, err error) {
	switch {
	case errors.Is(err, inject.ErrBusy):
		if s.opts.OnRejected != nil {
			s.opts.OnRejected("control", len([]rune(text)))
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// 客户端断开，任务继续执行
		c.JSON(http.StatusAccepted, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleQuit(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{"status": "quitting"})
	c.Writer.Flush()

	if s.opts.Quitter != nil {
		go s.opts.Quitter.Quit()
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	tray := false
	if s.opts.TrayActive != nil {
		tray = s.opts.TrayActive()
	}
	c.JSON(http.StatusOK, gin.H{
		"busy":    s.opts.Injector.Busy(),
		"tray":    tray,
		"version": s.opts.Version,
	})
}

// rejectBrowser 拒绝浏览器页面发起的请求
// 浏览器跨站请求总会带 Origin；text/plain 等简单请求不经过预检，所以 POST 还要求 JSON 类型
func (s *Server) rejectBrowser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Origin") != "" {
			s.logger.Warn("⚠️ 拒绝带 Origin 的控制请求", "origin", c.GetHeader("Origin"), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "browser requests are not allowed"})
			return
		}
		if c.Request.Method == http.MethodPost && c.ContentType() != gin.MIMEJSON {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "content type must be application/json"})
			return
		}
		c.Next()
	}
}

// requireToken 校验 Authorization: Bearer <token>，未配置 token 时全部拒绝
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || s.opts.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) logRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("控制端点请求",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
