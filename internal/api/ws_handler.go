package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"cvStudio/internal/api/middleware"
	"cvStudio/internal/auth"
	"cvStudio/internal/tasks"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxMessage   = 1 << 20
)

var errWsUnauthorized = errors.New("websocket unauthorized")

// WsHandler 提供编辑器的长连接：首条消息鉴权，之后转交 editorConn，
// 同时把 worker 通过 Redis 发布的通知推给同一用户。
type WsHandler struct {
	redisClient *redis.Client
	validator   middleware.TokenValidator
	editor      *EditorService
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewWsHandler allowedOrigins 为空时只允许同源。
func NewWsHandler(redisClient *redis.Client, validator middleware.TokenValidator, editor *EditorService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	return &WsHandler{
		redisClient: redisClient,
		validator:   validator,
		editor:      editor,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

// originChecker 非浏览器客户端不带 Origin，直接放行。
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) > 0 {
			return slices.Contains(allowed, origin)
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// wsWriter 串行化写入：编辑回复、自动保存回调与通知转发来自不同 goroutine。
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return w.write(websocket.TextMessage, data)
}

func (w *wsWriter) write(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteMessage(messageType, data)
}

func (w *wsWriter) close(code int, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, text)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}

// wsSession 是一条已升级连接的生命周期，任一循环出错即结束整个会话。
type wsSession struct {
	conn   *websocket.Conn
	out    *wsWriter
	done   chan struct{}
	once   sync.Once
	reason error
	log    *slog.Logger
}

func (s *wsSession) stop(err error) {
	s.once.Do(func() {
		s.reason = err
		close(s.done)
	})
}

// HandleConnection GET /v1/ws
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	s := &wsSession{
		conn: conn,
		out:  &wsWriter{conn: conn},
		done: make(chan struct{}),
		log:  h.logger.With(slog.String("client_ip", c.ClientIP())),
	}

	userID, err := h.authenticate(conn)
	if err != nil {
		s.out.close(websocket.ClosePolicyViolation, "unauthorized")
		s.log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	s.log = s.log.With(slog.Uint64("user_id", uint64(userID)))
	s.log.Info("websocket authenticated")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readLoop(ctx, s, h.editor.newConn(userID, s.out, s.log))
	}()
	go h.notifyLoop(ctx, s, userID)

	select {
	case <-ctx.Done():
		s.stop(ctx.Err())
	case <-s.done:
	}
	cancel()
	// 关闭底层连接以解除 ReadMessage 阻塞，等待读循环落库未保存的修改
	_ = conn.Close()
	<-readDone

	var closeErr *websocket.CloseError
	normal := errors.As(s.reason, &closeErr) &&
		(closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway)
	if s.reason != nil && !normal {
		s.log.Info("websocket connection closed", slog.Any("error", s.reason))
		return
	}
	s.log.Info("websocket connection closed")
}

// authenticate 读取首条消息 {"type":"auth","token":...}，只接受访问令牌。
func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth message: %w", err)
	}
	return h.validateAuthMessage(raw)
}

func (h *WsHandler) validateAuthMessage(raw []byte) (uint, error) {
	var msg struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "auth" || msg.Token == "" {
		return 0, errWsUnauthorized
	}
	claims, err := h.validator.ValidateToken(msg.Token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errWsUnauthorized, err)
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return 0, fmt.Errorf("%w: token type %s", errWsUnauthorized, claims.TokenType)
	}
	return claims.UserID, nil
}

// readLoop 是 editorConn 唯一的调用方，退出时负责 flush。
func (h *WsHandler) readLoop(ctx context.Context, s *wsSession, editorConn *editorConn) {
	defer editorConn.close(context.WithoutCancel(ctx))
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.stop(fmt.Errorf("read message: %w", err))
			return
		}
		editorConn.handle(ctx, raw)
	}
}

// notifyLoop 转发 worker 发布到 user_notify:<id> 的消息，并定时发送 ping。
func (h *WsHandler) notifyLoop(ctx context.Context, s *wsSession, userID uint) {
	channel := tasks.UserNotifyChannel(userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				s.stop(errors.New("notification channel closed"))
				return
			}
			s.log.Debug("forwarding notification", slog.String("channel", channel))
			if err := s.out.write(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				s.stop(fmt.Errorf("write notification: %w", err))
				return
			}
		case <-ticker.C:
			s.out.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
			s.out.mu.Unlock()
			if err != nil {
				s.stop(fmt.Errorf("write ping: %w", err))
				return
			}
		}
	}
}
