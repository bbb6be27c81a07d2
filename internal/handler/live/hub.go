package live

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/moodchat/client/internal/model/chat"
	"github.com/zhouzirui/moodchat/client/internal/service/recording"
)

// 推送给界面的事件类型
const (
	EventTimeline  = "timeline"
	EventScroll    = "scroll"
	EventRecording = "recording"
	EventNotice    = "notice"
)

const (
	clientBuffer = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
)

// Event 是推送给客户端的统一消息格式
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// RecordingEvent 描述录音界面需要的状态变化
type RecordingEvent struct {
	State          recording.State `json:"state,omitempty"`
	ElapsedSeconds *int            `json:"elapsedSeconds,omitempty"`
	Cancelled      *bool           `json:"cancelled,omitempty"`
}

// SnapshotSource 提供连接建立时的首帧时间线
type SnapshotSource interface {
	Snapshot() []chat.Message
}

// Hub 将时间线快照、滚动请求、录音状态与提示广播给所有 WebSocket 客户端。
type Hub struct {
	source   SnapshotSource
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub 创建广播中心
func NewHub(source SnapshotSource) *Hub {
	return &Hub{
		source:  source,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册实时推送路由
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/live", h.handleLive)
}

// Clients 返回当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 非阻塞地投递事件，跟不上的客户端会被断开
func (h *Hub) Broadcast(eventType string, data any) {
	event := Event{Type: eventType, Data: data, Timestamp: time.Now().UnixMilli()}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("live client too slow, dropping")
		h.remove(c)
	}
}

// Timeline 作为时间线监听器使用
func (h *Hub) Timeline(snapshot []chat.Message) {
	h.Broadcast(EventTimeline, snapshot)
}

// Scroll 作为滚动调度器的执行函数使用
func (h *Hub) Scroll() {
	h.Broadcast(EventScroll, nil)
}

// 以下方法实现 recording.Listener

func (h *Hub) StateChanged(state recording.State) {
	h.Broadcast(EventRecording, RecordingEvent{State: state})
}

func (h *Hub) ElapsedChanged(seconds int) {
	h.Broadcast(EventRecording, RecordingEvent{ElapsedSeconds: &seconds})
}

func (h *Hub) CancelIntentChanged(cancelled bool) {
	h.Broadcast(EventRecording, RecordingEvent{Cancelled: &cancelled})
}

func (h *Hub) Notice(message string) {
	h.Broadcast(EventNotice, map[string]string{"message": message})
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// handleLive 处理WebSocket连接
func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("live upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientBuffer)}

	// 在持锁期间取首帧，保证之后的广播不会早于它
	h.mu.Lock()
	c.send <- Event{Type: EventTimeline, Data: h.source.Snapshot(), Timestamp: time.Now().UnixMilli()}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("live client connected")

	ctx, cancel := context.WithCancel(context.Background())
	go h.writeLoop(ctx, c)

	h.readLoop(c)
	cancel()
	h.remove(c)
	_ = conn.Close()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("live client disconnected")
}

// readLoop 只负责保活与检测断开，客户端的指令走 HTTP 接口
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("live read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writeLoop 串行写出事件并定期发送ping消息
func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				log.Debug().Err(err).Msg("live write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if ok {
		// writeLoop 收到关闭后会发送 close 帧
		time.AfterFunc(writeWait, func() { _ = c.conn.Close() })
	}
}
