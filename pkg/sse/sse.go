package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Client 一个订阅端（监护人仪表盘页面）
type Client struct {
	id        string
	incidents map[string]bool
	ch        chan string
	done      chan struct{}
}

// Hub 按事件分组广播位置更新的 SSE 中心
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	incidents map[string]map[string]bool // incident ref -> clientID set
	interval  time.Duration
	retryMs   int
}

func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{
		clients:   make(map[string]*Client),
		incidents: make(map[string]map[string]bool),
		interval:  interval,
		retryMs:   5000,
	}
}

func (h *Hub) AddClient(id string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &Client{id: id, incidents: make(map[string]bool), ch: make(chan string, 64), done: make(chan struct{})}
	h.clients[id] = c
	return c
}

func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		close(c.done)
		for ref := range c.incidents {
			delete(h.incidents[ref], id)
		}
		delete(h.clients, id)
	}
	h.mu.Unlock()
}

// Subscribe 让客户端订阅某个事件的更新
func (h *Hub) Subscribe(id, incidentRef string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	c.incidents[incidentRef] = true
	if h.incidents[incidentRef] == nil {
		h.incidents[incidentRef] = make(map[string]bool)
	}
	h.incidents[incidentRef][id] = true
}

// PublishJSON 向某事件的所有订阅端推送一条 JSON 事件；
// 发送为非阻塞，慢客户端丢消息而不是拖住发布方
func (h *Hub) PublishJSON(incidentRef string, v interface{}) {
	b, _ := json.Marshal(v)
	msg := formatData(string(b))
	h.mu.RLock()
	for id := range h.incidents[incidentRef] {
		if c := h.clients[id]; c != nil {
			select {
			case c.ch <- msg:
			default:
			}
		}
	}
	h.mu.RUnlock()
}

func formatData(s string) string { return fmt.Sprintf("data: %s\n\n", s) }

// Serve 处理一个 SSE 连接，直到客户端断开
func (h *Hub) Serve(c *gin.Context, clientID, incidentRef string) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)

	client := h.AddClient(clientID)
	defer h.RemoveClient(clientID)
	if incidentRef != "" {
		h.Subscribe(clientID, incidentRef)
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-client.ch:
			c.Writer.Write([]byte(msg))
			flusher.Flush()
		}
	}
}
