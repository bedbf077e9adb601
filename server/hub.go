package server

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client 一个websocket订阅者
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub 快照广播中心
// 功能：维护websocket订阅者集合，每步完成后向所有订阅者推送状态快照
// 说明：订阅者集合只由run协程修改；发送缓冲区已满的订阅者被断开
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	count      atomic.Int32
	done       <-chan struct{}
}

func newHub(ctx context.Context) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		done:       ctx.Done(),
	}
}

// run 处理订阅者的加入、离开与广播，直到ctx取消
func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			log.Infof("websocket client %s connected, %d clients", c.id, len(h.clients))
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				log.Infof("websocket client %s disconnected, %d clients", c.id, len(h.clients))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					log.Warnf("websocket client %s is too slow, dropped", c.id)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
}

// Len 当前订阅者数（包括正在加入的）
func (h *Hub) Len() int {
	return int(h.count.Load())
}

// Broadcast 向所有订阅者推送消息，广播队列已满时丢弃
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn("broadcast queue is full, snapshot dropped")
	}
}

// serve HTTP接口：升级为websocket并订阅快照
// 参数：first-连接建立后立即发送的消息
func (h *Hub) serve(c *gin.Context, first func() ([]byte, error)) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	cl := &client{id: uuid.New().String(), conn: conn, send: make(chan []byte, 64)}
	if msg, err := first(); err != nil {
		log.Errorf("websocket client %s: %v", cl.id, err)
	} else {
		cl.send <- msg
	}
	h.count.Add(1)
	select {
	case h.register <- cl:
	case <-h.done:
		h.count.Add(-1)
		conn.Close()
		return
	}
	go cl.writer()
	go cl.reader(h)
}

// reader 丢弃客户端消息，只用于发现连接断开
func (c *client) reader(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("websocket client %s: %v", c.id, err)
			}
			return
		}
	}
}

// writer 发送缓冲区关闭后关闭连接
func (c *client) writer() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
