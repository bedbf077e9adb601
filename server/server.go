// 状态查询服务：HTTP接口与websocket快照推送
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/cellsim/task"
)

var log = logrus.WithField("module", "server")

// Server HTTP服务
type Server struct {
	task   *task.Context
	hub    *Hub
	engine *gin.Engine
}

// New 创建HTTP服务并订阅每步快照
// 参数：ctx-生命周期，取消后websocket订阅者全部断开；t-仿真任务
// 说明：
// 1. GET /health、GET /snapshot、GET /ws 自行加锁
// 2. 其余查询接口在读锁下执行，只会看到两步之间的一致状态
func New(ctx context.Context, t *task.Context) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		task:   t,
		hub:    newHub(ctx),
		engine: gin.New(),
	}
	go s.hub.run()

	r := s.engine
	r.Use(gin.Recovery())
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "OPTIONS"}
	r.Use(cors.New(config))

	r.GET("/health", s.health)
	r.GET("/snapshot", func(c *gin.Context) {
		c.JSON(http.StatusOK, t.Snapshot())
	})
	r.GET("/ws", func(c *gin.Context) {
		s.hub.serve(c, s.snapshotMessage)
	})

	locked := r.Group("/", func(c *gin.Context) {
		t.RLock()
		defer t.RUnlock()
		c.Next()
	})
	t.Clock().Register(locked)
	t.VehicleManager().Register(locked)
	t.Graph().NodeManager().Register(locked)

	t.OnStep(func(uint64) {
		if s.hub.Len() == 0 {
			return
		}
		msg, err := s.snapshotMessage()
		if err != nil {
			log.Errorf("marshal snapshot: %v", err)
			return
		}
		s.hub.Broadcast(msg)
	})
	return s
}

// Handler HTTP处理器
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"run_id": s.task.ID().String(),
		"step":   s.task.Age(),
	})
}

func (s *Server) snapshotMessage() ([]byte, error) {
	return json.Marshal(s.task.Snapshot())
}

// Serve 在addr上提供服务，直到ctx取消
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("server listening at %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
