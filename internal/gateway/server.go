package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"exchange/internal/cache"
	"exchange/internal/obs"
	"exchange/internal/orderbook"
)

// DefaultLiveness is the interval of the liveness sweep.
const DefaultLiveness = 30 * time.Second

type Option struct {
	Addr     string
	Liveness time.Duration
	Client   ClientOption
}

// Server serves the websocket endpoint plus health, metrics and snapshot
// queries over one gin engine.
type Server struct {
	opt      Option
	hub      *Hub
	books    cache.Store
	metrics  *obs.Metrics
	engine   *gin.Engine
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against the Wait in Shutdown.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func NewServer(opt Option, hub *Hub, books cache.Store, metrics *obs.Metrics) *Server {
	if opt.Liveness <= 0 {
		opt.Liveness = DefaultLiveness
	}
	opt.Client = opt.Client.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opt:     opt,
		hub:     hub,
		books:   books,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/ws", s.serveWS)
	engine.GET("/health", s.health)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	engine.GET("/v1/orderbook/*symbol", s.orderbook)
	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on opt.Addr and sweeps client liveness until ctx is done, then
// closes every client and stops the listener.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opt.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logs.Infof("gateway listening on %s", s.opt.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ticker := time.NewTicker(s.opt.Liveness)
	defer ticker.Stop()

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				s.Shutdown(context.Background())
				return err
			}
			return nil
		case <-ticker.C:
			s.hub.Sweep()
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Shutdown(shutdownCtx)
			return srv.Shutdown(shutdownCtx)
		}
	}
}

// Shutdown closes every client with 1001 and waits for their loops, or for
// ctx.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.hub.Close()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logs.Warnf("gateway shutdown timed out waiting for %d clients", s.hub.Len())
	}
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.Warnf("gateway upgrade from %s, err: %+v", c.ClientIP(), err)
		return
	}

	client := newClient(conn, s.hub, s.books, s.opt.Client, s.metrics)
	if !s.track(client) {
		client.Close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.wg.Done()
	logs.Infof("gateway client %s connected from %s", client.ID(), c.ClientIP())
	client.Run(s.ctx)
}

func (s *Server) track(client *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	if err := s.hub.Add(client); err != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.hub.Len(),
	})
}

func (s *Server) orderbook(c *gin.Context) {
	symbol := strings.TrimPrefix(c.Param("symbol"), "/")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	snap, ok, err := orderbook.Load(c.Request.Context(), s.books, symbol)
	if err != nil {
		logs.Errorf("gateway load orderbook %s, err: %+v", symbol, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "orderbook unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "orderbook not found"})
		return
	}

	body, err := sonic.Marshal(snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}
