package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultObserverAddr is the default listen address of the observer.
	DefaultObserverAddr = ":8765"

	// WebSocketEndpoint streams events as JSON text frames.
	WebSocketEndpoint = "/organism-events"

	// HealthEndpoint reports observer status.
	HealthEndpoint = "/health"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 256
)

// ObserverConfig configures the WebSocket observer.
type ObserverConfig struct {
	Addr          string
	ReplayHistory bool
	HistoryCount  int
}

// DefaultObserverConfig returns the default observer configuration.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		Addr:          DefaultObserverAddr,
		ReplayHistory: true,
		HistoryCount:  100,
	}
}

// Observer forwards every bus event to connected WebSocket clients.
type Observer struct {
	bus      *Bus
	cfg      ObserverConfig
	upgrader websocket.Upgrader
	server   *http.Server
	subID    SubscriptionID

	clients   map[*client]struct{}
	clientsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewObserver creates an observer attached to b and subscribes it to every
// event.
func NewObserver(b *Bus, cfg ObserverConfig) *Observer {
	if cfg.Addr == "" {
		cfg.Addr = DefaultObserverAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Observer{
		bus: b,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	o.subID = b.Subscribe("", o.handleBusEvent)
	return o
}

// Handler returns the observer routes.
func (o *Observer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketEndpoint, o.handleWebSocket)
	mux.HandleFunc(HealthEndpoint, o.handleHealth)
	return mux
}

// Start serves Handler on the configured address in the background.
func (o *Observer) Start() error {
	if o.server != nil {
		return errors.New("observer already running")
	}
	o.server = &http.Server{Addr: o.cfg.Addr, Handler: o.Handler(), ReadHeaderTimeout: 5 * time.Second}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		log.Info().Str("addr", o.cfg.Addr).Str("endpoint", WebSocketEndpoint).Msg("observer listening")
		if err := o.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("observer server failed")
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the server down.
func (o *Observer) Stop(ctx context.Context) error {
	o.cancel()
	_ = o.bus.Unsubscribe(o.subID)

	o.clientsMu.Lock()
	for c := range o.clients {
		c.close()
		delete(o.clients, c)
	}
	o.clientsMu.Unlock()

	var err error
	if o.server != nil {
		if shutdownErr := o.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("observer shutdown: %w", shutdownErr)
		}
	}
	o.wg.Wait()
	return err
}

// ClientCount returns the number of connected clients.
func (o *Observer) ClientCount() int {
	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	return len(o.clients)
}

func (o *Observer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	replay := o.cfg.ReplayHistory && r.URL.Query().Get("replay") != "false"
	count := o.cfg.HistoryCount
	if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n >= 0 {
		count = n
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if replay {
		for _, event := range o.bus.HistorySlice(count) {
			if data, err := json.Marshal(event); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}
		}
	}

	o.clientsMu.Lock()
	o.clients[c] = struct{}{}
	total := len(o.clients)
	o.clientsMu.Unlock()
	log.Debug().Int("clients", total).Msg("observer client connected")

	o.wg.Add(2)
	go o.writePump(c)
	go o.readPump(c)
}

func (o *Observer) unregister(c *client) {
	o.clientsMu.Lock()
	if _, ok := o.clients[c]; ok {
		delete(o.clients, c)
		c.close()
	}
	o.clientsMu.Unlock()
}

func (o *Observer) writePump(c *client) {
	defer o.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Observer) readPump(c *client) {
	defer o.wg.Done()
	defer o.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("observer client read failed")
			}
			return
		}
	}
}

func (o *Observer) handleBusEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("marshal event")
		return
	}

	o.clientsMu.RLock()
	var slow []*client
	for c := range o.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	o.clientsMu.RUnlock()

	for _, c := range slow {
		o.unregister(c)
	}
}

func (o *Observer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := struct {
		Status        string `json:"status"`
		Service       string `json:"service"`
		Clients       int    `json:"clients"`
		Subscriptions int    `json:"bus_subscriptions"`
		HistorySize   int    `json:"history_size"`
		Dropped       uint64 `json:"dropped"`
	}{
		Status:        "healthy",
		Service:       "organism-observer",
		Clients:       o.ClientCount(),
		Subscriptions: o.bus.SubscriptionsCount(),
		HistorySize:   len(o.bus.History()),
		Dropped:       o.bus.Dropped(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}
