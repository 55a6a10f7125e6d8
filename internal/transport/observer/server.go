// Package observer streams per-tick world observations to websocket
// clients. The world pushes frames into the server's sink channel and
// never blocks on it; slow clients drop frames rather than stall the
// simulation.
package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gridrover.ai/internal/protocol"
	"gridrover.ai/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	sink chan protocol.ObsMsg

	mu      sync.Mutex
	clients map[uint64]*client
}

type client struct {
	out   chan []byte
	every int
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sink:    make(chan protocol.ObsMsg, 16),
		clients: map[uint64]*client{},
	}
}

// Sink is wired into the world via SetObsSink.
func (s *Server) Sink() chan<- protocol.ObsMsg { return s.sink }

// Run fans frames out to every subscribed client until ctx is done.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.sink:
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			s.mu.Lock()
			for _, c := range s.clients {
				if c.every > 1 && msg.Tick%uint64(c.every) != 0 {
					continue
				}
				select {
				case c.out <- b:
				default:
					// Slow client: drop the frame, keep the stream live.
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.world.Config()
		resp := protocol.BootstrapResponse{
			ProtocolVersion: protocol.Version,
			RunID:           cfg.ID,
			Tick:            s.world.CurrentTick(),
			Width:           cfg.Width,
			Height:          cfg.Height,
			Robots:          cfg.Robots,
			TickRateHz:      cfg.TickRateHz,
			Seed:            cfg.Seed,
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: the first frame must be SUBSCRIBE.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		c := &client{
			out:   make(chan []byte, 8),
			every: normalizeEvery(sub.EveryNTicks),
		}
		id := s.nextID.Add(1)
		s.mu.Lock()
		s.clients[id] = c
		s.mu.Unlock()
		if s.log != nil {
			s.log.Printf("observer %d subscribed every=%d", id, c.every)
		}
		defer func() {
			s.mu.Lock()
			delete(s.clients, id)
			s.mu.Unlock()
			if s.log != nil {
				s.log.Printf("observer %d gone", id)
			}
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates (decimation changes).
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub protocol.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
				continue
			}
			s.mu.Lock()
			c.every = normalizeEvery(sub.EveryNTicks)
			s.mu.Unlock()
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func normalizeEvery(n int) int {
	if n < 1 {
		return 1
	}
	if n > 600 {
		return 600
	}
	return n
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
