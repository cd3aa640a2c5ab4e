package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/internal/core/protocol"
	apperrors "roomrelay/pkg/errors"
	rlog "roomrelay/pkg/logger"
	"roomrelay/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenParam is the query parameter carrying the client credential.
const TokenParam = "token"

// Options tunes the per-connection actor.
type Options struct {
	MaxPayloadBytes int64
	SendBufferSize  int
	WriteTimeout    time.Duration
	AllowedOrigins  []string
}

func DefaultOptions() Options {
	return Options{
		MaxPayloadBytes: 10 * 1024 * 1024,
		SendBufferSize:  64,
		WriteTimeout:    10 * time.Second,
		AllowedOrigins:  []string{"*"},
	}
}

type WebSocketServer struct {
	auth       ports.Authenticator
	sessions   ports.SessionRegistry
	rooms      ports.RoomRegistry
	dispatcher ports.Dispatcher
	stats      ports.StatsRecorder

	upgrader websocket.Upgrader
	opts     Options
	logger   *zap.SugaredLogger
}

func NewWebSocketServer(
	auth ports.Authenticator,
	sessions ports.SessionRegistry,
	rooms ports.RoomRegistry,
	dispatcher ports.Dispatcher,
	stats ports.StatsRecorder,
	opts Options,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	defaults := DefaultOptions()
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = defaults.MaxPayloadBytes
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = defaults.SendBufferSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = rlog.Nop()
	}

	s := &WebSocketServer{
		auth:       auth,
		sessions:   sessions,
		rooms:      rooms,
		dispatcher: dispatcher,
		stats:      stats,
		opts:       opts,
		logger:     logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     originChecker(opts.AllowedOrigins),
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and origins listed in allowed. "*" allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}

// HandleWebSocket upgrades the request, authenticates the credential and runs
// the connection until either side goes away.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	credential := r.URL.Query().Get(TokenParam)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Infow("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		s.stats.Record(domain.StatConnectionsRejected, "upgrade", 1)
		return
	}
	ws.SetReadLimit(s.opts.MaxPayloadBytes)

	identity, err := s.auth.Authenticate(r.Context(), credential)
	if err != nil {
		s.stats.Record(domain.StatAuthFailures, "", 1)
		s.logger.Infow("authentication failed",
			"remote_addr", r.RemoteAddr,
			"token", utils.MaskSensitive(credential, 4),
			"error", err,
		)
		_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		_ = ws.WriteMessage(websocket.TextMessage, protocol.ErrorCode(apperrors.ErrCodeUnauthorized))
		_ = ws.Close()
		return
	}

	sock := newSocket(ws, s.opts.SendBufferSize, s.opts.WriteTimeout)
	conn := domain.NewConnection(domain.ConnectionID(utils.GenerateConnectionID()), identity, r.RemoteAddr, sock)

	if err := s.sessions.Admit(conn); err != nil {
		s.reject(ws, conn, err)
		return
	}

	ws.SetPongHandler(func(string) error {
		conn.MarkAlive()
		return nil
	})

	go sock.writePump()

	s.stats.Record(domain.StatConnectionsAccepted, string(identity.Method), 1)
	s.logger.Infow("client connected",
		"connection_id", conn.ID,
		"user_id", conn.User,
		"auth_method", conn.AuthMethod,
		"remote_addr", conn.RemoteAddr,
	)
	conn.Send(protocol.Welcome(conn.User, utils.Now()))

	s.serve(conn, sock)
}

func (s *WebSocketServer) reject(ws *websocket.Conn, conn *domain.Connection, err error) {
	code, reason, label := websocket.CloseTryAgainLater, "Too many connections", "capacity"
	if errors.Is(err, domain.ErrShuttingDown) {
		code, reason, label = websocket.CloseGoingAway, "Server shutting down", "shutdown"
	}
	s.stats.Record(domain.StatConnectionsRejected, label, 1)
	s.logger.Infow("connection rejected",
		"connection_id", conn.ID,
		"user_id", conn.User,
		"reason", reason,
	)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(s.opts.WriteTimeout))
	_ = ws.Close()
}

// serve runs the dispatch loop fed by the reader goroutine and releases the
// connection once the reader stops.
func (s *WebSocketServer) serve(conn *domain.Connection, sock *socket) {
	frames := make(chan []byte, 16)
	go sock.readPump(frames)

	ctx := rlog.WithConnection(context.Background(), string(conn.ID), string(conn.User))
	log := rlog.NewContextLogger(s.logger.Desugar()).Sugar(ctx)
	for raw := range frames {
		if err := s.dispatcher.Dispatch(ctx, conn, raw); err != nil {
			log.Debugw("dispatch error", "error", err)
		}
	}

	rooms := s.rooms.Leave(conn)
	conn.Terminate()
	s.sessions.Release(conn)

	log.Infow("client disconnected", "rooms", rooms, "error", sock.err())
}

type closeFrame struct {
	code   int
	reason string
}

// socket is the gorilla-backed send capability of one connection. All writes
// happen on the writePump goroutine.
type socket struct {
	ws           *websocket.Conn
	send         chan []byte
	ping         chan struct{}
	closing      chan closeFrame
	done         chan struct{}
	doneOnce     sync.Once
	writeTimeout time.Duration

	mu      sync.Mutex
	readErr error
}

func newSocket(ws *websocket.Conn, buffer int, writeTimeout time.Duration) *socket {
	return &socket{
		ws:           ws,
		send:         make(chan []byte, buffer),
		ping:         make(chan struct{}, 1),
		closing:      make(chan closeFrame, 1),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Enqueue queues payload for the writer. A full queue means the peer can not
// keep up; it is terminated.
func (s *socket) Enqueue(payload []byte) bool {
	if s.terminated() {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		s.Terminate()
		return false
	}
}

func (s *socket) Ping() error {
	if s.terminated() {
		return domain.ErrConnectionClosed
	}
	select {
	case s.ping <- struct{}{}:
	default:
	}
	return nil
}

func (s *socket) Close(code int, reason string) {
	select {
	case s.closing <- closeFrame{code: code, reason: reason}:
	default:
	}
}

func (s *socket) Terminate() {
	s.doneOnce.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}

func (s *socket) terminated() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *socket) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// readPump forwards every data frame to frames and closes it when the socket
// fails or the peer closes. Binary frames are forwarded like text.
func (s *socket) readPump(frames chan<- []byte) {
	defer close(frames)
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !s.terminated() {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
		select {
		case frames <- data:
		case <-s.done:
			return
		}
	}
}

func (s *socket) writePump() {
	for {
		select {
		case <-s.done:
			return

		case payload := <-s.send:
			if err := s.write(payload); err != nil {
				s.Terminate()
				return
			}

		case <-s.ping:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				s.Terminate()
				return
			}

		case frame := <-s.closing:
			s.flush()
			deadline := time.Now().Add(s.writeTimeout)
			if err := s.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(frame.code, frame.reason), deadline); err != nil {
				s.Terminate()
				return
			}
			// Bound the wait for the peer's close reply.
			_ = s.ws.SetReadDeadline(deadline)
			return
		}
	}
}

func (s *socket) write(payload []byte) error {
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.ws.WriteMessage(websocket.TextMessage, payload)
}

// flush writes whatever is already queued before a close frame.
func (s *socket) flush() {
	for {
		select {
		case payload := <-s.send:
			if err := s.write(payload); err != nil {
				return
			}
		default:
			return
		}
	}
}
