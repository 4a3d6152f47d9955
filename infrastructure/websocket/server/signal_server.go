package server

import (
	"chat-signal/auth"
	"chat-signal/contract"
	"chat-signal/domain"
	"chat-signal/observability"
	"chat-signal/sink"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	closeGracePeriod = time.Second
	allOrigins       = "*"
)

// Options tunes one SignalServer. Zero durations fall back to sane defaults.
type Options struct {
	ConnectionBufferSize int
	OverflowPolicy       sink.OverflowPolicy
	WriteWait            time.Duration
	PongWait             time.Duration
	MaxMessageSize       int64
	AllowedOrigins       []string
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024 // enough for WebRTC SDP messages
	}
	if o.ConnectionBufferSize <= 0 {
		o.ConnectionBufferSize = 64
	}
	if o.OverflowPolicy == "" {
		o.OverflowPolicy = sink.OverflowDisconnect
	}
	return o
}

// SignalServer upgrades /ws/chat/{room}/{user} requests and bridges each
// socket to the orchestrator: one read loop feeding Receive and one write loop
// draining the connection's SocketSink.
type SignalServer struct {
	log          *slog.Logger
	orchestrator contract.IOrchestrator
	monitoring   *observability.MonitoringManager
	verifier     *auth.TokenVerifier
	upgrader     websocket.Upgrader
	opts         Options
	pingPeriod   time.Duration
}

// NewSignalServer builds the transport. A nil verifier disables token binding.
func NewSignalServer(
	log *slog.Logger,
	orchestrator contract.IOrchestrator,
	monitoring *observability.MonitoringManager,
	verifier *auth.TokenVerifier,
	opts Options,
) *SignalServer {
	opts = opts.withDefaults()
	s := &SignalServer{
		log:          log,
		orchestrator: orchestrator,
		monitoring:   monitoring,
		verifier:     verifier,
		opts:         opts,
		// Must be less than pongWait
		pingPeriod: (opts.PongWait * 9) / 10,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Routes exposes the chat socket with and without trailing slash, plus the health endpoint.
func (s *SignalServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/chat/{room}/{user}", s.ServeChat)
	mux.HandleFunc("GET /ws/chat/{room}/{user}/{$}", s.ServeChat)
	mux.Handle("GET /health", NewHealthHandler(s.monitoring))
	return mux
}

// ServeChat handles one WebSocket connection until it closes.
func (s *SignalServer) ServeChat(w http.ResponseWriter, r *http.Request) {
	authErr := s.authenticate(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered with an HTTP error
		s.log.Debug("Failed to upgrade connection", "error", err)
		return
	}

	participant := domain.Participant{
		ConnectionID: domain.ConnectionID(uuid.NewString()),
		UserID:       domain.UserID(r.PathValue("user")),
		RoomID:       domain.RoomID(r.PathValue("room")),
	}
	socketSink := sink.NewSocketSink(participant, s.opts.ConnectionBufferSize, s.opts.OverflowPolicy, s.log)

	if authErr != nil {
		s.monitoring.IncrRejected()
		s.orchestrator.UnregisterParticipant(socketSink)
		s.reject(conn, participant, authErr)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.orchestrator.RegisterParticipant(ctx, socketSink); err != nil {
		s.reject(conn, participant, err)
		return
	}

	go s.writePump(conn, socketSink)
	s.readPump(ctx, conn, socketSink)
}

func (s *SignalServer) authenticate(r *http.Request) error {
	if s.verifier == nil {
		return nil
	}
	return s.verifier.Bind(auth.ExtractToken(r), r.PathValue("user"))
}

func (s *SignalServer) checkOrigin(r *http.Request) bool {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 || lo.Contains(origins, allOrigins) {
		return true
	}
	origin := r.Header.Get("Origin")
	// Non browser clients don't send any origin
	if origin == "" {
		return true
	}
	return lo.Contains(origins, origin)
}

// reject closes the socket with a policy violation, no data frame is ever sent.
func (s *SignalServer) reject(conn *websocket.Conn, p domain.Participant, cause error) {
	s.log.Info("Connection rejected",
		"connection_id", p.ConnectionID, "user_id", p.UserID, "room_id", p.RoomID, "error", cause)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rejected")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteWait))
	// Give the peer a chance to read the close frame before the TCP close
	_ = conn.SetReadDeadline(time.Now().Add(closeGracePeriod))
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	_ = conn.Close()
}

// readPump pumps frames from the websocket connection to the orchestrator.
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (s *SignalServer) readPump(ctx context.Context, conn *websocket.Conn, socketSink *sink.SocketSink) {
	// When this function exits (e.g., connection closes), unregister the participant
	defer func() {
		s.orchestrator.UnregisterParticipant(socketSink)
		_ = conn.Close()
	}()

	conn.SetReadLimit(s.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug("Unexpected close", "connection_id", socketSink.Participant().ConnectionID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.log.Debug("Binary frame ignored", "connection_id", socketSink.Participant().ConnectionID)
			continue
		}
		s.orchestrator.Receive(ctx, socketSink, data)
	}
}

// writePump pumps deliveries from the sink to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (s *SignalServer) writePump(conn *websocket.Conn, socketSink *sink.SocketSink) {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case delivery := <-socketSink.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := conn.WriteJSON(delivery); err != nil {
				s.log.Debug("Write failed", "connection_id", socketSink.Participant().ConnectionID, "error", err)
				socketSink.Close()
				return
			}
		case <-socketSink.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteWait))
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				socketSink.Close()
				return
			}
		}
	}
}
