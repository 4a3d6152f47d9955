package e2e

import (
	"chat-signal/auth"
	"chat-signal/infrastructure/websocket/server"
	"chat-signal/observability"
	"chat-signal/runtime"
	"chat-signal/runtime/workers"
	"chat-signal/sink"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

const frameTimeout = 2 * time.Second

type BaseWsSuite struct {
	suite.Suite
	Config       Config
	relay        *httptest.Server
	orchestrator *runtime.Orchestrator
	cancel       context.CancelFunc
}

// SetupSuite loads the environment configuration and starts an in-process
// relay when no external one is configured.
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	if s.Config.RelayAddr != "" {
		return
	}
	if s.Config.JWTSecret == "" {
		s.Config.JWTSecret = "e2e_secret_long_enough_for_hs256"
	}
	s.startRelay()
}

func (s *BaseWsSuite) TearDownSuite() {
	if s.relay == nil {
		return
	}
	s.orchestrator.Stop()
	s.cancel()
	s.relay.Close()
}

// startRelay wires the relay the same way the binary does, moderation included.
func (s *BaseWsSuite) startRelay() {
	log := logs.GetLoggerFromLevel(slog.LevelInfo)
	monitoring := observability.NewMonitoringManager(log)
	registry := runtime.NewRegistry()

	censor, err := runtime.PrepareModeration(log, '*')
	s.Require().NoError(err)

	s.orchestrator = runtime.NewOrchestrator(log,
		workers.NewSupervisor(log, 0),
		registry,
		runtime.NewRouter(log, censor),
		runtime.NewDispatcher(log, time.Second),
		monitoring,
	).Add(workers.NewHealthMonitoringWorker(log, registry, monitoring, 100*time.Millisecond))

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	go func() { _ = s.orchestrator.Start(ctx) }()

	signal := server.NewSignalServer(log, s.orchestrator, monitoring,
		auth.NewTokenVerifier(s.Config.JWTSecret), server.Options{
			ConnectionBufferSize: 32,
			OverflowPolicy:       sink.OverflowDisconnect,
		})
	s.relay = httptest.NewServer(signal.Routes())
	s.Config.RelayAddr = strings.TrimPrefix(s.relay.URL, "http://")
}

// Peer is one client socket driven by a scenario.
type Peer struct {
	s    *BaseWsSuite
	User string
	Conn *websocket.Conn
}

// Step prints a colorized header for a scenario step in logs.
func (s *BaseWsSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Token signs a token for user with the suite secret.
func (s *BaseWsSuite) Token(user string) string {
	token, err := auth.NewTokenVerifier(s.Config.JWTSecret).GenerateToken(user, time.Minute)
	s.Require().NoError(err)
	return token
}

// DialWithToken opens a socket on the room route of user, carrying token.
func (s *BaseWsSuite) DialWithToken(room, user, token string) (*Peer, error) {
	u := url.URL{Scheme: "ws", Host: s.Config.RelayAddr, Path: "/ws/chat/" + room + "/" + user + "/"}
	if token != "" {
		u.RawQuery = url.Values{"token": []string{token}}.Encode()
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &Peer{s: s, User: user, Conn: conn}, nil
}

// Join dials with a valid token and waits until the relay has admitted the peer.
func (s *BaseWsSuite) Join(room, user string) *Peer {
	peer, err := s.DialWithToken(room, user, s.Token(user))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = peer.Conn.Close() })

	// A chat to self proves the peer is joined
	peer.Send(map[string]any{"type": "chat", "message": "ready " + user})
	peer.ReceiveUntil(ChatSaying("ready " + user))
	return peer
}

func (p *Peer) Send(frame map[string]any) {
	data, err := json.Marshal(frame)
	p.s.Require().NoError(err)
	p.s.Require().NoError(p.Conn.WriteMessage(websocket.TextMessage, data))
}

func (p *Peer) Receive() map[string]any {
	p.s.Require().NoError(p.Conn.SetReadDeadline(time.Now().Add(frameTimeout)))
	_, data, err := p.Conn.ReadMessage()
	p.s.Require().NoError(err, "peer %s expected a frame", p.User)

	// Log full JSON bodies if E2E_DEBUG_JSON is enabled
	if p.s.Config.DebugJSON {
		p.s.T().Logf("%s <<< %s", p.User, data)
	}
	var payload map[string]any
	p.s.Require().NoError(json.Unmarshal(data, &payload))
	return payload
}

// ChatSaying matches a chat delivery carrying text.
func ChatSaying(text string) func(map[string]any) bool {
	return func(payload map[string]any) bool {
		return payload["message"] == text
	}
}

// ReceiveUntil skips frames until match accepts one.
func (p *Peer) ReceiveUntil(match func(map[string]any) bool) map[string]any {
	for {
		payload := p.Receive()
		if match(payload) {
			return payload
		}
	}
}
