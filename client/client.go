package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:8000"`
	Room          string `env:"CHAT_ROOM,default=lobby"`
	User          string `env:"CHAT_USER,required=true"`
	Token         string `env:"CHAT_TOKEN"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func (c Config) url() string {
	u := url.URL{
		Scheme: "ws",
		Host:   c.ServerAddress,
		Path:   fmt.Sprintf("/ws/chat/%s/%s/", url.PathEscape(c.Room), url.PathEscape(c.User)),
	}
	if c.Token != "" {
		u.RawQuery = url.Values{"token": []string{c.Token}}.Encode()
	}
	return u.String()
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins a room, sends every stdin line as a chat message and logs every frame received.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Establish connection to the relay.
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.url(), http.Header{})
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()
	log.Info("Connected, type a message and press enter (Ctrl+C to quit)",
		"address", config.ServerAddress, "room", config.Room, "user", config.User)

	// 4. Reception loop, the only reader of the connection.
	received := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				received <- err
				return
			}
			log.Info("<<< " + string(data))
		}
	}()

	// 5. Stdin loop, the only writer of the connection.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return exitOK, nil
		case err := <-received:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection lost: %w", err)
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			frame, _ := json.Marshal(map[string]string{"type": "chat", "message": line})
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return exitRuntime, fmt.Errorf("send failed: %w", err)
			}
		}
	}
}
