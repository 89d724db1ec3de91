package main

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tabmix/mixer/internal/config"
	"github.com/tabmix/mixer/internal/event"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestGatewayBindFailureKeepsDaemonUp(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	cfg := config.Default()
	cfg.Server.Port = freePort(t)
	cfg.Gateway.Port = busy.Addr().(*net.TCPAddr).Port

	done := make(chan error, 1)
	// run keeps logging while it shuts down
	go func() { done <- run(cfg, true, zap.NewNop().Sugar()) }()

	addr := "127.0.0.1:" + strconv.Itoa(cfg.Server.Port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/api/sessions")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		select {
		case err := <-done:
			t.Fatalf("run returned while the UI server should be up: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("UI server never answered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var env struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("no server-error received: %v", err)
		}
		if env.Type != event.NameServerError {
			continue
		}
		var payload event.ServerError
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !strings.Contains(payload.Message, "listen failed") {
			t.Errorf("server-error = %q, want the gateway bind failure", payload.Message)
		}
		break
	}
	conn.Close()

	select {
	case err := <-done:
		t.Fatalf("run returned after gateway failure: %v", err)
	default:
	}

	resp, err := http.Post("http://"+addr+"/api/shutdown", "application/json", nil)
	if err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("shutdown status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after shutdown")
	}
}
