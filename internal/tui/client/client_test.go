package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabmix/mixer/internal/event"
)

func TestHTTPClientSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`[{"pid":100,"uid":"A","name":"Spotify","volume":0.8,"is_muted":false,"is_active":true}]`))
	}))
	defer srv.Close()

	got, err := NewHTTPClient(srv.URL, "tok").Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	want := Session{PID: 100, UID: "A", Name: "Spotify", Volume: 0.8, IsActive: true}
	if len(got) != 1 || got[0] != want {
		t.Errorf("Sessions = %+v, want [%+v]", got, want)
	}
}

func TestHTTPClientPostBodies(t *testing.T) {
	var bodies []map[string]any
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	if err := c.SetVolume(100, "A", 0.5); err != nil {
		t.Fatal(err)
	}
	if err := c.SetMute(100, "A", true); err != nil {
		t.Fatal(err)
	}
	if err := c.Shutdown(); err != nil {
		t.Fatal(err)
	}

	wantPaths := []string{"/api/sessions/volume", "/api/sessions/mute", "/api/shutdown"}
	for i, p := range wantPaths {
		if paths[i] != p {
			t.Errorf("request %d path = %s, want %s", i, paths[i], p)
		}
	}
	if bodies[0]["volume"] != 0.5 || bodies[0]["uid"] != "A" || bodies[0]["pid"] != float64(100) {
		t.Errorf("volume body = %v", bodies[0])
	}
	if bodies[1]["mute"] != true {
		t.Errorf("mute body = %v", bodies[1])
	}
}

func TestHTTPClientErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"session: volume must be within [0, 1]"}`))
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, "").SetVolume(1, "A", 2)
	if err == nil || !strings.Contains(err.Error(), "400 session: volume must be within [0, 1]") {
		t.Errorf("err = %v", err)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		env  Envelope
		want event.Event
	}{
		{Envelope{Type: event.NameSessionClosed, Payload: json.RawMessage(`{"uid":"A"}`)}, event.SessionClosed{UID: "A"}},
		{Envelope{Type: event.NameVolumeChanged, Payload: json.RawMessage(`{"uid":"A","newVolume":0.25,"isMuted":true}`)}, event.VolumeChanged{UID: "A", NewVolume: 0.25, IsMuted: true}},
		{Envelope{Type: event.NameStateChanged, Payload: json.RawMessage(`{"uid":"A","is_active":true}`)}, event.StateChanged{UID: "A", IsActive: true}},
		{Envelope{Type: event.NameServerMessage, Payload: json.RawMessage(`{"text":"hi"}`)}, event.InboundMessage{Text: "hi"}},
	}
	for _, tt := range tests {
		got, ok := decodeEvent(tt.env)
		if !ok || got != tt.want {
			t.Errorf("decodeEvent(%s) = %#v, %v; want %#v", tt.env.Type, got, ok, tt.want)
		}
	}

	if _, ok := decodeEvent(Envelope{Type: "nope"}); ok {
		t.Error("unknown type decoded")
	}
	if _, ok := decodeEvent(Envelope{Type: event.NameSessionClosed, Payload: json.RawMessage(`[`)}); ok {
		t.Error("bad payload decoded")
	}
}

func TestWSClientEventsAndGaps(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range []string{
			`{"type":"audio-session-closed","seq":1,"payload":{"uid":"A"}}`,
			`{"type":"bogus","seq":2,"payload":{}}`,
			`{"type":"server-error","seq":3,"payload":{"message":"boom"}}`,
			`{"type":"server-message","seq":7,"payload":{"text":"hi"}}`,
		} {
			conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
		conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), "")
	defer c.Close()
	if _, ok := c.Listen(ctx)().(WSConnectedMsg); !ok {
		t.Fatal("Listen did not connect")
	}

	want := []WSEventMsg{
		{Seq: 1, Event: event.SessionClosed{UID: "A"}},
		{Seq: 3, Event: event.ServerError{Message: "boom"}},
		{Seq: 7, Gap: true, Event: event.InboundMessage{Text: "hi"}},
	}
	for i, w := range want {
		msg, ok := c.ReadLoop(ctx)().(WSEventMsg)
		if !ok {
			t.Fatalf("read %d: not an event", i)
		}
		if msg != w {
			t.Errorf("read %d = %+v, want %+v", i, msg, w)
		}
	}
	if c.Seq() != 7 {
		t.Errorf("Seq = %d, want 7", c.Seq())
	}
}

func TestReadLoopWithoutConnection(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/ws", "")
	if _, ok := c.ReadLoop(context.Background())().(WSDisconnectedMsg); !ok {
		t.Error("ReadLoop without a connection should report a disconnect")
	}
}
