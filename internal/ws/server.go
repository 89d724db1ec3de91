package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tabmix/mixer/internal/config"
	"github.com/tabmix/mixer/internal/gateway"
	"github.com/tabmix/mixer/internal/session"
)

// SessionService is the on-demand session API.
type SessionService interface {
	List(ctx context.Context) ([]session.Snapshot, error)
	SetVolume(ctx context.Context, pid uint32, uid string, level float32) error
	SetMute(ctx context.Context, pid uint32, uid string, mute bool) error
}

// TabCommander forwards tab commands to the extension agent.
type TabCommander interface {
	Send(ctx context.Context, cmd gateway.Command) error
}

type Server struct {
	broadcaster    *Broadcaster
	sessions       SessionService
	tabs           TabCommander
	shutdown       func()
	shutdownOnce   sync.Once
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	log            *zap.SugaredLogger
}

// NewServer wires the UI surface. shutdown is called at most once, by
// POST /api/shutdown.
func NewServer(cfg config.ServerConfig, broadcaster *Broadcaster, sessions SessionService, tabs TabCommander, shutdown func(), log *zap.SugaredLogger) *Server {
	s := &Server{
		broadcaster:    broadcaster,
		sessions:       sessions,
		tabs:           tabs,
		shutdown:       shutdown,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.AuthToken,
		log:            log,
	}

	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/volume", s.handleSessionVolume)
	mux.HandleFunc("/api/sessions/mute", s.handleSessionMute)
	mux.HandleFunc("/api/tabs/volume", s.handleTabVolume)
	mux.HandleFunc("/api/tabs/mute", s.handleTabMute)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)
}

// Handler returns every route behind the security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		s.log.Warnw("ws client rejected", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.log.Infow("ws client connected", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.log.Infow("ws client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.log.Errorw("list sessions", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSessionVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	err := s.sessions.SetVolume(r.Context(), req.PID, req.UID, req.Volume)
	s.finish(w, "set session volume", err)
}

func (s *Server) handleSessionMute(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	err := s.sessions.SetMute(r.Context(), req.PID, req.UID, req.Mute)
	s.finish(w, "set session mute", err)
}

func (s *Server) handleTabVolume(w http.ResponseWriter, r *http.Request) {
	var req TabVolumeRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	err := s.tabs.Send(r.Context(), gateway.SetVolume{TabID: req.TabID, Volume: req.Volume})
	s.finish(w, "set tab volume", err)
}

func (s *Server) handleTabMute(w http.ResponseWriter, r *http.Request) {
	var req TabMuteRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	err := s.tabs.Send(r.Context(), gateway.SetMute{TabID: req.TabID, Mute: req.Mute, InitialVolume: req.InitialVolume})
	s.finish(w, "set tab mute", err)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.shutdownOnce.Do(func() {
		s.log.Infow("shutdown requested", "remote", r.RemoteAddr)
		s.shutdown()
	})
	w.WriteHeader(http.StatusAccepted)
}

// decodePost authorizes a POST and decodes its JSON body into v. It writes
// the error response and reports false when the request is unusable.
func (s *Server) decodePost(w http.ResponseWriter, r *http.Request, v any) bool {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return false
	}
	return true
}

func (s *Server) finish(w http.ResponseWriter, op string, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrVolumeRange):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, gateway.ErrNoAgent):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.log.Errorw(op, "err", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Mixer-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ListenAndServe serves h on host:port until ctx is done, then shuts the
// server down gracefully.
func ListenAndServe(ctx context.Context, host string, port int, h http.Handler, log *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("http shutdown", "err", err)
		}
	}()

	log.Infow("server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
