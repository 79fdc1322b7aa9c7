package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ahmedelshiha/NextAccounting229/internal/config"
	"github.com/ahmedelshiha/NextAccounting229/internal/events"
	"github.com/ahmedelshiha/NextAccounting229/internal/health"
	"github.com/ahmedelshiha/NextAccounting229/internal/jwt"
	"github.com/ahmedelshiha/NextAccounting229/internal/logging"
	"github.com/ahmedelshiha/NextAccounting229/internal/stream"
	"github.com/ahmedelshiha/NextAccounting229/pkg/sdk"
)

const (
	StreamPath        = "/api/portal/realtime"
	PublishPath       = "/api/admin/realtime/events"
	HealthHistoryPath = "/api/admin/health-history"

	maxPublishBody = 64 << 10
	healthTimeout  = 5 * time.Second
)

var (
	staffRoles     = []string{"SUPER_ADMIN", "ADMIN", "TEAM_LEAD", "TEAM_MEMBER", "STAFF"}
	analyticsRoles = []string{"SUPER_ADMIN", "ADMIN", "TEAM_LEAD"}
)

// HealthStore is the health log backend. A nil *health.Store satisfies it
// and serves the synthetic history.
type HealthStore interface {
	health.Recorder
	History(ctx context.Context, now time.Time) ([]health.Entry, error)
}

type Server struct {
	log    *zap.Logger
	bus    *events.Bus
	pub    *events.Publisher
	health HealthStore
	r      *chi.Mux

	mu  sync.RWMutex
	cfg *config.Config
	jwt *jwt.Validator

	// background health writes, drained by Wait
	wg sync.WaitGroup
}

func New(cfg *config.Config, log *zap.Logger, bus *events.Bus, hs HealthStore) (*Server, error) {
	v, err := newValidator(cfg)
	if err != nil {
		return nil, err
	}
	if hs == nil {
		hs = (*health.Store)(nil)
	}
	s := &Server{
		cfg:    cfg,
		log:    log.With(zap.String("component", "http")),
		bus:    bus,
		pub:    events.NewPublisher(bus),
		health: hs,
		r:      chi.NewRouter(),
		jwt:    v,
	}
	s.r.Use(middleware.RequestID)
	s.r.Use(middleware.RealIP)
	s.r.Use(middleware.Recoverer)
	s.r.Use(logging.Middleware(s.log))
	s.r.Use(cors.Handler(corsOptions(cfg.HTTP.CORSOrigins)))
	s.routes()
	return s, nil
}

func (s *Server) Router() http.Handler { return s.r }

// Publisher is the in-process publish API for collaborators sharing the
// server's bus.
func (s *Server) Publisher() *events.Publisher { return s.pub }

// Reload swaps in a new config and rebuilds the token validator. CORS
// settings and the listen address only change on restart.
func (s *Server) Reload(cfg *config.Config) error {
	v, err := newValidator(cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg, s.jwt = cfg, v
	s.mu.Unlock()
	return nil
}

// Wait blocks until pending health writes finish.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) validator() *jwt.Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jwt
}

func (s *Server) routes() {
	s.r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.r.Handle("/metrics", promhttp.Handler())

	s.r.Options(StreamPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", "GET,OPTIONS")
		w.WriteHeader(http.StatusNoContent)
	})

	s.r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Get(StreamPath, s.handleSSE)
		r.Get(StreamPath+"/ws", s.handleWS)

		r.With(requireRole(staffRoles...)).Post(PublishPath, s.handlePublish)
		r.With(requireRole(analyticsRoles...)).Get(HealthHistoryPath, s.handleHealthHistory)
	})
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	types := requestedEvents(r)
	cfg := s.config()

	stream.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	conn := stream.NewSSEConn(w, cfg.Realtime.WriteTimeout)
	s.serveSession(r, conn, p, types, cfg)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	types := requestedEvents(r)
	cfg := s.config()

	up := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg.HTTP.CORSOrigins, r.Header.Get("Origin"))
		},
	}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	pongWait := 2*cfg.Realtime.HeartbeatInterval + cfg.Realtime.WriteTimeout
	conn := stream.NewWSConn(ws, cfg.Realtime.WriteTimeout, pongWait)
	s.serveSession(r, conn, p, types, cfg)
}

func (s *Server) serveSession(r *http.Request, conn stream.Conn, p jwt.Principal, types []string, cfg *config.Config) {
	sess := stream.NewSession(s.bus, conn, stream.SessionConfig{
		UserID:     p.UserID,
		EventTypes: types,
		Heartbeat:  cfg.Realtime.HeartbeatInterval,
	}, s.log)

	tenant := tenantOf(p, r)
	msg := "user:" + p.UserID + " events:" + strings.Join(types, ",")
	s.recordAsync(tenant, health.StatusConnected, msg)
	if err := sess.Run(r.Context()); err != nil {
		s.log.Debug("realtime session ended", zap.Error(err))
	}
	s.recordAsync(tenant, health.StatusDisconnected, msg)
}

// recordAsync writes a health entry off the request path. Failures are only
// logged.
func (s *Server) recordAsync(tenant, status, message string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		err := s.health.Record(ctx, health.Log{
			TenantID:  tenant,
			Service:   health.ServiceRealtime,
			Status:    status,
			Message:   message,
			CheckedAt: time.Now(),
		})
		if err != nil {
			s.log.Debug("health log write failed", zap.String("status", status), zap.Error(err))
		}
	}()
}

type publishRequest struct {
	Type   sdk.EventType   `json:"type"`
	Data   json.RawMessage `json:"data"`
	UserID string          `json:"userId,omitempty"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload, err := sdk.DecodePayload(req.Type, req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = principalFrom(r.Context()).UserID
	}
	s.pub.Publish(payload, userID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "accepted",
		"type":        req.Type,
		"subscribers": s.bus.Len(),
	})
}

func (s *Server) handleHealthHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.health.History(r.Context(), time.Now())
	if err != nil {
		s.log.Error("health history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load health history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func newValidator(cfg *config.Config) (*jwt.Validator, error) {
	return jwt.NewValidator(cfg.Auth.JWTPublicKeys, cfg.Auth.HMACSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
}

// requestedEvents reads the comma separated events query, defaulting to all.
func requestedEvents(r *http.Request) []string {
	var out []string
	for _, n := range strings.Split(r.URL.Query().Get("events"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return []string{sdk.AllEvents}
	}
	return out
}

func tenantOf(p jwt.Principal, r *http.Request) string {
	if p.TenantID != "" {
		return p.TenantID
	}
	if t := r.Header.Get("X-Tenant-ID"); t != "" {
		return t
	}
	return "default"
}

func corsOptions(origins []string) cors.Options {
	o := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Tenant-ID", "Last-Event-ID"},
		MaxAge:         300,
	}
	if len(origins) > 0 {
		o.AllowedOrigins = origins
		o.AllowCredentials = true
	}
	return o
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
