package webserver

import (
	"apexcoach/log"
	"apexcoach/pkg/engine"
	"apexcoach/pkg/model"
	"apexcoach/pkg/pubsub"
	"apexcoach/pkg/store"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Control is the slice of the engine the dashboard may drive.
type Control interface {
	StartSession()
	StopSession()
}

// Archive is the slice of the store the REST endpoints read from.
type Archive interface {
	Sessions() ([]store.SessionRecord, error)
	Laps(sessionID string) ([]model.LapSummary, error)
	Report(sessionID string) (string, error)
}

// Message is the envelope for every websocket frame and JSON ack.
type Message struct {
	MessageType string `json:"type"`
	Body        any    `json:"body,omitempty"`
}

type Manager struct {
	addr    string
	buses   *engine.Buses
	control Control
	archive Archive
	r       *mux.Router

	mu   sync.Mutex
	last *model.Snapshot
}

func NewManager(addr string, buses *engine.Buses, control Control, archive Archive) *Manager {
	m := &Manager{
		addr:    addr,
		buses:   buses,
		control: control,
		archive: archive,
		r:       mux.NewRouter(),
	}

	m.addHandlers()
	return m
}

func (m *Manager) router() *mux.Router {
	return m.r
}

func (m *Manager) addHandlers() {
	m.r.HandleFunc("/healthz", m.healthHandler()).Methods(http.MethodGet)
	m.r.HandleFunc("/api/state", m.stateHandler()).Methods(http.MethodGet)
	m.r.HandleFunc("/api/sessions", m.sessionsHandler()).Methods(http.MethodGet)
	m.r.HandleFunc("/api/sessions/{id}/laps", m.lapsHandler()).Methods(http.MethodGet)
	m.r.HandleFunc("/api/sessions/{id}/report", m.reportHandler()).Methods(http.MethodGet)
	m.r.HandleFunc("/api/session/start", m.startHandler()).Methods(http.MethodPost)
	m.r.HandleFunc("/api/session/stop", m.stopHandler()).Methods(http.MethodPost)
	m.r.HandleFunc("/ws", m.websocketHandler())
	m.r.HandleFunc("/", m.dashboardHandler()).Methods(http.MethodGet)
}

// state returns the latest snapshot. Snapshots are immutable once
// published, so handing out the shared pointer is safe.
func (m *Manager) state() *model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Manager) healthHandler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Message{MessageType: "ok"})
	}
}

func (m *Manager) stateHandler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := m.state()
		if snap == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (m *Manager) sessionsHandler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := m.archive.Sessions()
		if err != nil {
			log.Logger.Warn("listing sessions failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func (m *Manager) lapsHandler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		laps, err := m.archive.Laps(id)
		if err != nil {
			log.Logger.Warn("listing laps failed", zap.String("session", id), zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, laps)
	}
}

func (m *Manager) reportHandler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		text, err := m.archive.Report(id)
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			log.Logger.Warn("loading report failed", zap.String("session", id), zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(text))
	}
}

func (m *Manager) startHandler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		m.control.StartSession()
		writeJSON(w, http.StatusAccepted, Message{MessageType: "ok", Body: "session starting"})
	}
}

func (m *Manager) stopHandler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		m.control.StopSession()
		writeJSON(w, http.StatusAccepted, Message{MessageType: "ok", Body: "session stopping"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger.Debug("encoding response failed", zap.Error(err))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully. The
// snapshot subscription uses a buffer of one so the dashboard always
// tracks the newest state and never backpressures the engine.
func (m *Manager) Run(ctx context.Context) error {
	snaps := m.buses.Snapshots.Subscribe(pubsub.TopicSnapshots, 1)
	defer m.buses.Snapshots.Unsubscribe(pubsub.TopicSnapshots, snaps)
	go func() {
		for snap := range snaps {
			m.mu.Lock()
			m.last = snap
			m.mu.Unlock()
		}
	}()

	srv := &http.Server{
		Addr: m.addr,
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      m.router(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Logger.Info("webserver listening", zap.String("addr", m.addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "webserver")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "webserver shutdown")
	}
	log.Logger.Info("webserver stopped")
	return nil
}
