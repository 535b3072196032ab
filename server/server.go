// Package server exposes a session, its soundfonts and its configuration over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/JeanRibes/miditools/config"
	"github.com/JeanRibes/miditools/miditools"
	"github.com/JeanRibes/miditools/soundfont"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

// Server serves the JSON API. Its handlers only read shared state.
type Server struct {
	history  *History
	loader   *soundfont.Loader
	cfg      *config.Config
	tempo    miditools.TempoSource
	onLoaded func(name string, sf *meltysynth.SoundFont)
	logger   *log.Logger
}

type Option func(*Server)

// WithSoundfontLoaded is called once a soundfont requested over the API is loaded.
func WithSoundfontLoaded(fn func(name string, sf *meltysynth.SoundFont)) Option {
	return func(s *Server) { s.onLoaded = fn }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func New(history *History, loader *soundfont.Loader, cfg *config.Config, tempo miditools.TempoSource, opts ...Option) *Server {
	s := &Server{history: history, loader: loader, cfg: cfg, tempo: tempo, logger: log.Default()}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.WithPrefix("http")
	return s
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(s.logRequests)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/elements", s.handleElements).Methods(http.MethodGet)
	api.HandleFunc("/soundfonts", s.handleSoundfonts).Methods(http.MethodGet)
	api.HandleFunc("/soundfonts/{name}", s.handleLoadSoundfont).Methods(http.MethodPost)
	api.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	api.HandleFunc("/tempo", s.handleTempo).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(router)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.history.Elements())
}

func (s *Server) handleSoundfonts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.loader.States())
}

type loadResponse struct {
	Name  string          `json:"name"`
	State soundfont.State `json:"state"`
}

func (s *Server) handleLoadSoundfont(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := s.loader.States()[name]; !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: soundfont.ErrUnknownSoundfont.Error() + ": " + name})
		return
	}
	s.loader.LoadAsync(name, func(sf *meltysynth.SoundFont, err error) {
		if err != nil {
			if !errors.Is(err, soundfont.ErrUnknownSoundfont) {
				s.logger.Error("soundfont", "name", name, "err", err)
			}
			return
		}
		if s.onLoaded != nil {
			s.onLoaded(name, sf)
		}
	})
	s.writeJSON(w, http.StatusAccepted, loadResponse{Name: name, State: s.loader.State(name)})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg)
}

type tempoResponse struct {
	BPM    float64 `json:"bpm"`
	Source string  `json:"source"`
}

func (s *Server) handleTempo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, tempoResponse{BPM: s.tempo.Tempo(), Source: s.cfg.TempoSource})
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
