package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"siecore/apps/console/internal/config"
	"siecore/apps/console/internal/credential"
	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/fallback"
	"siecore/apps/console/internal/health"
	"siecore/apps/console/internal/observability"
	"siecore/apps/console/internal/provider"
	"siecore/apps/console/internal/repo"
	"siecore/apps/console/internal/review"
	"siecore/apps/console/internal/runner"
	"siecore/apps/console/internal/sandbox"
	"siecore/apps/console/internal/service/proposal"
	"siecore/apps/console/internal/shell"
	"siecore/apps/console/internal/snapshot"
	"siecore/apps/console/internal/workspace"
)

const Version = "0.1.0"

const maxRequestBodyBytes = 8 << 20

type Server struct {
	cfg       config.Config
	store     *repo.Store
	keys      *credential.Registry
	files     *workspace.Workspace
	shell     *shell.Executor
	proposals *proposal.Service
	gate      *review.Gate
	health    *health.Poller

	closeOnce sync.Once
}

func NewServer(cfg config.Config) (*Server, error) {
	return NewServerWithDriver(cfg, nil)
}

// NewServerWithDriver wires every component; a nil driver selects the
// provider runner built from cfg.
func NewServerWithDriver(cfg config.Config, driver runner.Driver) (*Server, error) {
	store, err := repo.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	box, err := sandbox.New(cfg.ProjectRoot, cfg.ProtectedPaths)
	if err != nil {
		store.Close()
		return nil, err
	}
	files := workspace.New(box, snapshot.New(cfg.BackupDir))
	files.Reserve(cfg.ReservedPaths()...)
	if err := files.Bootstrap(); err != nil {
		store.Close()
		return nil, err
	}
	keys := credential.NewRegistry(credential.Dependencies{
		Store:                 store,
		DeactivationThreshold: cfg.DeactivationThreshold,
	})
	if driver == nil {
		driver = runner.New(runner.Options{Overrides: providerOverrides(cfg)})
	}
	poller, err := health.NewPoller(health.Dependencies{
		Probe:       store,
		Keys:        keys,
		ProjectRoot: box.Root(),
		Schedule:    cfg.HealthSchedule,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	srv := &Server{
		cfg:   cfg,
		store: store,
		keys:  keys,
		files: files,
		shell: shell.New(shell.Options{
			Root:      box.Root(),
			Timeout:   cfg.ShellTimeout,
			Allowlist: cfg.ShellAllowlist,
		}),
		proposals: proposal.NewService(proposal.Dependencies{
			Credentials: keys,
			Executor:    fallback.NewExecutor(keys, cfg.AttemptTimeout),
			Driver:      driver,
		}),
		gate:   review.NewGate(review.Dependencies{Files: files}),
		health: poller,
	}
	srv.health.Start()
	log.Printf("console ready project_root=%s db=%s protected=%v", box.Root(), store.Name(), cfg.ProtectedPaths)
	return srv, nil
}

func (s *Server) Close() {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.health.Stop(ctx)
		if err := s.store.Close(); err != nil {
			log.Printf("store close failed err=%v", err)
		}
	})
}

func (s *Server) Workspace() *workspace.Workspace { return s.files }
func (s *Server) Keys() *credential.Registry      { return s.keys }
func (s *Server) Health() *health.Poller          { return s.health }

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(observability.AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/version", s.handleVersion)
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(api chi.Router) {
		api.Use(observability.RequireOperatorKey(s.cfg.APIKey))

		api.Get("/health", s.handleHealth)
		api.Get("/providers", s.listProviders)

		api.Route("/keys", func(r chi.Router) {
			r.Get("/", s.listKeys)
			r.Post("/", s.createKey)
			r.Put("/{id}", s.updateKey)
			r.Delete("/{id}", s.deleteKey)
			r.Post("/{id}/report_error", s.reportKeyError)
		})

		api.Route("/fs", func(r chi.Router) {
			r.Get("/list", s.listFiles)
			r.Get("/read", s.readFile)
			r.Post("/write", s.writeFile)
			r.Get("/snapshots", s.listSnapshots)
			r.Post("/restore", s.restoreSnapshot)
		})

		api.Post("/terminal/exec", s.execCommand)
		api.Post("/ai/propose", s.propose)

		api.Route("/review/{session_id}", func(r chi.Router) {
			r.Get("/", s.getReview)
			r.Post("/open", s.openReview)
			r.Post("/confirm", s.confirmReview)
			r.Post("/cancel", s.cancelReview)
		})
	})
	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key,X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Snapshot(r.Context()))
}

func providerOverrides(cfg config.Config) provider.Overrides {
	return provider.Overrides{
		BaseURL: map[domain.Provider]string{
			domain.ProviderOpenRouter: cfg.OpenRouterBaseURL,
			domain.ProviderDeepSeek:   cfg.DeepSeekBaseURL,
		},
		Model: map[domain.Provider]string{
			domain.ProviderGemini:     cfg.GeminiModel,
			domain.ProviderOpenRouter: cfg.OpenRouterModel,
			domain.ProviderDeepSeek:   cfg.DeepSeekModel,
		},
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "request_too_large", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil)
			return false
		}
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, errCode, message string, details interface{}) {
	writeJSON(w, code, domain.APIErrorBody{Error: domain.APIError{Code: errCode, Message: message, Details: details}})
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
