// Package api exposes items over HTTP: CRUD, asset ingest with a streamed
// progress feed, and a websocket that pushes the live item collection.
package api

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/collection"
	"github.com/dmitrijs2005/invkeeper/internal/inventory"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
)

// DefaultMaxUpload bounds the size of an uploaded asset.
const DefaultMaxUpload = 512 << 20

// Config wires a Server.
type Config struct {
	Items      *inventory.Service
	Collection *collection.Sync
	Logger     logging.Logger
	// ScratchDir receives uploaded assets before they are ingested.
	ScratchDir string
	// ObjectsDir, when set, is served under /objects/ for the local object
	// store.
	ObjectsDir string
	MaxUpload  int64
}

type Server struct {
	items      *inventory.Service
	collection *collection.Sync
	logger     logging.Logger
	scratchDir string
	objectsDir string
	maxUpload  int64
	upgrader   websocket.Upgrader
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	maxUpload := cfg.MaxUpload
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &Server{
		items:      cfg.Items,
		collection: cfg.Collection,
		logger:     logger,
		scratchDir: cfg.ScratchDir,
		objectsDir: cfg.ObjectsDir,
		maxUpload:  maxUpload,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/items", func(r chi.Router) {
		r.Get("/", s.listItems)
		r.Get("/live", s.liveItems)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getItem)
			r.Put("/", s.putItem)
			r.Delete("/", s.deleteItem)
			r.Post("/asset", s.uploadAsset)
		})
	})

	if s.objectsDir != "" {
		fs := http.FileServer(http.Dir(s.objectsDir))
		r.Handle("/objects/*", http.StripPrefix("/objects/", fs))
	}

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
