// Package api serves the synced tables over a PostgREST compatible HTTP
// dialect: one endpoint per table under /rest/v1, id=eq. filters, order
// parameters, Prefer: return=representation and JSON error bodies with
// code, message, details and hint.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/logging"
	"github.com/dmitrijs2005/tendercrm/internal/server/repositories/rows"
)

// RowService is the storage side of the table endpoints.
type RowService interface {
	List(ctx context.Context, table entities.Table, order rows.Order) ([]json.RawMessage, error)
	Get(ctx context.Context, table entities.Table, id string) (json.RawMessage, error)
	Insert(ctx context.Context, table entities.Table, payloads []json.RawMessage) ([]json.RawMessage, error)
	Update(ctx context.Context, table entities.Table, id string, patch json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, table entities.Table, id string) (json.RawMessage, error)
}

type Server struct {
	rows      RowService
	logger    logging.Logger
	jwtSecret []byte
}

func NewServer(rs RowService, secretKey string, l logging.Logger) *Server {
	return &Server{
		rows:      rs,
		logger:    l.With("module", "api"),
		jwtSecret: []byte(secretKey),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrorResponse{Code: "PGRST125", Message: "Invalid path specified in request URL"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorResponse{Code: "PGRST117", Message: "Unsupported HTTP method: " + r.Method})
	})

	r.Route(common.RESTPrefix, func(r chi.Router) {
		r.Use(s.apiKeyAuth)

		r.Get("/", s.handleRoot)

		r.Route("/{table}", func(r chi.Router) {
			r.Use(s.tableCtx)

			r.Get("/", s.handleSelect)
			r.With(s.requireWrite).Post("/", s.handleInsert)
			r.With(s.requireWrite).Patch("/", s.handleUpdate)
			r.With(s.requireWrite).Delete("/", s.handleDelete)
		})
	})

	return r
}
