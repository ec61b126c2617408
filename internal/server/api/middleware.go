package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/server/auth"
)

type ctxKey int

const (
	roleKey ctxKey = iota
	tableKey
)

func roleFrom(ctx context.Context) auth.Role {
	r, _ := ctx.Value(roleKey).(auth.Role)
	return r
}

func tableFrom(ctx context.Context) entities.Table {
	t, _ := ctx.Value(tableKey).(entities.Table)
	return t
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			s.logger.Info(r.Context(), "request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// apiKeyAuth resolves the caller's role from the bearer token, falling back
// to the apikey header.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(common.APIKeyHeaderName)
		if bearer, ok := strings.CutPrefix(r.Header.Get(common.AuthorizationHeaderName), "Bearer "); ok && bearer != "" {
			key = bearer
		}
		if key == "" {
			writeError(w, http.StatusUnauthorized, ErrorResponse{
				Code:    "PGRST301",
				Message: "No API key found in request",
				Hint:    strPtr("Send the key in the apikey header or as a Bearer token."),
			})
			return
		}

		role, err := auth.RoleFromKey(key, s.jwtSecret)
		if err != nil {
			code := "PGRST301"
			msg := "JWT invalid"
			if errors.Is(err, common.ErrTokenExpired) {
				code, msg = "PGRST303", "JWT expired"
			}
			writeError(w, http.StatusUnauthorized, ErrorResponse{Code: code, Message: msg})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey, role)))
	})
}

func (s *Server) requireWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !roleFrom(r.Context()).CanWrite() {
			writeError(w, http.StatusForbidden, ErrorResponse{
				Code:    "42501",
				Message: fmt.Sprintf("permission denied for table %s", tableFrom(r.Context())),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) tableCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "table")
		table, err := entities.ParseTable(name)
		if err != nil {
			writeError(w, http.StatusNotFound, ErrorResponse{
				Code:    "PGRST205",
				Message: fmt.Sprintf("Could not find the table 'public.%s' in the schema cache", name),
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tableKey, table)))
	})
}
