package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/server/repositories/rows"
)

const maxBodyBytes = 1 << 20

// query holds the parsed filter and modifiers of a table request.
type query struct {
	id    string
	hasID bool
	order rows.Order
}

func parseQuery(v url.Values) (query, error) {
	q := query{order: rows.DefaultOrder}
	for key, values := range v {
		if len(values) != 1 {
			return query{}, fmt.Errorf("parameter %q given %d times", key, len(values))
		}
		val := values[0]

		switch key {
		case "select":
			if val != "*" {
				return query{}, fmt.Errorf("only select=* is supported, got %q", val)
			}
		case "order":
			o, err := rows.ParseOrder(val)
			if err != nil {
				return query{}, err
			}
			q.order = o
		case "id":
			id, ok := strings.CutPrefix(val, "eq.")
			if !ok || id == "" {
				return query{}, fmt.Errorf("only id=eq.<value> filters are supported, got %q", val)
			}
			q.id, q.hasID = id, true
		default:
			return query{}, fmt.Errorf("unsupported filter on %q", key)
		}
	}
	return q, nil
}

func wantsRepresentation(r *http.Request) bool {
	for _, pref := range strings.Split(r.Header.Get(common.PreferHeaderName), ",") {
		if strings.TrimSpace(pref) == common.PreferReturnRepresentation {
			return true
		}
	}
	return false
}

func (s *Server) parseQuery(w http.ResponseWriter, r *http.Request) (query, bool) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: "PGRST100", Message: "failed to parse filter", Details: strPtr(err.Error())})
		return query{}, false
	}
	return q, true
}

// handleRoot answers health checks with the list of exposed tables.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tables": entities.Tables})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	table := tableFrom(r.Context())
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}

	if q.hasID {
		row, err := s.rows.Get(r.Context(), table, q.id)
		switch {
		case errors.Is(err, common.ErrNotFound):
			writeJSON(w, http.StatusOK, []json.RawMessage{})
		case err != nil:
			s.writeServiceError(w, r, err)
		default:
			writeJSON(w, http.StatusOK, []json.RawMessage{row})
		}
		return
	}

	list, err := s.rows.List(r.Context(), table, q.order)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table := tableFrom(r.Context())
	if _, ok := s.parseQuery(w, r); !ok {
		return
	}

	payloads, err := readPayloads(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: "PGRST102", Message: "Empty or invalid json", Details: strPtr(err.Error())})
		return
	}

	out, err := s.rows.Insert(r.Context(), table, payloads)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusCreated)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := tableFrom(r.Context())
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	if !q.hasID {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: "21000", Message: "UPDATE requires a WHERE clause"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: "PGRST102", Message: "Empty or invalid json"})
		return
	}

	row, err := s.rows.Update(r.Context(), table, q.id, body)
	s.writeMutation(w, r, row, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table := tableFrom(r.Context())
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	if !q.hasID {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: "21000", Message: "DELETE requires a WHERE clause"})
		return
	}

	row, err := s.rows.Delete(r.Context(), table, q.id)
	s.writeMutation(w, r, row, err)
}

// writeMutation answers PATCH and DELETE. A filter that matched nothing is
// not an error: the representation is just empty.
func (s *Server) writeMutation(w http.ResponseWriter, r *http.Request, row json.RawMessage, err error) {
	matched := []json.RawMessage{row}
	switch {
	case errors.Is(err, common.ErrNotFound):
		matched = []json.RawMessage{}
	case err != nil:
		s.writeServiceError(w, r, err)
		return
	}

	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, matched)
}

// readPayloads accepts a single JSON object or an array of them.
func readPayloads(w http.ResponseWriter, r *http.Request) ([]json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	if body[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	if !json.Valid(body) {
		return nil, errors.New("body is not valid JSON")
	}
	return []json.RawMessage{body}, nil
}
