package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
)

func (s *Server) listPersonnel(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.personnel.List(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toPersonnel))
}

func (s *Server) createPersonnel(w http.ResponseWriter, r *http.Request) {
	var req personnelRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.personnel.Create(r.Context(), req.toModel(uuid.Nil))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonnel(*p))
}

func (s *Server) getPersonnel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.personnel.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonnel(*p))
}

func (s *Server) updatePersonnel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req personnelRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.personnel.Update(r.Context(), req.toModel(id))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonnel(*p))
}

func (s *Server) deletePersonnel(w http.ResponseWriter, r *http.Request) {
	s.idAction(w, r, s.personnel.Delete)
}

// appendPersonnelHistory passes the raw entry through; the service decodes
// it against the record type of {history}.
func (s *Server) appendPersonnelHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errs.ErrValidation, err))
		return
	}
	if !json.Valid(body) {
		s.fail(w, r, fmt.Errorf("%w: body is not valid JSON", errs.ErrValidation))
		return
	}
	h := model.PersonnelHistory(chi.URLParam(r, "history"))
	p, err := s.personnel.AppendHistory(r.Context(), id, h, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonnel(*p))
}
