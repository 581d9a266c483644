package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/service"
)

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.users.List(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toUser))
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: unknown role %q", errs.ErrValidation, req.Role))
		return
	}
	u, err := s.users.Create(r.Context(), service.NewUser{
		Email:      req.Email,
		Password:   req.Password,
		Surname:    req.Surname,
		Firstname:  req.Firstname,
		Post:       req.Post,
		MDA:        req.MDA,
		Department: req.Department,
		Role:       role,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUser(*u))
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(*u))
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req updateUserRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.users.Update(r.Context(), id, req.patch())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(*u))
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.users.UpdateSelf(r.Context(), req.patch())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(*u))
}

func (s *Server) userCounts(w http.ResponseWriter, r *http.Request) {
	c, err := s.users.Counts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userCountsView{Total: c.Total, Active: c.Active, Deactivated: c.Deactivated})
}

func (s *Server) setUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req roleRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.users.SetRole(r.Context(), id, model.Role(req.Role)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setUserPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req passwordRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.users.ResetPassword(r.Context(), id, req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deactivateUser(w http.ResponseWriter, r *http.Request) {
	s.idAction(w, r, s.users.Deactivate)
}

func (s *Server) activateUser(w http.ResponseWriter, r *http.Request) {
	s.idAction(w, r, s.users.Activate)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	s.idAction(w, r, s.users.Delete)
}

func (s *Server) userHeldFiles(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := s.users.HeldFiles(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	writeJSON(w, http.StatusOK, map[string][]uuid.UUID{"files": ids})
}
