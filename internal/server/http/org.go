package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/and161185/efiling/internal/model"
)

func (s *Server) listDepartments(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.org.ListDepartments(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toDepartment))
}

func (s *Server) createDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.org.CreateDepartment(r.Context(), model.Department{Name: req.Name, ShortName: req.ShortName})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDepartment(*d))
}

func (s *Server) getDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.org.GetDepartment(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDepartment(*d))
}

func (s *Server) updateDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req departmentRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.org.UpdateDepartment(r.Context(), model.Department{ID: id, Name: req.Name, ShortName: req.ShortName})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDepartment(*d))
}

func (s *Server) deleteDepartment(w http.ResponseWriter, r *http.Request) {
	s.idAction(w, r, s.org.DeleteDepartment)
}

func (s *Server) listMDAs(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.org.ListMDAs(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toMDA))
}

func (s *Server) createMDA(w http.ResponseWriter, r *http.Request) {
	var req mdaRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.org.CreateMDA(r.Context(), model.MDA{Name: req.Name, ShortName: req.ShortName, Departments: req.Departments})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMDA(*m))
}

func (s *Server) getMDA(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.org.GetMDA(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMDA(*m))
}

func (s *Server) updateMDA(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req mdaRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.org.UpdateMDA(r.Context(), model.MDA{ID: id, Name: req.Name, ShortName: req.ShortName, Departments: req.Departments})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMDA(*m))
}

func (s *Server) deleteMDA(w http.ResponseWriter, r *http.Request) {
	s.idAction(w, r, s.org.DeleteMDA)
}

func (s *Server) addMDADepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req departmentRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.org.AddMDADepartment(r.Context(), id, model.MDADepartment{Name: req.Name, ShortName: req.ShortName})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMDA(*m))
}

func (s *Server) removeMDADepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.org.RemoveMDADepartment(r.Context(), id, chi.URLParam(r, "short"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMDA(*m))
}
