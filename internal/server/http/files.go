package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
)

func fileKindParam(r *http.Request) (model.FileKind, error) {
	k := model.FileKind(r.URL.Query().Get("kind"))
	if k != "" && !k.Valid() {
		return "", fmt.Errorf("%w: unknown file kind %q", errs.ErrValidation, k)
	}
	return k, nil
}

func (s *Server) writeFile(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	f, err := s.files.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFile(*f))
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	kind, err := fileKindParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.files.List(r.Context(), kind, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toFile))
}

func (s *Server) createFile(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Kind == "" {
		req.Kind = model.FileGeneral
	}
	f, err := s.files.Create(r.Context(), model.NewFile{
		Kind:            req.Kind,
		Title:           req.Title,
		FileNumber:      req.FileNumber,
		PaperFileNumber: req.PaperFileNumber,
		OwningUnit:      req.OwningUnit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFile(*f))
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeFile(w, r, id)
}

func (s *Server) updateFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req updateFileRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	f, err := s.files.Update(r.Context(), id, model.FilePatch{
		Title:           req.Title,
		FileNumber:      req.FileNumber,
		PaperFileNumber: req.PaperFileNumber,
		OwningUnit:      req.OwningUnit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFile(*f))
}

func (s *Server) trashFile(w http.ResponseWriter, r *http.Request) {
	s.fileAction(w, r, s.files.Trash)
}

func (s *Server) restoreFile(w http.ResponseWriter, r *http.Request) {
	s.fileAction(w, r, s.files.Restore)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	s.idAction(w, r, s.files.Delete)
}

// fileAction applies fn and returns the updated file.
func (s *Server) fileAction(w http.ResponseWriter, r *http.Request, fn idFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := fn(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeFile(w, r, id)
}

func (s *Server) fileCounts(w http.ResponseWriter, r *http.Request) {
	kind, err := fileKindParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.files.Counts(r.Context(), kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countsView{Total: c.Total, Available: c.Available, CheckedOut: c.CheckedOut, Trashed: c.Trashed})
}

type idFunc func(ctx context.Context, id uuid.UUID) error

// idAction applies fn to {id} and answers 204.
func (s *Server) idAction(w http.ResponseWriter, r *http.Request, fn idFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := fn(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
