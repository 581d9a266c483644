package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/service"
)

// movementIDs reads {userID} and {fileID}.
func movementIDs(r *http.Request) (userID, fileID uuid.UUID, err error) {
	if userID, err = pathID(r, "userID"); err != nil {
		return
	}
	fileID, err = pathID(r, "fileID")
	return
}

func (s *Server) requestFile(w http.ResponseWriter, r *http.Request) {
	user, file, err := movementIDs(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f, err := s.movements.Request(r.Context(), file, user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFile(*f))
}

func (s *Server) chargeFile(w http.ResponseWriter, r *http.Request) {
	user, file, err := movementIDs(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req chargeRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.movements.Charge(r.Context(), service.ChargeInput{
		FileID:       file,
		FromUserID:   user,
		ToUserID:     req.ToUserID,
		Remark:       req.Remark,
		PageIndex:    req.PageIndex,
		DocumentID:   req.DocumentID,
		DocumentType: req.DocumentType,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if out.AlreadyCharged {
		writeJSON(w, http.StatusOK, noticeBody{Notice: errs.ErrAlreadyCharged.Error(), Data: toFile(*out.File)})
		return
	}
	writeJSON(w, http.StatusOK, toFile(*out.File))
}

func (s *Server) returnFile(w http.ResponseWriter, r *http.Request) {
	user, file, err := movementIDs(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f, err := s.movements.Return(r.Context(), file, user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFile(*f))
}

func (s *Server) clearLog(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r, "fileID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.movements.ClearLog(r.Context(), fileID, model.MovementLog(chi.URLParam(r, "log"))); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) attachMail(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req attachRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.movements.AttachMail(r.Context(), fileID, req.MailID, req.Direction); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeFile(w, r, fileID)
}

func (s *Server) detachMail(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	mailID, err := pathID(r, "mailID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.movements.DetachMail(r.Context(), fileID, mailID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeFile(w, r, fileID)
}

func (s *Server) fileMovements(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.movements.History(r.Context(), fileID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovements(m))
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	drift, err := s.movements.Reconcile(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]driftView, 0, len(drift))
	for _, d := range drift {
		out = append(out, toDrift(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"repaired": out})
}
