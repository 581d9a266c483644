package httpserver

import (
	"fmt"
	"net/http"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
)

func (s *Server) listMails(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dir := model.Direction(r.URL.Query().Get("direction"))
	if dir != "" && !dir.Valid() {
		s.fail(w, r, fmt.Errorf("%w: unknown direction %q", errs.ErrValidation, dir))
		return
	}
	page, err := s.mails.List(r.Context(), dir, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toMail))
}

func (s *Server) createMail(w http.ResponseWriter, r *http.Request) {
	var req createMailRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.mails.Create(r.Context(), model.Mail{
		Direction:       req.Direction,
		Type:            req.Type,
		RefNo:           req.RefNo,
		Subject:         req.Subject,
		Sender:          req.Sender,
		SenderAddress:   req.SenderAddress,
		Receiver:        req.Receiver,
		ReceiverAddress: req.ReceiverAddress,
		CC:              req.CC,
		BodyText:        req.BodyText,
		FileNo:          req.FileNo,
		DateReceived:    req.DateReceived,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMail(*m))
}

func (s *Server) getMail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.mails.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMail(*m))
}

func (s *Server) updateMail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req updateMailRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.mails.Update(r.Context(), id, model.MailPatch{
		Type:            req.Type,
		RefNo:           req.RefNo,
		Subject:         req.Subject,
		Sender:          req.Sender,
		SenderAddress:   req.SenderAddress,
		Receiver:        req.Receiver,
		ReceiverAddress: req.ReceiverAddress,
		CC:              req.CC,
		BodyText:        req.BodyText,
		FileNo:          req.FileNo,
		DateReceived:    req.DateReceived,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMail(*m))
}

func (s *Server) trashMail(w http.ResponseWriter, r *http.Request) {
	s.idAction(w, r, s.mails.Trash)
}

func (s *Server) restoreMail(w http.ResponseWriter, r *http.Request) {
	s.idAction(w, r, s.mails.Restore)
}

func (s *Server) deleteMail(w http.ResponseWriter, r *http.Request) {
	s.idAction(w, r, s.mails.Delete)
}
