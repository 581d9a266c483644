package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// MovementRepo implements repository.MovementRepository.
type MovementRepo struct{ s *Store }

func (r *MovementRepo) CheckOut(_ context.Context, fileID, userID uuid.UUID, at time.Time) (*model.File, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if f.Trashed {
		return nil, fmt.Errorf("%w: file is in the trash", errs.ErrValidation)
	}
	if f.Location != model.LocationAvailable {
		return nil, errs.ErrConflict
	}
	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("%w: user", errs.ErrNotFound)
	}
	holder := userID
	f.Location, f.CurrentHolder, f.UpdatedAt = model.LocationCheckedOut, &holder, s.now()
	s.requests[fileID] = append(s.requests[fileID], model.RequestEntry{ID: s.nextID(), FileID: fileID, UserID: userID, At: at})
	s.held[fileID], s.since[fileID] = userID, at
	return copyFile(f), nil
}

func (r *MovementRepo) Transfer(_ context.Context, c model.Charge) (*model.File, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[c.FileID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if f.Location != model.LocationCheckedOut {
		return nil, fmt.Errorf("%w: file is not checked out", errs.ErrConflict)
	}
	if uid, ok := s.held[c.FileID]; ok && uid == c.ToUserID {
		return nil, errs.ErrAlreadyCharged
	}
	if f.CurrentHolder == nil || *f.CurrentHolder != c.FromUserID {
		return nil, fmt.Errorf("%w: file is not held by the charging user", errs.ErrConflict)
	}
	if _, ok := s.users[c.ToUserID]; !ok {
		return nil, fmt.Errorf("%w: user", errs.ErrNotFound)
	}
	if c.DocumentID != nil {
		m, ok := s.mails[*c.DocumentID]
		if !ok {
			return nil, fmt.Errorf("%w: document", errs.ErrNotFound)
		}
		if c.DocumentType != "" && c.DocumentType != m.Direction {
			return nil, fmt.Errorf("%w: document is %s mail", errs.ErrValidation, m.Direction)
		}
		c.DocumentType = m.Direction
	}

	entry := model.ChargeEntry{
		ID: s.nextID(), FileID: c.FileID, FromUserID: c.FromUserID, ToUserID: c.ToUserID,
		FromLabel: c.FromLabel, ToLabel: c.ToLabel, Remark: c.Remark,
		PageIndex: c.PageIndex, DocumentID: c.DocumentID, DocumentType: c.DocumentType, At: c.At,
	}
	s.charges[c.FileID] = append(s.charges[c.FileID], entry)
	if c.DocumentID != nil {
		s.comments[*c.DocumentID] = append(s.comments[*c.DocumentID], model.ChargeComment{
			ID: s.nextID(), MailID: *c.DocumentID, FromLabel: c.FromLabel, ToLabel: c.ToLabel, Comment: c.Remark, At: c.At,
		})
	}
	to := c.ToUserID
	s.held[c.FileID], s.since[c.FileID] = to, c.At
	f.CurrentHolder, f.UpdatedAt = &to, s.now()
	return copyFile(f), nil
}

func (r *MovementRepo) CheckIn(_ context.Context, fileID, userID uuid.UUID, at time.Time, requireHolder bool) (*model.File, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if f.Location != model.LocationCheckedOut {
		return nil, fmt.Errorf("%w: file is already in the registry", errs.ErrConflict)
	}
	if requireHolder && (f.CurrentHolder == nil || *f.CurrentHolder != userID) {
		return nil, fmt.Errorf("%w: file is held by another user", errs.ErrConflict)
	}
	s.returns[fileID] = append(s.returns[fileID], model.ReturnEntry{ID: s.nextID(), FileID: fileID, UserID: userID, At: at})
	delete(s.held, fileID)
	delete(s.since, fileID)
	f.Location, f.CurrentHolder, f.UpdatedAt = model.LocationAvailable, nil, s.now()
	return copyFile(f), nil
}

func (r *MovementRepo) ClearLog(_ context.Context, fileID uuid.UUID, log model.MovementLog) error {
	if !log.Valid() {
		return fmt.Errorf("%w: unknown log %q", errs.ErrValidation, log)
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return errs.ErrNotFound
	}
	switch log {
	case model.LogRequests:
		delete(s.requests, fileID)
	case model.LogCharges:
		delete(s.charges, fileID)
	case model.LogReturns:
		delete(s.returns, fileID)
	}
	return nil
}

func (r *MovementRepo) LastRequest(_ context.Context, fileID uuid.UUID) (*model.RequestEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := s.requests[fileID]
	if len(reqs) == 0 {
		return nil, errs.ErrNotFound
	}
	e := reqs[len(reqs)-1]
	return &e, nil
}

func (r *MovementRepo) History(_ context.Context, fileID uuid.UUID) (*model.Movements, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return nil, errs.ErrNotFound
	}
	return &model.Movements{
		Requests: append([]model.RequestEntry{}, s.requests[fileID]...),
		Charges:  append([]model.ChargeEntry{}, s.charges[fileID]...),
		Returns:  append([]model.ReturnEntry{}, s.returns[fileID]...),
	}, nil
}

func (r *MovementRepo) Reconcile(_ context.Context) ([]model.Drift, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	drift := []model.Drift{}
	for fid, uid := range s.held {
		f, ok := s.files[fid]
		if !ok || f.CurrentHolder == nil || *f.CurrentHolder != uid {
			drift = append(drift, model.Drift{FileID: fid, UserID: uid, Action: "removed"})
			delete(s.held, fid)
			delete(s.since, fid)
		}
	}
	for fid, f := range s.files {
		if f.CurrentHolder == nil {
			continue
		}
		if _, ok := s.held[fid]; !ok {
			s.held[fid], s.since[fid] = *f.CurrentHolder, s.now()
			drift = append(drift, model.Drift{FileID: fid, UserID: *f.CurrentHolder, Action: "added"})
		}
	}
	return drift, nil
}
