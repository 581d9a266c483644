package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FileRepo implements repository.FileRepository.
type FileRepo struct{ s *Store }

var fileKeys = map[string]func(model.File) string{
	"title":       func(f model.File) string { return strings.ToLower(f.Title) },
	"file_number": func(f model.File) string { return f.FileNumber },
	"created_at":  func(f model.File) string { return f.CreatedAt.Format(sortTime) },
	"updated_at":  func(f model.File) string { return f.UpdatedAt.Format(sortTime) },
}

func copyFile(f *model.File) *model.File {
	c := *f
	if f.CurrentHolder != nil {
		h := *f.CurrentHolder
		c.CurrentHolder = &h
	}
	c.Incoming, c.Outgoing = nil, nil
	return &c
}

func (r *FileRepo) Create(_ context.Context, f *model.File) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.files {
		if o.Kind == f.Kind && o.FileNumber == f.FileNumber {
			return fmt.Errorf("%w: file number %s", errs.ErrAlreadyExists, f.FileNumber)
		}
	}
	c := copyFile(f)
	c.Location, c.CurrentHolder, c.Trashed = model.LocationAvailable, nil, false
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.files[f.ID] = c
	f.Location, f.CreatedAt, f.UpdatedAt = c.Location, c.CreatedAt, c.UpdatedAt
	return nil
}

func (r *FileRepo) Get(_ context.Context, id uuid.UUID) (*model.File, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := copyFile(f)
	c.Incoming, c.Outgoing = []uuid.UUID{}, []uuid.UUID{}
	for _, d := range s.docs[id] {
		if d.dir == model.Outgoing {
			c.Outgoing = append(c.Outgoing, d.mailID)
		} else {
			c.Incoming = append(c.Incoming, d.mailID)
		}
	}
	return c, nil
}

func (r *FileRepo) List(_ context.Context, kind model.FileKind, q model.ListQuery) (model.Page[model.File], error) {
	s := r.s
	s.mu.Lock()
	all := byCreation(s.files, func(f *model.File) time.Time { return f.CreatedAt }, func(f *model.File) uuid.UUID { return f.ID })
	s.mu.Unlock()

	sel := make([]model.File, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- { // newest first by default
		f := all[i]
		if f.Kind == kind && f.Trashed == q.Trashed {
			sel = append(sel, *copyFile(&f))
		}
	}
	return paginate(sel, q, func(f model.File, n string) bool {
		return containsFold(n, f.Title, f.FileNumber, f.PaperFileNumber, f.OwningUnit)
	}, fileKeys), nil
}

func (r *FileRepo) Update(_ context.Context, id uuid.UUID, p model.FilePatch) (*model.File, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if p.FileNumber != nil && *p.FileNumber != f.FileNumber {
		for _, o := range s.files {
			if o.ID != id && o.Kind == f.Kind && o.FileNumber == *p.FileNumber {
				return nil, fmt.Errorf("%w: file number", errs.ErrAlreadyExists)
			}
		}
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&f.Title, p.Title)
	set(&f.FileNumber, p.FileNumber)
	set(&f.PaperFileNumber, p.PaperFileNumber)
	set(&f.OwningUnit, p.OwningUnit)
	f.UpdatedAt = s.now()
	return copyFile(f), nil
}

func (r *FileRepo) SetTrashed(_ context.Context, id uuid.UUID, trashed bool) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return errs.ErrNotFound
	}
	f.Trashed, f.UpdatedAt = trashed, s.now()
	return nil
}

func (r *FileRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return errs.ErrNotFound
	}
	if f.Location != model.LocationAvailable {
		return fmt.Errorf("%w: file is checked out", errs.ErrConflict)
	}
	delete(s.files, id)
	delete(s.held, id)
	delete(s.since, id)
	delete(s.requests, id)
	delete(s.charges, id)
	delete(s.returns, id)
	delete(s.docs, id)
	return nil
}

func (r *FileRepo) Counts(_ context.Context, kind model.FileKind) (model.FileCounts, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var c model.FileCounts
	for _, f := range s.files {
		if f.Kind != kind {
			continue
		}
		c.Total++
		switch {
		case f.Location == model.LocationCheckedOut:
			c.CheckedOut++
		case !f.Trashed:
			c.Available++
		}
		if f.Trashed {
			c.Trashed++
		}
	}
	return c, nil
}

func (r *FileRepo) AttachMail(_ context.Context, fileID, mailID uuid.UUID, dir model.Direction) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return fmt.Errorf("%w: file or mail", errs.ErrNotFound)
	}
	if _, ok := s.mails[mailID]; !ok {
		return fmt.Errorf("%w: file or mail", errs.ErrNotFound)
	}
	for _, d := range s.docs[fileID] {
		if d.mailID == mailID && d.dir == dir {
			return nil
		}
	}
	s.docs[fileID] = append(s.docs[fileID], document{mailID: mailID, dir: dir})
	return nil
}

func (r *FileRepo) DetachMail(_ context.Context, fileID, mailID uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return errs.ErrNotFound
	}
	kept := s.docs[fileID][:0]
	for _, d := range s.docs[fileID] {
		if d.mailID != mailID {
			kept = append(kept, d)
		}
	}
	s.docs[fileID] = kept
	return nil
}
