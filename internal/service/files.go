package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/policy"
	"github.com/and161185/efiling/internal/repository"
)

// FileService manages file metadata. Movement state is owned by MovementService.
type FileService interface {
	Create(ctx context.Context, in model.NewFile) (*model.File, error)
	Get(ctx context.Context, id uuid.UUID) (*model.File, error)
	List(ctx context.Context, kind model.FileKind, q model.ListQuery) (model.Page[model.File], error)
	Update(ctx context.Context, id uuid.UUID, p model.FilePatch) (*model.File, error)
	Trash(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	Counts(ctx context.Context, kind model.FileKind) (model.FileCounts, error)
}

type FileServiceImpl struct {
	files  repository.FileRepository
	policy *policy.Policy
}

// NewFileService constructs FileService.
func NewFileService(files repository.FileRepository, p *policy.Policy) *FileServiceImpl {
	return &FileServiceImpl{files: files, policy: p}
}

func (s *FileServiceImpl) Create(ctx context.Context, in model.NewFile) (*model.File, error) {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return nil, err
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind must be general or personal", errs.ErrValidation)
	}
	in.Title, in.FileNumber = strings.TrimSpace(in.Title), strings.TrimSpace(in.FileNumber)
	if in.Title == "" || in.FileNumber == "" {
		return nil, fmt.Errorf("%w: title and file number are required", errs.ErrValidation)
	}
	if in.Kind == model.FilePersonal && in.PaperFileNumber != "" {
		return nil, fmt.Errorf("%w: personal files have no paper file number", errs.ErrValidation)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	f := &model.File{
		ID:              id,
		Kind:            in.Kind,
		Title:           in.Title,
		FileNumber:      in.FileNumber,
		PaperFileNumber: in.PaperFileNumber,
		OwningUnit:      in.OwningUnit,
		Location:        model.LocationAvailable,
	}
	if err := s.files.Create(ctx, f); err != nil {
		return nil, err
	}
	return s.files.Get(ctx, id)
}

func (s *FileServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.File, error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return nil, err
	}
	return s.files.Get(ctx, id)
}

func (s *FileServiceImpl) List(ctx context.Context, kind model.FileKind, q model.ListQuery) (model.Page[model.File], error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return model.Page[model.File]{}, err
	}
	kind, err := fileKind(kind)
	if err != nil {
		return model.Page[model.File]{}, err
	}
	return s.files.List(ctx, kind, q)
}

func (s *FileServiceImpl) Update(ctx context.Context, id uuid.UUID, p model.FilePatch) (*model.File, error) {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return nil, err
	}
	for _, v := range []*string{p.Title, p.FileNumber} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return nil, fmt.Errorf("%w: title and file number cannot be blank", errs.ErrValidation)
		}
	}
	return s.files.Update(ctx, id, p)
}

// Trash moves a file to the trash bin. A checked-out file must come back first.
func (s *FileServiceImpl) Trash(ctx context.Context, id uuid.UUID) error {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return err
	}
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return err
	}
	if f.Location == model.LocationCheckedOut {
		return fmt.Errorf("%w: file is checked out", errs.ErrConflict)
	}
	return s.files.SetTrashed(ctx, id, true)
}

func (s *FileServiceImpl) Restore(ctx context.Context, id uuid.UUID) error {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return err
	}
	return s.files.SetTrashed(ctx, id, false)
}

func (s *FileServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return err
	}
	return s.files.Delete(ctx, id)
}

func (s *FileServiceImpl) Counts(ctx context.Context, kind model.FileKind) (model.FileCounts, error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return model.FileCounts{}, err
	}
	kind, err := fileKind(kind)
	if err != nil {
		return model.FileCounts{}, err
	}
	return s.files.Counts(ctx, kind)
}

// fileKind defaults an empty kind to general.
func fileKind(k model.FileKind) (model.FileKind, error) {
	if k == "" {
		return model.FileGeneral, nil
	}
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", errs.ErrValidation, k)
	}
	return k, nil
}
