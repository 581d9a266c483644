package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/efiling/internal/audit"
	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/metrics"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/policy"
	"github.com/and161185/efiling/internal/repository"
)

// ChargeInput describes a custody transfer.
type ChargeInput struct {
	FileID       uuid.UUID
	FromUserID   uuid.UUID
	ToUserID     uuid.UUID
	Remark       string
	PageIndex    *int
	DocumentID   *uuid.UUID
	DocumentType model.Direction
}

// Outcome is the result of Charge. AlreadyCharged reports that the
// destination already held the file and nothing was written.
type Outcome struct {
	File           *model.File
	AlreadyCharged bool
}

// MovementService moves files between the registry and users.
type MovementService interface {
	// Request checks an available file out of the registry to userID.
	Request(ctx context.Context, fileID, userID uuid.UUID) (*model.File, error)
	// Charge hands a checked-out file from one user to another.
	Charge(ctx context.Context, in ChargeInput) (Outcome, error)
	// Return puts a checked-out file back in the registry.
	Return(ctx context.Context, fileID, userID uuid.UUID) (*model.File, error)
	// AttachMail files a mail under the incoming or outgoing documents of a file.
	AttachMail(ctx context.Context, fileID, mailID uuid.UUID, dir model.Direction) error
	// DetachMail removes a mail from both document lists of a file.
	DetachMail(ctx context.Context, fileID, mailID uuid.UUID) error
	// ClearLog truncates one movement log.
	ClearLog(ctx context.Context, fileID uuid.UUID, log model.MovementLog) error
	// History returns the movement logs of a file.
	History(ctx context.Context, fileID uuid.UUID) (*model.Movements, error)
	// Reconcile repairs held-file membership.
	Reconcile(ctx context.Context) ([]model.Drift, error)
}

// MovementDeps groups the collaborators of MovementServiceImpl.
type MovementDeps struct {
	Movements repository.MovementRepository
	Files     repository.FileRepository
	Users     repository.UserRepository
	Mails     repository.MailRepository
	Policy    *policy.Policy
	Audit     audit.Publisher
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	Clock     func() time.Time
	// StrictReturn requires the returning user to be the current holder.
	StrictReturn bool
}

type MovementServiceImpl struct {
	d MovementDeps
}

// NewMovementService constructs the movement engine.
func NewMovementService(d MovementDeps) *MovementServiceImpl {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	d.Log = d.Log.Named("movement")
	return &MovementServiceImpl{d: d}
}

func (s *MovementServiceImpl) now() time.Time { return s.d.Clock().UTC() }

// finish records metrics and logs for one operation.
func (s *MovementServiceImpl) finish(op string, err error, fields ...zap.Field) {
	switch {
	case err == nil:
		s.d.Metrics.Movement(op, metrics.OutcomeOK)
		s.d.Log.Info(op, fields...)
	case errors.Is(err, errs.ErrPartialFailure):
		s.d.Metrics.Movement(op, metrics.OutcomeError)
		s.d.Log.Error(op+" partially applied; reconcile required", append(fields, zap.Error(err))...)
	case errors.Is(err, errs.ErrConflict), errors.Is(err, errs.ErrNotFound),
		errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrForbidden),
		errors.Is(err, errs.ErrUnauthorized):
		s.d.Metrics.Movement(op, metrics.OutcomeRejected)
		s.d.Log.Debug(op+" rejected", append(fields, zap.Error(err))...)
	default:
		s.d.Metrics.Movement(op, metrics.OutcomeError)
		s.d.Log.Error(op+" failed", append(fields, zap.Error(err))...)
	}
}

func (s *MovementServiceImpl) emit(ctx context.Context, e audit.Event) {
	if err := s.d.Audit.Emit(ctx, e); err != nil {
		s.d.Log.Warn("audit emit failed", zap.String("action", e.Action), zap.Stringer("file_id", e.FileID), zap.Error(err))
	}
}

// activeUser loads a user that may take custody of a file.
func (s *MovementServiceImpl) activeUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", errs.ErrValidation)
	}
	u, err := s.d.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", errs.ErrNotFound, id)
		}
		return nil, err
	}
	if u.Deactivated {
		return nil, fmt.Errorf("%w: user %s is deactivated", errs.ErrValidation, id)
	}
	return u, nil
}

func (s *MovementServiceImpl) Request(ctx context.Context, fileID, userID uuid.UUID) (f *model.File, err error) {
	const op = "request"
	defer func() { s.finish(op, err, zap.Stringer("file_id", fileID), zap.Stringer("user_id", userID)) }()

	actor, err := s.d.Policy.Require(ctx, policy.Movement)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeUser(ctx, userID); err != nil {
		return nil, err
	}
	f, err = s.d.Movements.CheckOut(ctx, fileID, userID, s.now())
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", errs.ErrConflict, s.inUseBy(ctx, fileID))
		}
		return nil, err
	}
	s.emit(ctx, audit.Event{Action: audit.ActionRequest, FileID: fileID, UserID: userID, ActorID: actor.UserID, At: s.now()})
	return f, nil
}

// inUseBy names whoever has the file. The current holder wins; the last
// request entry is the fallback; an empty log yields a generic message.
func (s *MovementServiceImpl) inUseBy(ctx context.Context, fileID uuid.UUID) string {
	const generic = "file in use"
	var who uuid.UUID
	if f, err := s.d.Files.Get(ctx, fileID); err == nil && f.CurrentHolder != nil {
		who = *f.CurrentHolder
	} else if last, err := s.d.Movements.LastRequest(ctx, fileID); err == nil {
		who = last.UserID
	}
	if who == uuid.Nil {
		return generic
	}
	u, err := s.d.Users.GetByID(ctx, who)
	if err != nil || u.DisplayName() == "" {
		return generic
	}
	return "file already in use by " + u.DisplayName()
}

func (s *MovementServiceImpl) Charge(ctx context.Context, in ChargeInput) (out Outcome, err error) {
	const op = "charge"
	defer func() {
		if out.AlreadyCharged {
			s.d.Metrics.Movement(op, metrics.OutcomeNoop)
			s.d.Log.Info("charge already satisfied", zap.Stringer("file_id", in.FileID), zap.Stringer("to", in.ToUserID))
			return
		}
		s.finish(op, err, zap.Stringer("file_id", in.FileID), zap.Stringer("from", in.FromUserID), zap.Stringer("to", in.ToUserID))
	}()

	actor, err := s.d.Policy.Require(ctx, policy.Movement)
	if err != nil {
		return Outcome{}, err
	}
	if in.PageIndex != nil && *in.PageIndex < 0 {
		return Outcome{}, fmt.Errorf("%w: page index must not be negative", errs.ErrValidation)
	}
	if in.DocumentType != "" && !in.DocumentType.Valid() {
		return Outcome{}, fmt.Errorf("%w: unknown document type %q", errs.ErrValidation, in.DocumentType)
	}
	if in.DocumentID == nil && in.DocumentType != "" {
		return Outcome{}, fmt.Errorf("%w: document type given without document", errs.ErrValidation)
	}
	if in.FromUserID == uuid.Nil {
		return Outcome{}, fmt.Errorf("%w: from user id is required", errs.ErrValidation)
	}
	from, err := s.d.Users.GetByID(ctx, in.FromUserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return Outcome{}, fmt.Errorf("%w: user %s", errs.ErrNotFound, in.FromUserID)
		}
		return Outcome{}, err
	}
	to, err := s.activeUser(ctx, in.ToUserID)
	if err != nil {
		return Outcome{}, err
	}

	at := s.now()
	f, err := s.d.Movements.Transfer(ctx, model.Charge{
		FileID:       in.FileID,
		FromUserID:   in.FromUserID,
		ToUserID:     in.ToUserID,
		FromLabel:    from.ChargeLabel(),
		ToLabel:      to.ChargeLabel(),
		Remark:       in.Remark,
		PageIndex:    in.PageIndex,
		DocumentID:   in.DocumentID,
		DocumentType: in.DocumentType,
		At:           at,
	})
	if errors.Is(err, errs.ErrAlreadyCharged) {
		cur, gerr := s.d.Files.Get(ctx, in.FileID)
		if gerr != nil {
			return Outcome{}, gerr
		}
		return Outcome{File: cur, AlreadyCharged: true}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	toID := in.ToUserID
	s.emit(ctx, audit.Event{Action: audit.ActionCharge, FileID: in.FileID, UserID: in.FromUserID, ToUser: &toID, ActorID: actor.UserID, Detail: in.Remark, At: at})
	return Outcome{File: f}, nil
}

func (s *MovementServiceImpl) Return(ctx context.Context, fileID, userID uuid.UUID) (f *model.File, err error) {
	const op = "return"
	defer func() { s.finish(op, err, zap.Stringer("file_id", fileID), zap.Stringer("user_id", userID)) }()

	actor, err := s.d.Policy.Require(ctx, policy.Movement)
	if err != nil {
		return nil, err
	}
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", errs.ErrValidation)
	}
	if _, err := s.d.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", errs.ErrNotFound, userID)
		}
		return nil, err
	}
	at := s.now()
	f, err = s.d.Movements.CheckIn(ctx, fileID, userID, at, s.d.StrictReturn)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{Action: audit.ActionReturn, FileID: fileID, UserID: userID, ActorID: actor.UserID, At: at})
	return f, nil
}

func (s *MovementServiceImpl) AttachMail(ctx context.Context, fileID, mailID uuid.UUID, dir model.Direction) (err error) {
	const op = "attach"
	defer func() { s.finish(op, err, zap.Stringer("file_id", fileID), zap.Stringer("mail_id", mailID)) }()

	actor, err := s.d.Policy.Require(ctx, policy.Movement)
	if err != nil {
		return err
	}
	if !dir.Valid() {
		return fmt.Errorf("%w: direction must be incoming or outgoing", errs.ErrValidation)
	}
	m, err := s.d.Mails.Get(ctx, mailID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("%w: mail %s", errs.ErrNotFound, mailID)
		}
		return err
	}
	if m.Direction != dir {
		return fmt.Errorf("%w: mail is %s, not %s", errs.ErrValidation, m.Direction, dir)
	}
	if err := s.d.Files.AttachMail(ctx, fileID, mailID, dir); err != nil {
		return err
	}
	s.emit(ctx, audit.Event{Action: audit.ActionAttach, FileID: fileID, ActorID: actor.UserID, Detail: mailID.String(), At: s.now()})
	return nil
}

func (s *MovementServiceImpl) DetachMail(ctx context.Context, fileID, mailID uuid.UUID) (err error) {
	const op = "detach"
	defer func() { s.finish(op, err, zap.Stringer("file_id", fileID), zap.Stringer("mail_id", mailID)) }()

	actor, err := s.d.Policy.Require(ctx, policy.Movement)
	if err != nil {
		return err
	}
	if err := s.d.Files.DetachMail(ctx, fileID, mailID); err != nil {
		return err
	}
	s.emit(ctx, audit.Event{Action: audit.ActionDetach, FileID: fileID, ActorID: actor.UserID, Detail: mailID.String(), At: s.now()})
	return nil
}

func (s *MovementServiceImpl) ClearLog(ctx context.Context, fileID uuid.UUID, log model.MovementLog) (err error) {
	const op = "clear_log"
	defer func() { s.finish(op, err, zap.Stringer("file_id", fileID), zap.String("log", string(log))) }()

	actor, err := s.d.Policy.Require(ctx, policy.Admin)
	if err != nil {
		return err
	}
	if !log.Valid() {
		return fmt.Errorf("%w: unknown log %q", errs.ErrValidation, log)
	}
	if err := s.d.Movements.ClearLog(ctx, fileID, log); err != nil {
		return err
	}
	s.emit(ctx, audit.Event{Action: audit.ActionClearLog, FileID: fileID, ActorID: actor.UserID, Detail: string(log), At: s.now()})
	return nil
}

func (s *MovementServiceImpl) History(ctx context.Context, fileID uuid.UUID) (*model.Movements, error) {
	if _, err := s.d.Policy.Require(ctx, policy.Any); err != nil {
		return nil, err
	}
	return s.d.Movements.History(ctx, fileID)
}

// Reconcile is also run by the CLI without an actor; callers outside HTTP
// use ReconcileSystem.
func (s *MovementServiceImpl) Reconcile(ctx context.Context) ([]model.Drift, error) {
	actor, err := s.d.Policy.Require(ctx, policy.Admin)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, actor.UserID)
}

// ReconcileSystem repairs membership on behalf of an operator tool.
func (s *MovementServiceImpl) ReconcileSystem(ctx context.Context) ([]model.Drift, error) {
	return s.reconcile(ctx, uuid.Nil)
}

func (s *MovementServiceImpl) reconcile(ctx context.Context, actorID uuid.UUID) (drift []model.Drift, err error) {
	defer func() { s.finish("reconcile", err, zap.Int("drift", len(drift))) }()
	drift, err = s.d.Movements.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if s.d.Metrics != nil {
		s.d.Metrics.ReconcileDrifts.Add(float64(len(drift)))
	}
	for _, d := range drift {
		uid := d.UserID
		s.d.Log.Warn("held-file drift repaired", zap.Stringer("file_id", d.FileID), zap.Stringer("user_id", uid), zap.String("action", d.Action))
		s.emit(ctx, audit.Event{Action: audit.ActionReconcile, FileID: d.FileID, UserID: uid, ActorID: actorID, Detail: d.Action, At: s.now()})
	}
	return drift, nil
}
