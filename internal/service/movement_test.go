package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/efiling/internal/audit"
	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/metrics"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/policy"
	"github.com/and161185/efiling/internal/repository"
	"github.com/and161185/efiling/internal/repository/memory"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Emit(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

type engine struct {
	store   *memory.Store
	svc     *MovementServiceImpl
	audit   *recordingAudit
	metrics *metrics.Metrics
	ctx     context.Context
	clerk   uuid.UUID
}

func newEngine(t *testing.T, strict bool) *engine {
	t.Helper()
	s := memory.New()
	e := &engine{store: s, audit: &recordingAudit{}, metrics: metrics.New()}
	e.svc = NewMovementService(MovementDeps{
		Movements:    s.Movements(),
		Files:        s.Files(),
		Users:        s.Users(),
		Mails:        s.Mails(),
		Policy:       policy.New(s.Users(), policy.DefaultRoles(), 0),
		Audit:        e.audit,
		Metrics:      e.metrics,
		Log:          zaptest.NewLogger(t),
		StrictReturn: strict,
	})
	e.clerk = e.addUser(t, "Registry", "Clerk", model.RoleRegistry)
	e.ctx = policy.WithActor(context.Background(), model.Actor{UserID: e.clerk, Role: model.RoleRegistry})
	return e
}

func (e *engine) addUser(t *testing.T, surname, firstname string, role model.Role) uuid.UUID {
	t.Helper()
	id := uuid.Must(uuid.NewV4())
	u := &model.User{
		ID: id, Email: strings.ToLower(surname+"."+id.String()[:8]) + "@x.gov",
		Surname: surname, Firstname: firstname, Post: "Officer", Department: "Works", Role: role,
	}
	if err := e.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func (e *engine) addFile(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.Must(uuid.NewV4())
	f := &model.File{ID: id, Kind: model.FileGeneral, Title: "Roads", FileNumber: "G/" + id.String()[:6]}
	if err := e.store.Files().Create(context.Background(), f); err != nil {
		t.Fatalf("create file: %v", err)
	}
	return id
}

func (e *engine) addMail(t *testing.T, dir model.Direction) uuid.UUID {
	t.Helper()
	id := uuid.Must(uuid.NewV4())
	if err := e.store.Mails().Create(context.Background(), &model.Mail{ID: id, Direction: dir, Type: model.MailLetter, Subject: "Budget"}); err != nil {
		t.Fatalf("create mail: %v", err)
	}
	return id
}

func (e *engine) held(t *testing.T, userID uuid.UUID) []uuid.UUID {
	t.Helper()
	ids, err := e.store.Users().HeldFiles(context.Background(), userID)
	if err != nil {
		t.Fatalf("held files: %v", err)
	}
	return ids
}

func (e *engine) file(t *testing.T, id uuid.UUID) *model.File {
	t.Helper()
	f, err := e.store.Files().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	return f
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func TestMovement_Scenarios(t *testing.T) {
	e := newEngine(t, true)
	f := e.addFile(t)
	u1 := e.addUser(t, "Bello", "Amina", model.RoleOfficer)
	u2 := e.addUser(t, "Eze", "Chidi", model.RoleOfficer)

	// 1: request from the registry.
	got, err := e.svc.Request(e.ctx, f, u1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got.Location != model.LocationCheckedOut || got.CurrentHolder == nil || *got.CurrentHolder != u1 {
		t.Fatalf("bad state after request: %+v", got)
	}

	// 2: second request conflicts and names the holder.
	_, err = e.svc.Request(e.ctx, f, u2)
	if !errors.Is(err, errs.ErrConflict) || !strings.Contains(err.Error(), "file already in use by Bello Amina") {
		t.Fatalf("want conflict naming holder, got %v", err)
	}

	// 3: charge U1 -> U2.
	out, err := e.svc.Charge(e.ctx, ChargeInput{FileID: f, FromUserID: u1, ToUserID: u2, Remark: "for minuting"})
	if err != nil || out.AlreadyCharged {
		t.Fatalf("charge: %+v %v", out, err)
	}
	if contains(e.held(t, u1), f) || !contains(e.held(t, u2), f) {
		t.Fatalf("membership not moved")
	}
	hist, _ := e.svc.History(e.ctx, f)
	if len(hist.Charges) != 1 || hist.Charges[0].FromUserID != u1 || hist.Charges[0].ToUserID != u2 {
		t.Fatalf("bad charge log: %+v", hist.Charges)
	}
	if hist.Charges[0].FromLabel != "Bello - Officer, Works" {
		t.Fatalf("bad from label: %q", hist.Charges[0].FromLabel)
	}

	// 4: repeating the charge is a notice, not a write.
	out, err = e.svc.Charge(e.ctx, ChargeInput{FileID: f, FromUserID: u1, ToUserID: u2})
	if err != nil || !out.AlreadyCharged || out.File == nil {
		t.Fatalf("want AlreadyCharged outcome, got %+v %v", out, err)
	}
	hist, _ = e.svc.History(e.ctx, f)
	if len(hist.Charges) != 1 {
		t.Fatalf("charge log grew on repeat: %d", len(hist.Charges))
	}

	// 5: return by the holder.
	got, err = e.svc.Return(e.ctx, f, u2)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if got.Location != model.LocationAvailable || got.CurrentHolder != nil || contains(e.held(t, u2), f) {
		t.Fatalf("bad state after return: %+v", got)
	}

	// 6: clear only the requests log.
	if err := e.svc.ClearLog(policy.WithActor(context.Background(), model.Actor{UserID: e.clerk, Role: model.RoleAdmin}), f, model.LogRequests); err != nil {
		t.Fatalf("clear log: %v", err)
	}
	hist, _ = e.svc.History(e.ctx, f)
	if len(hist.Requests) != 0 || len(hist.Charges) != 1 || len(hist.Returns) != 1 {
		t.Fatalf("clear log touched other logs: %+v", hist)
	}

	want := []string{audit.ActionRequest, audit.ActionCharge, audit.ActionReturn, audit.ActionClearLog}
	if fmt.Sprint(e.audit.actions()) != fmt.Sprint(want) {
		t.Fatalf("audit actions = %v, want %v", e.audit.actions(), want)
	}
	if v := testutil.ToFloat64(e.metrics.Movements.WithLabelValues("charge", metrics.OutcomeNoop)); v != 1 {
		t.Fatalf("noop charge metric = %v", v)
	}
	if v := testutil.ToFloat64(e.metrics.Movements.WithLabelValues("request", metrics.OutcomeRejected)); v != 1 {
		t.Fatalf("rejected request metric = %v", v)
	}
}

func TestMovement_RoundTripRestoresState(t *testing.T) {
	e := newEngine(t, true)
	f := e.addFile(t)
	u := e.addUser(t, "Musa", "Ibrahim", model.RoleOfficer)
	before := e.file(t, f)

	if _, err := e.svc.Request(e.ctx, f, u); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := e.svc.Return(e.ctx, f, u); err != nil {
		t.Fatalf("return: %v", err)
	}
	after := e.file(t, f)
	if after.Location != before.Location || after.CurrentHolder != nil || len(e.held(t, u)) != 0 {
		t.Fatalf("round trip changed state: %+v", after)
	}
	hist, _ := e.svc.History(e.ctx, f)
	if len(hist.Requests) != 1 || len(hist.Returns) != 1 {
		t.Fatalf("round trip logs: %+v", hist)
	}
}

func TestMovement_Policy(t *testing.T) {
	e := newEngine(t, true)
	f := e.addFile(t)
	u := e.addUser(t, "Okon", "Effiong", model.RoleOfficer)

	if _, err := e.svc.Request(context.Background(), f, u); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized without actor, got %v", err)
	}
	officer := policy.WithActor(context.Background(), model.Actor{UserID: u, Role: model.RoleOfficer})
	if _, err := e.svc.Request(officer, f, u); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("want ErrForbidden for officer, got %v", err)
	}
	if err := e.svc.ClearLog(e.ctx, f, model.LogCharges); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("registry officer may not clear logs, got %v", err)
	}
	if _, err := e.svc.Reconcile(e.ctx); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("registry officer may not reconcile, got %v", err)
	}
	if got := e.file(t, f); got.Location != model.LocationAvailable {
		t.Fatalf("rejected call changed state")
	}
}

func TestMovement_RequestPreconditions(t *testing.T) {
	e := newEngine(t, true)
	f := e.addFile(t)
	u := e.addUser(t, "Ojo", "Tunde", model.RoleOfficer)

	if _, err := e.svc.Request(e.ctx, uuid.Must(uuid.NewV4()), u); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown file, got %v", err)
	}
	if _, err := e.svc.Request(e.ctx, f, uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown user, got %v", err)
	}
	if err := e.store.Users().SetDeactivated(context.Background(), u, true); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Request(e.ctx, f, u); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation for deactivated user, got %v", err)
	}
	if err := e.store.Users().SetDeactivated(context.Background(), u, false); err != nil {
		t.Fatal(err)
	}
	if err := e.store.Files().SetTrashed(context.Background(), f, true); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Request(e.ctx, f, u); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation for trashed file, got %v", err)
	}
}

// conflictingMovements reports every checkout as a conflict.
type conflictingMovements struct {
	repository.MovementRepository
	last *model.RequestEntry
}

func (c conflictingMovements) CheckOut(context.Context, uuid.UUID, uuid.UUID, time.Time) (*model.File, error) {
	return nil, errs.ErrConflict
}

func (c conflictingMovements) LastRequest(context.Context, uuid.UUID) (*model.RequestEntry, error) {
	if c.last == nil {
		return nil, errs.ErrNotFound
	}
	return c.last, nil
}

func TestMovement_ConflictMessageFallbacks(t *testing.T) {
	e := newEngine(t, true)
	f := e.addFile(t)
	u := e.addUser(t, "Adamu", "Sani", model.RoleOfficer)

	newSvc := func(m repository.MovementRepository) *MovementServiceImpl {
		return NewMovementService(MovementDeps{
			Movements: m, Files: e.store.Files(), Users: e.store.Users(), Mails: e.store.Mails(),
			Policy: policy.New(e.store.Users(), policy.DefaultRoles(), 0),
		})
	}

	// Empty log and no holder.
	_, err := newSvc(conflictingMovements{}).Request(e.ctx, f, u)
	if !errors.Is(err, errs.ErrConflict) || !strings.HasSuffix(err.Error(), ": file in use") {
		t.Fatalf("want generic conflict, got %v", err)
	}

	// Last request names a user.
	_, err = newSvc(conflictingMovements{last: &model.RequestEntry{UserID: u}}).Request(e.ctx, f, u)
	if !errors.Is(err, errs.ErrConflict) || !strings.Contains(err.Error(), "Adamu Sani") {
		t.Fatalf("want conflict naming last requester, got %v", err)
	}

	// Last request names a user that no longer resolves.
	_, err = newSvc(conflictingMovements{last: &model.RequestEntry{UserID: uuid.Must(uuid.NewV4())}}).Request(e.ctx, f, u)
	if !errors.Is(err, errs.ErrConflict) || !strings.HasSuffix(err.Error(), ": file in use") {
		t.Fatalf("want generic conflict, got %v", err)
	}
}

func TestMovement_ChargeRules(t *testing.T) {
	e := newEngine(t, true)
	f := e.addFile(t)
	u1 := e.addUser(t, "Bello", "Amina", model.RoleOfficer)
	u2 := e.addUser(t, "Eze", "Chidi", model.RoleOfficer)
	u3 := e.addUser(t, "Ike", "Obi", model.RoleOfficer)

	if _, err := e.svc.Charge(e.ctx, ChargeInput{FileID: f, FromUserID: u1, ToUserID: u2}); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("want conflict charging available file, got %v", err)
	}
	if _, err := e.svc.Request(e.ctx, f, u1); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Charge(e.ctx, ChargeInput{FileID: f, FromUserID: u3, ToUserID: u2}); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("want conflict from non-holder, got %v", err)
	}
	if _, err := e.svc.Charge(e.ctx, ChargeInput{FileID: f, FromUserID: u1, ToUserID: uuid.Must(uuid.NewV4())}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found for unknown recipient, got %v", err)
	}
	neg := -1
	if _, err := e.svc.Charge(e.ctx, ChargeInput{FileID: f, FromUserID: u1, ToUserID: u2, PageIndex: &neg}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation for negative page, got %v", err)
	}

	in := e.addMail(t, model.Incoming)
	if _, err := e.svc.Charge(e.ctx, ChargeInput{FileID: f, FromUserID: u1, ToUserID: u2, DocumentID: &in, DocumentType: model.Outgoing}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation for document type mismatch, got %v", err)
	}
	missing := uuid.Must(uuid.NewV4())
	if _, err := e.svc.Charge(e.ctx, ChargeInput{FileID: f, FromUserID: u1, ToUserID: u2, DocumentID: &missing}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found for missing document, got %v", err)
	}

	page := 3
	out, err := e.svc.Charge(e.ctx, ChargeInput{FileID: f, FromUserID: u1, ToUserID: u2, Remark: "please treat", PageIndex: &page, DocumentID: &in})
	if err != nil || out.AlreadyCharged {
		t.Fatalf("charge with document: %+v %v", out, err)
	}
	m, err := e.store.Mails().Get(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.ChargeComments) != 1 || m.ChargeComments[0].Comment != "please treat" || m.ChargeComments[0].ToLabel != "Eze - Officer, Works" {
		t.Fatalf("mail comment not mirrored: %+v", m.ChargeComments)
	}
	hist, _ := e.svc.History(e.ctx, f)
	if c := hist.Charges[0]; c.DocumentType != model.Incoming || c.PageIndex == nil || *c.PageIndex != 3 {
		t.Fatalf("bad charge entry: %+v", c)
	}
}

func TestMovement_StrictAndLaxReturn(t *testing.T) {
	for _, strict := range []bool{true, false} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			e := newEngine(t, strict)
			f := e.addFile(t)
			u1 := e.addUser(t, "A", "One", model.RoleOfficer)
			u2 := e.addUser(t, "B", "Two", model.RoleOfficer)
			if _, err := e.svc.Request(e.ctx, f, u1); err != nil {
				t.Fatal(err)
			}
			_, err := e.svc.Return(e.ctx, f, u2)
			if strict && !errors.Is(err, errs.ErrConflict) {
				t.Fatalf("strict return by non-holder: want conflict, got %v", err)
			}
			if !strict && err != nil {
				t.Fatalf("lax return by non-holder: %v", err)
			}
			if !strict && (len(e.held(t, u1)) != 0 || e.file(t, f).CurrentHolder != nil) {
				t.Fatalf("lax return left membership behind")
			}
		})
	}

	e := newEngine(t, true)
	f := e.addFile(t)
	u := e.addUser(t, "C", "Three", model.RoleOfficer)
	if _, err := e.svc.Return(e.ctx, f, u); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("returning an available file: want conflict, got %v", err)
	}
}

func TestMovement_AttachDetach(t *testing.T) {
	e := newEngine(t, true)
	f := e.addFile(t)
	in := e.addMail(t, model.Incoming)
	out := e.addMail(t, model.Outgoing)

	if err := e.svc.AttachMail(e.ctx, f, in, model.Outgoing); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation on direction mismatch, got %v", err)
	}
	if err := e.svc.AttachMail(e.ctx, f, in, "sideways"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation on bad direction, got %v", err)
	}
	if err := e.svc.AttachMail(e.ctx, f, uuid.Must(uuid.NewV4()), model.Incoming); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found for unknown mail, got %v", err)
	}
	if err := e.svc.AttachMail(e.ctx, uuid.Must(uuid.NewV4()), in, model.Incoming); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found for unknown file, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := e.svc.AttachMail(e.ctx, f, in, model.Incoming); err != nil {
			t.Fatalf("attach incoming: %v", err)
		}
	}
	if err := e.svc.AttachMail(e.ctx, f, out, model.Outgoing); err != nil {
		t.Fatalf("attach outgoing: %v", err)
	}
	got := e.file(t, f)
	if len(got.Incoming) != 1 || got.Incoming[0] != in || len(got.Outgoing) != 1 {
		t.Fatalf("bad documents: %+v / %+v", got.Incoming, got.Outgoing)
	}

	if err := e.svc.DetachMail(e.ctx, f, in); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if err := e.svc.DetachMail(e.ctx, f, in); err != nil {
		t.Fatalf("detach twice: %v", err)
	}
	if err := e.svc.DetachMail(e.ctx, uuid.Must(uuid.NewV4()), in); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("detach from unknown file: want not found, got %v", err)
	}
	if got := e.file(t, f); len(got.Incoming) != 0 || len(got.Outgoing) != 1 {
		t.Fatalf("detach removed the wrong mail")
	}
}

func TestMovement_ClearLogUnknown(t *testing.T) {
	e := newEngine(t, true)
	f := e.addFile(t)
	admin := policy.WithActor(context.Background(), model.Actor{UserID: e.clerk, Role: model.RoleSuperAdmin})
	if err := e.svc.ClearLog(admin, f, "minutes"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation for unknown log, got %v", err)
	}
	if err := e.svc.ClearLog(admin, uuid.Must(uuid.NewV4()), model.LogReturns); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found for unknown file, got %v", err)
	}
}

func TestMovement_ConcurrentRequestsOneWinner(t *testing.T) {
	e := newEngine(t, true)
	f := e.addFile(t)
	const n = 16
	users := make([]uuid.UUID, n)
	for i := range users {
		users[i] = e.addUser(t, fmt.Sprintf("U%02d", i), "X", model.RoleOfficer)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	start := make(chan struct{})
	for _, u := range users {
		wg.Add(1)
		go func(u uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := e.svc.Request(e.ctx, f, u)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, errs.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u)
	}
	close(start)
	wg.Wait()

	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
	holder := e.file(t, f).CurrentHolder
	if holder == nil || !contains(e.held(t, *holder), f) {
		t.Fatalf("winner is not the holder")
	}
}

// checkInvariant verifies location, holder and membership agree for every file.
func checkInvariant(t *testing.T, e *engine, files, users []uuid.UUID) {
	t.Helper()
	heldBy := map[uuid.UUID]uuid.UUID{}
	for _, u := range users {
		for _, f := range e.held(t, u) {
			if prev, dup := heldBy[f]; dup {
				t.Fatalf("file %s held by %s and %s", f, prev, u)
			}
			heldBy[f] = u
		}
	}
	for _, id := range files {
		f := e.file(t, id)
		owner, inSet := heldBy[id]
		switch f.Location {
		case model.LocationAvailable:
			if f.CurrentHolder != nil || inSet {
				t.Fatalf("available file %s has holder %v / member of %s", id, f.CurrentHolder, owner)
			}
		case model.LocationCheckedOut:
			if f.CurrentHolder == nil || !inSet || owner != *f.CurrentHolder {
				t.Fatalf("checked-out file %s: holder %v, member of %s (%v)", id, f.CurrentHolder, owner, inSet)
			}
		default:
			t.Fatalf("unknown location %q", f.Location)
		}
	}
}

func TestMovement_RandomSequencesKeepInvariant(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			e := newEngine(t, seed%2 == 0)
			var files, users []uuid.UUID
			for i := 0; i < 4; i++ {
				files = append(files, e.addFile(t))
			}
			for i := 0; i < 4; i++ {
				users = append(users, e.addUser(t, fmt.Sprintf("R%d", i), "Y", model.RoleOfficer))
			}
			users = append(users, e.clerk)

			for step := 0; step < 300; step++ {
				f := files[rng.Intn(len(files))]
				a, b := users[rng.Intn(len(users))], users[rng.Intn(len(users))]
				var err error
				switch rng.Intn(3) {
				case 0:
					_, err = e.svc.Request(e.ctx, f, a)
				case 1:
					_, err = e.svc.Charge(e.ctx, ChargeInput{FileID: f, FromUserID: a, ToUserID: b})
				case 2:
					_, err = e.svc.Return(e.ctx, f, a)
				}
				if err != nil && !errors.Is(err, errs.ErrConflict) {
					t.Fatalf("step %d: unexpected error %v", step, err)
				}
				checkInvariant(t, e, files, users)
			}

			drift, err := e.svc.ReconcileSystem(context.Background())
			if err != nil || len(drift) != 0 {
				t.Fatalf("reconcile found drift %v (%v)", drift, err)
			}
		})
	}
}
