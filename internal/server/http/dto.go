package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
)

const (
	defaultLimit = 50
	maxLimit     = 200
	maxBody      = 1 << 20
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into dst and runs struct validation.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errs.ErrValidation)
		}
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("%w: field %s failed %q", errs.ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid id", errs.ErrValidation, name)
	}
	return id, nil
}

// listQuery reads q, limit, offset, sort and trashed.
func listQuery(r *http.Request) (model.ListQuery, error) {
	v := r.URL.Query()
	q := model.ListQuery{
		Search: strings.TrimSpace(v.Get("q")),
		Sort:   v.Get("sort"),
		Limit:  defaultLimit,
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, fmt.Errorf("%w: limit must be a positive integer", errs.ErrValidation)
		}
		q.Limit = min(n, maxLimit)
	}
	if s := v.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, fmt.Errorf("%w: offset must be a non-negative integer", errs.ErrValidation)
		}
		q.Offset = n
	}
	if s := v.Get("trashed"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, fmt.Errorf("%w: trashed must be a boolean", errs.ErrValidation)
		}
		q.Trashed = b
	}
	return q, nil
}

type pageView[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func toPage[M, V any](p model.Page[M], conv func(M) V) pageView[V] {
	out := pageView[V]{Items: make([]V, 0, len(p.Items)), Total: p.Total}
	for _, it := range p.Items {
		out.Items = append(out.Items, conv(it))
	}
	return out
}

// auth

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokensView struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func toTokens(t model.Tokens) tokensView {
	return tokensView{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken, TokenType: "Bearer", ExpiresAt: t.ExpiresAt}
}

type actorView struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   model.Role `json:"role"`
	Name   string     `json:"name"`
}

// movement

type chargeRequest struct {
	ToUserID     uuid.UUID       `json:"to_user_id" validate:"required"`
	Remark       string          `json:"remark" validate:"max=2000"`
	PageIndex    *int            `json:"page_index" validate:"omitempty,min=0"`
	DocumentID   *uuid.UUID      `json:"document_id"`
	DocumentType model.Direction `json:"document_type" validate:"omitempty,oneof=incoming outgoing"`
}

type attachRequest struct {
	MailID    uuid.UUID       `json:"mail_id" validate:"required"`
	Direction model.Direction `json:"direction" validate:"required,oneof=incoming outgoing"`
}

type requestEntryView struct {
	ID     int64     `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	At     time.Time `json:"at"`
}

type chargeEntryView struct {
	ID           int64           `json:"id"`
	FromUserID   uuid.UUID       `json:"from_user_id"`
	ToUserID     uuid.UUID       `json:"to_user_id"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Remark       string          `json:"remark,omitempty"`
	PageIndex    *int            `json:"page_index,omitempty"`
	DocumentID   *uuid.UUID      `json:"document_id,omitempty"`
	DocumentType model.Direction `json:"document_type,omitempty"`
	At           time.Time       `json:"at"`
}

type movementsView struct {
	Requests []requestEntryView `json:"requests"`
	Charges  []chargeEntryView  `json:"charges"`
	Returns  []requestEntryView `json:"returns"`
}

func toMovements(m *model.Movements) movementsView {
	v := movementsView{
		Requests: make([]requestEntryView, 0, len(m.Requests)),
		Charges:  make([]chargeEntryView, 0, len(m.Charges)),
		Returns:  make([]requestEntryView, 0, len(m.Returns)),
	}
	for _, e := range m.Requests {
		v.Requests = append(v.Requests, requestEntryView{ID: e.ID, UserID: e.UserID, At: e.At})
	}
	for _, e := range m.Returns {
		v.Returns = append(v.Returns, requestEntryView{ID: e.ID, UserID: e.UserID, At: e.At})
	}
	for _, e := range m.Charges {
		v.Charges = append(v.Charges, chargeEntryView{
			ID: e.ID, FromUserID: e.FromUserID, ToUserID: e.ToUserID,
			From: e.FromLabel, To: e.ToLabel, Remark: e.Remark,
			PageIndex: e.PageIndex, DocumentID: e.DocumentID, DocumentType: e.DocumentType,
			At: e.At,
		})
	}
	return v
}

type driftView struct {
	FileID uuid.UUID `json:"file_id"`
	UserID uuid.UUID `json:"user_id"`
	Action string    `json:"action"`
}

func toDrift(d model.Drift) driftView {
	return driftView{FileID: d.FileID, UserID: d.UserID, Action: d.Action}
}

// files

type fileView struct {
	ID              uuid.UUID      `json:"id"`
	Kind            model.FileKind `json:"kind"`
	Title           string         `json:"title"`
	FileNumber      string         `json:"file_number"`
	PaperFileNumber string         `json:"paper_file_number,omitempty"`
	OwningUnit      string         `json:"owning_unit,omitempty"`
	Location        model.Location `json:"location"`
	CurrentHolder   *uuid.UUID     `json:"current_holder"`
	Trashed         bool           `json:"trashed"`
	Incoming        []uuid.UUID    `json:"incoming"`
	Outgoing        []uuid.UUID    `json:"outgoing"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func toFile(f model.File) fileView {
	v := fileView{
		ID: f.ID, Kind: f.Kind, Title: f.Title, FileNumber: f.FileNumber,
		PaperFileNumber: f.PaperFileNumber, OwningUnit: f.OwningUnit,
		Location: f.Location, CurrentHolder: f.CurrentHolder, Trashed: f.Trashed,
		Incoming: f.Incoming, Outgoing: f.Outgoing,
		CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt,
	}
	if v.Incoming == nil {
		v.Incoming = []uuid.UUID{}
	}
	if v.Outgoing == nil {
		v.Outgoing = []uuid.UUID{}
	}
	return v
}

type createFileRequest struct {
	Kind            model.FileKind `json:"kind" validate:"omitempty,oneof=general personal"`
	Title           string         `json:"title" validate:"required,max=500"`
	FileNumber      string         `json:"file_number" validate:"required,max=100"`
	PaperFileNumber string         `json:"paper_file_number" validate:"max=100"`
	OwningUnit      string         `json:"owning_unit" validate:"max=100"`
}

type updateFileRequest struct {
	Title           *string `json:"title" validate:"omitempty,max=500"`
	FileNumber      *string `json:"file_number" validate:"omitempty,max=100"`
	PaperFileNumber *string `json:"paper_file_number" validate:"omitempty,max=100"`
	OwningUnit      *string `json:"owning_unit" validate:"omitempty,max=100"`
}

type countsView struct {
	Total      int `json:"total"`
	Available  int `json:"available"`
	CheckedOut int `json:"checked_out"`
	Trashed    int `json:"trashed"`
}

// mails

type mailFields struct {
	RefNo           string     `json:"ref_no" validate:"max=100"`
	Subject         string     `json:"subject" validate:"max=500"`
	Sender          string     `json:"sender" validate:"max=200"`
	SenderAddress   string     `json:"sender_address" validate:"max=500"`
	Receiver        string     `json:"receiver" validate:"max=200"`
	ReceiverAddress string     `json:"receiver_address" validate:"max=500"`
	CC              []string   `json:"cc" validate:"omitempty,dive,max=200"`
	BodyText        string     `json:"body_text"`
	FileNo          string     `json:"file_no" validate:"max=100"`
	DateReceived    *time.Time `json:"date_received"`
}

type createMailRequest struct {
	Direction model.Direction `json:"direction" validate:"required,oneof=incoming outgoing"`
	Type      model.MailType  `json:"type" validate:"omitempty,oneof=memo circular letter"`
	mailFields
}

type updateMailRequest struct {
	Type            *model.MailType `json:"type" validate:"omitempty,oneof=memo circular letter"`
	RefNo           *string         `json:"ref_no"`
	Subject         *string         `json:"subject"`
	Sender          *string         `json:"sender"`
	SenderAddress   *string         `json:"sender_address"`
	Receiver        *string         `json:"receiver"`
	ReceiverAddress *string         `json:"receiver_address"`
	CC              []string        `json:"cc"`
	BodyText        *string         `json:"body_text"`
	FileNo          *string         `json:"file_no"`
	DateReceived    *time.Time      `json:"date_received"`
}

type chargeCommentView struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	Comment string    `json:"comment"`
	At      time.Time `json:"at"`
}

type mailView struct {
	ID        uuid.UUID       `json:"id"`
	Direction model.Direction `json:"direction"`
	Type      model.MailType  `json:"type"`
	mailFields
	Trashed        bool                `json:"trashed"`
	ChargeComments []chargeCommentView `json:"charge_comments"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func toMail(m model.Mail) mailView {
	v := mailView{
		ID: m.ID, Direction: m.Direction, Type: m.Type,
		mailFields: mailFields{
			RefNo: m.RefNo, Subject: m.Subject, Sender: m.Sender, SenderAddress: m.SenderAddress,
			Receiver: m.Receiver, ReceiverAddress: m.ReceiverAddress, CC: m.CC,
			BodyText: m.BodyText, FileNo: m.FileNo, DateReceived: m.DateReceived,
		},
		Trashed:        m.Trashed,
		ChargeComments: make([]chargeCommentView, 0, len(m.ChargeComments)),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	for _, c := range m.ChargeComments {
		v.ChargeComments = append(v.ChargeComments, chargeCommentView{From: c.FromLabel, To: c.ToLabel, Comment: c.Comment, At: c.At})
	}
	return v
}

// users

type createUserRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Surname    string `json:"surname" validate:"required,max=100"`
	Firstname  string `json:"firstname" validate:"max=100"`
	Post       string `json:"post" validate:"max=200"`
	MDA        string `json:"mda" validate:"max=100"`
	Department string `json:"department" validate:"max=100"`
	Role       string `json:"role"`
}

type updateUserRequest struct {
	Surname    *string `json:"surname" validate:"omitempty,max=100"`
	Firstname  *string `json:"firstname" validate:"omitempty,max=100"`
	Post       *string `json:"post" validate:"omitempty,max=200"`
	MDA        *string `json:"mda" validate:"omitempty,max=100"`
	Department *string `json:"department" validate:"omitempty,max=100"`
}

func (req updateUserRequest) patch() model.UserPatch {
	return model.UserPatch{
		Surname:    req.Surname,
		Firstname:  req.Firstname,
		Post:       req.Post,
		MDA:        req.MDA,
		Department: req.Department,
	}
}

type userCountsView struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Deactivated int `json:"deactivated"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

type userView struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Surname     string     `json:"surname"`
	Firstname   string     `json:"firstname"`
	Post        string     `json:"post"`
	MDA         string     `json:"mda"`
	Department  string     `json:"department"`
	Role        model.Role `json:"role"`
	Deactivated bool       `json:"deactivated"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toUser(u model.User) userView {
	return userView{
		ID: u.ID, Email: u.Email, Surname: u.Surname, Firstname: u.Firstname,
		Post: u.Post, MDA: u.MDA, Department: u.Department, Role: u.Role,
		Deactivated: u.Deactivated, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

// org

type departmentRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	ShortName string `json:"short_name" validate:"max=50"`
}

type departmentView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ShortName string    `json:"short_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDepartment(d model.Department) departmentView {
	return departmentView{ID: d.ID, Name: d.Name, ShortName: d.ShortName, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

type mdaRequest struct {
	Name        string                `json:"name" validate:"required,max=200"`
	ShortName   string                `json:"short_name" validate:"max=50"`
	Departments []model.MDADepartment `json:"departments"`
}

type mdaView struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	ShortName   string                `json:"short_name"`
	Departments []model.MDADepartment `json:"departments"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func toMDA(m model.MDA) mdaView {
	v := mdaView{ID: m.ID, Name: m.Name, ShortName: m.ShortName, Departments: m.Departments, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
	if v.Departments == nil {
		v.Departments = []model.MDADepartment{}
	}
	return v
}

// personnel

type personnelRequest struct {
	EmpNo        string               `json:"emp_no" validate:"required,max=50"`
	Surname      string               `json:"surname" validate:"required,max=100"`
	Firstname    string               `json:"firstname" validate:"max=100"`
	PersonalInfo model.ContactInfo    `json:"personal_info"`
	NextOfKin    model.ContactInfo    `json:"next_of_kin"`
	Employment   model.EmploymentInfo `json:"employment"`
}

func (p personnelRequest) toModel(id uuid.UUID) model.Personnel {
	return model.Personnel{
		ID: id, EmpNo: p.EmpNo, Surname: p.Surname, Firstname: p.Firstname,
		PersonalInfo: p.PersonalInfo, NextOfKin: p.NextOfKin, Employment: p.Employment,
	}
}

type personnelView struct {
	ID             uuid.UUID             `json:"id"`
	EmpNo          string                `json:"emp_no"`
	Surname        string                `json:"surname"`
	Firstname      string                `json:"firstname"`
	PersonalInfo   model.ContactInfo     `json:"personal_info"`
	NextOfKin      model.ContactInfo     `json:"next_of_kin"`
	Employment     model.EmploymentInfo  `json:"employment"`
	Qualifications []model.Qualification `json:"qualifications"`
	Leaves         []model.Leave         `json:"leaves"`
	Promotions     []model.Promotion     `json:"promotions"`
	Queries        []model.Query         `json:"queries"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func toPersonnel(p model.Personnel) personnelView {
	return personnelView{
		ID: p.ID, EmpNo: p.EmpNo, Surname: p.Surname, Firstname: p.Firstname,
		PersonalInfo: p.PersonalInfo, NextOfKin: p.NextOfKin, Employment: p.Employment,
		Qualifications: nonNil(p.Qualifications), Leaves: nonNil(p.Leaves),
		Promotions: nonNil(p.Promotions), Queries: nonNil(p.Queries),
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}
