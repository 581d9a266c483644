package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Personnel is a staff record kept in a personal file.
// Nested parts are persisted as JSON documents.
type Personnel struct {
	ID             uuid.UUID
	EmpNo          string
	Surname        string
	Firstname      string
	PersonalInfo   ContactInfo
	NextOfKin      ContactInfo
	Employment     EmploymentInfo
	Qualifications []Qualification
	Leaves         []Leave
	Promotions     []Promotion
	Queries        []Query
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ContactInfo holds personal or next-of-kin details.
type ContactInfo struct {
	Name    string     `json:"name,omitempty"`
	DOB     *time.Time `json:"dob,omitempty"`
	PhoneNo string     `json:"phone_no,omitempty"`
	Address string     `json:"address,omitempty"`
	Email   string     `json:"email,omitempty"`
}

// EmploymentInfo is the current appointment of a staff member.
type EmploymentInfo struct {
	FirstAppointment   *time.Time `json:"date_of_first_appointment,omitempty"`
	PresentAppointment *time.Time `json:"date_of_present_appointment,omitempty"`
	CurrentPost        string     `json:"current_post,omitempty"`
	GradeLevel         string     `json:"current_grade_level,omitempty"`
	ParentMDA          string     `json:"parent_mda,omitempty"`
	PresentMDA         string     `json:"present_mda,omitempty"`
	Department         string     `json:"department,omitempty"`
}

type Qualification struct {
	Title          string     `json:"title"`
	From           string     `json:"from,omitempty"`
	YearObtained   *time.Time `json:"year_obtained,omitempty"`
	CertificateURL string     `json:"certificate_url,omitempty"`
}

type Leave struct {
	RequestFrom    *time.Time `json:"request_from,omitempty"`
	RequestTo      *time.Time `json:"request_to,omitempty"`
	RequestUpload  string     `json:"request_upload,omitempty"`
	ApprovedFrom   *time.Time `json:"approved_from,omitempty"`
	ApprovedTo     *time.Time `json:"approved_to,omitempty"`
	ApprovalUpload string     `json:"approval_upload,omitempty"`
	Status         string     `json:"status,omitempty"`
}

type Promotion struct {
	Date       *time.Time `json:"promotion_date,omitempty"`
	GradeLevel string     `json:"grade_level,omitempty"`
	Post       string     `json:"post,omitempty"`
	Upload     string     `json:"promotion_upload,omitempty"`
}

type Query struct {
	IssuedDate     *time.Time `json:"issued_date,omitempty"`
	QueryUpload    string     `json:"query_upload,omitempty"`
	ResponseDate   *time.Time `json:"response_date,omitempty"`
	ResponseUpload string     `json:"response_upload,omitempty"`
}

// PersonnelHistory names one of the append-only personnel histories.
type PersonnelHistory string

const (
	HistoryQualifications PersonnelHistory = "qualifications"
	HistoryLeaves         PersonnelHistory = "leaves"
	HistoryPromotions     PersonnelHistory = "promotions"
	HistoryQueries        PersonnelHistory = "queries"
)

// Valid reports whether h names a known history.
func (h PersonnelHistory) Valid() bool {
	switch h {
	case HistoryQualifications, HistoryLeaves, HistoryPromotions, HistoryQueries:
		return true
	}
	return false
}
