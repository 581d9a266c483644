package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// FileKind distinguishes general (correspondence) files from personal (staff) files.
type FileKind string

const (
	FileGeneral  FileKind = "general"
	FilePersonal FileKind = "personal"
)

// Valid reports whether k is a known kind.
func (k FileKind) Valid() bool { return k == FileGeneral || k == FilePersonal }

// Location is the movement state of a file.
type Location string

const (
	LocationAvailable  Location = "available"
	LocationCheckedOut Location = "checked_out"
)

// File is a registry folder tracked by location/holder state.
// Location and CurrentHolder are written only by the movement repository.
type File struct {
	ID              uuid.UUID
	Kind            FileKind
	Title           string
	FileNumber      string
	PaperFileNumber string
	OwningUnit      string // MDA short name
	Location        Location
	CurrentHolder   *uuid.UUID // set iff Location == LocationCheckedOut
	Trashed         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Populated by FileRepository.Get only.
	Incoming []uuid.UUID
	Outgoing []uuid.UUID
}

// NewFile carries the fields supplied at creation.
type NewFile struct {
	Kind            FileKind
	Title           string
	FileNumber      string
	PaperFileNumber string
	OwningUnit      string
}

// FilePatch carries editable metadata. Nil fields are left untouched.
type FilePatch struct {
	Title           *string
	FileNumber      *string
	PaperFileNumber *string
	OwningUnit      *string
}

// FileCounts is the registry report.
type FileCounts struct {
	Total      int
	Available  int
	CheckedOut int
	Trashed    int
}

// MovementLog names one of the three append-only movement logs.
type MovementLog string

const (
	LogRequests MovementLog = "requests"
	LogCharges  MovementLog = "charges"
	LogReturns  MovementLog = "returns"
)

// Valid reports whether l names a known log.
func (l MovementLog) Valid() bool {
	return l == LogRequests || l == LogCharges || l == LogReturns
}

// RequestEntry records a checkout from the registry.
type RequestEntry struct {
	ID     int64
	FileID uuid.UUID
	UserID uuid.UUID
	At     time.Time
}

// ReturnEntry records a file going back to the registry.
type ReturnEntry struct {
	ID     int64
	FileID uuid.UUID
	UserID uuid.UUID
	At     time.Time
}

// ChargeEntry records a transfer of custody between two users.
type ChargeEntry struct {
	ID           int64
	FileID       uuid.UUID
	FromUserID   uuid.UUID
	ToUserID     uuid.UUID
	FromLabel    string
	ToLabel      string
	Remark       string
	PageIndex    *int
	DocumentID   *uuid.UUID
	DocumentType Direction
	At           time.Time
}

// Movements is the full movement history of a file.
type Movements struct {
	Requests []RequestEntry
	Charges  []ChargeEntry
	Returns  []ReturnEntry
}

// Charge is the input of a custody transfer.
type Charge struct {
	FileID       uuid.UUID
	FromUserID   uuid.UUID
	ToUserID     uuid.UUID
	FromLabel    string
	ToLabel      string
	Remark       string
	PageIndex    *int
	DocumentID   *uuid.UUID // optional mail routed with the file
	DocumentType Direction
	At           time.Time
}

// Drift is one held-file membership row repaired by reconciliation.
type Drift struct {
	FileID uuid.UUID
	UserID uuid.UUID
	Action string // "added" or "removed"
}
