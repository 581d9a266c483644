package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Direction tells incoming correspondence from outgoing.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool { return d == Incoming || d == Outgoing }

// MailType is the kind of correspondence.
type MailType string

const (
	MailMemo     MailType = "memo"
	MailCircular MailType = "circular"
	MailLetter   MailType = "letter"
)

// Valid reports whether t is a known mail type.
func (t MailType) Valid() bool { return t == MailMemo || t == MailCircular || t == MailLetter }

// Mail is a single piece of correspondence.
type Mail struct {
	ID              uuid.UUID
	Direction       Direction
	Type            MailType
	RefNo           string
	Subject         string
	Sender          string
	SenderAddress   string
	Receiver        string
	ReceiverAddress string
	CC              []string
	BodyText        string
	FileNo          string
	DateReceived    *time.Time
	Trashed         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Populated by MailRepository.Get only.
	ChargeComments []ChargeComment
}

// MailPatch carries editable fields. Nil fields are left untouched.
type MailPatch struct {
	Type            *MailType
	RefNo           *string
	Subject         *string
	Sender          *string
	SenderAddress   *string
	Receiver        *string
	ReceiverAddress *string
	CC              []string
	BodyText        *string
	FileNo          *string
	DateReceived    *time.Time
}

// ChargeComment mirrors a charge entry on a mail routed with the file.
type ChargeComment struct {
	ID        int64
	MailID    uuid.UUID
	FromLabel string
	ToLabel   string
	Comment   string
	At        time.Time
}
