package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Department is a standalone organisational unit.
type Department struct {
	ID        uuid.UUID
	Name      string
	ShortName string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MDA is a Ministry, Department or Agency with its embedded departments.
type MDA struct {
	ID          uuid.UUID
	Name        string
	ShortName   string
	Departments []MDADepartment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MDADepartment is a department embedded in an MDA record.
type MDADepartment struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}
