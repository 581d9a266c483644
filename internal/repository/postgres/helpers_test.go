package postgres

import (
	"regexp"
	"testing"
	"time"

	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

// sqlRe matches a statement literally.
func sqlRe(s string) string { return regexp.QuoteMeta(s) }

var testNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newID() uuid.UUID { return uuid.Must(uuid.NewV4()) }

var fileColNames = []string{"id", "kind", "title", "file_number", "paper_file_number", "owning_unit",
	"location", "current_holder", "trashed", "created_at", "updated_at"}

func fileRows() *pgxmock.Rows { return pgxmock.NewRows(fileColNames) }

// addFile appends a file row; holder is nil for files in the registry.
func addFile(rows *pgxmock.Rows, id uuid.UUID, holder *uuid.UUID) *pgxmock.Rows {
	loc := string(model.LocationAvailable)
	h := uuid.NullUUID{}
	if holder != nil {
		loc = string(model.LocationCheckedOut)
		h = uuid.NullUUID{UUID: *holder, Valid: true}
	}
	return rows.AddRow(id, "general", "Estate matters", "GEN/001", "P/001", "Works", loc, h, false, testNow, testNow)
}

var userColNames = []string{"id", "email", "pwd_hash", "salt_auth", "surname", "firstname", "post",
	"mda", "department", "role", "deactivated", "created_at", "updated_at"}

func addUser(rows *pgxmock.Rows, id uuid.UUID, role model.Role) *pgxmock.Rows {
	return rows.AddRow(id, "ada@example.gov", []byte("h"), []byte("s"), "Obi", "Ada", "Clerk",
		"Finance", "Accounts", string(role), false, testNow, testNow)
}
