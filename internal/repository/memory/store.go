// Package memory is an in-process implementation of the repository interfaces.
// One mutex guards all state, so every movement transition is atomic.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

type document struct {
	mailID uuid.UUID
	dir    model.Direction
}

// Store holds every collection. Use the accessor methods to obtain
// repository views.
type Store struct {
	mu sync.Mutex

	users    map[uuid.UUID]*model.User
	files    map[uuid.UUID]*model.File
	held     map[uuid.UUID]uuid.UUID // file -> holder membership
	since    map[uuid.UUID]time.Time
	requests map[uuid.UUID][]model.RequestEntry
	charges  map[uuid.UUID][]model.ChargeEntry
	returns  map[uuid.UUID][]model.ReturnEntry
	docs     map[uuid.UUID][]document

	mails    map[uuid.UUID]*model.Mail
	comments map[uuid.UUID][]model.ChargeComment

	departments map[uuid.UUID]*model.Department
	mdas        map[uuid.UUID]*model.MDA
	personnel   map[uuid.UUID]*model.Personnel

	seq int64
	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       map[uuid.UUID]*model.User{},
		files:       map[uuid.UUID]*model.File{},
		held:        map[uuid.UUID]uuid.UUID{},
		since:       map[uuid.UUID]time.Time{},
		requests:    map[uuid.UUID][]model.RequestEntry{},
		charges:     map[uuid.UUID][]model.ChargeEntry{},
		returns:     map[uuid.UUID][]model.ReturnEntry{},
		docs:        map[uuid.UUID][]document{},
		mails:       map[uuid.UUID]*model.Mail{},
		comments:    map[uuid.UUID][]model.ChargeComment{},
		departments: map[uuid.UUID]*model.Department{},
		mdas:        map[uuid.UUID]*model.MDA{},
		personnel:   map[uuid.UUID]*model.Personnel{},
		now:         time.Now,
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// Users returns the user repository view.
func (s *Store) Users() *UserRepo { return &UserRepo{s} }

// Files returns the file repository view.
func (s *Store) Files() *FileRepo { return &FileRepo{s} }

// Movements returns the movement repository view.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{s} }

// Mails returns the mail repository view.
func (s *Store) Mails() *MailRepo { return &MailRepo{s} }

// Departments returns the department repository view.
func (s *Store) Departments() *DepartmentRepo { return &DepartmentRepo{s} }

// MDAs returns the MDA repository view.
func (s *Store) MDAs() *MDARepo { return &MDARepo{s} }

// Personnel returns the personnel repository view.
func (s *Store) Personnel() *PersonnelRepo { return &PersonnelRepo{s} }

const (
	defaultLimit = 50
	maxLimit     = 200
)

// paginate filters, sorts and slices items the way the SQL repositories do.
// keys maps a sort key to a string projection; unknown keys keep insertion order.
func paginate[T any](items []T, q model.ListQuery, match func(T, string) bool, keys map[string]func(T) string) model.Page[T] {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]T, 0, len(items))
	for _, it := range items {
		if needle == "" || match(it, needle) {
			out = append(out, it)
		}
	}

	key, desc := strings.TrimSpace(q.Sort), false
	if strings.HasPrefix(key, "-") {
		key, desc = key[1:], true
	}
	if proj, ok := keys[key]; ok {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := proj(out[i]), proj(out[j])
			if desc {
				return a > b
			}
			return a < b
		})
	}

	limit, offset := q.Limit, q.Offset
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	page := model.Page[T]{Items: []T{}, Total: len(out)}
	if offset >= len(out) {
		return page
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	page.Items = append(page.Items, out[offset:end]...)
	return page
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// byCreation returns map values ordered by CreatedAt, then id.
func byCreation[T any](m map[uuid.UUID]*T, created func(*T) time.Time, id func(*T) uuid.UUID) []T {
	vals := make([]*T, 0, len(m))
	for _, v := range m {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool {
		ci, cj := created(vals[i]), created(vals[j])
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return id(vals[i]).String() < id(vals[j]).String()
	})
	out := make([]T, len(vals))
	for i, v := range vals {
		out[i] = *v
	}
	return out
}
