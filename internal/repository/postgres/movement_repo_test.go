package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

const (
	checkOutUpd = `UPDATE files SET location='checked_out', current_holder=$2`
	lockQ       = `SELECT location, current_holder FROM files WHERE id=$1 FOR UPDATE`
	heldQ       = `SELECT EXISTS (SELECT 1 FROM held_files WHERE file_id=$1 AND user_id=$2)`
)

func lockRow(loc model.Location, holder *uuid.UUID) *pgxmock.Rows {
	h := uuid.NullUUID{}
	if holder != nil {
		h = uuid.NullUUID{UUID: *holder, Valid: true}
	}
	return pgxmock.NewRows([]string{"location", "current_holder"}).AddRow(string(loc), h)
}

func TestMovementRepo_CheckOut_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	fileID, userID := newID(), newID()

	mock.ExpectBegin()
	mock.ExpectQuery(sqlRe(checkOutUpd)).
		WithArgs(fileID, userID).
		WillReturnRows(addFile(fileRows(), fileID, &userID))
	mock.ExpectExec(sqlRe(`INSERT INTO file_requests (file_id, user_id, at)`)).
		WithArgs(fileID, userID, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sqlRe(`INSERT INTO held_files (file_id, user_id, since)`)).
		WithArgs(fileID, userID, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	f, err := r.CheckOut(context.Background(), fileID, userID, testNow)
	require.NoError(t, err)
	require.Equal(t, model.LocationCheckedOut, f.Location)
	require.Equal(t, userID, *f.CurrentHolder)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_CheckOut_NotAvailable(t *testing.T) {
	cases := []struct {
		name    string
		rows    *pgxmock.Rows
		rowErr  error
		wantErr error
	}{
		{"held", pgxmock.NewRows([]string{"location", "trashed"}).AddRow("checked_out", false), nil, errs.ErrConflict},
		{"trashed", pgxmock.NewRows([]string{"location", "trashed"}).AddRow("available", true), nil, errs.ErrValidation},
		{"missing", nil, pgx.ErrNoRows, errs.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newDB(t)
			defer mock.Close()
			r := NewMovementRepo(db)
			fileID, userID := newID(), newID()

			mock.ExpectBegin()
			mock.ExpectQuery(sqlRe(checkOutUpd)).
				WithArgs(fileID, userID).
				WillReturnError(pgx.ErrNoRows)
			mock.ExpectRollback()
			q := mock.ExpectQuery(sqlRe(`SELECT location, trashed FROM files WHERE id=$1`)).WithArgs(fileID)
			if tc.rowErr != nil {
				q.WillReturnError(tc.rowErr)
			} else {
				q.WillReturnRows(tc.rows)
			}

			_, err := r.CheckOut(context.Background(), fileID, userID, testNow)
			require.ErrorIs(t, err, tc.wantErr)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMovementRepo_CheckOut_MembershipFailureRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	fileID, userID := newID(), newID()
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectQuery(sqlRe(checkOutUpd)).
		WithArgs(fileID, userID).
		WillReturnRows(addFile(fileRows(), fileID, &userID))
	mock.ExpectExec(sqlRe(`INSERT INTO file_requests`)).
		WithArgs(fileID, userID, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sqlRe(`INSERT INTO held_files`)).
		WithArgs(fileID, userID, testNow).
		WillReturnError(boom)
	mock.ExpectRollback()

	_, err := r.CheckOut(context.Background(), fileID, userID, testNow)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, errs.ErrPartialFailure)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_CheckOut_CommitFailureIsPartial(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	fileID, userID := newID(), newID()

	mock.ExpectBegin()
	mock.ExpectQuery(sqlRe(checkOutUpd)).
		WithArgs(fileID, userID).
		WillReturnRows(addFile(fileRows(), fileID, &userID))
	mock.ExpectExec(sqlRe(`INSERT INTO file_requests`)).
		WithArgs(fileID, userID, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sqlRe(`INSERT INTO held_files`)).
		WithArgs(fileID, userID, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	_, err := r.CheckOut(context.Background(), fileID, userID, testNow)
	require.ErrorIs(t, err, errs.ErrPartialFailure)
}

func TestMovementRepo_CheckOut_BeginErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)

	mock.ExpectBegin().WillReturnError(errors.New("no conn"))
	_, err := r.CheckOut(context.Background(), newID(), newID(), testNow)
	require.Error(t, err)
}

func newCharge(fileID, from, to uuid.UUID) model.Charge {
	return model.Charge{
		FileID:     fileID,
		FromUserID: from,
		ToUserID:   to,
		FromLabel:  "Obi - Clerk, Accounts",
		ToLabel:    "Eze - Director, Works",
		Remark:     "for your action",
		At:         testNow,
	}
}

func TestMovementRepo_Transfer_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	fileID, from, to := newID(), newID(), newID()
	c := newCharge(fileID, from, to)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlRe(lockQ)).WithArgs(fileID).WillReturnRows(lockRow(model.LocationCheckedOut, &from))
	mock.ExpectQuery(sqlRe(heldQ)).WithArgs(fileID, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(sqlRe(`INSERT INTO file_charges`)).
		WithArgs(fileID, from, to, c.FromLabel, c.ToLabel, c.Remark, pgxmock.AnyArg(), uuid.NullUUID{}, "", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sqlRe(`INSERT INTO held_files`)).
		WithArgs(fileID, to, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(sqlRe(`UPDATE files SET current_holder=$2`)).
		WithArgs(fileID, to).
		WillReturnRows(addFile(fileRows(), fileID, &to))
	mock.ExpectCommit()

	f, err := r.Transfer(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, to, *f.CurrentHolder)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_Transfer_WithDocumentAddsComment(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	fileID, from, to, mailID := newID(), newID(), newID(), newID()
	page := 3
	c := newCharge(fileID, from, to)
	c.DocumentID = &mailID
	c.PageIndex = &page

	mock.ExpectBegin()
	mock.ExpectQuery(sqlRe(lockQ)).WithArgs(fileID).WillReturnRows(lockRow(model.LocationCheckedOut, &from))
	mock.ExpectQuery(sqlRe(heldQ)).WithArgs(fileID, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(sqlRe(`SELECT direction FROM mails WHERE id=$1`)).WithArgs(mailID).
		WillReturnRows(pgxmock.NewRows([]string{"direction"}).AddRow("incoming"))
	mock.ExpectExec(sqlRe(`INSERT INTO file_charges`)).
		WithArgs(fileID, from, to, c.FromLabel, c.ToLabel, c.Remark, &page,
			uuid.NullUUID{UUID: mailID, Valid: true}, "incoming", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sqlRe(`INSERT INTO mail_charge_comments`)).
		WithArgs(mailID, c.FromLabel, c.ToLabel, c.Remark, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sqlRe(`INSERT INTO held_files`)).
		WithArgs(fileID, to, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(sqlRe(`UPDATE files SET current_holder=$2`)).
		WithArgs(fileID, to).
		WillReturnRows(addFile(fileRows(), fileID, &to))
	mock.ExpectCommit()

	_, err := r.Transfer(context.Background(), c)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_Transfer_Rejections(t *testing.T) {
	from, to, other := newID(), newID(), newID()
	cases := []struct {
		name    string
		lock    *pgxmock.Rows
		held    *bool
		wantErr error
	}{
		{"not checked out", lockRow(model.LocationAvailable, nil), nil, errs.ErrConflict},
		{"already charged", lockRow(model.LocationCheckedOut, &to), ptr(true), errs.ErrAlreadyCharged},
		{"not the holder", lockRow(model.LocationCheckedOut, &other), ptr(false), errs.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newDB(t)
			defer mock.Close()
			r := NewMovementRepo(db)
			fileID := newID()

			mock.ExpectBegin()
			mock.ExpectQuery(sqlRe(lockQ)).WithArgs(fileID).WillReturnRows(tc.lock)
			if tc.held != nil {
				mock.ExpectQuery(sqlRe(heldQ)).WithArgs(fileID, to).
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(*tc.held))
			}
			mock.ExpectRollback()

			_, err := r.Transfer(context.Background(), newCharge(fileID, from, to))
			require.ErrorIs(t, err, tc.wantErr)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMovementRepo_Transfer_DocumentDirectionMismatch(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	fileID, from, to, mailID := newID(), newID(), newID(), newID()
	c := newCharge(fileID, from, to)
	c.DocumentID = &mailID
	c.DocumentType = model.Outgoing

	mock.ExpectBegin()
	mock.ExpectQuery(sqlRe(lockQ)).WithArgs(fileID).WillReturnRows(lockRow(model.LocationCheckedOut, &from))
	mock.ExpectQuery(sqlRe(heldQ)).WithArgs(fileID, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(sqlRe(`SELECT direction FROM mails WHERE id=$1`)).WithArgs(mailID).
		WillReturnRows(pgxmock.NewRows([]string{"direction"}).AddRow("incoming"))
	mock.ExpectRollback()

	_, err := r.Transfer(context.Background(), c)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestMovementRepo_Transfer_MidwayFailureRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	fileID, from, to := newID(), newID(), newID()
	boom := errors.New("statement timeout")

	mock.ExpectBegin()
	mock.ExpectQuery(sqlRe(lockQ)).WithArgs(fileID).WillReturnRows(lockRow(model.LocationCheckedOut, &from))
	mock.ExpectQuery(sqlRe(heldQ)).WithArgs(fileID, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(sqlRe(`INSERT INTO file_charges`)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sqlRe(`INSERT INTO held_files`)).
		WithArgs(fileID, to, testNow).
		WillReturnError(boom)
	mock.ExpectRollback()

	_, err := r.Transfer(context.Background(), newCharge(fileID, from, to))
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_CheckIn(t *testing.T) {
	holder, other := newID(), newID()

	t.Run("ok", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		r := NewMovementRepo(db)
		fileID := newID()

		mock.ExpectBegin()
		mock.ExpectQuery(sqlRe(lockQ)).WithArgs(fileID).WillReturnRows(lockRow(model.LocationCheckedOut, &holder))
		mock.ExpectExec(sqlRe(`INSERT INTO file_returns (file_id, user_id, at)`)).
			WithArgs(fileID, holder, testNow).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(sqlRe(`DELETE FROM held_files WHERE file_id=$1`)).
			WithArgs(fileID).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectQuery(sqlRe(`UPDATE files SET location='available', current_holder=NULL`)).
			WithArgs(fileID).
			WillReturnRows(addFile(fileRows(), fileID, nil))
		mock.ExpectCommit()

		f, err := r.CheckIn(context.Background(), fileID, holder, testNow, true)
		require.NoError(t, err)
		require.Equal(t, model.LocationAvailable, f.Location)
		require.Nil(t, f.CurrentHolder)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already available", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		r := NewMovementRepo(db)
		fileID := newID()

		mock.ExpectBegin()
		mock.ExpectQuery(sqlRe(lockQ)).WithArgs(fileID).WillReturnRows(lockRow(model.LocationAvailable, nil))
		mock.ExpectRollback()

		_, err := r.CheckIn(context.Background(), fileID, holder, testNow, false)
		require.ErrorIs(t, err, errs.ErrConflict)
	})

	t.Run("strict rejects non-holder", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		r := NewMovementRepo(db)
		fileID := newID()

		mock.ExpectBegin()
		mock.ExpectQuery(sqlRe(lockQ)).WithArgs(fileID).WillReturnRows(lockRow(model.LocationCheckedOut, &holder))
		mock.ExpectRollback()

		_, err := r.CheckIn(context.Background(), fileID, other, testNow, true)
		require.ErrorIs(t, err, errs.ErrConflict)
	})

	t.Run("missing file", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		r := NewMovementRepo(db)
		fileID := newID()

		mock.ExpectBegin()
		mock.ExpectQuery(sqlRe(lockQ)).WithArgs(fileID).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := r.CheckIn(context.Background(), fileID, holder, testNow, true)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestMovementRepo_ClearLog(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	fileID := newID()

	require.ErrorIs(t, r.ClearLog(context.Background(), fileID, "moves"), errs.ErrValidation)

	mock.ExpectQuery(sqlRe(`SELECT 1 FROM files WHERE id=$1`)).WithArgs(fileID).
		WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectExec(sqlRe(`DELETE FROM file_charges WHERE file_id=$1`)).WithArgs(fileID).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	require.NoError(t, r.ClearLog(context.Background(), fileID, model.LogCharges))

	mock.ExpectQuery(sqlRe(`SELECT 1 FROM files WHERE id=$1`)).WithArgs(fileID).
		WillReturnError(pgx.ErrNoRows)
	require.ErrorIs(t, r.ClearLog(context.Background(), fileID, model.LogRequests), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_LastRequest(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	fileID, userID := newID(), newID()
	const q = `SELECT id, file_id, user_id, at FROM file_requests WHERE file_id=$1 ORDER BY id DESC LIMIT 1`

	mock.ExpectQuery(sqlRe(q)).WithArgs(fileID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "file_id", "user_id", "at"}).AddRow(int64(9), fileID, userID, testNow))
	e, err := r.LastRequest(context.Background(), fileID)
	require.NoError(t, err)
	require.Equal(t, userID, e.UserID)
	require.Equal(t, int64(9), e.ID)

	mock.ExpectQuery(sqlRe(q)).WithArgs(fileID).WillReturnError(pgx.ErrNoRows)
	_, err = r.LastRequest(context.Background(), fileID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMovementRepo_History(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	fileID, a, b, mailID := newID(), newID(), newID(), newID()
	page := 2

	mock.ExpectQuery(sqlRe(`SELECT 1 FROM files WHERE id=$1`)).WithArgs(fileID).
		WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectQuery(sqlRe(`FROM file_requests WHERE file_id=$1 ORDER BY id ASC`)).WithArgs(fileID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "file_id", "user_id", "at"}).AddRow(int64(1), fileID, a, testNow))
	mock.ExpectQuery(sqlRe(`FROM file_charges WHERE file_id=$1 ORDER BY id ASC`)).WithArgs(fileID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "file_id", "from_user_id", "to_user_id", "from_label", "to_label",
			"remark", "page_index", "document_id", "document_type", "at"}).
			AddRow(int64(1), fileID, a, b, "A", "B", "see me", &page, uuid.NullUUID{UUID: mailID, Valid: true}, "incoming", testNow))
	mock.ExpectQuery(sqlRe(`FROM file_returns WHERE file_id=$1 ORDER BY id ASC`)).WithArgs(fileID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "file_id", "user_id", "at"}))

	h, err := r.History(context.Background(), fileID)
	require.NoError(t, err)
	require.Len(t, h.Requests, 1)
	require.Len(t, h.Charges, 1)
	require.Empty(t, h.Returns)
	require.Equal(t, mailID, *h.Charges[0].DocumentID)
	require.Equal(t, model.Incoming, h.Charges[0].DocumentType)
	require.Equal(t, 2, *h.Charges[0].PageIndex)
}

func TestMovementRepo_Reconcile(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMovementRepo(db)
	staleFile, staleUser, lostFile, holder := newID(), newID(), newID(), newID()

	mock.ExpectBegin()
	mock.ExpectQuery(sqlRe(`DELETE FROM held_files h USING files f`)).
		WillReturnRows(pgxmock.NewRows([]string{"file_id", "user_id"}).AddRow(staleFile, staleUser))
	mock.ExpectQuery(sqlRe(`INSERT INTO held_files (file_id, user_id, since)`)).
		WillReturnRows(pgxmock.NewRows([]string{"file_id", "user_id"}).AddRow(lostFile, holder))
	mock.ExpectCommit()

	drift, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Drift{
		{FileID: staleFile, UserID: staleUser, Action: "removed"},
		{FileID: lostFile, UserID: holder, Action: "added"},
	}, drift)
	require.NoError(t, mock.ExpectationsWereMet())
}

func ptr[T any](v T) *T { return &v }
