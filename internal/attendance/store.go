package attendance

import (
	"context"
	"database/sql"

	"mmls-attendance/internal/db"
)

// SQLStore is a CacheStore backed by the attendance_cache table of internal/db.
type SQLStore struct {
	qry    *db.Queries
	makeTx db.MakeTx
}

// NewSQLStore expects conn to already have db.Schema applied.
func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{
		qry:    db.New(conn),
		makeTx: db.NewMakeTx(conn),
	}
}

func (s *SQLStore) LoadAll(ctx context.Context) ([]Form, error) {
	rows, err := s.qry.GetAllAttendance(ctx)
	if err != nil {
		return nil, err
	}
	forms := make([]Form, len(rows))
	for i, row := range rows {
		forms[i] = Form{
			TimetableID: int(row.TimetableID),
			StartTime:   row.StartTime,
			EndTime:     row.EndTime,
			ClassDate:   row.ClassDate,
			ClassID:     int(row.ClassID),
		}
	}
	return forms, nil
}

func (s *SQLStore) Upsert(ctx context.Context, forms []Form) error {
	txqry, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return err
	}
	defer discard()

	for _, form := range forms {
		err = txqry.UpsertAttendance(ctx, db.UpsertAttendanceParams{
			TimetableID: int64(form.TimetableID),
			StartTime:   form.StartTime,
			EndTime:     form.EndTime,
			ClassDate:   form.ClassDate,
			ClassID:     int64(form.ClassID),
		})
		if err != nil {
			return err
		}
	}
	return commit()
}

func (s *SQLStore) Delete(ctx context.Context, ids []int) error {
	txqry, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return err
	}
	defer discard()

	for _, id := range ids {
		err = txqry.DeleteAttendance(ctx, int64(id))
		if err != nil {
			return err
		}
	}
	return commit()
}

func (s *SQLStore) Clear(ctx context.Context) error {
	return s.qry.DeleteAllAttendance(ctx)
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	count, err := s.qry.CountAttendance(ctx)
	return int(count), err
}
