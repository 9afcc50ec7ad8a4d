package db

import (
	"context"
)

type AttendanceCache struct {
	TimetableID int64
	StartTime   string
	EndTime     string
	ClassDate   string
	ClassID     int64
}

const getAllAttendance = `-- name: GetAllAttendance :many
select timetable_id, start_time, end_time, class_date, class_id from attendance_cache
order by timetable_id
`

func (q *Queries) GetAllAttendance(ctx context.Context) ([]AttendanceCache, error) {
	rows, err := q.db.QueryContext(ctx, getAllAttendance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AttendanceCache
	for rows.Next() {
		var i AttendanceCache
		if err := rows.Scan(
			&i.TimetableID,
			&i.StartTime,
			&i.EndTime,
			&i.ClassDate,
			&i.ClassID,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertAttendance = `-- name: UpsertAttendance :exec
insert into attendance_cache(timetable_id, start_time, end_time, class_date, class_id)
values (?, ?, ?, ?, ?)
on conflict (timetable_id) do update set
    start_time = excluded.start_time,
    end_time = excluded.end_time,
    class_date = excluded.class_date,
    class_id = excluded.class_id
`

type UpsertAttendanceParams struct {
	TimetableID int64
	StartTime   string
	EndTime     string
	ClassDate   string
	ClassID     int64
}

func (q *Queries) UpsertAttendance(ctx context.Context, arg UpsertAttendanceParams) error {
	_, err := q.db.ExecContext(ctx, upsertAttendance,
		arg.TimetableID,
		arg.StartTime,
		arg.EndTime,
		arg.ClassDate,
		arg.ClassID,
	)
	return err
}

const deleteAttendance = `-- name: DeleteAttendance :exec
delete from attendance_cache where timetable_id = ?
`

func (q *Queries) DeleteAttendance(ctx context.Context, timetableID int64) error {
	_, err := q.db.ExecContext(ctx, deleteAttendance, timetableID)
	return err
}

const deleteAllAttendance = `-- name: DeleteAllAttendance :exec
delete from attendance_cache
`

func (q *Queries) DeleteAllAttendance(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllAttendance)
	return err
}

const countAttendance = `-- name: CountAttendance :one
select count(*) from attendance_cache
`

func (q *Queries) CountAttendance(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countAttendance)
	var count int64
	err := row.Scan(&count)
	return count, err
}
