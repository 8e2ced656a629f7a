package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// DataServerRepo encapsulates all queries against the data_servers table.
type DataServerRepo struct {
	db *sql.DB
}

// NewDataServerRepo constructs a DataServerRepo with the provided DB handle.
func NewDataServerRepo(db *sql.DB) *DataServerRepo {
	return &DataServerRepo{db: db}
}

const dataServerColumns = `id, url, name, location, status, available, user_count, max_users,
	priority, health_status, last_health_check, created_at, updated_at`

func scanDataServer(row interface{ Scan(...any) error }) (*model.DataServer, error) {
	var (
		s       model.DataServer
		checked sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.URL, &s.Name, &s.Location, &s.Status, &s.Available, &s.UserCount,
		&s.MaxUsers, &s.Priority, &s.HealthStatus, &checked, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if checked.Valid {
		t := checked.Time
		s.LastHealthCheck = &t
	}
	return &s, nil
}

// Create inserts a server and populates its ID and timestamps.  A duplicate
// URL yields ErrDuplicate.
func (r *DataServerRepo) Create(ctx context.Context, s *model.DataServer) error {
	const q = `INSERT INTO data_servers (url, name, location, status, available, max_users, priority, health_status)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if s.HealthStatus == "" {
		s.HealthStatus = model.HealthUnknown
	}
	res, err := r.db.ExecContext(ctx, q, s.URL, s.Name, s.Location, s.Status, s.Available, s.MaxUsers, s.Priority, s.HealthStatus)
	if err != nil {
		if isMySQLDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*s = *created
	return nil
}

// GetByID fetches one server or returns ErrNotFound.
func (r *DataServerRepo) GetByID(ctx context.Context, id uint64) (*model.DataServer, error) {
	s, err := scanDataServer(r.db.QueryRowContext(ctx, "SELECT "+dataServerColumns+" FROM data_servers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// List returns every registered server ordered by id.
func (r *DataServerRepo) List(ctx context.Context) ([]model.DataServer, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+dataServerColumns+" FROM data_servers ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DataServer
	for rows.Next() {
		s, err := scanDataServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Update rewrites the operator-managed fields.  UserCount and health fields
// are not touched here.
func (r *DataServerRepo) Update(ctx context.Context, s *model.DataServer) error {
	// the url may only move while no user is assigned to the server
	const q = `UPDATE data_servers SET url = ?, name = ?, location = ?, status = ?, available = ?,
	           max_users = ?, priority = ? WHERE id = ? AND (url = ? OR user_count = 0)`
	res, err := r.db.ExecContext(ctx, q, s.URL, s.Name, s.Location, s.Status, s.Available, s.MaxUsers, s.Priority, s.ID, s.URL)
	if err != nil {
		if isMySQLDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 rows for an unchanged row as well, so tell the cases apart.
		cur, err := r.GetByID(ctx, s.ID)
		if err != nil {
			return err
		}
		if cur.URL != s.URL && cur.UserCount > 0 {
			return ErrConflict
		}
	}
	updated, err := r.GetByID(ctx, s.ID)
	if err != nil {
		return err
	}
	*s = *updated
	return nil
}

// Delete removes a server only while no user is assigned to it.  It returns
// ErrConflict when users remain and ErrNotFound when the id is unknown.
func (r *DataServerRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM data_servers WHERE id = ? AND user_count = 0", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

// IncrementUsers adds one to the server's user count.
func (r *DataServerRepo) IncrementUsers(ctx context.Context, url string) error {
	return r.adjustUsers(ctx, "UPDATE data_servers SET user_count = user_count + 1 WHERE url = ?", url)
}

// DecrementUsers subtracts one from the server's user count, never below zero.
func (r *DataServerRepo) DecrementUsers(ctx context.Context, url string) error {
	return r.adjustUsers(ctx, "UPDATE data_servers SET user_count = GREATEST(user_count - 1, 0) WHERE url = ?", url)
}

func (r *DataServerRepo) adjustUsers(ctx context.Context, q, url string) error {
	res, err := r.db.ExecContext(ctx, q, url)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := r.db.QueryRowContext(ctx, "SELECT 1 FROM data_servers WHERE url = ?", url).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// RecordHealth stores the outcome of a probe.
func (r *DataServerRepo) RecordHealth(ctx context.Context, id uint64, status model.HealthStatus, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE data_servers SET health_status = ?, last_health_check = ? WHERE id = ?",
		status, at.UTC(), id)
	return err
}
