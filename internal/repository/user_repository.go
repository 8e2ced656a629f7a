package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/model"
)

// UserRepo reads and writes the users table.  Usernames are the natural key
// shared across nodes; ids are local to each node.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, username, email, password_hash, is_self_hosted, subscription_status,
	subscription_expire_at, ext_platform, ext_id, ext_last_verified_at, ext_last_refreshed_at,
	plan_name, word_limit, word_count, data_server, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u                          model.User
		expire, verified, refreshd sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsSelfHosted, &u.SubscriptionStatus,
		&expire, &u.External.Platform, &u.External.ExternalID, &verified, &refreshd,
		&u.PlanName, &u.WordLimit, &u.WordCount, &u.DataServer, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.SubscriptionExpireAt = timePtr(expire)
	u.External.LastVerifiedAt = timePtr(verified)
	u.External.LastRefreshedAt = timePtr(refreshd)
	return &u, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Create inserts a user and fills in ID and timestamps.  A taken username
// yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	const q = `INSERT INTO users (username, email, password_hash, is_self_hosted, subscription_status,
	           subscription_expire_at, ext_platform, ext_id, ext_last_verified_at, ext_last_refreshed_at,
	           plan_name, word_limit, word_count, data_server)
	           VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	res, err := r.db.ExecContext(ctx, q, u.Username, u.Email, u.PasswordHash, u.IsSelfHosted, u.SubscriptionStatus,
		nullTime(u.SubscriptionExpireAt), u.External.Platform, u.External.ExternalID,
		nullTime(u.External.LastVerifiedAt), nullTime(u.External.LastRefreshedAt),
		u.PlanName, u.WordLimit, u.WordCount, u.DataServer)
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
	created, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*u = *created
	return nil
}

// GetByID fetches a user by local id.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id))
}

// GetByUsername fetches a user by natural key.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ? LIMIT 1", strings.TrimSpace(username)))
}

// Upsert creates the user or overwrites identity, credential and
// subscription fields of the existing row with the same username.
// WordCount is owned by the data node and kept as is on update.
func (r *UserRepo) Upsert(ctx context.Context, u *model.User) (created bool, err error) {
	existing, err := r.GetByUsername(ctx, u.Username)
	if errors.Is(err, ErrNotFound) {
		if err := r.Create(ctx, u); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	const q = `UPDATE users SET email = ?, password_hash = ?, is_self_hosted = ?, subscription_status = ?,
	           subscription_expire_at = ?, ext_platform = ?, ext_id = ?, ext_last_verified_at = ?,
	           ext_last_refreshed_at = ?, plan_name = ?, word_limit = ?, data_server = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, q, strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash, u.IsSelfHosted,
		u.SubscriptionStatus, nullTime(u.SubscriptionExpireAt), u.External.Platform, u.External.ExternalID,
		nullTime(u.External.LastVerifiedAt), nullTime(u.External.LastRefreshedAt),
		u.PlanName, u.WordLimit, u.DataServer, existing.ID); err != nil {
		return false, err
	}
	updated, err := r.GetByID(ctx, existing.ID)
	if err != nil {
		return false, err
	}
	*u = *updated
	return false, nil
}

// UpdateStats stores a usage snapshot pushed by the user's data node.
func (r *UserRepo) UpdateStats(ctx context.Context, username string, wordCount int, status model.SubscriptionStatus, expireAt *time.Time) error {
	return r.exec(ctx, username,
		"UPDATE users SET word_count = ?, subscription_status = ?, subscription_expire_at = ? WHERE username = ?",
		wordCount, status, nullTime(expireAt), username)
}

// UpdateSubscription stores subscription, plan, quota and assignment fields.
// Credentials and the word count are left untouched.
func (r *UserRepo) UpdateSubscription(ctx context.Context, u *model.User) error {
	return r.exec(ctx, u.Username,
		`UPDATE users SET is_self_hosted = ?, subscription_status = ?, subscription_expire_at = ?,
		 ext_platform = ?, ext_id = ?, ext_last_verified_at = ?, ext_last_refreshed_at = ?,
		 plan_name = ?, word_limit = ?, data_server = ? WHERE username = ?`,
		u.IsSelfHosted, u.SubscriptionStatus, nullTime(u.SubscriptionExpireAt),
		u.External.Platform, u.External.ExternalID, nullTime(u.External.LastVerifiedAt),
		nullTime(u.External.LastRefreshedAt), u.PlanName, u.WordLimit, u.DataServer, u.Username)
}

// SetStatus persists a lazily detected subscription transition.
func (r *UserRepo) SetStatus(ctx context.Context, id int64, status model.SubscriptionStatus) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET subscription_status = ? WHERE id = ?", status, id)
	return err
}

// SetDataServer assigns url to a user that has no data server yet.  It
// reports false when another request assigned the user first.
func (r *UserRepo) SetDataServer(ctx context.Context, id int64, url string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET data_server = ? WHERE id = ? AND data_server = ''", url, id)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// AdjustWordCount applies delta atomically and returns the new count.  The
// count never drops below zero.
func (r *UserRepo) AdjustWordCount(ctx context.Context, id int64, delta int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET word_count = GREATEST(word_count + ?, 0) WHERE id = ?", delta, id); err != nil {
		return 0, err
	}
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT word_count FROM users WHERE id = ?", id).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return n, tx.Commit()
}

func (r *UserRepo) exec(ctx context.Context, username, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// unchanged rows report zero as well
		if _, err := r.GetByUsername(ctx, username); err != nil {
			return err
		}
	}
	return nil
}
