// Package sqlstore implements storage.Store on database/sql for SQLite
// (modernc.org/sqlite) and Postgres (pgx stdlib).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Imaginaryverse/spending-habits/internal/core"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *applog.Logger
	now     func() time.Time
}

// Options configures Open. DSN is a file path (or ":memory:") for SQLite
// and a postgres:// URL for Postgres.
type Options struct {
	Dialect Dialect
	DSN     string
	Logger  *applog.Logger
}

// Open connects, pings and migrates the database.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = applog.Discard()
	}
	logger := opts.Logger.WithComponent(applog.ComponentStorage)

	if opts.Dialect == SQLite && opts.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(opts.Dialect.DriverName(), opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Dialect, err)
	}
	if opts.Dialect == SQLite {
		// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db, opts.Dialect, opts.DSN); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database ready", applog.FieldBackend, opts.Dialect.Name())

	return &Store{db: db, dialect: opts.Dialect, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

const itemColumns = `i.id, i.user_id, i.category_id, c.name, i.title, i.comment, i.amount, i.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanItem reads one spending item. An unreadable created_at leaves the
// item with a zero CreatedAt instead of failing the whole query.
func (s *Store) scanItem(row rowScanner) (core.SpendingItem, error) {
	var (
		item      core.SpendingItem
		createdAt sql.NullString
	)
	if err := row.Scan(&item.ID, &item.UserID, &item.CategoryID, &item.CategoryName,
		&item.Title, &item.Comment, &item.Amount, &createdAt); err != nil {
		return core.SpendingItem{}, err
	}
	if createdAt.Valid {
		if t, ok := core.ParseTimestamp(createdAt.String, time.UTC); ok {
			item.CreatedAt = t
		} else {
			s.logger.Warn("Unparseable spending item timestamp", applog.FieldItemID, item.ID, "value", createdAt.String)
		}
	}
	return item, nil
}

func (s *Store) FetchSpendingItems(ctx context.Context, filter core.ItemFilter) ([]core.SpendingItem, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "i.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.CategoryID != "" {
		where = append(where, "i.category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if !filter.From.IsZero() {
		where = append(where, "i.created_at >= ?")
		args = append(args, s.dialect.TimeArg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "i.created_at < ?")
		args = append(args, s.dialect.TimeArg(filter.To))
	}

	query := `SELECT ` + itemColumns + `
		FROM spending_items i
		JOIN spending_categories c ON c.id = i.category_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.created_at DESC, i.id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query spending items: %w", err)
	}
	defer rows.Close()

	items := make([]core.SpendingItem, 0)
	for rows.Next() {
		item, err := s.scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan spending item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spending items: %w", err)
	}
	return items, nil
}

func (s *Store) GetSpendingItem(ctx context.Context, userID, id string) (core.SpendingItem, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+itemColumns+`
		FROM spending_items i
		JOIN spending_categories c ON c.id = i.category_id
		WHERE i.id = ? AND i.user_id = ?`), id, userID)
	item, err := s.scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SpendingItem{}, core.ErrNotFound
	}
	if err != nil {
		return core.SpendingItem{}, fmt.Errorf("get spending item: %w", err)
	}
	return item, nil
}

func (s *Store) CreateSpendingItem(ctx context.Context, item core.SpendingItem) (core.SpendingItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO spending_items
		(id, user_id, category_id, title, comment, amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		item.ID, item.UserID, item.CategoryID, item.Title, item.Comment, item.Amount,
		s.dialect.TimeArg(item.CreatedAt), s.dialect.TimeArg(now))
	if err != nil {
		return core.SpendingItem{}, fmt.Errorf("insert spending item: %w", err)
	}
	return s.GetSpendingItem(ctx, item.UserID, item.ID)
}

func (s *Store) UpdateSpendingItem(ctx context.Context, item core.SpendingItem) (core.SpendingItem, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE spending_items
		SET category_id = ?, title = ?, comment = ?, amount = ?, created_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`),
		item.CategoryID, item.Title, item.Comment, item.Amount,
		s.dialect.TimeArg(item.CreatedAt), s.dialect.TimeArg(s.now()),
		item.ID, item.UserID)
	if err != nil {
		return core.SpendingItem{}, fmt.Errorf("update spending item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.SpendingItem{}, core.ErrNotFound
	}
	return s.GetSpendingItem(ctx, item.UserID, item.ID)
}

func (s *Store) DeleteSpendingItem(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM spending_items WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("delete spending item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]core.SpendingCategory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description FROM spending_categories ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var cats []core.SpendingCategory
	for rows.Next() {
		var c core.SpendingCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *Store) GetCategory(ctx context.Context, id string) (core.SpendingCategory, error) {
	var c core.SpendingCategory
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, name, description FROM spending_categories WHERE id = ?`), id).
		Scan(&c.ID, &c.Name, &c.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SpendingCategory{}, core.ErrNotFound
	}
	if err != nil {
		return core.SpendingCategory{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (core.UserProfile, error) {
	var p core.UserProfile
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, user_id, name, monthly_spending_limit
		FROM user_profiles WHERE user_id = ?`), userID).
		Scan(&p.ID, &p.UserID, &p.Name, &p.MonthlySpendingLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserProfile{}, core.ErrNotFound
	}
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p core.UserProfile) (core.UserProfile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO user_profiles (id, user_id, name, monthly_spending_limit)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			name = excluded.name,
			monthly_spending_limit = excluded.monthly_spending_limit`),
		p.ID, p.UserID, p.Name, p.MonthlySpendingLimit)
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("save profile: %w", err)
	}
	return s.GetProfile(ctx, p.UserID)
}

func (s *Store) ListProfilesWithLimit(ctx context.Context) ([]core.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, name, monthly_spending_limit
		FROM user_profiles WHERE monthly_spending_limit > 0 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []core.UserProfile
	for rows.Next() {
		var p core.UserProfile
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.MonthlySpendingLimit); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`),
		u.ID, u.Email, u.PasswordHash, s.dialect.TimeArg(u.CreatedAt))
	if isUniqueViolation(err) {
		return core.User{}, core.ErrConflict
	}
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return s.getUser(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) GetUserByID(ctx context.Context, id string) (core.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) getUser(ctx context.Context, column, value string) (core.User, error) {
	var (
		u         core.User
		createdAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, email, password_hash, created_at FROM users WHERE `+column+` = ?`), value).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt, _ = core.ParseTimestamp(createdAt.String, time.UTC)
	return u, nil
}
