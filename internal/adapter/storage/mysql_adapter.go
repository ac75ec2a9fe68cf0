package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sweets (
		id         CHAR(36)     NOT NULL PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		category   VARCHAR(255) NOT NULL,
		price      DOUBLE       NOT NULL,
		quantity   INT          NOT NULL DEFAULT 0,
		created_at DATETIME(6)  NOT NULL,
		updated_at DATETIME(6)  NOT NULL,
		CONSTRAINT chk_sweets_quantity CHECK (quantity >= 0),
		CONSTRAINT chk_sweets_price CHECK (price >= 0),
		KEY idx_sweets_created_at (created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		username      VARCHAR(64)  NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(16)  NOT NULL DEFAULT 'user',
		created_at    DATETIME(6)  NOT NULL,
		updated_at    DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_users_email (email),
		UNIQUE KEY uq_users_username (username)
	)`,
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type MySQLAdapter struct {
	conn *Connection
}

func NewMySQLAdapter(conn *Connection) *MySQLAdapter {
	return &MySQLAdapter{conn: conn}
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	db, err := m.conn.DB(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (m *MySQLAdapter) Close() error {
	return m.conn.Close()
}

func (m *MySQLAdapter) CreateSweet(ctx context.Context, s domain.Sweet) error {
	db, err := m.conn.DB(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sweets (id, name, category, price, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Category, s.Price, s.Quantity, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sweet: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListSweets(ctx context.Context, f domain.SweetFilter) ([]domain.Sweet, error) {
	db, err := m.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if f.Name != "" {
		where = append(where, "LOWER(name) LIKE ? ESCAPE '!'")
		args = append(args, "%"+escapeLike(strings.ToLower(f.Name))+"%")
	}
	if f.Category != "" {
		where = append(where, "LOWER(category) LIKE ? ESCAPE '!'")
		args = append(args, "%"+escapeLike(strings.ToLower(f.Category))+"%")
	}
	if f.MinPrice != nil {
		where = append(where, "price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where = append(where, "price <= ?")
		args = append(args, *f.MaxPrice)
	}

	query := `SELECT id, name, category, price, quantity, created_at, updated_at FROM sweets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sweets: %w", err)
	}
	defer rows.Close()

	var out []domain.Sweet
	for rows.Next() {
		var s domain.Sweet
		if err := rows.Scan(&s.ID, &s.Name, &s.Category, &s.Price, &s.Quantity, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sweet: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweets: %w", err)
	}
	return out, nil
}

func (m *MySQLAdapter) GetSweet(ctx context.Context, id string) (*domain.Sweet, error) {
	db, err := m.conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	return getSweet(ctx, db, id, false)
}

func getSweet(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Sweet, error) {
	query := `SELECT id, name, category, price, quantity, created_at, updated_at FROM sweets WHERE id = ?`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var s domain.Sweet
	err := q.QueryRowContext(ctx, query, id).
		Scan(&s.ID, &s.Name, &s.Category, &s.Price, &s.Quantity, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query sweet: %w", err)
	}
	return &s, nil
}

func (m *MySQLAdapter) UpdateSweet(ctx context.Context, id string, mutate func(*domain.Sweet) error) (*domain.Sweet, error) {
	db, err := m.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	s, err := getSweet(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := mutate(s); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sweets
		SET name = ?, category = ?, price = ?, quantity = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.Category, s.Price, s.Quantity, s.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update sweet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

func (m *MySQLAdapter) DeleteSweet(ctx context.Context, id string) error {
	db, err := m.conn.DB(ctx)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, `DELETE FROM sweets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sweet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete sweet: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MySQLAdapter) DecrementStock(ctx context.Context, id string, quantity int, at time.Time) (*domain.Sweet, error) {
	db, err := m.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE sweets
		SET quantity = quantity - ?, updated_at = ?
		WHERE id = ? AND quantity >= ?`,
		quantity, at, id, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	s, err := getSweet(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, &domain.InsufficientStockError{Available: s.Quantity}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

func (m *MySQLAdapter) IncrementStock(ctx context.Context, id string, quantity int, at time.Time) (*domain.Sweet, error) {
	db, err := m.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE sweets
		SET quantity = quantity + ?, updated_at = ?
		WHERE id = ? AND quantity <= ? - ?`,
		quantity, at, id, domain.MaxQuantity, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("increment stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("increment stock: %w", err)
	}

	s, err := getSweet(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrInvalidQuantity
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

func (m *MySQLAdapter) CreateUser(ctx context.Context, u domain.User) error {
	db, err := m.conn.DB(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt,
	)
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.getUser(ctx, "email", email)
}

func (m *MySQLAdapter) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return m.getUser(ctx, "username", username)
}

// column is one of the fixed names above, never caller input
func (m *MySQLAdapter) getUser(ctx context.Context, column, value string) (*domain.User, error) {
	db, err := m.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	var (
		u    domain.User
		role string
	)
	err = db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, role, created_at, updated_at
		FROM users WHERE `+column+` = ?`, value,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	u.Role, _ = domain.ParseRole(role)
	return &u, nil
}

// escapeLike makes s match literally inside a LIKE pattern using '!' as the
// escape character.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
