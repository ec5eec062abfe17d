package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// --- Users ---

const userColumns = `id, username, email, password, pterodactyl_id, used_ram, used_cpu, used_disk,
	package, extra_ram, extra_cpu, extra_disk, coins, registered_ip, lastlogin_ip, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.PterodactylID,
		&u.Used.RAM, &u.Used.CPU, &u.Used.Disk, &u.Package,
		&u.Extra.RAM, &u.Extra.CPU, &u.Extra.Disk, &u.Coins,
		&u.RegisteredIP, &u.LastLoginIP, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts the user in a single statement. Uniqueness of email and
// username is enforced by the table constraints; on a collision the returned
// *DuplicateError names "email" whenever the email is taken, else "username".
func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, username, email, password, pterodactyl_id, used_ram, used_cpu, used_disk,
		   package, extra_ram, extra_cpu, extra_disk, coins, registered_ip, lastlogin_ip, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING created_at, updated_at`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.PterodactylID,
		u.Used.RAM, u.Used.CPU, u.Used.Disk, u.Package,
		u.Extra.RAM, u.Extra.CPU, u.Extra.Disk, u.Coins,
		u.RegisteredIP, u.LastLoginIP, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err == nil {
		return nil
	}
	if !isDuplicateKeyError(err) {
		return fmt.Errorf("create user: %w", err)
	}

	var emailTaken bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, u.Email,
	).Scan(&emailTaken); err != nil {
		return fmt.Errorf("classify duplicate user: %w", err)
	}
	if emailTaken {
		return &DuplicateError{Field: "email"}
	}
	return &DuplicateError{Field: "username"}
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) SetPterodactylID(ctx context.Context, username, id string) error {
	return s.execUser(ctx, "set pterodactyl id",
		`UPDATE users SET pterodactyl_id = $2, updated_at = NOW() WHERE username = $1`, username, id)
}

func (s *PostgresStore) SetPasswordHash(ctx context.Context, email, hash string) error {
	return s.execUser(ctx, "set password",
		`UPDATE users SET password = $2, updated_at = NOW() WHERE email = $1`, email, hash)
}

// AddUsed increments the usage counters in place. A result below zero
// violates the table CHECK and yields ErrInvalidValue.
func (s *PostgresStore) AddUsed(ctx context.Context, email string, d models.Resources) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE users SET used_ram = used_ram + $2, used_cpu = used_cpu + $3, used_disk = used_disk + $4,
		   updated_at = NOW()
		 WHERE email = $1
		 RETURNING `+userColumns, email, d.RAM, d.CPU, d.Disk))
	return u, classifyUserUpdate("add used", err)
}

func (s *PostgresStore) SetUsed(ctx context.Context, email string, used models.Resources) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE users SET used_ram = $2, used_cpu = $3, used_disk = $4, updated_at = NOW()
		 WHERE email = $1
		 RETURNING `+userColumns, email, used.RAM, used.CPU, used.Disk))
	return u, classifyUserUpdate("set used", err)
}

func (s *PostgresStore) SetCoins(ctx context.Context, email string, coins int) error {
	return s.execUser(ctx, "set coins",
		`UPDATE users SET coins = $2, updated_at = NOW() WHERE email = $1`, email, coins)
}

// AddCoins adds delta to the balance and returns the new balance.
func (s *PostgresStore) AddCoins(ctx context.Context, email string, delta int) (int, error) {
	var coins int
	err := s.pool.QueryRow(ctx,
		`UPDATE users SET coins = coins + $2, updated_at = NOW() WHERE email = $1 RETURNING coins`,
		email, delta).Scan(&coins)
	if err := classifyUserUpdate("add coins", err); err != nil {
		return 0, err
	}
	return coins, nil
}

func (s *PostgresStore) SetExtra(ctx context.Context, email string, res Resource, value int) error {
	var column string
	switch res {
	case ResourceRAM:
		column = "extra_ram"
	case ResourceCPU:
		column = "extra_cpu"
	case ResourceDisk:
		column = "extra_disk"
	default:
		return fmt.Errorf("set extra: unknown resource %q", res)
	}
	return s.execUser(ctx, "set extra "+string(res),
		`UPDATE users SET `+column+` = $2, updated_at = NOW() WHERE email = $1`, email, value)
}

func (s *PostgresStore) ExistsByRegisteredIP(ctx context.Context, ip string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE registered_ip = $1)`, ip).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check registered ip: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ExistsByLastLoginIP(ctx context.Context, ip string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lastlogin_ip = $1)`, ip).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check last login ip: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SetLastLoginIP(ctx context.Context, email, ip string) error {
	return s.execUser(ctx, "set last login ip",
		`UPDATE users SET lastlogin_ip = $2, updated_at = NOW() WHERE email = $1`, email, ip)
}

// execUser runs a single-row user UPDATE and maps zero affected rows to ErrNotFound.
func (s *PostgresStore) execUser(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		if isInvalidValue(err) {
			return ErrInvalidValue
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func classifyUserUpdate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case isInvalidValue(err):
		return ErrInvalidValue
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, email, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.Email, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession returns the session if it exists and has not expired.
func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, expires_at, created_at FROM sessions WHERE id = $1 AND expires_at > NOW()`, id,
	).Scan(&sess.ID, &sess.Email, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
