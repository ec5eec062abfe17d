package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Settings ---

const settingsColumns = `id, name, host_name, application_url, pterodactyl_url, pterodactyl_key,
	discord_invite, discord_id, discord_secret, discord_token, discord_webhook, discord_guild,
	registered_role, default_package, afk_interval, afk_coins, arcio_code, ram_price, cpu_price, disk_price`

func (s *PostgresStore) GetSettings(ctx context.Context) (*models.Settings, error) {
	var c models.Settings
	err := s.pool.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM settings WHERE id = 1`,
	).Scan(&c.ID, &c.Name, &c.HostName, &c.ApplicationURL, &c.PterodactylURL, &c.PterodactylKey,
		&c.DiscordInvite, &c.DiscordID, &c.DiscordSecret, &c.DiscordToken, &c.DiscordWebhook, &c.DiscordGuild,
		&c.RegisteredRole, &c.DefaultPackage, &c.AFKInterval, &c.AFKCoins, &c.ArcioCode,
		&c.RAMPrice, &c.CPUPrice, &c.DiskPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) SetSettings(ctx context.Context, u models.SettingsUpdate) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE settings SET
		   host_name = $1, application_url = $2, pterodactyl_url = $3, pterodactyl_key = $4,
		   discord_invite = $5, discord_id = $6, discord_secret = $7, discord_token = $8,
		   discord_webhook = $9, discord_guild = $10, registered_role = $11, afk_coins = $12,
		   arcio_code = $13, afk_interval = $14, ram_price = $15, cpu_price = $16, disk_price = $17
		 WHERE id = 1`,
		u.HostName, u.ApplicationURL, u.PterodactylURL, u.PterodactylKey,
		u.DiscordInvite, u.DiscordID, u.DiscordSecret, u.DiscordToken,
		u.DiscordWebhook, u.DiscordGuild, u.RegisteredRole, u.AFKCoins,
		u.ArcioCode, u.AFKInterval, u.RAMPrice, u.CPUPrice, u.DiskPrice)
	if err != nil {
		if isInvalidValue(err) {
			return ErrInvalidValue
		}
		return fmt.Errorf("set settings: %w", err)
	}
	return nil
}

// --- Packages ---

const packageColumns = `name, ram, cpu, disk, price, renewal_enabled, renewal_time, renewal_price, is_default`

func scanPackage(row pgx.Row) (*models.Package, error) {
	var p models.Package
	err := row.Scan(&p.Name, &p.RAM, &p.CPU, &p.Disk, &p.Price,
		&p.RenewalEnabled, &p.RenewalTime, &p.RenewalPrice, &p.Default)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePackage inserts a new, non-default package.
func (s *PostgresStore) CreatePackage(ctx context.Context, p *models.Package) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO packages (`+packageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)`,
		p.Name, p.RAM, p.CPU, p.Disk, p.Price, p.RenewalEnabled, p.RenewalTime, p.RenewalPrice)
	if err != nil {
		if isDuplicateKeyError(err) {
			return &DuplicateError{Field: "name"}
		}
		if isInvalidValue(err) {
			return ErrInvalidValue
		}
		return fmt.Errorf("create package: %w", err)
	}
	p.Default = false
	return nil
}

func (s *PostgresStore) GetPackage(ctx context.Context, name string) (*models.Package, error) {
	p, err := scanPackage(s.pool.QueryRow(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetDefaultPackage(ctx context.Context) (*models.Package, error) {
	p, err := scanPackage(s.pool.QueryRow(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE is_default LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default package: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPackages(ctx context.Context) ([]*models.Package, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+packageColumns+` FROM packages ORDER BY price, name`)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	pkgs := []*models.Package{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, rows.Err()
}

// --- Eggs ---

const eggColumns = `name, egg_id, docker_image, startup, databases, backups, environment`

func scanEgg(row pgx.Row) (*models.Egg, error) {
	var e models.Egg
	if err := row.Scan(&e.Name, &e.EggID, &e.DockerImage, &e.Startup,
		&e.Databases, &e.Backups, &e.Environment); err != nil {
		return nil, err
	}
	if e.Environment == nil {
		e.Environment = map[string]string{}
	}
	return &e, nil
}

func (s *PostgresStore) CreateEgg(ctx context.Context, e *models.Egg) error {
	env := e.Environment
	if env == nil {
		env = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO eggs (`+eggColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.Name, e.EggID, e.DockerImage, e.Startup, e.Databases, e.Backups, env)
	if err != nil {
		if isDuplicateKeyError(err) {
			return &DuplicateError{Field: "name"}
		}
		if isInvalidValue(err) {
			return ErrInvalidValue
		}
		return fmt.Errorf("create egg: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEgg(ctx context.Context, name string) (*models.Egg, error) {
	e, err := scanEgg(s.pool.QueryRow(ctx, `SELECT `+eggColumns+` FROM eggs WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get egg: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListEggs(ctx context.Context) ([]*models.Egg, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+eggColumns+` FROM eggs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list eggs: %w", err)
	}
	defer rows.Close()

	eggs := []*models.Egg{}
	for rows.Next() {
		e, err := scanEgg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan egg: %w", err)
		}
		eggs = append(eggs, e)
	}
	return eggs, rows.Err()
}

// --- Locations ---

func (s *PostgresStore) CreateLocation(ctx context.Context, l *models.Location) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO locations (id, name, enabled) VALUES ($1, $2, $3)`, l.ID, l.Name, l.Enabled)
	if err != nil {
		if isDuplicateKeyError(err) {
			return &DuplicateError{Field: "id"}
		}
		if isInvalidValue(err) {
			return ErrInvalidValue
		}
		return fmt.Errorf("create location: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLocation(ctx context.Context, name string) (*models.Location, error) {
	var l models.Location
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, enabled FROM locations WHERE name = $1 ORDER BY id LIMIT 1`, name,
	).Scan(&l.ID, &l.Name, &l.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) GetLocationByID(ctx context.Context, id int) (*models.Location, error) {
	var l models.Location
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, enabled FROM locations WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get location by id: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) ListLocations(ctx context.Context) ([]*models.Location, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, enabled FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	locs := []*models.Location{}
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Enabled); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locs = append(locs, &l)
	}
	return locs, rows.Err()
}

func (s *PostgresStore) SetLocationEnabled(ctx context.Context, id int, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE locations SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set location enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isInvalidValue reports whether a pgx error means a value the schema cannot
// hold: a CHECK violation, or a number outside its column's range.
func isInvalidValue(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23514", // check_violation
			"22003": // numeric_value_out_of_range
			return true
		}
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
