package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Marioshad/foodvault/internal/inventory/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"

	connectAttempts = 5
	connectInterval = 5 * time.Second
)

// gooseUpContext is a seam for testing goose.UpContext
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// connectBackoff is a seam so tests don't wait between attempts
var connectBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(connectAttempts-1, retry.NewConstant(connectInterval))
}

// PostgresStore implements Store on PostgreSQL through database/sql and pgx
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, waiting for the server to come up, and
// applies the embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	attempt := 0
	err = retry.Do(ctx, connectBackoff(), func(ctx context.Context) error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			slog.Warn("Database not ready", "attempt", attempt, "max_attempts", connectAttempts, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres after %d attempts: %w", attempt, err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return NewPostgresStore(db), nil
}

// RunMigrations applies the embedded goose migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresStore wraps an already connected and migrated database
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Conn exposes the pool so sessions can share it
func (p *PostgresStore) Conn() *sql.DB {
	return p.db
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (p *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	u := &User{Username: username, PasswordHash: passwordHash}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`,
		username, passwordHash).Scan(&u.ID)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, persistenceErr("creating user", err)
	}
	return u, nil
}

func (p *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	err := p.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, persistenceErr("getting user", err)
	}
	return u, nil
}

func (p *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	err := p.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceErr("getting user", err)
	}
	return u, nil
}

const locationColumns = `id, name, type, user_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanLocation(row scanner) (*Location, error) {
	l := &Location{}
	var typ string
	if err := row.Scan(&l.ID, &l.Name, &typ, &l.UserID); err != nil {
		return nil, err
	}
	l.Type = LocationType(typ)
	return l, nil
}

func (p *PostgresStore) ListLocations(ctx context.Context, owner int64) ([]*Location, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE user_id = $1 ORDER BY id`, owner)
	if err != nil {
		return nil, persistenceErr("listing locations", err)
	}
	defer rows.Close()

	locations := make([]*Location, 0)
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, persistenceErr("listing locations", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("listing locations", err)
	}
	return locations, nil
}

func (p *PostgresStore) GetLocation(ctx context.Context, owner, id int64) (*Location, error) {
	l, err := scanLocation(p.db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE id = $1 AND user_id = $2`, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("location", id)
	}
	if err != nil {
		return nil, persistenceErr("getting location", err)
	}
	return l, nil
}

func (p *PostgresStore) CreateLocation(ctx context.Context, owner int64, in NewLocation) (*Location, error) {
	l, err := scanLocation(p.db.QueryRowContext(ctx,
		`INSERT INTO locations (name, type, user_id) VALUES ($1, $2, $3)
		 RETURNING `+locationColumns,
		in.Name, string(in.Type), owner))
	if err != nil {
		return nil, persistenceErr("creating location", err)
	}
	return l, nil
}

func (p *PostgresStore) UpdateLocation(ctx context.Context, owner, id int64, patch LocationPatch) (*Location, error) {
	l, err := scanLocation(p.db.QueryRowContext(ctx,
		`UPDATE locations SET name = COALESCE($3, name), type = COALESCE($4, type)
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+locationColumns,
		id, owner, patch.Name, (*string)(patch.Type)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("location", id)
	}
	if err != nil {
		return nil, persistenceErr("updating location", err)
	}
	return l, nil
}

func (p *PostgresStore) DeleteLocation(ctx context.Context, owner, id int64) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM locations WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return ErrLocationInUse
		}
		return persistenceErr("deleting location", err)
	}
	return expectOneRow(res, "location", id)
}

const foodItemColumns = `id, name, quantity, unit, location_id, expiry_date, price, purchased, user_id`

func scanFoodItem(row scanner) (*FoodItem, error) {
	f := &FoodItem{}
	var (
		unit   string
		expiry time.Time
		price  sql.NullInt64
	)
	err := row.Scan(&f.ID, &f.Name, &f.Quantity, &unit, &f.LocationID, &expiry, &price, &f.Purchased, &f.UserID)
	if err != nil {
		return nil, err
	}
	f.Unit = Unit(unit)
	f.ExpiryDate = DateOf(expiry)
	if price.Valid {
		v := int(price.Int64)
		f.Price = &v
	}
	return f, nil
}

func (p *PostgresStore) ListFoodItems(ctx context.Context, owner int64) ([]*FoodItem, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+foodItemColumns+` FROM food_items WHERE user_id = $1 ORDER BY id`, owner)
	if err != nil {
		return nil, persistenceErr("listing food items", err)
	}
	defer rows.Close()

	items := make([]*FoodItem, 0)
	for rows.Next() {
		f, err := scanFoodItem(rows)
		if err != nil {
			return nil, persistenceErr("listing food items", err)
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("listing food items", err)
	}
	return items, nil
}

func (p *PostgresStore) GetFoodItem(ctx context.Context, owner, id int64) (*FoodItem, error) {
	f, err := scanFoodItem(p.db.QueryRowContext(ctx,
		`SELECT `+foodItemColumns+` FROM food_items WHERE id = $1 AND user_id = $2`, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("food item", id)
	}
	if err != nil {
		return nil, persistenceErr("getting food item", err)
	}
	return f, nil
}

func (p *PostgresStore) CreateFoodItem(ctx context.Context, owner int64, in NewFoodItem) (*FoodItem, error) {
	purchased := in.Purchased
	if purchased.IsZero() {
		purchased = time.Now()
	}
	f, err := scanFoodItem(p.db.QueryRowContext(ctx,
		`INSERT INTO food_items (name, quantity, unit, location_id, expiry_date, price, purchased, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+foodItemColumns,
		in.Name, in.Quantity, string(in.Unit), in.LocationID, in.ExpiryDate.Time, nullableInt(in.Price), purchased, owner))
	if pgCode(err) == pgForeignKeyViolation {
		return nil, missingLocation(in.LocationID)
	}
	if err != nil {
		return nil, persistenceErr("creating food item", err)
	}
	return f, nil
}

func (p *PostgresStore) UpdateFoodItem(ctx context.Context, owner, id int64, patch FoodItemPatch) (*FoodItem, error) {
	var expiry *time.Time
	if patch.ExpiryDate != nil {
		expiry = &patch.ExpiryDate.Time
	}
	f, err := scanFoodItem(p.db.QueryRowContext(ctx,
		`UPDATE food_items SET
		   name = COALESCE($3, name),
		   quantity = COALESCE($4, quantity),
		   unit = COALESCE($5, unit),
		   location_id = COALESCE($6, location_id),
		   expiry_date = COALESCE($7, expiry_date),
		   price = COALESCE($8, price)
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+foodItemColumns,
		id, owner, patch.Name, nullableInt(patch.Quantity), (*string)(patch.Unit), patch.LocationID, expiry, nullableInt(patch.Price)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("food item", id)
	}
	if pgCode(err) == pgForeignKeyViolation && patch.LocationID != nil {
		return nil, missingLocation(*patch.LocationID)
	}
	if err != nil {
		return nil, persistenceErr("updating food item", err)
	}
	return f, nil
}

func (p *PostgresStore) DeleteFoodItem(ctx context.Context, owner, id int64) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM food_items WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return persistenceErr("deleting food item", err)
	}
	return expectOneRow(res, "food item", id)
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func expectOneRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistenceErr("deleting "+entity, err)
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
