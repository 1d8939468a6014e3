package stubbackend

import (
	"context"
	"database/sql"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var (
	ErrUserNotFound     = goerrors.New("user not found", goerrors.CategoryNotFound).WithTextCode("STUB_USER_NOT_FOUND").WithCode(goerrors.CodeNotFound)
	ErrResourceNotFound = goerrors.New("resource not found", goerrors.CategoryNotFound).WithTextCode("STUB_RESOURCE_NOT_FOUND").WithCode(goerrors.CodeNotFound)
	ErrUserExists       = goerrors.New("username already registered", goerrors.CategoryConflict).WithTextCode("STUB_USERNAME_TAKEN").WithCode(goerrors.CodeConflict)
	ErrEmailExists      = goerrors.New("email already registered", goerrors.CategoryConflict).WithTextCode("STUB_EMAIL_TAKEN").WithCode(goerrors.CodeConflict)
)

// Store keeps users and resources in an in-memory SQLite database
type Store struct {
	db   *bun.DB
	cost int
}

// OpenStore creates the schema in a fresh in-memory database
func OpenStore(ctx context.Context, cost int) (*Store, error) {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite")
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	s := &Store{db: db, cost: cost}

	models := []any{(*User)(nil), (*Resource)(nil)}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			_ = db.Close()
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create stub schema")
		}
	}
	return s, nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser hashes password and inserts the account
func (s *Store) CreateUser(ctx context.Context, username, email, password string, isAdmin bool) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))

	if n, err := s.db.NewSelect().Model((*User)(nil)).Where("username = ?", username).Count(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check username")
	} else if n > 0 {
		return nil, ErrUserExists
	}
	if n, err := s.db.NewSelect().Model((*User)(nil)).Where("email = ?", email).Count(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email")
	} else if n > 0 {
		return nil, ErrEmailExists
	}

	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
	}
	if _, err := s.db.NewInsert().Model(user).Returning("*").Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert user")
	}
	return user, nil
}

// Authenticate returns the user when password matches
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user := &User{}
	err := s.db.NewSelect().Model(user).Where("username = ?", strings.TrimSpace(username)).Scan(ctx)
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
	}
	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, err
	}
	return user, nil
}

// UserByID loads one user
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	user := &User{}
	if err := s.db.NewSelect().Model(user).Where("id = ?", id).Scan(ctx); err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
	}
	return user, nil
}

// PutResource inserts or replaces a resource. A non-empty password marks
// it protected.
func (s *Store) PutResource(ctx context.Context, res *Resource, password string) error {
	if password != "" {
		hash, err := HashPassword(password, s.cost)
		if err != nil {
			return err
		}
		res.PasswordHash = hash
		res.IsProtected = true
	}

	_, err := s.db.NewInsert().
		Model(res).
		On("CONFLICT (kind, id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("summary = EXCLUDED.summary").
		Set("content = EXCLUDED.content").
		Set("is_protected = EXCLUDED.is_protected").
		Set("password_hash = EXCLUDED.password_hash").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store resource")
	}
	return nil
}

// Resource loads one resource
func (s *Store) Resource(ctx context.Context, kind string, id int64) (*Resource, error) {
	res := &Resource{}
	err := s.db.NewSelect().Model(res).Where("kind = ?", kind).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load resource")
	}
	return res, nil
}

// VerifyResourcePassword checks password against a protected resource
func (s *Store) VerifyResourcePassword(ctx context.Context, kind string, id int64, password string) (*Resource, error) {
	res, err := s.Resource(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !res.IsProtected {
		return res, nil
	}
	if password == "" {
		return nil, ErrMismatchedPassword
	}
	if err := ComparePasswordAndHash(password, res.PasswordHash); err != nil {
		return nil, err
	}
	return res, nil
}
