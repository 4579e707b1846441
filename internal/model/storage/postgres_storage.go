package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	// postgres driver
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"max.ks1230/beancount-bot/internal/entity/user"
)

const dsnTemplate = "user=%s password=%s host=%s port=%d dbname=%s sslmode=%s"

const usersTable = "authorized_users"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type config interface {
	Host() string
	Port() int
	SSLMode() string
	Username() string
	Password() string
	Database() string
}

// PostgresStorage expects
//
//	CREATE TABLE authorized_users (
//	    id            BIGINT PRIMARY KEY,
//	    username      TEXT NOT NULL DEFAULT '',
//	    authorized_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config config) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", fmt.Sprintf(dsnTemplate,
		config.Username(),
		config.Password(),
		config.Host(),
		config.Port(),
		config.Database(),
		config.SSLMode()))
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to database")
	}
	if err = db.Ping(); err != nil {
		return nil, errors.Wrap(err, "cannot connect to database")
	}
	return &PostgresStorage{db}, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func isAuthorizedQuery(id int64) sq.SelectBuilder {
	return psql.Select("1").
		From(usersTable).
		Where(sq.Eq{"id": id})
}

func authorizeQuery(rec user.Record) sq.InsertBuilder {
	return psql.Insert(usersTable).
		Columns("id", "username", "authorized_at").
		Values(rec.ID, rec.UserName, rec.AuthorizedAt).
		Suffix("ON CONFLICT(id) DO NOTHING")
}

func (s *PostgresStorage) IsAuthorized(ctx context.Context, id int64) (bool, error) {
	var one int
	err := isAuthorizedQuery(id).RunWith(s.db).QueryRowContext(ctx).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "get user")
	}
	return true, nil
}

func (s *PostgresStorage) Authorize(ctx context.Context, rec user.Record) error {
	if rec.AuthorizedAt.IsZero() {
		rec.AuthorizedAt = time.Now()
	}
	_, err := authorizeQuery(rec).RunWith(s.db).ExecContext(ctx)
	return errors.Wrap(err, "save user")
}
