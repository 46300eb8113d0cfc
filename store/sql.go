package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

const (
	queryUserExists = "SELECT 1 FROM users WHERE name = ? OR phone_number = ? LIMIT 1"
	queryInsertUser = "INSERT INTO users(name, phone_number, passwd) VALUES(?, ?, ?)"
	querySelectHash = "SELECT passwd FROM users WHERE name = ? OR phone_number = ? LIMIT 1"

	mysqlDuplicateEntry = 1062
)

// SQLStore keeps users in the users(name, phone_number, passwd) table.
// Each call runs on one connection taken from a bounded pool.
type SQLStore struct {
	db     *sql.DB
	pool   *ConnPool[*sql.Conn]
	hasher Hasher
}

// OpenMySQL connects to dsn and reserves poolSize connections
func OpenMySQL(ctx context.Context, dsn string, poolSize, cost int) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	return NewSQLStore(ctx, sql.OpenDB(connector), poolSize, cost)
}

// NewSQLStore reserves poolSize connections from db. The store owns db.
func NewSQLStore(ctx context.Context, db *sql.DB, poolSize, cost int) (*SQLStore, error) {
	if poolSize <= 0 {
		poolSize = 1
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	conns := make([]*sql.Conn, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		c, err := db.Conn(ctx)
		if err == nil {
			err = c.PingContext(ctx)
		}
		if err != nil {
			for _, open := range conns {
				open.Close()
			}
			if c != nil {
				c.Close()
			}
			db.Close()
			return nil, fmt.Errorf("open store connection %d: %w", i, err)
		}
		conns = append(conns, c)
	}

	return &SQLStore{
		db:     db,
		pool:   NewConnPool(conns),
		hasher: Hasher{Cost: cost},
	}, nil
}

func (s *SQLStore) Register(ctx context.Context, name, phone, password string) (Outcome, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	defer s.pool.Release(conn)

	var one int
	err = conn.QueryRowContext(ctx, queryUserExists, name, phone).Scan(&one)
	switch {
	case err == nil:
		return OutcomeConflict, nil
	case !errors.Is(err, sql.ErrNoRows):
		return OutcomeFailed, fmt.Errorf("check user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return OutcomeFailed, err
	}
	if _, err := conn.ExecContext(ctx, queryInsertUser, name, phone, string(hash)); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return OutcomeConflict, nil
		}
		return OutcomeFailed, fmt.Errorf("insert user: %w", err)
	}
	return OutcomeOK, nil
}

// Login accepts either the user name or the phone number as name
func (s *SQLStore) Login(ctx context.Context, name, password string) (Outcome, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	defer s.pool.Release(conn)

	var hash string
	err = conn.QueryRowContext(ctx, querySelectHash, name, name).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return OutcomeFailed, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("select user: %w", err)
	}

	match, err := s.hasher.Check([]byte(hash), password)
	if err != nil || !match {
		return OutcomeFailed, err
	}
	return OutcomeOK, nil
}

// Free returns the number of idle pooled connections
func (s *SQLStore) Free() int { return s.pool.Free() }

// Close closes the pooled connections and the database handle
func (s *SQLStore) Close() error {
	err := s.pool.Close(func(c *sql.Conn) error { return c.Close() })
	if dbErr := s.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

var _ Store = (*SQLStore)(nil)

// Open returns the store selected by driver: "memory" or "mysql"
func Open(ctx context.Context, driver, dsn string, poolSize, cost int) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(cost), nil
	case "mysql":
		s, err := OpenMySQL(ctx, dsn, poolSize, cost)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}
