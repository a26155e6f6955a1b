// Package store is the CLI's bookkeeping persistence layer: one row per
// network/container run, so commands such as `orchestra net-ls` can
// report on networks beyond this process's lifetime.
// Grounded on boxer.go's sqlite usage (sql.Open("sqlite", ...), embedded
// schema applied at open time, one method per query); the
// sqlc-generated db.Queries package it depended on was not part of the
// retrieved teacher sources, so these query methods are hand-written in
// the same shape: one struct of named params per write, one method per
// query.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/banksean/orchestra/orcherr"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the bookkeeping database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and
// brings its schema up to date via embedded migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindIO, err, "open store database "+path)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "load embedded migrations")
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "construct sqlite migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "construct migrator")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return orcherr.Wrap(orcherr.KindIO, err, "apply migrations")
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// InsertNetworkParams is the named-parameter struct for InsertNetwork.
type InsertNetworkParams struct {
	ID                string
	Name              string
	UUID              string
	DockerNetworkName string
}

// InsertNetwork records a newly created network.
func (s *Store) InsertNetwork(ctx context.Context, p InsertNetworkParams) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO networks (id, name, uuid, docker_network_name) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.UUID, p.DockerNetworkName)
	if err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "insert network "+p.Name)
	}
	return nil
}

// MarkNetworkTerminated stamps a network's terminated_at.
func (s *Store) MarkNetworkTerminated(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE networks SET terminated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "mark network terminated "+id)
	}
	return nil
}

// NetworkRow is one row of the networks table.
type NetworkRow struct {
	ID                string
	Name              string
	UUID              string
	DockerNetworkName string
	CreatedAt         time.Time
	TerminatedAt      sql.NullTime
}

// ListNetworks returns every recorded network, most recent first.
func (s *Store) ListNetworks(ctx context.Context) ([]NetworkRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, uuid, docker_network_name, created_at, terminated_at FROM networks ORDER BY created_at DESC`)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindIO, err, "list networks")
	}
	defer rows.Close()

	var out []NetworkRow
	for rows.Next() {
		var r NetworkRow
		if err := rows.Scan(&r.ID, &r.Name, &r.UUID, &r.DockerNetworkName, &r.CreatedAt, &r.TerminatedAt); err != nil {
			return nil, orcherr.Wrap(orcherr.KindIO, err, "scan network row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, orcherr.Wrap(orcherr.KindIO, err, "iterate network rows")
	}
	return out, nil
}

// GetLatestNetworkByName returns the most recently created, not-yet-
// terminated network recorded under name. Used by the CLI's `net wait`/
// `net down` commands to recover a network's docker-level identity
// across separate process invocations, since a containernet.Network
// value itself does not survive past the process that built it.
func (s *Store) GetLatestNetworkByName(ctx context.Context, name string) (NetworkRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, uuid, docker_network_name, created_at, terminated_at
		   FROM networks
		  WHERE name = ? AND terminated_at IS NULL
		  ORDER BY created_at DESC LIMIT 1`, name)
	var r NetworkRow
	if err := row.Scan(&r.ID, &r.Name, &r.UUID, &r.DockerNetworkName, &r.CreatedAt, &r.TerminatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NetworkRow{}, orcherr.New(orcherr.KindContract, "no active network recorded with name "+name)
		}
		return NetworkRow{}, orcherr.Wrap(orcherr.KindIO, err, "get network "+name)
	}
	return r, nil
}

// InsertContainerParams is the named-parameter struct for InsertContainer.
type InsertContainerParams struct {
	ID                string
	NetworkID         string
	Name              string
	Image             string
	DockerContainerID string
}

// InsertContainer records a newly created container.
func (s *Store) InsertContainer(ctx context.Context, p InsertContainerParams) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO containers (id, network_id, name, image, docker_container_id) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.NetworkID, p.Name, p.Image, p.DockerContainerID)
	if err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "insert container "+p.Name)
	}
	return nil
}

// MarkContainerExitedParams is the named-parameter struct for
// MarkContainerExited.
type MarkContainerExitedParams struct {
	ID       string
	ExitCode int
	Success  bool
}

// MarkContainerExited records a container's terminal exit status.
func (s *Store) MarkContainerExited(ctx context.Context, p MarkContainerExitedParams) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE containers SET exited_at = CURRENT_TIMESTAMP, exit_code = ?, success = ? WHERE id = ?`,
		p.ExitCode, p.Success, p.ID)
	if err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "mark container exited "+p.ID)
	}
	return nil
}

// ContainerRow is one row of the containers table.
type ContainerRow struct {
	ID                string
	NetworkID         string
	Name              string
	Image             string
	DockerContainerID string
	CreatedAt         time.Time
	ExitedAt          sql.NullTime
	ExitCode          sql.NullInt64
	Success           sql.NullBool
}

// ListContainersByNetwork returns every container recorded under
// networkID, in creation order.
func (s *Store) ListContainersByNetwork(ctx context.Context, networkID string) ([]ContainerRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, network_id, name, image, docker_container_id, created_at, exited_at, exit_code, success
		   FROM containers WHERE network_id = ? ORDER BY created_at ASC`, networkID)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindIO, err, "list containers for network "+networkID)
	}
	defer rows.Close()

	var out []ContainerRow
	for rows.Next() {
		var r ContainerRow
		if err := rows.Scan(&r.ID, &r.NetworkID, &r.Name, &r.Image, &r.DockerContainerID, &r.CreatedAt, &r.ExitedAt, &r.ExitCode, &r.Success); err != nil {
			return nil, orcherr.Wrap(orcherr.KindIO, err, "scan container row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, orcherr.Wrap(orcherr.KindIO, err, "iterate container rows")
	}
	return out, nil
}
