/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package metastore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/chronoshard/qcoord/internal/dataset"
)

func init() {
	BackendRegistry["postgres"] = func(raw json.RawMessage) (Backend, error) {
		var cfg PostgresConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("metastore: invalid postgres config: %w", err)
		}
		return NewPostgres(cfg)
	}
}

// PostgresConfig is the subset of lib/pq's DSN parameters this backend needs;
// deployments that keep dataset definitions alongside other relational state
// use this rather than an object store.
type PostgresConfig struct {
	DSN       string `json:"dsn"`
	TableName string `json:"table"` // default "qcoord_datasets"
}

// Postgres is a relational metastore Backend: one row per dataset in a
// schema/name/definition(jsonb) table, created on first use.
type Postgres struct {
	db    *sql.DB
	table string
}

// NewPostgres opens the connection and ensures the backing table exists.
func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	table := cfg.TableName
	if table == "" {
		table = "qcoord_datasets"
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	p := &Postgres{db: db, table: table}
	if err := p.ensureTable(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureTable() error {
	_, err := p.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		database TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		definition JSONB NOT NULL,
		PRIMARY KEY (database, name)
	)`, p.table))
	return err
}

func (p *Postgres) Load(ref dataset.Ref) (*dataset.Dataset, error) {
	row := p.db.QueryRow(fmt.Sprintf(`SELECT definition FROM %s WHERE database = $1 AND name = $2`, p.table),
		ref.Database, ref.Name)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec datasetRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec.toDataset(), nil
}

func (p *Postgres) Save(ref dataset.Ref, d *dataset.Dataset) error {
	raw, err := json.Marshal(toRecord(d))
	if err != nil {
		return err
	}
	_, err = p.db.Exec(fmt.Sprintf(`INSERT INTO %s (database, name, definition) VALUES ($1, $2, $3)
		ON CONFLICT (database, name) DO UPDATE SET definition = EXCLUDED.definition`, p.table),
		ref.Database, ref.Name, raw)
	return err
}

func (p *Postgres) Delete(ref dataset.Ref) error {
	_, err := p.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE database = $1 AND name = $2`, p.table),
		ref.Database, ref.Name)
	return err
}

func (p *Postgres) List() ([]dataset.Ref, error) {
	rows, err := p.db.Query(fmt.Sprintf(`SELECT database, name FROM %s`, p.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []dataset.Ref
	for rows.Next() {
		var ref dataset.Ref
		if err := rows.Scan(&ref.Database, &ref.Name); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
