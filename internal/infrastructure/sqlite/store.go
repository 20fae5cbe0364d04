// Package sqlite implementa los puertos de persistencia de CFDI sobre SQLite.
//
// Se usa en instalaciones de una sola sucursal (STORE_DRIVER=sqlite). El
// documento completo se guarda como JSON; estado, folio y versión viven en
// columnas para el control de concurrencia optimista y las consultas del
// conciliador. La base se abre en modo WAL con una sola conexión de escritura.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB conexión SQLite con el esquema migrado.
type DB struct {
	db *sql.DB
}

// Open abre (o crea) la base en path. ":memory:" crea una base efímera.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("abrir sqlite: %w", err)
	}
	// SQLite serializa escrituras; una conexión evita SQLITE_BUSY y mantiene
	// la misma base en modo :memory:.
	db.SetMaxOpenConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrar sqlite: %w", err)
	}
	return d, nil
}

// Close cierra la conexión.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fiscal_documents (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		location_id TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		folio       TEXT,
		total       TEXT NOT NULL,
		version     INTEGER NOT NULL,
		data        TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_fiscal_documents_folio
		ON fiscal_documents(tenant_id, folio) WHERE folio IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_fiscal_documents_status
		ON fiscal_documents(status, updated_at);
	CREATE INDEX IF NOT EXISTS idx_fiscal_documents_tenant
		ON fiscal_documents(tenant_id, created_at);

	CREATE TABLE IF NOT EXISTS document_sequences (
		tenant_id  TEXT NOT NULL,
		series     TEXT NOT NULL,
		last_value INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, series)
	);
	`
	_, err := d.db.Exec(schema)
	return err
}
