package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document lookup finds no matching row.
var ErrNotFound = errors.New("document not found")

// Documents provides typed get/save/list/delete access over the documents
// table: one collection-keyed JSON store shared by every domain entity.
type Documents struct {
	db *sql.DB
}

// NewDocuments wraps a *sql.DB as a Documents store.
func NewDocuments(db *sql.DB) *Documents {
	return &Documents{db: db}
}

// Save upserts value as the document at (collection, id). value is marshaled
// to JSON; callers pass a pointer to their domain struct.
func (d *Documents) Save(collection, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, id, err)
	}

	_, err = d.db.Exec(`
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, collection, id, string(data))
	if err != nil {
		return fmt.Errorf("save document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get loads the document at (collection, id) into dest, which must be a
// pointer. Returns ErrNotFound if no such document exists.
func (d *Documents) Get(collection, id string, dest any) error {
	var data string
	err := d.db.QueryRow(
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("unmarshal document %s/%s: %w", collection, id, err)
	}
	return nil
}

// List loads every document in collection, in insertion order, by appending
// to the slice dest points at (e.g. *[]Job).
func (d *Documents) List(collection string, dest any) error {
	rows, err := d.db.Query(
		`SELECT data FROM documents WHERE collection = ? ORDER BY created_at ASC`,
		collection,
	)
	if err != nil {
		return fmt.Errorf("list collection %s: %w", collection, err)
	}
	defer rows.Close()

	var raw []json.RawMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("scan document in collection %s: %w", collection, err)
		}
		raw = append(raw, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate collection %s: %w", collection, err)
	}

	combined, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-marshal collection %s: %w", collection, err)
	}
	if err := json.Unmarshal(combined, dest); err != nil {
		return fmt.Errorf("unmarshal collection %s: %w", collection, err)
	}
	return nil
}

// Delete removes the document at (collection, id). It is not an error to
// delete a document that does not exist.
func (d *Documents) Delete(collection, id string) error {
	_, err := d.db.Exec(`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Exists reports whether a document exists at (collection, id).
func (d *Documents) Exists(collection, id string) (bool, error) {
	var count int
	err := d.db.QueryRow(
		`SELECT COUNT(1) FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check existence of document %s/%s: %w", collection, id, err)
	}
	return count > 0, nil
}
