package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that the audit schema is in place.
type SchemaValidator struct {
	db *sql.DB
}

func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate verifies required tables, indexes and audit_events columns.
func (v *SchemaValidator) Validate() error {
	for _, table := range []string{"audit_events", "schema_migrations"} {
		ok, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !ok {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}

	for _, index := range []string{"idx_audit_events_occurred_at", "idx_audit_events_user"} {
		ok, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("check index %s: %w", index, err)
		}
		if !ok {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}

	return v.validateColumns("audit_events", map[string]string{
		"id":            "TEXT",
		"occurred_at":   "INTEGER",
		"kind":          "TEXT",
		"user_id":       "TEXT",
		"window_id":     "TEXT",
		"connection_id": "TEXT",
		"warning_type":  "TEXT",
		"case_count":    "INTEGER",
		"detail":        "TEXT",
	})
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(table string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return err
		}
		found[name] = colType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, colType := range expected {
		got, ok := found[column]
		if !ok {
			return fmt.Errorf("%s is missing column %s", table, column)
		}
		if got != colType {
			return fmt.Errorf("%s.%s has type %s, want %s", table, column, got, colType)
		}
	}
	return nil
}
