package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresLoader reads the enrollment table via database/sql.
type PostgresLoader struct {
	db      *sql.DB
	table   string
	timeout time.Duration
}

// NewPostgresLoader creates a loader for the given table. timeout bounds a
// single load; zero means no bound beyond the caller's context.
func NewPostgresLoader(db *sql.DB, table string, timeout time.Duration) *PostgresLoader {
	return &PostgresLoader{db: db, table: table, timeout: timeout}
}

// Load reads every row of the enrollment table.
func (l *PostgresLoader) Load(ctx context.Context) ([]Row, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	// Table name comes from config, not user input.
	query := fmt.Sprintf(
		`SELECT term, level, mode, metric, variable, student_count, description FROM %s`,
		l.table,
	)

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query enrollment table: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Term, &r.Level, &r.Mode, &r.Metric, &r.Variable, &r.Count, &r.Description); err != nil {
			return nil, fmt.Errorf("scan enrollment row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollment rows: %w", err)
	}

	return out, nil
}
