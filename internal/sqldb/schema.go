package sqldb

import (
	"context"
	"fmt"
	"strings"
)

const (
	mysqlSchemaQuery = `SELECT table_name, column_name, column_type
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`

	postgresSchemaQuery = `SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

	sqliteSchemaQuery = `SELECT name, sql
FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`
)

// Schema introspects the connected database and renders it as a text
// snippet for prompt grounding. Called fresh at the start of every turn so
// prompts never see a stale snapshot.
func (c *Conn) Schema(ctx context.Context) (string, error) {
	if c.driver == DriverSQLite {
		return c.sqliteSchema(ctx)
	}

	query := mysqlSchemaQuery
	if c.driver == DriverPostgres {
		query = postgresSchemaQuery
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return "", &ConnectError{Err: fmt.Errorf("schema introspection failed: %w", err)}
	}
	defer rows.Close()

	var b strings.Builder
	currentTable := ""
	for rows.Next() {
		var table, column, colType string
		if err := rows.Scan(&table, &column, &colType); err != nil {
			return "", &ConnectError{Err: fmt.Errorf("schema introspection failed: %w", err)}
		}
		if table != currentTable {
			if currentTable != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "Table %s:\n", table)
			currentTable = table
		}
		fmt.Fprintf(&b, "  %s (%s)\n", column, colType)
	}
	if err := rows.Err(); err != nil {
		return "", &ConnectError{Err: fmt.Errorf("schema introspection failed: %w", err)}
	}

	if currentTable == "" {
		return "(no tables found)", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Conn) sqliteSchema(ctx context.Context) (string, error) {
	rows, err := c.db.QueryContext(ctx, sqliteSchemaQuery)
	if err != nil {
		return "", &ConnectError{Err: fmt.Errorf("schema introspection failed: %w", err)}
	}
	defer rows.Close()

	var ddls []string
	for rows.Next() {
		var name, ddl string
		if err := rows.Scan(&name, &ddl); err != nil {
			return "", &ConnectError{Err: fmt.Errorf("schema introspection failed: %w", err)}
		}
		ddls = append(ddls, strings.TrimSpace(ddl))
	}
	if err := rows.Err(); err != nil {
		return "", &ConnectError{Err: fmt.Errorf("schema introspection failed: %w", err)}
	}

	if len(ddls) == 0 {
		return "(no tables found)", nil
	}
	return strings.Join(ddls, "\n\n"), nil
}
