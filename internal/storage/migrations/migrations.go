// Package migrations embeds the versioned schema files for the trade
// record database (Postgres) and the tick database (ClickHouse).
//
// Files are named NNN_description.sql. The store packages apply the
// versions missing from their schema_migrations table in ascending order.
package migrations

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// ErrBadMigration is returned for misnamed, duplicate or unsplittable files.
var ErrBadMigration = errors.New("bad migration")

// Migration is one embedded schema file.
type Migration struct {
	Version int
	Name    string // file name, e.g. 001_trade_records.sql
	SQL     string
}

// Postgres returns the trade record schema migrations in version order.
func Postgres() ([]Migration, error) {
	return Load(PostgresFS, "postgres")
}

// Clickhouse returns the tick schema migrations in version order.
func Clickhouse() ([]Migration, error) {
	return Load(ClickhouseFS, "clickhouse")
}

// Load reads every .sql file in dir, ordered by the numeric version prefix.
// Empty files are skipped.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, err := versionOf(name)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("%w: %s and %s share version %d", ErrBadMigration, prev, name, version)
		}
		seen[version] = name

		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(data)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Pending returns the migrations whose version is not in applied, in order.
func Pending(all []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// Statements splits the file into single statements for drivers that reject
// multi-statement Exec (ClickHouse).
func (m Migration) Statements() ([]string, error) {
	if err := validateNoSemicolonInStrings(m.SQL); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadMigration, m.Name, err)
	}
	return splitStatements(m.SQL), nil
}

func versionOf(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("%w: %s has no NNN_ prefix", ErrBadMigration, name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s has no positive version", ErrBadMigration, name)
	}
	return v, nil
}

// splitStatements splits SQL on semicolons after dropping -- comment lines.
// It does not understand semicolons inside literals or block comments;
// validateNoSemicolonInStrings rejects the first case.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		switch {
		case sql[i] == '\'' && i+1 < len(sql) && sql[i+1] == '\'':
			i++
		case sql[i] == '\'':
			inString = !inString
		case sql[i] == ';' && inString:
			return errors.New("semicolon inside string literal")
		}
	}
	return nil
}
