package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Dialect names the directory holding one database's migrations.
type Dialect string

const (
	DialectPostgres   Dialect = "postgres"
	DialectClickhouse Dialect = "clickhouse"
)

//go:embed postgres/*.sql clickhouse/*.sql
var embedded embed.FS

// Files returns the migration file names of d in apply order.
// Names carry a numeric prefix so lexical order is apply order.
func Files(d Dialect) ([]string, error) {
	entries, err := fs.ReadDir(embedded, string(d))
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", d, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Read returns the SQL of one migration file of d.
func Read(d Dialect, name string) (string, error) {
	data, err := fs.ReadFile(embedded, string(d)+"/"+name)
	if err != nil {
		return "", fmt.Errorf("read migration %s/%s: %w", d, name, err)
	}
	return string(data), nil
}
