package sqlsource

import (
	"fmt"
	"strings"
)

// Dialect handles the differences of SQL dialects.
type Dialect interface {
	// Name returns the name of the dialect.
	Name() string

	// Quote quotes a table or column name. Dotted names are quoted per segment.
	Quote(name string) string

	// Placeholder returns the placeholder of the n-th bound value, counting from 1.
	Placeholder(n int) string
}

type dialect struct {
	name        string
	begin, end  string
	placeholder string
}

// Predefined dialects.
var (
	MySQL    Dialect = &dialect{name: "mysql", begin: "`", end: "`", placeholder: "?"}
	SQLite   Dialect = &dialect{name: "sqlite", begin: "`", end: "`", placeholder: "?"}
	Postgres Dialect = &dialect{name: "postgres", begin: `"`, end: `"`, placeholder: "$%d"}
)

// DialectFor returns the dialect of the driver name, or false if it is unknown.
func DialectFor(driver string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql":
		return MySQL, true
	case "sqlite", "sqlite3":
		return SQLite, true
	case "postgres", "postgresql", "pgx", "pq":
		return Postgres, true
	}
	return nil, false
}

func (d *dialect) Name() string {
	return d.name
}

func (d *dialect) Quote(name string) string {
	segments := strings.Split(name, ".")
	for i, s := range segments {
		s = strings.Trim(s, " \t\"`"+d.begin+d.end)
		segments[i] = d.begin + s + d.end
	}
	return strings.Join(segments, ".")
}

func (d *dialect) Placeholder(n int) string {
	if !strings.Contains(d.placeholder, "%") {
		return d.placeholder
	}
	return fmt.Sprintf(d.placeholder, n)
}
