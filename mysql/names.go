package mysql

import (
	"fmt"
	"strings"
)

// maxIdentifierLen is the MySQL limit for a single identifier part.
const maxIdentifierLen = 64

// sanitizeTableName accepts "table" or "schema.table" made of ASCII letters,
// digits and underscores, since the name is interpolated into SQL.
func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}

	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
	}
	for _, part := range parts {
		if !validIdentifier(part) {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}

func validIdentifier(part string) bool {
	if part == "" || len(part) > maxIdentifierLen {
		return false
	}

	return strings.IndexFunc(part, func(r rune) bool {
		return r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
	}) < 0
}

// indexSuffix returns the unqualified table name for index naming.
func indexSuffix(table string) string {
	_, name, found := strings.Cut(table, ".")
	if !found {
		return table
	}

	return name
}
