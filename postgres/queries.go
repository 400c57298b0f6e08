package postgres

import (
	"fmt"
	"strings"
)

const (
	columns          = "id, type_tag, routing_key, payload, content_type, created_at, attempt_count"
	insertArgsPerRow = 6
)

type queries struct {
	insertPrefix   string
	selectPending  string
	markDelivered  string
	recordFailures string
	patchPayload   string
	countPending   string
}

func newQueries(table string, rowLocking bool) queries {
	selectPending := fmt.Sprintf(
		"SELECT %s FROM %s WHERE processed = FALSE ORDER BY created_at ASC, id ASC LIMIT $1",
		columns,
		table,
	)
	if rowLocking {
		selectPending += " FOR UPDATE SKIP LOCKED"
	}

	return queries{
		insertPrefix: fmt.Sprintf(
			"INSERT INTO %s (id, type_tag, routing_key, payload, content_type, created_at) VALUES ",
			table,
		),
		selectPending: selectPending,
		markDelivered: fmt.Sprintf(
			"UPDATE %s SET processed = TRUE, processed_at = $1, last_error = NULL WHERE processed = FALSE AND id = ANY($2)",
			table,
		),
		recordFailures: fmt.Sprintf(
			"UPDATE %[1]s AS o SET attempt_count = o.attempt_count + 1, last_error = f.err "+
				"FROM unnest($1::uuid[], $2::text[]) AS f(id, err) "+
				"WHERE o.id = f.id AND o.processed = FALSE",
			table,
		),
		patchPayload: fmt.Sprintf(
			"UPDATE %s SET payload = $1 WHERE id = $2 AND processed = FALSE",
			table,
		),
		countPending: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE processed = FALSE", table),
	}
}

func buildInsertQuery(prefix string, rows int) string {
	var b strings.Builder
	b.WriteString(prefix)
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		base := i * insertArgsPerRow
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5, base+6)
	}

	return b.String()
}
