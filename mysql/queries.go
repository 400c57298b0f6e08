package mysql

import "fmt"

const columns = "id, type_tag, routing_key, payload, content_type, created_at, attempt_count"

type queries struct {
	insertPrefix  string
	insertRow     string
	selectPending string
	recordFailure string
	patchPayload  string
	countPending  string
}

func newQueries(table string, rowLocking bool) queries {
	selectPending := fmt.Sprintf(
		"SELECT %s FROM %s WHERE processed = FALSE ORDER BY created_at ASC, id ASC LIMIT ?",
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
		insertRow:     "(?, ?, ?, ?, ?, ?)",
		selectPending: selectPending,
		recordFailure: fmt.Sprintf(
			"UPDATE %s SET attempt_count = attempt_count + 1, last_error = ? WHERE id = ? AND processed = FALSE",
			table,
		),
		patchPayload: fmt.Sprintf(
			"UPDATE %s SET payload = ? WHERE id = ? AND processed = FALSE",
			table,
		),
		countPending: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE processed = FALSE", table),
	}
}

func buildInsertQuery(q queries, rows int) string {
	buf := make([]byte, 0, len(q.insertPrefix)+rows*(len(q.insertRow)+1))
	buf = append(buf, q.insertPrefix...)
	for i := 0; i < rows; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, q.insertRow...)
	}

	return string(buf)
}

func buildMarkDeliveredQuery(table string, count int) string {
	return fmt.Sprintf(
		"UPDATE %s SET processed = TRUE, processed_at = ?, last_error = NULL WHERE processed = FALSE AND id IN (%s)",
		table,
		makePlaceholders(count),
	)
}
