package store

import (
	"database/sql"
	"fmt"
)

// UsageKind names the credit-ledger operation a usage row stands for. The
// ledger's Append writes commit for a successful task and refund for a
// failed one; no reserve rows are written.
type UsageKind string

// Usage log entry kinds.
const (
	UsageKindReserve UsageKind = "reserve"
	UsageKindCommit  UsageKind = "commit"
	UsageKindRefund  UsageKind = "refund"
)

// UsageRecord is a single append-only row in the usage log.
type UsageRecord struct {
	ID               string
	UserID           string
	TaskType         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CreditsCharged   float64
	Kind             UsageKind
	CreatedAt        string
}

// AppendUsage inserts one row into the append-only usage log. It is the only
// write path into usage_log; nothing ever updates or deletes a row.
func (d *Documents) AppendUsage(rec UsageRecord) error {
	_, err := d.db.Exec(`
		INSERT INTO usage_log (id, user_id, task_type, model, prompt_tokens, completion_tokens, credits_charged, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.TaskType, rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.CreditsCharged, string(rec.Kind))
	if err != nil {
		return fmt.Errorf("append usage record %s: %w", rec.ID, err)
	}
	return nil
}

// UsageByUser returns every usage_log row for userID, oldest first.
func (d *Documents) UsageByUser(userID string) ([]UsageRecord, error) {
	rows, err := d.db.Query(`
		SELECT id, user_id, task_type, model, prompt_tokens, completion_tokens, credits_charged, kind, created_at
		FROM usage_log WHERE user_id = ? ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query usage for user %s: %w", userID, err)
	}
	defer rows.Close()

	return scanUsageRows(rows)
}

// UsageSince returns every usage_log row recorded at or after sinceRFC3339.
// Nothing in this module calls it; the admin usage rollup reads Prometheus.
func (d *Documents) UsageSince(sinceRFC3339 string) ([]UsageRecord, error) {
	rows, err := d.db.Query(`
		SELECT id, user_id, task_type, model, prompt_tokens, completion_tokens, credits_charged, kind, created_at
		FROM usage_log WHERE created_at >= ? ORDER BY created_at ASC
	`, sinceRFC3339)
	if err != nil {
		return nil, fmt.Errorf("query usage since %s: %w", sinceRFC3339, err)
	}
	defer rows.Close()

	return scanUsageRows(rows)
}

func scanUsageRows(rows *sql.Rows) ([]UsageRecord, error) {
	var records []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var kind string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TaskType, &rec.Model,
			&rec.PromptTokens, &rec.CompletionTokens, &rec.CreditsCharged, &kind, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		rec.Kind = UsageKind(kind)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage records: %w", err)
	}
	return records, nil
}
