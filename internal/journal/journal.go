package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/ubuntu/decorate"
)

// Entry statuses. A capture starts pending and ends saved or failed.
const (
	StatusPending = "pending"
	StatusSaved   = "saved"
	StatusFailed  = "failed"
)

// Entry is one capture attempt: a message (or media group) the bot tried to
// turn into a Blinko note.
type Entry struct {
	ID          string
	ChatID      int64
	MessageID   int
	Content     string
	Attachments int
	Status      string
	Error       string
}

// Stats is the per-status entry count reported by /status.
type Stats struct {
	Pending int
	Saved   int
	Failed  int
}

// Record inserts a new pending entry and returns its id.
func (d *DB) Record(e Entry) (id string, err error) {
	defer decorate.OnError(&err, "could not record journal entry")

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	_, err = d.Exec(`INSERT INTO entries (id, chat_id, message_id, content, attachments, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		e.ID, e.ChatID, e.MessageID, e.Content, e.Attachments, StatusPending, now, now)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// MarkSaved resolves an entry as successfully stored in Blinko.
func (d *DB) MarkSaved(id string) error {
	return d.setStatus(id, StatusSaved, "")
}

// MarkFailed resolves an entry as failed, keeping the cause for /status.
func (d *DB) MarkFailed(id, cause string) error {
	return d.setStatus(id, StatusFailed, cause)
}

func (d *DB) setStatus(id, status, cause string) (err error) {
	defer decorate.OnError(&err, "could not mark entry %s as %s", id, status)

	_, err = d.Exec("UPDATE entries SET status = ?, error = ?, updated_at = ? WHERE id = ?",
		status, cause, time.Now().Unix(), id)
	return err
}

// Stats counts entries per status.
func (d *DB) Stats() (Stats, error) {
	rows, err := d.Query("SELECT status, COUNT(*) FROM entries GROUP BY status")
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var s Stats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, err
		}
		switch status {
		case StatusPending:
			s.Pending = n
		case StatusSaved:
			s.Saved = n
		case StatusFailed:
			s.Failed = n
		}
	}
	return s, rows.Err()
}

// FailedTextEntries returns failed entries without attachments, oldest first.
// Media bytes are streamed and not retained, so only these can be replayed.
func (d *DB) FailedTextEntries(limit int) ([]Entry, error) {
	rows, err := d.Query(`SELECT id, chat_id, message_id, content, attachments, status, error
		FROM entries WHERE status = ? AND attachments = 0 ORDER BY created_at LIMIT ?`,
		StatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ChatID, &e.MessageID, &e.Content, &e.Attachments, &e.Status, &e.Error); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
