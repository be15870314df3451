package executor

import (
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/database"
	"github.com/ocilxc/lxc-deployer/internal/models"
)

// MessageLog is the append-only per-(application, task) message store.
// Index assignment is serialized so indices stay gapless and monotonic
// within a group.
type MessageLog struct {
	db *database.DB
	mu sync.Mutex
}

func NewMessageLog(db *database.DB) *MessageLog {
	return &MessageLog{db: db}
}

// BeginGroup resets the group to a fresh running state and discards the
// previous message stream. Other groups are untouched.
func (l *MessageLog) BeginGroup(app, task, restartKey, vmInstallKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`
		INSERT INTO execution_groups (application, task, status, restart_key, vm_install_key)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(application, task) DO UPDATE SET
			status = excluded.status,
			restart_key = excluded.restart_key,
			vm_install_key = excluded.vm_install_key,
			updated_at = CURRENT_TIMESTAMP`,
		app, task, models.StatusRunning, restartKey, vmInstallKey,
	)
	if err != nil {
		return err
	}
	_, err = l.db.Exec("DELETE FROM execute_messages WHERE application = ? AND task = ?", app, task)
	return err
}

// Append stores a message with the next free index and returns it.
func (l *MessageLog) Append(app, task string, m *models.ExecuteMessage) (*models.ExecuteMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var next int
	err := l.db.QueryRow(
		"SELECT COALESCE(MAX(idx), -1) + 1 FROM execute_messages WHERE application = ? AND task = ?",
		app, task,
	).Scan(&next)
	if err != nil {
		return nil, err
	}

	m.Index = next
	m.CreatedAt = time.Now().UTC()
	return m, l.insert(app, task, m)
}

// Replace rewrites the message at m.Index, used to finalize a previously
// streamed partial message under the same index.
func (l *MessageLog) Replace(app, task string, m *models.ExecuteMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.Exec(
		"DELETE FROM execute_messages WHERE application = ? AND task = ? AND idx = ?",
		app, task, m.Index,
	)
	if err != nil {
		return err
	}
	return l.insert(app, task, m)
}

func (l *MessageLog) insert(app, task string, m *models.ExecuteMessage) error {
	_, err := l.db.Exec(`
		INSERT INTO execute_messages
			(application, task, idx, command, commandtext, stderr, result, exit_code, error, finished, partial, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app, task, m.Index, m.Command, m.CommandText, m.Stderr, m.Result,
		m.ExitCode, m.Error, m.Finished, m.Partial, m.CreatedAt,
	)
	return err
}

// Messages returns the group's messages with an index greater than after,
// in index order. Pass -1 for the full stream.
func (l *MessageLog) Messages(app, task string, after int) ([]models.ExecuteMessage, error) {
	rows, err := l.db.Query(`
		SELECT idx, command, commandtext, stderr, result, exit_code, error, finished, partial, created_at
		FROM execute_messages
		WHERE application = ? AND task = ? AND idx > ?
		ORDER BY idx`,
		app, task, after,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ExecuteMessage
	for rows.Next() {
		var m models.ExecuteMessage
		if err := rows.Scan(
			&m.Index, &m.Command, &m.CommandText, &m.Stderr, &m.Result,
			&m.ExitCode, &m.Error, &m.Finished, &m.Partial, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SetStatus updates the group status.
func (l *MessageLog) SetStatus(app, task string, status models.GroupStatus) error {
	_, err := l.db.Exec(
		"UPDATE execution_groups SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE application = ? AND task = ?",
		status, app, task,
	)
	return err
}

// Group loads the group metadata plus its full message stream.
func (l *MessageLog) Group(app, task string) (*models.ExecuteMessageGroup, error) {
	g := &models.ExecuteMessageGroup{Application: app, Task: task}
	var restartKey, vmInstallKey sql.NullString
	err := l.db.QueryRow(
		"SELECT status, restart_key, vm_install_key FROM execution_groups WHERE application = ? AND task = ?",
		app, task,
	).Scan(&g.Status, &restartKey, &vmInstallKey)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("no execution for application %q task %q", app, task)
	}
	if err != nil {
		return nil, err
	}
	g.RestartKey = restartKey.String
	g.VMInstallKey = vmInstallKey.String

	g.Messages, err = l.Messages(app, task, -1)
	if err != nil {
		return nil, err
	}
	if g.Messages == nil {
		g.Messages = []models.ExecuteMessage{}
	}
	return g, nil
}

// Groups lists every execution group without its message stream, most
// recently updated first.
func (l *MessageLog) Groups() ([]models.ExecuteMessageGroup, error) {
	rows, err := l.db.Query(`
		SELECT application, task, status, restart_key, vm_install_key
		FROM execution_groups
		ORDER BY updated_at DESC, application, task`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []models.ExecuteMessageGroup{}
	for rows.Next() {
		var g models.ExecuteMessageGroup
		var restartKey, vmInstallKey sql.NullString
		if err := rows.Scan(&g.Application, &g.Task, &g.Status, &restartKey, &vmInstallKey); err != nil {
			return nil, err
		}
		g.RestartKey = restartKey.String
		g.VMInstallKey = vmInstallKey.String
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Status returns just the group status.
func (l *MessageLog) Status(app, task string) (models.GroupStatus, error) {
	var status models.GroupStatus
	err := l.db.QueryRow(
		"SELECT status FROM execution_groups WHERE application = ? AND task = ?",
		app, task,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return "", apperr.NotFound("no execution for application %q task %q", app, task)
	}
	return status, err
}

// Merge folds an incoming message batch into an existing stream. Index is
// the only identity; a finished message always wins over a partial one
// with the same index, and a partial never downgrades a finished one.
func Merge(existing, incoming []models.ExecuteMessage) []models.ExecuteMessage {
	byIndex := make(map[int]models.ExecuteMessage, len(existing)+len(incoming))
	for _, m := range existing {
		byIndex[m.Index] = m
	}
	for _, m := range incoming {
		if cur, ok := byIndex[m.Index]; ok && cur.Finished && !m.Finished {
			continue
		}
		byIndex[m.Index] = m
	}

	merged := make([]models.ExecuteMessage, 0, len(byIndex))
	for _, m := range byIndex {
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Index < merged[j].Index })
	return merged
}
