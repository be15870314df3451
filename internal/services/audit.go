package services

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/ocilxc/lxc-deployer/internal/database"
)

// AuditService records deployer actions (application creation, installs,
// restarts, stack changes) for later inspection.
type AuditService struct {
	db *database.DB
}

func NewAuditService(db *database.DB) *AuditService {
	return &AuditService{db: db}
}

// AuditEntry is one recorded action.
type AuditEntry struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	Application string `json:"application,omitempty"`
	Detail      string `json:"detail,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Record stores an action. Failures are logged, not surfaced; auditing
// must never fail the request it describes.
func (s *AuditService) Record(action, application string, detail map[string]any) {
	var detailJSON string
	if detail != nil {
		if data, err := json.Marshal(detail); err == nil {
			detailJSON = string(data)
		}
	}

	_, err := s.db.Exec(
		"INSERT INTO audit_logs (id, action, application, detail) VALUES (?, ?, ?, ?)",
		uuid.New().String(), action, application, detailJSON,
	)
	if err != nil {
		log.Printf("[Audit] Recording %s: %v", action, err)
	}
}

// Logs returns recorded actions, newest first, optionally filtered to one
// application.
func (s *AuditService) Logs(application string, limit, offset int) ([]AuditEntry, error) {
	if limit == 0 {
		limit = 50
	}

	query := `
		SELECT id, action, COALESCE(application, ''), COALESCE(detail, ''), created_at
		FROM audit_logs`
	args := []any{}
	if application != "" {
		query += " WHERE application = ?"
		args = append(args, application)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0)
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Application, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
