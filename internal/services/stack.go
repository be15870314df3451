// Package services holds the supporting services around the deployer
// core: stack secrets, audit logging, and host inspection.
package services

import (
	"database/sql"
	"encoding/base64"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/database"
	"github.com/ocilxc/lxc-deployer/internal/models"
)

// StackService manages named secret stacks. Values are encrypted at rest
// and only ever leave the service inside filled-in file content; list and
// get surfaces expose keys alone.
type StackService struct {
	db     *database.DB
	crypto *CryptoService
}

func NewStackService(db *database.DB, crypto *CryptoService) *StackService {
	return &StackService{db: db, crypto: crypto}
}

// Create stores a new stack with its encrypted entries.
func (s *StackService) Create(req *models.CreateStackRequest) (*models.Stack, error) {
	id := uuid.New().String()

	if _, err := s.db.Exec("INSERT INTO stacks (id, name) VALUES (?, ?)", id, req.Name); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, apperr.Conflict("stack %q already exists", req.Name)
		}
		return nil, err
	}

	if err := s.writeEntries(id, req.Entries); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Get returns a stack with its entry keys. Values stay encrypted in the
// database and are not part of the response.
func (s *StackService) Get(id string) (*models.Stack, error) {
	stack := &models.Stack{ID: id}
	err := s.db.QueryRow("SELECT name FROM stacks WHERE id = ?", id).Scan(&stack.Name)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("stack %q not found", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT key FROM stack_entries WHERE stack_id = ? ORDER BY key", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stack.Keys = []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		stack.Keys = append(stack.Keys, key)
	}
	return stack, rows.Err()
}

// List returns every stack with its keys.
func (s *StackService) List() ([]models.Stack, error) {
	rows, err := s.db.Query("SELECT id FROM stacks ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stacks := make([]models.Stack, 0, len(ids))
	for _, id := range ids {
		stack, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		stacks = append(stacks, *stack)
	}
	return stacks, nil
}

// Update replaces or adds entries; existing keys not named stay as they
// are.
func (s *StackService) Update(id string, entries map[string]string) (*models.Stack, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	if err := s.writeEntries(id, entries); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Delete removes a stack and its entries.
func (s *StackService) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM stacks WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("stack %q not found", id)
	}
	return nil
}

func (s *StackService) writeEntries(id string, entries map[string]string) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		encrypted, err := s.crypto.Encrypt(entries[key])
		if err != nil {
			return err
		}
		_, err = s.db.Exec(`
			INSERT INTO stack_entries (stack_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT(stack_id, key) DO UPDATE SET value = excluded.value`,
			id, key, encrypted,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

var markerPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// FillMarkers substitutes {{ NAME }} markers in base64 file content with
// the stack's decrypted values. Markers without a matching entry are left
// in place.
func (s *StackService) FillMarkers(stackID, contentB64 string) (string, error) {
	if _, err := s.Get(stackID); err != nil {
		return "", err
	}

	rows, err := s.db.Query("SELECT key, value FROM stack_entries WHERE stack_id = ?", stackID)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, encrypted string
		if err := rows.Scan(&key, &encrypted); err != nil {
			return "", err
		}
		plain, err := s.crypto.Decrypt(encrypted)
		if err != nil {
			return "", err
		}
		values[key] = plain
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(contentB64)
	if err != nil {
		return "", apperr.Validation("content is not valid base64")
	}

	filled := markerPattern.ReplaceAllStringFunc(string(raw), func(match string) string {
		name := markerPattern.FindStringSubmatch(match)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return match
	})
	return base64.StdEncoding.EncodeToString([]byte(filled)), nil
}
