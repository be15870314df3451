// Package store is the layered template repository: a read-only builtin
// layer shipped with the deployer and a writable local layer, with local
// entries shadowing builtin ones. Definitions live under
// frameworks/<id>.json, addons/<id>.json, shared/{templates,scripts}, and
// applications/<id>/{application.json,templates/,scripts/}.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/config"
	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/validation"
)

// Store resolves framework, application, addon, template, and script
// definitions across the two layers.
type Store struct {
	builtin string
	local   string
	cache   *pathCache
}

// New creates a store over the configured layer directories.
func New(cfg config.StoreConfig) *Store {
	return &Store{
		builtin: cfg.BuiltinDir,
		local:   cfg.LocalDir,
		cache:   newPathCache(),
	}
}

// ResolvedTemplate couples a template definition with where it was found.
type ResolvedTemplate struct {
	Template *models.Template
	Path     string
	Origin   models.TemplateOrigin
	IsShared bool
}

func (s *Store) loadJSON(path string, v any) error {
	if cached, ok := s.cache.get(path); ok {
		return json.Unmarshal(cached.([]byte), v)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	s.cache.put(path, data)
	return nil
}

// resolvePath returns the first existing path, local layer first.
func (s *Store) resolvePath(rel string) (string, bool) {
	local := filepath.Join(s.local, rel)
	if _, err := os.Stat(local); err == nil {
		return local, true
	}
	builtin := filepath.Join(s.builtin, rel)
	if _, err := os.Stat(builtin); err == nil {
		return builtin, false
	}
	return "", false
}

// Framework resolves a framework definition by id.
func (s *Store) Framework(id string) (*models.Framework, error) {
	path, _ := s.resolvePath(filepath.Join("frameworks", id+".json"))
	if path == "" {
		return nil, apperr.NotFound("framework %q not found", id)
	}
	var fw models.Framework
	if err := s.loadJSON(path, &fw); err != nil {
		return nil, err
	}
	fw.ID = id
	return &fw, nil
}

// Application resolves an application definition by id. The id is injected
// from the directory name; application.json never carries one.
func (s *Store) Application(id string) (*models.Application, error) {
	path, _ := s.resolvePath(filepath.Join("applications", id, "application.json"))
	if path == "" {
		return nil, apperr.NotFound("application %q not found", id)
	}
	var app models.Application
	if err := s.loadJSON(path, &app); err != nil {
		return nil, err
	}
	app.ID = id
	return &app, nil
}

// Addon resolves an addon definition by id. Ids arrive from API requests,
// so they are checked before touching the filesystem.
func (s *Store) Addon(id string) (*models.Addon, error) {
	if err := validation.ValidateScriptName(id); err != nil {
		return nil, err
	}
	path, _ := s.resolvePath(filepath.Join("addons", id+".json"))
	if path == "" {
		return nil, apperr.NotFound("addon %q not found", id)
	}
	var addon models.Addon
	if err := s.loadJSON(path, &addon); err != nil {
		return nil, err
	}
	addon.ID = id
	return &addon, nil
}

// BaseChain resolves the extends chain of an application, base-most first,
// ending with the application itself. A cycle in the chain is a defect in
// the template graph.
func (s *Store) BaseChain(app *models.Application) ([]*models.Application, error) {
	chain := []*models.Application{app}
	seen := map[string]bool{app.ID: true}
	cur := app
	for cur.Extends != "" {
		if seen[cur.Extends] {
			return nil, apperr.Configuration("extends cycle through %q", cur.Extends)
		}
		base, err := s.Application(cur.Extends)
		if err != nil {
			return nil, err
		}
		seen[base.ID] = true
		chain = append([]*models.Application{base}, chain...)
		cur = base
	}
	return chain, nil
}

// ApplicationExistsLocal reports whether an application exists in the
// writable layer. Builtin entries do not count: local always shadows
// builtin, so an identically named builtin application never blocks
// creation.
func (s *Store) ApplicationExistsLocal(id string) bool {
	_, err := os.Stat(filepath.Join(s.local, "applications", id, "application.json"))
	return err == nil
}

// Template resolves a template by name for an application. Resolution
// order: application-local, application-builtin, shared-local,
// shared-builtin.
func (s *Store) Template(appID, name string) (*ResolvedTemplate, error) {
	if err := validation.ValidateScriptName(name); err != nil {
		return nil, err
	}
	file := name
	if !strings.HasSuffix(file, ".json") {
		file += ".json"
	}

	candidates := []struct {
		base     string
		rel      string
		origin   models.TemplateOrigin
		isShared bool
	}{
		{s.local, filepath.Join("applications", appID, "templates", file), models.OriginApplicationLocal, false},
		{s.builtin, filepath.Join("applications", appID, "templates", file), models.OriginApplicationJSON, false},
		{s.local, filepath.Join("shared", "templates", file), models.OriginSharedLocal, true},
		{s.builtin, filepath.Join("shared", "templates", file), models.OriginSharedJSON, true},
	}

	for _, c := range candidates {
		if appID == "" && !c.isShared {
			continue
		}
		path := filepath.Join(c.base, c.rel)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var tpl models.Template
		if err := s.loadJSON(path, &tpl); err != nil {
			return nil, err
		}
		if tpl.Name == "" {
			tpl.Name = strings.TrimSuffix(file, ".json")
		}
		return &ResolvedTemplate{
			Template: &tpl,
			Path:     path,
			Origin:   c.origin,
			IsShared: c.isShared,
		}, nil
	}

	return nil, apperr.NotFound("template %q not found for application %q", name, appID)
}

// Script resolves a script body by name, application scripts first, then
// the shared library.
func (s *Store) Script(appID, name string) (string, error) {
	if err := validation.ValidateScriptName(name); err != nil {
		return "", err
	}
	var candidates []string
	if appID != "" {
		candidates = append(candidates,
			filepath.Join(s.local, "applications", appID, "scripts", name),
			filepath.Join(s.builtin, "applications", appID, "scripts", name),
		)
	}
	candidates = append(candidates,
		filepath.Join(s.local, "shared", "scripts", name),
		filepath.Join(s.builtin, "shared", "scripts", name),
		filepath.Join(s.local, "shared", "scripts", "library", name),
		filepath.Join(s.builtin, "shared", "scripts", "library", name),
	)
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
	}
	return "", apperr.NotFound("script %q not found for application %q", name, appID)
}

// SaveApplication persists an application plus any generated templates and
// scripts to the writable layer, invalidating cached entries for every
// written path.
func (s *Store) SaveApplication(app *models.Application, templates map[string]*models.Template, scripts map[string]string) error {
	appDir := filepath.Join(s.local, "applications", app.ID)
	if err := os.MkdirAll(appDir, 0750); err != nil {
		return err
	}

	appPath := filepath.Join(appDir, "application.json")
	data, err := json.MarshalIndent(app, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(appPath, data, 0640); err != nil {
		return err
	}
	s.cache.invalidate(appPath)

	if len(templates) > 0 {
		tplDir := filepath.Join(appDir, "templates")
		if err := os.MkdirAll(tplDir, 0750); err != nil {
			return err
		}
		for name, tpl := range templates {
			tplPath := filepath.Join(tplDir, name)
			data, err := json.MarshalIndent(tpl, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(tplPath, data, 0640); err != nil {
				return err
			}
			s.cache.invalidate(tplPath)
		}
	}

	if len(scripts) > 0 {
		scriptDir := filepath.Join(appDir, "scripts")
		if err := os.MkdirAll(scriptDir, 0750); err != nil {
			return err
		}
		for name, body := range scripts {
			scriptPath := filepath.Join(scriptDir, name)
			if err := os.WriteFile(scriptPath, []byte(body), 0750); err != nil {
				return err
			}
			s.cache.invalidate(scriptPath)
		}
	}

	return nil
}

// DeleteApplication removes an application directory from the writable
// layer.
func (s *Store) DeleteApplication(id string) error {
	if !s.ApplicationExistsLocal(id) {
		return apperr.NotFound("application %q not found in local layer", id)
	}
	dir := filepath.Join(s.local, "applications", id)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	s.cache.invalidatePrefix(dir)
	return nil
}

// ListFrameworks returns every framework across both layers, local entries
// shadowing builtin ones, sorted by id.
func (s *Store) ListFrameworks() ([]models.Framework, error) {
	ids := s.listIDs("frameworks", ".json")
	frameworks := make([]models.Framework, 0, len(ids))
	for _, id := range ids {
		fw, err := s.Framework(id)
		if err != nil {
			return nil, err
		}
		frameworks = append(frameworks, *fw)
	}
	return frameworks, nil
}

// ListApplications returns every application across both layers, local
// entries shadowing builtin ones, sorted by id.
func (s *Store) ListApplications() ([]models.Application, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, base := range []string{s.local, s.builtin} {
		entries, err := os.ReadDir(filepath.Join(base, "applications"))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() && !seen[e.Name()] {
				seen[e.Name()] = true
				ids = append(ids, e.Name())
			}
		}
	}
	sort.Strings(ids)

	apps := make([]models.Application, 0, len(ids))
	for _, id := range ids {
		app, err := s.Application(id)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, nil
}

// ListAddons returns every addon across both layers sorted by id.
func (s *Store) ListAddons() ([]models.Addon, error) {
	ids := s.listIDs("addons", ".json")
	addons := make([]models.Addon, 0, len(ids))
	for _, id := range ids {
		addon, err := s.Addon(id)
		if err != nil {
			return nil, err
		}
		addons = append(addons, *addon)
	}
	return addons, nil
}

func (s *Store) listIDs(subdir, ext string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, base := range []string{s.local, s.builtin} {
		entries, err := os.ReadDir(filepath.Join(base, subdir))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
				continue
			}
			id := strings.TrimSuffix(e.Name(), ext)
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
