package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/config"
	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/store"
)

func setupLayers(t *testing.T) (*store.Store, string, string) {
	t.Helper()
	builtin := t.TempDir()
	local := t.TempDir()
	s := store.New(config.StoreConfig{BuiltinDir: builtin, LocalDir: local})
	return s, builtin, local
}

func writeFile(t *testing.T, base string, rel string, content string) {
	t.Helper()
	path := filepath.Join(base, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestFramework_LocalShadowsBuiltin(t *testing.T) {
	s, builtin, local := setupLayers(t)

	writeFile(t, builtin, "frameworks/oci-image.json",
		`{"name":"Builtin OCI","extends":"oci-base","properties":["oci_image"]}`)
	writeFile(t, local, "frameworks/oci-image.json",
		`{"name":"Local OCI","extends":"oci-base","properties":["oci_image"]}`)

	fw, err := s.Framework("oci-image")
	if err != nil {
		t.Fatalf("Framework: %v", err)
	}
	if fw.Name != "Local OCI" {
		t.Errorf("expected local layer to shadow builtin, got %q", fw.Name)
	}
	if fw.ID != "oci-image" {
		t.Errorf("expected id injected from filename, got %q", fw.ID)
	}
}

func TestFramework_NotFound(t *testing.T) {
	s, _, _ := setupLayers(t)

	_, err := s.Framework("missing")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestApplication_IDNeverStored(t *testing.T) {
	s, builtin, _ := setupLayers(t)

	writeFile(t, builtin, "applications/nginx/application.json",
		`{"name":"Nginx","extends":"oci-base"}`)

	app, err := s.Application("nginx")
	if err != nil {
		t.Fatalf("Application: %v", err)
	}
	if app.ID != "nginx" {
		t.Errorf("expected id from directory name, got %q", app.ID)
	}
}

func TestApplicationExistsLocal(t *testing.T) {
	s, builtin, local := setupLayers(t)

	writeFile(t, builtin, "applications/builtin-app/application.json", `{"name":"b"}`)
	writeFile(t, local, "applications/local-app/application.json", `{"name":"l"}`)

	if s.ApplicationExistsLocal("builtin-app") {
		t.Error("builtin entry must not count as local")
	}
	if !s.ApplicationExistsLocal("local-app") {
		t.Error("expected local entry to exist")
	}
}

func TestTemplate_ResolutionOrder(t *testing.T) {
	s, builtin, local := setupLayers(t)

	writeFile(t, builtin, "shared/templates/start.json",
		`{"name":"shared start","commands":[{"name":"start"}]}`)
	writeFile(t, builtin, "applications/app1/templates/start.json",
		`{"name":"app builtin start","commands":[{"name":"start"}]}`)
	writeFile(t, local, "applications/app1/templates/start.json",
		`{"name":"app local start","commands":[{"name":"start"}]}`)

	res, err := s.Template("app1", "start")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if res.Origin != models.OriginApplicationLocal {
		t.Errorf("expected application-local origin, got %s", res.Origin)
	}
	if res.IsShared {
		t.Error("application template must not be marked shared")
	}

	// No application-level template: falls through to shared.
	res, err = s.Template("app2", "start")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if res.Origin != models.OriginSharedJSON {
		t.Errorf("expected shared-json origin, got %s", res.Origin)
	}
	if !res.IsShared {
		t.Error("shared template must be marked shared")
	}
}

func TestSaveApplication_InvalidatesCache(t *testing.T) {
	s, _, local := setupLayers(t)

	app := &models.Application{ID: "myapp", Name: "First"}
	if err := s.SaveApplication(app, nil, nil); err != nil {
		t.Fatalf("SaveApplication: %v", err)
	}

	// Prime the cache.
	got, err := s.Application("myapp")
	if err != nil {
		t.Fatalf("Application: %v", err)
	}
	if got.Name != "First" {
		t.Fatalf("unexpected name %q", got.Name)
	}

	app.Name = "Second"
	if err := s.SaveApplication(app, nil, nil); err != nil {
		t.Fatalf("SaveApplication: %v", err)
	}

	got, err = s.Application("myapp")
	if err != nil {
		t.Fatalf("Application: %v", err)
	}
	if got.Name != "Second" {
		t.Errorf("stale cache: expected %q, got %q", "Second", got.Name)
	}

	data, err := os.ReadFile(filepath.Join(local, "applications", "myapp", "application.json"))
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}
	if string(data) == "" {
		t.Error("expected non-empty application.json")
	}
}

func TestSaveApplication_TemplatesAndScripts(t *testing.T) {
	s, _, local := setupLayers(t)

	app := &models.Application{ID: "myapp", Name: "App"}
	templates := map[string]*models.Template{
		"upload-app-conf.json": {
			Name:     "Upload Files",
			Commands: []models.Command{{Name: "upload"}},
		},
	}
	scripts := map[string]string{
		"upload-app-conf.sh": "#!/bin/sh\n",
	}
	if err := s.SaveApplication(app, templates, scripts); err != nil {
		t.Fatalf("SaveApplication: %v", err)
	}

	if _, err := os.Stat(filepath.Join(local, "applications", "myapp", "templates", "upload-app-conf.json")); err != nil {
		t.Errorf("template file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(local, "applications", "myapp", "scripts", "upload-app-conf.sh")); err != nil {
		t.Errorf("script file missing: %v", err)
	}

	res, err := s.Template("myapp", "upload-app-conf")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if res.Origin != models.OriginApplicationLocal {
		t.Errorf("expected application-local origin, got %s", res.Origin)
	}
}

func TestDeleteApplication(t *testing.T) {
	s, _, _ := setupLayers(t)

	app := &models.Application{ID: "gone", Name: "Gone"}
	if err := s.SaveApplication(app, nil, nil); err != nil {
		t.Fatalf("SaveApplication: %v", err)
	}
	if err := s.DeleteApplication("gone"); err != nil {
		t.Fatalf("DeleteApplication: %v", err)
	}
	if _, err := s.Application("gone"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound after delete, got %v", err)
	}

	if err := s.DeleteApplication("gone"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound for second delete, got %v", err)
	}
}

func TestListApplications_MergesLayers(t *testing.T) {
	s, builtin, local := setupLayers(t)

	writeFile(t, builtin, "applications/alpha/application.json", `{"name":"Builtin Alpha"}`)
	writeFile(t, local, "applications/alpha/application.json", `{"name":"Local Alpha"}`)
	writeFile(t, builtin, "applications/beta/application.json", `{"name":"Beta"}`)

	apps, err := s.ListApplications()
	if err != nil {
		t.Fatalf("ListApplications: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("expected 2 applications, got %d", len(apps))
	}
	if apps[0].ID != "alpha" || apps[0].Name != "Local Alpha" {
		t.Errorf("expected local alpha first, got %+v", apps[0])
	}
	if apps[1].ID != "beta" {
		t.Errorf("expected beta second, got %+v", apps[1])
	}
}

func TestScript_SharedLibraryFallback(t *testing.T) {
	s, builtin, _ := setupLayers(t)

	writeFile(t, builtin, "shared/scripts/library/upload-lib.sh", "upload_file() { :; }\n")

	body, err := s.Script("", "upload-lib.sh")
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if body == "" {
		t.Error("expected script body")
	}
}

func TestResolveRejectsTraversalNames(t *testing.T) {
	s, builtin, _ := setupLayers(t)

	writeFile(t, builtin, "addons/redis.json", `{"name":"Redis"}`)

	for _, id := range []string{"../frameworks/oci-image", "a/b", "", "..", "re\x00dis"} {
		if _, err := s.Addon(id); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("Addon(%q): err = %v, want validation error", id, err)
		}
		if _, err := s.Template("alpha", id); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("Template(%q): err = %v, want validation error", id, err)
		}
		if _, err := s.Script("alpha", id); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("Script(%q): err = %v, want validation error", id, err)
		}
	}

	if _, err := s.Addon("redis"); err != nil {
		t.Fatalf("well-formed addon id rejected: %v", err)
	}
}
