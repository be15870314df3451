package graph

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/config"
	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/store"
)

func newTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	local := t.TempDir()
	st := store.New(config.StoreConfig{BuiltinDir: t.TempDir(), LocalDir: local})
	return st, local
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		t.Fatal(err)
	}
}

func writeTemplate(t *testing.T, local, appID, name string, tpl *models.Template) {
	t.Helper()
	writeJSON(t, filepath.Join(local, "applications", appID, "templates", name+".json"), tpl)
}

func runCmd(name string) models.Command {
	return models.Command{Name: name, Command: "true"}
}

func loadApp(t *testing.T, st *store.Store, id string) *models.Application {
	t.Helper()
	app, err := st.Application(id)
	if err != nil {
		t.Fatalf("load application %s: %v", id, err)
	}
	return app
}

func traceFor(t *testing.T, r *Result, id string) models.ParameterTraceEntry {
	t.Helper()
	for _, e := range r.ParameterTrace {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("no trace entry for %q", id)
	return models.ParameterTraceEntry{}
}

func paramFor(r *Result, id string) *models.Parameter {
	for i := range r.Parameters {
		if r.Parameters[i].ID == id {
			return &r.Parameters[i]
		}
	}
	return nil
}

func TestResolveOutputBeatsDefault(t *testing.T) {
	st, local := newTestStore(t)
	writeJSON(t, filepath.Join(local, "applications", "demo", "application.json"), &models.Application{
		Name: "Demo",
		Installation: &models.Installation{
			Image: []models.TemplateRef{{Name: "make-thing"}},
			Start: []models.TemplateRef{{Name: "use-thing"}},
		},
	})
	writeTemplate(t, local, "demo", "make-thing", &models.Template{
		Name: "Make Thing",
		Commands: []models.Command{{
			Name:    "make",
			Command: "true",
			Outputs: []models.OutputRef{{ID: "thing_id", Default: "pending"}},
		}},
	})
	writeTemplate(t, local, "demo", "use-thing", &models.Template{
		Name:       "Use Thing",
		Parameters: []models.Parameter{{ID: "thing_id", Default: "fallback"}},
		Commands:   []models.Command{runCmd("use")},
	})

	b := NewBuilder(st, nil)
	r, err := b.Resolve(context.Background(), &Request{
		App:     loadApp(t, st, "demo"),
		Task:    models.TaskInstallation,
		Context: ContextInstall,
	})
	if err != nil {
		t.Fatal(err)
	}

	e := traceFor(t, r, "thing_id")
	if e.Source != models.SourceTemplateOutput {
		t.Fatalf("source = %s, want template_output", e.Source)
	}
	if e.SourceTemplate != "make-thing" {
		t.Fatalf("source template = %q, want make-thing", e.SourceTemplate)
	}
	if e.Value != "pending" {
		t.Fatalf("value = %v, want pending", e.Value)
	}
}

func TestResolveUserInputBeatsOutput(t *testing.T) {
	st, local := newTestStore(t)
	writeJSON(t, filepath.Join(local, "applications", "demo", "application.json"), &models.Application{
		Name: "Demo",
		Installation: &models.Installation{
			Image: []models.TemplateRef{{Name: "make-thing"}},
			Start: []models.TemplateRef{{Name: "use-thing"}},
		},
	})
	writeTemplate(t, local, "demo", "make-thing", &models.Template{
		Name: "Make Thing",
		Commands: []models.Command{{
			Name:    "make",
			Command: "true",
			Outputs: []models.OutputRef{{ID: "thing_id", Default: "pending"}},
		}},
	})
	writeTemplate(t, local, "demo", "use-thing", &models.Template{
		Name:       "Use Thing",
		Parameters: []models.Parameter{{ID: "thing_id"}},
		Commands:   []models.Command{runCmd("use")},
	})

	b := NewBuilder(st, nil)
	r, err := b.Resolve(context.Background(), &Request{
		App:     loadApp(t, st, "demo"),
		Task:    models.TaskInstallation,
		Context: ContextInstall,
		Values:  []models.ParameterValue{{ID: "thing_id", Value: "mine"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	e := traceFor(t, r, "thing_id")
	if e.Source != models.SourceUserInput || e.Value != "mine" {
		t.Fatalf("got %s / %v, want user_input / mine", e.Source, e.Value)
	}
}

func TestResolveLaterOutputIsConfigurationError(t *testing.T) {
	st, local := newTestStore(t)
	writeJSON(t, filepath.Join(local, "applications", "demo", "application.json"), &models.Application{
		Name: "Demo",
		Installation: &models.Installation{
			Image: []models.TemplateRef{{Name: "consumer"}, {Name: "producer"}},
		},
	})
	writeTemplate(t, local, "demo", "consumer", &models.Template{
		Name:       "Consumer",
		Parameters: []models.Parameter{{ID: "vm_id"}},
		Commands:   []models.Command{runCmd("consume")},
	})
	writeTemplate(t, local, "demo", "producer", &models.Template{
		Name: "Producer",
		Commands: []models.Command{{
			Name:    "produce",
			Command: "true",
			Outputs: []models.OutputRef{{ID: "vm_id"}},
		}},
	})

	b := NewBuilder(st, nil)
	_, err := b.Resolve(context.Background(), &Request{
		App:     loadApp(t, st, "demo"),
		Task:    models.TaskInstallation,
		Context: ContextInstall,
	})
	if !apperr.IsKind(err, apperr.KindConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestResolveSkipIfAllMissing(t *testing.T) {
	st, local := newTestStore(t)
	writeJSON(t, filepath.Join(local, "applications", "demo", "application.json"), &models.Application{
		Name: "Demo",
		Installation: &models.Installation{
			PreStart: []models.TemplateRef{{Name: "upload-env"}},
		},
	})
	writeTemplate(t, local, "demo", "upload-env", &models.Template{
		Name:             "Upload Files",
		SkipIfAllMissing: []string{"upload_env_content"},
		Parameters:       []models.Parameter{{ID: "upload_env_content", Upload: true}},
		Commands:         []models.Command{runCmd("upload")},
	})

	b := NewBuilder(st, nil)
	app := loadApp(t, st, "demo")

	r, err := b.Resolve(context.Background(), &Request{
		App: app, Task: models.TaskInstallation, Context: ContextInstall,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Steps) != 0 {
		t.Fatalf("steps = %d, want 0", len(r.Steps))
	}
	if len(r.TemplateTrace) != 1 || !r.TemplateTrace[0].Skipped || !r.TemplateTrace[0].Conditional {
		t.Fatalf("trace = %+v, want one skipped conditional entry", r.TemplateTrace)
	}

	r, err = b.Resolve(context.Background(), &Request{
		App: app, Task: models.TaskInstallation, Context: ContextInstall,
		Values: []models.ParameterValue{{ID: "upload_env_content", Value: "ZGF0YQ=="}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Steps) != 1 {
		t.Fatalf("steps = %d, want 1 once content is supplied", len(r.Steps))
	}
}

func TestResolveSkipIfPropertySet(t *testing.T) {
	st, local := newTestStore(t)
	writeJSON(t, filepath.Join(local, "applications", "demo", "application.json"), &models.Application{
		Name:       "Demo",
		Properties: []models.OutputObject{{ID: "image_ref", Value: "docker.io/library/nginx"}},
		Installation: &models.Installation{
			Image: []models.TemplateRef{{Name: "pull-image"}},
		},
	})
	writeTemplate(t, local, "demo", "pull-image", &models.Template{
		Name:              "Pull Image",
		SkipIfPropertySet: "image_ref",
		Commands:          []models.Command{runCmd("pull")},
	})

	b := NewBuilder(st, nil)
	r, err := b.Resolve(context.Background(), &Request{
		App:     loadApp(t, st, "demo"),
		Task:    models.TaskInstallation,
		Context: ContextInstall,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Steps) != 0 || !r.TemplateTrace[0].Skipped {
		t.Fatal("template should be skipped when the property is fixed")
	}
}

func TestResolveAddonSplice(t *testing.T) {
	st, local := newTestStore(t)
	writeJSON(t, filepath.Join(local, "applications", "demo", "application.json"), &models.Application{
		Name: "Demo",
		Installation: &models.Installation{
			PreStart: []models.TemplateRef{{Name: "base-one"}, {Name: "base-two"}},
		},
	})
	for _, name := range []string{"base-one", "base-two", "addon-a", "addon-b", "addon-c"} {
		writeTemplate(t, local, "demo", name, &models.Template{
			Name:     name,
			Commands: []models.Command{runCmd("run")},
		})
	}
	writeJSON(t, filepath.Join(local, "addons", "metrics.json"), &models.Addon{
		Name: "Metrics",
		PreStart: []models.TemplateRef{
			{Name: "addon-a", After: "base-one"},
			{Name: "addon-b", After: "base-one"},
			{Name: "addon-c", Before: "base-two"},
		},
	})

	b := NewBuilder(st, nil)
	r, err := b.Resolve(context.Background(), &Request{
		App:     loadApp(t, st, "demo"),
		Task:    models.TaskInstallation,
		Context: ContextInstall,
		Addons:  []string{"metrics"},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"base-one", "addon-a", "addon-b", "addon-c", "base-two"}
	if len(r.Steps) != len(want) {
		t.Fatalf("steps = %d, want %d", len(r.Steps), len(want))
	}
	for i, name := range want {
		if r.Steps[i].Trace.Name != name {
			t.Fatalf("step %d = %q, want %q", i, r.Steps[i].Trace.Name, name)
		}
	}
}

func TestResolveIncompatibleAddonIgnored(t *testing.T) {
	st, local := newTestStore(t)
	writeJSON(t, filepath.Join(local, "applications", "demo", "application.json"), &models.Application{
		Name:      "Demo",
		StackType: "oci-image",
		Installation: &models.Installation{
			PreStart: []models.TemplateRef{{Name: "base-one"}},
		},
	})
	writeTemplate(t, local, "demo", "base-one", &models.Template{
		Name:     "base-one",
		Commands: []models.Command{runCmd("run")},
	})
	writeJSON(t, filepath.Join(local, "addons", "compose-only.json"), &models.Addon{
		Name:       "Compose Only",
		Compatible: []string{"docker-compose"},
		PreStart:   []models.TemplateRef{{Name: "addon-a"}},
	})

	b := NewBuilder(st, nil)
	r, err := b.Resolve(context.Background(), &Request{
		App:     loadApp(t, st, "demo"),
		Task:    models.TaskInstallation,
		Context: ContextInstall,
		Addons:  []string{"compose-only"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Steps) != 1 || r.Steps[0].Trace.Name != "base-one" {
		t.Fatalf("incompatible addon must not be spliced, got %d steps", len(r.Steps))
	}
}

func TestResolveHostnameOverrides(t *testing.T) {
	st, local := newTestStore(t)
	writeJSON(t, filepath.Join(local, "applications", "my-app", "application.json"), &models.Application{
		Name:       "My App",
		Parameters: []models.Parameter{{ID: "hostname", Name: "Hostname", Required: true}},
		Installation: &models.Installation{
			Start: []models.TemplateRef{{Name: "start"}},
		},
	})
	writeTemplate(t, local, "my-app", "start", &models.Template{
		Name:     "Start",
		Commands: []models.Command{runCmd("start")},
	})

	b := NewBuilder(st, nil)
	app := loadApp(t, st, "my-app")

	r, err := b.Resolve(context.Background(), &Request{
		App: app, Task: models.TaskInstallation, Context: ContextCreate,
	})
	if err != nil {
		t.Fatal(err)
	}
	p := paramFor(r, "hostname")
	if p == nil {
		t.Fatal("hostname parameter missing")
	}
	if p.Required {
		t.Fatal("hostname must be optional at create time")
	}
	if p.Default != "my-app" {
		t.Fatalf("default = %v, want application id", p.Default)
	}

	r, err = b.Resolve(context.Background(), &Request{
		App: app, Task: models.TaskInstallation, Context: ContextInstall,
	})
	if err != nil {
		t.Fatal(err)
	}
	p = paramFor(r, "hostname")
	if p == nil || !p.Required {
		t.Fatal("hostname must stay required at install time without a fixed property")
	}
}

func TestResolveConditionalParameter(t *testing.T) {
	st, local := newTestStore(t)
	app := &models.Application{
		Name: "Demo",
		Installation: &models.Installation{
			Start: []models.TemplateRef{{Name: "fill-env"}},
		},
	}
	writeJSON(t, filepath.Join(local, "applications", "demo", "application.json"), app)
	writeTemplate(t, local, "demo", "fill-env", &models.Template{
		Name: "Fill Env",
		Parameters: []models.Parameter{
			{ID: "db_password", If: "env_file_has_markers", Secure: true},
		},
		Commands: []models.Command{runCmd("fill")},
	})

	b := NewBuilder(st, nil)

	r, err := b.Resolve(context.Background(), &Request{
		App: loadApp(t, st, "demo"), Task: models.TaskInstallation, Context: ContextInstall,
	})
	if err != nil {
		t.Fatal(err)
	}
	if paramFor(r, "db_password") != nil {
		t.Fatal("db_password must be hidden without the marker flag")
	}

	app.Properties = []models.OutputObject{{ID: "env_file_has_markers", Value: true}}
	writeJSON(t, filepath.Join(local, "applications", "demo2", "application.json"), app)
	writeTemplate(t, local, "demo2", "fill-env", &models.Template{
		Name: "Fill Env",
		Parameters: []models.Parameter{
			{ID: "db_password", If: "env_file_has_markers", Secure: true},
		},
		Commands: []models.Command{runCmd("fill")},
	})
	r, err = b.Resolve(context.Background(), &Request{
		App: loadApp(t, st, "demo2"), Task: models.TaskInstallation, Context: ContextInstall,
	})
	if err != nil {
		t.Fatal(err)
	}
	if paramFor(r, "db_password") == nil {
		t.Fatal("db_password must be visible when the marker flag property is true")
	}
}

func TestResolveFlatAndOrdering(t *testing.T) {
	st, local := newTestStore(t)
	writeJSON(t, filepath.Join(local, "applications", "demo", "application.json"), &models.Application{
		Name: "Demo",
		Installation: &models.Installation{
			Start: []models.TemplateRef{{Name: "configure"}},
		},
	})
	writeTemplate(t, local, "demo", "configure", &models.Template{
		Name: "Configure",
		Parameters: []models.Parameter{
			{ID: "opt_one", Advanced: true},
			{ID: "req_one", Required: true},
			{ID: "opt_two"},
			{ID: "req_two", Required: true},
		},
		Commands: []models.Command{runCmd("configure")},
	})

	b := NewBuilder(st, nil)
	r, err := b.Resolve(context.Background(), &Request{
		App: loadApp(t, st, "demo"), Task: models.TaskInstallation, Context: ContextInstall,
		Flat: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, p := range r.Parameters {
		ids = append(ids, p.ID)
		if p.Advanced {
			t.Fatalf("flat resolution must strip advanced, %s still flagged", p.ID)
		}
	}
	want := []string{"req_one", "req_two", "opt_one", "opt_two"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want required before optional in declaration order", ids)
		}
	}

	wantMissing := map[string]bool{"req_one": true, "req_two": true}
	if len(r.MissingRequired) != 2 {
		t.Fatalf("missing required = %v", r.MissingRequired)
	}
	for _, id := range r.MissingRequired {
		if !wantMissing[id] {
			t.Fatalf("unexpected missing required %q", id)
		}
	}
}

type fakeDiscovery struct {
	failFirst bool
	calls     int
	values    map[string][]string
}

func (f *fakeDiscovery) Discover(_ context.Context, kind string, refresh bool) ([]string, error) {
	f.calls++
	if f.failFirst && !refresh {
		return nil, errors.New("stale probe")
	}
	return f.values[kind], nil
}

func TestResolveEnumDiscovery(t *testing.T) {
	st, local := newTestStore(t)
	writeJSON(t, filepath.Join(local, "applications", "demo", "application.json"), &models.Application{
		Name: "Demo",
		Installation: &models.Installation{
			Start: []models.TemplateRef{{Name: "attach"}},
		},
	})
	writeTemplate(t, local, "demo", "attach", &models.Template{
		Name: "Attach",
		Parameters: []models.Parameter{
			{ID: "network", Type: models.TypeEnum},
			{ID: "gpu", Type: models.TypeEnum},
		},
		Commands: []models.Command{runCmd("attach")},
	})

	disc := &fakeDiscovery{
		failFirst: true,
		values: map[string][]string{
			"network": {"bridge", "host"},
			"gpu":     {},
		},
	}
	b := NewBuilder(st, disc)
	r, err := b.Resolve(context.Background(), &Request{
		App: loadApp(t, st, "demo"), Task: models.TaskInstallation, Context: ContextInstall,
	})
	if err != nil {
		t.Fatal(err)
	}

	p := paramFor(r, "network")
	if p == nil {
		t.Fatal("network parameter missing")
	}
	if len(p.EnumValues) != 2 || p.EnumValues[0] != "bridge" {
		t.Fatalf("enum values = %v, want discovered list after refresh retry", p.EnumValues)
	}
	if paramFor(r, "gpu") != nil {
		t.Fatal("empty discovered list must hide the field")
	}
}

func TestConditionEval(t *testing.T) {
	values := map[string]any{
		"flag_true":   true,
		"flag_string": "true",
		"flag_false":  false,
	}
	lookup := func(id string) any { return values[id] }

	if !Eval(nil, lookup) {
		t.Fatal("nil condition must be unconditional")
	}
	if !Eval(ParseCondition("flag_true"), lookup) || !Eval(ParseCondition("flag_string"), lookup) {
		t.Fatal("truthy flags must pass")
	}
	if Eval(ParseCondition("flag_false"), lookup) || Eval(ParseCondition("absent"), lookup) {
		t.Fatal("false or absent flags must fail")
	}

	if _, ok := ParseCondition("env_file_has_markers").(EnvMarkersPresent); !ok {
		t.Fatal("marker flag must parse to the marker predicate")
	}
}
