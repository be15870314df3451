package graph

import "github.com/ocilxc/lxc-deployer/internal/models"

// ResolveContext distinguishes the create-time (preview) surface from the
// install-time surface; requiredness differs between them.
type ResolveContext string

const (
	// ContextCreate is the pre-persistence preview surface.
	ContextCreate ResolveContext = "create"
	// ContextInstall is the install/config submission surface.
	ContextInstall ResolveContext = "install"
)

// override adjusts visibility or requiredness of one parameter for a
// stack type and context. Kept as a table rather than ad hoc branches so
// the full policy is inspectable in one place.
type override struct {
	param     string
	stackType string         // empty matches any stack type
	context   ResolveContext // empty matches any context
	required  *bool
	// defaultToAppID fills the parameter default with the applicationId
	// when no default is present.
	defaultToAppID bool
	// onlyWithoutProperty restricts the override to applications that do
	// not already carry a fixed property of the same id.
	onlyWithoutProperty bool
}

var overrides = []override{
	{param: "hostname", context: ContextCreate, required: boolPtr(false), defaultToAppID: true},
	{param: "hostname", context: ContextInstall, required: boolPtr(true), onlyWithoutProperty: true},
	{param: "volumes", stackType: "oci-image", required: boolPtr(false)},
	{param: "compose_file", stackType: "docker-compose", required: boolPtr(true)},
}

func boolPtr(b bool) *bool { return &b }

// applyOverrides mutates a parameter according to the override table.
func applyOverrides(p *models.Parameter, app *models.Application, rctx ResolveContext) {
	for _, o := range overrides {
		if o.param != p.ID {
			continue
		}
		if o.stackType != "" && o.stackType != app.StackType {
			continue
		}
		if o.context != "" && o.context != rctx {
			continue
		}
		if o.onlyWithoutProperty && app.Property(p.ID) != nil {
			continue
		}
		if o.required != nil {
			p.Required = *o.required
		}
		if o.defaultToAppID && p.Default == nil {
			p.Default = app.ID
		}
	}
}
