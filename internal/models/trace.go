package models

// ParameterSource says why a parameter has the value it has. Exactly one
// source is recorded per parameter per resolution pass.
type ParameterSource string

const (
	SourceUserInput          ParameterSource = "user_input"
	SourceTemplateOutput     ParameterSource = "template_output"
	SourceTemplateProperties ParameterSource = "template_properties"
	SourceDefault            ParameterSource = "default"
	SourceMissing            ParameterSource = "missing"
)

// SourceKind distinguishes where inside the source template a value came
// from when the source is a template.
type SourceKind string

const (
	KindOutputs    SourceKind = "outputs"
	KindProperties SourceKind = "properties"
)

// ParameterTraceEntry records the resolved value of one parameter and the
// reason it has that value.
type ParameterTraceEntry struct {
	ID             string          `json:"id"`
	Value          any             `json:"value,omitempty"`
	Source         ParameterSource `json:"source"`
	SourceTemplate string          `json:"sourceTemplate,omitempty"`
	SourceKind     SourceKind      `json:"sourceKind,omitempty"`
}

// TemplateOrigin says which store layer a template was loaded from.
type TemplateOrigin string

const (
	OriginApplicationLocal TemplateOrigin = "application-local"
	OriginApplicationJSON  TemplateOrigin = "application-json"
	OriginSharedLocal      TemplateOrigin = "shared-local"
	OriginSharedJSON       TemplateOrigin = "shared-json"
	OriginUnknown          TemplateOrigin = "unknown"
)

// TemplateTraceEntry records whether and why a template was included in a
// task's ordered trace.
type TemplateTraceEntry struct {
	Name        string         `json:"name"`
	Path        string         `json:"path,omitempty"`
	Origin      TemplateOrigin `json:"origin"`
	IsShared    bool           `json:"isShared"`
	Skipped     bool           `json:"skipped"`
	Conditional bool           `json:"conditional"`
}
