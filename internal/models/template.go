package models

import "encoding/json"

// Template is a named unit of one or more commands plus the parameters they
// need, executed on a specific target.
type Template struct {
	Name              string      `json:"name"`
	Description       string      `json:"description,omitempty"`
	ExecuteOn         string      `json:"execute_on,omitempty"`
	SkipIfAllMissing  []string    `json:"skip_if_all_missing,omitempty"`
	SkipIfPropertySet string      `json:"skip_if_property_set,omitempty"`
	Parameters        []Parameter `json:"parameters,omitempty"`
	Commands          []Command   `json:"commands"`
}

// Command is a single executable step of a template. Exactly one of
// Command and Script is set; Library names a shared script prepended to
// Script before execution. Outputs declares the parameter ids the command
// is expected to produce.
type Command struct {
	Name       string         `json:"name"`
	Command    string         `json:"command,omitempty"`
	Script     string         `json:"script,omitempty"`
	Library    string         `json:"library,omitempty"`
	Outputs    []OutputRef    `json:"outputs,omitempty"`
	Properties []OutputObject `json:"properties,omitempty"`
}

// OutputRef is either a bare output-id string or {id, default}.
type OutputRef struct {
	ID      string
	Default any
}

// UnmarshalJSON accepts both the bare-string and the object form.
func (o *OutputRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		o.ID = id
		return nil
	}

	var obj struct {
		ID      string `json:"id"`
		Default any    `json:"default,omitempty"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	o.ID = obj.ID
	o.Default = obj.Default
	return nil
}

// MarshalJSON writes the compact string form when no default is set.
func (o OutputRef) MarshalJSON() ([]byte, error) {
	if o.Default == nil {
		return json.Marshal(o.ID)
	}
	return json.Marshal(struct {
		ID      string `json:"id"`
		Default any    `json:"default,omitempty"`
	}{o.ID, o.Default})
}

// Parameter types.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeEnum    = "enum"
)

// Parameter is a user-editable input of a template or application.
type Parameter struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Type         string   `json:"type,omitempty"`
	Required     bool     `json:"required,omitempty"`
	Advanced     bool     `json:"advanced,omitempty"`
	Upload       bool     `json:"upload,omitempty"`
	Secure       bool     `json:"secure,omitempty"`
	Default      any      `json:"default,omitempty"`
	EnumValues   []string `json:"enumValues,omitempty"`
	TemplateName string   `json:"templatename,omitempty"`
	If           string   `json:"if,omitempty"`
	CertType     string   `json:"certtype,omitempty"`
}

// ParameterValue is a caller-supplied value for a named parameter.
type ParameterValue struct {
	ID    string `json:"id" binding:"required"`
	Value any    `json:"value"`
}

// UploadFile describes a file to place inside a container volume. The
// destination has the form "<volumeKey>:<path>"; content is base64.
type UploadFile struct {
	Destination string `json:"destination" binding:"required"`
	Content     string `json:"content,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Advanced    bool   `json:"advanced,omitempty"`
	CertType    string `json:"certtype,omitempty"`
	Label       string `json:"label,omitempty"`
}
