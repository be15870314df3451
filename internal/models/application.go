package models

import "encoding/json"

// Application is a concrete, persisted installable unit. The ID is never
// stored inside the JSON file itself; it is derived from the storage
// directory name and injected on read.
type Application struct {
	ID           string         `json:"-"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Extends      string         `json:"extends,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	StackType    string         `json:"stacktype,omitempty"`
	Installation *Installation  `json:"installation,omitempty"`
	Backup       *Installation  `json:"backup,omitempty"`
	Restore      *Installation  `json:"restore,omitempty"`
	Parameters   []Parameter    `json:"parameters,omitempty"`
	Properties   []OutputObject `json:"properties,omitempty"`
}

// Installation groups the ordered template references for one task.
type Installation struct {
	Image     []TemplateRef `json:"image,omitempty"`
	PreStart  []TemplateRef `json:"pre_start,omitempty"`
	Start     []TemplateRef `json:"start,omitempty"`
	PostStart []TemplateRef `json:"post_start,omitempty"`
}

// CategoryNames is the fixed expansion order of installation categories.
var CategoryNames = []string{"image", "pre_start", "start", "post_start"}

// Category returns the named category list.
func (i *Installation) Category(name string) []TemplateRef {
	if i == nil {
		return nil
	}
	switch name {
	case "image":
		return i.Image
	case "pre_start":
		return i.PreStart
	case "start":
		return i.Start
	case "post_start":
		return i.PostStart
	}
	return nil
}

// TemplateRef names a template, optionally anchored relative to another
// template already in the sequence (used by add-on splicing).
type TemplateRef struct {
	Name   string
	Before string
	After  string
}

// UnmarshalJSON accepts both the bare-string and the anchored object form.
func (r *TemplateRef) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.Name = name
		return nil
	}

	var obj struct {
		Name   string `json:"name"`
		Before string `json:"before,omitempty"`
		After  string `json:"after,omitempty"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.Name = obj.Name
	r.Before = obj.Before
	r.After = obj.After
	return nil
}

// MarshalJSON writes the compact string form when no anchor is set.
func (r TemplateRef) MarshalJSON() ([]byte, error) {
	if r.Before == "" && r.After == "" {
		return json.Marshal(r.Name)
	}
	return json.Marshal(struct {
		Name   string `json:"name"`
		Before string `json:"before,omitempty"`
		After  string `json:"after,omitempty"`
	}{r.Name, r.Before, r.After})
}

// OutputObject is a fixed property value baked into an application at
// synthesis time, or a value produced by a command at execution time.
type OutputObject struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// Property returns the fixed property with the given id, or nil.
func (a *Application) Property(id string) *OutputObject {
	for i := range a.Properties {
		if a.Properties[i].ID == id {
			return &a.Properties[i]
		}
	}
	return nil
}

// Parameter returns the declared parameter with the given id, or nil.
func (a *Application) Parameter(id string) *Parameter {
	for i := range a.Parameters {
		if a.Parameters[i].ID == id {
			return &a.Parameters[i]
		}
	}
	return nil
}

// Task names understood by the graph builder.
const (
	TaskInstallation = "installation"
	TaskBackup       = "backup"
	TaskRestore      = "restore"
)

// Task selects the template reference section for a task name. Unknown
// tasks resolve to nil.
func (a *Application) Task(task string) *Installation {
	switch task {
	case TaskInstallation:
		return a.Installation
	case TaskBackup:
		return a.Backup
	case TaskRestore:
		return a.Restore
	}
	return nil
}
