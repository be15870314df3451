package models

// Addon is an optional template bundle that can be spliced into an
// application's install sequence. Compatible lists the stack types or base
// applications the addon may attach to; an empty list means any.
type Addon struct {
	ID          string        `json:"id,omitempty"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Compatible  []string      `json:"compatible,omitempty"`
	PreStart    []TemplateRef `json:"pre_start,omitempty"`
	PostStart   []TemplateRef `json:"post_start,omitempty"`
	Parameters  []Parameter   `json:"parameters,omitempty"`
}

// CompatibleWith reports whether the addon may be spliced into an
// application of the given stack type or base.
func (a *Addon) CompatibleWith(app *Application) bool {
	if len(a.Compatible) == 0 {
		return true
	}
	for _, c := range a.Compatible {
		if c == app.StackType || c == app.Extends {
			return true
		}
	}
	return false
}
