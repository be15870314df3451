// Package models defines the data model for frameworks, applications,
// templates, and execution message streams.
package models

import "encoding/json"

// Framework is a parameterized blueprint an application can be synthesized
// from. Properties list the parameter ids the framework pins; an entry with
// Default=true is promoted to a user-editable parameter at synthesis time.
type Framework struct {
	ID          string        `json:"id,omitempty"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Extends     string        `json:"extends"`
	Properties  []PropertyRef `json:"properties"`
}

// PropertyRef is either a bare parameter-id string (fixed value) or an
// object {id, default:true} (promoted to a user-editable parameter).
type PropertyRef struct {
	ID      string
	Default bool
}

// UnmarshalJSON accepts both the bare-string and the object form.
func (p *PropertyRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		p.ID = id
		p.Default = false
		return nil
	}

	var obj struct {
		ID      string `json:"id"`
		Default bool   `json:"default"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.ID = obj.ID
	p.Default = obj.Default
	return nil
}

// MarshalJSON writes the compact string form when Default is unset.
func (p PropertyRef) MarshalJSON() ([]byte, error) {
	if !p.Default {
		return json.Marshal(p.ID)
	}
	return json.Marshal(struct {
		ID      string `json:"id"`
		Default bool   `json:"default"`
	}{p.ID, p.Default})
}
