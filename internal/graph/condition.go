package graph

// Condition is the closed set of predicates a parameter's "if" field can
// express. Keeping this a tagged variant means new predicates are handled
// exhaustively instead of through string dispatch.
type Condition interface {
	isCondition()
}

// FlagRef gates visibility on another parameter resolving to a truthy
// boolean.
type FlagRef struct {
	ID string
}

// EnvMarkersPresent gates visibility on the uploaded env file containing
// unresolved {{ name }} markers.
type EnvMarkersPresent struct{}

func (FlagRef) isCondition()           {}
func (EnvMarkersPresent) isCondition() {}

// envMarkersFlag is the property the synthesizer sets when markers are
// detected.
const envMarkersFlag = "env_file_has_markers"

// ParseCondition maps the raw "if" string onto the closed predicate set.
// An empty string means unconditional.
func ParseCondition(raw string) Condition {
	if raw == "" {
		return nil
	}
	if raw == envMarkersFlag {
		return EnvMarkersPresent{}
	}
	return FlagRef{ID: raw}
}

// Eval evaluates a condition. The lookup covers effective values, fixed
// properties, and declared outputs so a flag set only as a property still
// gates visibility.
func Eval(c Condition, lookup func(id string) any) bool {
	switch cond := c.(type) {
	case nil:
		return true
	case FlagRef:
		return truthy(lookup(cond.ID))
	case EnvMarkersPresent:
		return truthy(lookup(envMarkersFlag))
	}
	return false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true"
	}
	return false
}
