package synth

import (
	"encoding/base64"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// frameworkPolicy captures the framework-specific synthesis rules that are
// not expressible in the framework JSON itself.
type frameworkPolicy struct {
	// dropProperties are parameter ids that must never be persisted for
	// this framework, even when the caller supplies a value.
	dropProperties []string
	// hostnameFallback defaults the hostname parameter and property to the
	// applicationId when the caller omits it.
	hostnameFallback bool
	// detectEnvMarkers sets env_file_has_markers=true when the decoded
	// env_file content contains {{ name }} placeholders.
	detectEnvMarkers bool
	// extractVolumes derives the volumes property from the compose file
	// when the caller supplies a compose_file but no volumes.
	extractVolumes bool
}

var defaultPolicy = frameworkPolicy{
	hostnameFallback: true,
	detectEnvMarkers: true,
}

var frameworkPolicies = map[string]frameworkPolicy{
	"oci-image": {
		dropProperties:   []string{"compose_file"},
		hostnameFallback: true,
		detectEnvMarkers: true,
	},
	"docker-compose": {
		hostnameFallback: true,
		detectEnvMarkers: true,
		extractVolumes:   true,
	},
}

func policyFor(frameworkID string) frameworkPolicy {
	if p, ok := frameworkPolicies[frameworkID]; ok {
		return p
	}
	return defaultPolicy
}

func (p frameworkPolicy) drops(id string) bool {
	for _, d := range p.dropProperties {
		if d == id {
			return true
		}
	}
	return false
}

var markerPattern = regexp.MustCompile(`\{\{\s*[A-Za-z0-9_]+\s*\}\}`)

// hasMarkers reports whether base64-encoded env file content contains
// {{ name }} placeholder syntax.
func hasMarkers(contentBase64 string) bool {
	decoded, err := base64.StdEncoding.DecodeString(contentBase64)
	if err != nil {
		// Not base64: check the raw text.
		return markerPattern.MatchString(contentBase64)
	}
	return markerPattern.Match(decoded)
}

// extractComposeVolumes parses a compose file and returns its named
// top-level volumes as "<name>=<name>" pairs joined by commas, the format
// the shared volume templates consume.
func extractComposeVolumes(contentBase64 string) string {
	decoded, err := base64.StdEncoding.DecodeString(contentBase64)
	if err != nil {
		decoded = []byte(contentBase64)
	}

	var compose struct {
		Volumes map[string]any `yaml:"volumes"`
	}
	if err := yaml.Unmarshal(decoded, &compose); err != nil {
		return ""
	}

	names := make([]string, 0, len(compose.Volumes))
	for name := range compose.Volumes {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+name)
	}
	return strings.Join(pairs, ",")
}
