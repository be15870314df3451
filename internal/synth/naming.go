package synth

import (
	"strings"
	"unicode"
)

// sanitizeName lower-cases the input and replaces every run of characters
// outside [a-z0-9] with a single '-', trimming the ends. Used for template
// and script file names.
func sanitizeName(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		} else {
			pendingDash = true
		}
	}
	return b.String()
}

// paramIDBase is the parameter-id form of a sanitized name: the same
// derivation with '-' further converted to '_'. Restart and resume
// correctness depends on this being stable, so every caller (synthesis,
// preview, clients) must use the same rule.
func paramIDBase(s string) string {
	return strings.ReplaceAll(sanitizeName(s), "-", "_")
}

// uploadBaseName extracts the naming source from an upload destination of
// the form "<volumeKey>:<path>": the file name of the path part, falling
// back to the whole destination when the path is empty.
func uploadBaseName(destination string) string {
	s := destination
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		s = destination
	}
	return s
}

// ContentParamID derives the content parameter id for an upload
// destination.
func ContentParamID(destination string) string {
	return "upload_" + paramIDBase(uploadBaseName(destination)) + "_content"
}

// DestinationParamID derives the destination parameter id for an upload
// destination.
func DestinationParamID(destination string) string {
	return "upload_" + paramIDBase(uploadBaseName(destination)) + "_destination"
}

// UploadedOutputID derives the boolean output id an upload command
// produces.
func UploadedOutputID(destination string) string {
	return "upload_" + paramIDBase(uploadBaseName(destination)) + "_uploaded"
}

// UploadTemplateName derives the generated template file name for an
// upload destination.
func UploadTemplateName(destination string) string {
	return "upload-" + sanitizeName(uploadBaseName(destination)) + ".json"
}

// UploadScriptName derives the generated script file name for an upload
// destination.
func UploadScriptName(destination string) string {
	return "upload-" + sanitizeName(uploadBaseName(destination)) + ".sh"
}
