// Package validation provides input validation for identifiers, tasks, and
// upload destinations.
package validation

import (
	"regexp"
	"strings"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/models"
)

var applicationIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidateApplicationID checks the id used for application directories and
// container hostnames: lower-case alphanumerics and hyphens, starting with
// an alphanumeric.
func ValidateApplicationID(id string) error {
	if id == "" {
		return apperr.Validation("application id must not be empty")
	}
	if len(id) > 63 {
		return apperr.Validation("application id exceeds 63 characters")
	}
	if !applicationIDPattern.MatchString(id) {
		return apperr.Validation("application id %q may only contain lower-case letters, digits, and hyphens", id)
	}
	return nil
}

// ValidateTask checks a task name against the known set.
func ValidateTask(task string) error {
	switch task {
	case models.TaskInstallation, models.TaskBackup, models.TaskRestore:
		return nil
	}
	return apperr.Validation("unknown task %q", task)
}

// ValidateDestination checks an upload destination of the form
// "<volumeKey>:<path>".
func ValidateDestination(destination string) error {
	key, path, ok := strings.Cut(destination, ":")
	if !ok || key == "" || path == "" {
		return apperr.Validation("upload destination %q must have the form <volumeKey>:<path>", destination)
	}
	if strings.Contains(path, "..") {
		return apperr.Validation("upload destination path must not contain '..'")
	}
	if strings.ContainsAny(destination, "\x00\n\r") {
		return apperr.Validation("upload destination contains invalid characters")
	}
	return nil
}

// ValidateScriptName checks a template or script file name for traversal
// attempts before it is resolved against the store layers.
func ValidateScriptName(name string) error {
	if name == "" {
		return apperr.Validation("script name must not be empty")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\x00") {
		return apperr.Validation("script name %q contains invalid characters", name)
	}
	return nil
}
