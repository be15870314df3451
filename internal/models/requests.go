package models

// CreateApplicationRequest contains the data for synthesizing a new
// application from a framework.
type CreateApplicationRequest struct {
	FrameworkID     string           `json:"framework_id" binding:"required"`
	ApplicationID   string           `json:"application_id" binding:"required"`
	Name            string           `json:"name" binding:"required"`
	Description     string           `json:"description"`
	ParameterValues []ParameterValue `json:"parameter_values"`
	UploadFiles     []UploadFile     `json:"uploadfiles"`
	Tags            []string         `json:"tags"`
	StackType       string           `json:"stacktype"`
	Update          bool             `json:"update"`
}

// PreviewRequest asks for the unresolved parameters of a pending or
// persisted application given the values supplied so far.
type PreviewRequest struct {
	FrameworkID     string           `json:"framework_id"`
	ApplicationID   string           `json:"application_id"`
	ParameterValues []ParameterValue `json:"parameter_values"`
	UploadFiles     []UploadFile     `json:"uploadfiles"`
}

// InstallRequest submits a configuration and triggers execution of a task.
// ChangedParams names the parameters the client actually edited; masked
// secure values echoed back unchanged are discarded unless listed there.
type InstallRequest struct {
	Task          string           `json:"task"`
	Params        []ParameterValue `json:"params"`
	ChangedParams []string         `json:"changed_params"`
	Addons        []string         `json:"addons"`
	StackID       string           `json:"stack_id"`
}

// InstallResponse returns the restart handles for a started execution.
type InstallResponse struct {
	Success      bool   `json:"success"`
	RestartKey   string `json:"restart_key,omitempty"`
	VMInstallKey string `json:"vm_install_key,omitempty"`
}

// RestartRequest retries the last failed step of an install.
type RestartRequest struct {
	RestartKey string `json:"restart_key" binding:"required"`
}

// ReinstallRequest discards a partially created install and restarts it
// from the first template.
type ReinstallRequest struct {
	VMInstallKey string `json:"vm_install_key" binding:"required"`
}

// ReinstallResponse carries the replacement key for further restarts.
type ReinstallResponse struct {
	VMInstallKey string `json:"vm_install_key"`
}

// CreateStackRequest creates a named secret stack.
type CreateStackRequest struct {
	Name    string            `json:"name" binding:"required"`
	Entries map[string]string `json:"entries"`
}

// Stack is a named set of secret key/value entries used to fill marker
// placeholders in environment configuration. Values are stored encrypted
// and never serialized back to clients.
type Stack struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Keys []string `json:"keys"`
}
