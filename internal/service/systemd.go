// Package service installs and manages the deployer's systemd unit.
package service

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const (
	serviceName     = "lxc-deployer"
	serviceFilePath = "/etc/systemd/system/lxc-deployer.service"
)

// ServiceStatus represents the status of the systemd service.
type ServiceStatus struct {
	IsRunning   bool   `json:"is_running"`
	IsEnabled   bool   `json:"is_enabled"`
	IsInstalled bool   `json:"is_installed"`
	ActiveState string `json:"active_state"`
	SubState    string `json:"sub_state"`
}

// ServiceConfig holds configuration for service installation.
type ServiceConfig struct {
	ExecPath   string
	ConfigPath string
	User       string
	WorkingDir string
}

const serviceTemplate = `[Unit]
Description=LXC Deployer - container provisioning service
Documentation=https://github.com/ocilxc/lxc-deployer
After=network.target

[Service]
Type=simple
User={{.User}}
Group={{.User}}
WorkingDirectory={{.WorkingDir}}
ExecStart={{.ExecPath}} -config {{.ConfigPath}}
Restart=always
RestartSec=5
StandardOutput=journal
StandardError=journal

[Install]
WantedBy=multi-user.target
`

// GenerateServiceFile renders the systemd unit for the given configuration.
func GenerateServiceFile(cfg ServiceConfig) (string, error) {
	tmpl, err := template.New("service").Parse(serviceTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse service template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return "", fmt.Errorf("failed to execute service template: %w", err)
	}

	return buf.String(), nil
}

func checkEnvironment() error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("service management only supported on Linux")
	}
	if _, err := exec.LookPath("systemctl"); err != nil {
		return fmt.Errorf("systemd not available on this system")
	}
	if os.Geteuid() != 0 {
		return fmt.Errorf("root privileges required for service management")
	}
	return nil
}

// Install writes the unit file, then enables and starts the service.
func Install(cfg ServiceConfig) error {
	if err := checkEnvironment(); err != nil {
		return err
	}

	content, err := GenerateServiceFile(cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(serviceFilePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	if err := runSystemctl("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if err := runSystemctl("enable", serviceName); err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}
	if err := runSystemctl("start", serviceName); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	return nil
}

// Uninstall stops and removes the systemd service.
func Uninstall() error {
	if err := checkEnvironment(); err != nil {
		return err
	}

	_ = runSystemctl("stop", serviceName)
	_ = runSystemctl("disable", serviceName)

	if err := os.Remove(serviceFilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove service file: %w", err)
	}

	if err := runSystemctl("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	return nil
}

// Status returns the current service status.
func Status() (*ServiceStatus, error) {
	status := &ServiceStatus{}

	if runtime.GOOS != "linux" {
		return status, nil
	}
	if _, err := exec.LookPath("systemctl"); err != nil {
		return status, nil
	}

	if _, err := os.Stat(serviceFilePath); err == nil {
		status.IsInstalled = true
	}

	if activeState, err := getSystemctlProperty("ActiveState"); err == nil {
		status.ActiveState = activeState
		status.IsRunning = activeState == "active"
	}
	if subState, err := getSystemctlProperty("SubState"); err == nil {
		status.SubState = subState
	}

	output, err := exec.Command("systemctl", "is-enabled", serviceName).Output()
	if err == nil {
		status.IsEnabled = strings.TrimSpace(string(output)) == "enabled"
	}

	return status, nil
}

// DefaultConfig returns the service configuration for the running binary.
func DefaultConfig() ServiceConfig {
	execPath, _ := os.Executable()
	execPath, _ = filepath.EvalSymlinks(execPath)

	return ServiceConfig{
		ExecPath:   execPath,
		ConfigPath: "/etc/lxc-deployer/config.yaml",
		User:       "root",
		WorkingDir: "/etc/lxc-deployer",
	}
}

func runSystemctl(args ...string) error {
	cmd := exec.Command("systemctl", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", err, string(output))
	}
	return nil
}

func getSystemctlProperty(property string) (string, error) {
	cmd := exec.Command("systemctl", "show", serviceName, "--property="+property, "--value")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}
