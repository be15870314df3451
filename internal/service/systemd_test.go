package service

import (
	"strings"
	"testing"
)

func TestGenerateServiceFile(t *testing.T) {
	cfg := ServiceConfig{
		ExecPath:   "/usr/local/bin/lxc-deployer",
		ConfigPath: "/etc/lxc-deployer/config.yaml",
		User:       "root",
		WorkingDir: "/etc/lxc-deployer",
	}

	content, err := GenerateServiceFile(cfg)
	if err != nil {
		t.Fatalf("GenerateServiceFile() error = %v", err)
	}

	wantLines := []string{
		"ExecStart=/usr/local/bin/lxc-deployer -config /etc/lxc-deployer/config.yaml",
		"User=root",
		"WorkingDirectory=/etc/lxc-deployer",
		"WantedBy=multi-user.target",
	}
	for _, line := range wantLines {
		if !strings.Contains(content, line) {
			t.Errorf("service file missing %q:\n%s", line, content)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ConfigPath != "/etc/lxc-deployer/config.yaml" {
		t.Errorf("ConfigPath = %s", cfg.ConfigPath)
	}
	if cfg.ExecPath == "" {
		t.Error("ExecPath is empty")
	}
}
