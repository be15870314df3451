package target

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/config"
)

func TestParse(t *testing.T) {
	hosts := map[string]config.SSHHost{
		"backup": {Address: "10.0.0.5", User: "root", KeyFile: "/etc/deployer/id_ed25519"},
	}

	tgt, err := Parse("ve", "", hosts)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tgt.(*HostTarget); !ok {
		t.Fatalf("ve parsed to %T", tgt)
	}

	tgt, err = Parse("", "", hosts)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tgt.(*HostTarget); !ok {
		t.Fatalf("empty spec parsed to %T", tgt)
	}

	tgt, err = Parse("lxc", "105", hosts)
	if err != nil {
		t.Fatal(err)
	}
	ct, ok := tgt.(*ContainerTarget)
	if !ok || ct.VMID != "105" {
		t.Fatalf("lxc parsed to %T %+v", tgt, tgt)
	}

	if _, err = Parse("lxc", "", hosts); !apperr.IsKind(err, apperr.KindConfiguration) {
		t.Fatalf("lxc without vmid: err = %v", err)
	}

	tgt, err = Parse("host:backup", "", hosts)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := tgt.(*SSHTarget)
	if !ok || st.Name != "backup" || st.Host.Address != "10.0.0.5" {
		t.Fatalf("host spec parsed to %T %+v", tgt, tgt)
	}

	if _, err = Parse("host:unknown", "", hosts); !apperr.IsKind(err, apperr.KindConfiguration) {
		t.Fatalf("unknown host: err = %v", err)
	}
	if _, err = Parse("vm", "", hosts); !apperr.IsKind(err, apperr.KindConfiguration) {
		t.Fatalf("unknown spec: err = %v", err)
	}
}

func TestHostTargetRun(t *testing.T) {
	tgt := &HostTarget{}

	res, err := tgt.Run(context.Background(), "echo OUTPUT vm_id=105; echo warn >&2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "OUTPUT vm_id=105") {
		t.Fatalf("stdout = %q", res.Stdout)
	}
	if !strings.Contains(res.Stderr, "warn") {
		t.Fatalf("stderr = %q", res.Stderr)
	}
}

func TestHostTargetExitCode(t *testing.T) {
	res, err := (&HostTarget{}).Run(context.Background(), "exit 3", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestHostTargetTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := (&HostTarget{}).Run(ctx, "sleep 5", nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestHostTargetStreamsStdout(t *testing.T) {
	var lines []string
	res, err := (&HostTarget{}).Run(context.Background(), "echo one; echo two", func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Fatalf("streamed lines = %v", lines)
	}
	if res.Stdout != "one\ntwo\n" {
		t.Fatalf("collected stdout = %q", res.Stdout)
	}
}

func TestDescribe(t *testing.T) {
	if d := (&HostTarget{}).Describe(); d != "ve" {
		t.Fatalf("Describe = %q", d)
	}
	if d := (&ContainerTarget{VMID: "105"}).Describe(); d != "lxc:105" {
		t.Fatalf("Describe = %q", d)
	}
	if d := (&SSHTarget{Name: "backup"}).Describe(); d != "host:backup" {
		t.Fatalf("Describe = %q", d)
	}
}
