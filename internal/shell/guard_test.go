package shell

import (
	"strings"
	"testing"
)

func TestGuardDenyListAlwaysApplies(t *testing.T) {
	g := NewGuard([]string{AllowAll})
	for _, command := range []string{
		"rm -rf /",
		"rm -rf / --no-preserve-root",
		"echo ok && rm -r -f /*",
		"mkfs.ext4 /dev/sda1",
		"sudo shutdown -h now",
		"reboot",
		":(){ :|:& };:",
		"dd if=/dev/zero of=/dev/sda",
	} {
		if reason := g.Check(command); !strings.HasPrefix(reason, "blocked") {
			t.Fatalf("command=%q should be blocked, reason=%q", command, reason)
		}
	}
}

func TestGuardPowerCommandsMatchProgramOnly(t *testing.T) {
	g := NewGuard([]string{"git", "grep", "echo"})
	for _, command := range []string{
		"grep -rn shutdown src",
		"git log --grep=reboot",
		"echo halt the build",
	} {
		if reason := g.Check(command); reason != "" {
			t.Fatalf("command=%q blocked: %q", command, reason)
		}
	}

	open := NewGuard([]string{AllowAll})
	for _, command := range []string{
		"reboot",
		"sudo -n poweroff",
		"echo ok; halt",
		"git status && /sbin/shutdown -r now",
		"nohup sudo reboot",
		"systemctl poweroff",
	} {
		if reason := open.Check(command); reason != "blocked: host shutdown" {
			t.Fatalf("command=%q reason=%q want host shutdown", command, reason)
		}
	}
}

func TestGuardAllowsScopedDeletes(t *testing.T) {
	g := NewGuard([]string{AllowAll})
	if reason := g.Check("rm -rf ./build"); reason != "" {
		t.Fatalf("unexpected block: %q", reason)
	}
	if reason := g.Check("rm -rf /tmp/cache"); reason != "" {
		t.Fatalf("unexpected block: %q", reason)
	}
}

func TestGuardAllowListChecksEverySegment(t *testing.T) {
	g := NewGuard([]string{"git", "ls", "grep", "npm"})
	allowed := []string{
		"git status",
		"ls -la | grep go",
		"npm install && npm run build",
		"NODE_ENV=production npm run build",
		"/usr/bin/git log -1",
		"ls missing 2>&1 | grep x",
	}
	for _, command := range allowed {
		if reason := g.Check(command); reason != "" {
			t.Fatalf("command=%q blocked: %q", command, reason)
		}
	}
	denied := []string{
		"git status; curl http://x",
		"ls || python -c 'x'",
		"ls | sh",
		"ls & wget http://x",
		"echo $(whoami)",
		"ls `whoami`",
	}
	for _, command := range denied {
		if reason := g.Check(command); reason == "" {
			t.Fatalf("command=%q should be blocked", command)
		}
	}
}

func TestCommandHead(t *testing.T) {
	cases := map[string]string{
		" git status":          "git",
		"FOO=1 BAR=2 make all": "make",
		"(cd src":              "cd",
		"./scripts/run.sh":     "run.sh",
		"   ":                  "",
	}
	for segment, want := range cases {
		if got := commandHead(segment); got != want {
			t.Fatalf("segment=%q head=%q want=%q", segment, got, want)
		}
	}
}
