package daemon

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tiedsiren/tiedsiren/internal/config"
	"github.com/tiedsiren/tiedsiren/internal/lookout"
	"github.com/tiedsiren/tiedsiren/internal/testutil"
)

func TestServiceConfig(t *testing.T) {
	args := []string{"daemon", "run", "--home", "/home/me"}
	cfg := ServiceConfig("/usr/local/bin/tiedsiren", args, true)

	testutil.RequireEqual(t, ServiceName, cfg.Name, "name")
	testutil.RequireEqual(t, "/usr/local/bin/tiedsiren", cfg.Executable, "executable")
	if diff := cmp.Diff(args, cfg.Arguments); diff != "" {
		t.Fatalf("arguments mismatch (-want +got):\n%s", diff)
	}
	if cfg.Option["UserService"] != true {
		t.Fatalf("expected UserService option, got %v", cfg.Option)
	}

	args[0] = "mutated"
	if cfg.Arguments[0] != "daemon" {
		t.Fatalf("arguments should be copied")
	}

	system := ServiceConfig("/usr/local/bin/tiedsiren", nil, false)
	if _, ok := system.Option["UserService"]; ok {
		t.Fatalf("system service should not set UserService")
	}
}

func TestProgram_StartStopRunsDaemon(t *testing.T) {
	h := testutil.NewHarness(t)
	cfg := config.DefaultConfig()
	cfg.Daemon.UseFileWatcher = false
	cfg.Notifications.DesktopEnabled = false

	d, err := New(Options{
		DataDir: h.DataDir,
		Config:  cfg,
		Logger:  testutil.TestLogger(t),
		Lookout: lookout.NewMemory(),
	})
	testutil.RequireNoError(t, err, "new daemon")

	p := &program{d: d}
	testutil.RequireNoError(t, p.Start(nil), "start")
	<-d.Ready()
	testutil.RequireEqual(t, StatusRunning, GetStatusInfo(PIDFile(h.DataDir)).Status, "status while running")

	testutil.RequireNoError(t, p.Stop(nil), "stop")
	testutil.RequireEqual(t, StatusNotRunning, GetStatusInfo(PIDFile(h.DataDir)).Status, "status after stop")
}

func TestProgram_StopBeforeStart(t *testing.T) {
	p := &program{}
	testutil.RequireNoError(t, p.Stop(nil), "stop without start")
}

func TestControlService_RejectsUnknownAction(t *testing.T) {
	err := ControlService(nil, "explode")
	if err == nil || !strings.Contains(err.Error(), "unknown service action") {
		t.Fatalf("expected unknown action error, got %v", err)
	}
}
