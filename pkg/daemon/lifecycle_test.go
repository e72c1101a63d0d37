package daemon_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jamesainslie/shelf/pkg/daemon"
)

// deadPID is a PID no test machine will have in use.
const deadPID = 999999999

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestPIDFileLifecycle(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "run", "shelf.pid")

	if daemon.IsDaemonRunning(pidPath) {
		t.Fatal("IsDaemonRunning() = true without a PID file")
	}

	if err := daemon.WritePIDFile(pidPath); err != nil {
		t.Fatalf("WritePIDFile failed: %v", err)
	}
	pid, err := daemon.ReadPIDFile(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFile failed: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPIDFile() = %d, want %d", pid, os.Getpid())
	}
	if !daemon.IsDaemonRunning(pidPath) {
		t.Error("IsDaemonRunning() = false for the current process")
	}

	if err := daemon.RemovePIDFile(pidPath); err != nil {
		t.Fatalf("RemovePIDFile failed: %v", err)
	}
	if daemon.IsDaemonRunning(pidPath) {
		t.Error("IsDaemonRunning() = true after RemovePIDFile")
	}
}

func TestReadPIDFileInvalid(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "shelf.pid")
	writeFile(t, pidPath, "not-a-number")

	if _, err := daemon.ReadPIDFile(pidPath); err == nil {
		t.Error("ReadPIDFile() should fail on garbage")
	}
	if daemon.IsDaemonRunning(pidPath) {
		t.Error("IsDaemonRunning() = true for an invalid PID file")
	}
}

func TestRecoverFromStaleDaemon(t *testing.T) {
	tests := []struct {
		name       string
		pid        string // "" means no PID file
		wantErr    error
		wantExists bool // whether the artifacts survive
	}{
		{name: "no pid file", pid: "", wantExists: true},
		{name: "invalid pid", pid: "garbage", wantExists: true},
		{name: "running", pid: strconv.Itoa(os.Getpid()), wantErr: daemon.ErrDaemonAlreadyRunning, wantExists: true},
		{name: "stale", pid: strconv.Itoa(deadPID), wantExists: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			pidPath := filepath.Join(dir, "shelf.pid")
			socketPath := filepath.Join(dir, "shelf.sock")
			dbPath := filepath.Join(dir, "library.db")
			lockPath := filepath.Join(dbPath, "LOCK")

			if tt.pid != "" {
				writeFile(t, pidPath, tt.pid)
			}
			writeFile(t, socketPath, "fake socket")
			writeFile(t, lockPath, "fake lock")

			err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, dbPath)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RecoverFromStaleDaemon() error = %v, want %v", err, tt.wantErr)
			}
			for _, path := range []string{socketPath, lockPath} {
				if exists(path) != tt.wantExists {
					t.Errorf("%s exists = %v, want %v", filepath.Base(path), exists(path), tt.wantExists)
				}
			}
			if tt.name == "stale" && exists(pidPath) {
				t.Error("stale PID file was not removed")
			}
		})
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !daemon.IsProcessRunning(os.Getpid()) {
		t.Error("Expected current process to be running")
	}
	if daemon.IsProcessRunning(deadPID) {
		t.Error("Expected non-existent PID to not be running")
	}
}

func TestStatusFile(t *testing.T) {
	dir := t.TempDir()
	path := daemon.StatusPath(dir)
	if filepath.Base(path) != "shelf.status" {
		t.Errorf("StatusPath() = %q", path)
	}

	if err := daemon.WriteStatusReady(path); err != nil {
		t.Fatalf("WriteStatusReady failed: %v", err)
	}
	st, err := daemon.ReadStatus(path)
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if st.Status != daemon.StatusReady || st.PID != os.Getpid() {
		t.Errorf("ready status = %+v", st)
	}

	if err := daemon.WriteStatusError(path, errors.New("port in use")); err != nil {
		t.Fatalf("WriteStatusError failed: %v", err)
	}
	st, err = daemon.ReadStatus(path)
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if st.Status != daemon.StatusError || st.Error != "port in use" || st.PID != 0 {
		t.Errorf("error status = %+v", st)
	}

	if err := daemon.RemoveStatus(path); err != nil {
		t.Fatalf("RemoveStatus failed: %v", err)
	}
	if _, err := daemon.ReadStatus(path); !os.IsNotExist(err) {
		t.Errorf("ReadStatus after remove error = %v, want not-exist", err)
	}

	writeFile(t, path, "{broken")
	if _, err := daemon.ReadStatus(path); err == nil {
		t.Error("ReadStatus should fail on malformed JSON")
	}
}
