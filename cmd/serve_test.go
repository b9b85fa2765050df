package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issueboard/internal/daemon"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)
	assert.Equal(t, filepath.Join(dir, "issueboard-serve.pid"), pidFile().Path)
}

func TestServeLogPath(t *testing.T) {
	dir := testEnv(t)
	assert.Equal(t, filepath.Join(dir, "issueboard-serve.log"), serveLogPath())
}

func TestServeStatusRun_NotRunning(t *testing.T) {
	testEnv(t)
	out, _ := captureUI("")

	require.NoError(t, serveStatusRun())
	assert.Contains(t, out.String(), "not running")
}

func TestServeStatusRun_Running(t *testing.T) {
	dir := testEnv(t)
	pf := daemon.NewPIDFile(filepath.Join(dir, "issueboard-serve.pid"))
	require.NoError(t, pf.Write(9123))
	out, _ := captureUI("")

	require.NoError(t, serveStatusRun())
	assert.Contains(t, out.String(), "port 9123")
}

func TestServeStopRun_NotRunning(t *testing.T) {
	testEnv(t)

	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestServeStartRun_AlreadyRunning(t *testing.T) {
	dir := testEnv(t)

	// The current process is alive, so the PID file looks live.
	pf := daemon.NewPIDFile(filepath.Join(dir, "issueboard-serve.pid"))
	require.NoError(t, pf.Write(8080))

	err := serveStartRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestServeRun_ServesAndShutsDown(t *testing.T) {
	testEnv(t)
	captureUI("")
	port := freePort(t)
	viper.Set("port", port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveRun(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/issues", port)
	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get(url)
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 5*time.Second, 50*time.Millisecond)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	info, running := pidFile().Running()
	require.True(t, running)
	assert.Equal(t, port, info.Port)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, running = pidFile().Running()
	assert.False(t, running, "PID file removed on shutdown")
}
