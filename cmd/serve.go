package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/issueboard/internal/api"
	"github.com/joescharf/issueboard/internal/daemon"
	"github.com/joescharf/issueboard/internal/output"
)

const (
	shutdownTimeout = 10 * time.Second
	startWait       = 3 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON API server in the foreground",
	Long: `Start the HTTP JSON API in the foreground.
By default it listens on port 8080. Use --port to change it.
Use 'serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "issueboard-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "issueboard-serve.log")
}

// newAPIServer wires the API over the shared store.
func newAPIServer() (*api.Server, error) {
	svc, err := getService()
	if err != nil {
		return nil, err
	}
	a, err := getAuthenticator()
	if err != nil {
		return nil, err
	}
	return api.NewServer(svc, a, api.Options{
		MaxShown:      viper.GetInt("duplicates.max_shown"),
		SignInLimiter: api.NewLimiter(time.Second, 5),
		Logger:        appLog,
	}), nil
}

func serveRun(ctx context.Context) error {
	pf := pidFile()
	if info, running := pf.Running(); running && info.PID != os.Getpid() {
		return fmt.Errorf("server already running (PID %d, port %d)", info.PID, info.Port)
	}

	srv, err := newAPIServer()
	if err != nil {
		return err
	}

	port := viper.GetInt("port")
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}

	if err := pf.Write(port); err != nil {
		_ = ln.Close()
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() { _ = pf.Remove() }()

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ui.Info("Serving API at %s", output.Cyan(fmt.Sprintf("http://localhost:%d/api/v1", port)))
	appLog.Info("api server started", "port", port, "pid", os.Getpid())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	appLog.Info("api server stopped")
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if info, running := pf.Running(); running {
		return fmt.Errorf("server already running (PID %d, port %d)", info.PID, info.Port)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	port := viper.GetInt("port")
	args := []string{"serve", "--port", strconv.Itoa(port)}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pid := child.Process.Pid
	_ = child.Process.Release()

	deadline := time.Now().Add(startWait)
	for time.Now().Before(deadline) {
		if info, running := pf.Running(); running && info.PID == pid {
			ui.Success("Server started (PID %d) at %s", pid, output.Cyan(fmt.Sprintf("http://localhost:%d/api/v1", port)))
			ui.Info("Logs: %s", logPath)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not start within %s; see %s", startWait, logPath)
}

func serveStopRun() error {
	info, err := pidFile().Stop(shutdownTimeout)
	if errors.Is(err, daemon.ErrNotRunning) {
		return fmt.Errorf("server is not running")
	}
	if err != nil {
		return err
	}
	ui.Success("Server stopped (PID %d)", info.PID)
	return nil
}

func serveStatusRun() error {
	info, running := pidFile().Running()
	if !running {
		ui.Info("Server is not running")
		return nil
	}
	ui.Success("Server running (PID %d) on port %d since %s",
		info.PID, info.Port, info.StartedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}
