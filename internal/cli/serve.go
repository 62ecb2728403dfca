package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/amterp/ra"
	"golang.org/x/sync/errgroup"

	"github.com/amterp/kanflow/internal/api"
	"github.com/amterp/kanflow/internal/feed"
)

const shutdownTimeout = 10 * time.Second

func registerServe(parent *ra.Cmd, ctx *CommandContext) {
	cmd := ra.NewCmd("serve")
	cmd.SetDescription("Start the HTTP and websocket server")

	ctx.ServePort, _ = ra.NewInt("port").
		SetOptional(true).
		SetDefault(-1).
		SetShort("p").
		SetFlagOnly(true).
		SetUsage("Port to listen on (default: configured port; tries the next ones if in use)").
		Register(cmd)

	ctx.ServeNoOpen, _ = ra.NewBool("no-open").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Don't open browser automatically").
		Register(cmd)

	ctx.ServeUsed, _ = parent.RegisterCmd(cmd)
}

func runServe(port int, noOpen bool) {
	app := openProject(false)
	defer app.Close()
	logger := app.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewWebSocketHub(app.Reorder, logger)
	app.Reorder.Subscribe(hub)
	app.Notifier.Add(hub)

	if app.FileStore != nil {
		source, err := feed.NewFileSource(app.Paths, app.Inbound, app.FileStore, logger)
		if err != nil {
			app.Fatal(err)
		}
		if err := source.Start(); err != nil {
			app.Fatal(err)
		}
		defer source.Stop()
	}

	if port < 0 {
		port = app.Settings.Port
	}
	actualPort := findAvailablePort(port)
	server := api.NewServer(api.NewHandler(app.BoardService, app.Reorder, logger), hub, actualPort, logger)

	g, gctx := errgroup.WithContext(ctx)
	if app.RedisFeed != nil {
		g.Go(func() error {
			app.RedisFeed.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	url := fmt.Sprintf("http://localhost:%d", actualPort)
	PrintSuccess("kanflow server running at %s", RenderURL(url))
	PrintInfo("Press Ctrl+C to stop")
	if !noOpen {
		openBrowser(url)
	}

	if err := g.Wait(); err != nil {
		app.Fatal(err)
	}
	logger.Info("server stopped")
}

// findAvailablePort tries ports starting from startPort until it finds one that's available.
func findAvailablePort(startPort int) int {
	maxAttempts := 100
	for i := 0; i < maxAttempts; i++ {
		port := startPort + i
		if isPortAvailable(port) {
			return port
		}
	}
	// Let the server fail on the original port.
	return startPort
}

// isPortAvailable checks if a port is available by attempting to listen on it.
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	}
	if cmd != nil {
		_ = cmd.Start()
	}
}
