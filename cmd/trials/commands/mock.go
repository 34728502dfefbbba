package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bharatr21/clinical-trials-agent/internal/mockserver"
)

var (
	mockPort      int
	mockScenarios string
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run a local stand-in for the trials service",
	Long: `Run a local HTTP server that speaks the trials service protocol and
streams scripted answers. Useful for demos and for developing against a
predictable backend.

Scenario scripts are YAML files; see 'trials mock --help' output or the
repository examples for the format.`,
	RunE: runMock,
}

func init() {
	mockCmd.Flags().IntVarP(&mockPort, "port", "p", 8000, "Port to listen on")
	mockCmd.Flags().StringVar(&mockScenarios, "scenarios", "", "YAML scenario script (built-in scenarios when unset)")
}

func runMock(cmd *cobra.Command, args []string) error {
	cfg := mockserver.DefaultConfig()
	cfg.Port = mockPort

	if mockScenarios != "" {
		scenarios, err := mockserver.LoadScenarios(mockScenarios)
		if err != nil {
			return err
		}
		cfg.Scenarios = scenarios
	}

	srv := mockserver.New(cfg)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	fmt.Fprintf(os.Stderr, "mock server on http://localhost:%d\n", mockPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
