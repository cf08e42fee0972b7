package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/foryou/internal/advisor"
	"github.com/TobiSchelling/foryou/internal/server"
	"github.com/TobiSchelling/foryou/internal/supervisor"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI with background refresh and tuning",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		srv, err := server.New(a.sess, a.db, logger)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))

		tree := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
		tree.AddAPI(srv.Service(addr))
		if cfg.Advisor.Enabled {
			s := a.advisor.Settings()
			tree.AddBackground(advisor.NewScheduler(a.advisor, s.Interval, s.InitialDelay, logger))
		}
		if cfg.Collect.Interval > 0 {
			pipe := newPipeline(a.db, cfg.Collect.FetchBodies)
			tree.AddBackground(pipe.Service(cfg.Collect.Interval))
		}

		fmt.Printf("Starting server at http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")

		if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("supervisor tree error")
		}

		unstopped, _ := tree.UnstoppedServiceReport()
		for _, svc := range unstopped {
			logger.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
		logger.Info().Msg("stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
