// Command peerdirectoryd runs the peer directory server: a TCP listener
// on the port given as the command's sole positional argument, an
// optional admin HTTP surface, and a UDP client that sends audit events
// to a remote sink.
//
// Grounded on nabbar-golib's cobra package (model.go/configure.go) for
// the root-command shape, trimmed to a single command with flags
// instead of its interactive bubbletea wizard, which nothing in this
// daemon's operator workflow needs.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/solus-project/peerdirectoryd/internal/admin"
	"github.com/solus-project/peerdirectoryd/internal/audit"
	"github.com/solus-project/peerdirectoryd/internal/config"
	"github.com/solus-project/peerdirectoryd/internal/directory"
	"github.com/solus-project/peerdirectoryd/internal/dispatcher"
	"github.com/solus-project/peerdirectoryd/internal/lifecycle"
	"github.com/solus-project/peerdirectoryd/internal/listener"
	"github.com/solus-project/peerdirectoryd/internal/logging"
	"github.com/solus-project/peerdirectoryd/internal/metrics"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "peerdirectoryd <port>",
		Short: "Peer directory server",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
	config.BindFlags(root.PersistentFlags())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}

	cfg, err := config.Load(port, configFile, cmd.Flags())
	if err != nil {
		return err
	}

	log, err := logging.New(cfg)
	if err != nil {
		return err
	}

	reg := metrics.New()
	dir := directory.New()
	ac := audit.New(cfg.AuditAddr, reg, log.WithField("component", "audit"))

	ln, err := listener.Listen(fmt.Sprintf(":%d", cfg.ListenPort), log)
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}

	handler := &dispatcher.Handler{
		Directory:   dir,
		Audit:       ac,
		Metrics:     reg,
		Log:         log,
		IdleTimeout: time.Duration(cfg.ConnIdleTimeoutSeconds) * time.Second,
	}

	var adminSrv *admin.Server
	if cfg.AdminAddr != "" {
		adminSrv = admin.New(cfg.AdminAddr, dir, ac, reg, time.Now(), log)
		go func() {
			if err := adminSrv.Serve(); err != nil {
				log.WithError(err).Error("admin: server exited with error")
			}
		}()
	}

	log.WithFields(map[string]interface{}{
		"listen_port": cfg.ListenPort,
		"admin_addr":  cfg.AdminAddr,
	}).Info("peerdirectoryd: starting")

	err = lifecycle.Run(context.Background(), ln, dir, ac, log, func(ctx context.Context) error {
		return ln.Serve(ctx, handler)
	})

	if adminSrv != nil {
		_ = adminSrv.Close()
	}

	return err
}
