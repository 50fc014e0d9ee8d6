package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/blepanel/internal/panel"
	"github.com/srg/blepanel/internal/session"
	"github.com/srg/blepanel/internal/web"
	"github.com/srg/blepanel/scanner"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the panel over WebSocket",
		Long: `Run the panel controller and expose it over HTTP until Ctrl+C:

  /ws         WebSocket streaming state snapshots and accepting commands
              {"type": "scan" | "stop_scan" | "connect" | "disconnect" | "set_led" | "toggle_led",
               "address": "...", "index": 0, "on": true}
  /api/state  current state as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, listen)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default from config web.listen)")
	return cmd
}

func runServe(cmd *cobra.Command, g *globalOptions, listen string) error {
	rt, err := g.setup(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if !cmd.Flags().Changed("listen") {
		listen = rt.cfg.Web.Listen
	}

	registry := scanner.NewRegistry(rt.central, rt.checker, &scanner.Options{Duration: rt.cfg.ScanTimeout}, rt.logger)
	sessOpts := session.DefaultOptions()
	sessOpts.ConnectTimeout = rt.cfg.ConnectTimeout
	sessOpts.DiscoveryTimeout = rt.cfg.DiscoveryTimeout
	ctrl := panel.New(registry, session.New(rt.central, rt.checker, sessOpts, rt.logger), rt.logger)
	defer ctrl.Close()

	hub := web.NewHub(ctrl, web.Options{
		Listen:            listen,
		BroadcastInterval: rt.cfg.Web.BroadcastInterval,
	}, rt.logger)

	ctx, stop := signalContext(cmd)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving panel on http://%s (Ctrl+C to stop)\n", listen)
	return hub.Run(ctx)
}
