package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kosuda/dakoku/internal/server"
	"github.com/kosuda/dakoku/internal/syncer"
	"github.com/kosuda/dakoku/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kiosk HTTP server",
	Long: `Start the attendance kiosk backend.

This opens the local database (creating it on first run), runs the
scheduled retention check, and serves the kiosk API plus the sync-status
WebSocket until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// A broken database file must not keep the kiosk from coming up:
		// the server starts degraded and every screen except punching keeps
		// working. Punches fail visibly instead of the whole kiosk dying.
		st, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Local storage unavailable, serving degraded: %v\n",
				ui.RenderFail("✗"), err)
			st = nil
		}
		if st != nil {
			defer st.Close()
		}

		sy := syncer.New(st, syncer.DefaultPolicy(), newLogger("[sync] "))
		defer sy.Stop()

		srv := server.New(st, sy, &server.Config{
			Addr:   viper.GetString("server.addr"),
			Logger: newLogger("[server] "),
		})
		if err := srv.Start(); err != nil {
			return err
		}

		fmt.Printf("%s Kiosk server running on %s\n", ui.RenderPass("✓"), srv.Addr())
		if st != nil {
			fmt.Printf("   Database: %s\n", st.Path())
		} else {
			fmt.Printf("   Database: %s\n", ui.RenderFail("unavailable (degraded)"))
		}
		if sy.Configured() {
			fmt.Printf("   Spreadsheet sync: %s\n", ui.RenderPass("configured"))
		} else {
			fmt.Printf("   Spreadsheet sync: %s\n", ui.RenderMuted("not configured"))
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		fmt.Printf("\n%s Shutting down...\n", ui.RenderAccent("•"))
		return srv.Stop()
	},
}
