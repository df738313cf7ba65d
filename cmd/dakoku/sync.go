package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kosuda/dakoku/internal/syncer"
	"github.com/kosuda/dakoku/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Re-send unsynced punches to the spreadsheet",
	Long: `Run a catch-up pass over every record still marked unsynced.

Records are re-attempted sequentially with pacing so a large backlog
doesn't trip the spreadsheet service's rate limits. Failures leave the
record unsynced for the next pass.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		client, err := sheetsFromSettings(ctx, st)
		if err != nil {
			return fmt.Errorf("credential is invalid: %w", err)
		}
		if client == nil {
			fmt.Printf("%s Spreadsheet is not configured; nothing to sync\n", ui.RenderMuted("•"))
			return nil
		}

		sy := syncer.New(st, syncer.DefaultPolicy(), newLogger("[sync] "))
		defer sy.Stop()
		sy.SetClient(client)

		fmt.Printf("%s Catching up...\n", ui.RenderAccent("🔄"))
		start := time.Now()

		synced, failed, err := sy.CatchUp(ctx)
		if err != nil {
			return err
		}

		elapsed := time.Since(start).Round(time.Millisecond)
		if failed > 0 {
			fmt.Printf("%s Catch-up finished in %v: synced=%d failed=%d\n",
				ui.RenderWarn("!"), elapsed, synced, failed)
		} else {
			fmt.Printf("%s Catch-up finished in %v: synced=%d\n",
				ui.RenderPass("✓"), elapsed, synced)
		}
		return nil
	},
}
