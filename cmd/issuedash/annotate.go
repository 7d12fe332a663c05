package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/zlyuan/issuedash/internal/store"
	"github.com/zlyuan/issuedash/internal/ui"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <key> [notes]",
	Short: "Attach local notes to an issue",
	Long: `Set the local notes on an issue. Notes live only in the local database
and survive every sync.

With no notes argument, an editor prompt opens prefilled with the current
notes. An empty value clears them.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()

		st := openStore(cfg)
		defer st.Close()

		key := args[0]
		iss, err := st.GetIssue(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Error: no issue with key %s\n", key)
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var notes string
		if len(args) > 1 {
			notes = strings.Join(args[1:], " ")
		} else {
			notes = iss.Notes
			form := huh.NewForm(huh.NewGroup(
				huh.NewText().
					Title("Notes").
					Description(iss.Description).
					Value(&notes),
			))
			if err := form.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if err := st.SetNotes(ctx, key, notes); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if notes == "" {
			fmt.Printf("Cleared notes on %s\n", ui.Faint(key[:12]))
		} else {
			fmt.Printf("Annotated %s\n", ui.Faint(key[:12]))
		}
	},
}
