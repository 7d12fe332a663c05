package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zlyuan/issuedash/internal/record"
	"github.com/zlyuan/issuedash/internal/store"
	"github.com/zlyuan/issuedash/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status and sync history",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()

		st := openStore(cfg)
		defer st.Close()

		version, err := st.SchemaVersion(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		stats, err := st.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(ui.Header("Database"))
		fmt.Printf("  path:    %s\n", st.Path())
		fmt.Printf("  schema:  v%d\n", version)
		fmt.Printf("  issues:  %d\n", stats.Total)
		if len(stats.ByStatus) > 0 {
			fmt.Println(ui.Header("By status"))
			for _, s := range statusOrder(stats.ByStatus) {
				fmt.Printf("  %-12s %d\n", ui.RenderStatus(s.status), s.count)
			}
		}

		last, err := st.LastSyncRun(ctx)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println(ui.Faint("No sync has run yet."))
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(ui.Header("Last sync"))
		fmt.Printf("  outcome:  %s\n", ui.RenderOutcome(last.Outcome))
		fmt.Printf("  when:     %s (%s ago)\n",
			last.FinishedAt.Local().Format(time.RFC1123),
			time.Since(last.FinishedAt).Round(time.Second))
		fmt.Printf("  fetched:  %d (inserted %d, updated %d, unchanged %d)\n",
			last.RowsFetched, last.RowsInserted, last.RowsUpdated, last.RowsUnchanged)
		if last.Rejections > 0 {
			fmt.Printf("  rejected: %d\n", last.Rejections)
		}
		if last.Suspicious {
			fmt.Println("  warning:  run flagged suspicious (empty snapshot)")
		}
		if last.Error != "" {
			fmt.Printf("  error:    %s\n", last.Error)
		}
	},
}

type statusCount struct {
	status record.Status
	count  int
}

// statusOrder returns counts in canonical display order.
func statusOrder(byStatus map[string]int) []statusCount {
	var out []statusCount
	for _, s := range record.Statuses {
		if n, ok := byStatus[string(s)]; ok {
			out = append(out, statusCount{s, n})
		}
	}
	return out
}
