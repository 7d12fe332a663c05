package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/zlyuan/issuedash/internal/record"
	"github.com/zlyuan/issuedash/internal/store"
	"github.com/zlyuan/issuedash/internal/ui"
)

var (
	listStatus  string
	listChannel string
	listProblem string
	listKeyword string
	listSince   string
	listUntil   string
	listLimit   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues from the local database",
	Long: `List issues matching the given filters.

Date filters accept YYYY-MM-DD or natural language:
  issuedash list --since "last monday"
  issuedash list --since 2025-06-01 --until "yesterday"
  issuedash list --status pending --channel support -q login`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		st := openStore(cfg)
		defer st.Close()

		f := store.Filter{
			Problem: listProblem,
			Channel: listChannel,
			Keyword: listKeyword,
			Limit:   listLimit,
		}
		if listStatus != "" {
			status := record.Status(listStatus)
			if !status.Valid() {
				fmt.Fprintf(os.Stderr, "Error: unknown status %q (known: %v)\n", listStatus, record.Statuses)
				os.Exit(1)
			}
			f.Status = status
		}
		f.From = parseDateFlag("--since", listSince)
		f.To = parseDateFlag("--until", listUntil)

		issues, total, err := st.Query(context.Background(), f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		for _, iss := range issues {
			fmt.Println(ui.IssueLine(iss))
		}
		if total > len(issues) {
			fmt.Println(ui.Faint(fmt.Sprintf("(%d of %d, raise --limit to see more)", len(issues), total)))
		} else {
			fmt.Println(ui.Faint(fmt.Sprintf("%d issue(s)", total)))
		}
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (done, in_progress, pending, blocked, other)")
	listCmd.Flags().StringVar(&listChannel, "channel", "", "filter by channel")
	listCmd.Flags().StringVar(&listProblem, "problem", "", "filter by problem category")
	listCmd.Flags().StringVarP(&listKeyword, "query", "q", "", "keyword search in description and detail")
	listCmd.Flags().StringVar(&listSince, "since", "", "only issues on or after this date")
	listCmd.Flags().StringVar(&listUntil, "until", "", "only issues on or before this date")
	listCmd.Flags().IntVar(&listLimit, "limit", 100, "maximum issues to print")
}

// parseDateFlag accepts YYYY-MM-DD or natural language ("last monday").
// Returns the zero time for an empty value; exits on unparseable input.
func parseDateFlag(flag, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	if t, err := time.Parse(record.DateLayout, raw); err == nil {
		return t
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(raw, time.Now())
	if err != nil || r == nil {
		fmt.Fprintf(os.Stderr, "Error: cannot parse %s value %q\n", flag, raw)
		os.Exit(1)
	}
	return r.Time.Truncate(24 * time.Hour)
}
