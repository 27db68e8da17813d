package cli

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/internal/store"
)

// NewLogCmd creates the log command
func NewLogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the recent event delivery log",
		Long: `Print the most recent event delivery outcomes recorded by the
tracker daemon, newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries to show")
	return cmd
}

func runLog(limit int) error {
	logger := newLogger(viper.GetBool("verbose"))

	_, cfg, err := loadConfiguration(logger)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.RecentEntries(limit)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Time", "Event", "Context", "Status", "Detail"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.At.Format("2006-01-02 15:04:05"),
			e.Kind,
			e.ContextID,
			e.Status,
			e.Detail,
		})
	}
	t.Render()
	return nil
}
