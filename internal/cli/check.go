package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/collector"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
)

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check collector connectivity",
		Long: `Probe the configured collector's health endpoint and report
whether events can currently be delivered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context())
		},
	}
}

func runCheck(ctx context.Context) error {
	logger := newLogger(viper.GetBool("verbose"))

	_, cfg, err := loadConfiguration(logger)
	if err != nil {
		return err
	}

	settings := config.NewStore(cfg, "", logger)
	client := collector.NewClient(settings)

	fmt.Printf("Collector: %s\n", cfg.Collector.URL)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	if err := client.Health(checkCtx); err != nil {
		color.Red("UNREACHABLE: %v", err)
		return fmt.Errorf("collector is unreachable")
	}

	color.Green("OK (%s)", time.Since(start).Round(time.Millisecond))
	return nil
}
