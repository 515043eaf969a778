package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "newspulse",
		Short: "Monitor political news, score sentiment, and raise alerts for tracked entities",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(runCommand())
	root.AddCommand(serveCommand())
	root.AddCommand(activateCommand())
	root.AddCommand(activateGeoCommand())
	root.AddCommand(deactivateCommand())
	root.AddCommand(ingestCommand())
	root.AddCommand(pulseCommand())
	root.AddCommand(alertsCommand())

	return root
}

func runCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler, job queues and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func serveCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func activateCommand() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "activate <candidate-id>",
		Short: "Subscribe a candidate and activate their opponents, party and constituency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivate(args[0], userID)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user account to link to the candidate")
	return cmd
}

func activateGeoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "activate-geo <geo-unit>",
		Short: "Activate a geo unit and its top candidates (accepts id, name or code)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivateGeo(args[0])
		},
	}
}

func deactivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <candidate-id>",
		Short: "Unsubscribe a candidate and stop tracking everything their subscription triggered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeactivate(args[0])
		},
	}
}

func ingestCommand() *cobra.Command {
	var (
		entityType string
		entityID   int64
		allSources bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch news immediately for one entity or all sweep sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(entityType, entityID, allSources)
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", "", "CANDIDATE, PARTY or GEO_UNIT")
	cmd.Flags().Int64Var(&entityID, "entity-id", 0, "entity id to fetch for")
	cmd.Flags().BoolVar(&allSources, "sources", false, "sweep all configured sources instead")
	return cmd
}

func pulseCommand() *cobra.Command {
	var (
		days       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "pulse <candidate-id>",
		Short: "Compute the sentiment pulse for a candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPulse(args[0], days, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "window size in days")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func alertsCommand() *cobra.Command {
	var (
		userID int64
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List stored alerts for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlerts(userID, limit)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max alerts to show")
	cmd.MarkFlagRequired("user")
	return cmd
}
