package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"syncnexus/internal/app"
	"syncnexus/internal/auth"
	"syncnexus/internal/infra/config"
	"syncnexus/internal/service/triage"
)

var (
	configPath   string
	instanceFlag int
	forceFlag    bool
	channelFlag  string
	pngFlag      string
)

var rootCmd = &cobra.Command{
	Use:           "syncnexus",
	Short:         "syncnexus - signal triage and contact enrichment for messaging groups",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		a, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		return a.Run()
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull groups, members or history from the gateway",
}

var syncGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Refresh the group list of one or all instances",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		res, err := a.Nexus.SyncGroups(ctx, instanceFlag)
		if err != nil {
			return err
		}
		return printJSON(out, res)
	}),
}

var syncMembersCmd = &cobra.Command{
	Use:   "members <group-jid>",
	Short: "Import the members of a group and evaluate new contacts",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		res, err := a.Nexus.SyncMembers(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(out, res)
	}),
}

var syncHistoryCmd = &cobra.Command{
	Use:   "history <group-jid>",
	Short: "Import recent messages of a group and score a sample",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		res, err := a.Nexus.SyncHistory(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(out, res)
	}),
}

var syncMonitoredCmd = &cobra.Command{
	Use:   "monitored",
	Short: "Sync every monitored group according to its preferences",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		res, err := a.Nexus.SyncMonitored(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, res)
	}),
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <message-id>",
	Short: "Score a stored message and queue it if it qualifies",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		res, err := a.Nexus.Analyze(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(out, res)
	}),
}

var enrichCmd = &cobra.Command{
	Use:   "enrich <contact-id>",
	Short: "Profile a contact from its message history",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		res, err := a.Nexus.Enrich(ctx, args[0], forceFlag)
		if err != nil {
			return err
		}
		return printJSON(out, res)
	}),
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and act on triage entries",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open entries, newest first",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		entries, err := a.Nexus.Queue()
		if err != nil {
			return err
		}
		return printJSON(out, entries)
	}),
}

var queueDeployCmd = &cobra.Command{
	Use:   "deploy <entry-id>",
	Short: "Send an entry's draft (--channel dm|group)",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		channel, err := triage.ParseChannel(channelFlag)
		if err != nil {
			return err
		}
		ok, err := a.Nexus.Deploy(ctx, args[0], channel)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("gateway did not confirm delivery of %s", args[0])
		}
		fmt.Fprintf(out, "Delivered %s via %s\n", args[0], channel)
		return nil
	}),
}

var queueArchiveCmd = &cobra.Command{
	Use:   "archive <entry-id>",
	Short: "Drop an entry without sending anything",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		if err := a.Nexus.Archive(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Archived %s\n", args[0])
		return nil
	}),
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	Aliases: []string{"costs"},
	Short:   "Show store counts and the cost ledger of this process",
	Args:    cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		stats, err := a.Nexus.Stats()
		if err != nil {
			return err
		}
		return printJSON(out, stats)
	}),
}

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Show the QR code that links a gateway instance to a phone",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		id := instanceFlag
		if id == 0 && len(a.Config.Gateway.Instances) > 0 {
			id = a.Config.Gateway.Instances[0].ID
		}
		inst, ok := a.Config.Instance(id)
		if !ok {
			return fmt.Errorf("unknown instance %d", id)
		}
		pairing, err := a.Gateway.Connect(ctx, inst.Name)
		if err != nil {
			return err
		}
		qr := auth.NewQRHandler(a.Log, out)
		shown, err := qr.Show(inst.Name, pairing)
		if err != nil || !shown || pngFlag == "" {
			return err
		}
		return qr.SaveQRToFile(pairing.Code, pngFlag)
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SYNCNEXUS_CONFIG"), "config file (JSON or YAML)")

	syncGroupsCmd.Flags().IntVar(&instanceFlag, "instance", 0, "instance id (0 = all)")
	pairCmd.Flags().IntVar(&instanceFlag, "instance", 0, "instance id (default: first configured)")
	pairCmd.Flags().StringVar(&pngFlag, "png", "", "also write the QR code to this PNG file")
	enrichCmd.Flags().BoolVar(&forceFlag, "force", false, "enrich even when the contact has no messages")
	queueDeployCmd.Flags().StringVar(&channelFlag, "channel", string(triage.ChannelDM), "dm or group")

	syncCmd.AddCommand(syncGroupsCmd, syncMembersCmd, syncHistoryCmd, syncMonitoredCmd)
	queueCmd.AddCommand(queueListCmd, queueDeployCmd, queueArchiveCmd)
	rootCmd.AddCommand(serveCmd, syncCmd, analyzeCmd, enrichCmd, queueCmd, statsCmd, pairCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type appFunc func(ctx context.Context, a *app.App, args []string, out io.Writer) error

// withApp builds the App for a one-shot command and tears it down afterwards.
func withApp(fn appFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		a, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer a.Shutdown()
		a.WatchSignals()
		return fn(a.Context(), a, args, cmd.OutOrStdout())
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
