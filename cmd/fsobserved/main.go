// Command fsobserved runs the filesystem-change observation pipeline
// described by the Orchestrator (pkg/orchestrator): run starts it in the
// foreground behind the MCP control surface (pkg/control); rescan and
// status are thin MCP clients that drive a running instance. The command
// layout (a root command with a help-printing Run and subcommands
// registered in one init) is grounded on cmd/mutagen/main.go; the
// foreground run loop (signal handling, select on termination sources) is
// grounded on cmd/mutagen/daemon/run.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/inkwell-ai/fsobserve/cmd"
	"github.com/inkwell-ai/fsobserve/pkg/configuration"
	"github.com/inkwell-ai/fsobserve/pkg/control"
	"github.com/inkwell-ai/fsobserve/pkg/logging"
)

const defaultControlAddr = "127.0.0.1:9847"

var rootCommand = &cobra.Command{
	Use:   "fsobserved",
	Short: "Observe filesystem changes under configured roots and deliver batched, filtered events to a local sink",
	RunE: func(command *cobra.Command, _ []string) error {
		return command.Help()
	},
	SilenceUsage: true,
}

func init() {
	cobra.EnableCommandSorting = false
	rootCommand.AddCommand(runCommand, rescanCommand, statusCommand)
}

// runConfiguration stores configuration for the run command.
var runConfiguration struct {
	configFile string
	stateDir   string
	addr       string
	debug      bool
}

var runCommand = &cobra.Command{
	Use:          "run",
	Short:        "Run the observation pipeline in the foreground, exposing the control surface over HTTP",
	Args:         cmd.DisallowArguments,
	RunE:         runMain,
	SilenceUsage: true,
}

func init() {
	flags := runCommand.Flags()
	flags.SortFlags = false
	flags.StringVar(&runConfiguration.configFile, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&runConfiguration.stateDir, "state-dir", defaultStateDir(), "Directory for checkpoint persistence")
	flags.StringVar(&runConfiguration.addr, "addr", defaultControlAddr, "Address to expose the MCP control surface on")
	flags.BoolVar(&runConfiguration.debug, "debug", false, "Enable debug-level logging")
}

func runMain(command *cobra.Command, _ []string) error {
	logger := logging.RootLogger.Sublogger("fsobserved")
	if runConfiguration.debug {
		logger.SetLevel(logging.LevelDebug)
	}

	loader := configuration.NewLoader()
	if err := loader.LoadDotEnv(".env"); err != nil {
		return err
	}
	if err := loader.BindFlags(command.Flags()); err != nil {
		return fmt.Errorf("unable to bind flags: %w", err)
	}
	cfg, err := loader.Load(runConfiguration.configFile)
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}

	server := control.NewServer(control.Options{StateDir: runConfiguration.stateDir})
	defer server.Close()

	if err := server.Initialise(cfg); err != nil {
		return fmt.Errorf("unable to initialise pipeline: %w", err)
	}
	if err := server.StartPipeline(); err != nil {
		return fmt.Errorf("unable to start pipeline: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), cmd.TerminationSignals...)
	defer cancel()

	logger.Info("control surface listening on", runConfiguration.addr)
	serverErrors := make(chan error, 1)
	go func() { serverErrors <- server.RunHTTP(ctx, runConfiguration.addr) }()

	select {
	case <-ctx.Done():
		logger.Info("received termination signal")
		return nil
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("control server terminated abnormally: %w", err)
		}
		return nil
	}
}

// rescanConfiguration stores configuration for the rescan command.
var rescanConfiguration struct {
	addr string
}

var rescanCommand = &cobra.Command{
	Use:          "rescan <root>",
	Short:        "Trigger an out-of-band re-scan of one watch root on a running instance",
	Args:         cobra.ExactArgs(1),
	RunE:         rescanMain,
	SilenceUsage: true,
}

func init() {
	flags := rescanCommand.Flags()
	flags.StringVar(&rescanConfiguration.addr, "addr", defaultControlAddr, "Address of the running instance's control surface")
}

func rescanMain(_ *cobra.Command, arguments []string) error {
	client, err := newControlClient(rescanConfiguration.addr)
	if err != nil {
		return err
	}
	defer client.Close()

	message, err := client.triggerRescan(arguments[0])
	if err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}

// statusConfiguration stores configuration for the status command.
var statusConfiguration struct {
	addr string
}

var statusCommand = &cobra.Command{
	Use:          "status",
	Short:        "Print the lifecycle state and statistics of a running instance",
	Args:         cmd.DisallowArguments,
	RunE:         statusMain,
	SilenceUsage: true,
}

func init() {
	flags := statusCommand.Flags()
	flags.StringVar(&statusConfiguration.addr, "addr", defaultControlAddr, "Address of the running instance's control surface")
}

func statusMain(_ *cobra.Command, _ []string) error {
	client, err := newControlClient(statusConfiguration.addr)
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.status()
	if err != nil {
		return err
	}
	fmt.Printf("state: %s\nwatched_roots: %d\nevents_received: %d\nevents_dropped: %d\nevents_delivered: %d\n",
		status.State, status.WatchedRoots, status.EventsReceived, status.EventsDropped, status.EventsDelivered)
	return nil
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".fsobserve"
	}
	return dir + "/fsobserve"
}

func main() {
	cmd.HandleTerminalCompatibility()

	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
