package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot assembles the CLI: lifecycle verbs talk to a running
// daemon over its REST API, serve runs the daemon itself.
func buildRoot() *cobra.Command {
	cmd := command{}

	root := &cobra.Command{
		Use:   "servman",
		Short: "Development server supervision tool",
		Long: `Servman supervises a single long-running development server:
start, stop, restart, status, configuration, and port management.
The serve command runs the supervising daemon; every other command
talks to it over REST.

Examples:
  servman serve                       # Start the daemon
  servman start --port=9000           # Start the supervised server
  servman status
  servman port check 8000
  servman status --api-url=http://remote:9090/api`,
	}

	root.AddCommand(
		createStartCommand(cmd),
		createStopCommand(cmd),
		createRestartCommand(cmd),
		createStatusCommand(cmd),
		createConfigCommand(cmd),
		createPortCommand(cmd),
		createEnvCommand(cmd),
		createServeCommand(),
	)
	return root
}

func addAPIFlags(c *cobra.Command, flags *APIFlags) {
	c.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://localhost:9090/api)")
	c.Flags().DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
}

// portFlag returns the --port value, nil when the flag was not set so
// the daemon falls back to its configured default.
func portFlag(c *cobra.Command) *int {
	if !c.Flag("port").Changed {
		return nil
	}
	p, _ := c.Flags().GetInt("port")
	return &p
}

func createStartCommand(cmd command) *cobra.Command {
	flags := &APIFlags{}
	c := &cobra.Command{
		Use:   "start",
		Short: "Start the supervised server",
		Long: `Start the supervised server. Starting while it is already
running is a no-op and reports the current status.

Examples:
  servman start
  servman start --port=9000`,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Start(*flags, portFlag(c))
		},
	}
	c.Flags().Int("port", 0, "port to bind (defaults to configured port)")
	addAPIFlags(c, flags)
	return c
}

func createStopCommand(cmd command) *cobra.Command {
	flags := &APIFlags{}
	c := &cobra.Command{
		Use:   "stop",
		Short: "Stop the supervised server",
		Long: `Stop the supervised server and its descendants. Stopping an
idle server succeeds and reports the empty status.`,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Stop(*flags)
		},
	}
	addAPIFlags(c, flags)
	return c
}

func createRestartCommand(cmd command) *cobra.Command {
	flags := &APIFlags{}
	c := &cobra.Command{
		Use:   "restart",
		Short: "Restart the supervised server",
		Long: `Stop the supervised server, wait for the port to settle, and
start it again.

Examples:
  servman restart
  servman restart --port=9000`,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Restart(*flags, portFlag(c))
		},
	}
	c.Flags().Int("port", 0, "port to bind (defaults to configured port)")
	addAPIFlags(c, flags)
	return c
}

func createStatusCommand(cmd command) *cobra.Command {
	flags := &APIFlags{}
	c := &cobra.Command{
		Use:   "status",
		Short: "Show supervised server status",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Status(*flags)
		},
	}
	addAPIFlags(c, flags)
	return c
}

func createConfigCommand(cmd command) *cobra.Command {
	getFlags := &APIFlags{}
	get := &cobra.Command{
		Use:   "get",
		Short: "Show the stored configuration",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ConfigGet(*getFlags)
		},
	}
	addAPIFlags(get, getFlags)

	setFlags := &APIFlags{}
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the stored configuration",
		Long: `Update the stored configuration. Only the flags given change;
omitted fields keep their stored values.

Examples:
  servman config set --workdir=/srv/app
  servman config set --default-port=9000`,
		RunE: func(c *cobra.Command, args []string) error {
			workDir, _ := c.Flags().GetString("workdir")
			port, _ := c.Flags().GetInt("default-port")
			return cmd.ConfigSet(*setFlags,
				workDir, c.Flag("workdir").Changed,
				port, c.Flag("default-port").Changed)
		},
	}
	set.Flags().String("workdir", "", "working directory for the server")
	set.Flags().Int("default-port", 0, "default port for the server")
	addAPIFlags(set, setFlags)

	c := &cobra.Command{
		Use:   "config",
		Short: "Manage supervisor configuration",
	}
	c.AddCommand(get, set)
	return c
}

func createPortCommand(cmd command) *cobra.Command {
	checkFlags := &APIFlags{}
	check := &cobra.Command{
		Use:   "check <port>",
		Short: "List processes holding a port",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid port %q", args[0])
			}
			return cmd.PortCheck(*checkFlags, port)
		},
	}
	addAPIFlags(check, checkFlags)

	evictFlags := &APIFlags{}
	evict := &cobra.Command{
		Use:   "evict <port>",
		Short: "Terminate processes holding a port",
		Long: `Terminate whatever is listening on the port: a polite signal
first, then a forced kill after a short grace. The supervised server's
own port is refused; use stop for that.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid port %q", args[0])
			}
			return cmd.PortEvict(*evictFlags, port)
		},
	}
	addAPIFlags(evict, evictFlags)

	c := &cobra.Command{
		Use:   "port",
		Short: "Inspect and reclaim TCP ports",
	}
	c.AddCommand(check, evict)
	return c
}

func createEnvCommand(cmd command) *cobra.Command {
	getFlags := &APIFlags{}
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the server .env file",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.EnvGet(*getFlags)
		},
	}
	addAPIFlags(get, getFlags)

	setFlags := &APIFlags{}
	set := &cobra.Command{
		Use:   "set",
		Short: "Replace the server .env file",
		Long: `Replace the server .env file with the contents of a local file.

Example:
  servman env set --file=./local.env`,
		RunE: func(c *cobra.Command, args []string) error {
			file, _ := c.Flags().GetString("file")
			return cmd.EnvSet(*setFlags, file)
		},
	}
	set.Flags().String("file", "", "file whose contents replace the .env (required)")
	if err := set.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	addAPIFlags(set, setFlags)

	c := &cobra.Command{
		Use:   "env",
		Short: "Manage the server .env file",
	}
	c.AddCommand(get, set)
	return c
}
