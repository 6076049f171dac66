package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCmd creates the root command for gatewayd.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gatewayd",
		Short: "MCP runtime gateway: routes and forwards requests to pooled backends",
		Long: `gatewayd is the runtime gateway that accepts framed JSON-RPC-style
requests, routes read_resource/call_tool calls to a configured backend by
URI prefix/regex or tool name, and forwards them over a pooled connection.
It can also maintain outbound Streamable HTTP and MQTT client connections
to upstream MCP servers.

Use subcommands to start the gateway or manage configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
