package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wsrouter",
		Short: "Typed WebSocket message routing server",
		Long: `wsrouter serves a WebSocket API where clients exchange {type, payload}
envelopes with registered operations.

The bundled demo application exposes:

  • ping → pong
  • feature_0.subscribe / feature_0.unsubscribe topic management
  • feature_1.ping → feature_1.pong
  • feature_2.alert server pushes (POST /push/{topic} or NATS)
  • AsyncAPI documentation at /asyncapi and /asyncapi.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		docsCmd(),
		pushCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
