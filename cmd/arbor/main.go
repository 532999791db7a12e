// Command arbor runs an arbor server assembled from a YAML config file.
//
// The config file holds the application options and a plugins section
// enabling the stock plugins:
//
//	addr: ":8080"
//	log:
//	  level: info
//	plugins:
//	  cors:
//	    allow_origins: ["https://example.com"]
//	  metrics:
//	    namespace: shop
//	  health:
//	    prefix: /health
//	  cache:
//	    ttl: 30s
//	  redis:
//	    url: redis://localhost:6379/0
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "arbor",
		Short:         "Run and inspect arbor servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "path to the YAML config file")

	cmd.AddCommand(
		serveCmd(),
		routesCmd(),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version)
				return
			}
			fmt.Fprintf(out, "arbor %s (%s) %s %s/%s\n", version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")
	return cmd
}
