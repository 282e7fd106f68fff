// Command cartsync runs the cart sync agent: a local cart kept in step with the
// cart service, exposed on a small HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "cartsync:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "cartsync",
		Short:         "Cart state synchronization agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to cartsync.toml")

	root.AddCommand(
		newRunCmd(&configPath),
		newShowCmd(&configPath),
		newOrdersCmd(&configPath),
	)
	return root
}
