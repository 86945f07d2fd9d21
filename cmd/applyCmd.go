package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Pnode/pkg"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply Topology",
	Long:  `Apply a topology of networks, container peers and this physical node, then serve an interactive console until exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filepath, _ := cmd.Flags().GetString("from")

		c, err := pkg.NewCalculator(cfg)
		if err != nil {
			return err
		}
		// wait, before shutting down, clear up the resources
		defer c.Destroy()

		if err := c.ApplyTopoConfig(filepath); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration applied successfully.")

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		go console(c, os.Stdin, cmd.OutOrStdout(), stop)
		<-stop
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringP("from", "f", "", "Path to the topology configuration file")
	_ = applyCmd.MarkFlagRequired("from")
}
