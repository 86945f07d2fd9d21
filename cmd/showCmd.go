package cmd

import (
	"Pnode/pkg"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show Resources",
	Long:  `Show the resources a topology file describes without applying it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filepath, _ := cmd.Flags().GetString("from")
		class, _ := cmd.Flags().GetString("class")

		topo, err := pkg.LoadTopoConfig(filepath)
		if err != nil {
			return err
		}
		return pkg.PrintTopo(cmd.OutOrStdout(), topo, class)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringP("from", "f", "", "Path to the topology configuration file")
	showCmd.Flags().String("class", "all", "Class of the element to show: networks, containers, physical or all")
	_ = showCmd.MarkFlagRequired("from")
}
