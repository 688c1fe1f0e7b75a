package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "salesflow",
	Short: "Sales document workflow service",
	Long:  `Drives sales documents through the quotation, sales order, delivery challan, invoice and payment stages`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
