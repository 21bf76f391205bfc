package cli

import (
	"encoding/json"
	"fmt"

	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of every relay record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := json.MarshalIndent(relay.Schemas(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schemas: %w", err)
		}
		cmd.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
