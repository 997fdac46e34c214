package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ezlinkai/fal-studio/relay/catalog"
	"github.com/spf13/cobra"
)

var (
	modelsJson bool
	modelsAll  bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered by the generator",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := catalog.Default()
		models := c.Active()
		if modelsAll {
			models = c.All()
		}
		if modelsJson {
			jsonData, err := json.MarshalIndent(models, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
			return nil
		}
		printModelTable(cmd, models)
		return nil
	},
}

func printModelTable(cmd *cobra.Command, models []catalog.ModelConfig) {
	out := cmd.OutOrStdout()
	if len(models) == 0 {
		fmt.Fprintln(out, "当前没有可用的模型")
		return
	}
	for _, m := range models {
		status := ""
		if !m.Active {
			status = " (inactive)"
		}
		fmt.Fprintf(out, "%s%s\n  %s | %s | %s\n", m.ID, status, m.Name, m.Kind, m.Family)
		for _, p := range m.Params {
			line := fmt.Sprintf("    --param %s=%v", p.Name, p.Default)
			if len(p.Options) > 0 {
				values := make([]string, 0, len(p.Options))
				for _, opt := range p.Options {
					values = append(values, opt.Value)
				}
				line += fmt.Sprintf("  [%s]", strings.Join(values, "|"))
			}
			fmt.Fprintln(out, line)
		}
	}
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsJson, "json", false, "Output in JSON format")
	modelsCmd.Flags().BoolVar(&modelsAll, "all", false, "Include inactive models")
	rootCmd.AddCommand(modelsCmd)
}
