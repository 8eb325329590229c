package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"yqhp/arena/internal/catalog"
)

// tiersCmd 打印资源等级目录
var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "列出资源等级及其 worker 编组",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), renderTiers(catalog.Tiers()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tiersCmd)
}

func renderTiers(tiers []catalog.Tier) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	var sb strings.Builder
	for _, t := range tiers {
		fmt.Fprintf(&sb, "%s  %s\n", title.Render(t.Name), t.Description)
		tbl := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("Worker", "Name", "Capability", "Fallback", "Specialization", "Memory")
		for i, w := range t.Roster {
			tbl.Row(catalog.WorkerID(i), w.Name, w.Capability, w.Fallback, w.Specialization, w.Memory)
		}
		sb.WriteString(tbl.Render())
		sb.WriteString("\n\n")
	}
	return sb.String()
}
