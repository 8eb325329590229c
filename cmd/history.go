package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"yqhp/arena/internal/history"
)

var historyLimit int

// historyCmd 列出历史运行
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "列出历史运行记录",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("读取历史失败: %w", err)
		}
		printHistory(cmd.OutOrStdout(), records)
		return nil
	},
}

// historyShowCmd 打印一次运行的完整报告
var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "打印一次运行的完整报告 (JSON)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("读取运行 %s 失败: %w", args[0], err)
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, rec.Report, "", "  "); err != nil {
			return fmt.Errorf("报告格式无效: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), buf.String())
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "最多显示的记录数")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("历史记录未启用 (history.enabled=false)")
	}
	store, err := history.Open(cmd.Context(), cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("打开历史记录失败: %w", err)
	}
	return store, nil
}

func printHistory(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "暂无运行记录")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tTIER\tSTATUS\tWINNER\tELAPSED\tPROMPT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Tier, r.Status,
			orDash(r.Winner), r.Elapsed.Round(time.Second), truncate(r.Prompt, 48))
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
