package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/arena/internal/config"
	"yqhp/arena/internal/orchestrator"
	"yqhp/arena/pkg/logger"
)

var (
	// run 命令的 flags
	runTier      string
	runMaxTime   time.Duration
	runInterval  time.Duration
	runTechs     []string
	runWorkers   int
	runServe     time.Duration
	runWorkspace string
)

// runCmd 是 run 子命令
var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "执行一次竞争式代码生成",
	Long: `将任务分解后分发给所选资源等级的全部 worker，监控执行直到全部结束或超时，
随后验证、评估并发布结果，最后打印汇总。

资源等级：
  - light:  2 个 worker
  - medium: 4 个 worker
  - high:   6 个 worker
  - ultra:  8 个 worker`,
	Example: `  # 基本执行
  arena run "build a todo app with a REST API"

  # 指定资源等级和时间预算
  arena run -t medium --max-time 20m "build a chat app"

  # 指定技术栈并在结束后保留发布的服务 30 分钟
  arena run --tech react,node --serve 30m "build a kanban board"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runArena,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runTier, "tier", "t", "", "资源等级 (light, medium, high, ultra)")
	runCmd.Flags().DurationVar(&runMaxTime, "max-time", 0, "最大执行时间 (覆盖配置)")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "阶段性评估间隔 (覆盖配置)")
	runCmd.Flags().StringSliceVar(&runTechs, "tech", nil, "技术栈，逗号分隔")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "worker 数量上限 (0 表示等级全部)")
	runCmd.Flags().DurationVar(&runServe, "serve", 0, "结束后保持发布服务的时长 (0 表示立即关闭)")
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "工作区根目录")
}

// runOverrides 把显式设置的 flags 转换为配置路径覆盖
func runOverrides(cmd *cobra.Command) map[string]string {
	out := make(map[string]string)
	set := func(flag, path, value string) {
		if cmd.Flags().Changed(flag) {
			out[path] = value
		}
	}
	set("tier", "run.tier", runTier)
	set("max-time", "run.max_execution", runMaxTime.String())
	set("interval", "run.partial_interval", runInterval.String())
	set("tech", "run.technologies", strings.Join(runTechs, ","))
	set("workers", "run.workers", strconv.Itoa(runWorkers))
	set("serve", "deploy.serve_for", runServe.String())
	set("workspace", "run.workspace_root", runWorkspace)
	return out
}

func runArena(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runOverrides(cmd))
	if err != nil {
		return err
	}
	log := logger.Named("cli")

	// 处理关闭信号
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o, closeAll, err := orchestrator.FromConfig(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer func() {
		if err := closeAll(); err != nil {
			log.Warn("close collaborators", zap.Error(err))
		}
	}()

	task := orchestrator.TaskFromConfig(strings.Join(args, " "), cfg.Run)
	out := cmd.OutOrStdout()
	if !quiet {
		fmt.Fprintf(out, Banner, Version)
		printRunInfo(cmd, cfg)
	}

	report, runErr := o.Run(ctx, task)
	if report != nil {
		fmt.Fprintln(out, report.Summary)
	}
	if runErr != nil {
		if orchestrator.IsConfigurationError(runErr) {
			return fmt.Errorf("任务无效: %w", runErr)
		}
		return fmt.Errorf("执行失败: %w", runErr)
	}

	if report.Publication != nil {
		serve(ctx, cmd, cfg.Deploy.ServeFor)
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := report.Publication.Shutdown(sctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("shutdown publication", zap.Error(err))
		}
	}
	return nil
}

// serve 保持发布的服务直到时长耗尽或收到中断信号
func serve(ctx context.Context, cmd *cobra.Command, d time.Duration) {
	if d <= 0 {
		return
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\n服务将保持 %s，按 Ctrl+C 提前结束\n", d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.ErrOrStderr(), "\n正在关闭服务...")
	case <-t.C:
	}
}

func printRunInfo(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  资源等级: %s\n", cfg.Run.Tier)
	if cfg.Run.Workers > 0 {
		fmt.Fprintf(out, "  worker 上限: %d\n", cfg.Run.Workers)
	}
	fmt.Fprintf(out, "  最大执行时间: %s\n", cfg.Run.MaxExecution)
	if len(cfg.Run.Technologies) > 0 {
		fmt.Fprintf(out, "  技术栈: %s\n", strings.Join(cfg.Run.Technologies, ", "))
	}
	fmt.Fprintf(out, "  工作区: %s\n", cfg.Run.WorkspaceRoot)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "执行中...")
	fmt.Fprintln(out)
}
