// Package cmd 提供 arena CLI 的命令实现
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"yqhp/arena/internal/config"
	"yqhp/arena/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
    _    ____  _____ _   _    _
   / \  |  _ \| ____| \ | |  / \     Arena %s
  / _ \ | |_) |  _| |  \| | / _ \
 / ___ \|  _ <| |___| |\  |/ ___ \
/_/   \_\_| \_\_____|_| \_/_/   \_\
`
)

var (
	// 全局配置
	cfgFile string
	debug   bool
	quiet   bool
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "分布式竞争式代码生成编排器",
	Long: `arena 将同一个开发任务分发给多个相互隔离的 worker 并行实现，
监控执行过程，对每个结果进行验证与评估，选出最佳实现并发布对比视图。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// 全局 flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "静默模式")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// 自定义版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 < 命令行 的顺序加载配置并初始化日志
func loadConfig(overrides map[string]string) (*config.Config, error) {
	cfg, err := config.NewLoader().
		WithConfigPath(cfgFile).
		WithCmdArgs(overrides).
		Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	logger.Init(&cfg.Logging)
	switch {
	case debug:
		logger.EnableDebug()
	case quiet:
		logger.Quiet()
	}
	return cfg, nil
}
