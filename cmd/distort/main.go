package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/config"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/distorter"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/distortion"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/oracle"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/utils"
)

func main() {
	// 标准输出只用于结果，日志写到标准错误
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "distort",
		Short:         "字符级文本扰动工具",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newTrainCmd(), newPreviewCmd())
	return root
}

func newTrainCmd() *cobra.Command {
	var (
		text   string
		params distorter.Parameters
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "用遗传算法搜索最佳的扰动权重，结果以 JSON 输出",
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				return errors.New("--text 不能为空")
			}

			cfg, err := config.LoadOpenAIConfig()
			if err != nil {
				return fmt.Errorf("无法加载 OpenAI 配置: %w", err)
			}

			scorer, err := oracle.NewOpenAIOracle(cfg, nil)
			if err != nil {
				return err
			}

			d, err := distorter.New(&params, scorer)
			if err != nil {
				return err
			}

			result, err := d.Train(cmd.Context(), text)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&text, "text", "", "需要扰动的文本")
	flags.Int32Var(&params.PopulationSize, "population-size", 10, "种群大小")
	flags.Int32Var(&params.EliteSize, "elite-size", 2, "精英数量")
	flags.Float64Var(&params.MutationRate, "mutation-rate", 0.2, "变异概率")
	flags.Float64Var(&params.Alpha, "alpha", 0.5, "隐私分数的权重")
	flags.Float64Var(&params.MinUnchangedWeight, "min-unchanged-weight", 0, "unchanged 类别的最小权重（0 ~ 100）")
	flags.Int32Var(&params.Generations, "generations", 5, "迭代次数")
	flags.Int32Var(&params.Concurrency, "concurrency", 1, "同时评估的个体数量")
	flags.Int64Var(&params.Seed, "seed", 0, "随机种子，为 0 时使用当前时间")

	return cmd
}

func newPreviewCmd() *cobra.Command {
	var (
		text    string
		weights string
		seed    int64
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "按给定的权重扰动文本，不需要评分器",
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				return errors.New("--text 不能为空")
			}

			w, err := utils.ParseWeights(weights)
			if err != nil {
				return err
			}

			distorted, err := distortion.Distort(text, w, utils.NewRand(seed))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), distorted)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&text, "text", "", "需要扰动的文本")
	flags.StringVar(&weights, "weights", "unchanged=100", "各类别的权重，例如 symbol=20,unchanged=80")
	flags.Int64Var(&seed, "seed", 0, "随机种子，为 0 时使用当前时间")

	return cmd
}
