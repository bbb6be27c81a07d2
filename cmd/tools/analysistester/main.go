package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/moodchat/client/internal/analysis/emotion"
	"github.com/zhouzirui/moodchat/client/internal/config"
	"github.com/zhouzirui/moodchat/client/internal/service/gateway"
)

var errNoResponse = errors.New("后端无响应或返回格式错误")

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	if err := newRootCmd(nil).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd 构建命令树；client 为 nil 时按环境变量创建后端客户端
func newRootCmd(client *gateway.Client) *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "analysistester",
		Short: "手动调用分析后端的各个接口并打印格式化结果",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if client != nil {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("配置加载失败: %w", err)
			}
			if baseURL != "" {
				cfg.Backend.BaseURL = strings.TrimRight(baseURL, "/")
			}
			client = gateway.New(cfg.Backend)
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "后端地址，默认读取 BACKEND_BASE_URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "整体超时时间")

	withTimeout := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), timeout)
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "text <text>",
			Short: "情感分析",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := withTimeout(cmd)
				defer cancel()
				res := client.AnalyzeSentiment(ctx, strings.Join(args, " "))
				if res == nil {
					return errNoResponse
				}
				return printLine(cmd.OutOrStdout(), emotion.FormatSentiment(*res))
			},
		},
		&cobra.Command{
			Use:   "summarize <text>",
			Short: "文本摘要",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := withTimeout(cmd)
				defer cancel()
				res := client.Summarize(ctx, strings.Join(args, " "))
				if res == nil {
					return errNoResponse
				}
				return printLine(cmd.OutOrStdout(), emotion.FormatSummary(*res))
			},
		},
		&cobra.Command{
			Use:   "image <path>",
			Short: "图片情绪识别",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				ctx, cancel := withTimeout(cmd)
				defer cancel()
				res := client.AnalyzeImage(ctx, data)
				if res == nil {
					return errNoResponse
				}
				return printLine(cmd.OutOrStdout(), emotion.FormatEmotion(*res))
			},
		},
		&cobra.Command{
			Use:   "video <path>",
			Short: "视频情绪分析",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				ctx, cancel := withTimeout(cmd)
				defer cancel()
				res := client.AnalyzeVideo(ctx, data)
				if res == nil {
					return errNoResponse
				}
				out := cmd.OutOrStdout()
				if err := printLine(out, emotion.FormatVideo(*res)); err != nil {
					return err
				}
				if res.PDFReport != "" {
					_ = printLine(out, "PDF Report: "+client.ResolveURL(res.PDFReport))
				}
				if res.AudioFile != "" {
					_ = printLine(out, "Extracted Audio: "+client.ResolveURL(res.AudioFile))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "audio <path>",
			Short: "语音转写与情感分析",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := withTimeout(cmd)
				defer cancel()
				res, err := client.TranscribeSpeech(ctx, args[0])
				if err != nil {
					return err
				}
				return printLine(cmd.OutOrStdout(), emotion.FormatSpeech(*res))
			},
		},
		newRealtimeCmd(func() *gateway.Client { return client }, withTimeout),
	)

	return rootCmd
}

// newRealtimeCmd 依次上传帧文件，结束后打印统计与会话汇总
func newRealtimeCmd(client func() *gateway.Client, withTimeout func(*cobra.Command) (context.Context, context.CancelFunc)) *cobra.Command {
	return &cobra.Command{
		Use:   "realtime <frame>...",
		Short: "实时会话：逐帧上传图片",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			gw := client()
			out := cmd.OutOrStdout()

			sessionID, err := gw.StartRealtimeSession(ctx)
			if err != nil {
				return err
			}
			_ = printLine(out, "session: "+sessionID)

			for i, path := range args {
				frame, err := os.ReadFile(path)
				if err != nil {
					_, _ = gw.EndRealtimeSession(ctx, sessionID)
					return err
				}
				result, err := gw.ProcessFrame(ctx, sessionID, i, frame)
				if err != nil {
					log.Warn().Err(err).Int("frame", i).Msg("帧处理失败")
					continue
				}
				_ = printLine(out, fmt.Sprintf("frame %d: %v", i, map[string]any(result)))
			}

			if stats, err := gw.RealtimeStatistics(ctx, sessionID); err != nil {
				log.Warn().Err(err).Msg("统计获取失败")
			} else {
				_ = printLine(out, fmt.Sprintf("statistics: %v", map[string]any(stats)))
			}

			summary, err := gw.EndRealtimeSession(ctx, sessionID)
			if err != nil {
				return err
			}
			if summary == nil {
				return errNoResponse
			}
			return printLine(out, emotion.FormatLiveSummary(*summary))
		},
	}
}

func printLine(w io.Writer, text string) error {
	_, err := fmt.Fprintln(w, text)
	return err
}
