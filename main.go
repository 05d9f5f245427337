package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wavesbot/meeting-scribe/internal/config"
	"github.com/wavesbot/meeting-scribe/internal/logger"
	"github.com/wavesbot/meeting-scribe/internal/scheduler"
	"github.com/wavesbot/meeting-scribe/internal/svc"

	"github.com/spf13/cobra"
)

var (
	configFile string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "meeting-scribe",
		Short:         "会议日历同步、声纹注册提醒与录音转写",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "etc/config.yaml", "the config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "输出调试日志")

	rootCmd.AddCommand(newServeCmd(), newTranscribeCmd(), newEnrollCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("%s", err)
	}
}

// loadServiceContext 读取配置并创建服务上下文
func loadServiceContext() *svc.ServiceContext {
	c, err := config.LoadFromFile(configFile)
	if err != nil {
		logger.Fatalf("读取配置文件失败, %s", err)
	}
	logger.Setup(filepath.Join(c.DataDir, "logs"), debug)
	return svc.NewServiceContext(c)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "定时同步日历会议并提醒参与者注册声纹",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCtx := loadServiceContext()
			defer svcCtx.Close()

			// 创建并启动调度器
			schedulerInstance := scheduler.NewScheduler(svcCtx.Tracker, svcCtx.Config)
			if err := schedulerInstance.Start(); err != nil {
				return fmt.Errorf("[Scheduler] 启动调度器失败: %w", err)
			}

			// 等待程序退出
			ch := make(chan os.Signal, 2)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			<-ch

			// 优雅关闭
			logger.Infof("正在关闭服务...")
			schedulerInstance.Stop()
			logger.Infof("服务已停止")
			return nil
		},
	}
}

func newTranscribeCmd() *cobra.Command {
	var (
		meetingID     string
		recordingPath string
		speakerCount  int
	)
	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "转写会议录音并发送给会议组织者",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCtx := loadServiceContext()
			defer svcCtx.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out, err := svcCtx.Pipeline.Process(ctx, meetingID, recordingPath, speakerCount)
			if err != nil {
				return fmt.Errorf("[Transcriber] 转写失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.TranscriptPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&meetingID, "meeting", "", "会议 ID")
	cmd.Flags().StringVar(&recordingPath, "recording", "", "本地录音文件 (LINEAR16 wav)")
	cmd.Flags().IntVar(&speakerCount, "speakers", 0, "说话人数量，默认使用会议参与者人数")
	_ = cmd.MarkFlagRequired("meeting")
	_ = cmd.MarkFlagRequired("recording")
	return cmd
}

func newEnrollCmd() *cobra.Command {
	var email, name, guid string
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "记录参与者的声纹识别 ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCtx := loadServiceContext()
			defer svcCtx.Close()

			if err := svcCtx.PersonModel.SetRecognitionGUID(cmd.Context(), email, name, guid); err != nil {
				return fmt.Errorf("保存声纹注册信息失败: %w", err)
			}
			logger.Infof("[Enroll] %s 声纹注册信息已保存", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "参与者邮箱")
	cmd.Flags().StringVar(&name, "name", "", "参与者姓名")
	cmd.Flags().StringVar(&guid, "guid", "", "声纹识别 profile ID")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("guid")
	return cmd
}
