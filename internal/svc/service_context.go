package svc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/wavesbot/meeting-scribe/internal/audio"
	"github.com/wavesbot/meeting-scribe/internal/calendar"
	"github.com/wavesbot/meeting-scribe/internal/config"
	"github.com/wavesbot/meeting-scribe/internal/llm"
	"github.com/wavesbot/meeting-scribe/internal/logger"
	"github.com/wavesbot/meeting-scribe/internal/meeting"
	"github.com/wavesbot/meeting-scribe/internal/model"
	"github.com/wavesbot/meeting-scribe/internal/notify"
	"github.com/wavesbot/meeting-scribe/internal/speech"
	"github.com/wavesbot/meeting-scribe/internal/storage"
	"github.com/wavesbot/meeting-scribe/internal/transcriber"

	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config         *config.Config
	DbDriver       *entsql.Driver
	TransportProxy *http.Transport
	MeetingModel   *model.MeetingModel
	PersonModel    *model.PersonModel
	GraphClient    *calendar.Client
	Notifier       *notify.Notifier
	Tracker        *meeting.Tracker
	Uploader       *storage.Uploader
	Transcriber    *speech.Transcriber
	Clipper        *audio.Clipper
	LLMClient      *llm.Client // LLM.Enable 为 false 时为 nil
	Pipeline       *transcriber.Pipeline
}

func NewServiceContext(c *config.Config) *ServiceContext {
	ctx := context.Background()

	// 创建数据目录
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		logger.Fatalf("创建数据目录失败, %v", err)
	}

	// 创建数据库连接
	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_fk=1", filepath.Join(c.DataDir, "sqlite.db"))
	drv, err := model.Open(ctx, dsn)
	if err != nil {
		logger.Fatalf("打开数据库失败, %v", err)
	}

	// 创建SOCKS5代理
	var transportProxy *http.Transport
	if c.Sock5Proxy.Enable {
		socks5Proxy := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
		dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
		if err != nil {
			logger.Fatalf("创建SOCKS5代理失败, %v", err)
		}

		transportProxy = &http.Transport{
			Dial:            dialer.Dial,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	// Google Cloud 客户端
	uploader, err := storage.NewUploader(ctx, c.Google.CredentialsFile, c.Google.Bucket)
	if err != nil {
		logger.Fatalf("创建 Cloud Storage 客户端失败, %v", err)
	}
	speechTranscriber, err := speech.NewTranscriber(ctx, &c.Speech, c.Google.CredentialsFile)
	if err != nil {
		logger.Fatalf("创建 Cloud Speech 客户端失败, %v", err)
	}

	var llmClient *llm.Client
	if c.LLM.Enable {
		llmClient = llm.NewClient(&c.LLM, transportProxy)
	}

	meetingModel := model.NewMeetingModel(drv)
	personModel := model.NewPersonModel(drv)
	graphClient := calendar.NewClient(&c.Graph, transportProxy)
	notifier := notify.NewNotifier(graphClient, &c.Enrollment)
	clipper := audio.NewClipper(c.Audio.FFmpegPath, c.Audio.ClipsDir, c.Audio.SampleSeconds)

	svcCtx := &ServiceContext{
		Config:         c,
		DbDriver:       drv,
		TransportProxy: transportProxy,
		MeetingModel:   meetingModel,
		PersonModel:    personModel,
		GraphClient:    graphClient,
		Notifier:       notifier,
		Tracker:        meeting.NewTracker(graphClient, meetingModel, personModel, notifier),
		Uploader:       uploader,
		Transcriber:    speechTranscriber,
		Clipper:        clipper,
		LLMClient:      llmClient,
		Pipeline: transcriber.NewPipeline(
			uploader,
			speechTranscriber,
			clipper,
			llmClient,
			notifier,
			meetingModel,
			graphClient.Mailbox(),
			c.TranscriptsDir,
		),
	}
	return svcCtx
}

func (svcCtx *ServiceContext) Close() {
	if err := svcCtx.Transcriber.Close(); err != nil {
		logger.Errorf("关闭 Cloud Speech 客户端失败, %v", err)
	}
	if err := svcCtx.Uploader.Close(); err != nil {
		logger.Errorf("关闭 Cloud Storage 客户端失败, %v", err)
	}
	if err := svcCtx.DbDriver.Close(); err != nil {
		logger.Errorf("关闭数据库失败, %v", err)
	}
}
