package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wavesbot/meeting-scribe/internal/audio"
	"github.com/wavesbot/meeting-scribe/internal/diarize"
	"github.com/wavesbot/meeting-scribe/internal/llm"
	"github.com/wavesbot/meeting-scribe/internal/logger"
	"github.com/wavesbot/meeting-scribe/internal/meeting"
	"github.com/wavesbot/meeting-scribe/internal/model"
	"github.com/wavesbot/meeting-scribe/internal/notify"
	"github.com/wavesbot/meeting-scribe/internal/speech"
	"github.com/wavesbot/meeting-scribe/internal/storage"
)

type uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

type speechTranscriber interface {
	Transcribe(ctx context.Context, uri string, speakerCount int) ([]diarize.Word, error)
}

type clipper interface {
	HasEnoughAudio(intervals []diarize.Interval) bool
	SpeakerClip(ctx context.Context, meetingID, source string, tag int, intervals []diarize.Interval) (string, error)
	SpeakerSample(ctx context.Context, clipPath string, tag int) (string, error)
}

type minutesSummarizer interface {
	SummarizeMinutes(ctx context.Context, segments []diarize.Segment) (string, error)
}

type transcriptionNotifier interface {
	SendTranscription(ctx context.Context, meeting *model.Meeting, transcriptPath, summary string) error
}

type meetingStore interface {
	FindByMeetingID(ctx context.Context, meetingID string) (*model.Meeting, error)
	MarkTranscribed(ctx context.Context, meetingID string, at time.Time) error
}

// Output 一次转写的产物
type Output struct {
	TranscriptPath string
	Result         *diarize.Result
	Samples        map[int]string // 说话人标签 -> 声纹样本文件
	Summary        string
}

// Pipeline 会议录音转写流程：上传、识别、聚合、截取样本、保存并发送纪要
type Pipeline struct {
	uploader       uploader
	transcriber    speechTranscriber
	clipper        clipper
	summarizer     minutesSummarizer
	notifier       transcriptionNotifier
	meetings       meetingStore
	botEmail       string
	transcriptsDir string
	now            func() time.Time
}

// NewPipeline llmClient 为 nil 时不生成摘要
func NewPipeline(
	uploader *storage.Uploader,
	transcriber *speech.Transcriber,
	clipper *audio.Clipper,
	llmClient *llm.Client,
	notifier *notify.Notifier,
	meetings *model.MeetingModel,
	botEmail string,
	transcriptsDir string,
) *Pipeline {
	p := &Pipeline{
		uploader:       uploader,
		transcriber:    transcriber,
		clipper:        clipper,
		notifier:       notifier,
		meetings:       meetings,
		botEmail:       botEmail,
		transcriptsDir: transcriptsDir,
		now:            time.Now,
	}
	if llmClient != nil {
		p.summarizer = llmClient
	}
	return p
}

// Process 转写会议录音，speakerCount <= 0 时使用会议参与者人数（不含机器人）
func (p *Pipeline) Process(ctx context.Context, meetingID, recordingPath string, speakerCount int) (*Output, error) {
	record, err := p.meetings.FindByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("查询会议失败: %w", err)
	}
	if speakerCount <= 0 {
		speakerCount = len(meeting.Participants(record, p.botEmail))
	}
	if speakerCount <= 0 {
		return nil, fmt.Errorf("会议 %s 无法确定说话人数量", meetingID)
	}
	logger.Infof("[Transcriber] 开始转写会议 %s，说话人数量: %d", meetingID, speakerCount)

	uri, err := p.uploader.Upload(ctx, recordingPath)
	if err != nil {
		return nil, fmt.Errorf("上传录音失败: %w", err)
	}

	words, err := p.transcriber.Transcribe(ctx, uri, speakerCount)
	if err != nil {
		return nil, fmt.Errorf("语音识别失败: %w", err)
	}

	result, err := diarize.Aggregate(words, speakerCount, p.clipper.HasEnoughAudio)
	if err != nil {
		return nil, fmt.Errorf("聚合识别结果失败: %w", err)
	}
	logger.Infof("[Transcriber] 会议 %s 识别完成，共 %d 个词，%d 段发言", meetingID, len(words), len(result.Segments))

	out := &Output{
		Result:  result,
		Samples: p.extractSamples(ctx, meetingID, recordingPath, result.Speakers),
	}

	out.TranscriptPath, err = p.writeTranscript(meetingID, result.Transcript())
	if err != nil {
		return nil, err
	}

	if p.summarizer != nil {
		summary, err := p.summarizer.SummarizeMinutes(ctx, result.Segments)
		if err != nil {
			logger.Warnf("[Transcriber] 会议 %s 生成摘要失败: %v", meetingID, err)
		} else {
			out.Summary = summary
		}
	}

	if err := p.notifier.SendTranscription(ctx, record, out.TranscriptPath, out.Summary); err != nil {
		logger.Errorf("[Transcriber] 会议 %s 转写发送失败: %v", meetingID, err)
	}

	if err := p.meetings.MarkTranscribed(ctx, meetingID, p.now()); err != nil {
		logger.Warnf("[Transcriber] 记录转写状态失败 (meetingID=%s): %v", meetingID, err)
	}

	logger.Infof("[Transcriber] 会议 %s 转写完成: %s", meetingID, out.TranscriptPath)
	return out, nil
}

// extractSamples 为每个说话人截取声纹样本，单个说话人失败不影响其他人
func (p *Pipeline) extractSamples(ctx context.Context, meetingID, source string, speakers *diarize.SpeakerIntervals) map[int]string {
	samples := make(map[int]string)
	speakers.Each(func(tag int, intervals []diarize.Interval) {
		clip, err := p.clipper.SpeakerClip(ctx, meetingID, source, tag, intervals)
		if err != nil {
			logger.Warnf("[Transcriber] %v", err)
			return
		}
		sample, err := p.clipper.SpeakerSample(ctx, clip, tag)
		if err != nil {
			logger.Warnf("[Transcriber] %v", err)
			return
		}
		samples[tag] = sample
	})
	return samples
}

func (p *Pipeline) writeTranscript(meetingID, transcript string) (string, error) {
	if err := os.MkdirAll(p.transcriptsDir, 0755); err != nil {
		return "", fmt.Errorf("创建转写目录失败: %w", err)
	}
	path := filepath.Join(p.transcriptsDir, meetingID+".txt")
	if err := os.WriteFile(path, []byte(transcript), 0644); err != nil {
		return "", fmt.Errorf("保存转写文件失败: %w", err)
	}
	return path, nil
}
