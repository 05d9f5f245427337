package speech

import (
	"context"
	"fmt"
	"strings"

	"github.com/wavesbot/meeting-scribe/internal/config"
	"github.com/wavesbot/meeting-scribe/internal/diarize"
	"github.com/wavesbot/meeting-scribe/internal/logger"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

// recognizer 提交长时识别任务并等待结果（便于测试注入 mock）
type recognizer interface {
	LongRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)
}

type gcpRecognizer struct {
	client *gspeech.Client
}

func (g *gcpRecognizer) LongRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	op, err := g.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

// Transcriber Cloud Speech 说话人分离转写
type Transcriber struct {
	config     *config.Speech
	recognizer recognizer
	close      func() error
}

// NewTranscriber 创建转写客户端，credentialsFile 为空时使用默认凭据
func NewTranscriber(ctx context.Context, cfg *config.Speech, credentialsFile string) (*Transcriber, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gspeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 Cloud Speech 客户端失败: %w", err)
	}
	return &Transcriber{
		config:     cfg,
		recognizer: &gcpRecognizer{client: client},
		close:      client.Close,
	}, nil
}

func (t *Transcriber) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}

// Transcribe 对 gs:// 音频执行长时识别，返回带说话人标签的词序列
func (t *Transcriber) Transcribe(ctx context.Context, uri string, speakerCount int) ([]diarize.Word, error) {
	req, err := buildRequest(t.config, uri, speakerCount)
	if err != nil {
		return nil, err
	}

	logger.Infof("[Speech] 提交转写任务: %s, 说话人数: %d", uri, speakerCount)
	resp, err := t.recognizer.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("语音识别失败: %w", err)
	}

	words, err := WordsFromResponse(resp)
	if err != nil {
		return nil, err
	}
	logger.Infof("[Speech] 转写完成，共 %d 个词", len(words))
	return words, nil
}

func buildRequest(cfg *config.Speech, uri string, speakerCount int) (*speechpb.LongRunningRecognizeRequest, error) {
	encoding, ok := speechpb.RecognitionConfig_AudioEncoding_value[strings.ToUpper(cfg.Encoding)]
	if !ok {
		return nil, fmt.Errorf("不支持的音频编码: %s", cfg.Encoding)
	}

	rc := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_AudioEncoding(encoding),
		SampleRateHertz:            cfg.SampleRateHertz,
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
	}
	if speakerCount > 0 {
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          int32(speakerCount),
			MaxSpeakerCount:          int32(speakerCount),
		}
	} else {
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{EnableSpeakerDiarization: true}
	}

	return &speechpb.LongRunningRecognizeRequest{
		Config: rc,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: uri},
		},
	}, nil
}

// WordsFromResponse 提取词序列
// 每个结果的词列表包含此前所有结果的词，因此只取最后一个结果的首选项
func WordsFromResponse(resp *speechpb.LongRunningRecognizeResponse) ([]diarize.Word, error) {
	results := resp.GetResults()
	if len(results) == 0 {
		return nil, nil
	}
	alternatives := results[len(results)-1].GetAlternatives()
	if len(alternatives) == 0 {
		return nil, nil
	}

	infos := alternatives[0].GetWords()
	words := make([]diarize.Word, 0, len(infos))
	for i, info := range infos {
		if info.GetStartTime() == nil || info.GetEndTime() == nil {
			return nil, fmt.Errorf("第 %d 个词 %q 缺少时间: %w", i, info.GetWord(), diarize.ErrInvalidWord)
		}
		words = append(words, diarize.Word{
			Text:       info.GetWord(),
			Start:      diarize.TimeFromParts(info.GetStartTime().GetSeconds(), info.GetStartTime().GetNanos()),
			End:        diarize.TimeFromParts(info.GetEndTime().GetSeconds(), info.GetEndTime().GetNanos()),
			SpeakerTag: int(info.GetSpeakerTag()),
		})
	}
	return words, nil
}
