package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wavesbot/meeting-scribe/internal/diarize"
	"github.com/wavesbot/meeting-scribe/internal/logger"
)

// runFunc 执行外部命令（便于测试替换）
type runFunc func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Clipper 使用 ffmpeg 按说话人区间截取音频
type Clipper struct {
	ffmpeg        string
	outDir        string
	sampleSeconds float64
	run           runFunc
}

func NewClipper(ffmpegPath, outDir string, sampleSeconds float64) *Clipper {
	return &Clipper{
		ffmpeg:        ffmpegPath,
		outDir:        outDir,
		sampleSeconds: sampleSeconds,
		run:           runCommand,
	}
}

// HasEnoughAudio 已收集的区间是否达到声纹样本时长
func (c *Clipper) HasEnoughAudio(intervals []diarize.Interval) bool {
	return diarize.MinDuration(c.sampleSeconds)(intervals)
}

// SpeakerClip 将说话人的所有区间从源录音中截取并拼接为一个文件
func (c *Clipper) SpeakerClip(ctx context.Context, meetingID, source string, tag int, intervals []diarize.Interval) (string, error) {
	if len(intervals) == 0 {
		return "", fmt.Errorf("说话人 %d 没有可截取的音频", tag)
	}
	dir := filepath.Join(c.outDir, meetingID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建音频目录失败: %w", err)
	}

	out := filepath.Join(dir, fmt.Sprintf("speaker%d.wav", tag))
	args := []string{
		"-y", "-i", source,
		"-af", SelectFilter(intervals),
		out,
	}
	if err := c.run(ctx, c.ffmpeg, args...); err != nil {
		return "", fmt.Errorf("截取说话人 %d 音频失败: %w", tag, err)
	}
	logger.Debugf("[Audio] 说话人 %d 音频已截取: %s", tag, out)
	return out, nil
}

// SpeakerSample 从说话人音频中截取用于声纹注册的短样本（16kHz 单声道）
func (c *Clipper) SpeakerSample(ctx context.Context, clipPath string, tag int) (string, error) {
	out := filepath.Join(filepath.Dir(clipPath), fmt.Sprintf("speaker%d_sample.wav", tag))
	args := []string{
		"-y", "-i", clipPath,
		"-t", formatSeconds(c.sampleSeconds),
		"-ac", "1", "-ar", "16000",
		out,
	}
	if err := c.run(ctx, c.ffmpeg, args...); err != nil {
		return "", fmt.Errorf("截取说话人 %d 样本失败: %w", tag, err)
	}
	logger.Debugf("[Audio] 说话人 %d 样本已生成: %s", tag, out)
	return out, nil
}

// SelectFilter 生成只保留给定区间的 ffmpeg 音频滤镜
func SelectFilter(intervals []diarize.Interval) string {
	parts := make([]string, len(intervals))
	for i, in := range intervals {
		parts[i] = fmt.Sprintf("between(t,%s,%s)", formatSeconds(in.Start), formatSeconds(in.End))
	}
	return fmt.Sprintf("aselect='%s',asetpts=N/SR/TB", strings.Join(parts, "+"))
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
