package diarize

import "errors"

// TranscriptHeader 转写文本的固定首行
const TranscriptHeader = "Meeting Minutes\n"

// ErrInvalidWord 词条时间缺失或区间非法
var ErrInvalidWord = errors.New("无效的词条")

// Word 语音识别返回的单个词，输入顺序即时间顺序
type Word struct {
	Text       string
	Start      float64 // 秒
	End        float64 // 秒
	SpeakerTag int
}

// Segment 连续同一说话人的词合并后的片段
type Segment struct {
	SpeakerTag int
	Text       string
}

// Interval 音频时间区间，Start <= End
type Interval struct {
	Start float64
	End   float64
}

// Duration 区间时长（秒）
func (i Interval) Duration() float64 {
	return i.End - i.Start
}

// EnoughAudioFunc 判断某个说话人已收集的区间是否足够用于声纹注册
type EnoughAudioFunc func(intervals []Interval) bool

// SpeakerIntervals 说话人 -> 区间列表，按发现顺序保存说话人
// 聚合完成后只读
type SpeakerIntervals struct {
	tags      []int
	intervals map[int][]Interval
}

// Tags 按发现顺序返回说话人标签
func (s *SpeakerIntervals) Tags() []int {
	if s == nil {
		return nil
	}
	tags := make([]int, len(s.tags))
	copy(tags, s.tags)
	return tags
}

// Get 返回说话人的区间列表副本
func (s *SpeakerIntervals) Get(tag int) []Interval {
	if s == nil {
		return nil
	}
	list, ok := s.intervals[tag]
	if !ok {
		return nil
	}
	out := make([]Interval, len(list))
	copy(out, list)
	return out
}

// Len 说话人数量
func (s *SpeakerIntervals) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tags)
}

// Each 按发现顺序遍历
func (s *SpeakerIntervals) Each(fn func(tag int, intervals []Interval)) {
	for _, tag := range s.Tags() {
		fn(tag, s.Get(tag))
	}
}
