package diarize

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Result 一次聚合的结果
type Result struct {
	Segments []Segment
	Speakers *SpeakerIntervals
}

// Transcript 生成会议纪要文本
// 每个片段另起一行，格式为 "speaker<tag>: <text>"
func (r *Result) Transcript() string {
	var sb strings.Builder
	sb.WriteString(TranscriptHeader)
	if r == nil {
		return sb.String()
	}
	for _, seg := range r.Segments {
		sb.WriteString(fmt.Sprintf("\nspeaker%d: %s", seg.SpeakerTag, seg.Text))
	}
	return sb.String()
}

// TimeFromParts 将秒与纳秒两部分合成为浮点秒
func TimeFromParts(seconds int64, nanos int32) float64 {
	return float64(seconds) + float64(nanos)/1e9
}

// ValidateWord 校验词条时间
func ValidateWord(w Word) error {
	if math.IsNaN(w.Start) || math.IsNaN(w.End) || math.IsInf(w.Start, 0) || math.IsInf(w.End, 0) {
		return fmt.Errorf("%w: %q 时间不是有限值", ErrInvalidWord, w.Text)
	}
	if w.Start < 0 || w.End < 0 {
		return fmt.Errorf("%w: %q 时间为负数", ErrInvalidWord, w.Text)
	}
	if w.End < w.Start {
		return fmt.Errorf("%w: %q 结束时间 %.3f 早于开始时间 %.3f", ErrInvalidWord, w.Text, w.End, w.Start)
	}
	return nil
}

// collector 聚合过程中的累积状态，只在单次 Aggregate 调用内使用
type collector struct {
	segments  []Segment
	tags      []int
	intervals map[int][]Interval
}

// appendWord 第一个词总是开启新片段；之后说话人变化时开启新片段
func (c collector) appendWord(w Word) collector {
	n := len(c.segments)
	if n == 0 || c.segments[n-1].SpeakerTag != w.SpeakerTag {
		c.segments = append(c.segments, Segment{SpeakerTag: w.SpeakerTag, Text: w.Text})
		return c
	}
	c.segments[n-1].Text += " " + w.Text
	return c
}

// appendInterval 说话人尚未全部出现，或当前说话人音频不足时继续收集
func (c collector) appendInterval(w Word, speakerCount int, hasEnough EnoughAudioFunc) collector {
	list, seen := c.intervals[w.SpeakerTag]
	keep := !seen || len(c.tags) < speakerCount || hasEnough == nil || !hasEnough(list)
	if !keep {
		return c
	}
	if !seen {
		c.tags = append(c.tags, w.SpeakerTag)
	}
	c.intervals[w.SpeakerTag] = append(list, Interval{Start: w.Start, End: w.End})
	return c
}

// Aggregate 按说话人聚合词序列，生成转写片段与每个说话人的音频区间
// speakerCount 为请求识别时的说话人数；hasEnough 为 nil 时收集全部区间
func Aggregate(words []Word, speakerCount int, hasEnough EnoughAudioFunc) (*Result, error) {
	acc := collector{intervals: make(map[int][]Interval)}
	for i, w := range words {
		if err := ValidateWord(w); err != nil {
			return nil, fmt.Errorf("第 %d 个词: %w", i, err)
		}
		acc = acc.appendWord(w)
		acc = acc.appendInterval(w, speakerCount, hasEnough)
	}

	merged := make(map[int][]Interval, len(acc.intervals))
	for tag, list := range acc.intervals {
		merged[tag] = MergeIntervals(list)
	}

	return &Result{
		Segments: acc.segments,
		Speakers: &SpeakerIntervals{tags: acc.tags, intervals: merged},
	}, nil
}

// MergeIntervals 合并相邻或重叠的区间
func MergeIntervals(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	slices.SortStableFunc(sorted, func(a, b Interval) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	out := []Interval{sorted[0]}
	for _, next := range sorted[1:] {
		cur := &out[len(out)-1]
		if next.Start <= cur.End {
			cur.End = math.Max(cur.End, next.End)
			continue
		}
		out = append(out, next)
	}
	return out
}

// TotalDuration 合并后区间的总时长（秒）
func TotalDuration(intervals []Interval) float64 {
	total := 0.0
	for _, in := range MergeIntervals(intervals) {
		total += in.Duration()
	}
	return total
}

// MinDuration 总时长达到 threshold 秒即认为音频足够
func MinDuration(threshold float64) EnoughAudioFunc {
	return func(intervals []Interval) bool {
		return TotalDuration(intervals) >= threshold
	}
}
