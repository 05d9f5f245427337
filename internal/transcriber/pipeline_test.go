package transcriber

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wavesbot/meeting-scribe/internal/calendar"
	"github.com/wavesbot/meeting-scribe/internal/diarize"
	"github.com/wavesbot/meeting-scribe/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUploader struct{ mock.Mock }

func (m *mockUploader) Upload(ctx context.Context, localPath string) (string, error) {
	args := m.Called(ctx, localPath)
	return args.String(0), args.Error(1)
}

type mockTranscriber struct{ mock.Mock }

func (m *mockTranscriber) Transcribe(ctx context.Context, uri string, speakerCount int) ([]diarize.Word, error) {
	args := m.Called(ctx, uri, speakerCount)
	words, _ := args.Get(0).([]diarize.Word)
	return words, args.Error(1)
}

type mockSummarizer struct{ mock.Mock }

func (m *mockSummarizer) SummarizeMinutes(ctx context.Context, segments []diarize.Segment) (string, error) {
	args := m.Called(ctx, segments)
	return args.String(0), args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) SendTranscription(ctx context.Context, meeting *model.Meeting, transcriptPath, summary string) error {
	return m.Called(ctx, meeting, transcriptPath, summary).Error(0)
}

// fakeClipper 记录截取请求，不调用 ffmpeg
type fakeClipper struct {
	clipped map[int][]diarize.Interval
	failTag int
}

func (c *fakeClipper) HasEnoughAudio(intervals []diarize.Interval) bool {
	return diarize.MinDuration(1)(intervals)
}

func (c *fakeClipper) SpeakerClip(ctx context.Context, meetingID, source string, tag int, intervals []diarize.Interval) (string, error) {
	if tag == c.failTag {
		return "", fmt.Errorf("截取说话人 %d 音频失败", tag)
	}
	if c.clipped == nil {
		c.clipped = make(map[int][]diarize.Interval)
	}
	c.clipped[tag] = intervals
	return fmt.Sprintf("clips/%s/speaker%d.wav", meetingID, tag), nil
}

func (c *fakeClipper) SpeakerSample(ctx context.Context, clipPath string, tag int) (string, error) {
	return fmt.Sprintf("sample%d.wav", tag), nil
}

type fakeMeetingStore struct {
	meetings    map[string]*model.Meeting
	transcribed map[string]time.Time
}

func (s *fakeMeetingStore) FindByMeetingID(ctx context.Context, meetingID string) (*model.Meeting, error) {
	m, ok := s.meetings[meetingID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return m, nil
}

func (s *fakeMeetingStore) MarkTranscribed(ctx context.Context, meetingID string, at time.Time) error {
	if s.transcribed == nil {
		s.transcribed = make(map[string]time.Time)
	}
	s.transcribed[meetingID] = at
	return nil
}

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func testMeeting() *model.Meeting {
	attendee := func(email string) calendar.Attendee {
		return calendar.Attendee{EmailAddress: calendar.EmailAddress{Address: email}}
	}
	return &model.Meeting{
		MeetingID:      "m1",
		Start:          calendar.DateTimeTimeZone{DateTime: "2026-10-19T10:00:00.0000000", TimeZone: "UTC"},
		Participants:   []calendar.Attendee{attendee("tom@example.com"), attendee("wavesbot319@outlook.com"), attendee("ann@example.com")},
		MeetingManager: calendar.Recipient{EmailAddress: calendar.EmailAddress{Address: "tom@example.com"}},
	}
}

var testWords = []diarize.Word{
	{Text: "Hi", Start: 0, End: 0.5, SpeakerTag: 1},
	{Text: "Tom", Start: 0.5, End: 1.2, SpeakerTag: 1},
	{Text: "Hello", Start: 1.5, End: 2.8, SpeakerTag: 2},
}

type testDeps struct {
	uploader    *mockUploader
	transcriber *mockTranscriber
	clipper     *fakeClipper
	notifier    *mockNotifier
	store       *fakeMeetingStore
}

func newTestPipeline(t *testing.T) (*Pipeline, *testDeps) {
	d := &testDeps{
		uploader:    &mockUploader{},
		transcriber: &mockTranscriber{},
		clipper:     &fakeClipper{failTag: -1},
		notifier:    &mockNotifier{},
		store:       &fakeMeetingStore{meetings: map[string]*model.Meeting{"m1": testMeeting()}},
	}
	p := &Pipeline{
		uploader:       d.uploader,
		transcriber:    d.transcriber,
		clipper:        d.clipper,
		notifier:       d.notifier,
		meetings:       d.store,
		botEmail:       "wavesbot319@outlook.com",
		transcriptsDir: filepath.Join(t.TempDir(), "transcriptions"),
		now:            func() time.Time { return fixedNow },
	}
	return p, d
}

func TestProcess(t *testing.T) {
	p, d := newTestPipeline(t)
	d.uploader.On("Upload", mock.Anything, "rec.wav").Return("gs://untranscribed/rec.wav", nil)
	d.transcriber.On("Transcribe", mock.Anything, "gs://untranscribed/rec.wav", 2).Return(testWords, nil)
	d.notifier.On("SendTranscription", mock.Anything, d.store.meetings["m1"], mock.Anything, "").Return(nil)

	out, err := p.Process(context.Background(), "m1", "rec.wav", 0)
	require.NoError(t, err)

	data, err := os.ReadFile(out.TranscriptPath)
	require.NoError(t, err)
	assert.Equal(t, "Meeting Minutes\n\nspeaker1: Hi Tom\nspeaker2: Hello", string(data))
	assert.Equal(t, "m1.txt", filepath.Base(out.TranscriptPath))

	assert.Equal(t, map[int]string{1: "sample1.wav", 2: "sample2.wav"}, out.Samples)
	assert.Equal(t, []diarize.Interval{{Start: 0, End: 1.2}}, d.clipper.clipped[1])
	assert.Equal(t, fixedNow, d.store.transcribed["m1"])
	d.notifier.AssertCalled(t, "SendTranscription", mock.Anything, d.store.meetings["m1"], out.TranscriptPath, "")
}

func TestProcess_ExplicitSpeakerCount(t *testing.T) {
	p, d := newTestPipeline(t)
	d.uploader.On("Upload", mock.Anything, mock.Anything).Return("gs://b/rec.wav", nil)
	d.transcriber.On("Transcribe", mock.Anything, mock.Anything, 3).Return(testWords, nil)
	d.notifier.On("SendTranscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := p.Process(context.Background(), "m1", "rec.wav", 3)
	require.NoError(t, err)
	d.transcriber.AssertExpectations(t)
}

func TestProcess_WithSummary(t *testing.T) {
	p, d := newTestPipeline(t)
	s := &mockSummarizer{}
	p.summarizer = s
	d.uploader.On("Upload", mock.Anything, mock.Anything).Return("gs://b/rec.wav", nil)
	d.transcriber.On("Transcribe", mock.Anything, mock.Anything, 2).Return(testWords, nil)
	s.On("SummarizeMinutes", mock.Anything, []diarize.Segment{{SpeakerTag: 1, Text: "Hi Tom"}, {SpeakerTag: 2, Text: "Hello"}}).
		Return("Greetings exchanged.", nil)
	d.notifier.On("SendTranscription", mock.Anything, mock.Anything, mock.Anything, "Greetings exchanged.").Return(nil)

	out, err := p.Process(context.Background(), "m1", "rec.wav", 0)
	require.NoError(t, err)
	assert.Equal(t, "Greetings exchanged.", out.Summary)
	d.notifier.AssertExpectations(t)
}

func TestProcess_SummaryAndMailFailuresAreLogged(t *testing.T) {
	p, d := newTestPipeline(t)
	s := &mockSummarizer{}
	p.summarizer = s
	d.uploader.On("Upload", mock.Anything, mock.Anything).Return("gs://b/rec.wav", nil)
	d.transcriber.On("Transcribe", mock.Anything, mock.Anything, 2).Return(testWords, nil)
	s.On("SummarizeMinutes", mock.Anything, mock.Anything).Return("", errors.New("timeout"))
	d.notifier.On("SendTranscription", mock.Anything, mock.Anything, mock.Anything, "").Return(errors.New("403"))

	out, err := p.Process(context.Background(), "m1", "rec.wav", 0)
	require.NoError(t, err)
	assert.Empty(t, out.Summary)
	assert.Contains(t, d.store.transcribed, "m1")
}

func TestProcess_ClipFailureSkipsSpeaker(t *testing.T) {
	p, d := newTestPipeline(t)
	d.clipper.failTag = 2
	d.uploader.On("Upload", mock.Anything, mock.Anything).Return("gs://b/rec.wav", nil)
	d.transcriber.On("Transcribe", mock.Anything, mock.Anything, 2).Return(testWords, nil)
	d.notifier.On("SendTranscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	out, err := p.Process(context.Background(), "m1", "rec.wav", 0)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "sample1.wav"}, out.Samples)
}

func TestProcess_Errors(t *testing.T) {
	t.Run("会议不存在", func(t *testing.T) {
		p, _ := newTestPipeline(t)
		_, err := p.Process(context.Background(), "missing", "rec.wav", 0)
		assert.True(t, model.IsNotFound(err))
	})

	t.Run("无法确定说话人数量", func(t *testing.T) {
		p, d := newTestPipeline(t)
		d.store.meetings["m1"].Participants = nil
		_, err := p.Process(context.Background(), "m1", "rec.wav", 0)
		assert.ErrorContains(t, err, "说话人数量")
		d.uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
	})

	t.Run("上传失败", func(t *testing.T) {
		p, d := newTestPipeline(t)
		d.uploader.On("Upload", mock.Anything, mock.Anything).Return("", errors.New("permission denied"))
		_, err := p.Process(context.Background(), "m1", "rec.wav", 0)
		assert.ErrorContains(t, err, "permission denied")
		assert.Empty(t, d.store.transcribed)
	})

	t.Run("识别失败", func(t *testing.T) {
		p, d := newTestPipeline(t)
		d.uploader.On("Upload", mock.Anything, mock.Anything).Return("gs://b/rec.wav", nil)
		d.transcriber.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(nil, diarize.ErrInvalidWord)
		_, err := p.Process(context.Background(), "m1", "rec.wav", 0)
		assert.ErrorIs(t, err, diarize.ErrInvalidWord)
	})
}
