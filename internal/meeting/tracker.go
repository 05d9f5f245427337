package meeting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wavesbot/meeting-scribe/internal/calendar"
	"github.com/wavesbot/meeting-scribe/internal/logger"
	"github.com/wavesbot/meeting-scribe/internal/model"
	"github.com/wavesbot/meeting-scribe/internal/notify"
)

type eventSource interface {
	UpcomingEvents(ctx context.Context, from time.Time) ([]calendar.Event, error)
}

type meetingStore interface {
	FindByMeetingID(ctx context.Context, meetingID string) (*model.Meeting, error)
	Upsert(ctx context.Context, data *model.MeetingData) error
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]*model.Meeting, error)
	MarkEnrollmentNotified(ctx context.Context, meetingID string, at time.Time) error
}

type personStore interface {
	FindByEmail(ctx context.Context, email string) (*model.Person, error)
}

type enrollmentNotifier interface {
	SendEnrollmentNotification(ctx context.Context, emails []string) error
}

// Tracker 同步日历会议并检查参与者声纹注册情况
type Tracker struct {
	events   eventSource
	meetings meetingStore
	people   personStore
	notifier enrollmentNotifier
	botEmail string
	now      func() time.Time
}

func NewTracker(
	events *calendar.Client,
	meetings *model.MeetingModel,
	people *model.PersonModel,
	notifier *notify.Notifier,
) *Tracker {
	return &Tracker{
		events:   events,
		meetings: meetings,
		people:   people,
		notifier: notifier,
		botEmail: events.Mailbox(),
		now:      time.Now,
	}
}

// CheckUpcomingMeetings 拉取即将开始的会议并写入数据库，失败只记录日志
func (t *Tracker) CheckUpcomingMeetings(ctx context.Context) int {
	events, err := t.events.UpcomingEvents(ctx, t.now())
	if err != nil {
		logger.Errorf("[Meeting] 获取即将开始的会议失败: %v", err)
		return 0
	}

	updated := 0
	for _, event := range events {
		changed, err := t.UpdateMeeting(ctx, event)
		if err != nil {
			logger.Errorf("[Meeting] 更新会议失败 (meetingID=%s): %v", event.ID, err)
			continue
		}
		if changed {
			updated++
		}
	}
	logger.Debugf("[Meeting] 共 %d 个会议，更新 %d 个", len(events), updated)
	return updated
}

// UpdateMeeting changeKey 未变化时跳过，返回是否写入了数据库
func (t *Tracker) UpdateMeeting(ctx context.Context, event calendar.Event) (bool, error) {
	record, err := t.meetings.FindByMeetingID(ctx, event.ID)
	if err != nil && !model.IsNotFound(err) {
		return false, err
	}
	if record != nil && record.ChangeKey == event.ChangeKey {
		return false, nil
	}

	data := &model.MeetingData{
		MeetingID:      event.ID,
		ChangeKey:      event.ChangeKey,
		IsCancelled:    event.IsCancelled,
		Subject:        event.Subject,
		Start:          event.Start,
		End:            event.End,
		Location:       event.Location.DisplayName,
		Participants:   event.Attendees,
		MeetingManager: event.Organizer,
	}
	if startAt, err := event.Start.Time(); err == nil {
		data.StartAt = &startAt
	} else {
		logger.Warnf("[Meeting] 会议 %s 开始时间无法解析: %v", event.ID, err)
	}
	if phone, ok := calendar.ParsePhoneNumber(event.Body.Content); ok {
		data.PhoneNumber = &phone
	}
	if code, ok := calendar.ParseCode(event.Body.Content); ok {
		data.Code = &code
	}

	if err := t.meetings.Upsert(ctx, data); err != nil {
		return false, err
	}
	logger.Infof("[Meeting] 会议 %s 已写入数据库", event.ID)
	return true, nil
}

// CheckParticipantsEnrollment 找出未注册声纹的参与者并发送提醒，返回这些参与者的邮箱
// 提醒发送失败时同时返回参与者列表和错误
func (t *Tracker) CheckParticipantsEnrollment(ctx context.Context, meetingID string) ([]string, error) {
	meeting, err := t.meetings.FindByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	var unenrolled []string
	for _, email := range Participants(meeting, t.botEmail) {
		person, err := t.people.FindByEmail(ctx, email)
		if err != nil && !model.IsNotFound(err) {
			return nil, fmt.Errorf("查询参与者 %s 失败: %w", email, err)
		}
		if !person.Enrolled() {
			unenrolled = append(unenrolled, email)
		}
	}

	if len(unenrolled) > 0 {
		if err := t.notifier.SendEnrollmentNotification(ctx, unenrolled); err != nil {
			logger.Errorf("[Meeting] 会议 %s 声纹注册提醒发送失败: %v", meetingID, err)
			return unenrolled, fmt.Errorf("发送声纹注册提醒失败: %w", err)
		}
	}
	return unenrolled, nil
}

// CheckUpcomingEnrollments 对 window 内开始且尚未提醒过的会议检查声纹注册
// 只有提醒发送成功才记录，失败的会议在下一轮重试
func (t *Tracker) CheckUpcomingEnrollments(ctx context.Context, window time.Duration) {
	now := t.now()
	meetings, err := t.meetings.ListStartingBetween(ctx, now, now.Add(window))
	if err != nil {
		logger.Errorf("[Meeting] 查询即将开始的会议失败: %v", err)
		return
	}

	for _, m := range meetings {
		if m.EnrollmentNotifiedAt != nil {
			continue
		}
		if _, err := t.CheckParticipantsEnrollment(ctx, m.MeetingID); err != nil {
			logger.Errorf("[Meeting] 检查会议 %s 声纹注册失败: %v", m.MeetingID, err)
			continue
		}
		if err := t.meetings.MarkEnrollmentNotified(ctx, m.MeetingID, now); err != nil {
			logger.Warnf("[Meeting] 记录提醒状态失败 (meetingID=%s): %v", m.MeetingID, err)
		}
	}
}

// Participants 会议参与者邮箱，去除机器人邮箱和重复项
func Participants(meeting *model.Meeting, botEmail string) []string {
	seen := make(map[string]bool)
	var emails []string
	for _, p := range meeting.Participants {
		email := strings.TrimSpace(p.EmailAddress.Address)
		key := strings.ToLower(email)
		if email == "" || strings.EqualFold(email, botEmail) || seen[key] {
			continue
		}
		seen[key] = true
		emails = append(emails, email)
	}
	return emails
}
