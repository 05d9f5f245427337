package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wavesbot/meeting-scribe/internal/calendar"

	entsql "entgo.io/ent/dialect/sql"
)

const (
	colID                   = "id"
	colCreateTime           = "create_time"
	colUpdateTime           = "update_time"
	colMeetingID            = "meeting_id"
	colChangeKey            = "change_key"
	colIsCancelled          = "is_cancelled"
	colSubject              = "subject"
	colStartDateTime        = "start_date_time"
	colEndDateTime          = "end_date_time"
	colStartAt              = "start_at"
	colLocation             = "location"
	colParticipants         = "participants"
	colMeetingManager       = "meeting_manager"
	colPhoneNumber          = "phone_number"
	colCode                 = "code"
	colEnrollmentNotifiedAt = "enrollment_notified_at"
	colTranscribedAt        = "transcribed_at"
)

var meetingColumns = []string{
	colID, colCreateTime, colUpdateTime, colMeetingID, colChangeKey, colIsCancelled, colSubject,
	colStartDateTime, colEndDateTime, colStartAt, colLocation, colParticipants, colMeetingManager,
	colPhoneNumber, colCode, colEnrollmentNotifiedAt, colTranscribedAt,
}

// Meeting 会议记录
type Meeting struct {
	ID                   int
	CreateTime           time.Time
	UpdateTime           time.Time
	MeetingID            string
	ChangeKey            string
	IsCancelled          bool
	Subject              string
	Start                calendar.DateTimeTimeZone
	End                  calendar.DateTimeTimeZone
	StartAt              *time.Time
	Location             string
	Participants         []calendar.Attendee
	MeetingManager       calendar.Recipient
	PhoneNumber          *string
	Code                 *string
	EnrollmentNotifiedAt *time.Time
	TranscribedAt        *time.Time
}

// MeetingData 写入会议记录所需的数据
type MeetingData struct {
	MeetingID      string
	ChangeKey      string
	IsCancelled    bool
	Subject        string
	Start          calendar.DateTimeTimeZone
	End            calendar.DateTimeTimeZone
	StartAt        *time.Time
	Location       string
	Participants   []calendar.Attendee
	MeetingManager calendar.Recipient
	PhoneNumber    *string
	Code           *string
}

type MeetingModel struct {
	drv *entsql.Driver
}

func NewMeetingModel(drv *entsql.Driver) *MeetingModel {
	return &MeetingModel{drv: drv}
}

// FindByMeetingID 按日历事件ID查询会议
func (m *MeetingModel) FindByMeetingID(ctx context.Context, meetingID string) (*Meeting, error) {
	query, args := builder().
		Select(meetingColumns...).
		From(entsql.Table(MeetingsTable.Name)).
		Where(entsql.EQ(colMeetingID, meetingID)).
		Limit(1).
		Query()

	meetings, err := m.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(meetings) == 0 {
		return nil, fmt.Errorf("会议 %s: %w", meetingID, ErrNotFound)
	}
	return meetings[0], nil
}

// ListStartingBetween 查询 [from, to) 内开始且未取消的会议
func (m *MeetingModel) ListStartingBetween(ctx context.Context, from, to time.Time) ([]*Meeting, error) {
	query, args := builder().
		Select(meetingColumns...).
		From(entsql.Table(MeetingsTable.Name)).
		Where(entsql.And(
			entsql.GTE(colStartAt, from.UTC()),
			entsql.LT(colStartAt, to.UTC()),
			entsql.EQ(colIsCancelled, false),
		)).
		OrderBy(colStartAt).
		Query()

	return m.query(ctx, query, args)
}

// Upsert 以 meeting_id 为键插入或更新会议，重复调用结果相同
func (m *MeetingModel) Upsert(ctx context.Context, data *MeetingData) error {
	start, err := json.Marshal(data.Start)
	if err != nil {
		return fmt.Errorf("序列化开始时间失败: %w", err)
	}
	end, err := json.Marshal(data.End)
	if err != nil {
		return fmt.Errorf("序列化结束时间失败: %w", err)
	}
	participants := data.Participants
	if participants == nil {
		participants = []calendar.Attendee{}
	}
	participantsJSON, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("序列化参与者失败: %w", err)
	}
	manager, err := json.Marshal(data.MeetingManager)
	if err != nil {
		return fmt.Errorf("序列化组织者失败: %w", err)
	}

	now := time.Now().UTC()
	query, args := builder().
		Insert(MeetingsTable.Name).
		Columns(
			colCreateTime, colUpdateTime, colMeetingID, colChangeKey, colIsCancelled, colSubject,
			colStartDateTime, colEndDateTime, colStartAt, colLocation, colParticipants, colMeetingManager,
			colPhoneNumber, colCode,
		).
		Values(
			now, now, data.MeetingID, data.ChangeKey, data.IsCancelled, data.Subject,
			string(start), string(end), nullTime(data.StartAt), data.Location, string(participantsJSON), string(manager),
			nullString(data.PhoneNumber), nullString(data.Code),
		).
		OnConflict(
			entsql.ConflictColumns(colMeetingID),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded(colUpdateTime)
				u.SetExcluded(colChangeKey)
				u.SetExcluded(colIsCancelled)
				u.SetExcluded(colSubject)
				u.SetExcluded(colStartDateTime)
				u.SetExcluded(colEndDateTime)
				u.SetExcluded(colStartAt)
				u.SetExcluded(colLocation)
				u.SetExcluded(colParticipants)
				u.SetExcluded(colMeetingManager)
				u.SetExcluded(colPhoneNumber)
				u.SetExcluded(colCode)
				// changeKey 变化后参与者可能已改变，需重新检查声纹注册
				u.Set(colEnrollmentNotifiedAt, entsql.Expr(fmt.Sprintf(
					"CASE WHEN %[1]s.%[2]s = excluded.%[2]s THEN %[1]s.%[3]s ELSE NULL END",
					MeetingsTable.Name, colChangeKey, colEnrollmentNotifiedAt,
				)))
			}),
		).
		Query()

	var res sql.Result
	if err := m.drv.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("写入会议失败: %w", err)
	}
	return nil
}

// MarkEnrollmentNotified 记录已发送声纹注册提醒
func (m *MeetingModel) MarkEnrollmentNotified(ctx context.Context, meetingID string, at time.Time) error {
	return m.setTime(ctx, meetingID, colEnrollmentNotifiedAt, at)
}

// MarkTranscribed 记录会议转写完成
func (m *MeetingModel) MarkTranscribed(ctx context.Context, meetingID string, at time.Time) error {
	return m.setTime(ctx, meetingID, colTranscribedAt, at)
}

func (m *MeetingModel) setTime(ctx context.Context, meetingID, column string, at time.Time) error {
	query, args := builder().
		Update(MeetingsTable.Name).
		Set(column, at.UTC()).
		Set(colUpdateTime, time.Now().UTC()).
		Where(entsql.EQ(colMeetingID, meetingID)).
		Query()

	var res sql.Result
	if err := m.drv.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("更新会议 %s 失败: %w", meetingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("会议 %s: %w", meetingID, ErrNotFound)
	}
	return nil
}

func (m *MeetingModel) query(ctx context.Context, query string, args []any) ([]*Meeting, error) {
	rows := &entsql.Rows{}
	if err := m.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("查询会议失败: %w", err)
	}
	defer rows.Close()

	var meetings []*Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("查询会议失败: %w", err)
	}
	return meetings, nil
}

func scanMeeting(rows *entsql.Rows) (*Meeting, error) {
	var (
		meeting                           Meeting
		start, end, participants, manager []byte
		startAt, notifiedAt, transcribed  sql.NullTime
		phone, code                       sql.NullString
	)
	err := rows.Scan(
		&meeting.ID, &meeting.CreateTime, &meeting.UpdateTime, &meeting.MeetingID, &meeting.ChangeKey,
		&meeting.IsCancelled, &meeting.Subject, &start, &end, &startAt, &meeting.Location,
		&participants, &manager, &phone, &code, &notifiedAt, &transcribed,
	)
	if err != nil {
		return nil, fmt.Errorf("读取会议失败: %w", err)
	}

	if err := json.Unmarshal(start, &meeting.Start); err != nil {
		return nil, fmt.Errorf("解析开始时间失败: %w", err)
	}
	if err := json.Unmarshal(end, &meeting.End); err != nil {
		return nil, fmt.Errorf("解析结束时间失败: %w", err)
	}
	if err := json.Unmarshal(participants, &meeting.Participants); err != nil {
		return nil, fmt.Errorf("解析参与者失败: %w", err)
	}
	if err := json.Unmarshal(manager, &meeting.MeetingManager); err != nil {
		return nil, fmt.Errorf("解析组织者失败: %w", err)
	}

	meeting.StartAt = timePtr(startAt)
	meeting.EnrollmentNotifiedAt = timePtr(notifiedAt)
	meeting.TranscribedAt = timePtr(transcribed)
	meeting.PhoneNumber = stringPtr(phone)
	meeting.Code = stringPtr(code)
	return &meeting, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
