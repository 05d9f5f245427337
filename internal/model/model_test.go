package model

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/wavesbot/meeting-scribe/internal/calendar"

	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *entsql.Driver {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)
	drv, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	return drv
}

func strPtr(s string) *string { return &s }

func sampleMeeting(changeKey string) *MeetingData {
	startAt := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	return &MeetingData{
		MeetingID: "AAMkAGI2",
		ChangeKey: changeKey,
		Subject:   "Weekly sync",
		Start:     calendar.DateTimeTimeZone{DateTime: "2026-10-20T09:00:00.0000000", TimeZone: "UTC"},
		End:       calendar.DateTimeTimeZone{DateTime: "2026-10-20T10:00:00.0000000", TimeZone: "UTC"},
		StartAt:   &startAt,
		Location:  "Phone",
		Participants: []calendar.Attendee{
			{Type: "required", EmailAddress: calendar.EmailAddress{Address: "a@example.com"}},
			{Type: "required", EmailAddress: calendar.EmailAddress{Address: "b@example.com"}},
		},
		MeetingManager: calendar.Recipient{EmailAddress: calendar.EmailAddress{Name: "Boss", Address: "boss@example.com"}},
		PhoneNumber:    strPtr("14155550100"),
		Code:           strPtr("8842"),
	}
}

func TestMeetingModel_UpsertAndFind(t *testing.T) {
	ctx := context.Background()
	m := NewMeetingModel(openTestDB(t))

	require.NoError(t, m.Upsert(ctx, sampleMeeting("k1")))

	got, err := m.FindByMeetingID(ctx, "AAMkAGI2")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ChangeKey)
	assert.Equal(t, "Weekly sync", got.Subject)
	assert.Equal(t, "2026-10-20T09:00:00.0000000", got.Start.DateTime)
	assert.Len(t, got.Participants, 2)
	assert.Equal(t, "boss@example.com", got.MeetingManager.EmailAddress.Address)
	require.NotNil(t, got.Code)
	assert.Equal(t, "8842", *got.Code)
	require.NotNil(t, got.StartAt)
	assert.True(t, got.StartAt.Equal(time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)))
	assert.Nil(t, got.TranscribedAt)

	// 重复写入同一 meeting_id 只更新，不新增
	data := sampleMeeting("k2")
	data.Code = nil
	require.NoError(t, m.Upsert(ctx, data))
	require.NoError(t, m.Upsert(ctx, data))

	got2, err := m.FindByMeetingID(ctx, "AAMkAGI2")
	require.NoError(t, err)
	assert.Equal(t, got.ID, got2.ID)
	assert.Equal(t, "k2", got2.ChangeKey)
	assert.Nil(t, got2.Code)
}

func TestMeetingModel_FindNotFound(t *testing.T) {
	m := NewMeetingModel(openTestDB(t))
	_, err := m.FindByMeetingID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestMeetingModel_ListStartingBetween(t *testing.T) {
	ctx := context.Background()
	m := NewMeetingModel(openTestDB(t))

	base := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	for i, hour := range []int{1, 5, 30} {
		data := sampleMeeting("k")
		data.MeetingID = fmt.Sprintf("m%d", i)
		at := base.Add(time.Duration(hour) * time.Hour)
		data.StartAt = &at
		require.NoError(t, m.Upsert(ctx, data))
	}
	cancelled := sampleMeeting("k")
	cancelled.MeetingID = "cancelled"
	cancelled.IsCancelled = true
	at := base.Add(2 * time.Hour)
	cancelled.StartAt = &at
	require.NoError(t, m.Upsert(ctx, cancelled))

	got, err := m.ListStartingBetween(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m0", got[0].MeetingID)
	assert.Equal(t, "m1", got[1].MeetingID)
}

func TestMeetingModel_MarkTimes(t *testing.T) {
	ctx := context.Background()
	m := NewMeetingModel(openTestDB(t))
	require.NoError(t, m.Upsert(ctx, sampleMeeting("k1")))

	now := time.Date(2026, 10, 20, 11, 0, 0, 0, time.UTC)
	require.NoError(t, m.MarkTranscribed(ctx, "AAMkAGI2", now))
	require.NoError(t, m.MarkEnrollmentNotified(ctx, "AAMkAGI2", now))

	got, err := m.FindByMeetingID(ctx, "AAMkAGI2")
	require.NoError(t, err)
	require.NotNil(t, got.TranscribedAt)
	assert.True(t, got.TranscribedAt.Equal(now))
	require.NotNil(t, got.EnrollmentNotifiedAt)

	err = m.MarkTranscribed(ctx, "missing", now)
	assert.True(t, IsNotFound(err))
}

func TestMeetingModel_UpsertResetsEnrollmentOnChangeKey(t *testing.T) {
	ctx := context.Background()
	m := NewMeetingModel(openTestDB(t))
	require.NoError(t, m.Upsert(ctx, sampleMeeting("k1")))

	now := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	require.NoError(t, m.MarkEnrollmentNotified(ctx, "AAMkAGI2", now))
	require.NoError(t, m.MarkTranscribed(ctx, "AAMkAGI2", now))

	// changeKey 不变时保留提醒状态
	require.NoError(t, m.Upsert(ctx, sampleMeeting("k1")))
	got, err := m.FindByMeetingID(ctx, "AAMkAGI2")
	require.NoError(t, err)
	require.NotNil(t, got.EnrollmentNotifiedAt)
	assert.True(t, got.EnrollmentNotifiedAt.Equal(now))

	// changeKey 变化后清除提醒状态，转写状态不受影响
	updated := sampleMeeting("k2")
	updated.Participants = append(updated.Participants,
		calendar.Attendee{Type: "required", EmailAddress: calendar.EmailAddress{Address: "c@example.com"}})
	require.NoError(t, m.Upsert(ctx, updated))
	got, err = m.FindByMeetingID(ctx, "AAMkAGI2")
	require.NoError(t, err)
	assert.Equal(t, "k2", got.ChangeKey)
	assert.Nil(t, got.EnrollmentNotifiedAt)
	require.NotNil(t, got.TranscribedAt)
	assert.Len(t, got.Participants, 3)
}

func TestPersonModel(t *testing.T) {
	ctx := context.Background()
	m := NewPersonModel(openTestDB(t))

	_, err := m.FindByEmail(ctx, "a@example.com")
	assert.True(t, IsNotFound(err))

	require.NoError(t, m.SetRecognitionGUID(ctx, "A@Example.com", "Alice", "guid-1"))
	p, err := m.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, p.Enrolled())
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, "guid-1", *p.RecognitionGUID)

	require.NoError(t, m.SetRecognitionGUID(ctx, "a@example.com", "", "guid-2"))
	p, err = m.FindByEmail(ctx, "A@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, "guid-2", *p.RecognitionGUID)

	var nobody *Person
	assert.False(t, nobody.Enrolled())
}
