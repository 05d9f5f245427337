package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/wavesbot/meeting-scribe/internal/calendar"
	"github.com/wavesbot/meeting-scribe/internal/config"
	"github.com/wavesbot/meeting-scribe/internal/logger"
	"github.com/wavesbot/meeting-scribe/internal/model"
)

const (
	EnrollmentSubject    = "Please Enroll Your Voice"
	TranscriptionSubject = "Meeting Transcription"
)

// mailSender 发送邮件（便于测试注入 mock）
type mailSender interface {
	SendMail(ctx context.Context, msg calendar.Message) error
}

type Notifier struct {
	mailer mailSender
	config *config.Enrollment
}

func NewNotifier(mailer *calendar.Client, cfg *config.Enrollment) *Notifier {
	return &Notifier{
		mailer: mailer,
		config: cfg,
	}
}

func recipients(emails []string) []calendar.Recipient {
	out := make([]calendar.Recipient, 0, len(emails))
	for _, email := range emails {
		out = append(out, calendar.Recipient{EmailAddress: calendar.EmailAddress{Address: email}})
	}
	return out
}

// SendEnrollmentNotification 提醒未注册声纹的参与者在会议前完成注册
func (n *Notifier) SendEnrollmentNotification(ctx context.Context, emails []string) error {
	if len(emails) == 0 {
		return nil
	}

	enrollURL := strings.TrimSuffix(n.config.ServerAddress, "/") + "/enroll"
	msg := calendar.Message{
		Subject: EnrollmentSubject,
		Body: calendar.ItemBody{
			ContentType: "text",
			Content: "You haven't enrolled your voice. To let the transcription agent work properly, " +
				"please use the following link to enroll your voice before the meeting.\n\n" + enrollURL,
		},
		ToRecipients: recipients(emails),
	}

	if err := n.mailer.SendMail(ctx, msg); err != nil {
		logger.Errorf("[Notify] 发送声纹注册提醒失败: %v", err)
		return err
	}
	logger.Infof("[Notify] 声纹注册提醒已发送给: %s", strings.Join(emails, ", "))
	return nil
}

// SendTranscription 将转写文件作为附件发送给会议组织者
func (n *Notifier) SendTranscription(ctx context.Context, meeting *model.Meeting, transcriptPath, summary string) error {
	managerEmail := meeting.MeetingManager.EmailAddress.Address
	if managerEmail == "" {
		return fmt.Errorf("会议 %s 没有组织者邮箱", meeting.MeetingID)
	}

	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return fmt.Errorf("读取转写文件失败: %w", err)
	}

	content := fmt.Sprintf("The attachment is the meeting transcription for the meeting start at %s", meeting.Start.DateTime)
	if summary != "" {
		content += "\n\nSummary:\n" + summary
	}

	msg := calendar.Message{
		Subject:        TranscriptionSubject,
		Body:           calendar.ItemBody{ContentType: "text", Content: content},
		ToRecipients:   recipients([]string{managerEmail}),
		HasAttachments: true,
		Attachments: []calendar.FileAttachment{
			calendar.NewFileAttachment(meeting.Start.DateTime+".txt", base64.StdEncoding.EncodeToString(data)),
		},
	}

	if err := n.mailer.SendMail(ctx, msg); err != nil {
		logger.Errorf("[Notify] 发送会议转写失败: %v", err)
		return err
	}
	logger.Infof("[Notify] 会议 %s 的转写已发送给组织者 %s", meeting.MeetingID, managerEmail)
	return nil
}
