package calendar

import (
	"fmt"
	"time"
)

// EmailAddress Graph emailAddress 资源
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Recipient 组织者或收件人
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// Attendee 会议参与者
type Attendee struct {
	Type         string       `json:"type,omitempty"`
	EmailAddress EmailAddress `json:"emailAddress"`
}

// DateTimeTimeZone Graph 时间，DateTime 不带时区偏移
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

const graphDateTimeLayout = "2006-01-02T15:04:05.9999999"

// Time 解析为带时区的时间，TimeZone 为空时按 UTC 处理
func (d DateTimeTimeZone) Time() (time.Time, error) {
	loc := time.UTC
	if d.TimeZone != "" && d.TimeZone != "UTC" {
		l, err := time.LoadLocation(d.TimeZone)
		if err != nil {
			return time.Time{}, fmt.Errorf("未知时区 %q: %w", d.TimeZone, err)
		}
		loc = l
	}
	t, err := time.ParseInLocation(graphDateTimeLayout, d.DateTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析时间 %q 失败: %w", d.DateTime, err)
	}
	return t, nil
}

// Location 会议地点
type Location struct {
	DisplayName string `json:"displayName"`
}

// ItemBody 邮件或日程正文
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Event 日程事件
type Event struct {
	ID          string           `json:"id"`
	ChangeKey   string           `json:"changeKey"`
	IsCancelled bool             `json:"isCancelled"`
	Subject     string           `json:"subject"`
	Start       DateTimeTimeZone `json:"start"`
	End         DateTimeTimeZone `json:"end"`
	Location    Location         `json:"location"`
	Attendees   []Attendee       `json:"attendees"`
	Organizer   Recipient        `json:"organizer"`
	Body        ItemBody         `json:"body"`
}

// FileAttachment 邮件附件，ContentBytes 为 base64 编码
type FileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentBytes string `json:"contentBytes"`
}

// Message 待发送的邮件
type Message struct {
	Subject        string           `json:"subject"`
	Body           ItemBody         `json:"body"`
	ToRecipients   []Recipient      `json:"toRecipients"`
	HasAttachments bool             `json:"hasAttachments,omitempty"`
	Attachments    []FileAttachment `json:"attachments,omitempty"`
}

// NewFileAttachment 创建文件附件
func NewFileAttachment(name, base64Content string) FileAttachment {
	return FileAttachment{
		ODataType:    "#microsoft.graph.fileAttachment",
		Name:         name,
		ContentBytes: base64Content,
	}
}
