package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCode(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantOK  bool
	}{
		{"正常提取", "Notes [meeting code: 8842]", "8842", true},
		{"忽略大小写", "[Meeting Code:1234] agenda", "1234", true},
		{"没有括号格式", "meeting code: 8842", "", false},
		{"空正文", "", "", false},
		{"非数字", "[meeting code: abc]", "", false},
		{"空号码", "[meeting code: ]", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCode(tt.content)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePhoneNumber(t *testing.T) {
	body := "<p>Dial in</p>[MEETING PHONE NUMBER: 14155550100]<br>[meeting code: 42]"

	phone, ok := ParsePhoneNumber(body)
	assert.True(t, ok)
	assert.Equal(t, "14155550100", phone)

	code, ok := ParseCode(body)
	assert.True(t, ok)
	assert.Equal(t, "42", code)

	_, ok = ParsePhoneNumber("no number here")
	assert.False(t, ok)
}

func TestDateTimeTimeZone_Time(t *testing.T) {
	got, err := DateTimeTimeZone{DateTime: "2026-10-20T09:30:00.0000000", TimeZone: "UTC"}.Time()
	assert.NoError(t, err)
	assert.Equal(t, "2026-10-20T09:30:00Z", got.Format("2006-01-02T15:04:05Z07:00"))

	got, err = DateTimeTimeZone{DateTime: "2026-10-20T09:30:00"}.Time()
	assert.NoError(t, err)
	assert.Equal(t, 9, got.Hour())

	_, err = DateTimeTimeZone{DateTime: "2026-10-20T09:30:00", TimeZone: "Mars/Olympus"}.Time()
	assert.Error(t, err)

	_, err = DateTimeTimeZone{DateTime: "yesterday", TimeZone: "UTC"}.Time()
	assert.Error(t, err)
}
