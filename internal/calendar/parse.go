package calendar

import "regexp"

var (
	rePhoneNumber = regexp.MustCompile(`(?i)\[meeting phone number:\s*([0-9]*?)\]`)
	reCode        = regexp.MustCompile(`(?i)\[meeting code:\s*([0-9]*?)\]`)
)

// ParsePhoneNumber 从正文中提取 "[meeting phone number: <digits>]"
func ParsePhoneNumber(content string) (string, bool) {
	return firstGroup(rePhoneNumber, content)
}

// ParseCode 从正文中提取 "[meeting code: <digits>]"
func ParseCode(content string) (string, bool) {
	return firstGroup(reCode, content)
}

func firstGroup(re *regexp.Regexp, content string) (string, bool) {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}
