// Package textutil holds the text normalisation helpers shared by the
// extraction engines and the pipeline stages.
package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is the canonical timestamp format produced by CleanDateTime.
const Layout = "2006-01-02 15:04:05"

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`((20\d{2})[/.\-])(\d{1,2})[/.\-](\d{1,2})`),
		regexp.MustCompile(`((20\d{2})年)(\d{1,2})月(\d{1,2})`),
		regexp.MustCompile(`((\d{2})[/.\-])(\d{1,2})[/.\-](\d{1,2})`),
		regexp.MustCompile(`((20\d{2})[/.\-])?(\d{1,2})[/.\-](\d{1,2})`),
		regexp.MustCompile(`((20\d{2})年)?(\d{1,2})月(\d{1,2})`),
	}
	timePattern = regexp.MustCompile(`(\d{1,2}):(\d{1,2})(:(\d{1,2}))?`)
)

// CleanDateTime normalises a free-form timestamp to "YYYY-MM-DD HH:MM:SS".
// Unix seconds and milliseconds are accepted. Missing year or time parts are
// taken from now. Strings with no recognisable date yield "".
func CleanDateTime(s string, now time.Time) string {
	s = strings.TrimSpace(s)
	if isDigits(s) {
		n := len(s)
		ts, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			if n == 13 {
				ts /= 1000
				n -= 3
			}
			if n == 10 {
				return time.Unix(ts, 0).In(now.Location()).Format(Layout)
			}
		}
	}

	var date []string
	for _, p := range datePatterns {
		if date = p.FindStringSubmatch(s); date != nil {
			break
		}
	}
	if date == nil {
		return ""
	}
	year, month, day := date[2], pad2(date[3]), pad2(date[4])
	if year == "" {
		year = now.Format("2006")
	}
	if len(year) == 2 {
		year = "20" + year
	}

	hour, minute, second := now.Format("15"), now.Format("04"), now.Format("05")
	if clock := timePattern.FindStringSubmatch(s); clock != nil {
		hour, minute = clock[1], clock[2]
		if clock[4] != "" {
			second = clock[4]
		}
	}
	return year + "-" + month + "-" + day + " " + hour + ":" + minute + ":" + second
}

// FormatDateTime returns s when it already is a canonical timestamp and the
// formatted now otherwise.
func FormatDateTime(s string, now time.Time) string {
	if _, err := time.ParseInLocation(Layout, s, now.Location()); err == nil {
		return s
	}
	return now.Format(Layout)
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
