package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// DescribeClient turns a User-Agent header into a short "Browser version on
// OS" label for the audit trail, so raw headers are not stored.
func DescribeClient(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return "unknown"
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		if name == "" {
			return "bot"
		}
		return "bot: " + name
	}

	name, version := ua.Browser()
	label := strings.TrimSpace(name + " " + version)
	if label == "" {
		label = "unknown"
	}
	if platform := ua.OS(); platform != "" {
		label += " on " + platform
	}
	if ua.Mobile() {
		label += " (mobile)"
	}
	return label
}
