package retry

import "strings"

const exhaustedPrefix = "Network error after multiple retries"

var guidance = map[Category]struct {
	headline string
	bullets  []string
	advice   string
}{
	CategoryDNS: {
		headline: "DNS resolution failed - this usually indicates:",
		bullets:  []string{"Internet connection issues", "DNS server problems", "Firewall or proxy blocking access"},
		advice:   "Please check your internet connection and try again.",
	},
	CategoryConnection: {
		headline: "Connection problems detected:",
		bullets:  []string{"Server may be temporarily unavailable", "Network congestion or timeout issues", "Firewall blocking connections"},
		advice:   "Please try again in a few minutes.",
	},
	CategoryNetworkUnreachable: {
		headline: "Network unreachable:",
		bullets:  []string{"Internet connection is down", "Network configuration issues"},
		advice:   "Please check your internet connection.",
	},
	CategoryPartialDownload: {
		headline: "Partial download detected:",
		bullets:  []string{"Download was interrupted during transfer", "Connection may have been unstable", "File transfer was incomplete"},
		advice:   "Please try again - the download will resume.",
	},
	CategoryDownloadInterruption: {
		headline: "Download interruption detected:",
		bullets:  []string{"Connection was broken during download", "Network instability or interference", "Server connection was reset"},
		advice:   "Please try again in a moment.",
	},
	CategoryServerError: {
		headline: "Server errors detected:",
		bullets:  []string{"The video service may be experiencing issues", "Rate limiting or access restrictions"},
		advice:   "Please try again later.",
	},
}

// Explain renders the user-facing message for a job that exhausted its
// retries in category.
func Explain(category Category, err error) string {
	g, ok := guidance[category]
	if !ok {
		if err == nil {
			return exhaustedPrefix
		}
		return exhaustedPrefix + ": " + strings.TrimSpace(err.Error())
	}
	var b strings.Builder
	b.WriteString(exhaustedPrefix)
	b.WriteString(". ")
	b.WriteString(g.headline)
	for _, bullet := range g.bullets {
		b.WriteString("\n• ")
		b.WriteString(bullet)
	}
	b.WriteByte('\n')
	b.WriteString(g.advice)
	return b.String()
}
