package retry

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mediafetch/internal/services"
)

// Category buckets a transfer failure for backoff and user messaging.
type Category string

const (
	CategoryDNS                  Category = "dns_resolution"
	CategoryPartialDownload      Category = "partial_download"
	CategoryConnection           Category = "connection_issue"
	CategoryDownloadInterruption Category = "download_interruption"
	CategoryNetworkUnreachable   Category = "network_unreachable"
	CategoryServerError          Category = "server_error"
	CategoryUnknown              Category = "unknown"
)

// Categories lists every category in classifier order.
var Categories = []Category{
	CategoryDNS,
	CategoryPartialDownload,
	CategoryConnection,
	CategoryDownloadInterruption,
	CategoryNetworkUnreachable,
	CategoryServerError,
	CategoryUnknown,
}

// ParseCategory returns the category named by value, or CategoryUnknown.
func ParseCategory(value string) Category {
	for _, c := range Categories {
		if string(c) == value {
			return c
		}
	}
	return CategoryUnknown
}

// Rule matches normalized error text. Every fragment in All must be present,
// and at least one fragment in Any when Any is non-empty.
type Rule struct {
	Category Category
	All      []string
	Any      []string
}

func (r Rule) matches(text string) bool {
	if len(r.All) == 0 && len(r.Any) == 0 {
		return false
	}
	for _, fragment := range r.All {
		if !strings.Contains(text, fragment) {
			return false
		}
	}
	if len(r.Any) == 0 {
		return true
	}
	for _, fragment := range r.Any {
		if strings.Contains(text, fragment) {
			return true
		}
	}
	return false
}

// DefaultRules returns the ordered rule table. The first matching rule wins.
func DefaultRules() []Rule {
	return []Rule{
		{Category: CategoryDNS, Any: []string{
			"failed to resolve",
			"getaddrinfo failed",
			"name or service not known",
			"no such host",
			"temporary failure in name resolution",
		}},
		{Category: CategoryPartialDownload, All: []string{"bytes read", "more expected"}},
		{Category: CategoryPartialDownload, Any: []string{"content too short"}},
		{Category: CategoryConnection, All: []string{"connection"}, Any: []string{"timeout", "timed out", "refused"}},
		{Category: CategoryConnection, Any: []string{"i/o timeout", "tls handshake timeout"}},
		{Category: CategoryDownloadInterruption, Any: []string{
			"connection broken",
			"connection reset",
			"incomplete read",
			"download interrupted",
			"broken pipe",
		}},
		{Category: CategoryNetworkUnreachable, Any: []string{"network is unreachable"}},
		{Category: CategoryServerError, Any: []string{"http error 5"}},
	}
}

// Classifier maps failure text onto a Category using an ordered rule table.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier over rules. With no rules the default
// table is used.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Classifier{rules: cp}
}

var defaultClassifier = NewClassifier()

// Classify categorizes err with the default rule table.
func Classify(err error) Category {
	return defaultClassifier.Classify(err)
}

// ClassifyText categorizes raw failure text with the default rule table.
func ClassifyText(text string) Category {
	return defaultClassifier.ClassifyText(text)
}

// Classify categorizes err. Errors that already carry a category keep it.
func (c *Classifier) Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	if category, ok := services.NetworkCategory(err); ok && category != "" {
		return ParseCategory(category)
	}
	return c.ClassifyText(err.Error())
}

// ClassifyText categorizes raw failure text.
func (c *Classifier) ClassifyText(text string) Category {
	normalized := normalize(text)
	if normalized == "" {
		return CategoryUnknown
	}
	for _, rule := range c.rules {
		if rule.matches(normalized) {
			return rule.Category
		}
	}
	return CategoryUnknown
}

func normalize(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	// Casers carry state and are not safe to share across goroutines.
	return cases.Lower(language.Und).String(trimmed)
}
