// Package platform identifies which coding-practice site a problem URL
// belongs to, and declares the page-reader capability set observation
// clients implement per site.
package platform

import (
	"net/url"
	"strings"
)

// Platform is a supported practice site identifier.
type Platform string

const (
	LeetCode   Platform = "leetcode"
	Codeforces Platform = "codeforces"
	HackerRank Platform = "hackerrank"
	AtCoder    Platform = "atcoder"
	CodeChef   Platform = "codechef"
	Unknown    Platform = "unknown"
)

var hostPlatforms = map[string]Platform{
	"leetcode.com":   LeetCode,
	"leetcode.cn":    LeetCode,
	"codeforces.com": Codeforces,
	"hackerrank.com": HackerRank,
	"atcoder.jp":     AtCoder,
	"codechef.com":   CodeChef,
}

// FromURL identifies the platform for a problem page URL. Subdomains map to
// their parent site; anything unrecognized is Unknown.
func FromURL(raw string) Platform {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Unknown
	}

	host := strings.ToLower(u.Hostname())
	for suffix, p := range hostPlatforms {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return p
		}
	}
	return Unknown
}

// Buttons reports which interaction controls a page reader located.
type Buttons struct {
	Run    bool
	Submit bool
}

// PageReader is the per-site capability set an observation client
// implements against the problem page DOM. The daemon never touches the
// DOM itself; readers feed their findings in as signals.
type PageReader interface {
	// DetectTitle returns the problem title, false when the page has none.
	DetectTitle() (string, bool)
	// DetectButtons reports which run/submit controls are present.
	DetectButtons() Buttons
	// DetectVerdict returns the judged verdict text, false before judging.
	DetectVerdict() (string, bool)
}
