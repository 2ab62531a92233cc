package github

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/andymwolf/solveengine/internal/provider"
)

// urlPattern accepts <owner>, <owner>/<repo>, and <owner>/<repo>/<kind>/<id>
// on a github.com (or github-enterprise-looking) host. Leading whitespace
// or non-ASCII punctuation is rejected by requiring the path to start
// immediately after the host.
var urlPattern = regexp.MustCompile(`^https?://([^/\s]+)/([A-Za-z0-9._-]+)(?:/([A-Za-z0-9._-]+)(?:/(issues|pull|pullrequests)/([A-Za-z0-9_-]+))?)?/?$`)

// ParseURL parses raw per spec.md 4.1's URL grammar: normalises http to
// https, strips trailing slashes, coerces numeric ids, preserves slug ids,
// and maps "issues"/"pull"/"pullrequests" to provider.KindIssue/KindPull.
func (c *Client) ParseURL(raw string) (provider.TargetUrl, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed != raw {
		return provider.TargetUrl{}, fmt.Errorf("invalid url: leading/trailing whitespace")
	}
	if len(trimmed) > 0 && trimmed[0] > 127 {
		return provider.TargetUrl{}, fmt.Errorf("invalid url: non-ASCII leading punctuation")
	}

	normalized := trimmed
	if strings.HasPrefix(normalized, "http://") {
		normalized = "https://" + strings.TrimPrefix(normalized, "http://")
	}
	normalized = strings.TrimRight(normalized, "/")

	m := urlPattern.FindStringSubmatch(normalized + "/")
	if m == nil {
		return provider.TargetUrl{}, fmt.Errorf("url does not match github grammar: %s", raw)
	}

	host := m[1]
	owner := m[2]
	repo := m[3]
	kindWord := m[4]
	idStr := m[5]

	target := provider.TargetUrl{
		Provider:   "github",
		Owner:      owner,
		Repo:       repo,
		Normalized: normalized,
	}

	switch {
	case kindWord != "":
		switch kindWord {
		case "issues":
			target.Kind = provider.KindIssue
		case "pull", "pullrequests":
			target.Kind = provider.KindPull
		}
		if n, err := strconv.Atoi(idStr); err == nil {
			target.Number = n
		} else {
			target.Slug = idStr
		}
	case repo != "":
		target.Kind = provider.KindRepo
	default:
		target.Kind = provider.KindOwner
	}

	_ = host
	return target, nil
}
