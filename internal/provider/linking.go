package provider

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// closingKeywordPattern matches the grammar
// `(fix|close|resolve)(e|s|d)? (<owner>/<repo>)?#<N>`, case-insensitively.
// It is deliberately loose about the owner/repo charset (GitHub allows
// hyphens, dots, and underscores in both) and about the amount of
// whitespace between the keyword and the reference.
var closingKeywordPattern = regexp.MustCompile(
	`(?i)\b(fix|close|resolve)(?:e[sd]?|d|s)?\s+([A-Za-z0-9._-]+/[A-Za-z0-9._-]+)?#(\d+)\b`,
)

// LinkingReference is the textual assertion tying a PR to an issue.
type LinkingReference struct {
	Keyword    string // the matched keyword, lowercased, e.g. "fixes"
	OwnerRepo  string // "" when the reference is same-repo (#N form)
	IssueNum   int
	MatchStart int
	MatchEnd   int
}

// Ref renders the reference portion alone, e.g. "#42" or "acme/widgets#42".
func (l LinkingReference) Ref() string {
	if l.OwnerRepo == "" {
		return fmt.Sprintf("#%d", l.IssueNum)
	}
	return fmt.Sprintf("%s#%d", l.OwnerRepo, l.IssueNum)
}

// FindClosingReferences returns every closing-keyword match in body.
func FindClosingReferences(body string) []LinkingReference {
	matches := closingKeywordPattern.FindAllStringSubmatchIndex(body, -1)
	var refs []LinkingReference
	for _, m := range matches {
		keyword := body[m[2]:m[3]]
		var ownerRepo string
		if m[4] != -1 {
			ownerRepo = body[m[4]:m[5]]
		}
		numStr := body[m[6]:m[7]]
		num, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		refs = append(refs, LinkingReference{
			Keyword:    strings.ToLower(keyword),
			OwnerRepo:  ownerRepo,
			IssueNum:   num,
			MatchStart: m[0],
			MatchEnd:   m[1],
		})
	}
	return refs
}

// HasValidReference reports whether body contains a closing-keyword
// reference to issueNum in the form required for the given repositories:
// bare "#N" when headOwner == baseOwner, otherwise "baseOwner/baseRepo#N".
func HasValidReference(body string, issueNum int, headOwner, baseOwner, baseRepo string) bool {
	want := ExpectedRef(issueNum, headOwner, baseOwner, baseRepo)
	for _, ref := range FindClosingReferences(body) {
		if ref.IssueNum != issueNum {
			continue
		}
		if ref.Ref() == want {
			return true
		}
	}
	return false
}

// ExpectedRef computes the reference string the closing-keyword grammar
// requires: "#N" when the PR's head and base share an owner, else
// "owner/repo#N" - this is the one platform-shape decision the engine is
// allowed to make without going through the Provider abstraction (spec 4.1).
func ExpectedRef(issueNum int, headOwner, baseOwner, baseRepo string) string {
	if headOwner == baseOwner {
		return fmt.Sprintf("#%d", issueNum)
	}
	return fmt.Sprintf("%s/%s#%d", baseOwner, baseRepo, issueNum)
}

// BuildClosingLine renders the full "Fixes <ref>" line used by C4's PR body
// and C8's corrective append.
func BuildClosingLine(keyword string, issueNum int, headOwner, baseOwner, baseRepo string) string {
	return fmt.Sprintf("%s %s", keyword, ExpectedRef(issueNum, headOwner, baseOwner, baseRepo))
}
