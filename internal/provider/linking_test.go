package provider

import "testing"

func TestFindClosingReferences(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []LinkingReference
	}{
		{
			name: "same repo fixes",
			body: "This PR Fixes #42 for real.",
			want: []LinkingReference{{Keyword: "fixes", IssueNum: 42}},
		},
		{
			name: "cross repo resolves",
			body: "Resolves acme/widgets#7",
			want: []LinkingReference{{Keyword: "resolves", OwnerRepo: "acme/widgets", IssueNum: 7}},
		},
		{
			name: "closed variant",
			body: "closed #3",
			want: []LinkingReference{{Keyword: "closed", IssueNum: 3}},
		},
		{
			name: "no reference",
			body: "just a regular PR description",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindClosingReferences(tt.body)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d refs, want %d (%+v)", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].Keyword != tt.want[i].Keyword ||
					got[i].OwnerRepo != tt.want[i].OwnerRepo ||
					got[i].IssueNum != tt.want[i].IssueNum {
					t.Errorf("ref[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHasValidReference(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		issueNum  int
		headOwner string
		baseOwner string
		baseRepo  string
		want      bool
	}{
		{"same repo valid", "Fixes #42", 42, "acme", "acme", "widgets", true},
		{"same repo wrong number", "Fixes #41", 42, "acme", "acme", "widgets", false},
		{"fork valid", "Fixes acme/widgets#42", 42, "bob", "acme", "widgets", true},
		{"fork missing owner form", "Fixes #42", 42, "bob", "acme", "widgets", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasValidReference(tt.body, tt.issueNum, tt.headOwner, tt.baseOwner, tt.baseRepo)
			if got != tt.want {
				t.Errorf("HasValidReference() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpectedRef(t *testing.T) {
	if got := ExpectedRef(42, "acme", "acme", "widgets"); got != "#42" {
		t.Errorf("same owner: got %q, want #42", got)
	}
	if got := ExpectedRef(42, "bob", "acme", "widgets"); got != "acme/widgets#42" {
		t.Errorf("fork: got %q, want acme/widgets#42", got)
	}
}
