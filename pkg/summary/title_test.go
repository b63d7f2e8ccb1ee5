package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitle(t *testing.T) {
	cases := []struct {
		name, text, stem, want string
	}{
		{"heading", "# Intro\n\ntext\n", "x", "Intro"},
		{"after front matter", "---\ntitle: ignored\n---\n## Setup\n", "x", "Setup"},
		{"backtick fence", "```sh\n# comment\n```\n# Real\n", "x", "Real"},
		{"tilde fence", "~~~\n# comment\n~~~\n# Real\n", "x", "Real"},
		{"unclosed fence", "```\n# comment\n", "my-notes", "my notes"},
		{"no heading", "plain\n", "setup_guide", "setup guide"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Title(tc.text, tc.stem))
		})
	}
}
