// Package emoji finds emoji in rendered Markdown and writes usage reports.
package emoji

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rivo/uniseg"
)

type block struct {
	name       string
	start, end rune
}

var blocks = []block{
	{"Emoticons", 0x1F600, 0x1F64F},
	{"Transport and Map Symbols", 0x1F680, 0x1F6FF},
	{"Misc Symbols and Pictographs", 0x1F300, 0x1F5FF},
	{"Supplemental Symbols and Pictographs", 0x1F900, 0x1F9FF},
	{"Symbols and Pictographs Extended-A", 0x1FA70, 0x1FAFF},
	{"Miscellaneous Symbols", 0x2600, 0x26FF},
	{"Dingbats", 0x2700, 0x27BF},
	{"Flags", 0x1F1E6, 0x1F1FF},
	{"Alchemical Symbols", 0x1F700, 0x1F77F},
	{"Enclosed Alphanumeric Supplement", 0x1F100, 0x1F1FF},
}

const (
	zwj  = 0x200D
	vs16 = 0xFE0F
)

// Record is one distinct emoji and how often it occurs.
type Record struct {
	Glyph      string   `json:"glyph"`
	Codepoints []string `json:"codepoints"`
	// Slug is the dash-joined lowercase hex codepoints, as used by emoji
	// image sets.
	Slug  string `json:"slug"`
	Block string `json:"block"`
	Count int    `json:"count"`
}

// BlockOf returns the Unicode block name of an emoji rune, or "".
func BlockOf(r rune) string {
	for _, b := range blocks {
		if r >= b.start && r <= b.end {
			return b.name
		}
	}
	return ""
}

// Scan segments text into grapheme clusters and counts the emoji ones.
// Records are sorted by count, descending, then by glyph.
func Scan(text string) []Record {
	index := map[string]*Record{}
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		runes := g.Runes()
		if len(runes) == 0 {
			continue
		}
		name := BlockOf(runes[0])
		if name == "" {
			if !hasJoiner(runes) {
				continue
			}
			name = "Unknown"
		}
		glyph := g.Str()
		if rec, ok := index[glyph]; ok {
			rec.Count++
			continue
		}
		cps := make([]string, len(runes))
		for i, r := range runes {
			cps[i] = fmt.Sprintf("U+%04X", r)
		}
		index[glyph] = &Record{Glyph: glyph, Codepoints: cps, Slug: slug(runes), Block: name, Count: 1}
	}

	out := make([]Record, 0, len(index))
	for _, r := range index {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Glyph < out[j].Glyph
	})
	return out
}

func hasJoiner(runes []rune) bool {
	for _, r := range runes[1:] {
		if r == zwj || r == vs16 {
			return true
		}
	}
	return false
}

func slug(runes []rune) string {
	parts := make([]string, 0, len(runes))
	for _, r := range runes {
		if r == vs16 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%x", r))
	}
	return strings.Join(parts, "-")
}

// BlockCounts sums record counts per Unicode block.
func BlockCounts(records []Record) map[string]int {
	counts := map[string]int{}
	for _, r := range records {
		counts[r.Block] += r.Count
	}
	return counts
}

// Render formats the Markdown report body.
func Render(source string, records []Record, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Emoji usage report\n\n")
	fmt.Fprintf(&b, "* Source: %s\n", source)
	fmt.Fprintf(&b, "* Generated: %s\n\n", now.UTC().Format(time.RFC3339))

	b.WriteString("| Emoji | Codepoints | Block | Count |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, r := range records {
		fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", r.Glyph, strings.Join(r.Codepoints, " "), r.Block, r.Count)
	}

	counts := BlockCounts(records)
	if len(counts) > 0 {
		names := make([]string, 0, len(counts))
		for n := range counts {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool {
			if counts[names[i]] != counts[names[j]] {
				return counts[names[i]] > counts[names[j]]
			}
			return names[i] < names[j]
		})
		b.WriteString("\n## Counts\n")
		for _, n := range names {
			fmt.Fprintf(&b, "* %s: %d\n", n, counts[n])
		}
	}
	return b.String()
}

// ReportName returns the report file name for a PDF.
func ReportName(pdfName string, now time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(pdfName), filepath.Ext(pdfName))
	return fmt.Sprintf("%s_emoji_report_%s.md", stem, now.UTC().Format("20060102150405"))
}

// WriteReport scans text and writes the report for pdfName into dir.
func WriteReport(dir, pdfName, text string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, ReportName(pdfName, now))
	body := Render(filepath.Base(pdfName), Scan(text), now)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write emoji report: %w", err)
	}
	return path, nil
}
