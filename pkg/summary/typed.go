package summary

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5/util"
)

// Document types understood by typed-section summaries.
const (
	TypeCover        = "cover"
	TypePreface      = "preface"
	TypeTOC          = "toc"
	TypeIntroduction = "introduction"
	TypeChapter      = "chapter"
	TypeAppendix     = "appendix"
	TypeEpilog       = "epilog"
	TypeGlossary     = "glossary"
	TypeBibliography = "bibliography"
	TypeIndex        = "index"
)

// DefaultSectionOrder is the group order of a typed summary.
var DefaultSectionOrder = []string{
	TypeCover, TypePreface, TypeTOC, TypeIntroduction, TypeChapter,
	TypeAppendix, TypeEpilog, TypeGlossary, TypeBibliography, TypeIndex,
}

var defaultSectionTitles = map[string]string{
	TypeCover:        "Cover",
	TypePreface:      "Preface",
	TypeTOC:          "Contents",
	TypeIntroduction: "Introduction",
	TypeChapter:      "Chapters",
	TypeAppendix:     "Appendices",
	TypeEpilog:       "Epilogue",
	TypeGlossary:     "Glossary",
	TypeBibliography: "Bibliography",
	TypeIndex:        "Index",
}

var sectionAliases = map[string]string{
	"chapters":   TypeChapter,
	"appendices": TypeAppendix,
	"epilogue":   TypeEpilog,
	"intro":      TypeIntroduction,
	"references": TypeBibliography,
}

// defaultWeight orders documents without an explicit order.
const defaultWeight = 100

// SectionConfig drives typed-section summaries.
type SectionConfig struct {
	Order                []string
	Titles               map[string]string
	AutoNumberChapters   bool
	AutoNumberAppendices bool
	ChapterLabel         string
	AppendixLabel        string
}

// DefaultSectionConfig returns the built-in section layout.
func DefaultSectionConfig() *SectionConfig {
	return &SectionConfig{
		Order:                append([]string(nil), DefaultSectionOrder...),
		AutoNumberChapters:   true,
		AutoNumberAppendices: true,
		ChapterLabel:         "Chapter",
		AppendixLabel:        "Appendix",
	}
}

func (c *SectionConfig) order() []string {
	src := c.Order
	if len(src) == 0 {
		src = DefaultSectionOrder
	}
	out := make([]string, 0, len(src))
	seen := map[string]bool{}
	for _, s := range src {
		s = canonicalType(s)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (c *SectionConfig) title(section string) string {
	for _, key := range []string{section, section + "s"} {
		if t := c.Titles[key]; t != "" {
			return t
		}
	}
	if t := defaultSectionTitles[section]; t != "" {
		return t
	}
	return section
}

func canonicalType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if alias, ok := sectionAliases[t]; ok {
		return alias
	}
	return t
}

func knownType(t string) bool {
	_, ok := defaultSectionTitles[t]
	return ok
}

// Document is a Markdown file with its typed-section metadata.
type Document struct {
	Path          string
	Type          string
	Title         string
	Order         int
	ChapterNumber []int
	PartNumber    []int
	AppendixID    string
	ChapterRef    string
}

var (
	numericPrefix = regexp.MustCompile(`^[0-9]+[-_. ]*`)
	inferRules    = []struct {
		docType string
		pattern *regexp.Regexp
	}{
		{TypeCover, regexp.MustCompile(`^(cover|title-?page)`)},
		{TypePreface, regexp.MustCompile(`preface|vorwort|foreword`)},
		{TypeTOC, regexp.MustCompile(`^(toc|contents|inhaltsverzeichnis)$`)},
		{TypeIntroduction, regexp.MustCompile(`intro|einleitung`)},
		{TypeAppendix, appendixStem},
		{TypeEpilog, regexp.MustCompile(`epilog|nachwort`)},
		{TypeGlossary, regexp.MustCompile(`glossar`)},
		{TypeBibliography, regexp.MustCompile(`bibliography|literatur|references`)},
		{TypeIndex, regexp.MustCompile(`^index`)},
	}
)

// InferType guesses a document type from its relative path.
func InferType(rel string) string {
	name := strings.ToLower(path.Base(rel))
	dir := path.Dir(rel)
	if isIndexName(name) {
		if dir == "." {
			return TypeCover
		}
		return TypeChapter
	}
	parent := strings.ToLower(path.Base(dir))
	if parent == "appendices" || parent == "anhang" {
		return TypeAppendix
	}
	stem := strings.TrimSuffix(name, path.Ext(name))
	stem = numericPrefix.ReplaceAllString(stem, "")
	for _, r := range inferRules {
		if r.pattern.MatchString(stem) {
			return r.docType
		}
	}
	return TypeChapter
}

func (b *builder) collectTyped() ([]Document, []string, error) {
	var docs []Document
	var issues []string
	err := util.Walk(b.fs, ".", func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, `\`, "/")), "./")
		if rel == "." {
			return nil
		}
		if strings.HasPrefix(fi.Name(), ".") {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if fi.IsDir() {
			if b.ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(fi.Name()) || b.isSummaryName(fi.Name()) || b.ignored(rel, false) {
			return nil
		}
		data, err := util.ReadFile(b.fs, rel)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		doc, issue := parseDocument(rel, string(data))
		if issue != "" {
			issues = append(issues, issue)
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk content: %w", err)
	}
	return docs, issues, nil
}

func parseDocument(rel, text string) (Document, string) {
	fm, body := splitFrontMatter(text)
	doc := Document{Path: rel, Order: defaultWeight}
	var issue string

	if t := canonicalType(fmString(fm["doc_type"])); t != "" {
		if knownType(t) {
			doc.Type = t
		} else {
			issue = fmt.Sprintf("%s: unknown doc_type %q", rel, t)
		}
	}
	if doc.Type == "" {
		doc.Type = InferType(rel)
	}

	doc.Title = fmString(fm["title"])
	if doc.Title == "" {
		doc.Title = firstHeading(body)
	}
	if doc.Title == "" {
		doc.Title = stemTitle(strings.TrimSuffix(path.Base(rel), path.Ext(rel)))
	}
	if o, ok := fmInt(fm["order"]); ok {
		doc.Order = o
	}
	doc.ChapterNumber = numberParts(fm["chapter_number"])
	doc.PartNumber = numberParts(fm["part_number"])
	doc.AppendixID = fmString(fm["appendix_id"])
	doc.ChapterRef = fmString(fm["chapter_ref"])
	return doc, issue
}

func fmString(v interface{}) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func fmInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

// numberParts parses 2, "2.1" or "2-1" into [2 1].
func numberParts(v interface{}) []int {
	switch t := v.(type) {
	case int:
		return []int{t}
	case float64:
		return numberParts(strconv.FormatFloat(t, 'f', -1, 64))
	case string:
		var parts []int
		for _, chunk := range strings.Split(strings.ReplaceAll(strings.TrimSpace(t), "-", "."), ".") {
			if chunk == "" {
				continue
			}
			n, err := strconv.Atoi(chunk)
			if err != nil {
				return nil
			}
			parts = append(parts, n)
		}
		return parts
	}
	return nil
}

func joinNumber(parts []int) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ".")
}

func lessInts(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func renderTyped(docs []Document, cfg *SectionConfig) (string, []string) {
	var issues []string
	chapterLabel := cfg.ChapterLabel
	if chapterLabel == "" {
		chapterLabel = "Chapter"
	}
	appendixLabel := cfg.AppendixLabel
	if appendixLabel == "" {
		appendixLabel = "Appendix"
	}

	byType := map[string][]Document{}
	for _, d := range docs {
		byType[d.Type] = append(byType[d.Type], d)
	}
	for _, group := range byType {
		sortDocs(group)
	}

	chapters := byType[TypeChapter]
	sort.SliceStable(chapters, func(i, j int) bool {
		a, b := chapters[i], chapters[j]
		if !equalInts(a.PartNumber, b.PartNumber) {
			return lessInts(a.PartNumber, b.PartNumber)
		}
		switch {
		case a.ChapterNumber != nil && b.ChapterNumber != nil:
			if !equalInts(a.ChapterNumber, b.ChapterNumber) {
				return lessInts(a.ChapterNumber, b.ChapterNumber)
			}
		case a.ChapterNumber != nil:
			return true
		case b.ChapterNumber != nil:
			return false
		}
		return false
	})

	// number chapters and attach chapter-scoped appendices
	numbers := make([]string, len(chapters))
	byNumber := map[string]int{}
	next := 1
	for i, c := range chapters {
		if c.ChapterNumber != nil {
			numbers[i] = joinNumber(c.ChapterNumber)
			if c.ChapterNumber[0] >= next {
				next = c.ChapterNumber[0] + 1
			}
		} else {
			numbers[i] = strconv.Itoa(next)
			next++
		}
		byNumber[numbers[i]] = i
	}
	nested := make([][]Document, len(chapters))
	var standalone []Document
	for _, a := range byType[TypeAppendix] {
		if a.ChapterRef == "" {
			standalone = append(standalone, a)
			continue
		}
		if i, ok := byNumber[a.ChapterRef]; ok {
			nested[i] = append(nested[i], a)
			continue
		}
		issues = append(issues, fmt.Sprintf("%s: chapter_ref %q matches no chapter", a.Path, a.ChapterRef))
		standalone = append(standalone, a)
	}

	lines := []string{"# Summary", ""}
	for _, section := range cfg.order() {
		var items []string
		switch section {
		case TypeChapter:
			lastPart := ""
			for i, c := range chapters {
				indent := ""
				if c.PartNumber != nil {
					indent = "  "
					if part := joinNumber(c.PartNumber); part != lastPart {
						items = append(items, "* Part "+part)
						lastPart = part
					}
				}
				title := c.Title
				if cfg.AutoNumberChapters {
					title = fmt.Sprintf("%s %s – %s", chapterLabel, numbers[i], c.Title)
				}
				items = append(items, fmt.Sprintf("%s* [%s](%s)", indent, title, c.Path))
				for j, a := range nested[i] {
					id := a.AppendixID
					if id == "" {
						id = letter(j)
					}
					items = append(items, fmt.Sprintf("%s  * [%s %s.%s – %s](%s)", indent, appendixLabel, numbers[i], id, a.Title, a.Path))
				}
			}
		case TypeAppendix:
			for j, a := range standalone {
				title := a.Title
				if cfg.AutoNumberAppendices && !appendixHeading.MatchString(title) {
					id := a.AppendixID
					if id == "" {
						id = letter(j)
					}
					title = fmt.Sprintf("%s %s – %s", appendixLabel, id, a.Title)
				}
				items = append(items, fmt.Sprintf("* [%s](%s)", title, a.Path))
			}
		default:
			for _, d := range byType[section] {
				items = append(items, fmt.Sprintf("* [%s](%s)", d.Title, d.Path))
			}
		}
		if len(items) == 0 {
			continue
		}
		lines = append(lines, "## "+cfg.title(section), "")
		lines = append(lines, items...)
		lines = append(lines, "")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n ") + "\n", issues
}

func sortDocs(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.AppendixID != b.AppendixID && a.Type == TypeAppendix {
			return a.AppendixID < b.AppendixID
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return NaturalLess(a.Path, b.Path)
	})
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// letter returns A, B, ..., Z, AA, AB for i = 0, 1, ...
func letter(i int) string {
	s := ""
	for i >= 0 {
		s = string(rune('A'+i%26)) + s
		i = i/26 - 1
	}
	return s
}
