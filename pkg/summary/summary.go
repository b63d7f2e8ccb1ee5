// Package summary generates GitBook-style SUMMARY.md tables of contents
// from a content tree and extracts reading order from existing ones.
package summary

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/fulmenhq/folio/pkg/logger"
)

// Summary modes.
const (
	ModeGitbook  = "gitbook"
	ModeUnsorted = "unsorted"
	ModeAlpha    = "alpha"
	ModeTitle    = "title"
	ModeManifest = "manifest"
	ModeManual   = "manual"
)

// DefaultManualMarker protects a hand-written summary from regeneration.
const DefaultManualMarker = "<!-- SUMMARY: MANUAL -->"

// DefaultName is the summary written when none exists yet.
const DefaultName = "SUMMARY.md"

// markerLines is how far into an existing summary the marker is searched.
const markerLines = 10

var validModes = map[string]bool{
	ModeGitbook: true, ModeUnsorted: true, ModeAlpha: true,
	ModeTitle: true, ModeManifest: true, ModeManual: true,
}

// Options controls summary generation. Paths are relative to the root of
// the filesystem handed to Generate or EnsureClean.
type Options struct {
	Mode string
	// OrderManifest is a sidecar list of paths; relative paths are read
	// through the filesystem, absolute ones from disk.
	OrderManifest  string
	ManualMarker   string
	AppendicesLast bool
	// SummaryName overrides SUMMARY.md, e.g. from book.json structure.summary.
	SummaryName   string
	TypedSections *SectionConfig
	// Ignore, when set, filters entries by slash-separated relative path.
	Ignore func(rel string, isDir bool) bool
}

// Node is one entry of the summary tree.
type Node struct {
	Path       string  `json:"path,omitempty"`
	Title      string  `json:"title"`
	IsAppendix bool    `json:"is_appendix,omitempty"`
	Children   []*Node `json:"children,omitempty"`

	// sortName is the file stem, or the directory name for index nodes.
	sortName string
	heading  string
}

// Result is a generated summary.
type Result struct {
	Path    string   `json:"path"`
	Content string   `json:"-"`
	Issues  []string `json:"issues,omitempty"`
}

// NormalizeMode lowercases mode, defaults it to gitbook and maps unknown
// values to gitbook with a warning.
func NormalizeMode(mode string) string {
	m := strings.ToLower(strings.TrimSpace(mode))
	if m == "" {
		return ModeGitbook
	}
	if !validModes[m] {
		logger.Warn("unknown summary mode, using gitbook", logger.String("mode", mode))
		return ModeGitbook
	}
	return m
}

// ResolveName picks the summary file: the explicit name if set, else an
// existing SUMMARY.md or summary.md, else SUMMARY.md.
func ResolveName(fs billy.Filesystem, explicit string) string {
	if n := strings.TrimSpace(explicit); n != "" {
		return filepath.ToSlash(n)
	}
	for _, n := range []string{"SUMMARY.md", "summary.md", "Summary.md"} {
		if _, err := fs.Stat(n); err == nil {
			return n
		}
	}
	return DefaultName
}

// EnsureClean regenerates the summary below fs and writes it when the
// content differs from what is on disk. It reports whether it wrote.
// Manual mode and summaries carrying the manual marker are never touched.
func EnsureClean(fs billy.Filesystem, opts Options) (bool, error) {
	mode := NormalizeMode(opts.Mode)
	name := ResolveName(fs, opts.SummaryName)

	if mode == ModeManual {
		logger.Info("summary mode manual, leaving summary untouched", logger.String("summary", name))
		return false, nil
	}

	marker := opts.ManualMarker
	if marker == "" {
		marker = DefaultManualMarker
	}
	old, err := util.ReadFile(fs, name)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if hasMarker(string(old), marker) {
		logger.Info("summary carries manual marker, leaving untouched", logger.String("summary", name))
		return false, nil
	}

	res, err := Generate(fs, opts)
	if err != nil {
		return false, err
	}
	for _, issue := range res.Issues {
		logger.Warn("summary issue", logger.String("issue", issue))
	}
	if string(old) == res.Content {
		logger.Debug("summary unchanged", logger.String("summary", name))
		return false, nil
	}

	if dir := path.Dir(name); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(fs, name, []byte(res.Content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", name, err)
	}
	logger.Info("summary updated", logger.String("summary", name))
	return true, nil
}

func hasMarker(text, marker string) bool {
	if text == "" || marker == "" {
		return false
	}
	lines := strings.SplitN(text, "\n", markerLines+1)
	if len(lines) > markerLines {
		lines = lines[:markerLines]
	}
	return strings.Contains(strings.Join(lines, "\n"), marker)
}

// Generate builds the summary content without writing it.
func Generate(fs billy.Filesystem, opts Options) (*Result, error) {
	mode := NormalizeMode(opts.Mode)
	res := &Result{Path: ResolveName(fs, opts.SummaryName)}
	b := &builder{fs: fs, opts: opts, summaryName: strings.ToLower(path.Base(res.Path))}

	if opts.TypedSections != nil {
		docs, issues, err := b.collectTyped()
		if err != nil {
			return nil, err
		}
		content, more := renderTyped(docs, opts.TypedSections)
		res.Content = content
		res.Issues = append(issues, more...)
		return res, nil
	}

	order, err := b.loadOrder(mode)
	if err != nil {
		return nil, err
	}
	rootIndex, nodes, err := b.dir("")
	if err != nil {
		return nil, err
	}
	s := sorter{mode: mode, order: order, appendicesLast: opts.AppendicesLast}
	nodes = s.sort(nodes)

	lines := []string{"# Summary", ""}
	if rootIndex != nil {
		lines = append(lines, fmt.Sprintf("* [%s](%s)", rootIndex.Title, rootIndex.Path))
	}
	for _, n := range nodes {
		lines = appendNode(lines, n, 0)
	}
	res.Content = strings.TrimRight(strings.Join(lines, "\n"), "\n ") + "\n"
	return res, nil
}

func appendNode(lines []string, n *Node, depth int) []string {
	lines = append(lines, fmt.Sprintf("%s* [%s](%s)", strings.Repeat("  ", depth), n.Title, n.Path))
	for _, c := range n.Children {
		lines = appendNode(lines, c, depth+1)
	}
	return lines
}

// Tree returns the sorted summary tree. The root README, if any, is the
// first element.
func Tree(fs billy.Filesystem, opts Options) ([]*Node, error) {
	mode := NormalizeMode(opts.Mode)
	b := &builder{fs: fs, opts: opts, summaryName: strings.ToLower(path.Base(ResolveName(fs, opts.SummaryName)))}
	order, err := b.loadOrder(mode)
	if err != nil {
		return nil, err
	}
	rootIndex, nodes, err := b.dir("")
	if err != nil {
		return nil, err
	}
	nodes = sorter{mode: mode, order: order, appendicesLast: opts.AppendicesLast}.sort(nodes)
	if rootIndex != nil {
		nodes = append([]*Node{rootIndex}, nodes...)
	}
	return nodes, nil
}

type builder struct {
	fs          billy.Filesystem
	opts        Options
	summaryName string
}

func (b *builder) loadOrder(mode string) (orderIndex, error) {
	if b.opts.OrderManifest == "" {
		if mode == ModeManifest {
			logger.Warn("summary mode manifest without an order manifest, using natural order")
		}
		return nil, nil
	}
	var entries []string
	if filepath.IsAbs(b.opts.OrderManifest) {
		var err error
		entries, err = LoadOrder(b.opts.OrderManifest)
		if err != nil {
			logger.Warn("order manifest unreadable", logger.String("path", b.opts.OrderManifest), logger.Err(err))
			return nil, nil
		}
	} else {
		data, err := util.ReadFile(b.fs, filepath.ToSlash(b.opts.OrderManifest))
		if err != nil {
			logger.Warn("order manifest unreadable", logger.String("path", b.opts.OrderManifest), logger.Err(err))
			return nil, nil
		}
		entries = parseOrder(path.Ext(b.opts.OrderManifest), data)
	}
	logger.Debug("order manifest loaded", logger.String("path", b.opts.OrderManifest), logger.Int("entries", len(entries)))
	return newOrderIndex(entries), nil
}

func (b *builder) ignored(rel string, isDir bool) bool {
	return b.opts.Ignore != nil && b.opts.Ignore(rel, isDir)
}

func isMarkdown(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

func isIndexName(name string) bool {
	switch strings.ToLower(name) {
	case "readme.md", "index.md":
		return true
	}
	return false
}

func (b *builder) isSummaryName(name string) bool {
	lower := strings.ToLower(name)
	return lower == "summary.md" || lower == b.summaryName
}

// dir returns the index node of rel (README.md or index.md) and its
// remaining children. Children of directories without an index file are
// returned in place of the directory.
func (b *builder) dir(rel string) (*Node, []*Node, error) {
	readDir := rel
	if readDir == "" {
		readDir = "."
	}
	entries, err := b.fs.ReadDir(readDir)
	if err != nil {
		return nil, nil, fmt.Errorf("read directory %s: %w", readDir, err)
	}

	var index *Node
	var children []*Node
	for _, fi := range entries {
		name := fi.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childRel := path.Join(rel, name)
		if fi.IsDir() {
			if b.ignored(childRel, true) {
				continue
			}
			sub, subChildren, err := b.dir(childRel)
			if err != nil {
				return nil, nil, err
			}
			if sub == nil {
				children = append(children, subChildren...)
				continue
			}
			sub.Children = subChildren
			children = append(children, sub)
			continue
		}

		if !isMarkdown(name) || b.isSummaryName(name) || b.ignored(childRel, false) {
			continue
		}
		node := b.fileNode(childRel)
		if isIndexName(name) {
			// README.md wins over index.md
			if index == nil || strings.EqualFold(name, "readme.md") {
				if index != nil {
					children = append(children, index)
				}
				index = node
				continue
			}
		}
		children = append(children, node)
	}

	if index != nil && rel != "" {
		dirName := path.Base(rel)
		if index.heading == "" {
			index.Title = stemTitle(dirName)
		}
		index.sortName = dirName
		index.IsAppendix = IsAppendix(dirName, index.heading)
	}
	return index, children, nil
}

func (b *builder) fileNode(rel string) *Node {
	stem := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	data, err := util.ReadFile(b.fs, rel)
	if err != nil {
		logger.Debug("cannot read markdown for title", logger.String("path", rel), logger.Err(err))
	}
	_, body := splitFrontMatter(string(data))
	heading := firstHeading(body)
	title := heading
	if title == "" {
		title = stemTitle(stem)
	}
	return &Node{
		Path:       rel,
		Title:      title,
		IsAppendix: IsAppendix(stem, heading),
		sortName:   stem,
		heading:    heading,
	}
}

type sorter struct {
	mode           string
	order          orderIndex
	appendicesLast bool
}

func (s sorter) sort(nodes []*Node) []*Node {
	for _, n := range nodes {
		n.Children = s.sort(n.Children)
	}
	out := append([]*Node(nil), nodes...)

	switch s.mode {
	case ModeUnsorted:
	case ModeAlpha:
		sort.SliceStable(out, func(i, j int) bool { return out[i].sortName < out[j].sortName })
	case ModeTitle:
		sort.SliceStable(out, func(i, j int) bool { return NaturalLess(out[i].Title, out[j].Title) })
	default:
		sort.SliceStable(out, func(i, j int) bool { return NaturalLess(out[i].sortName, out[j].sortName) })
	}

	if len(s.order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			a, okA := s.order.lookup(out[i].Path)
			c, okC := s.order.lookup(out[j].Path)
			switch {
			case okA && okC:
				return a < c
			case okA:
				return true
			}
			return false
		})
	}

	if s.appendicesLast {
		sort.SliceStable(out, func(i, j int) bool {
			return !out[i].IsAppendix && out[j].IsAppendix
		})
	}
	return out
}
