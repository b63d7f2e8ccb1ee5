package summary

import (
	"bufio"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fulmenhq/folio/pkg/logger"
)

var linkPattern = regexp.MustCompile(`(?i)\(([^)]+?\.(?:md|markdown))(?:#[^)]*)?\)`)

var remotePrefixes = []string{"http://", "https://", "ftp://", "mailto:"}

// ParseLinks returns the Markdown files a summary links to, in order,
// resolved against root. Remote targets, missing files and duplicates are
// dropped.
func ParseLinks(summaryPath, root string) []string {
	f, err := os.Open(summaryPath) // #nosec G304 -- summary inside the content root
	if err != nil {
		logger.Warn("cannot read summary", logger.String("path", summaryPath), logger.Err(err))
		return nil
	}
	defer func() { _ = f.Close() }()

	var files []string
	seen := map[string]bool{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		for _, m := range linkPattern.FindAllStringSubmatch(scanner.Text(), -1) {
			target := strings.TrimSpace(m[1])
			if isRemote(target) {
				continue
			}
			p, ok := resolveLink(root, target)
			if !ok {
				logger.Debug("summary links to missing file", logger.String("target", target))
				continue
			}
			if seen[p] {
				continue
			}
			seen[p] = true
			files = append(files, p)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("cannot parse summary", logger.String("path", summaryPath), logger.Err(err))
		return nil
	}
	return files
}

func isRemote(target string) bool {
	lower := strings.ToLower(target)
	for _, prefix := range remotePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func resolveLink(root, target string) (string, bool) {
	candidates := []string{target}
	if unescaped, err := url.PathUnescape(target); err == nil && unescaped != target {
		candidates = append(candidates, unescaped)
	}
	for _, c := range candidates {
		p := filepath.Clean(filepath.Join(root, filepath.FromSlash(c)))
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}
