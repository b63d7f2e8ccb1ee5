package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/folio/pkg/config"
	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// project is the resolved repository root and configuration a command
// works against.
type project struct {
	cwd  string
	root string
	cfg  *config.Config
}

func loadProject(rootFlag string) (*project, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	root := rootFlag
	if root == "" {
		root = manifest.DetectRepoRoot(cwd)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	cfg, err := config.LoadProjectConfig(root)
	if err != nil {
		return nil, err
	}
	return &project{cwd: cwd, root: root, cfg: cfg}, nil
}

// manifest locates and loads the manifest, honouring an explicit path.
func (p *project) manifest(explicit string) (*manifest.Manifest, error) {
	path, err := manifest.Locate(manifest.LocateOptions{
		Explicit:  explicit,
		Cwd:       p.cwd,
		RepoRoot:  p.root,
		Filenames: p.cfg.Manifest.Filenames,
		Search:    p.cfg.Manifest.Search,
	})
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	if p.cfg.Publish.Dir != "" {
		m.DefaultOutDir = p.cfg.Publish.Dir
	}
	return m, nil
}

func addManifestFlags(fs *pflag.FlagSet) {
	fs.String("root", "", "Repository root (default: detected from the working directory)")
	fs.String("manifest", "", "Explicit manifest path")
}

// dryRun reports whether --dry-run or the global --no-op is set.
func dryRun(cmd *cobra.Command) bool {
	d, _ := cmd.Flags().GetBool("dry-run")
	n, _ := cmd.Flags().GetBool("no-op")
	return d || n
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitArgs splits s the way a POSIX shell splits words, honouring single
// quotes, double quotes and backslash escapes. Expansions are not
// performed.
func splitArgs(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\\':
			escaped, inWord = true, true
		case quote == '"':
			if r == '"' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote, inWord = r, true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if escaped || quote != 0 {
		return nil, fmt.Errorf("unterminated quote or escape in %q", s)
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
