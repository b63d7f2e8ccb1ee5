package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/folio/internal/gitctx"
	"github.com/fulmenhq/folio/pkg/exitcode"
	"github.com/fulmenhq/folio/pkg/selector"
	"github.com/fulmenhq/folio/pkg/typeset"
)

// Failure kinds besides the typesetter's.
const (
	KindDiscover = "discover"
	KindCombine  = "combine"
	KindPersist  = "persist"
)

// TargetResult is the outcome of one target build.
type TargetResult struct {
	Index    int           `json:"index"`
	Path     string        `json:"path"`
	Out      string        `json:"out"`
	Artifact string        `json:"artifact,omitempty"`
	Combined string        `json:"combined,omitempty"`
	Success  bool          `json:"success"`
	Kind     string        `json:"kind,omitempty"`
	Error    string        `json:"error,omitempty"`
	ExitCode int           `json:"exit_code,omitempty"`
	Duration time.Duration `json:"duration"`
	Command  string        `json:"command,omitempty"`
}

// Failure is the diagnostic payload of a failed target.
type Failure struct {
	Index    int    `json:"index"`
	Out      string `json:"out"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
	ExitCode int    `json:"exit_code"`
}

// Report summarises a run. Targets are in manifest order.
type Report struct {
	Manifest     string            `json:"manifest"`
	BuiltCount   int               `json:"built_count"`
	BuiltFiles   []string          `json:"built_files"`
	FailedFiles  []string          `json:"failed_files"`
	Failures     []Failure         `json:"failures"`
	Targets      []TargetResult    `json:"targets,omitempty"`
	Changed      *gitctx.ChangeSet `json:"changed,omitempty"`
	Modified     []selector.Change `json:"modified,omitempty"`
	AnyBuildTrue bool              `json:"any_build_true"`
	Renamed      int               `json:"renamed,omitempty"`
	Summaries    []string          `json:"summaries_updated,omitempty"`
	DryRun       bool              `json:"dry_run,omitempty"`
	// PublishSkipped is set when the typesetter pass was disabled.
	PublishSkipped bool `json:"publish_skipped,omitempty"`
}

func newReport() *Report {
	return &Report{BuiltFiles: []string{}, FailedFiles: []string{}, Failures: []Failure{}}
}

func (r *Report) add(t TargetResult, display string) {
	r.Targets = append(r.Targets, t)
	if t.Success {
		r.BuiltCount++
		r.BuiltFiles = append(r.BuiltFiles, display)
		return
	}
	r.FailedFiles = append(r.FailedFiles, display)
	r.Failures = append(r.Failures, Failure{
		Index: t.Index, Out: t.Out, Kind: t.Kind, Error: t.Error, ExitCode: t.ExitCode,
	})
}

func kindExitCode(kind string) int {
	return typeset.Result{Kind: kind}.ProcessExitCode()
}

// ExitCode applies the exit policy: any success is success, no attempted
// target means nothing to publish, and when every target failed for the
// same dedicated reason that reason's code is used.
func (r *Report) ExitCode() int {
	if r.PublishSkipped {
		return exitcode.Success
	}
	if r.BuiltCount+len(r.Failures) == 0 {
		return exitcode.NothingToPublish
	}
	if r.BuiltCount > 0 {
		return exitcode.Success
	}
	code := kindExitCode(r.Failures[0].Kind)
	for _, f := range r.Failures[1:] {
		if kindExitCode(f.Kind) != code {
			return exitcode.BuildFailed
		}
	}
	return code
}

// WriteJSON prints the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// appendOutputs appends key=value lines to the CI output file, if any.
func appendOutputs(path string, kv [][2]string) error {
	if path == "" || len(kv) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304 -- CI-provided path
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	var b strings.Builder
	for _, p := range kv {
		b.WriteString(p[0] + "=" + p[1] + "\n")
	}
	_, err = f.WriteString(b.String())
	return err
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func (r *Report) flagOutputs() [][2]string {
	return [][2]string{
		{"any_build_true", strconv.FormatBool(r.AnyBuildTrue)},
		{"modified_count", strconv.Itoa(len(r.Modified))},
	}
}

func (r *Report) buildOutputs() [][2]string {
	return [][2]string{
		{"built_count", strconv.Itoa(r.BuiltCount)},
		{"built_files", jsonList(r.BuiltFiles)},
		{"failed_files", jsonList(r.FailedFiles)},
		{"manifest", r.Manifest},
	}
}
