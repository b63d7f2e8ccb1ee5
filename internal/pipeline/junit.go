package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// WriteJUnit writes a JUnit testsuite with one testcase per target.
func WriteJUnit(path string, r *Report, now time.Time) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	var total time.Duration
	for _, t := range r.Targets {
		total += t.Duration
	}
	suites := doc.CreateElement("testsuites")
	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", "folio.publish")
	suite.CreateAttr("tests", strconv.Itoa(len(r.Targets)))
	suite.CreateAttr("failures", strconv.Itoa(len(r.Failures)))
	suite.CreateAttr("errors", "0")
	suite.CreateAttr("time", seconds(total))
	suite.CreateAttr("timestamp", now.UTC().Format(time.RFC3339))

	props := suite.CreateElement("properties")
	prop := props.CreateElement("property")
	prop.CreateAttr("name", "manifest")
	prop.CreateAttr("value", r.Manifest)

	for _, t := range r.Targets {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", "folio.publish."+filepath.ToSlash(t.Path))
		tc.CreateAttr("name", t.Out)
		tc.CreateAttr("time", seconds(t.Duration))
		if !t.Success {
			f := tc.CreateElement("failure")
			f.CreateAttr("type", t.Kind)
			f.CreateAttr("message", firstLine(t.Error))
			f.SetText(t.Error)
		}
		if t.Command != "" {
			tc.CreateElement("system-out").SetText(t.Command)
		}
	}

	doc.Indent(2)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create junit dir: %w", err)
	}
	if err := doc.WriteToFile(path); err != nil {
		return fmt.Errorf("write junit report: %w", err)
	}
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
