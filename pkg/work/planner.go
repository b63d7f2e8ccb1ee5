package work

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fulmenhq/folio/pkg/manifest"
)

// WorkItem represents a single publish target to be built
type WorkItem struct {
	ID string `json:"id"`
	// Index is the target's position in the publish manifest.
	Index       int                    `json:"index"`
	Path        string                 `json:"path"`
	Out         string                 `json:"out"`
	ContentType string                 `json:"content_type"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	Entry manifest.Entry `json:"-"`
}

// WorkGroup represents a logical grouping of work items
type WorkGroup struct {
	ID                         string   `json:"id"`
	Name                       string   `json:"name"`
	Strategy                   string   `json:"strategy"`
	WorkItemIDs                []string `json:"work_item_ids"`
	RecommendedParallelization int      `json:"recommended_parallelization"`
}

// Plan represents the complete execution plan
type Plan struct {
	Command           string    `json:"command"`
	Timestamp         time.Time `json:"timestamp"`
	WorkingDirectory  string    `json:"working_directory"`
	TotalTargets      int       `json:"total_targets"`
	ExecutionStrategy string    `json:"execution_strategy"`
}

// WorkManifest represents the complete work plan
type WorkManifest struct {
	Plan      Plan        `json:"plan"`
	WorkItems []WorkItem  `json:"work_items"`
	Groups    []WorkGroup `json:"groups"`
}

// PlanTargets turns manifest targets into a work manifest. Folder builds
// and single-file builds form separate groups; folder builds are heavy,
// so their recommended parallelism is capped at parallel/2.
func PlanTargets(command, dir string, targets []manifest.Entry, parallel int) *WorkManifest {
	if parallel <= 0 {
		parallel = 1
	}
	m := &WorkManifest{
		Plan: Plan{
			Command:          command,
			Timestamp:        time.Now(),
			WorkingDirectory: dir,
			TotalTargets:     len(targets),
		},
	}
	m.Plan.ExecutionStrategy = "sequential"
	if parallel > 1 {
		m.Plan.ExecutionStrategy = "parallel"
	}

	groups := map[string]*WorkGroup{}
	var order []string
	for _, t := range targets {
		kind := t.SourceType
		if kind == "" {
			kind = "auto"
		}
		item := WorkItem{
			ID:          fmt.Sprintf("target-%03d", t.Index),
			Index:       t.Index,
			Path:        t.Path,
			Out:         filepath.Join(t.OutDir, t.Out),
			ContentType: kind,
			Entry:       t,
		}
		m.WorkItems = append(m.WorkItems, item)

		g, ok := groups[kind]
		if !ok {
			g = &WorkGroup{ID: kind, Name: kind + " targets", Strategy: m.Plan.ExecutionStrategy}
			g.RecommendedParallelization = parallel
			if kind == manifest.SourceFolder && parallel > 1 {
				g.RecommendedParallelization = max(1, parallel/2)
			}
			groups[kind] = g
			order = append(order, kind)
		}
		g.WorkItemIDs = append(g.WorkItemIDs, item.ID)
	}
	for _, k := range order {
		m.Groups = append(m.Groups, *groups[k])
	}
	return m
}
