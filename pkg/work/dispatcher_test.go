package work

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/fulmenhq/folio/pkg/manifest"
)

// mockProcessor implements WorkItemProcessor for testing
type mockProcessor struct {
	mu      sync.Mutex
	delays  map[string]time.Duration
	failing map[string]string
	seen    []string
	dryRuns int
}

func (m *mockProcessor) ProcessWorkItem(ctx context.Context, item *WorkItem, dryRun bool, noOp bool) ExecutionResult {
	if d := m.delays[item.ID]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ExecutionResult{Success: false, Error: ctx.Err().Error()}
		}
	}
	m.mu.Lock()
	m.seen = append(m.seen, item.ID)
	if dryRun {
		m.dryRuns++
	}
	m.mu.Unlock()

	if msg, ok := m.failing[item.ID]; ok {
		return ExecutionResult{Success: false, Error: msg}
	}
	return ExecutionResult{Success: true, Output: item.Out, Value: item.Index}
}

func targets() []manifest.Entry {
	return []manifest.Entry{
		{Index: 0, Path: "./", Out: "book.pdf", OutDir: "publish", SourceType: manifest.SourceFolder},
		{Index: 2, Path: "docs/a.md", Out: "a.pdf", OutDir: "publish", SourceType: manifest.SourceFile},
		{Index: 5, Path: "docs/b.md", Out: "b.pdf", OutDir: "dist"},
	}
}

func TestNewDispatcher(t *testing.T) {
	processor := &mockProcessor{}

	testCases := []struct {
		name            string
		config          DispatcherConfig
		expectedWorkers int
		expectedTimeout time.Duration
	}{
		{"default config", DispatcherConfig{}, runtime.NumCPU(), 0},
		{"custom config", DispatcherConfig{MaxWorkers: 8, Timeout: 30 * time.Second}, 8, 30 * time.Second},
		{"negative timeout disables limit", DispatcherConfig{MaxWorkers: 1, Timeout: -1}, 1, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dispatcher := NewDispatcher(tc.config, processor)
			if dispatcher.config.MaxWorkers != tc.expectedWorkers {
				t.Errorf("expected MaxWorkers %d, got %d", tc.expectedWorkers, dispatcher.config.MaxWorkers)
			}
			if dispatcher.config.Timeout != tc.expectedTimeout {
				t.Errorf("expected Timeout %v, got %v", tc.expectedTimeout, dispatcher.config.Timeout)
			}
		})
	}
}

func TestPlanTargets(t *testing.T) {
	m := PlanTargets("run", "/repo", targets(), 4)

	if len(m.WorkItems) != 3 {
		t.Fatalf("expected 3 work items, got %d", len(m.WorkItems))
	}
	if m.WorkItems[1].ID != "target-002" || m.WorkItems[1].Out != "publish/a.pdf" {
		t.Errorf("unexpected item %+v", m.WorkItems[1])
	}
	if m.Plan.ExecutionStrategy != "parallel" {
		t.Errorf("expected parallel strategy, got %s", m.Plan.ExecutionStrategy)
	}
	if len(m.Groups) != 3 {
		t.Fatalf("expected folder, file and auto groups, got %d", len(m.Groups))
	}
	if m.Groups[0].ID != "folder" || m.Groups[0].RecommendedParallelization != 2 {
		t.Errorf("unexpected folder group %+v", m.Groups[0])
	}
	if m.Groups[2].ID != "auto" || m.Groups[2].WorkItemIDs[0] != "target-005" {
		t.Errorf("unexpected auto group %+v", m.Groups[2])
	}
	if err := ValidateManifest(m); err != nil {
		t.Errorf("planned manifest should validate: %v", err)
	}

	seq := PlanTargets("run", "/repo", targets(), 0)
	if seq.Plan.ExecutionStrategy != "sequential" || seq.Groups[0].RecommendedParallelization != 1 {
		t.Errorf("expected sequential plan, got %+v", seq.Plan)
	}
}

func TestValidateManifest(t *testing.T) {
	testCases := []struct {
		name        string
		manifest    *WorkManifest
		shouldError bool
	}{
		{"nil manifest", nil, true},
		{"empty manifest", &WorkManifest{}, false},
		{"ungrouped items", &WorkManifest{WorkItems: []WorkItem{{ID: "a"}}}, false},
		{"duplicate item", &WorkManifest{WorkItems: []WorkItem{{ID: "a"}, {ID: "a"}}}, true},
		{
			"item in two groups",
			&WorkManifest{
				WorkItems: []WorkItem{{ID: "a"}},
				Groups: []WorkGroup{
					{ID: "g", WorkItemIDs: []string{"a"}},
					{ID: "h", WorkItemIDs: []string{"a"}},
				},
			},
			true,
		},
		{
			"group references nonexistent work item",
			&WorkManifest{
				WorkItems: []WorkItem{{ID: "a"}},
				Groups:    []WorkGroup{{ID: "g", WorkItemIDs: []string{"b"}}},
			},
			true,
		},
		{
			"valid manifest",
			&WorkManifest{
				WorkItems: []WorkItem{{ID: "a"}},
				Groups:    []WorkGroup{{ID: "g", WorkItemIDs: []string{"a"}}},
			},
			false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateManifest(tc.manifest)
			if tc.shouldError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.shouldError && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestExecuteManifestKeepsManifestOrder(t *testing.T) {
	processor := &mockProcessor{
		delays:  map[string]time.Duration{"target-000": 30 * time.Millisecond},
		failing: map[string]string{"target-002": "boom"},
	}
	var progress int
	var mu sync.Mutex
	dispatcher := NewDispatcher(DispatcherConfig{
		MaxWorkers: 3,
		DryRun:     true,
		ProgressCallback: func(ExecutionResult) {
			mu.Lock()
			progress++
			mu.Unlock()
		},
	}, processor)

	summary, err := dispatcher.ExecuteManifest(context.Background(), PlanTargets("run", "/repo", targets(), 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Successful != 2 || summary.Failed != 1 {
		t.Errorf("expected 2 successful and 1 failed, got %d/%d", summary.Successful, summary.Failed)
	}
	want := []int{0, 2, 5}
	for i, r := range summary.Results {
		if r.Index != want[i] {
			t.Errorf("result %d: expected index %d, got %d", i, want[i], r.Index)
		}
	}
	if summary.Results[1].Error != "boom" {
		t.Errorf("expected failure message, got %q", summary.Results[1].Error)
	}
	if summary.Results[0].Value != 0 {
		t.Errorf("expected typed value to pass through, got %v", summary.Results[0].Value)
	}
	if processor.dryRuns != 3 {
		t.Errorf("expected dry run flag on every item, got %d", processor.dryRuns)
	}
	if progress != 3 {
		t.Errorf("expected 3 progress callbacks, got %d", progress)
	}
	if summary.GroupResults[1].GroupID != "file" || summary.GroupResults[1].FailureCount != 1 {
		t.Errorf("unexpected group result %+v", summary.GroupResults[1])
	}
}

func TestExecuteManifestItemTimeout(t *testing.T) {
	processor := &mockProcessor{delays: map[string]time.Duration{"target-000": time.Second}}
	dispatcher := NewDispatcher(DispatcherConfig{MaxWorkers: 1, Timeout: 20 * time.Millisecond}, processor)

	summary, err := dispatcher.ExecuteManifest(context.Background(), PlanTargets("run", "/repo", targets()[:1], 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected the slow item to fail, got %+v", summary.Results)
	}
	if summary.Results[0].WorkItemID != "target-000" {
		t.Errorf("expected work item id to be stamped, got %q", summary.Results[0].WorkItemID)
	}
}

func TestExecuteManifestHonoursGroupLimit(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	processor := processorFunc(func(ctx context.Context, item *WorkItem) ExecutionResult {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return ExecutionResult{Success: true}
	})

	var folders []manifest.Entry
	for i := range 6 {
		folders = append(folders, manifest.Entry{Index: i, Path: "book", Out: "b.pdf", SourceType: manifest.SourceFolder})
	}
	m := PlanTargets("run", "/repo", folders, 4)
	dispatcher := NewDispatcher(DispatcherConfig{MaxWorkers: 4}, processor)

	summary, err := dispatcher.ExecuteManifest(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Successful != 6 {
		t.Errorf("expected 6 successful builds, got %d", summary.Successful)
	}
	if peak > 2 {
		t.Errorf("folder builds should be capped at 2 concurrent, saw %d", peak)
	}
}

func TestExecuteManifestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dispatcher := NewDispatcher(DispatcherConfig{MaxWorkers: 1}, &mockProcessor{})

	summary, err := dispatcher.ExecuteManifest(ctx, PlanTargets("run", "/repo", targets(), 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalItems != 0 {
		t.Errorf("expected cancellation to skip every item, got %d results", summary.TotalItems)
	}
}

type processorFunc func(ctx context.Context, item *WorkItem) ExecutionResult

func (f processorFunc) ProcessWorkItem(ctx context.Context, item *WorkItem, _ bool, _ bool) ExecutionResult {
	return f(ctx, item)
}
