package work

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/fulmenhq/folio/pkg/logger"
)

// ExecutionResult is the outcome of building one work item
type ExecutionResult struct {
	WorkItemID string        `json:"work_item_id"`
	Index      int           `json:"index"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	Output     string        `json:"output,omitempty"`
	// Value carries the processor's typed result.
	Value interface{} `json:"-"`
}

// ExecutionSummary provides a summary of the execution
type ExecutionSummary struct {
	// Results are in work item order, whatever order they finished in.
	Results []ExecutionResult `json:"results"`

	TotalItems    int           `json:"total_items"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	TotalDuration time.Duration `json:"total_duration"`
	Workers       int           `json:"workers"`
	GroupResults  []GroupResult `json:"group_results"`
}

// GroupResult provides results for a specific work group
type GroupResult struct {
	GroupID       string   `json:"group_id"`
	ItemCount     int      `json:"item_count"`
	SuccessCount  int      `json:"success_count"`
	FailureCount  int      `json:"failure_count"`
	ErrorMessages []string `json:"error_messages,omitempty"`
}

// WorkItemProcessor builds a single work item
type WorkItemProcessor interface {
	ProcessWorkItem(ctx context.Context, item *WorkItem, dryRun bool, noOp bool) ExecutionResult
}

// DispatcherConfig configures the dispatcher
type DispatcherConfig struct {
	MaxWorkers       int
	DryRun           bool
	NoOp             bool
	ProgressCallback func(result ExecutionResult)
	// Timeout bounds each item; zero means no limit.
	Timeout time.Duration
}

// Dispatcher runs a work manifest on a bounded worker pool. Items of a
// group never run more than the group's recommended parallelism at once.
type Dispatcher struct {
	config    DispatcherConfig
	processor WorkItemProcessor
}

// NewDispatcher creates a new work dispatcher
func NewDispatcher(config DispatcherConfig, processor WorkItemProcessor) *Dispatcher {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}
	return &Dispatcher{config: config, processor: processor}
}

// ExecuteManifest runs every item of manifest and waits for all of them.
// Cancelling ctx stops handing out new items.
func (d *Dispatcher) ExecuteManifest(ctx context.Context, manifest *WorkManifest) (*ExecutionSummary, error) {
	if err := ValidateManifest(manifest); err != nil {
		return nil, err
	}
	n := len(manifest.WorkItems)
	workers := min(d.config.MaxWorkers, max(n, 1))
	logger.Debug(fmt.Sprintf("Building %d targets with %d workers", n, workers))

	groupOf := make(map[string]string, n)
	slots := make(map[string]chan struct{}, len(manifest.Groups))
	for _, g := range manifest.Groups {
		for _, id := range g.WorkItemIDs {
			groupOf[id] = g.ID
		}
		if g.RecommendedParallelization > 0 {
			slots[g.ID] = make(chan struct{}, g.RecommendedParallelization)
		}
	}

	startTime := time.Now()
	workChan := make(chan int)
	results := make([]ExecutionResult, n)
	done := make([]bool, n)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workChan {
				item := &manifest.WorkItems[i]
				sem := slots[groupOf[item.ID]]
				if sem != nil {
					select {
					case sem <- struct{}{}:
					case <-ctx.Done():
						continue
					}
				}
				res := d.process(ctx, item)
				if sem != nil {
					<-sem
				}
				mu.Lock()
				results[i], done[i] = res, true
				mu.Unlock()
				if d.config.ProgressCallback != nil {
					d.config.ProgressCallback(res)
				}
			}
		}()
	}

feed:
	for i := range manifest.WorkItems {
		if ctx.Err() != nil {
			break
		}
		select {
		case workChan <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(workChan)
	wg.Wait()

	summary := &ExecutionSummary{Workers: workers, TotalDuration: time.Since(startTime)}
	byGroup := make(map[string]*GroupResult, len(manifest.Groups))
	for _, g := range manifest.Groups {
		byGroup[g.ID] = &GroupResult{GroupID: g.ID, ItemCount: len(g.WorkItemIDs)}
	}
	for i, res := range results {
		if !done[i] {
			continue
		}
		summary.Results = append(summary.Results, res)
		gr := byGroup[groupOf[res.WorkItemID]]
		if res.Success {
			summary.Successful++
			if gr != nil {
				gr.SuccessCount++
			}
			continue
		}
		summary.Failed++
		if gr != nil {
			gr.FailureCount++
			gr.ErrorMessages = append(gr.ErrorMessages, res.Error)
		}
	}
	summary.TotalItems = len(summary.Results)
	for _, g := range manifest.Groups {
		summary.GroupResults = append(summary.GroupResults, *byGroup[g.ID])
	}

	logger.Debug(fmt.Sprintf("Build completed: %d successful, %d failed in %v", summary.Successful, summary.Failed, summary.TotalDuration))
	return summary, nil
}

func (d *Dispatcher) process(ctx context.Context, item *WorkItem) ExecutionResult {
	start := time.Now()
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}
	res := d.processor.ProcessWorkItem(ctx, item, d.config.DryRun, d.config.NoOp)
	res.WorkItemID = item.ID
	res.Index = item.Index
	res.Duration = time.Since(start)
	return res
}

// ValidateManifest checks that every group references existing items and
// that no item belongs to two groups.
func ValidateManifest(manifest *WorkManifest) error {
	if manifest == nil {
		return fmt.Errorf("nil work manifest")
	}
	items := make(map[string]bool, len(manifest.WorkItems))
	for _, item := range manifest.WorkItems {
		if items[item.ID] {
			return fmt.Errorf("duplicate work item %s", item.ID)
		}
		items[item.ID] = true
	}
	owner := map[string]string{}
	for _, group := range manifest.Groups {
		for _, id := range group.WorkItemIDs {
			if !items[id] {
				return fmt.Errorf("group %s references non-existent work item %s", group.ID, id)
			}
			if prev, ok := owner[id]; ok {
				return fmt.Errorf("work item %s is in groups %s and %s", id, prev, group.ID)
			}
			owner[id] = group.ID
		}
	}
	return nil
}
