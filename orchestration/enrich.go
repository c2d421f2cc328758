package orchestration

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/pathforge/pathforge/learningpath"
	"github.com/pathforge/pathforge/tools"
)

type enrichment struct {
	resource EnrichedResource
	diag     *Diagnostic
}

// enrich routes every resource to its metadata tool with at most
// MaxParallelism calls in flight. Results keep source order. A resource
// whose call fails, or that never started before the pipeline deadline,
// is degraded to its raw data with one diagnostic.
func (o *Orchestrator) enrich(ctx context.Context, r *run, resources []learningpath.Resource) []EnrichedResource {
	out := make([]EnrichedResource, len(resources))
	if !r.req.Enrich {
		for i, res := range resources {
			out[i] = rawResource(res)
		}
		return out
	}

	o.logger.Debug("Enriching resources", map[string]interface{}{
		"operation":       "enrich",
		"request_id":      r.result.RequestID,
		"resources":       len(resources),
		"max_parallelism": o.config.MaxParallelism,
	})

	results := make([]enrichment, len(resources))
	semaphore := make(chan struct{}, o.config.MaxParallelism)
	var wg sync.WaitGroup

	for i, res := range resources {
		tool := tools.ToolForKind(tools.DetectKind(res.URL), o.mcpEnabled)
		target := fmt.Sprintf("tool:%s@%s", tool, tools.HostOf(res.URL))

		if err := ctx.Err(); err != nil {
			results[i] = degrade(res, tool, target, "enrichment skipped: "+deadlineMessage(err))
			continue
		}
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			results[i] = degrade(res, tool, target, "enrichment skipped: "+deadlineMessage(ctx.Err()))
			continue
		}

		wg.Add(1)
		go func(i int, res learningpath.Resource) {
			defer func() {
				<-semaphore
				if p := recover(); p != nil {
					o.logger.Error("Enrichment panicked", map[string]interface{}{
						"operation": "enrich",
						"target":    target,
						"panic":     fmt.Sprintf("%v", p),
						"stack":     string(debug.Stack()),
					})
					results[i] = degrade(res, tool, target, fmt.Sprintf("enrichment panic: %v", p))
				}
				wg.Done()
			}()
			results[i] = o.enrichOne(ctx, r, res, tool, target)
		}(i, res)
	}
	wg.Wait()

	for i, e := range results {
		out[i] = e.resource
		if e.diag != nil {
			r.result.Diagnostics = append(r.result.Diagnostics, *e.diag)
		}
	}
	return out
}

func (o *Orchestrator) enrichOne(ctx context.Context, r *run, res learningpath.Resource, tool, target string) enrichment {
	output, err := o.callTool(ctx, r, StageEnrich, tool, target, map[string]interface{}{"url": res.URL})
	if err != nil {
		return degrade(res, tool, target, err.Error())
	}

	var meta struct {
		Kind        string `json:"kind"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Minutes     int    `json:"minutes"`
	}
	if err := decodeOutput(output, &meta); err != nil {
		return degrade(res, tool, target, err.Error())
	}

	enriched := rawResource(res)
	enriched.Tool = tool
	if meta.Kind != "" {
		enriched.Kind = meta.Kind
	}
	if meta.Title != "" {
		enriched.Title = meta.Title
	}
	if meta.Description != "" {
		enriched.Summary = meta.Description
	}
	enriched.Minutes = meta.Minutes
	for k, v := range output {
		switch k {
		case "url", "kind", "title", "description", "minutes":
			continue
		}
		if enriched.Metadata == nil {
			enriched.Metadata = make(map[string]interface{})
		}
		enriched.Metadata[k] = v
	}
	return enrichment{resource: enriched}
}

// rawResource is a resource carrying only what the parser found.
func rawResource(res learningpath.Resource) EnrichedResource {
	title := res.Title
	if title == "" {
		title = res.URL
	}
	return EnrichedResource{
		Resource: res,
		Kind:     tools.DetectKind(res.URL),
		Title:    title,
		Summary:  res.Description,
	}
}

func degrade(res learningpath.Resource, tool, target, message string) enrichment {
	e := rawResource(res)
	e.Tool = tool
	e.Degraded = true
	e.Error = message
	return enrichment{
		resource: e,
		diag:     &Diagnostic{Stage: StageEnrich, Target: target, Message: message},
	}
}
