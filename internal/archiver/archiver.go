// Package archiver runs one crawl per requested collection and stores each
// completed snapshot. A failing collection does not affect the others.
package archiver

import (
	"errors"
	"fmt"

	"zester/pkg/logger"
	"zester/pkg/soundcloud"
)

// Jobs builds the crawl jobs for kinds of userID, in the given order
func Jobs(kinds []soundcloud.Kind, userID int64) ([]CrawlJob, error) {
	jobs := make([]CrawlJob, 0, len(kinds))
	seen := make(map[soundcloud.Kind]bool)
	for _, kind := range kinds {
		if seen[kind] {
			continue
		}
		seen[kind] = true

		endpoint, err := soundcloud.EndpointFor(kind, userID)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, CrawlJob{Kind: kind, Endpoint: endpoint})
	}
	return jobs, nil
}

// Run archives every job on pool and returns results in job order. The pool
// is started and stopped by Run.
func Run(pool *WorkerPool, jobs []CrawlJob) []CrawlResult {
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, job := range jobs {
			if err := pool.Submit(job); err != nil {
				pool.logger.WarnWithFields("job not submitted", map[string]interface{}{
					"kind":  string(job.Kind),
					"error": err.Error(),
				})
				return
			}
			pool.logger.DebugWithFields("job queued", map[string]interface{}{
				"kind":        string(job.Kind),
				"queue_size":  pool.GetQueueSize(),
				"num_workers": pool.GetActiveWorkers(),
			})
		}
	}()

	byKind := make(map[soundcloud.Kind]CrawlResult, len(jobs))
	for result := range pool.Results() {
		byKind[result.Job.Kind] = result
	}

	results := make([]CrawlResult, 0, len(jobs))
	for _, job := range jobs {
		result, ok := byKind[job.Kind]
		if !ok {
			cause := pool.ctx.Err()
			if cause == nil {
				cause = errors.New("not run")
			}
			result = CrawlResult{Job: job, Error: fmt.Errorf("crawl %s: %w", job.Kind, cause)}
		}
		results = append(results, result)
	}

	logSummary(pool.logger, results)
	return results
}

// Failed returns the results that did not produce a snapshot
func Failed(results []CrawlResult) []CrawlResult {
	var failed []CrawlResult
	for _, r := range results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

func logSummary(log logger.Logger, results []CrawlResult) {
	succeeded, records := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
			records += r.Count
		}
	}
	log.InfoWithFields("archive run finished", map[string]interface{}{
		"collections": len(results),
		"succeeded":   succeeded,
		"failed":      len(results) - succeeded,
		"records":     records,
	})
}
