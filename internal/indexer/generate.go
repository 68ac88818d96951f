package indexer

import (
	"context"
	"fmt"
	"log/slog"
)

// Partitions lists the partitions of the source. A Tripal 3 site has one
// bundle table per feature bundle; a Tripal 2 site has the single
// chado_feature table.
func (ix *Indexer) Partitions(ctx context.Context) ([]Spec, error) {
	ok, err := ix.src.TableExists(ctx, "chado_bundle")
	if err != nil {
		return nil, fmt.Errorf("checking chado_bundle: %w", err)
	}
	if !ok {
		return []Spec{{Partition: NodePartition, Version: VersionTripal2}}, nil
	}
	ids, err := ix.src.Strings(ctx, "SELECT bundle_id FROM chado_bundle WHERE data_table = ? ORDER BY bundle_id", "feature")
	if err != nil {
		return nil, fmt.Errorf("listing feature bundles: %w", err)
	}
	specs := make([]Spec, 0, len(ids))
	for _, id := range ids {
		specs = append(specs, Spec{Partition: bundlePrefix + id, Version: VersionTripal3})
	}
	return specs, nil
}

// GenerateJobs submits one job per partition. When dispatch.max_rows_per_job
// is set, partitions are split into key-range windows of about that many
// rows and empty partitions produce no job. The windows cover the whole key
// space, so rows changed between windows are neither skipped nor repeated. It returns the ids of the submitted jobs.
func (ix *Indexer) GenerateJobs(ctx context.Context, sub Submitter) ([]string, error) {
	partitions, err := ix.Partitions(ctx)
	if err != nil {
		return nil, err
	}
	maxRows := ix.cfg.Dispatch.MaxRowsPerJob

	var ids []string
	for _, p := range partitions {
		specs := []Spec{p}
		if maxRows > 0 {
			q := recordQuery(ix.src, p).Query
			total, err := ix.src.CountEligible(ctx, q)
			if err != nil {
				return ids, fmt.Errorf("counting %s: %w", p.Partition, err)
			}
			if total == 0 {
				continue
			}
			bounds, err := ix.src.Boundaries(ctx, q, maxRows)
			if err != nil {
				return ids, fmt.Errorf("splitting %s: %w", p.Partition, err)
			}
			specs = windows(p, bounds)
		}
		for _, spec := range specs {
			if err := spec.Validate(); err != nil {
				return ids, err
			}
			id, err := sub.Submit(ctx, spec)
			if err != nil {
				return ids, fmt.Errorf("submitting job for %s: %w", spec.Key(), err)
			}
			ids = append(ids, id)
		}
		slog.Info("generated indexing jobs", "partition", p.Partition, "version", p.Version, "jobs", len(specs))
	}
	return ids, nil
}

// windows turns the boundaries of a partition into consecutive key ranges.
// The first range has no lower bound and the last has no upper bound.
func windows(p Spec, bounds []int64) []Spec {
	out := make([]Spec, 0, len(bounds)+1)
	var after *int64
	for _, b := range bounds {
		w := p
		w.KeyAfter, w.KeyThrough = after, &b
		out = append(out, w)
		after = &b
	}
	w := p
	w.KeyAfter = after
	return append(out, w)
}
