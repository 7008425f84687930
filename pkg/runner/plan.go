package runner

import (
	"fmt"

	"github.com/kylerisse/snapcheck/pkg/check"
	"github.com/kylerisse/snapcheck/pkg/check/bucket"
	"github.com/kylerisse/snapcheck/pkg/check/connectivity"
	"github.com/kylerisse/snapcheck/pkg/check/function"
	"github.com/kylerisse/snapcheck/pkg/check/snapshot"
	"github.com/kylerisse/snapcheck/pkg/check/table"
	"github.com/kylerisse/snapcheck/pkg/config"
)

// Record keys of the default plan, in run order.
const (
	Connection     = "connection"
	TableAccess    = "table_access"
	SnapshotIndex  = "snapshot_index"
	StorageAccess  = "storage_access"
	EdgeFunction   = "edge_function"
	ManualSnapshot = "manual_snapshot"
)

// recentShown is how many index entries the index check prints.
const recentShown = 5

// Step is one entry of a plan: the record key, the check type and the
// configuration handed to its factory.
type Step struct {
	Name   string
	Type   string
	Config map[string]any
}

// DefaultPlan returns the six checks of a snapshot verification run.
func DefaultPlan(cfg *config.Config, runID string) []Step {
	return []Step{
		{
			Name:   Connection,
			Type:   connectivity.TypeName,
			Config: map[string]any{},
		},
		{
			Name: TableAccess,
			Type: table.TypeName,
			Config: map[string]any{
				"table":  cfg.PrimaryTable,
				"select": "count",
				"limit":  1,
			},
		},
		{
			Name: SnapshotIndex,
			Type: table.TypeName,
			Config: map[string]any{
				"table":       cfg.IndexTable,
				"select":      "id,snapshot_date,created_at",
				"order":       "created_at.desc",
				"limit":       cfg.IndexLimit,
				"recent":      recentShown,
				"title":       fmt.Sprintf("📚 Testing %s Table...", cfg.IndexTable),
				"label":       "Snapshot Index",
				"remediation": "Re-run the schema fix (fix-snapshot-issues.sql) in the dashboard",
			},
		},
		{
			Name: StorageAccess,
			Type: bucket.TypeName,
			Config: map[string]any{
				"bucket":     cfg.Bucket,
				"list_limit": cfg.ListLimit,
			},
		},
		{
			Name: EdgeFunction,
			Type: function.TypeName,
			Config: map[string]any{
				"function": cfg.Function,
				"timeout":  cfg.FunctionTimeout.String(),
			},
		},
		{
			Name: ManualSnapshot,
			Type: snapshot.TypeName,
			Config: map[string]any{
				"table":           cfg.PrimaryTable,
				"index_table":     cfg.IndexTable,
				"order_column":    cfg.OrderColumn,
				"object_prefix":   cfg.ObjectPrefix,
				"conflict_column": cfg.ConflictColumn,
				"run_id":          runID,
			},
		},
	}
}

// DefaultRegistry returns a Registry with every built-in check type.
func DefaultRegistry() (*check.Registry, error) {
	reg := check.NewRegistry()
	types := []struct {
		name    string
		factory check.Factory
	}{
		{connectivity.TypeName, connectivity.Factory},
		{table.TypeName, table.Factory},
		{bucket.TypeName, bucket.Factory},
		{function.TypeName, function.Factory},
		{snapshot.TypeName, snapshot.Factory},
	}
	for _, t := range types {
		if err := reg.Register(t.name, t.factory); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
