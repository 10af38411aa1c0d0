package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// MemgraphDriver talks to Memgraph (or Neo4j) over bolt. It backs the
// concept bank; the refinement engine itself never touches it.
type MemgraphDriver struct {
	Driver neo4j.DriverWithContext
	log    *zap.SugaredLogger
}

func NewMemgraphDriver(uri, username, password string, log *zap.SugaredLogger) (*MemgraphDriver, error) {
	d, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}
	if err := d.VerifyConnectivity(context.Background()); err != nil {
		return nil, err
	}
	if log != nil {
		log.Infow("connected to graph store", "uri", uri)
	}
	return &MemgraphDriver{Driver: d, log: log}, nil
}

func (d *MemgraphDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *MemgraphDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

// BuildIndices creates the lookup indices the bank queries depend on.
// Index creation is idempotent enough for startup: failures (typically
// "already exists") are logged and skipped.
func (d *MemgraphDriver) BuildIndices(ctx context.Context) error {
	queries := []string{
		"CREATE INDEX ON :Concept(uuid);",
		"CREATE INDEX ON :Concept(scope);",
		"CREATE INDEX ON :Concept(name);",
	}
	for _, q := range queries {
		if _, err := d.ExecuteQuery(ctx, q, nil); err != nil && d.log != nil {
			d.log.Warnw("failed to create index", "query", q, "error", err)
		}
	}
	return nil
}
