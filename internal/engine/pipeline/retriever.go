// internal/engine/pipeline/retriever.go
package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"scm-assistant/internal/common/database"
	"scm-assistant/internal/common/logger"
	"scm-assistant/internal/engine/aigateway"
	"scm-assistant/internal/models"
)

const retrieveLimit = 50

// DataRetriever implements the workflow's retrieval stage against the
// business tables, plus the tracking search index when one is configured.
type DataRetriever struct {
	db      *sql.DB
	es      *database.ElasticsearchClient
	esIndex string
	logger  logger.Logger
}

func NewDataRetriever(db *sql.DB, es *database.ElasticsearchClient, esIndex string, log logger.Logger) *DataRetriever {
	return &DataRetriever{
		db:      db,
		es:      es,
		esIndex: esIndex,
		logger:  log.WithFields(map[string]interface{}{"component": "retriever"}),
	}
}

// Retrieve pulls recent rows for the classified scenario. Column aliases
// already use canonical field names, so the workflow's format stage needs
// no extra mapping.
func (r *DataRetriever) Retrieve(ctx context.Context, category models.RuleCategory, query string) (*aigateway.RetrievedData, error) {
	switch category {
	case models.CategoryInventory:
		return r.queryRows(ctx, category,
			[]string{"material", "batch", "quantity", "unit", "factory", "status"}, `
			SELECT material_name AS material, batch_no AS batch, quantity,
			       unit, storage_location AS factory, status
			FROM inventory
			ORDER BY updated_at DESC
			LIMIT $1`)
	case models.CategoryTesting:
		return r.queryRows(ctx, category,
			[]string{"material", "batch", "result", "inspector", "date"}, `
			SELECT material_name AS material, batch_no AS batch,
			       test_result AS result, inspector, test_date AS date
			FROM lab_tests
			ORDER BY test_date DESC
			LIMIT $1`)
	case models.CategoryTracking:
		data, err := r.queryRows(ctx, category,
			[]string{"batch", "station", "status", "date"}, `
			SELECT batch_no AS batch, station, status, record_date AS date
			FROM tracking_records
			ORDER BY record_date DESC
			LIMIT $1`)
		if err != nil {
			return nil, err
		}
		// The search index widens tracking retrieval with full-text hits;
		// an unavailable index degrades to Postgres-only.
		if r.es != nil {
			if hits, err := r.searchTracking(ctx, query); err != nil {
				r.logger.Warn("tracking search unavailable", map[string]interface{}{
					"error": err.Error(),
				})
			} else {
				data.Rows = append(data.Rows, hits...)
			}
		}
		return data, nil
	}
	return nil, fmt.Errorf("no data source for category %q", category)
}

func (r *DataRetriever) queryRows(ctx context.Context, category models.RuleCategory, fields []string, sqlText string) (*aigateway.RetrievedData, error) {
	rows, err := r.db.QueryContext(ctx, sqlText, retrieveLimit)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", category, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", category, err)
	}

	data := &aigateway.RetrievedData{Category: category, Fields: fields}
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("retrieve %s: %w", category, err)
		}
		row := make(models.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		data.Rows = append(data.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", category, err)
	}
	return data, nil
}

// searchTracking runs a full-text query over the tracking event index.
func (r *DataRetriever) searchTracking(ctx context.Context, query string) ([]models.Row, error) {
	body := map[string]interface{}{
		"size": 20,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"batch", "station", "status", "note"},
			},
		},
	}
	payload, _ := json.Marshal(body)

	es := r.es.Client
	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(r.esIndex),
		es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.Row `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]models.Row, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
