package repoclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dataops/ingestd/schema"
)

// RowCursor is a pull-based, finite, non-restartable cursor over one
// table's rows. It terminates on the first empty or short page.
type RowCursor struct {
	client    *Client
	datasetID string
	table     string
	offset    int
	limit     int
	done      bool
}

// Rows opens a cursor over the paged table-data endpoint.
func (c *Client) Rows(datasetID, table string, limit int) *RowCursor {
	if limit < 1 {
		limit = 1000
	}
	return &RowCursor{
		client:    c,
		datasetID: datasetID,
		table:     table,
		limit:     limit,
	}
}

// Next returns the next page of rows, or nil once the cursor is exhausted.
func (cur *RowCursor) Next(ctx context.Context) ([]schema.Record, error) {
	if cur.done {
		return nil, nil
	}

	payload := map[string]any{
		"offset": cur.offset,
		"limit":  cur.limit,
		"sort":   "datarepo_row_id",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error in json.Marshal of page request: %w", err)
	}

	respBody, _, err := cur.client.do(ctx, requestOpts{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/datasets/%s/data/%s", cur.datasetID, cur.table),
		body:        body,
		contentType: applicationJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching page at offset %d: %w", cur.offset, err)
	}

	var resp struct {
		Result []schema.Record `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("error in json.Unmarshal of page: %w", err)
	}

	if len(resp.Result) == 0 {
		cur.done = true
		return nil, nil
	}
	if len(resp.Result) < cur.limit {
		cur.done = true
	}
	cur.offset += cur.limit
	return resp.Result, nil
}

// ListTableRows drains a cursor into memory.
func (c *Client) ListTableRows(ctx context.Context, datasetID, table string, limit int) ([]schema.Record, error) {
	cur := c.Rows(datasetID, table, limit)
	var all []schema.Record
	for {
		page, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return all, nil
		}
		all = append(all, page...)
	}
}

// ColumnValues returns the string form of one column across all rows,
// used to filter out records that already exist in the target table.
func (c *Client) ColumnValues(ctx context.Context, datasetID, table, column string, limit int) ([]string, error) {
	rows, err := c.ListTableRows(ctx, datasetID, table, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing rows of %s: %w", table, err)
	}
	vals := make([]string, 0, len(rows))
	for _, row := range rows {
		if v, ok := row[column]; ok && v != nil {
			vals = append(vals, fmt.Sprint(v))
		}
	}
	return vals, nil
}

// RowIDs returns every repository row id in a table, the input for a
// whole-table soft delete.
func (c *Client) RowIDs(ctx context.Context, datasetID, table string, limit int) ([]string, error) {
	return c.ColumnValues(ctx, datasetID, table, "datarepo_row_id", limit)
}

// ExistingFileIDs builds the source-path -> file-identifier map for every
// file already in the dataset. Feeding it to the reformatter skips the
// server-side file lookup for previously-ingested files.
func (c *Client) ExistingFileIDs(ctx context.Context, datasetID string, limit int) (map[string]string, error) {
	if limit < 1 {
		limit = 20000
	}
	ids := make(map[string]string)
	offset := 0
	for {
		query := url.Values{}
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(limit))
		respBody, _, err := c.do(ctx, requestOpts{
			method: http.MethodGet,
			path:   fmt.Sprintf("/datasets/%s/files", datasetID),
			query:  query,
		})
		if err != nil {
			return nil, fmt.Errorf("error listing dataset files at offset %d: %w", offset, err)
		}

		var page []struct {
			FileID     string `json:"fileId"`
			FileDetail struct {
				AccessURL string `json:"accessUrl"`
			} `json:"fileDetail"`
		}
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("error in json.Unmarshal of file page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, f := range page {
			if f.FileDetail.AccessURL != "" {
				ids[f.FileDetail.AccessURL] = f.FileID
			}
		}
		if len(page) < limit {
			break
		}
		offset += limit
	}
	logger.Debug().Int("files", len(ids)).Str("datasetID", datasetID).Msg("built existing file identifier map")
	return ids, nil
}

// GetTableSchema fetches the declared schema of one table in the dataset.
func (c *Client) GetTableSchema(ctx context.Context, datasetID, table string) (schema.TableSchema, error) {
	query := url.Values{}
	query.Set("include", "SCHEMA")
	respBody, _, err := c.do(ctx, requestOpts{
		method: http.MethodGet,
		path:   "/datasets/" + datasetID,
		query:  query,
	})
	if err != nil {
		return schema.TableSchema{}, fmt.Errorf("error getting dataset %s: %w", datasetID, err)
	}

	var resp struct {
		Schema struct {
			Tables []struct {
				Name       string                `json:"name"`
				Columns    []schema.ColumnSchema `json:"columns"`
				PrimaryKey []string              `json:"primaryKey"`
			} `json:"tables"`
		} `json:"schema"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return schema.TableSchema{}, fmt.Errorf("error in json.Unmarshal of dataset schema: %w", err)
	}
	for _, t := range resp.Schema.Tables {
		if t.Name == table {
			ts := schema.TableSchema{
				Name:    t.Name,
				Columns: t.Columns,
			}
			if len(t.PrimaryKey) > 0 {
				ts.PrimaryKey = t.PrimaryKey[0]
			}
			return ts, nil
		}
	}
	return schema.TableSchema{}, fmt.Errorf("table %s not found in dataset %s", table, datasetID)
}
