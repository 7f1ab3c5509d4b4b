package http_server

import (
	"errors"
	"net/http"

	"github.com/dataops/ingestd/recordio"
	"github.com/dataops/ingestd/schema"
)

type (
	InferReqBody struct {
		Table string `json:"table" validate:"required"`
		// Rows are inline records. RowsNDJSON is an alternative,
		// newline-delimited encoding of the same.
		Rows       []schema.Record `json:"rows"`
		RowsNDJSON string          `json:"rowsNDJSON"`

		PrimaryKey           string `json:"primaryKey"`
		AllFieldsNonRequired bool   `json:"allFieldsNonRequired"`
		AllowDisparateTypes  bool   `json:"allowDisparateTypes"`
	}

	InferErrorResponse struct {
		Error   string   `json:"error"`
		Table   string   `json:"table"`
		Columns []string `json:"columns"`
	}
)

func (s *HTTPServer) InferSchema(c *CustomContext) error {
	var reqBody InferReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	records := reqBody.Rows
	if len(records) == 0 && reqBody.RowsNDJSON != "" {
		var err error
		records, err = recordio.ParseNDJSON(reqBody.RowsNDJSON)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
	}
	if len(records) == 0 {
		return c.String(http.StatusBadRequest, "no rows provided")
	}

	ts, err := schema.NewInferencer(records, reqBody.Table, schema.InferOptions{
		AllFieldsNonRequired: reqBody.AllFieldsNonRequired,
		AllowDisparateTypes:  reqBody.AllowDisparateTypes,
		PrimaryKey:           reqBody.PrimaryKey,
	}).Infer()
	if err != nil {
		var infErr *schema.InferenceError
		if errors.As(err, &infErr) {
			return c.JSON(http.StatusBadRequest, InferErrorResponse{
				Error:   infErr.Error(),
				Table:   infErr.Table,
				Columns: infErr.Columns,
			})
		}
		return c.InternalError(err, "error inferring schema")
	}

	return c.JSON(http.StatusOK, ts)
}
