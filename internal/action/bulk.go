package action

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// BulkColumns must appear in the header of a bulk user CSV.
var BulkColumns = []string{"DisplayName", "UserPrincipalName"}

// CSVError describes a bulk CSV that the script would reject.
type CSVError struct {
	Path   string
	Reason string
}

func (e *CSVError) Error() string { return fmt.Sprintf("%s: %s", e.Path, e.Reason) }

// CheckCSV validates the header and counts the data rows of a bulk CSV.
func CheckCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &CSVError{Path: path, Reason: err.Error()}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return 0, &CSVError{Path: path, Reason: "file is empty"}
	}
	if err != nil {
		return 0, &CSVError{Path: path, Reason: err.Error()}
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	var missing []string
	for _, col := range BulkColumns {
		if !slices.ContainsFunc(header, func(h string) bool { return strings.EqualFold(h, col) }) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return 0, &CSVError{Path: path, Reason: "missing column(s): " + strings.Join(missing, ", ")}
	}

	rows := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, &CSVError{Path: path, Reason: err.Error()}
		}
		if slices.ContainsFunc(rec, func(s string) bool { return strings.TrimSpace(s) != "" }) {
			rows++
		}
	}
	if rows == 0 {
		return 0, &CSVError{Path: path, Reason: "no data rows"}
	}
	return rows, nil
}

// bulkCreate checks the CSV before handing it to the script, passing the
// path as an absolute path so the script's working directory does not
// matter.
func (e *Engine) bulkCreate(ctx context.Context, c *Call) (*Run, error) {
	input := cloneInput(c.Input)
	path, _ := input["CsvPath"].(string)
	path = strings.TrimSpace(path)
	if !filepath.IsAbs(path) && e.Builder.Dir != "" {
		path = filepath.Join(e.Builder.Dir, path)
	}
	rows, err := CheckCSV(path)
	if err != nil {
		return nil, err
	}
	Logger.Printf("bulk_create_users: %d row(s) in %s", rows, path)

	input["CsvPath"] = path
	params, err := c.Action.Params(input)
	if err != nil {
		return nil, err
	}
	return e.launch(ctx, &Call{Action: c.Action, Input: input, Params: params, OnLine: c.OnLine})
}
