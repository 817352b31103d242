// Package csvimport reads challenge rows from CSV uploads.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/model"
)

// ParseChallenges reads a CSV with a header row containing "title" and
// "description" columns (any order, any case). Extra columns are ignored.
// Rows are returned as-is; filtering empty ones is left to the catalog.
func ParseChallenges(r io.Reader) ([]model.ChallengeInput, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errs.New(errs.ErrValidation, "csv: empty file")
	}
	if err != nil {
		return nil, errs.New(errs.ErrValidation, fmt.Sprintf("csv: %v", err))
	}

	titleIdx, descIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "title":
			titleIdx = i
		case "description":
			descIdx = i
		}
	}
	if titleIdx < 0 || descIdx < 0 {
		return nil, errs.New(errs.ErrValidation, "csv: header must contain title and description")
	}

	out := []model.ChallengeInput{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.New(errs.ErrValidation, fmt.Sprintf("csv: %v", err))
		}
		out = append(out, model.ChallengeInput{
			Title:       field(rec, titleIdx),
			Description: field(rec, descIdx),
		})
	}
	return out, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}
