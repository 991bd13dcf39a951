// Package rowcodec decodes the loosely-typed wire shape of lab result rows
// shared by the SQL and file-snapshot sources: camelCase keys, numeric or
// string identifiers, and a nested result-group collection that arrives
// either as a JSON array or as a JSON string containing one.
package rowcodec

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
)

// FlexString accepts JSON strings and numbers alike; lab exports are not
// consistent about quoting identifiers.
type FlexString string

func (f *FlexString) UnmarshalJSON(raw []byte) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*f = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// WireRow is one raw row as exported by the system of record.
type WireRow struct {
	OrderSampleDataID FlexString      `json:"orderSampleDataId"`
	SampleID          FlexString      `json:"sampleId"`
	SampleCode        FlexString      `json:"sampleCode"`
	SampleDescription string          `json:"sampleDescription"`
	SampleDate        string          `json:"sampleDate"`
	PackageCode       FlexString      `json:"analysisPackageCode"`
	RelationID        FlexString      `json:"relationId"`
	ObjectCode        FlexString      `json:"objectCode"`
	ResourceID        FlexString      `json:"resourceId"`
	ResultGroupData   json.RawMessage `json:"resultGroupData"`
}

type wirePoint struct {
	ResultDescription string     `json:"resultDescription"`
	ResultValue       FlexString `json:"resultValue"`
	OriginCode        FlexString `json:"originCode"`
	Unit              string     `json:"resultUnitOfMeasureDescription"`
}

type wireGroup struct {
	ResultData []wirePoint `json:"resultData"`
}

// DecodeResultGroups flattens the nested result-group collection into result
// points.
func DecodeResultGroups(raw []byte) ([]domain.ResultPoint, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	// A DB column stores the collection as a JSON string; unwrap one level.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, errors.Wrap(err, "unwrap result group string")
		}
		raw = []byte(inner)
	}

	var groups []wireGroup
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, errors.Wrap(err, "decode result groups")
	}

	var points []domain.ResultPoint
	for _, group := range groups {
		for _, p := range group.ResultData {
			points = append(points, domain.ResultPoint{
				Code:        string(p.OriginCode),
				Description: p.ResultDescription,
				Value:       string(p.ResultValue),
				Unit:        p.Unit,
			})
		}
	}
	return points, nil
}

// ParseSampleDate accepts the date-only export format and full timestamps.
func ParseSampleDate(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.Errorf("unparseable sample date %q", value)
}

// ToDomain converts one wire row; the caller supplies the timezone samples
// are dated in.
func (w WireRow) ToDomain(loc *time.Location) (domain.RawRow, error) {
	points, err := DecodeResultGroups(w.ResultGroupData)
	if err != nil {
		return domain.RawRow{}, err
	}

	row := domain.RawRow{
		OrderID:           string(w.OrderSampleDataID),
		SampleID:          string(w.SampleID),
		SampleCode:        string(w.SampleCode),
		SampleDescription: w.SampleDescription,
		PackageCode:       string(w.PackageCode),
		RelationID:        string(w.RelationID),
		ObjectCode:        string(w.ObjectCode),
		ResourceID:        string(w.ResourceID),
		ResultPoints:      points,
	}
	if w.SampleDate != "" {
		ts, err := ParseSampleDate(w.SampleDate, loc)
		if err != nil {
			return domain.RawRow{}, err
		}
		row.SampleDate = ts
	}
	return row, nil
}
