package domain

import "time"

// ResultPoint is one measured value inside a raw row's result group.
type ResultPoint struct {
	Code        string `json:"origin_code"`
	Description string `json:"result_description"`
	Value       string `json:"result_value"`
	Unit        string `json:"result_unit_of_measure_description"`
}

// RawRow is one analysis result row as delivered by a row source. Rows are
// transient: they live for the duration of a single sync run and are never
// persisted.
type RawRow struct {
	OrderID           string        `json:"order_sample_data_id"`
	SampleID          string        `json:"sample_id"`
	SampleCode        string        `json:"sample_code"`
	SampleDescription string        `json:"sample_description"`
	PackageCode       string        `json:"analysis_package_code"`
	SampleDate        time.Time     `json:"sample_date"`
	RelationID        string        `json:"relation_id"`
	ObjectCode        string        `json:"object_code"`
	ResourceID        string        `json:"resource_id"`
	ResultPoints      []ResultPoint `json:"result_group_data"`
}

// Tenant identifies the remote account that owns a created entity. The zero
// value is not a valid tenant; rows that cannot be matched to a configured
// tenant fall back to the configured default.
type Tenant struct {
	APIKey       string `json:"api_key" yaml:"api_key"`
	Organization string `json:"organization" yaml:"organization"`
}

// IsZero reports whether the tenant carries no credentials.
func (t Tenant) IsZero() bool {
	return t.APIKey == "" && t.Organization == ""
}
