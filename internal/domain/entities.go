package domain

import (
	"fmt"
	"sort"
	"time"
)

// Field types understood by the telemetry service.
const (
	TypeDouble = "double"
	TypeString = "string"
)

// AttachmentField is the reserved schema key under which a row's binary
// document travels. Before ingestion the Publisher replaces the bytes with a
// remote upload handle stored under the same key.
const AttachmentField = "file"

// NoObjectCode is substituted into an import-check id when the source row
// carries no external object code.
const NoObjectCode = "no-object"

// SchemaField describes one column of a sensor-type schema.
type SchemaField struct {
	Label  string `json:"name"`
	Type   string `json:"type"`
	Metric string `json:"metric"`
}

// SensorType is the remote schema definition for one analysis package.
type SensorType struct {
	ID     string
	Name   string
	Tenant Tenant
	Schema map[string]SchemaField
}

// SensorTypeID derives the natural key for a package code under the given
// schema version tag. An empty tag keeps the bare package code so existing
// remote schemas stay addressable.
func SensorTypeID(packageCode, version string) string {
	if version == "" {
		return packageCode
	}
	return packageCode + "-" + version
}

// Widen resolves two candidate definitions sharing an id: the one with more
// fields wins. Merging never narrows a schema, so a field set observed once
// can only grow across runs.
func (s SensorType) Widen(other SensorType) SensorType {
	if len(other.Schema) > len(s.Schema) {
		return other
	}
	return s
}

// FieldCodes returns the schema keys in a stable order, for building the
// aligned jsonKeys/jsonLabels/dataTypes/metrics arrays of a create call.
func (s SensorType) FieldCodes() []string {
	codes := make([]string, 0, len(s.Schema))
	for code := range s.Schema {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ImportCheck is a named remote ingestion channel bound to one sensor type
// and one tenant.
type ImportCheck struct {
	ID           string
	Name         string
	SensorTypeID string
	Tenant       Tenant
}

// ImportCheckID derives the composite natural key for a sample stream.
func ImportCheckID(objectCode, sensorTypeID string) string {
	if objectCode == "" {
		objectCode = NoObjectCode
	}
	return fmt.Sprintf("%s - %s", objectCode, sensorTypeID)
}

// IngestRecord is one timestamped reading batch destined for an import
// check. Attachment carries the raw document bytes until the Publisher swaps
// them for an upload handle under the AttachmentField data key.
type IngestRecord struct {
	CheckID    string
	OrderID    string
	Tenant     Tenant
	Data       map[string]any
	Attachment []byte
	Timestamp  time.Time
}
