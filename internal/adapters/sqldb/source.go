// Package sqldb reads raw analysis rows from a relational system of record
// through database/sql. MSSQL is the production driver; postgres and mysql
// are registered for staging copies of the table.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/pkg/errors"

	"github.com/PEAXdata/EFA-datapipeline/internal/adapters/rowcodec"
	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

type Source struct {
	db    *sql.DB
	query string
	loc   *time.Location
	log   *slog.Logger
}

// New opens the configured driver. When table is set the query is a full
// table scan; otherwise the verbatim query is used.
func New(driver, dsn, table, query string, loc *time.Location, log *slog.Logger) (*Source, error) {
	name, err := driverName(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s source", driver)
	}
	return NewFromDB(db, table, query, loc, log), nil
}

// NewFromDB wraps an already-open handle.
func NewFromDB(db *sql.DB, table, query string, loc *time.Location, log *slog.Logger) *Source {
	if table != "" {
		query = fmt.Sprintf("SELECT * FROM %s", table)
	}
	return &Source{db: db, query: query, loc: loc, log: log}
}

func driverName(driver string) (string, error) {
	switch driver {
	case "mssql":
		return "sqlserver", nil
	case "postgres", "mysql":
		return driver, nil
	}
	return "", errors.Errorf("unsupported sql driver %q", driver)
}

func (s *Source) Name() string { return "sqldb" }

func (s *Source) Close() error { return s.db.Close() }

// ReadAll scans every row of the result set. A row whose nested result data
// does not decode is logged and skipped rather than failing the scan; a
// failing query or connection is fatal.
func (s *Source) ReadAll(ctx context.Context) ([]domain.RawRow, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, errors.Wrap(err, "query source")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}

	var out []domain.RawRow
	for rows.Next() {
		vals := make([]any, len(columns))
		for i := range vals {
			vals[i] = new(any)
		}
		if err := rows.Scan(vals...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}

		row, err := s.convert(columns, vals)
		if err != nil {
			s.log.Warn("skipping unreadable source row", slog.String("error", err.Error()))
			continue
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate source rows")
	}
	return out, nil
}

func (s *Source) convert(columns []string, vals []any) (domain.RawRow, error) {
	var (
		wire       rowcodec.WireRow
		sampleDate time.Time
	)

	for i, column := range columns {
		value := *(vals[i].(*any))
		switch column {
		case "orderSampleDataId":
			wire.OrderSampleDataID = rowcodec.FlexString(asString(value))
		case "sampleId":
			wire.SampleID = rowcodec.FlexString(asString(value))
		case "sampleCode":
			wire.SampleCode = rowcodec.FlexString(asString(value))
		case "sampleDescription":
			wire.SampleDescription = asString(value)
		case "analysisPackageCode":
			wire.PackageCode = rowcodec.FlexString(asString(value))
		case "relationId":
			wire.RelationID = rowcodec.FlexString(asString(value))
		case "objectCode":
			wire.ObjectCode = rowcodec.FlexString(asString(value))
		case "resourceId":
			wire.ResourceID = rowcodec.FlexString(asString(value))
		case "sampleDate":
			if ts, ok := value.(time.Time); ok {
				sampleDate = ts.In(s.loc)
			} else {
				wire.SampleDate = asString(value)
			}
		case "resultGroupData":
			raw, err := json.Marshal(asString(value))
			if err != nil {
				return domain.RawRow{}, errors.Wrap(err, "requote result group data")
			}
			wire.ResultGroupData = raw
		}
	}

	row, err := wire.ToDomain(s.loc)
	if err != nil {
		return domain.RawRow{}, err
	}
	if !sampleDate.IsZero() {
		row.SampleDate = sampleDate
	}
	return row, nil
}

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return fmt.Sprint(v)
	}
}

var _ ports.RowSource = (*Source)(nil)
