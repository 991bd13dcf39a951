package ports

import (
	"context"

	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
)

// RowSource yields every raw analysis row the system of record currently
// holds. Implementations are expected to be cheap to construct and to do all
// I/O inside ReadAll.
type RowSource interface {
	ReadAll(ctx context.Context) ([]domain.RawRow, error)
	Name() string
}
