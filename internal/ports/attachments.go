package ports

import (
	"context"
	"errors"

	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
)

// ErrAttachmentNotFound reports that the document service has no attachment
// for a row. The owning ingest record is dropped, not ingested without it.
var ErrAttachmentNotFound = errors.New("attachment not found")

// AttachmentStore retrieves the binary document (lab report PDF) belonging
// to one raw row.
type AttachmentStore interface {
	Fetch(ctx context.Context, row domain.RawRow) ([]byte, error)
}
