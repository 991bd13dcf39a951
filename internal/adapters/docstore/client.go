// Package docstore retrieves the lab report document belonging to one
// analysis row from the lab's resource service.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

const resourceTypePDF = 3

type Client struct {
	http     *retryablehttp.Client
	endpoint string
}

func New(endpoint string, timeout time.Duration) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil
	return &Client{http: rc, endpoint: endpoint}
}

type resourceRequest struct {
	RelationID     string `json:"relationId"`
	ResourceID     string `json:"resourceId"`
	ResourceTypeID int    `json:"resourceTypeId"`
}

// Fetch returns the PDF bytes for the row, or ports.ErrAttachmentNotFound
// when the service has no document for it.
func (c *Client) Fetch(ctx context.Context, row domain.RawRow) ([]byte, error) {
	payload, err := json.Marshal(resourceRequest{
		RelationID:     row.RelationID,
		ResourceID:     row.ResourceID,
		ResourceTypeID: resourceTypePDF,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal resource request")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build resource request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "document service")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ports.ErrAttachmentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("document service: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var _ ports.AttachmentStore = (*Client)(nil)
