package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/chemviz/chemviz/pkg/models"
)

// Backend paths, relative to the API root
const (
	PathLogin    = "/auth/api-token-auth/"
	PathRegister = "/register/"
	PathHistory  = "/history/"
	PathUpload   = "/upload/"
)

// SummaryPath is the stored-summary endpoint for one record
func SummaryPath(id int64) string {
	return fmt.Sprintf("/summary/%d/", id)
}

// ReportPath is the PDF generation endpoint for one record
func ReportPath(id int64) string {
	return fmt.Sprintf("/generate_pdf/%d/", id)
}

// TokenResponse is the body of a successful login or registration
type TokenResponse struct {
	Token string `json:"token"`
}

// UploadResponse is the body of a successful upload. Summary is nil when
// the backend omitted it.
type UploadResponse struct {
	ID      int64           `json:"id"`
	Summary *models.Summary `json:"summary"`
}

// SummaryResponse is the stored summary of one record
type SummaryResponse struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Summary *models.Summary `json:"summary"`
}

// ExchangeCredentials posts username and password form-encoded to path and
// decodes the token body. An empty token is not treated as an error here.
func (c *Client) ExchangeCredentials(ctx context.Context, path, username, password string) (TokenResponse, error) {
	values := url.Values{}
	values.Set("username", username)
	values.Set("password", password)

	resp, err := c.PostForm(ctx, path, values)
	if err != nil {
		return TokenResponse{}, err
	}

	var out TokenResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// History fetches the upload history, normalized to a slice
func (c *Client) History(ctx context.Context) ([]models.UploadRecord, error) {
	resp, err := c.Do(ctx, http.MethodGet, PathHistory, nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodeHistory(resp.Body)
}

// DecodeHistory accepts either a list of records or a single record object
// (null and empty bodies decode to no records). The backend has returned both
// shapes, so the union is settled here once.
func DecodeHistory(data []byte) ([]models.UploadRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []models.UploadRecord{}, nil
	}

	switch trimmed[0] {
	case '[':
		var records []models.UploadRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if records == nil {
			records = []models.UploadRecord{}
		}
		return records, nil
	case '{':
		var record models.UploadRecord
		if err := json.Unmarshal(trimmed, &record); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return []models.UploadRecord{record}, nil
	default:
		return nil, fmt.Errorf("%w: history is neither a list nor an object", ErrMalformedResponse)
	}
}

// Upload posts the file as multipart with fields "file" and "name"
func (c *Client) Upload(ctx context.Context, name string, file io.Reader) (UploadResponse, error) {
	resp, err := c.PostMultipart(ctx, PathUpload, "file", name, file, map[string]string{"name": name})
	if err != nil {
		return UploadResponse{}, err
	}

	var out UploadResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return UploadResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// Summary fetches the stored summary for one record
func (c *Client) Summary(ctx context.Context, id int64) (SummaryResponse, error) {
	var out SummaryResponse
	if err := c.GetJSON(ctx, SummaryPath(id), &out); err != nil {
		return SummaryResponse{}, err
	}
	return out, nil
}

// ReportPDF downloads the generated PDF for one record
func (c *Client) ReportPDF(ctx context.Context, id int64) ([]byte, error) {
	headers := http.Header{}
	headers.Set("Accept", "application/pdf")
	resp, err := c.Do(ctx, http.MethodGet, ReportPath(id), nil, headers)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
