package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
)

// MaxUploadSize is the largest file UploadFile accepts (100 MiB).
// A file of exactly this size is allowed.
const MaxUploadSize int64 = 100 << 20

// File endpoint paths.
const (
	filesPath = "/api/files/"

	uploadField = "file"

	duplicateMarker = "already been processed recently"
)

// Upload describes a file to send. Open is called once per attempt so a
// retried upload re-reads the content from the start.
type Upload struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// ListFiles returns the current user's uploaded files.
func (c *Client) ListFiles(ctx context.Context, auth Authorizer) ([]FileRecord, error) {
	resp, err := c.do(ctx, auth, http.MethodGet, filesPath, jsonHeader(), nil)
	if err != nil {
		return nil, fmt.Errorf("portal: listing files: %w", err)
	}

	if err := classifyResponse(resp); err != nil {
		return nil, fmt.Errorf("portal: listing files: %w", err)
	}

	var files []FileRecord
	if err := decodeJSON(resp, &files); err != nil {
		return nil, err
	}

	c.logger.Debug("listed files", slog.Int("count", len(files)))

	return files, nil
}

// UploadFile sends u as multipart form field "file". Files larger than the
// configured limit fail with ErrFileTooLarge before any network I/O.
func (c *Client) UploadFile(ctx context.Context, auth Authorizer, u Upload) (*FileRecord, error) {
	if u.Size > c.maxUploadSize {
		return nil, fmt.Errorf("portal: uploading %q: %w: %d bytes exceeds %d",
			u.Name, ErrFileTooLarge, u.Size, c.maxUploadSize)
	}

	c.logger.Info("uploading file",
		slog.String("name", u.Name),
		slog.Int64("size", u.Size),
	)

	form, err := newUploadForm(u)
	if err != nil {
		return nil, fmt.Errorf("portal: uploading %q: %w", u.Name, err)
	}

	header := http.Header{}
	header.Set("Content-Type", form.contentType)

	resp, err := c.Execute(ctx, &Request{
		Method:        http.MethodPost,
		URL:           c.url(filesPath),
		Header:        header,
		GetBody:       form.open,
		ContentLength: form.length(),
	}, auth.AccessToken(), auth.RefreshAccessToken)
	if err != nil {
		return nil, fmt.Errorf("portal: uploading %q: %w", u.Name, err)
	}

	if err := classifyUpload(resp); err != nil {
		c.logger.Info("upload rejected",
			slog.String("name", u.Name),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("portal: uploading %q: %w", u.Name, err)
	}

	var rec FileRecord
	if err := decodeJSON(resp, &rec); err != nil {
		return nil, err
	}

	c.logger.Info("upload complete",
		slog.String("name", u.Name),
		slog.Int64("id", rec.ID),
	)

	return &rec, nil
}

// DeleteFile removes a file by ID.
func (c *Client) DeleteFile(ctx context.Context, auth Authorizer, id int64) error {
	resp, err := c.do(ctx, auth, http.MethodDelete, filePath(id), nil, nil)
	if err != nil {
		return fmt.Errorf("portal: deleting file %d: %w", id, err)
	}

	if err := classifyResponse(resp); err != nil {
		return fmt.Errorf("portal: deleting file %d: %w", id, err)
	}

	resp.Body.Close()

	c.logger.Info("deleted file", slog.Int64("id", id))

	return nil
}

// GetFileDetail fetches one file record.
func (c *Client) GetFileDetail(ctx context.Context, auth Authorizer, id int64) (*FileRecord, error) {
	resp, err := c.do(ctx, auth, http.MethodGet, filePath(id), jsonHeader(), nil)
	if err != nil {
		return nil, fmt.Errorf("portal: getting file %d: %w", id, err)
	}

	if err := classifyResponse(resp); err != nil {
		return nil, fmt.Errorf("portal: getting file %d: %w", id, err)
	}

	var rec FileRecord
	if err := decodeJSON(resp, &rec); err != nil {
		return nil, err
	}

	return &rec, nil
}

// DownloadFile streams the stored content of a file into w and returns
// the number of bytes written.
func (c *Client) DownloadFile(ctx context.Context, auth Authorizer, id int64, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, auth, http.MethodGet, filePath(id)+"download/", nil, nil)
	if err != nil {
		return 0, fmt.Errorf("portal: downloading file %d: %w", id, err)
	}

	if err := classifyResponse(resp); err != nil {
		return 0, fmt.Errorf("portal: downloading file %d: %w", id, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("portal: downloading file %d: %w", id, err)
	}

	c.logger.Debug("downloaded file",
		slog.Int64("id", id),
		slog.Int64("bytes", n),
	)

	return n, nil
}

// do runs an authenticated request against an API path.
func (c *Client) do(
	ctx context.Context, auth Authorizer, method, path string, header http.Header,
	getBody func() (io.ReadCloser, error),
) (*http.Response, error) {
	return c.Execute(ctx, &Request{
		Method:  method,
		URL:     c.url(path),
		Header:  header,
		GetBody: getBody,
	}, auth.AccessToken(), auth.RefreshAccessToken)
}

func filePath(id int64) string {
	return fmt.Sprintf("%s%d/", filesPath, id)
}

// uploadForm is a single-part multipart body with a fresh boundary. The
// framing is built once; the file content is streamed between it on every
// attempt so large files are never buffered in memory.
type uploadForm struct {
	upload      Upload
	contentType string
	prefix      []byte
	suffix      []byte
}

func newUploadForm(u Upload) (*uploadForm, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)
	if _, err := mw.CreateFormFile(uploadField, u.Name); err != nil {
		return nil, fmt.Errorf("building form header: %w", err)
	}

	prefix := bytes.Clone(buf.Bytes())
	buf.Reset()

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building form trailer: %w", err)
	}

	return &uploadForm{
		upload:      u,
		contentType: mw.FormDataContentType(),
		prefix:      prefix,
		suffix:      bytes.Clone(buf.Bytes()),
	}, nil
}

// length is the exact number of bytes open yields.
func (f *uploadForm) length() int64 {
	return int64(len(f.prefix)) + f.upload.Size + int64(len(f.suffix))
}

func (f *uploadForm) open() (io.ReadCloser, error) {
	src, err := f.upload.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", f.upload.Name, err)
	}

	body := io.MultiReader(
		bytes.NewReader(f.prefix),
		&sizedReader{r: src, remaining: f.upload.Size},
		bytes.NewReader(f.suffix),
	)

	return struct {
		io.Reader
		io.Closer
	}{body, src}, nil
}

// sizedReader yields exactly remaining bytes from r and fails with
// ErrUploadSizeChanged when r ends early or has more to give.
type sizedReader struct {
	r         io.Reader
	remaining int64
}

func (s *sizedReader) Read(p []byte) (int, error) {
	if s.remaining <= 0 {
		var extra [1]byte
		if n, _ := io.ReadFull(s.r, extra[:]); n > 0 {
			return 0, ErrUploadSizeChanged
		}

		return 0, io.EOF
	}

	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}

	n, err := s.r.Read(p)
	s.remaining -= int64(n)

	if errors.Is(err, io.EOF) && s.remaining > 0 {
		return n, ErrUploadSizeChanged
	}

	if errors.Is(err, io.EOF) {
		return n, nil
	}

	return n, err
}

// classifyResponse returns nil for 2xx and otherwise reads and closes the
// body, returning an *APIError. 401 maps to ErrUnauthorized, everything
// else (400 included) to ErrRequestFailed.
func classifyResponse(resp *http.Response) error {
	if isSuccess(resp.StatusCode) {
		return nil
	}

	return statusError(resp, classifyStatus(resp.StatusCode))
}

// uploadErrorBody is the backend's upload rejection payload.
type uploadErrorBody struct {
	Error string `json:"error"`
}

// classifyUpload is classifyResponse plus the upload-only 400 handling:
// a duplicate marker yields ErrDuplicateFile, any other 400 ErrBadRequest
// carrying the server's error text.
func classifyUpload(resp *http.Response) error {
	if resp.StatusCode != http.StatusBadRequest {
		return classifyResponse(resp)
	}

	apiErr := statusError(resp, ErrBadRequest)

	var parsed uploadErrorBody
	if err := json.Unmarshal([]byte(apiErr.Message), &parsed); err != nil {
		return apiErr
	}

	if strings.Contains(parsed.Error, duplicateMarker) {
		apiErr.Err = ErrDuplicateFile
	}

	if parsed.Error != "" {
		apiErr.Message = parsed.Error
	}

	return apiErr
}
