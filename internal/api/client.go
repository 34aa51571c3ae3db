package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	syncerrors "github.com/mira-labs/syncd/internal/errors"
	"github.com/mira-labs/syncd/internal/model"
)

const (
	httpClientTimeout   = 30 * time.Second
	maxAPIResponseBytes = 1024 * 1024
	maxRedirects        = 10
)

// HTTPClient talks to the sync server over HTTP, grounded on
// original_source/src/ApiClient.cpp for wire shape and on the
// teacher's obsidian/client.go for HTTP plumbing (transient-error
// classification, same-host redirect policy, response-size capping).
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	userEmail  string
}

// NewHTTPClient builds an HTTPClient. If httpClient is nil, one with
// a 30-second timeout and same-host redirect policy is created.
func NewHTTPClient(baseURL, userEmail string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &HTTPClient{httpClient: httpClient, baseURL: strings.TrimSuffix(baseURL, "/"), userEmail: userEmail}
}

func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}

	if len(via) > 0 && req.URL.Host != via[0].URL.Host {
		return fmt.Errorf("redirect to different host blocked: %s -> %s", via[0].URL.Host, req.URL.Host)
	}

	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, syncerrors.Wrap(syncerrors.KindTransientNetwork, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}

	var apiErr APIError
	if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
		err := fmt.Errorf("API %s: %s", path, apiErr.Error)
		if isTransientStatus(resp.StatusCode) || isTransientMessage(apiErr.Error) {
			return nil, syncerrors.Wrap(syncerrors.KindTransientNetwork, path, err)
		}

		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API %s returned status %d: %s", path, resp.StatusCode, sanitizeResponseBody(respBody))
		if isTransientStatus(resp.StatusCode) {
			return nil, syncerrors.Wrap(syncerrors.KindTransientNetwork, path, err)
		}

		return nil, err
	}

	return respBody, nil
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)

	return strings.Contains(lower, "overloaded") || strings.Contains(lower, "try again") || strings.Contains(lower, "temporarily unavailable")
}

func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return '?'
		}

		return r
	}, string(body))
}

// GetMetadata fetches the cloud's authoritative file and directory
// listing. Grounded on ApiClient::getMetadata, including its
// device/directory -> path reconstruction rule.
func (c *HTTPClient) GetMetadata(ctx context.Context) (model.CloudMetadata, error) {
	path := "/getSyncItems?username=" + percentEncode(c.userEmail)

	body, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return model.CloudMetadata{}, fmt.Errorf("fetching metadata: %w", err)
	}

	var resp getMetadataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.CloudMetadata{}, fmt.Errorf("decoding metadata: %w", err)
	}

	var result model.CloudMetadata

	for _, item := range resp.Items {
		if item.Type == "file" {
			result.Files = append(result.Files, model.CloudFile{
				UUID:         item.UUID,
				Filename:     item.Filename,
				Path:         reconstructFilePath(item.Device, item.Directory),
				Origin:       item.Origin,
				HashValue:    item.Checksum,
				Size:         item.Size,
				LastModified: item.MTime,
				Versions:     item.Version,
				ConflictID:   derefOrEmpty(item.ConflictID),
			})

			continue
		}

		result.Directories = append(result.Directories, model.CloudDirectory{
			UUID:      item.UUID,
			Device:    item.Device,
			Folder:    item.Folder,
			Path:      item.Path,
			CreatedAt: item.CreatedAt,
		})
	}

	return result, nil
}

func reconstructFilePath(device, directory string) string {
	switch {
	case device == "" || device == "/":
		return "/"
	case directory == "" || directory == "/":
		return "/" + device
	default:
		return "/" + device + "/" + directory
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// Download streams file content from the cloud into localAbsPath.
func (c *HTTPClient) Download(ctx context.Context, file model.CloudFile, localAbsPath string) error {
	parts := model.ParsePath(file.Path)

	path := "/syncDownFile?" + buildQuery(
		queryParam{"file", file.Filename},
		queryParam{"dir", parts.Folder},
		queryParam{"device", parts.Device},
		queryParam{"uuid", file.UUID},
		queryParam{"db", "file"},
		queryParam{"username", c.userEmail},
	)

	body, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return fmt.Errorf("downloading %s: %w", file.Filename, err)
	}

	if err := os.MkdirAll(filepath.Dir(localAbsPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", localAbsPath, err)
	}

	if err := os.WriteFile(localAbsPath, body, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", localAbsPath, err)
	}

	return nil
}

// Upload sends a queued file's content and metadata as a multipart
// request. Grounded on ApiClient::uploadFile.
func (c *HTTPClient) Upload(ctx context.Context, entry model.FileQueueEntry, pathIDs []string) (string, error) {
	content, err := os.ReadFile(entry.File.AbsPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", entry.File.AbsPath, err)
	}

	parts := model.ParsePath(entry.File.Path)

	stat := uploadFileStat{
		Filename:   entry.File.Filename,
		Directory:  parts.Folder,
		Device:     parts.Device,
		UUID:       entry.File.UUID,
		Origin:     entry.File.Origin,
		Checksum:   entry.File.HashValue,
		Size:       entry.File.Size,
		MTime:      entry.File.LastModified,
		Username:   c.userEmail,
		Version:    entry.File.Versions,
		IsModified: entry.SyncStatus == "modified",
		PathIDs:    pathIDs,
		FileType:   fileExtension(entry.File.Filename),
	}

	statJSON, err := json.Marshal(stat)
	if err != nil {
		return "", fmt.Errorf("marshalling upload metadata: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fw, err := writer.CreateFormFile("file", entry.File.Filename)
	if err != nil {
		return "", fmt.Errorf("creating multipart file field: %w", err)
	}

	if _, err := fw.Write(content); err != nil {
		return "", fmt.Errorf("writing multipart file content: %w", err)
	}

	if err := writer.WriteField("filestat", string(statJSON)); err != nil {
		return "", fmt.Errorf("writing multipart filestat field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/syncUpFile", buf.Bytes(), writer.FormDataContentType())
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", entry.File.Filename, err)
	}

	var resp uploadFileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}

	return resp.ID, nil
}

func fileExtension(filename string) string {
	ext := filepath.Ext(filename)
	return strings.TrimPrefix(ext, ".")
}

// Delete removes a file from the cloud.
func (c *HTTPClient) Delete(ctx context.Context, entry model.FileQueueEntry) error {
	parts := model.ParsePath(entry.File.Path)

	pathInfo := "device=" + percentEncode(parts.Device) + "&dir=" + percentEncode(parts.Folder) + "&file=" + percentEncode(entry.File.Filename)

	req := deleteFilesRequest{
		Username:    c.userEmail,
		Directories: []string{},
		FileIDs: []deleteFileID{{
			ID:       entry.File.UUID,
			Origin:   entry.File.UUID,
			Dir:      parts.Folder,
			Versions: 1,
			Path:     pathInfo,
		}},
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshalling delete request: %w", err)
	}

	if _, err := c.do(ctx, http.MethodDelete, "/deleteFiles", payload, "application/json"); err != nil {
		return fmt.Errorf("deleting %s: %w", entry.File.Filename, err)
	}

	return nil
}

// Rename renames a file in the cloud.
func (c *HTTPClient) Rename(ctx context.Context, entry model.FileQueueEntry) error {
	parts := model.ParsePath(entry.File.Path)

	oldFilename := ""
	if entry.OldFilename != nil {
		oldFilename = *entry.OldFilename
	}

	req := renameFileRequest{Data: renameFileData{
		Type:     "fi",
		Dir:      parts.Folder,
		Device:   parts.Device,
		Filename: oldFilename,
		To:       entry.File.Filename,
		Origin:   entry.File.Origin,
		Username: c.userEmail,
	}}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshalling rename request: %w", err)
	}

	if _, err := c.do(ctx, http.MethodPost, "/renameFile", payload, "application/json"); err != nil {
		return fmt.Errorf("renaming to %s: %w", entry.File.Filename, err)
	}

	return nil
}

// CreateFolder creates a directory in the cloud.
func (c *HTTPClient) CreateFolder(ctx context.Context, dir model.Directory) error {
	path := "/createFolder?" + buildQuery(
		queryParam{"path", dir.Path},
		queryParam{"device", dir.Device},
		queryParam{"username", c.userEmail},
		queryParam{"uuid", dir.UUID},
		queryParam{"folder", dir.Folder},
	)

	if _, err := c.do(ctx, http.MethodPost, path, nil, ""); err != nil {
		return fmt.Errorf("creating folder %s: %w", dir.Path, err)
	}

	return nil
}

// DeleteFolder removes a directory from the cloud.
func (c *HTTPClient) DeleteFolder(ctx context.Context, dir model.Directory) error {
	parts := model.ParsePath(dir.Path)

	path := "/deleteFolder?" + buildQuery(
		queryParam{"path", dir.Path},
		queryParam{"folder", dir.Folder},
		queryParam{"directory", parts.Folder},
		queryParam{"username", c.userEmail},
		queryParam{"device", dir.Device},
	)

	if _, err := c.do(ctx, http.MethodDelete, path, nil, ""); err != nil {
		return fmt.Errorf("deleting folder %s: %w", dir.Path, err)
	}

	return nil
}

// RenameFolder renames a directory in the cloud.
func (c *HTTPClient) RenameFolder(ctx context.Context, entry model.DirectoryQueueEntry) error {
	oldPath := ""
	if entry.OldPath != nil {
		oldPath = *entry.OldPath
	}

	req := renameFolderRequest{OldPath: oldPath, NewPath: entry.Directory.Path, Username: c.userEmail}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshalling rename folder request: %w", err)
	}

	if _, err := c.do(ctx, http.MethodPost, "/renameFolder", payload, "application/json"); err != nil {
		return fmt.Errorf("renaming folder to %s: %w", entry.Directory.Path, err)
	}

	return nil
}
