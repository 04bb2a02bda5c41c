package app

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
)

// defaultDownloadTimeout bounds a single recording fetch.
const defaultDownloadTimeout = 30 * time.Second

// httpDownloader fetches a call recording over HTTP(S) and derives its
// container format from the Content-Type header, falling back to the URL's
// file extension.
type httpDownloader struct {
	client *http.Client
}

func newHTTPDownloader() *httpDownloader {
	return &httpDownloader{client: &http.Client{Timeout: defaultDownloadTimeout}}
}

// Download implements worker.Downloader.
func (d *httpDownloader) Download(ctx context.Context, recordingURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("download: create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("download: read response body: %w", err)
	}

	format := formatFromContentType(resp.Header.Get("Content-Type"))
	if format == "" {
		format = formatFromURL(recordingURL)
	}
	return data, format, nil
}

// formatFromContentType maps a MIME type to the short format tag
// transcriber.Provider.Transcribe expects (e.g. "wav", "mp3").
func formatFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/basic", "audio/mulaw", "audio/x-mulaw":
		return "mulaw"
	default:
		return ""
	}
}

// formatFromURL falls back to the recording URL's file extension.
func formatFromURL(recordingURL string) string {
	ext := strings.TrimPrefix(path.Ext(recordingURL), ".")
	return strings.ToLower(ext)
}
