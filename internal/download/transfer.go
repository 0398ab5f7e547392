package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"

	"audiothek/internal/fileutil"
	"audiothek/internal/logging"
	"audiothek/internal/services"
)

// errorBodyLimit is the size below which an audio body is checked for an
// error page served with a success status.
const errorBodyLimit = 1000

var errorBodyMarkers = [][]byte{
	[]byte("not found"),
	[]byte("error"),
	[]byte("deleted"),
	[]byte("removed"),
	[]byte("unavailable"),
	[]byte("404"),
}

// fetch downloads url into path, retrying transient failures with capped
// exponential backoff. checkBody enables the error page heuristic.
func (e *Executor) fetch(ctx context.Context, url, path string, checkBody bool) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			wait := services.Backoff(attempt, e.backoff, e.maxBackoff)
			wait += rand.N(wait/5 + 1)
			e.logger.Debug("retrying transfer",
				logging.String("url", url),
				logging.Int("attempt", attempt),
				logging.Duration("wait", wait),
				logging.Error(lastErr),
			)
			if err := services.SleepWithContext(ctx, wait); err != nil {
				return 0, err
			}
		}
		written, err := e.fetchOnce(ctx, url, path, checkBody)
		if err == nil {
			return written, nil
		}
		lastErr = err
		if errors.Is(err, services.ErrUnavailable) || !services.IsRetriable(err) {
			break
		}
	}
	switch {
	case errors.Is(lastErr, services.ErrUnavailable), errors.Is(lastErr, services.ErrIncompleteTransfer):
		return 0, lastErr
	default:
		return 0, services.Wrap(services.ErrDownload, "download", "fetch", url, lastErr)
	}
}

func (e *Executor) fetchOnce(ctx context.Context, url, path string, checkBody bool) (int64, error) {
	resp, err := e.get(ctx, http.MethodGet, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	pending, err := fileutil.NewPendingFile(path)
	if err != nil {
		return 0, fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	head := &prefixBuffer{limit: errorBodyLimit}
	written, err := io.Copy(io.MultiWriter(pending, head), resp.Body)
	if err != nil {
		return written, services.Wrap(services.ErrIncompleteTransfer, "download", "read", fmt.Sprintf("%s after %d bytes", url, written), err)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return written, services.Wrap(services.ErrIncompleteTransfer, "download", "read", fmt.Sprintf("%s: got %d of %d bytes", url, written, resp.ContentLength), nil)
	}
	if written == 0 {
		return 0, services.Wrap(services.ErrIncompleteTransfer, "download", "read", url+": empty body", nil)
	}
	if checkBody && written < errorBodyLimit && looksLikeErrorPage(head.Bytes()) {
		return 0, services.Wrap(services.ErrUnavailable, "download", "read", url+": server returned an error page", nil)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("install %s: %w", path, err)
	}
	return written, nil
}

// RemoteSize asks the server for the size of url with a HEAD request.
// A 404 is reported as services.ErrUnavailable.
func (e *Executor) RemoteSize(ctx context.Context, url string) (int64, error) {
	resp, err := e.get(ctx, http.MethodHead, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.ContentLength < 0 {
		return 0, services.Wrap(services.ErrTransient, "download", "head", url+": no content length", nil)
	}
	return resp.ContentLength, nil
}

func (e *Executor) get(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidInput, "download", "request", url, err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, services.Wrap(services.ErrUnavailable, "download", method, fmt.Sprintf("%s: http %d", url, resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &services.HTTPStatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return resp, nil
}

func looksLikeErrorPage(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, marker := range errorBodyMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// prefixBuffer keeps the first limit bytes written to it.
type prefixBuffer struct {
	buf   []byte
	limit int
}

func (p *prefixBuffer) Write(b []byte) (int, error) {
	if room := p.limit - len(p.buf); room > 0 {
		p.buf = append(p.buf, b[:min(room, len(b))]...)
	}
	return len(b), nil
}

func (p *prefixBuffer) Bytes() []byte {
	return p.buf
}
