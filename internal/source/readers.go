package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// FileReader serves file:// URIs relative to the host filesystem.
type FileReader struct {
	MaxBytes int64
}

func (f FileReader) Verify(ctx context.Context, u *url.URL) (VerifyResult, error) {
	info, err := os.Stat(u.Path)
	if errors.Is(err, os.ErrNotExist) {
		return VerifyResult{Accessible: false}, nil
	}
	if err != nil {
		return VerifyResult{}, &FetchError{Kind: Other, Err: err}
	}
	return VerifyResult{
		Accessible:   true,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC().Format(time.RFC3339),
		ContentType:  "application/octet-stream",
	}, nil
}

func (f FileReader) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	file, err := os.Open(u.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &FetchError{Kind: NotFound, Err: err}
	}
	if err != nil {
		return nil, &FetchError{Kind: Other, Err: err}
	}
	defer file.Close()

	cap := f.MaxBytes
	if cap <= 0 {
		cap = 10 << 20
	}
	data, err := io.ReadAll(io.LimitReader(file, cap))
	if err != nil {
		return nil, &FetchError{Kind: Other, Err: err}
	}
	return data, nil
}

// HTTPReader serves http:// and https:// URIs via a size-capped GET.
type HTTPReader struct {
	Client   *http.Client
	MaxBytes int64
}

func (h HTTPReader) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h HTTPReader) Verify(ctx context.Context, u *url.URL) (VerifyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return VerifyResult{}, &FetchError{Kind: InvalidURI, Err: err}
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return VerifyResult{}, &FetchError{Kind: NetworkError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return VerifyResult{Accessible: false}, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return VerifyResult{Accessible: false}, nil
	}
	return VerifyResult{
		Accessible:  resp.StatusCode < 400,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func (h HTTPReader) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{Kind: InvalidURI, Err: err}
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return nil, &FetchError{Kind: NetworkError, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &FetchError{Kind: NotFound, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &FetchError{Kind: Unauthorized, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &FetchError{Kind: Other, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	cap := h.MaxBytes
	if cap <= 0 {
		cap = 10 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, cap))
	if err != nil {
		return nil, &FetchError{Kind: NetworkError, Err: err}
	}
	return data, nil
}
