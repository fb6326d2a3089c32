package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/louisbranch/livepost/internal/platform/errors"
	"github.com/louisbranch/livepost/internal/platform/timeouts"
	"github.com/louisbranch/livepost/internal/services/livepost/domain"
)

const maxPostBodyBytes = 1 << 20

// PostFetcher loads the current state of a post for the initial snapshot.
type PostFetcher interface {
	FetchPost(ctx context.Context, postUUID string) (domain.Post, error)
}

// PostFetcherFunc adapts a function to PostFetcher.
type PostFetcherFunc func(ctx context.Context, postUUID string) (domain.Post, error)

// FetchPost implements PostFetcher.
func (fn PostFetcherFunc) FetchPost(ctx context.Context, postUUID string) (domain.Post, error) {
	return fn(ctx, postUUID)
}

// httpPostFetcher reads posts from GET {base}/v1/posts/{uuid}.
type httpPostFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPostFetcher builds a fetcher against the posts API at baseURL.
func NewHTTPPostFetcher(baseURL string, timeout time.Duration) (PostFetcher, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("posts api base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse posts api base url: %w", err)
	}
	if timeout <= 0 {
		timeout = timeouts.PostFetch
	}
	return &httpPostFetcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (f *httpPostFetcher) FetchPost(ctx context.Context, postUUID string) (domain.Post, error) {
	endpoint := f.baseURL + "/v1/posts/" + url.PathEscape(postUUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "build post request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "call posts api", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.WithMetadata(apperrors.CodePostNotFound, "post not found", map[string]string{"post_uuid": postUUID})
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.WithMetadata(apperrors.CodeUpstreamUnavailable, fmt.Sprintf("posts api status %d", resp.StatusCode), map[string]string{"post_uuid": postUUID})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPostBodyBytes))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "read post response", err)
	}
	post, _, err := domain.ResolveJSON(body)
	if err != nil {
		return nil, err
	}
	return post, nil
}
