package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// Release is the subset of the release resource the pipeline needs.
type Release struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Asset is an uploaded release asset.
type Asset struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

type createReleaseRequest struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
}

// EnsureRelease creates the release for tag, or returns the existing one when
// the API reports the tag is already released. reused is true on the second
// path, so the run can record the release stage as reused instead of created.
func (c *Client) EnsureRelease(ctx context.Context, owner, repo, tag string) (rel *Release, reused bool, err error) {
	payload, err := json.Marshal(createReleaseRequest{TagName: tag, Name: tag})
	if err != nil {
		return nil, false, fmt.Errorf("encode release request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases", c.apiBaseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.do(ctx, req)
	if err != nil && resp == nil {
		return nil, false, fmt.Errorf("create release %q: %w", tag, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		rel, err := decodeRelease(resp.Body)
		if err != nil {
			return nil, false, err
		}
		return rel, false, nil
	case http.StatusUnprocessableEntity:
		// already_exists: the tag was released by an earlier run.
		resp.Body.Close()
		rel, err := c.releaseByTag(ctx, owner, repo, tag)
		if err != nil {
			return nil, false, err
		}
		return rel, true, nil
	default:
		return nil, false, apiErrorFromResponse(resp)
	}
}

// releaseByTag fetches the existing release for tag.
func (c *Client) releaseByTag(ctx context.Context, owner, repo, tag string) (*Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", c.apiBaseURL, owner, repo, url.PathEscape(tag))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build release lookup: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.do(ctx, req)
	if err != nil && resp == nil {
		return nil, fmt.Errorf("lookup release %q: %w", tag, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFromResponse(resp)
	}
	return decodeRelease(resp.Body)
}

// UploadAsset streams the file at path to the release as an asset named name.
// It returns the browser download URL of the uploaded asset.
func (c *Client) UploadAsset(ctx context.Context, owner, repo string, releaseID int64, name, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read asset %s: %w", path, err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?name=%s",
		c.uploadBaseURL, owner, repo, releaseID, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(data))

	resp, err := c.do(ctx, req)
	if err != nil && resp == nil {
		return "", fmt.Errorf("upload asset %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", apiErrorFromResponse(resp)
	}

	var asset Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return "", fmt.Errorf("decode asset response: %w", err)
	}
	return asset.DownloadURL, nil
}

func decodeRelease(r io.Reader) (*Release, error) {
	var rel Release
	if err := json.NewDecoder(r).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release response: %w", err)
	}
	return &rel, nil
}

// apiErrorFromResponse builds an APIError with the message field from the
// error payload, when there is one.
func apiErrorFromResponse(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil {
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Message = payload.Message
		}
	}
	return apiErr
}
