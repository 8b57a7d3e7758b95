// Package github lists the commits between two upstream revisions.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v62/github"
)

// Commit is a single commit of a comparison.
type Commit struct {
	SHA     string
	Message string
}

// Client wraps the GitHub compare API.
type Client struct {
	gh *gogithub.Client
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL points the client at another API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid GitHub API URL %q: %w", baseURL, err)
		}
		c.gh.BaseURL = u
		return nil
	}
}

// NewClient creates a client. A non-empty token is sent as a bearer token.
func NewClient(httpClient *http.Client, token string, opts ...Option) (*Client, error) {
	gh := gogithub.NewClient(httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	c := &Client{gh: gh}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CompareURL returns the API URL comparing base to head in repo
// ("owner/name").
func (c *Client) CompareURL(repo, base, head string) string {
	return fmt.Sprintf("%srepos/%s/compare/%s...%s", c.gh.BaseURL.String(), repo, base, head)
}

// Commits returns the commits reachable from head but not from base, oldest
// first, following pagination.
func (c *Client) Commits(ctx context.Context, repo, base, head string) ([]Commit, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository %q, expected owner/name", repo)
	}

	var commits []Commit
	opts := &gogithub.ListOptions{PerPage: 100}
	for {
		cmp, resp, err := c.gh.Repositories.CompareCommits(ctx, owner, name, base, head, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to compare %s %s...%s: %w", repo, base, head, err)
		}
		for _, rc := range cmp.Commits {
			commits = append(commits, Commit{
				SHA:     rc.GetSHA(),
				Message: rc.GetCommit().GetMessage(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return commits, nil
}
