// Package github talks to the GitHub REST API: the signed-in user, their
// public repositories and the metadata cached on linked projects.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const DefaultBaseURL = "https://api.github.com"

// APIError is a non-2xx answer from GitHub.
type APIError struct {
	Status int
	Path   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: %d on %s", e.Status, e.Path)
}

// IsUnauthorized reports whether GitHub rejected the credentials.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type User struct {
	ID         int64
	Login      string
	Name       string
	Email      string
	AvatarURL  string
	ProfileURL string
}

type Repo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description *string   `json:"description"`
	Language    *string   `json:"language"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	OpenIssues  int       `json:"open_issues_count"`
	Topics      []string  `json:"topics"`
	Private     bool      `json:"-"`
	PushedAt    time.Time `json:"pushed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Contributor struct {
	Login         string `json:"login"`
	AvatarURL     string `json:"avatar_url"`
	HTMLURL       string `json:"html_url"`
	Contributions int    `json:"contributions"`
}

type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	HTMLURL   string    `json:"html_url"`
	Author    string    `json:"author,omitempty"`
	Labels    []string  `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
}

type Commit struct {
	SHA     string    `json:"sha"`
	HTMLURL string    `json:"html_url"`
	Message string    `json:"message"`
	Author  string    `json:"author,omitempty"`
	Date    time.Time `json:"date"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path, token, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if accept == "" {
		accept = "application/vnd.github.v3+json"
	}
	req.Header.Set("Accept", accept)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call github: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read github response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Path: path}
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, path, token string) (gjson.Result, error) {
	body, err := c.get(ctx, path, token, "")
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid json from github on %s", path)
	}
	return gjson.ParseBytes(body), nil
}

// FetchUser resolves the account behind an OAuth access token.
func (c *Client) FetchUser(ctx context.Context, token string) (*User, error) {
	doc, err := c.getJSON(ctx, "/user", token)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:         doc.Get("id").Int(),
		Login:      doc.Get("login").String(),
		Name:       doc.Get("name").String(),
		Email:      doc.Get("email").String(),
		AvatarURL:  doc.Get("avatar_url").String(),
		ProfileURL: doc.Get("html_url").String(),
	}
	if u.ID == 0 || u.Login == "" {
		return nil, errors.New("github user response missing id or login")
	}
	return u, nil
}

// FetchUserRepos lists the token owner's public repositories, most recently
// updated first.
func (c *Client) FetchUserRepos(ctx context.Context, token string) ([]Repo, error) {
	doc, err := c.getJSON(ctx, "/user/repos?type=public&sort=updated&per_page=100", token)
	if err != nil {
		return nil, err
	}
	repos := make([]Repo, 0, len(doc.Array()))
	for _, r := range doc.Array() {
		repo := parseRepo(r)
		if repo.Private {
			continue
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

func (c *Client) FetchRepoDetails(ctx context.Context, owner, repo, token string) (*Repo, error) {
	doc, err := c.getJSON(ctx, repoPath(owner, repo), token)
	if err != nil {
		return nil, err
	}
	r := parseRepo(doc)
	return &r, nil
}

// FetchRepoLanguages returns the raw language→bytes object.
func (c *Client) FetchRepoLanguages(ctx context.Context, owner, repo, token string) ([]byte, error) {
	doc, err := c.getJSON(ctx, repoPath(owner, repo)+"/languages", token)
	if err != nil {
		return nil, err
	}
	if !doc.IsObject() {
		return []byte("{}"), nil
	}
	return []byte(doc.Raw), nil
}

// FetchReadme returns the rendered README HTML, or "" when the repository
// has none.
func (c *Client) FetchReadme(ctx context.Context, owner, repo, token string) (string, error) {
	body, err := c.get(ctx, repoPath(owner, repo)+"/readme", token, "application/vnd.github.v3.html")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return string(body), nil
}

func (c *Client) FetchContributors(ctx context.Context, owner, repo, token string) ([]Contributor, error) {
	doc, err := c.getJSON(ctx, repoPath(owner, repo)+"/contributors?per_page=20", token)
	if err != nil {
		return nil, err
	}
	out := []Contributor{}
	doc.ForEach(func(_, v gjson.Result) bool {
		out = append(out, Contributor{
			Login:         v.Get("login").String(),
			AvatarURL:     v.Get("avatar_url").String(),
			HTMLURL:       v.Get("html_url").String(),
			Contributions: int(v.Get("contributions").Int()),
		})
		return true
	})
	return out, nil
}

// FetchOpenIssues returns the ten newest open issues. Pull requests, which
// the issues endpoint also lists, are skipped.
func (c *Client) FetchOpenIssues(ctx context.Context, owner, repo, token string) ([]Issue, error) {
	doc, err := c.getJSON(ctx, repoPath(owner, repo)+"/issues?state=open&per_page=10&sort=created&direction=desc", token)
	if err != nil {
		return nil, err
	}
	out := []Issue{}
	doc.ForEach(func(_, v gjson.Result) bool {
		if v.Get("pull_request").Exists() {
			return true
		}
		labels := []string{}
		for _, l := range v.Get("labels.#.name").Array() {
			labels = append(labels, l.String())
		}
		out = append(out, Issue{
			Number:    int(v.Get("number").Int()),
			Title:     v.Get("title").String(),
			HTMLURL:   v.Get("html_url").String(),
			Author:    v.Get("user.login").String(),
			Labels:    labels,
			CreatedAt: v.Get("created_at").Time(),
		})
		return true
	})
	return out, nil
}

func (c *Client) FetchCommits(ctx context.Context, owner, repo, token string) ([]Commit, error) {
	doc, err := c.getJSON(ctx, repoPath(owner, repo)+"/commits?per_page=10", token)
	if err != nil {
		return nil, err
	}
	out := []Commit{}
	doc.ForEach(func(_, v gjson.Result) bool {
		author := v.Get("author.login").String()
		if author == "" {
			author = v.Get("commit.author.name").String()
		}
		out = append(out, Commit{
			SHA:     v.Get("sha").String(),
			HTMLURL: v.Get("html_url").String(),
			Message: v.Get("commit.message").String(),
			Author:  author,
			Date:    v.Get("commit.author.date").Time(),
		})
		return true
	})
	return out, nil
}

func parseRepo(r gjson.Result) Repo {
	repo := Repo{
		ID:         r.Get("id").Int(),
		Name:       r.Get("name").String(),
		FullName:   r.Get("full_name").String(),
		HTMLURL:    r.Get("html_url").String(),
		Stars:      int(r.Get("stargazers_count").Int()),
		Forks:      int(r.Get("forks_count").Int()),
		OpenIssues: int(r.Get("open_issues_count").Int()),
		Private:    r.Get("private").Bool(),
		PushedAt:   r.Get("pushed_at").Time(),
		UpdatedAt:  r.Get("updated_at").Time(),
		Topics:     []string{},
	}
	if v := r.Get("description"); v.Type == gjson.String {
		s := v.String()
		repo.Description = &s
	}
	if v := r.Get("language"); v.Type == gjson.String {
		s := v.String()
		repo.Language = &s
	}
	for _, t := range r.Get("topics").Array() {
		repo.Topics = append(repo.Topics, t.String())
	}
	return repo
}

func repoPath(owner, repo string) string {
	return "/repos/" + owner + "/" + repo
}

var repoURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+?)(?:\.git)?(?:/|$)`)

// ParseRepoURL extracts owner and repository name from a github.com URL.
func ParseRepoURL(url string) (owner, repo string, ok bool) {
	m := repoURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
