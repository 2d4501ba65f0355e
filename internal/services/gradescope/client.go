// Package gradescope implements an authenticated HTTP session against
// Gradescope's web UI. There is no public API for regrade requests, so the
// client logs in through the same form a browser would and fetches pages
// for the parsers to consume.
package gradescope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gradelens/gradelens/internal/config"
	"github.com/gradelens/gradelens/pkg/logger"
	"golang.org/x/time/rate"
)

// ErrInvalidCredentials means Gradescope rejected the email/password pair.
var ErrInvalidCredentials = errors.New("gradescope: invalid email or password")

// ErrNotLoggedIn means a fetch was attempted before a successful login.
var ErrNotLoggedIn = errors.New("gradescope: not logged in")

// Client is an authenticated Gradescope session. All page fetches go
// through a shared rate limiter so a parallel crawl cannot hammer the site.
type Client struct {
	cfg      *config.GradescopeConfig
	base     *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	loggedIn bool
}

func NewClient(cfg *config.GradescopeConfig) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gradescope base URL %q: %w", cfg.BaseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	burst := int(cfg.RequestsPerSec)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		cfg:  cfg,
		base: base,
		http: &http.Client{
			Jar:     jar,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst),
	}, nil
}

// BaseURL returns the configured Gradescope origin.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// LoggedIn reports whether a session has been established.
func (c *Client) LoggedIn() bool {
	return c.loggedIn
}

// Login establishes an authenticated session. A previously saved cookie
// file is tried first; if the stored session is still valid no credentials
// are sent at all.
func (c *Client) Login(ctx context.Context) error {
	if c.cfg.CookieFile != "" {
		if err := c.loadCookies(); err == nil && c.sessionValid(ctx) {
			c.loggedIn = true
			logger.Info().Msg("reusing saved gradescope session")
			return nil
		}
	}

	token, err := c.fetchAuthenticityToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{
		"utf8":                     {"✓"},
		"authenticity_token":       {token},
		"session[email]":           {c.cfg.Email},
		"session[password]":        {c.cfg.Password},
		"session[remember_me]":     {"0"},
		"commit":                   {"Log In"},
		"session[remember_me_sso]": {"0"},
	}

	loginURL := c.resolve("/login")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gradescope login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// A failed login re-renders the form with an alert; a successful one
	// redirects to the account page.
	if strings.Contains(resp.Request.URL.Path, "/login") || containsLoginAlert(body) {
		return ErrInvalidCredentials
	}

	c.loggedIn = true
	logger.Info().Str("email", c.cfg.Email).Msg("logged in to gradescope")

	if c.cfg.CookieFile != "" {
		if err := c.saveCookies(); err != nil {
			logger.Warn().Err(err).Str("file", c.cfg.CookieFile).Msg("failed to persist session cookies")
		}
	}
	return nil
}

// FetchPage retrieves one page of an authenticated session. It satisfies
// regrade.FetchFunc.
func (c *Client) FetchPage(ctx context.Context, link string) ([]byte, error) {
	if !c.loggedIn {
		return nil, ErrNotLoggedIn
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gradescope returned status %d for %s", resp.StatusCode, link)
	}

	return io.ReadAll(resp.Body)
}

// fetchAuthenticityToken loads the login form and extracts the CSRF token
// Rails embeds in it.
func (c *Client) fetchAuthenticityToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve("/login"), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to load gradescope login page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	token, ok := doc.Find("input[name=authenticity_token]").First().Attr("value")
	if !ok || token == "" {
		return "", errors.New("gradescope login page has no authenticity token")
	}
	return token, nil
}

// sessionValid probes the account page to see whether stored cookies still
// carry a live session.
func (c *Client) sessionValid(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve("/account"), nil)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK && !strings.Contains(resp.Request.URL.Path, "/login")
}

func (c *Client) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String() + path
	}
	return c.base.ResolveReference(ref).String()
}

func containsLoginAlert(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return false
	}
	return doc.Find(".alert-error, .alert-danger").Length() > 0
}

// storedCookie is the JSON shape cookies are persisted in.
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

func (c *Client) saveCookies() error {
	cookies := c.http.Jar.Cookies(c.base)
	stored := make([]storedCookie, 0, len(cookies))
	for _, ck := range cookies {
		stored = append(stored, storedCookie{
			Name:    ck.Name,
			Value:   ck.Value,
			Path:    ck.Path,
			Domain:  ck.Domain,
			Expires: ck.Expires,
		})
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.cfg.CookieFile, data, 0600)
}

func (c *Client) loadCookies() error {
	data, err := os.ReadFile(c.cfg.CookieFile)
	if err != nil {
		return err
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}

	cookies := make([]*http.Cookie, 0, len(stored))
	for _, sc := range stored {
		cookies = append(cookies, &http.Cookie{
			Name:    sc.Name,
			Value:   sc.Value,
			Path:    sc.Path,
			Domain:  sc.Domain,
			Expires: sc.Expires,
		})
	}
	c.http.Jar.SetCookies(c.base, cookies)
	return nil
}
