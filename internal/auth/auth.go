package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	log "log/slog"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// Error wraps any failure to produce a usable calendar credential.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "auth: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

const (
	listenAddr  = "127.0.0.1:8080"
	redirectURL = "http://localhost:8080/oauth2/callback"
)

type Options struct {
	ClientID        string
	ClientSecret    string
	CredentialsFile string // used when the env pair is absent
	TokenFile       string
	ConsentTimeout  time.Duration
}

// Manager owns the OAuth credential for the calendar: it loads the cached
// token, refreshes it silently when expired, falls back to the interactive
// browser consent flow, and persists every new token. Within a token's
// validity window repeated Token calls are served from memory.
type Manager struct {
	conf           *oauth2.Config
	tokenFile      string
	consentTimeout time.Duration

	// seams for tests
	listenAddr string
	openURL    func(string) error

	mu     sync.Mutex
	source oauth2.TokenSource
	saved  string // access token last written to disk
}

func NewManager(opts Options) (*Manager, error) {
	conf, err := oauthConfig(opts)
	if err != nil {
		return nil, &Error{Err: err}
	}
	if opts.TokenFile == "" {
		opts.TokenFile = "token.json"
	}
	if opts.ConsentTimeout <= 0 {
		opts.ConsentTimeout = 3 * time.Minute
	}
	return &Manager{
		conf:           conf,
		tokenFile:      opts.TokenFile,
		consentTimeout: opts.ConsentTimeout,
		listenAddr:     listenAddr,
		openURL:        openBrowser,
	}, nil
}

// oauthConfig prefers the env client pair and falls back to a Google
// credentials.json, the same order syncal-style tools use.
func oauthConfig(opts Options) (*oauth2.Config, error) {
	if opts.ClientID != "" && opts.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("no GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET and cannot read %s: %w",
			opts.CredentialsFile, err)
	}
	conf, err := google.ConfigFromJSON(b, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", opts.CredentialsFile, err)
	}
	conf.RedirectURL = redirectURL
	return conf, nil
}

// Token returns a valid credential, refreshing or re-consenting as needed.
// The error is always an *Error.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenLocked(ctx)
}

func (m *Manager) tokenLocked(ctx context.Context) (*oauth2.Token, error) {
	if m.source == nil {
		tok, err := loadToken(m.tokenFile)
		if err != nil {
			log.Info("No cached token, starting interactive consent", "file", m.tokenFile)
			tok, err = m.interactiveConsent(ctx)
			if err != nil {
				return nil, &Error{Err: err}
			}
		} else {
			m.saved = tok.AccessToken
		}
		m.installLocked(ctx, tok)
	}

	tok, err := m.source.Token()
	if err != nil {
		log.Warn("Silent token refresh failed, starting interactive consent", "err", err)
		fresh, cerr := m.interactiveConsent(ctx)
		if cerr != nil {
			return nil, &Error{Err: fmt.Errorf("refresh failed (%v); consent failed: %w", err, cerr)}
		}
		m.installLocked(ctx, fresh)
		if tok, err = m.source.Token(); err != nil {
			return nil, &Error{Err: err}
		}
	}

	if tok.AccessToken != m.saved {
		m.persistLocked(tok)
	}
	return tok, nil
}

func (m *Manager) installLocked(ctx context.Context, tok *oauth2.Token) {
	m.source = oauth2.ReuseTokenSource(tok, m.conf.TokenSource(ctx, tok))
}

func (m *Manager) persistLocked(tok *oauth2.Token) {
	if err := saveToken(m.tokenFile, tok); err != nil {
		// Keep running on the in-memory token; only the next process start
		// pays for this.
		log.Warn("Failed to persist token", "file", m.tokenFile, "err", err)
		return
	}
	m.saved = tok.AccessToken
}

// HTTPClient returns an authenticated client whose transport pulls tokens
// through the manager, so refreshes keep being persisted.
func (m *Manager) HTTPClient(ctx context.Context) (*http.Client, error) {
	if _, err := m.Token(ctx); err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, managerSource{ctx: ctx, m: m}), nil
}

// managerSource adapts Manager to oauth2.TokenSource.
type managerSource struct {
	ctx context.Context
	m   *Manager
}

func (s managerSource) Token() (*oauth2.Token, error) {
	return s.m.Token(s.ctx)
}

// interactiveConsent runs the browser flow: loopback server, state nonce,
// code exchange. Blocks until the redirect arrives or the timeout passes.
func (m *Manager) interactiveConsent(ctx context.Context) (*oauth2.Token, error) {
	state := uuid.NewString()

	ln, err := net.Listen("tcp", m.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("consent redirect listener: %w", err)
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	srv := &http.Server{Handler: consentHandler(state, codeCh, errCh)}
	go srv.Serve(ln)
	defer srv.Close()

	authURL := m.conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	log.Info("Authorize calendar access in your browser", "url", authURL)
	if err := m.openURL(authURL); err != nil {
		log.Debug("Could not open browser, use the printed URL", "err", err)
	}

	select {
	case code := <-codeCh:
		tok, err := m.conf.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchange code: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(m.consentTimeout):
		return nil, errors.New("interactive consent timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func consentHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/callback" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "Authorization failed: "+e, http.StatusBadRequest)
			errCh <- fmt.Errorf("consent denied: %s", e)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			errCh <- errors.New("consent state mismatch")
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Missing code", http.StatusBadRequest)
			errCh <- errors.New("consent redirect missing code")
			return
		}
		fmt.Fprintln(w, "AVA is authorized. You can close this tab.")
		codeCh <- code
	})
}

func loadToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%s holds no token", file)
	}
	return tok, nil
}

func saveToken(file string, tok *oauth2.Token) error {
	f, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
