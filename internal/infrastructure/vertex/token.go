package vertex

import (
	"context"
	stdliberrors "errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

// CloudPlatformScope is requested for Application Default Credentials.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// TokenProvider yields a bearer token for Discovery Engine calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenConfig selects how tokens are obtained.
type TokenConfig struct {
	// AccessToken, when set, is used verbatim.
	AccessToken string
	// UseADC forces Application Default Credentials outside Cloud Run.
	UseADC        bool
	GcloudPath    string
	GcloudTimeout time.Duration
}

// lookupEnv is replaced in tests.
var lookupEnv = os.LookupEnv

// NewTokenProvider picks one source, in order: the static token, ADC when
// running on Cloud Run (K_SERVICE set) or when UseADC is set, and finally the
// gcloud CLI for local development.
func NewTokenProvider(cfg TokenConfig, log logging.Logger) TokenProvider {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if cfg.AccessToken != "" {
		log.Debug("vertex auth: using static access token")
		return StaticToken(cfg.AccessToken)
	}
	if svc, ok := lookupEnv("K_SERVICE"); cfg.UseADC || (ok && svc != "") {
		log.Debug("vertex auth: using application default credentials", logging.String("k_service", svc))
		return NewADCTokenProvider()
	}
	log.Debug("vertex auth: using gcloud cli", logging.String("path", cfg.GcloudPath))
	return NewGcloudTokenProvider(cfg.GcloudPath, cfg.GcloudTimeout)
}

// ─────────────────────────────────────────────────────────────────────────────
// Static
// ─────────────────────────────────────────────────────────────────────────────

// StaticToken is a fixed token, typically GOOGLE_ACCESS_TOKEN.
type StaticToken string

// Token returns s.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// OAuth2 / ADC
// ─────────────────────────────────────────────────────────────────────────────

// OAuth2TokenProvider adapts an oauth2.TokenSource. The source is wrapped in
// a ReuseTokenSource so tokens are refreshed only when expired.
type OAuth2TokenProvider struct {
	src oauth2.TokenSource
}

// NewOAuth2TokenProvider wraps src.
func NewOAuth2TokenProvider(src oauth2.TokenSource) *OAuth2TokenProvider {
	return &OAuth2TokenProvider{src: oauth2.ReuseTokenSource(nil, src)}
}

// Token returns a valid access token.
func (p *OAuth2TokenProvider) Token(context.Context) (string, error) {
	tok, err := p.src.Token()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeAuthTokenUnavailable,
			"unable to authenticate with google cloud; ensure the service account has the necessary permissions")
	}
	return tok.AccessToken, nil
}

// ADCTokenProvider resolves Application Default Credentials on first use and
// caches the resulting token source for the life of the process.
type ADCTokenProvider struct {
	mu   sync.Mutex
	prov *OAuth2TokenProvider
	find func(ctx context.Context, scopes ...string) (*google.Credentials, error)
}

// NewADCTokenProvider returns a provider using google.FindDefaultCredentials.
func NewADCTokenProvider() *ADCTokenProvider {
	return &ADCTokenProvider{find: google.FindDefaultCredentials}
}

// Token returns a token from the default credentials.
func (p *ADCTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.prov == nil {
		creds, err := p.find(ctx, CloudPlatformScope)
		if err != nil {
			p.mu.Unlock()
			return "", errors.Wrap(err, errors.ErrCodeAuthTokenUnavailable,
				"unable to authenticate with google cloud; ensure the service account has the necessary permissions")
		}
		p.prov = NewOAuth2TokenProvider(creds.TokenSource)
	}
	prov := p.prov
	p.mu.Unlock()
	return prov.Token(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// gcloud CLI
// ─────────────────────────────────────────────────────────────────────────────

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// GcloudTokenProvider shells out to `gcloud auth print-access-token`.
type GcloudTokenProvider struct {
	path    string
	timeout time.Duration
	run     commandRunner
}

// NewGcloudTokenProvider uses the gcloud binary at path (default "gcloud")
// and kills it after timeout (default 10s).
func NewGcloudTokenProvider(path string, timeout time.Duration) *GcloudTokenProvider {
	if path == "" {
		path = "gcloud"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GcloudTokenProvider{path: path, timeout: timeout, run: runCommand}
}

// Token runs the CLI and validates its output.
func (p *GcloudTokenProvider) Token(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.run(ctx, p.path, "auth", "print-access-token")
	if err != nil {
		switch {
		case stdliberrors.Is(ctx.Err(), context.DeadlineExceeded):
			return "", errors.Wrap(err, errors.ErrCodeAuthGcloudTimeout, "gcloud command timed out")
		case stdliberrors.Is(err, exec.ErrNotFound):
			return "", errors.Wrap(err, errors.ErrCodeAuthGcloudMissing,
				"gcloud CLI not found; install the Google Cloud SDK")
		default:
			return "", errors.Wrap(err, errors.ErrCodeAuthTokenUnavailable,
				"unable to authenticate with google cloud; run 'gcloud auth login' or set GOOGLE_ACCESS_TOKEN")
		}
	}

	token := strings.TrimSpace(string(out))
	if token == "" || strings.Contains(token, "ERROR") {
		return "", errors.New(errors.ErrCodeAuthTokenUnavailable, "invalid token received from gcloud")
	}
	return token, nil
}
