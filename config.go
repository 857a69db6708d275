package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// EnvConfig is the process configuration read from the environment. It is
// loaded once at startup and passed by value afterwards.
type EnvConfig struct {
	SigningKey    string   `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL      string   `env:"JWT_EXPIRES_IN"    envDefault:"7d"`
	Issuer        string   `env:"AUTH_ISSUER"`
	Audience      []string `env:"AUTH_AUDIENCE"     envSeparator:","`
	AppBaseURL    string   `env:"APP_BASE_URL"      envDefault:"http://localhost:3000"`
	InvitationTTL string   `env:"INVITATION_TTL"    envDefault:"24h"`

	HTTPAddr     string `env:"HTTP_ADDR"     envDefault:":3001"`
	DBDriver     string `env:"DB_DRIVER"     envDefault:"sqlite"`
	DBDSN        string `env:"DB_DSN"        envDefault:"file:prdhub.db?cache=shared"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	Debug        bool   `env:"AUTH_DEBUG"`

	SAML SAMLSettings `envPrefix:"SAML_"`
}

// SAMLSettings configures the service provider side of SSO.
type SAMLSettings struct {
	EntryPoint  string `env:"ENTRY_POINT"   envDefault:"https://sso.smallgroup.com/saml/login"`
	Issuer      string `env:"ISSUER"        envDefault:"prd-to-proto"`
	IDPIssuer   string `env:"IDP_ISSUER"`
	CallbackURL string `env:"CALLBACK_URL"  envDefault:"http://localhost:3000/api/auth/saml/callback"`
	IDPCert     string `env:"IDP_CERT"`
	PrivateKey  string `env:"PRIVATE_KEY"`
	SigningCert string `env:"SIGNING_CERT"`
	SuccessPath string `env:"SUCCESS_PATH"  envDefault:"/login"`
	FailurePath string `env:"FAILURE_PATH"  envDefault:"/login"`
	Enabled     bool   `env:"ENABLED"       envDefault:"true"`
	AllowedSkew string `env:"ALLOWED_SKEW"  envDefault:"2m"`
}

// LoadConfig parses the environment into an EnvConfig.
func LoadConfig() (EnvConfig, error) {
	cfg := EnvConfig{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "parse env")
	}

	if _, err := ParseTTL(cfg.TokenTTL); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid JWT_EXPIRES_IN")
	}

	if _, err := ParseTTL(cfg.InvitationTTL); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid INVITATION_TTL")
	}

	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")
	return cfg, nil
}

func (c EnvConfig) GetSigningKey() string {
	return c.SigningKey
}

func (c EnvConfig) GetTokenTTL() time.Duration {
	ttl, err := ParseTTL(c.TokenTTL)
	if err != nil || ttl <= 0 {
		return DefaultTokenTTL
	}
	return ttl
}

func (c EnvConfig) GetIssuer() string {
	return c.Issuer
}

func (c EnvConfig) GetAudience() []string {
	return c.Audience
}

func (c EnvConfig) GetAppBaseURL() string {
	return c.AppBaseURL
}

func (c EnvConfig) GetInvitationTTL() time.Duration {
	ttl, err := ParseTTL(c.InvitationTTL)
	if err != nil || ttl <= 0 {
		return DefaultInvitationTTL
	}
	return ttl
}

var _ Config = EnvConfig{}

// ParseTTL accepts Go durations plus a day suffix, e.g. "7d" or "36h".
func ParseTTL(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid day duration %q", value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	return time.ParseDuration(value)
}

// joinURL concatenates a base URL and a path with exactly one slash.
func joinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
