package federation

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"strings"
	"time"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

// DefaultAllowedSkew is the clock drift tolerated on assertion conditions.
const DefaultAllowedSkew = 2 * time.Minute

// Config holds the service provider settings. IdP values come from the
// identity provider's administrator.
type Config struct {
	// EntryPoint is the IdP single sign-on URL (HTTP-Redirect binding)
	EntryPoint string
	// SPEntityID is our issuer and the audience expected in assertions
	SPEntityID string
	// IDPEntityID is the issuer expected on responses and assertions
	IDPEntityID string
	// CallbackURL is the assertion consumer service URL
	CallbackURL string
	// MetadataURL defaults to the callback URL with a metadata suffix
	MetadataURL string

	IDPCertificate     string
	PrivateKey         string
	SigningCertificate string

	AppBaseURL  string
	SuccessPath string
	FailurePath string
	AllowedSkew time.Duration
}

// ConfigFromSettings adapts the environment settings.
func ConfigFromSettings(s auth.SAMLSettings, appBaseURL string) Config {
	skew, err := auth.ParseTTL(s.AllowedSkew)
	if err != nil || skew <= 0 {
		skew = DefaultAllowedSkew
	}

	return Config{
		EntryPoint:         s.EntryPoint,
		SPEntityID:         s.Issuer,
		IDPEntityID:        s.IDPIssuer,
		CallbackURL:        s.CallbackURL,
		IDPCertificate:     s.IDPCert,
		PrivateKey:         s.PrivateKey,
		SigningCertificate: s.SigningCert,
		AppBaseURL:         appBaseURL,
		SuccessPath:        s.SuccessPath,
		FailurePath:        s.FailurePath,
		AllowedSkew:        skew,
	}
}

func (c Config) withDefaults() Config {
	if c.MetadataURL == "" {
		c.MetadataURL = strings.TrimSuffix(c.CallbackURL, "/callback") + "/metadata"
	}
	if c.SuccessPath == "" {
		c.SuccessPath = "/login"
	}
	if c.FailurePath == "" {
		c.FailurePath = "/login"
	}
	if c.AllowedSkew <= 0 {
		c.AllowedSkew = DefaultAllowedSkew
	}
	return c
}

// Validate reports missing settings required to run the SSO flow.
func (c Config) Validate() error {
	missing := []string{}
	if c.EntryPoint == "" {
		missing = append(missing, "entry point")
	}
	if c.SPEntityID == "" {
		missing = append(missing, "issuer")
	}
	if c.IDPEntityID == "" {
		missing = append(missing, "idp issuer")
	}
	if c.CallbackURL == "" {
		missing = append(missing, "callback url")
	}
	if c.IDPCertificate == "" {
		missing = append(missing, "idp certificate")
	}
	if len(missing) > 0 {
		return fmt.Errorf("saml config missing: %s", strings.Join(missing, ", "))
	}

	for _, raw := range []string{c.EntryPoint, c.CallbackURL} {
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("saml config invalid url %q: %w", raw, err)
		}
	}
	return nil
}

// ParseCertificate accepts a PEM block or the bare base64 body IdPs
// usually hand out.
func ParseCertificate(raw string) (*x509.Certificate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty certificate")
	}

	if block, _ := pem.Decode([]byte(raw)); block != nil {
		return x509.ParseCertificate(block.Bytes)
	}

	der, err := base64.StdEncoding.DecodeString(stripWhitespace(raw))
	if err != nil {
		return nil, fmt.Errorf("certificate is neither PEM nor base64: %w", err)
	}
	return x509.ParseCertificate(der)
}

// ParsePrivateKey reads a PKCS#1 or PKCS#8 RSA key in PEM form.
func ParsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(raw)))
	if block == nil {
		return nil, fmt.Errorf("private key is not PEM encoded")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}
