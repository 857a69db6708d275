package federation

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/crewjam/saml"
)

// AssertionValidator verifies an IdP response and returns its assertion.
type AssertionValidator interface {
	// ValidatePOST handles the HTTP-POST binding. form carries SAMLResponse.
	ValidatePOST(form url.Values) (*saml.Assertion, error)
	// ValidateRedirect handles the HTTP-Redirect binding. rawQuery is the
	// query string exactly as received, needed for signature checks.
	ValidateRedirect(rawQuery string) (*saml.Assertion, error)
}

// ServiceProvider is our side of the SAML exchange.
type ServiceProvider struct {
	sp      *saml.ServiceProvider
	idpCert *x509.Certificate
	cfg     Config
	now     func() time.Time
}

var _ AssertionValidator = (*ServiceProvider)(nil)

// NewServiceProvider builds the service provider from cfg.
func NewServiceProvider(cfg Config) (*ServiceProvider, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	idpCert, err := ParseCertificate(cfg.IDPCertificate)
	if err != nil {
		return nil, err
	}

	acsURL, err := url.Parse(cfg.CallbackURL)
	if err != nil {
		return nil, err
	}

	metadataURL, err := url.Parse(cfg.MetadataURL)
	if err != nil {
		return nil, err
	}

	var key *rsa.PrivateKey
	if cfg.PrivateKey != "" {
		if key, err = ParsePrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
	}

	var signingCert *x509.Certificate
	if cfg.SigningCertificate != "" {
		if signingCert, err = ParseCertificate(cfg.SigningCertificate); err != nil {
			return nil, err
		}
	}

	sp := &saml.ServiceProvider{
		EntityID:          cfg.SPEntityID,
		Key:               key,
		Certificate:       signingCert,
		AcsURL:            *acsURL,
		MetadataURL:       *metadataURL,
		IDPMetadata:       idpMetadata(cfg, idpCert),
		AuthnNameIDFormat: saml.EmailAddressNameIDFormat,
		AllowIDPInitiated: true,
	}

	return &ServiceProvider{
		sp:      sp,
		idpCert: idpCert,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// WithClock overrides the time source used for condition checks.
func (p *ServiceProvider) WithClock(now func() time.Time) *ServiceProvider {
	if now != nil {
		p.now = now
	}
	return p
}

// Config returns the effective configuration.
func (p *ServiceProvider) Config() Config {
	return p.cfg
}

// LoginURL returns the IdP URL carrying a deflated AuthnRequest.
func (p *ServiceProvider) LoginURL(relayState string) (string, error) {
	u, err := p.sp.MakeRedirectAuthenticationRequest(relayState)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Metadata renders the SP EntityDescriptor.
func (p *ServiceProvider) Metadata() ([]byte, error) {
	body, err := xml.MarshalIndent(p.sp.Metadata(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func (p *ServiceProvider) ValidatePOST(form url.Values) (*saml.Assertion, error) {
	if form.Get("SAMLResponse") == "" {
		return nil, ErrInvalidSAMLResponse
	}

	acs := p.sp.AcsURL
	req := &http.Request{
		Method:   http.MethodPost,
		URL:      &acs,
		Form:     form,
		PostForm: form,
		Header:   http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
	}

	assertion, err := p.sp.ParseResponse(req, nil)
	if err != nil {
		var invalid *saml.InvalidResponseError
		if errors.As(err, &invalid) && invalid.PrivateErr != nil {
			return nil, invalidResponse(invalid.PrivateErr)
		}
		return nil, invalidResponse(err)
	}
	return assertion, nil
}

func idpMetadata(cfg Config, cert *x509.Certificate) *saml.EntityDescriptor {
	return &saml.EntityDescriptor{
		EntityID: cfg.IDPEntityID,
		IDPSSODescriptors: []saml.IDPSSODescriptor{
			{
				SSODescriptor: saml.SSODescriptor{
					RoleDescriptor: saml.RoleDescriptor{
						ProtocolSupportEnumeration: "urn:oasis:names:tc:SAML:2.0:protocol",
						KeyDescriptors: []saml.KeyDescriptor{
							{
								Use: "signing",
								KeyInfo: saml.KeyInfo{
									X509Data: saml.X509Data{
										X509Certificates: []saml.X509Certificate{
											{Data: base64.StdEncoding.EncodeToString(cert.Raw)},
										},
									},
								},
							},
						},
					},
				},
				SingleSignOnServices: []saml.Endpoint{
					{Binding: saml.HTTPRedirectBinding, Location: cfg.EntryPoint},
					{Binding: saml.HTTPPostBinding, Location: cfg.EntryPoint},
				},
			},
		},
	}
}
