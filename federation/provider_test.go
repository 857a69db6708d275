package federation

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

func TestNewServiceProvider_RequiresSettings(t *testing.T) {
	idp := newTestIdP(t)

	cfg := testConfig(idp)
	cfg.EntryPoint = ""
	cfg.IDPCertificate = ""

	_, err := NewServiceProvider(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry point")
	assert.Contains(t, err.Error(), "idp certificate")
}

func TestNewServiceProvider_RequiresIdPIssuer(t *testing.T) {
	cfg := testConfig(newTestIdP(t))
	cfg.IDPEntityID = ""

	_, err := NewServiceProvider(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idp issuer")
}

func TestNewServiceProvider_RejectsBadCertificate(t *testing.T) {
	idp := newTestIdP(t)
	cfg := testConfig(idp)
	cfg.IDPCertificate = "not a certificate"

	_, err := NewServiceProvider(cfg)
	require.Error(t, err)
}

func TestNewServiceProvider_Defaults(t *testing.T) {
	idp := newTestIdP(t)
	cfg := testConfig(idp)
	cfg.SuccessPath = ""

	sp, err := NewServiceProvider(cfg)
	require.NoError(t, err)

	effective := sp.Config()
	assert.Equal(t, testIDPEntityID, effective.IDPEntityID)
	assert.Equal(t, "https://app.example.com/api/auth/saml/metadata", effective.MetadataURL)
	assert.Equal(t, "/login", effective.SuccessPath)
	assert.Equal(t, DefaultAllowedSkew, effective.AllowedSkew)
}

func TestParseCertificate_BareBase64(t *testing.T) {
	idp := newTestIdP(t)

	body := strings.TrimSpace(idp.certPEM)
	body = strings.TrimPrefix(body, "-----BEGIN CERTIFICATE-----")
	body = strings.TrimSuffix(body, "-----END CERTIFICATE-----")

	cert, err := ParseCertificate(body)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", cert.Subject.CommonName)
}

func TestServiceProvider_LoginURL(t *testing.T) {
	sp := newTestProvider(t, newTestIdP(t))

	raw, err := sp.LoginURL("state-123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, testEntryPoint+"?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, u.Query().Get("SAMLRequest"))
	assert.Equal(t, "state-123", u.Query().Get("RelayState"))

	inflated, err := inflateResponse(u.Query().Get("SAMLRequest"))
	require.NoError(t, err)
	assert.Contains(t, string(inflated), testSPEntityID)
	assert.Contains(t, string(inflated), testCallbackURL)
}

func TestServiceProvider_Metadata(t *testing.T) {
	sp := newTestProvider(t, newTestIdP(t))

	body, err := sp.Metadata()
	require.NoError(t, err)

	xml := string(body)
	assert.True(t, strings.HasPrefix(xml, "<?xml"))
	assert.Contains(t, xml, "EntityDescriptor")
	assert.Contains(t, xml, `entityID="`+testSPEntityID+`"`)
	assert.Contains(t, xml, testCallbackURL)
}

func TestServiceProvider_MetadataIncludesSigningCertificate(t *testing.T) {
	idp := newTestIdP(t)
	signer := newTestIdP(t)

	cfg := testConfig(idp)
	cfg.SigningCertificate = signer.certPEM
	sp, err := NewServiceProvider(cfg)
	require.NoError(t, err)

	body, err := sp.Metadata()
	require.NoError(t, err)

	cert, err := ParseCertificate(signer.certPEM)
	require.NoError(t, err)
	assert.Contains(t, string(body), base64.StdEncoding.EncodeToString(cert.Raw))
}

func TestServiceProvider_ValidatePOSTRejectsGarbage(t *testing.T) {
	sp := newTestProvider(t, newTestIdP(t))

	tests := map[string]url.Values{
		"missing field": {},
		"not base64":    {"SAMLResponse": {"%%%"}},
		"not xml":       {"SAMLResponse": {base64.StdEncoding.EncodeToString([]byte("not xml"))}},
		"unsigned": {"SAMLResponse": {
			base64.StdEncoding.EncodeToString([]byte(defaultFixture().xml())),
		}},
	}

	for name, form := range tests {
		t.Run(name, func(t *testing.T) {
			assertion, err := sp.ValidatePOST(form)
			require.Error(t, err)
			assert.Nil(t, assertion)
			assert.Equal(t, FailureInvalidResponse, FailureCode(err))
			assert.Equal(t, 401, auth.HTTPStatus(err))
		})
	}
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(auth.SAMLSettings{
		EntryPoint:  testEntryPoint,
		Issuer:      testSPEntityID,
		IDPIssuer:   testIDPEntityID,
		CallbackURL: testCallbackURL,
		SuccessPath: "/dashboard",
		FailurePath: "/login",
		AllowedSkew: "30s",
	}, testAppBaseURL)

	assert.Equal(t, testSPEntityID, cfg.SPEntityID)
	assert.Equal(t, testIDPEntityID, cfg.IDPEntityID)
	assert.Equal(t, "/dashboard", cfg.SuccessPath)
	assert.Equal(t, testAppBaseURL, cfg.AppBaseURL)
	assert.Equal(t, 30*time.Second, cfg.AllowedSkew)
}
