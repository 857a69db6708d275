package federation

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

const (
	testIDPEntityID = "https://idp.example.com/metadata"
	testSPEntityID  = "prd-to-proto"
	testEntryPoint  = "https://idp.example.com/sso"
	testCallbackURL = "https://app.example.com/api/auth/saml/callback"
	testAppBaseURL  = "https://app.example.com"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testIdP struct {
	key     *rsa.PrivateKey
	certDER []byte
	certPEM string
}

func newTestIdP(t *testing.T) *testIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "idp.example.com"},
		NotBefore:    testNow.Add(-24 * time.Hour),
		NotAfter:     testNow.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return &testIdP{key: key, certDER: der, certPEM: string(certPEM)}
}

func testConfig(idp *testIdP) Config {
	return Config{
		EntryPoint:     testEntryPoint,
		SPEntityID:     testSPEntityID,
		IDPEntityID:    testIDPEntityID,
		CallbackURL:    testCallbackURL,
		IDPCertificate: idp.certPEM,
		AppBaseURL:     testAppBaseURL,
		SuccessPath:    "/login",
		FailurePath:    "/login",
	}
}

func newTestProvider(t *testing.T, idp *testIdP) *ServiceProvider {
	t.Helper()
	sp, err := NewServiceProvider(testConfig(idp))
	require.NoError(t, err)
	return sp.WithClock(func() time.Time { return testNow })
}

type responseFixture struct {
	Issuer       string
	Destination  string
	Status       string
	Audience     string
	NameID       string
	IssueInstant time.Time
	NotBefore    time.Time
	NotOnOrAfter time.Time
	Attributes   map[string]string

	// subject confirmation, omitted when ConfirmationMethod is empty
	ConfirmationMethod       string
	Recipient                string
	ConfirmationNotOnOrAfter time.Time
}

func defaultFixture() responseFixture {
	return responseFixture{
		Issuer:       testIDPEntityID,
		Destination:  testCallbackURL,
		Status:       "urn:oasis:names:tc:SAML:2.0:status:Success",
		Audience:     testSPEntityID,
		NameID:       "Jane.Doe@Example.com",
		IssueInstant: testNow,
		NotBefore:    testNow.Add(-time.Minute),
		NotOnOrAfter: testNow.Add(5 * time.Minute),
		Attributes: map[string]string{
			"givenName": "Jane",
			"surname":   "Doe",
		},
		ConfirmationMethod:       bearerConfirmation,
		Recipient:                testCallbackURL,
		ConfirmationNotOnOrAfter: testNow.Add(5 * time.Minute),
	}
}

func optionalTime(name string, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf(" %s=%q", name, t.Format(time.RFC3339))
}

func (f responseFixture) xml() string {
	attrs := ""
	for name, value := range f.Attributes {
		attrs += fmt.Sprintf(
			`<saml:Attribute Name=%q><saml:AttributeValue>%s</saml:AttributeValue></saml:Attribute>`,
			name, value,
		)
	}

	confirmation := ""
	if f.ConfirmationMethod != "" {
		confirmation = fmt.Sprintf(
			`<saml:SubjectConfirmation Method=%q><saml:SubjectConfirmationData Recipient=%q%s></saml:SubjectConfirmationData></saml:SubjectConfirmation>`,
			f.ConfirmationMethod, f.Recipient, optionalTime("NotOnOrAfter", f.ConfirmationNotOnOrAfter),
		)
	}

	instant := f.IssueInstant.Format(time.RFC3339)
	return fmt.Sprintf(`<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="_resp1" Version="2.0" IssueInstant=%q Destination=%q>`+
		`<saml:Issuer>%s</saml:Issuer>`+
		`<samlp:Status><samlp:StatusCode Value=%q></samlp:StatusCode></samlp:Status>`+
		`<saml:Assertion ID="_assert1" Version="2.0" IssueInstant=%q>`+
		`<saml:Issuer>%s</saml:Issuer>`+
		`<saml:Subject><saml:NameID>%s</saml:NameID>%s</saml:Subject>`+
		`<saml:Conditions%s%s><saml:AudienceRestriction><saml:Audience>%s</saml:Audience></saml:AudienceRestriction></saml:Conditions>`+
		`<saml:AttributeStatement>%s</saml:AttributeStatement>`+
		`</saml:Assertion></samlp:Response>`,
		instant, f.Destination,
		f.Issuer,
		f.Status,
		instant,
		f.Issuer,
		f.NameID, confirmation,
		optionalTime("NotBefore", f.NotBefore), optionalTime("NotOnOrAfter", f.NotOnOrAfter), f.Audience,
		attrs,
	)
}

func deflateBase64(t *testing.T, raw string) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	require.NoError(t, err)
	_, err = w.Write([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// signedRedirectQuery builds the query an IdP sends on the redirect binding.
func (idp *testIdP) signedRedirectQuery(t *testing.T, responseXML, relayState string) string {
	t.Helper()

	signed := "SAMLResponse=" + url.QueryEscape(deflateBase64(t, responseXML))
	if relayState != "" {
		signed += "&RelayState=" + url.QueryEscape(relayState)
	}
	signed += "&SigAlg=" + url.QueryEscape(SigAlgRSASHA256)

	digest := sha256.Sum256([]byte(signed))
	sig, err := rsa.SignPKCS1v15(rand.Reader, idp.key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	return signed + "&Signature=" + url.QueryEscape(base64.StdEncoding.EncodeToString(sig))
}

type memoryAccounts struct {
	mu          sync.Mutex
	byEmail     map[string]*auth.Account
	tracked     []uuid.UUID
	findErr     error
	registerErr error
}

func newMemoryAccounts(accounts ...*auth.Account) *memoryAccounts {
	m := &memoryAccounts{byEmail: map[string]*auth.Account{}}
	for _, a := range accounts {
		m.byEmail[a.Email] = a
	}
	return m
}

func (m *memoryAccounts) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if a, ok := m.byEmail[email]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memoryAccounts) Register(ctx context.Context, account *auth.Account) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	if _, ok := m.byEmail[account.Email]; ok {
		return nil, auth.ErrUserAlreadyExists
	}
	m.byEmail[account.Email] = account
	return account, nil
}

func (m *memoryAccounts) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = append(m.tracked, id)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}
