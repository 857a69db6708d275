package federation

import (
	"bytes"
	"compress/flate"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/crewjam/saml"
)

const (
	SigAlgRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	SigAlgRSASHA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"

	bearerConfirmation = "urn:oasis:names:tc:SAML:2.0:cm:bearer"

	maxInflatedResponse = 1 << 20
)

// ValidateRedirect verifies a response delivered with the HTTP-Redirect
// binding. The query signature is checked before any XML is parsed.
func (p *ServiceProvider) ValidateRedirect(rawQuery string) (*saml.Assertion, error) {
	params, err := splitRawQuery(rawQuery)
	if err != nil {
		return nil, invalidResponse(err)
	}

	if err := verifyRedirectSignature(params, p.idpCert.PublicKey); err != nil {
		return nil, invalidResponse(err)
	}

	samlResponse, err := url.QueryUnescape(params.get("SAMLResponse"))
	if err != nil {
		return nil, invalidResponse(err)
	}

	raw, err := inflateResponse(samlResponse)
	if err != nil {
		return nil, invalidResponse(err)
	}

	resp := saml.Response{}
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return nil, invalidResponse(fmt.Errorf("unmarshal response: %w", err))
	}

	if err := p.checkResponse(&resp, p.now()); err != nil {
		return nil, invalidResponse(err)
	}

	return resp.Assertion, nil
}

func (p *ServiceProvider) checkResponse(resp *saml.Response, now time.Time) error {
	if resp.Destination != "" && resp.Destination != p.sp.AcsURL.String() {
		return fmt.Errorf("destination %q does not match %q", resp.Destination, p.sp.AcsURL.String())
	}

	if resp.Issuer != nil && resp.Issuer.Value != p.cfg.IDPEntityID {
		return fmt.Errorf("response issuer %q is not the IdP", resp.Issuer.Value)
	}

	if resp.Status.StatusCode.Value != saml.StatusSuccess {
		return fmt.Errorf("status %q", resp.Status.StatusCode.Value)
	}

	if err := checkIssueInstant("response", resp.IssueInstant, now); err != nil {
		return err
	}

	if resp.EncryptedAssertion != nil {
		return fmt.Errorf("encrypted assertions are not supported on the redirect binding")
	}

	assertion := resp.Assertion
	if assertion == nil {
		return fmt.Errorf("response has no assertion")
	}

	if assertion.Issuer.Value != p.cfg.IDPEntityID {
		return fmt.Errorf("assertion issuer %q is not the IdP", assertion.Issuer.Value)
	}

	if err := checkIssueInstant("assertion", assertion.IssueInstant, now); err != nil {
		return err
	}

	if err := p.checkSubject(assertion.Subject, now); err != nil {
		return err
	}

	if assertion.Conditions == nil {
		return fmt.Errorf("assertion has no conditions")
	}

	skew := p.cfg.AllowedSkew
	if !assertion.Conditions.NotBefore.IsZero() && now.Add(skew).Before(assertion.Conditions.NotBefore) {
		return fmt.Errorf("assertion not yet valid")
	}
	if assertion.Conditions.NotOnOrAfter.IsZero() {
		return fmt.Errorf("assertion conditions have no NotOnOrAfter")
	}
	if !now.Add(-skew).Before(assertion.Conditions.NotOnOrAfter) {
		return fmt.Errorf("assertion expired")
	}

	audience := p.sp.EntityID
	if audience == "" {
		audience = p.sp.MetadataURL.String()
	}

	restrictions := assertion.Conditions.AudienceRestrictions
	if len(restrictions) > 0 {
		matched := false
		for _, ar := range restrictions {
			if ar.Audience.Value == audience {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("audience %q not allowed", audience)
		}
	}

	return nil
}

func checkIssueInstant(what string, issued, now time.Time) error {
	if issued.IsZero() {
		return fmt.Errorf("%s has no IssueInstant", what)
	}
	if issued.Add(saml.MaxIssueDelay).Before(now) {
		return fmt.Errorf("%s IssueInstant expired at %s", what, issued.Add(saml.MaxIssueDelay))
	}
	if issued.After(now.Add(saml.MaxClockSkew)) {
		return fmt.Errorf("%s IssueInstant is in the future", what)
	}
	return nil
}

// checkSubject requires at least one bearer confirmation and holds every
// confirmation to our ACS URL and its own expiry.
func (p *ServiceProvider) checkSubject(subject *saml.Subject, now time.Time) error {
	if subject == nil || len(subject.SubjectConfirmations) == 0 {
		return fmt.Errorf("assertion has no subject confirmation")
	}

	acs := p.sp.AcsURL.String()
	bearer := false
	for _, sc := range subject.SubjectConfirmations {
		data := sc.SubjectConfirmationData
		if data == nil {
			return fmt.Errorf("subject confirmation has no data")
		}
		if data.Recipient != acs {
			return fmt.Errorf("subject confirmation recipient %q is not %q", data.Recipient, acs)
		}
		if data.NotOnOrAfter.IsZero() || data.NotOnOrAfter.Add(saml.MaxClockSkew).Before(now) {
			return fmt.Errorf("subject confirmation expired")
		}
		if sc.Method == bearerConfirmation {
			bearer = true
		}
	}
	if !bearer {
		return fmt.Errorf("assertion has no bearer subject confirmation")
	}
	return nil
}

type rawParam struct {
	key   string
	value string
}

type rawParams []rawParam

func (ps rawParams) get(key string) string {
	for _, p := range ps {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

func (ps rawParams) has(key string) bool {
	for _, p := range ps {
		if p.key == key {
			return true
		}
	}
	return false
}

// splitRawQuery keeps values URL encoded, the signature covers the
// encoded form.
func splitRawQuery(rawQuery string) (rawParams, error) {
	params := rawParams{}
	for _, part := range strings.Split(strings.TrimPrefix(rawQuery, "?"), "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		params = append(params, rawParam{key: key, value: value})
	}

	if params.get("SAMLResponse") == "" {
		return nil, fmt.Errorf("missing SAMLResponse")
	}
	return params, nil
}

func verifyRedirectSignature(params rawParams, pub any) error {
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("idp certificate key is not RSA")
	}

	if params.get("Signature") == "" || params.get("SigAlg") == "" {
		return fmt.Errorf("redirect binding response is not signed")
	}

	sigAlg, err := url.QueryUnescape(params.get("SigAlg"))
	if err != nil {
		return err
	}

	rawSig, err := url.QueryUnescape(params.get("Signature"))
	if err != nil {
		return err
	}

	sig, err := base64.StdEncoding.DecodeString(rawSig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	signed := "SAMLResponse=" + params.get("SAMLResponse")
	if params.has("RelayState") {
		signed += "&RelayState=" + params.get("RelayState")
	}
	signed += "&SigAlg=" + params.get("SigAlg")

	switch sigAlg {
	case SigAlgRSASHA256:
		digest := sha256.Sum256([]byte(signed))
		return rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest[:], sig)
	case SigAlgRSASHA1:
		digest := sha1.Sum([]byte(signed))
		return rsa.VerifyPKCS1v15(rsaKey, crypto.SHA1, digest[:], sig)
	default:
		return fmt.Errorf("unsupported signature algorithm %q", sigAlg)
	}
}

func inflateResponse(encoded string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode SAMLResponse: %w", err)
	}

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	raw, err := io.ReadAll(io.LimitReader(r, maxInflatedResponse))
	if err != nil {
		return nil, fmt.Errorf("inflate SAMLResponse: %w", err)
	}
	return raw, nil
}
