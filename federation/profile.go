package federation

import (
	"strings"

	"github.com/crewjam/saml"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

// nameIDAlias stands for the assertion subject NameID in alias tables.
const nameIDAlias = "$NameID"

// DefaultFirstName is used when the IdP sends no given name.
const DefaultFirstName = "User"

// ClaimAliases lists the attribute names tried for each profile field, in
// priority order. The first non empty value wins.
type ClaimAliases struct {
	Email     []string
	FirstName []string
	LastName  []string
}

// DefaultClaimAliases covers the common Azure AD, Okta, Google and OID
// attribute names.
var DefaultClaimAliases = ClaimAliases{
	Email: []string{
		"email",
		"mail",
		nameIDAlias,
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
		"urn:oid:0.9.2342.19200300.100.1.3",
	},
	FirstName: []string{
		"firstName",
		"givenName",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname",
		"urn:oid:2.5.4.42",
	},
	LastName: []string{
		"lastName",
		"surname",
		"sn",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname",
		"urn:oid:2.5.4.4",
	},
}

// Profile is the identity asserted by the IdP.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
	NameID    string
}

// ProfileFromAssertion maps assertion attributes to a Profile using the
// default alias table.
func ProfileFromAssertion(assertion *saml.Assertion) (*Profile, error) {
	return DefaultClaimAliases.Map(assertion)
}

// Map resolves every field through its alias list.
func (a ClaimAliases) Map(assertion *saml.Assertion) (*Profile, error) {
	if assertion == nil {
		return nil, ErrMissingEmailClaim
	}

	attrs := collectAttributes(assertion)

	email := auth.NormalizeEmail(attrs.first(a.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrMissingEmailClaim
	}

	profile := &Profile{
		Email:     email,
		FirstName: attrs.first(a.FirstName),
		LastName:  attrs.first(a.LastName),
		NameID:    attrs.nameID,
	}
	if profile.FirstName == "" {
		profile.FirstName = DefaultFirstName
	}
	return profile, nil
}

type attributeSet struct {
	values map[string]string
	nameID string
}

func collectAttributes(assertion *saml.Assertion) attributeSet {
	set := attributeSet{values: map[string]string{}}

	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		set.nameID = strings.TrimSpace(assertion.Subject.NameID.Value)
	}

	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			value := firstValue(attr)
			if value == "" {
				continue
			}
			for _, key := range []string{attr.Name, attr.FriendlyName} {
				if key == "" {
					continue
				}
				if _, seen := set.values[key]; !seen {
					set.values[key] = value
				}
			}
		}
	}
	return set
}

func (s attributeSet) first(aliases []string) string {
	for _, alias := range aliases {
		if alias == nameIDAlias {
			if s.nameID != "" {
				return s.nameID
			}
			continue
		}
		if v := s.values[alias]; v != "" {
			return v
		}
	}
	return ""
}

func firstValue(attr saml.Attribute) string {
	for _, v := range attr.Values {
		if trimmed := strings.TrimSpace(v.Value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
