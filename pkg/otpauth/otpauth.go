// Package otpauth parses and builds otpauth:// enrollment URIs, the
// interchange format produced by QR codes and deep links. Parsing is a pure
// transform; surfacing failures to a user is the caller's concern.
package otpauth

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// minSecretLen matches the TOTP engine's minimum base32 text length.
const minSecretLen = 16

// DefaultIssuer is used when neither the issuer parameter nor a label
// prefix names one.
const DefaultIssuer = "Unknown"

var (
	ErrScheme        = errors.New("otpauth: not an otpauth:// URI")
	ErrNotTOTP       = errors.New("otpauth: not a TOTP URI")
	ErrMissingSecret = errors.New("otpauth: missing secret parameter")
	ErrShortSecret   = errors.New("otpauth: secret too short")
	ErrUnparseable   = errors.New("otpauth: unparseable URI")
)

// fallbackRe recovers the label and query from URIs that the strict parser
// rejects (stray characters, malformed escapes in unused parameters).
var fallbackRe = regexp.MustCompile(`(?i)^otpauth://totp/([^?]*)(?:\?(.*))?$`)

// Enrollment is the parsed form of a TOTP enrollment URI.
//
// Label is kept exactly as authored, including any "Issuer:" prefix, even
// when the issuer was also supplied as a query parameter. Stripping the
// prefix would change what the user sees relative to the enrolling service's
// intent.
type Enrollment struct {
	Issuer string
	Label  string
	Secret string
}

// Parse decodes an otpauth://totp/<label>?secret=...&issuer=... URI.
// It returns one of the package's typed errors on rejection.
func Parse(raw string) (Enrollment, error) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(lower, "otpauth://") {
		return Enrollment{}, ErrScheme
	}
	if !strings.Contains(lower, "totp") {
		return Enrollment{}, ErrNotTOTP
	}

	label, query, err := split(strings.TrimSpace(raw))
	if err != nil {
		return Enrollment{}, err
	}

	secret := strings.Join(strings.Fields(query.Get("secret")), "")
	if secret == "" {
		return Enrollment{}, ErrMissingSecret
	}
	if len(secret) < minSecretLen {
		return Enrollment{}, ErrShortSecret
	}

	issuer := query.Get("issuer")
	if issuer == "" {
		if before, _, found := strings.Cut(label, ":"); found {
			issuer = before
		}
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}

	return Enrollment{Issuer: issuer, Label: label, Secret: secret}, nil
}

// split extracts the percent-decoded label and query, preferring the strict
// URL parser and falling back to the regex for inputs it rejects.
func split(raw string) (string, url.Values, error) {
	if u, err := url.Parse(raw); err == nil {
		query, qerr := url.ParseQuery(u.RawQuery)
		if qerr == nil {
			return strings.TrimPrefix(u.Path, "/"), query, nil
		}
	}

	m := fallbackRe.FindStringSubmatch(raw)
	if m == nil {
		return "", nil, ErrUnparseable
	}

	label := m[1]
	if decoded, err := url.PathUnescape(label); err == nil {
		label = decoded
	}

	query := url.Values{}
	for pair := range strings.SplitSeq(m[2], "&") {
		key, value, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		if key != "" {
			query.Add(key, value)
		}
	}

	return label, query, nil
}

// URI builds the canonical otpauth://totp form for an account, suitable for
// enrolling it on another device. The label is prefixed with the issuer when
// it is not already.
func URI(issuer, label, secret string) string {
	path := label
	if issuer != "" && !strings.HasPrefix(label, issuer+":") {
		path = issuer + ":" + label
	}

	values := url.Values{}
	values.Set("secret", secret)
	if issuer != "" {
		values.Set("issuer", issuer)
	}

	return "otpauth://totp/" + url.PathEscape(path) + "?" + values.Encode()
}
