package git

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	giturls "github.com/whilp/git-urls"
)

// Remote points at the deployment repo somewhere.
type Remote struct {
	// URL is where we fetch from, without credentials.
	URL string `json:"url"`
}

// SafeURL returns the remote URL with any userinfo stripped, for use
// in logs and error messages. Tokens never appear in log output.
func (r Remote) SafeURL() string {
	u, err := giturls.Parse(r.URL)
	if err != nil {
		return fmt.Sprintf("<unparseable: %s>", r.URL)
	}
	u.User = nil
	return u.String()
}

// WithToken returns the remote URL with the short-lived token embedded
// as the HTTP userinfo, ready to be bound to the working tree's remote
// for the duration of one sync. Only http(s) remotes can carry a
// request-scoped token; local paths authenticate out of band and are
// returned unchanged.
func (r Remote) WithToken(token string) (string, error) {
	u, err := giturls.Parse(r.URL)
	if err != nil {
		return "", errors.Wrapf(err, "parsing remote url %s", r.SafeURL())
	}
	switch u.Scheme {
	case "http", "https":
		u.User = url.User(token)
		return u.String(), nil
	case "file", "":
		return r.URL, nil
	default:
		return "", errors.Errorf("remote %s cannot carry a token (scheme %q)", r.SafeURL(), u.Scheme)
	}
}

// Equivalent compares the given URL with the remote URL without taking
// protocols or `.git` suffixes into account.
func (r Remote) Equivalent(u string) bool {
	lu, err := giturls.Parse(r.URL)
	if err != nil {
		return false
	}
	ru, err := giturls.Parse(u)
	if err != nil {
		return false
	}
	trimPath := func(p string) string {
		return strings.TrimSuffix(strings.TrimPrefix(p, "/"), ".git")
	}
	return lu.Host == ru.Host && trimPath(lu.Path) == trimPath(ru.Path)
}
