package server

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateExternalRedirectURL validates an absolute redirect URL against an allowlist.
// Returns the canonical URL and true when allowed; otherwise returns ("", false).
func ValidateExternalRedirectURL(rawURL string, allowedHosts []string) (string, bool) {
	return validateExternalRedirect(rawURL, normalizeRedirectAllowlist(allowedHosts))
}

func normalizeRedirectAllowlist(allowedHosts []string) map[string]struct{} {
	allowlist := make(map[string]struct{}, len(allowedHosts))
	for _, host := range allowedHosts {
		if h := strings.ToLower(strings.TrimSpace(host)); h != "" {
			allowlist[h] = struct{}{}
		}
	}
	if len(allowlist) == 0 {
		return nil
	}
	return allowlist
}

func validateExternalRedirect(rawURL string, allowlist map[string]struct{}) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || u.User != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if _, ok := allowlist[strings.ToLower(u.Host)]; !ok {
		if _, ok := allowlist[strings.ToLower(u.Hostname())]; !ok {
			return "", false
		}
	}
	return u.String(), true
}

// checkNavigation returns the URL a goTo instruction may carry. Relative
// URLs stay on the current site and pass unchanged.
func checkNavigation(rawURL string, allowlist map[string]struct{}) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedirectNotAllowed, err)
	}
	if u.Scheme == "" && u.Host == "" {
		return rawURL, nil
	}
	target, ok := validateExternalRedirect(rawURL, allowlist)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRedirectNotAllowed, u.Host)
	}
	return target, nil
}
