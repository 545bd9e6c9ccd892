package auth

import (
	"net/http"
	"strings"
)

// Policy decides which role a request needs. Exempt paths, such as health
// and metrics, skip authentication entirely.
type Policy struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewDefaultPolicy builds the admin API policy with the given exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	p := Policy{exact: make(map[string]struct{}, len(exemptPaths)), prefixes: exemptPrefixes}
	for _, path := range exemptPaths {
		p.exact[path] = struct{}{}
	}
	return p
}

// IsExempt reports whether r bypasses authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.exact[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves required role for the request. Cycle state changes
// that move money or undo work need admin; calculations need operator.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method

	switch {
	case strings.HasPrefix(path, "/api/v1/calculations/"):
		return RoleOperator, true
	case path == "/api/v1/cycles" && method == http.MethodPost:
		return RoleOperator, true
	case strings.HasPrefix(path, "/api/v1/cycles/") && method == http.MethodPost:
		switch {
		case strings.HasSuffix(path, "/lock"):
			return RoleOperator, true
		case strings.HasSuffix(path, "/settle"), strings.HasSuffix(path, "/invoice"),
			strings.HasSuffix(path, "/remit"), strings.HasSuffix(path, "/reset"):
			return RoleAdmin, true
		}
		return RoleOperator, true
	case strings.HasPrefix(path, "/api/v1/remittances/") && method == http.MethodPost:
		return RoleAdmin, true
	case strings.HasPrefix(path, "/api/v1/exports/"):
		if strings.HasSuffix(path, "/download") {
			return RoleOperator, true
		}
		return RoleViewer, true
	case path == "/api/v1/reports/preview":
		return RoleViewer, true
	case path == "/api/v1/audit":
		return RoleAdmin, true
	}

	if strings.HasPrefix(path, "/api/") {
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return RoleViewer, true
		}
		return RoleOperator, true
	}
	return "", false
}
