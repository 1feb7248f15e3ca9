package server

import (
	"net/http"
	"strings"
)

// OriginPolicy decides which browser origins may open a connection.
type OriginPolicy struct {
	allowed  []string
	allowAll bool
}

// NewOriginPolicy builds a policy from the configured origins. "*" allows
// any origin; an empty list denies every connection.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			p.allowAll = true
			continue
		}
		p.allowed = append(p.allowed, origin)
	}
	return p
}

// Allow reports whether origin may connect.
func (p *OriginPolicy) Allow(origin string) bool {
	if p.allowAll {
		return true
	}
	if origin == "" {
		return false
	}
	for _, item := range p.allowed {
		if strings.EqualFold(item, origin) {
			return true
		}
	}
	return false
}

func (p *OriginPolicy) check(r *http.Request) bool {
	return p.Allow(r.Header.Get("Origin"))
}
