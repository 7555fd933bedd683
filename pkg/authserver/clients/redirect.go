// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package clients

import (
	"net"
	"net/url"
	"strings"

	"github.com/stacklok/authcore/pkg/authserver/model"
)

const schemeHTTP = "http"

// MatchRedirectURI returns the redirect URI to use for requested when it
// matches one of the client's registered URIs.
//
// Loopback URIs follow RFC 8252 Section 7.3: the scheme is http, the host is
// 127.0.0.1, [::1] or localhost, any port is accepted and the path and query
// must match exactly. For a loopback match the requested URI is returned so
// the dynamic port is preserved.
func MatchRedirectURI(client *model.Client, requested string) (string, bool) {
	for _, registered := range client.RedirectURIs {
		if requested == registered {
			return registered, true
		}
		if matchesAsLoopback(requested, registered) {
			return requested, true
		}
	}
	return "", false
}

func matchesAsLoopback(requestedURI, registeredURI string) bool {
	requested, err := url.Parse(requestedURI)
	if err != nil {
		return false
	}
	registered, err := url.Parse(registeredURI)
	if err != nil {
		return false
	}

	if requested.Scheme != schemeHTTP || registered.Scheme != schemeHTTP {
		return false
	}
	if !IsLoopbackHost(requested.Hostname()) || !IsLoopbackHost(registered.Hostname()) {
		return false
	}

	// 127.0.0.1 and localhost are different hosts; localhost is case-insensitive.
	sameHost := requested.Hostname() == registered.Hostname() ||
		(strings.EqualFold(requested.Hostname(), "localhost") && strings.EqualFold(registered.Hostname(), "localhost"))
	if !sameHost {
		return false
	}

	return requested.Path == registered.Path && requested.RawQuery == registered.RawQuery
}

// IsLoopbackHost reports whether hostname is localhost or a loopback IP.
func IsLoopbackHost(hostname string) bool {
	if strings.EqualFold(hostname, "localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}
