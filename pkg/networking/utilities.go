// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URL schemes
const (
	HttpScheme  = "http"
	HttpsScheme = "https"
)

// IsURL reports whether input is an absolute http or https URL with a host.
func IsURL(input string) bool {
	parsed, err := url.Parse(input)
	if err != nil {
		return false
	}
	if parsed.Scheme != HttpScheme && parsed.Scheme != HttpsScheme {
		return false
	}
	return parsed.Host != ""
}

// IsLocalhost reports whether host (with or without port) is a loopback host.
func IsLocalhost(host string) bool {
	if host == "" {
		return false
	}
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.TrimSuffix(strings.TrimPrefix(hostname, "["), "]")

	if strings.EqualFold(hostname, "localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

// ValidateEndpointURL checks that endpoint is an absolute URL using HTTPS.
// Plain HTTP is accepted for loopback hosts only.
func ValidateEndpointURL(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint URL is empty")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL %q: %w", endpoint, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("endpoint URL %q has no host", endpoint)
	}
	switch parsed.Scheme {
	case HttpsScheme:
		return nil
	case HttpScheme:
		if IsLocalhost(parsed.Host) {
			return nil
		}
		return fmt.Errorf("endpoint URL %q must use HTTPS", endpoint)
	default:
		return fmt.Errorf("endpoint URL %q has unsupported scheme %q", endpoint, parsed.Scheme)
	}
}

// AddressReferencesPrivateIp returns an error if address (host:port) resolves
// to a private, loopback, link-local or unspecified IP.
func AddressReferencesPrivateIp(address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid address %s: %w", address, err)
	}

	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		ips, err = net.LookupIP(host)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", host, err)
		}
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("the address %s references a private IP", address)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
