// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package observe builds fingerprint observations from HTTP responses, raw
// response dumps, JSON observation files and TLS certificates. It performs no
// network I/O; probing a target is the caller's job.
package observe

import (
	"bufio"
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vulntor/webprint/pkg/fingerprint"
)

// DefaultMaxBody bounds the body read from a response.
const DefaultMaxBody int64 = 4 << 20

// ErrNoCertificate is returned when PEM data holds no certificate block.
var ErrNoCertificate = errors.New("no certificate found")

// FromResponse converts resp into an observation and consumes its body. At most
// maxBody bytes are read; a non-positive value selects DefaultMaxBody.
func FromResponse(resp *http.Response, maxBody int64) (*fingerprint.Observation, error) {
	if resp == nil {
		return nil, errors.New("nil response")
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}

	obs := &fingerprint.Observation{Headers: normalizeHeaders(resp.Header)}
	if resp.Request != nil && resp.Request.URL != nil {
		obs.Target = resp.Request.URL.String()
	}
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		obs.TLS = TLSFromCertificate(resp.TLS.PeerCertificates[0])
	}

	if resp.Body != nil {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		obs.Body = string(body)
	}
	return obs, nil
}

// ParseRawResponse reads a raw HTTP response dump (status line, headers, blank
// line, body) such as the output of curl -i. The body is everything after the
// first blank line, exactly as dumped: Content-Length and Transfer-Encoding
// describe the original wire framing and are kept as headers only. HTTP/2 and
// HTTP/3 status lines are accepted, and interim 1xx responses are skipped.
func ParseRawResponse(target string, raw []byte) (*fingerprint.Observation, error) {
	head, body := splitRawResponse(raw)
	for {
		code, ok := interimStatus(head)
		if !ok {
			break
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, fmt.Errorf("parse raw response: only an interim %d response", code)
		}
		head, body = splitRawResponse(body)
	}

	head = append(rewriteStatusLine(head), "\r\n\r\n"...)
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(head)), nil)
	if err != nil {
		return nil, fmt.Errorf("parse raw response: %w", err)
	}
	// the framing headers point past the header block; the body is never read
	_ = resp.Body.Close()

	headers := resp.Header.Clone()
	for _, te := range resp.TransferEncoding {
		headers.Add("Transfer-Encoding", te)
	}
	if int64(len(body)) > DefaultMaxBody {
		body = body[:DefaultMaxBody]
	}
	return &fingerprint.Observation{
		Target:  target,
		Headers: normalizeHeaders(headers),
		Body:    string(body),
	}, nil
}

// splitRawResponse separates the header block from the body at the first
// blank line. Leading blank lines are ignored.
func splitRawResponse(raw []byte) (head, body []byte) {
	raw = bytes.TrimLeft(raw, "\r\n")
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	lf := bytes.Index(raw, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return raw[:crlf], raw[crlf+4:]
	case lf >= 0:
		return raw[:lf], raw[lf+2:]
	default:
		return raw, nil
	}
}

// rewriteStatusLine maps HTTP/2 and HTTP/3 status lines, which net/http cannot
// read from a text dump, onto HTTP/1.1.
func rewriteStatusLine(head []byte) []byte {
	proto, rest, ok := bytes.Cut(head, []byte(" "))
	if !ok || bytes.HasPrefix(proto, []byte("HTTP/1.")) || !bytes.HasPrefix(proto, []byte("HTTP/")) {
		return append([]byte(nil), head...)
	}
	out := make([]byte, 0, len(head)+4)
	out = append(out, "HTTP/1.1 "...)
	return append(out, rest...)
}

// interimStatus reports whether head starts with a 1xx status line.
func interimStatus(head []byte) (int, bool) {
	line, _, _ := bytes.Cut(head, []byte("\n"))
	fields := strings.Fields(string(line))
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil || code < 100 || code > 199 {
		return 0, false
	}
	return code, true
}

// normalizeHeaders lower-cases header names and drops empty entries.
func normalizeHeaders(h http.Header) map[string][]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string][]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		key := strings.ToLower(name)
		out[key] = append(out[key], values...)
	}
	return out
}

// TLSFromCertificate extracts the certificate fields the engine can match on.
// SANs hold DNS names, then IP addresses, e-mail addresses and URIs.
func TLSFromCertificate(cert *x509.Certificate) *fingerprint.TLSInfo {
	if cert == nil {
		return nil
	}
	info := &fingerprint.TLSInfo{
		Issuer:  cert.Issuer.String(),
		Subject: cert.Subject.String(),
	}
	info.SANs = append(info.SANs, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		info.SANs = append(info.SANs, ip.String())
	}
	info.SANs = append(info.SANs, cert.EmailAddresses...)
	for _, u := range cert.URIs {
		info.SANs = append(info.SANs, u.String())
	}
	return info
}

// TLSFromPEM parses the first certificate block of data.
func TLSFromPEM(data []byte) (*fingerprint.TLSInfo, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrNoCertificate
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		return TLSFromCertificate(cert), nil
	}
}
