// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package observe

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/webprint/pkg/fingerprint"
)

const rawTomcat = "HTTP/1.1 200 OK\n" +
	"Server: Apache-Coyote/1.1\n" +
	"Set-Cookie: JSESSIONID=abc; Path=/\n" +
	"Set-Cookie: symfony=xyz\n" +
	"Content-Type: text/html\n" +
	"\n" +
	"<html><head><title>Apache Tomcat/9.0.71</title></head><body></body></html>"

func selfSignedPEM(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "fortigate.local", Organization: []string{"Fortinet"}},
		Issuer:       pkix.Name{CommonName: "fortigate.local", Organization: []string{"Fortinet"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"fortigate.local", "vpn.example.com"},
		IPAddresses:  []net.IP{net.ParseIP("10.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestFromResponse_TLSServer(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "nostromo 1.9.6")
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		_, _ = w.Write([]byte("<title>hello</title>"))
	}))
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/index")
	require.NoError(t, err)
	defer resp.Body.Close()

	obs, err := FromResponse(resp, 0)
	require.NoError(t, err)
	require.Equal(t, ts.URL+"/index", obs.Target)
	require.Equal(t, "<title>hello</title>", obs.Body)
	require.Equal(t, []string{"nostromo 1.9.6"}, obs.Headers["server"])
	require.Equal(t, []string{"a", "b"}, obs.Headers["x-multi"])

	require.NotNil(t, obs.TLS)
	require.Contains(t, obs.TLS.Issuer, "Acme Co")
	require.Contains(t, obs.TLS.SANs, "example.com")
	require.Contains(t, obs.TLS.SANs, "127.0.0.1")
}

func TestFromResponse_LimitsBody(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{},
		Body:   http.NoBody,
	}
	obs, err := FromResponse(resp, 0)
	require.NoError(t, err)
	require.Empty(t, obs.Body)
	require.Nil(t, obs.Headers)

	resp = &http.Response{Body: nopCloser{strings.NewReader(strings.Repeat("x", 100))}}
	obs, err = FromResponse(resp, 10)
	require.NoError(t, err)
	require.Len(t, obs.Body, 10)

	_, err = FromResponse(nil, 0)
	require.Error(t, err)
}

type nopCloser struct{ *strings.Reader }

func (nopCloser) Close() error { return nil }

func TestParseRawResponse(t *testing.T) {
	obs, err := ParseRawResponse("http://10.0.0.5:8080", []byte(rawTomcat))
	require.NoError(t, err)

	require.Equal(t, "http://10.0.0.5:8080", obs.Target)
	require.Equal(t, []string{"Apache-Coyote/1.1"}, obs.Headers["server"])
	require.Len(t, obs.Headers["set-cookie"], 2)
	require.True(t, strings.HasPrefix(obs.Body, "<html><head><title>Apache Tomcat/9.0.71"))

	cookies := fingerprint.Resolve(obs, fingerprint.ParseFieldPath("cookies[symfony]"))
	require.Equal(t, []string{"xyz"}, cookies)

	_, err = ParseRawResponse("x", []byte("not an http response"))
	require.Error(t, err)
}

func TestParseRawResponse_Dumps(t *testing.T) {
	const page = "<html><head></head><title>Apache Tomcat</title>"

	tests := []struct {
		name    string
		raw     string
		headers map[string][]string
		body    string
	}{
		{
			name:    "http2 status line",
			raw:     "HTTP/2 200\r\nserver: nginx\r\ncontent-type: text/html\r\n\r\n" + page,
			headers: map[string][]string{"server": {"nginx"}},
			body:    page,
		},
		{
			name:    "http3 status line with reason",
			raw:     "HTTP/3 404 Not Found\nserver: caddy\n\n" + page,
			headers: map[string][]string{"server": {"caddy"}},
			body:    page,
		},
		{
			name:    "chunked with decoded body",
			raw:     "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\nServer: Apache-Coyote/1.1\r\n\r\n" + page,
			headers: map[string][]string{"server": {"Apache-Coyote/1.1"}, "transfer-encoding": {"chunked"}},
			body:    page,
		},
		{
			name:    "stale content length",
			raw:     "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\n" + page,
			headers: map[string][]string{"content-length": {"10"}},
			body:    page,
		},
		{
			name:    "interim continue",
			raw:     "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 200 OK\r\nServer: nostromo 1.9.6\r\n\r\n" + page,
			headers: map[string][]string{"server": {"nostromo 1.9.6"}},
			body:    page,
		},
		{
			name:    "no body",
			raw:     "HTTP/1.1 204 No Content\r\nServer: nginx\r\n",
			headers: map[string][]string{"server": {"nginx"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := ParseRawResponse("https://app.example", []byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, tt.body, obs.Body)
			for name, values := range tt.headers {
				require.Equal(t, values, obs.Headers[name], name)
			}
		})
	}
}

func TestParseRawResponse_OnlyInterim(t *testing.T) {
	_, err := ParseRawResponse("x", []byte("HTTP/1.1 100 Continue\r\n\r\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "interim 100")
}

func TestTLSFromPEM(t *testing.T) {
	certPEM := selfSignedPEM(t)
	keyBlock := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1, 2, 3}})

	info, err := TLSFromPEM(append(keyBlock, certPEM...))
	require.NoError(t, err)
	require.Equal(t, "CN=fortigate.local,O=Fortinet", info.Subject)
	require.Equal(t, info.Subject, info.Issuer)
	require.Equal(t, []string{"fortigate.local", "vpn.example.com", "10.0.0.1"}, info.SANs)

	obs := &fingerprint.Observation{TLS: info}
	require.Equal(t, []string{"CN=fortigate.local,O=Fortinet"}, fingerprint.Resolve(obs, fingerprint.ParseFieldPath("ssl.cert.issuer")))

	_, err = TLSFromPEM(keyBlock)
	require.ErrorIs(t, err, ErrNoCertificate)
	_, err = TLSFromPEM(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")}))
	require.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	data := `[
	  {
	    "target": "https://a.example",
	    "headers": {"Server": "nginx/1.18 (Ubuntu)", "Set-Cookie": ["a=1", "b=2"], "X-Count": 3},
	    "body": "<title>Traccar</title>",
	    "cookies": {"session": 42},
	    "tls": {"issuer": "CN=R3", "subject": "CN=a.example", "san": "a.example"}
	  },
	  {"target": "b", "raw": "HTTP/1.0 404 Not Found\r\nServer: Jetty(9.4.51)\r\n\r\nmissing"}
	]`

	obs, err := DecodeJSON([]byte(data))
	require.NoError(t, err)
	require.Len(t, obs, 2)

	a := obs[0]
	require.Equal(t, "https://a.example", a.Target)
	require.Equal(t, []string{"nginx/1.18 (Ubuntu)"}, a.Headers["server"])
	require.Equal(t, []string{"a=1", "b=2"}, a.Headers["set-cookie"])
	require.Equal(t, []string{"3"}, a.Headers["x-count"])
	require.Equal(t, map[string]string{"session": "42"}, a.Cookies)
	require.Equal(t, &fingerprint.TLSInfo{Issuer: "CN=R3", Subject: "CN=a.example", SANs: []string{"a.example"}}, a.TLS)

	b := obs[1]
	require.Equal(t, "b", b.Target)
	require.Equal(t, []string{"Jetty(9.4.51)"}, b.Headers["server"])
	require.Equal(t, "missing", b.Body)

	single, err := DecodeJSON([]byte(`{"body": "x"}`))
	require.NoError(t, err)
	require.Len(t, single, 1)
	require.Equal(t, "x", single[0].Body)
}

func TestDecodeJSON_Errors(t *testing.T) {
	tests := map[string]string{
		"syntax":      `{"body": `,
		"scalar":      `"text"`,
		"item":        `[1]`,
		"body object": `{"body": {"a": 1}}`,
		"headers":     `{"headers": ["Server"]}`,
		"raw":         `{"raw": "garbage"}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeJSON([]byte(data))
			require.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "obs.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"body": "<title>Wazuh</title>"}`), 0o644))
	obs, err := LoadFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, jsonPath, obs[0].Target)

	rawPath := filepath.Join(dir, "tomcat.http")
	require.NoError(t, os.WriteFile(rawPath, []byte(rawTomcat), 0o644))
	obs, err = LoadFile(rawPath)
	require.NoError(t, err)
	require.Equal(t, rawPath, obs[0].Target)
	require.Equal(t, []string{"Apache-Coyote/1.1"}, obs[0].Headers["server"])

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
