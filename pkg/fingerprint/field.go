// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fingerprint

import (
	"sort"
	"strings"
)

// FieldPath addresses one part of an Observation. It is a closed set of variants
// produced by ParseFieldPath.
type FieldPath interface {
	String() string
	fieldPath()
}

// HeaderField selects the values of one response header. An empty Name selects
// all headers rendered as "name: value" lines.
type HeaderField struct{ Name string }

// BodyField selects the raw response body.
type BodyField struct{}

// TitleField selects the first <title> element of the body, delimiters included.
type TitleField struct{}

// HeadField selects the <head> section of the body.
type HeadField struct{}

// CookieField selects one cookie value. An empty Name selects all cookies as a
// single "a=1; b=2" string.
type CookieField struct{ Name string }

// CertAttr names a certificate attribute.
type CertAttr string

const (
	CertIssuer  CertAttr = "issuer"
	CertSubject CertAttr = "subject"
	CertSAN     CertAttr = "san"
)

// CertField selects a TLS certificate attribute.
type CertField struct{ Attr CertAttr }

// UnknownField is a path outside the grammar. It never resolves to a value.
type UnknownField struct{ Raw string }

func (HeaderField) fieldPath()  {}
func (BodyField) fieldPath()    {}
func (TitleField) fieldPath()   {}
func (HeadField) fieldPath()    {}
func (CookieField) fieldPath()  {}
func (CertField) fieldPath()    {}
func (UnknownField) fieldPath() {}

func (f HeaderField) String() string {
	if f.Name == "" {
		return "headers"
	}
	return "headers[" + f.Name + "]"
}

func (BodyField) String() string  { return "body" }
func (TitleField) String() string { return "title" }
func (HeadField) String() string  { return "head" }

func (f CookieField) String() string {
	if f.Name == "" {
		return "cookies"
	}
	return "cookies[" + f.Name + "]"
}

func (f CertField) String() string   { return "ssl.cert." + string(f.Attr) }
func (f UnknownField) String() string { return f.Raw }

// ParseFieldPath parses a symbolic field path. An empty path means the body.
// Paths outside the grammar yield UnknownField.
func ParseFieldPath(raw string) FieldPath {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "body":
		return BodyField{}
	case "title":
		return TitleField{}
	case "head":
		return HeadField{}
	case "headers":
		return HeaderField{}
	case "cookies":
		return CookieField{}
	case "ssl.cert.issuer":
		return CertField{Attr: CertIssuer}
	case "ssl.cert.subject":
		return CertField{Attr: CertSubject}
	case "ssl.cert.san":
		return CertField{Attr: CertSAN}
	}

	if name, ok := bracketed(s, "headers"); ok {
		return HeaderField{Name: strings.ToLower(name)}
	}
	// cookie names are case-sensitive
	if name, ok := bracketed(s, "cookies"); ok {
		return CookieField{Name: name}
	}
	return UnknownField{Raw: raw}
}

func bracketed(s, prefix string) (string, bool) {
	if len(s) < len(prefix)+2 || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	rest := s[len(prefix):]
	if rest[0] != '[' || rest[len(rest)-1] != ']' {
		return "", false
	}
	name := strings.TrimSpace(rest[1 : len(rest)-1])
	if name == "" || strings.ContainsAny(name, "[]") {
		return "", false
	}
	return name, true
}

// Resolve returns the values addressed by path in obs. Absent fields resolve to
// an empty slice.
func Resolve(obs *Observation, path FieldPath) []string {
	vals := newFieldView(obs).resolve(path)
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.raw
	}
	return out
}

// fieldValue is one resolved value. Large derived fields carry precomputed case
// folded and rune forms so that hundreds of rules do not recompute them.
type fieldValue struct {
	raw    string
	folded string
	runes  []rune
	cached bool
}

func plainValue(s string) fieldValue {
	return fieldValue{raw: s}
}

func cachedValue(s string) fieldValue {
	return fieldValue{raw: s, folded: strings.ToLower(s), runes: []rune(s), cached: true}
}

func (v fieldValue) fold() string {
	if v.cached {
		return v.folded
	}
	return strings.ToLower(v.raw)
}

func (v fieldValue) runeSlice() []rune {
	if v.cached {
		return v.runes
	}
	return []rune(v.raw)
}

// fieldView is a read-only projection of an Observation shared by all workers
// of one scan.
type fieldView struct {
	headers     map[string][]fieldValue
	headerBlock []fieldValue
	body        []fieldValue
	title       []fieldValue
	head        []fieldValue
	cookies     map[string]string
	cookieLine  []fieldValue
	tls         *TLSInfo
}

func newFieldView(obs *Observation) *fieldView {
	v := &fieldView{headers: make(map[string][]fieldValue)}
	if obs == nil {
		return v
	}

	// sorted raw names keep the value order stable when "Server" and "server" both occur
	raw := make([]string, 0, len(obs.Headers))
	for name := range obs.Headers {
		raw = append(raw, name)
	}
	sort.Strings(raw)

	names := make([]string, 0, len(raw))
	lowered := make(map[string][]string, len(raw))
	for _, name := range raw {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := lowered[key]; !seen {
			names = append(names, key)
		}
		lowered[key] = append(lowered[key], obs.Headers[name]...)
	}
	sort.Strings(names)

	var block strings.Builder
	for _, name := range names {
		for _, value := range lowered[name] {
			v.headers[name] = append(v.headers[name], plainValue(value))
			block.WriteString(name)
			block.WriteString(": ")
			block.WriteString(value)
			block.WriteString("\n")
		}
	}
	if block.Len() > 0 {
		v.headerBlock = []fieldValue{cachedValue(block.String())}
	}

	if obs.Body != "" {
		v.body = []fieldValue{cachedValue(obs.Body)}
		if title, ok := extractTitle(obs.Body); ok {
			v.title = []fieldValue{cachedValue(title)}
		}
		v.head = []fieldValue{cachedValue(extractHead(obs.Body))}
	}

	v.cookies = obs.Cookies
	if v.cookies == nil {
		v.cookies = cookiesFromHeaders(lowered["set-cookie"])
	}
	if line := cookieLine(v.cookies); line != "" {
		v.cookieLine = []fieldValue{plainValue(line)}
	}

	v.tls = obs.TLS
	return v
}

func (v *fieldView) resolve(path FieldPath) []fieldValue {
	switch p := path.(type) {
	case BodyField:
		return v.body
	case TitleField:
		return v.title
	case HeadField:
		return v.head
	case HeaderField:
		if p.Name == "" {
			return v.headerBlock
		}
		return v.headers[strings.ToLower(p.Name)]
	case CookieField:
		if p.Name == "" {
			return v.cookieLine
		}
		if value, ok := v.cookies[p.Name]; ok {
			return []fieldValue{plainValue(value)}
		}
		return nil
	case CertField:
		return v.resolveCert(p.Attr)
	default:
		return nil
	}
}

func (v *fieldView) resolveCert(attr CertAttr) []fieldValue {
	if v.tls == nil {
		return nil
	}
	switch attr {
	case CertIssuer:
		if v.tls.Issuer != "" {
			return []fieldValue{plainValue(v.tls.Issuer)}
		}
	case CertSubject:
		if v.tls.Subject != "" {
			return []fieldValue{plainValue(v.tls.Subject)}
		}
	case CertSAN:
		out := make([]fieldValue, 0, len(v.tls.SANs))
		for _, san := range v.tls.SANs {
			out = append(out, plainValue(san))
		}
		return out
	}
	return nil
}

// extractTitle returns the first <title>...</title> element including its
// delimiters. A title without a closing tag is treated as absent.
func extractTitle(body string) (string, bool) {
	lower := asciiLower(body)
	start := indexTag(lower, "<title", 0)
	if start < 0 {
		return "", false
	}
	end := strings.Index(lower[start:], "</title>")
	if end < 0 {
		return "", false
	}
	return body[start : start+end+len("</title>")], true
}

// extractHead returns the <head> section of body. Without a <head> marker the
// document prefix before <body is used, or the whole body when neither exists.
func extractHead(body string) string {
	lower := asciiLower(body)
	start := indexTag(lower, "<head", 0)
	if start < 0 {
		if b := indexTag(lower, "<body", 0); b >= 0 {
			return body[:b]
		}
		return body
	}
	if end := strings.Index(lower[start:], "</head>"); end >= 0 {
		return body[start : start+end+len("</head>")]
	}
	if b := indexTag(lower, "<body", start); b >= 0 {
		return body[start:b]
	}
	return body[start:]
}

// indexTag finds an opening tag name followed by '>', '/' or whitespace, so
// that "<head" does not match "<header".
func indexTag(lower, tag string, from int) int {
	for from <= len(lower) {
		i := strings.Index(lower[from:], tag)
		if i < 0 {
			return -1
		}
		pos := from + i
		next := pos + len(tag)
		if next >= len(lower) {
			return pos
		}
		switch lower[next] {
		case '>', '/', ' ', '\t', '\n', '\r', '\f':
			return pos
		}
		from = next
	}
	return -1
}

// asciiLower lowers A-Z only, keeping byte offsets aligned with the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func cookiesFromHeaders(setCookies []string) map[string]string {
	if len(setCookies) == 0 {
		return nil
	}
	cookies := make(map[string]string, len(setCookies))
	for _, line := range setCookies {
		pair, _, _ := strings.Cut(line, ";")
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		if _, exists := cookies[name]; exists {
			continue
		}
		cookies[name] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return cookies
}

func cookieLine(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}
