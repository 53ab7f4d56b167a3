// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package observe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"

	"github.com/vulntor/webprint/pkg/fingerprint"
)

// DecodeJSON reads one observation or a list of observations. Values are
// coerced loosely so that hand-written and tool-generated files both work:
//
//	{
//	  "target": "https://example.com",
//	  "headers": {"Server": "nginx", "Set-Cookie": ["a=1", "b=2"]},
//	  "body": "<html>...</html>",
//	  "cookies": {"session": 42},
//	  "tls": {"issuer": "CN=R3", "subject": "CN=example.com", "san": "example.com"}
//	}
//
// A "raw" string holding an HTTP response dump may replace headers and body.
func DecodeJSON(data []byte) ([]*fingerprint.Observation, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode observation JSON: %w", err)
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, fmt.Errorf("observation JSON must be an object or a list of objects, got %T", doc)
	}

	out := make([]*fingerprint.Observation, 0, len(items))
	for i, item := range items {
		obs, err := decodeObservation(item)
		if err != nil {
			return nil, fmt.Errorf("observation #%d: %w", i, err)
		}
		out = append(out, obs)
	}
	return out, nil
}

func decodeObservation(item any) (*fingerprint.Observation, error) {
	m, err := cast.ToStringMapE(item)
	if err != nil {
		return nil, err
	}

	target, err := cast.ToStringE(m["target"])
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	if raw, ok := m["raw"]; ok {
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("raw: %w", err)
		}
		obs, err := ParseRawResponse(target, []byte(s))
		if err != nil {
			return nil, err
		}
		if err := decodeExtras(m, obs); err != nil {
			return nil, err
		}
		return obs, nil
	}

	obs := &fingerprint.Observation{Target: target}
	if obs.Body, err = cast.ToStringE(m["body"]); err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	if h, ok := m["headers"]; ok && h != nil {
		headers, err := cast.ToStringMapE(h)
		if err != nil {
			return nil, fmt.Errorf("headers: %w", err)
		}
		obs.Headers = make(map[string][]string, len(headers))
		for name, v := range headers {
			values, err := toStrings(v)
			if err != nil {
				return nil, fmt.Errorf("headers[%s]: %w", name, err)
			}
			key := strings.ToLower(name)
			obs.Headers[key] = append(obs.Headers[key], values...)
		}
	}
	if err := decodeExtras(m, obs); err != nil {
		return nil, err
	}
	return obs, nil
}

// decodeExtras fills the fields a raw dump cannot carry.
func decodeExtras(m map[string]any, obs *fingerprint.Observation) error {
	if c, ok := m["cookies"]; ok && c != nil {
		cookies, err := cast.ToStringMapStringE(c)
		if err != nil {
			return fmt.Errorf("cookies: %w", err)
		}
		obs.Cookies = cookies
	}
	if t, ok := m["tls"]; ok && t != nil {
		tlsMap, err := cast.ToStringMapE(t)
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		info := &fingerprint.TLSInfo{}
		if info.Issuer, err = cast.ToStringE(tlsMap["issuer"]); err != nil {
			return fmt.Errorf("tls.issuer: %w", err)
		}
		if info.Subject, err = cast.ToStringE(tlsMap["subject"]); err != nil {
			return fmt.Errorf("tls.subject: %w", err)
		}
		if info.SANs, err = toStrings(tlsMap["san"]); err != nil {
			return fmt.Errorf("tls.san: %w", err)
		}
		obs.TLS = info
	}
	return nil
}

// toStrings accepts a scalar or a list. A scalar string is kept whole; header
// values such as "nginx/1.18 (Ubuntu)" must not be split on spaces.
func toStrings(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return cast.ToStringSliceE(x)
	default:
		s, err := cast.ToStringE(x)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

// LoadFile reads observations from path. JSON files (.json) hold one or more
// observations; any other file is taken as a raw HTTP response dump whose
// target is the file name.
func LoadFile(path string) ([]*fingerprint.Observation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read observation: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		obs, err := DecodeJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, o := range obs {
			if o.Target == "" {
				o.Target = path
			}
		}
		return obs, nil
	}

	obs, err := ParseRawResponse(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return []*fingerprint.Observation{obs}, nil
}
