// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package whatweb reads signature files written in the WhatWeb plugin DSL:
//
//	Plugin.define do
//	  name "Apache Tomcat"
//	  authors ["Ostorlab"]
//	  version "0.1"
//	  matches [
//	    { :search => "head", :regexp => /<title>Apache Tomcat/, :name => "Title" },
//	  ]
//	end
//
// Only the declarative subset is supported; Ruby code blocks are rejected.
package whatweb

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/vulntor/webprint/pkg/fingerprint"
)

// ParseError reports a syntax error in a plugin file.
type ParseError struct {
	Source string
	Line   int
	Col    int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Source, e.Line, e.Col, e.Msg)
}

// value is a parsed DSL literal.
type value struct {
	tok   token
	list  []value
	pairs []pair
}

type pair struct {
	key string
	val value
}

func (v value) isList() bool { return v.tok.kind == tokLBrack }
func (v value) isHash() bool { return v.tok.kind == tokLBrace }

func (v value) lookup(key string) (value, bool) {
	for _, p := range v.pairs {
		if p.key == key {
			return p.val, true
		}
	}
	return value{}, false
}

type parser struct {
	source string
	tokens []token
	pos    int
}

// Parse reads every Plugin.define block of src. source names the file in
// errors and in the Source field of the returned definitions.
func Parse(source string, src []byte) ([]fingerprint.Definition, error) {
	tokens, err := lex(source, string(src))
	if err != nil {
		return nil, err
	}
	p := &parser{source: source, tokens: tokens}

	var defs []fingerprint.Definition
	for p.peek().kind != tokEOF {
		def, err := p.parsePlugin()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, &ParseError{Source: source, Line: 1, Col: 1, Msg: "no Plugin.define block found"}
	}
	return defs, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &ParseError{Source: p.source, Line: tok.line, Col: tok.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, p.errorf(tok, "expected %s, found %s", kind, describe(tok))
	}
	return tok, nil
}

func (p *parser) expectIdent(name string) error {
	tok := p.next()
	if tok.kind != tokIdent || tok.text != name {
		return p.errorf(tok, "expected %q, found %s", name, describe(tok))
	}
	return nil
}

func describe(tok token) string {
	if tok.kind == tokIdent || tok.kind == tokSymbol {
		return fmt.Sprintf("%s %q", tok.kind, tok.text)
	}
	return tok.kind.String()
}

func (p *parser) parsePlugin() (fingerprint.Definition, error) {
	def := fingerprint.Definition{Source: p.source}
	if err := p.expectIdent("Plugin.define"); err != nil {
		return def, err
	}
	if err := p.expectIdent("do"); err != nil {
		return def, err
	}

	for {
		tok := p.next()
		switch {
		case tok.kind == tokIdent && tok.text == "end":
			return def, nil
		case tok.kind == tokIdent:
			val, err := p.parseValue()
			if err != nil {
				return def, err
			}
			if err := p.apply(&def, tok, val); err != nil {
				return def, err
			}
		default:
			return def, p.errorf(tok, "expected plugin attribute or \"end\", found %s", describe(tok))
		}
	}
}

func (p *parser) parseValue() (value, error) {
	tok := p.next()
	switch tok.kind {
	case tokString, tokRegexp, tokSymbol, tokNumber:
		return value{tok: tok}, nil
	case tokIdent:
		switch tok.text {
		case "true", "false", "nil":
			return value{tok: tok}, nil
		}
		return value{}, p.errorf(tok, "unsupported expression %q", tok.text)
	case tokLBrack:
		v := value{tok: tok}
		for {
			if p.peek().kind == tokRBrack {
				p.next()
				return v, nil
			}
			item, err := p.parseValue()
			if err != nil {
				return value{}, err
			}
			v.list = append(v.list, item)
			if p.peek().kind == tokComma {
				p.next()
				continue
			}
			if _, err := p.expect(tokRBrack); err != nil {
				return value{}, err
			}
			return v, nil
		}
	case tokLBrace:
		v := value{tok: tok}
		for {
			if p.peek().kind == tokRBrace {
				p.next()
				return v, nil
			}
			key, err := p.expect(tokSymbol)
			if err != nil {
				return value{}, err
			}
			if _, err := p.expect(tokArrow); err != nil {
				return value{}, err
			}
			val, err := p.parseValue()
			if err != nil {
				return value{}, err
			}
			v.pairs = append(v.pairs, pair{key: key.text, val: val})
			if p.peek().kind == tokComma {
				p.next()
				continue
			}
			if _, err := p.expect(tokRBrace); err != nil {
				return value{}, err
			}
			return v, nil
		}
	default:
		return value{}, p.errorf(tok, "expected value, found %s", describe(tok))
	}
}

func (p *parser) apply(def *fingerprint.Definition, attr token, val value) error {
	switch attr.text {
	case "name":
		def.Name = val.tok.text
	case "description":
		def.Description = val.tok.text
	case "website":
		def.Website = val.tok.text
	case "authors":
		if !val.isList() {
			def.Authors = append(def.Authors, val.tok.text)
			return nil
		}
		for _, item := range val.list {
			def.Authors = append(def.Authors, item.tok.text)
		}
	case "version":
		// a scalar is the plugin revision, a list holds version rules
		if !val.isList() {
			def.Revision = val.tok.text
			return nil
		}
		for i, item := range val.list {
			if !item.isHash() {
				return p.errorf(item.tok, "version[%d]: expected a hash", i)
			}
			rule, err := p.captureRule(item, "version")
			if err != nil {
				return err
			}
			def.Versions = append(def.Versions, rule)
		}
	case "matches":
		if !val.isList() {
			return p.errorf(val.tok, "matches: expected a list")
		}
		for i, item := range val.list {
			if !item.isHash() {
				return p.errorf(item.tok, "matches[%d]: expected a hash", i)
			}
			entry, err := p.matchEntry(item)
			if err != nil {
				return err
			}
			def.Matches = append(def.Matches, entry.matchers...)
			if entry.version != nil {
				def.Versions = append(def.Versions, *entry.version)
			}
			if entry.model != nil {
				def.Models = append(def.Models, *entry.model)
			}
		}
	}
	// other attributes (dorks, examples, ...) carry no matching semantics
	return nil
}

type entryRules struct {
	matchers []fingerprint.MatcherDef
	version  *fingerprint.VersionRuleDef
	model    *fingerprint.VersionRuleDef
}

// matchEntry converts one matches hash. A :version or :model regexp inside a
// match is both evidence and a capture rule.
func (p *parser) matchEntry(h value) (entryRules, error) {
	search := stringKey(h, "search")
	label := stringKey(h, "name")

	var entry entryRules
	if v, ok := h.lookup("regexp"); ok {
		m, err := p.regexpMatcher(v, search, label)
		if err != nil {
			return entry, err
		}
		entry.matchers = append(entry.matchers, m)
	}
	if v, ok := h.lookup("text"); ok {
		if v.tok.kind != tokString {
			return entry, p.errorf(v.tok, ":text must be a string")
		}
		entry.matchers = append(entry.matchers, fingerprint.MatcherDef{
			Search:  search,
			Kind:    fingerprint.KindText,
			Pattern: v.tok.text,
			Label:   label,
		})
	}

	for _, key := range []string{"version", "model"} {
		v, ok := h.lookup(key)
		if !ok || v.tok.kind != tokRegexp {
			continue
		}
		r, err := p.captureRule(h, key)
		if err != nil {
			return entry, err
		}
		if key == "version" {
			entry.version = &r
		} else {
			entry.model = &r
		}
		if len(entry.matchers) == 0 {
			m, err := p.regexpMatcher(v, search, label)
			if err != nil {
				return entry, err
			}
			entry.matchers = append(entry.matchers, m)
		}
	}
	return entry, nil
}

func (p *parser) regexpMatcher(v value, search, label string) (fingerprint.MatcherDef, error) {
	if v.tok.kind != tokRegexp {
		return fingerprint.MatcherDef{}, p.errorf(v.tok, "expected a regexp literal")
	}
	pattern, ignoreCase, dotAll := translateRegexp(v.tok)
	return fingerprint.MatcherDef{
		Search:     search,
		Kind:       fingerprint.KindRegexp,
		Pattern:    pattern,
		IgnoreCase: ignoreCase,
		Multiline:  true,
		DotAll:     dotAll,
		Label:      label,
	}, nil
}

// captureRule builds a version or model rule from the regexp stored under key,
// falling back to :regexp.
func (p *parser) captureRule(h value, key string) (fingerprint.VersionRuleDef, error) {
	rule := fingerprint.VersionRuleDef{
		Search: stringKey(h, "search"),
		Label:  stringKey(h, "name"),
	}

	src, ok := h.lookup(key)
	if !ok || src.tok.kind != tokRegexp {
		src, ok = h.lookup("regexp")
	}
	if ok {
		if src.tok.kind != tokRegexp {
			return rule, p.errorf(src.tok, "%s pattern must be a regexp literal", key)
		}
		pattern, ignoreCase, dotAll := translateRegexp(src.tok)
		rule.Pattern = pattern
		rule.IgnoreCase = ignoreCase
		rule.DotAll = dotAll
		rule.Multiline = true
	}

	if off, ok := h.lookup("offset"); ok {
		n, err := cast.ToIntE(off.tok.text)
		if err != nil {
			return rule, p.errorf(off.tok, "invalid :offset: %v", err)
		}
		rule.Offset = n
	}
	return rule, nil
}

// translateRegexp maps Ruby regexp options onto explicit flags. Ruby's /m is
// "dot matches newline"; ^ and $ always anchor at lines in Ruby, so callers set
// Multiline unconditionally.
func translateRegexp(tok token) (pattern string, ignoreCase, dotAll bool) {
	pattern = tok.text
	ignoreCase = strings.ContainsRune(tok.flags, 'i')
	dotAll = strings.ContainsRune(tok.flags, 'm')
	if strings.ContainsRune(tok.flags, 'x') {
		pattern = "(?x)" + pattern
	}
	return pattern, ignoreCase, dotAll
}

func stringKey(h value, key string) string {
	v, ok := h.lookup(key)
	if !ok || v.tok.kind != tokString {
		return ""
	}
	return v.tok.text
}
