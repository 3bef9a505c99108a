// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gomlx/gocl/pkg/core/dtypes"
)

// The simulated compiler doesn't compile the kernel language: it checks the source is well
// formed (balanced delimiters, kernel definitions with parseable parameter lists) and binds
// each kernel to the Go implementation registered under its name. Diagnostics follow the
// format of clang based compilers.

type paramKind int

const (
	paramScalar paramKind = iota
	paramGlobal
	paramConstant
	paramLocal
	paramSampler
)

func (k paramKind) isPointer() bool {
	return k == paramGlobal || k == paramConstant || k == paramLocal
}

type kernelParam struct {
	name     string
	kind     paramKind
	typeName string

	// dtype of the value for scalars, of the pointed elements for pointers ("void" pointers are InvalidDType).
	dtype dtypes.DType
}

type kernelDecl struct {
	name   string
	params []kernelParam
	impl   KernelFunc
}

type diagnostic struct {
	offset   int
	severity string
	msg      string
}

type compilation struct {
	source, clean string
	diags         []diagnostic
	numErrors     int
}

func (c *compilation) errorf(offset int, format string, args ...any) {
	c.diags = append(c.diags, diagnostic{offset: offset, severity: "error", msg: fmt.Sprintf(format, args...)})
	c.numErrors++
}

func (c *compilation) notef(offset int, format string, args ...any) {
	c.diags = append(c.diags, diagnostic{offset: offset, severity: "note", msg: fmt.Sprintf(format, args...)})
}

// log formats the diagnostics, with the offending source line and a caret under the position.
func (c *compilation) log() string {
	if len(c.diags) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, diag := range c.diags {
		lineStart := strings.LastIndexByte(c.source[:diag.offset], '\n') + 1
		lineEnd := strings.IndexByte(c.source[diag.offset:], '\n')
		if lineEnd < 0 {
			lineEnd = len(c.source)
		} else {
			lineEnd += diag.offset
		}
		line := strings.Count(c.source[:diag.offset], "\n") + 1
		col := diag.offset - lineStart + 1
		fmt.Fprintf(&sb, "<source>:%d:%d: %s: %s\n", line, col, diag.severity, diag.msg)
		fmt.Fprintf(&sb, "%s\n%s^\n", c.source[lineStart:lineEnd], strings.Repeat(" ", col-1))
	}
	if c.numErrors > 0 {
		fmt.Fprintf(&sb, "%d error%s generated.\n", c.numErrors, map[bool]string{true: "s", false: ""}[c.numErrors > 1])
	}
	return sb.String()
}

// stripComments replaces comments and the contents of string and character literals by
// spaces, preserving offsets and line breaks.
func stripComments(source string) string {
	out := []byte(source)
	blank := func(from, to int) {
		for i := from; i < to && i < len(out); i++ {
			if out[i] != '\n' {
				out[i] = ' '
			}
		}
	}
	for i := 0; i < len(source); i++ {
		switch {
		case strings.HasPrefix(source[i:], "//"):
			end := strings.IndexByte(source[i:], '\n')
			if end < 0 {
				end = len(source) - i
			}
			blank(i, i+end)
			i += end
		case strings.HasPrefix(source[i:], "/*"):
			end := strings.Index(source[i+2:], "*/")
			if end < 0 {
				blank(i, len(source))
				return string(out)
			}
			blank(i, i+end+4)
			i += end + 3
		case source[i] == '"' || source[i] == '\'':
			quote := source[i]
			j := i + 1
			for j < len(source) && source[j] != quote && source[j] != '\n' {
				if source[j] == '\\' {
					j++
				}
				j++
			}
			blank(i+1, j)
			i = j
		}
	}
	return string(out)
}

var closerOf = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// checkBalance verifies parentheses, brackets and braces are balanced.
func (c *compilation) checkBalance() bool {
	type opening struct {
		char   byte
		offset int
	}
	var stack []opening
	for i := 0; i < len(c.clean); i++ {
		ch := c.clean[i]
		switch ch {
		case '(', '[', '{':
			stack = append(stack, opening{ch, i})
		case ')', ']', '}':
			if len(stack) == 0 {
				if ch == '}' {
					c.errorf(i, "extraneous closing brace ('}')")
				} else {
					c.errorf(i, "expected expression")
				}
				return false
			}
			top := stack[len(stack)-1]
			if closerOf[top.char] != ch {
				c.errorf(i, "expected '%c'", closerOf[top.char])
				c.notef(top.offset, "to match this '%c'", top.char)
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		c.errorf(len(c.clean), "expected '%c'", closerOf[top.char])
		c.notef(top.offset, "to match this '%c'", top.char)
		return false
	}
	return true
}

var kernelRegexp = regexp.MustCompile(`\b(?:__kernel|kernel)\s+(?:__attribute__\s*\(\(.*?\)\)\s*)?void\s+([A-Za-z_]\w*)\s*\(`)

// matchingClose returns the offset of the delimiter closing the one at offset open.
// It must only be called after checkBalance succeeded.
func (c *compilation) matchingClose(open int) int {
	depth := 0
	for i := open; i < len(c.clean); i++ {
		switch c.clean[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(c.clean)
}

var (
	qualifiers = map[string]paramKind{
		"__global": paramGlobal, "global": paramGlobal,
		"__constant": paramConstant, "constant": paramConstant,
		"__local": paramLocal, "local": paramLocal,
	}
	ignoredQualifiers = map[string]bool{
		"const": true, "volatile": true, "restrict": true, "__restrict": true,
		"__private": true, "private": true, "__read_only": true, "read_only": true,
		"__write_only": true, "write_only": true,
	}
	identRegexp = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

// parseParam parses one parameter declaration, starting at offset in the source.
func (c *compilation) parseParam(decl string, offset int) (kernelParam, bool) {
	tokens := strings.Fields(strings.ReplaceAll(decl, "*", " * "))
	var p kernelParam
	var addressSpace paramKind = paramScalar
	var typeTokens []string
	pointer := false
	for _, tok := range tokens {
		if kind, found := qualifiers[tok]; found {
			addressSpace = kind
			continue
		}
		if ignoredQualifiers[tok] {
			continue
		}
		if tok == "*" {
			pointer = true
			continue
		}
		typeTokens = append(typeTokens, tok)
	}
	if len(typeTokens) < 2 || !identRegexp.MatchString(typeTokens[len(typeTokens)-1]) {
		c.errorf(offset, "expected parameter declarator")
		return p, false
	}
	p.name = typeTokens[len(typeTokens)-1]
	typeTokens = typeTokens[:len(typeTokens)-1]
	if typeTokens[0] == "unsigned" {
		if len(typeTokens) == 1 {
			typeTokens = []string{"uint"}
		} else {
			typeTokens = append([]string{"u" + typeTokens[1]}, typeTokens[2:]...)
		}
	}
	p.typeName = strings.Join(typeTokens, " ")
	p.dtype = dtypes.FromName(p.typeName)

	if pointer {
		if addressSpace == paramScalar {
			c.errorf(offset, "pointer arguments to kernel functions must reside in '__global', '__constant', or '__local' address space")
			return p, false
		}
		p.kind = addressSpace
		if p.typeName == "void" {
			return p, true
		}
		if !p.dtype.IsValid() || p.dtype.IsHandle() {
			c.errorf(offset, "unknown type name '%s'", p.typeName)
			return p, false
		}
		return p, true
	}

	if addressSpace != paramScalar {
		c.errorf(offset, "parameter may not be qualified with an address space")
		return p, false
	}
	if p.typeName == "sampler_t" {
		p.kind = paramSampler
		p.dtype = dtypes.Sampler
		return p, true
	}
	if !p.dtype.IsValid() || p.dtype.IsHandle() {
		c.errorf(offset, "unknown type name '%s'", p.typeName)
		return p, false
	}
	p.kind = paramScalar
	return p, true
}

// compile checks the source and extracts the kernel declarations. It returns the build log,
// empty on success.
func compile(source string) ([]kernelDecl, string, bool) {
	c := &compilation{source: source, clean: stripComments(source)}
	if strings.TrimSpace(c.clean) == "" {
		c.errorf(0, "empty program source")
		return nil, c.log(), false
	}
	if !c.checkBalance() {
		return nil, c.log(), false
	}

	var decls []kernelDecl
	seen := make(map[string]bool)
	for _, match := range kernelRegexp.FindAllStringSubmatchIndex(c.clean, -1) {
		name := c.clean[match[2]:match[3]]
		open := match[1] - 1
		closeIdx := c.matchingClose(open)

		// Skip prototypes, require a body otherwise.
		rest := strings.TrimLeft(c.clean[closeIdx+1:], " \t\r\n")
		if strings.HasPrefix(rest, ";") {
			continue
		}
		if !strings.HasPrefix(rest, "{") {
			c.errorf(closeIdx+1, "expected function body after function declarator")
			continue
		}
		if seen[name] {
			c.errorf(match[2], "redefinition of '%s'", name)
			continue
		}
		seen[name] = true

		decl := kernelDecl{name: name}
		paramsText := c.clean[open+1 : closeIdx]
		if trimmed := strings.TrimSpace(paramsText); trimmed != "" && trimmed != "void" {
			offset := open + 1
			ok := true
			for _, part := range strings.Split(paramsText, ",") {
				p, parsed := c.parseParam(part, offset+len(part)-len(strings.TrimLeft(part, " \t\r\n")))
				ok = ok && parsed
				decl.params = append(decl.params, p)
				offset += len(part) + 1
			}
			if !ok {
				continue
			}
		}
		impl, found := lookupKernelFunc(name)
		if !found {
			c.errorf(match[2], "no Go implementation registered for kernel '%s' (see simgo.RegisterKernel)", name)
			continue
		}
		decl.impl = impl
		decls = append(decls, decl)
	}
	if c.numErrors > 0 {
		return nil, c.log(), false
	}
	return decls, c.log(), true
}
