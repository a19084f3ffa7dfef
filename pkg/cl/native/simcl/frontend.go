// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/clrt/pkg/cl/native"
)

// sourceName is used as the file name in build log diagnostics.
const sourceName = "<source>"

// param is a kernel parameter parsed from its declaration.
type param struct {
	name     string
	typeName string
	pointer  bool

	// size of a by-value parameter in bytes. Pointers are passed as SVM pointers.
	size int
}

// kernelDecl is a kernel declared in the program source.
type kernelDecl struct {
	name      string
	params    []param
	line, col int
	impl      *kernelImpl
}

// diagnostics accumulates clang-style messages for the build log.
type diagnostics struct {
	lines            []string
	errors, warnings int
	warningsAsErrors bool
	noWarnings       bool
}

func (diags *diagnostics) add(severity string, line, col int, format string, args ...any) {
	switch severity {
	case "error":
		diags.errors++
	case "warning":
		if diags.noWarnings {
			return
		}
		if diags.warningsAsErrors {
			severity = "error"
			diags.errors++
		} else {
			diags.warnings++
		}
	}
	diags.lines = append(diags.lines, fmt.Sprintf("%s:%d:%d: %s: %s", sourceName, line, col, severity, fmt.Sprintf(format, args...)))
}

// log returns the build log.
func (diags *diagnostics) log() string {
	var sb strings.Builder
	for _, line := range diags.lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	var summary []string
	if diags.warnings > 0 {
		summary = append(summary, plural(diags.warnings, "warning"))
	}
	if diags.errors > 0 {
		summary = append(summary, plural(diags.errors, "error"))
	}
	if len(summary) > 0 {
		sb.WriteString(strings.Join(summary, " and "))
		sb.WriteString(" generated.\n")
	}
	return sb.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// buildOptions accepted by the front end. Options that take an argument are handled separately.
var buildOptions = map[string]bool{
	"-w": true, "-Werror": true, "-g": true,
	"-cl-opt-disable":               true,
	"-cl-mad-enable":                true,
	"-cl-no-signed-zeros":           true,
	"-cl-unsafe-math-optimizations": true,
	"-cl-finite-math-only":          true,
	"-cl-fast-relaxed-math":         true,
	"-cl-denorms-are-zero":          true,
	"-cl-single-precision-constant": true,
	"-cl-kernel-arg-info":           true,
	"-cl-uniform-work-group-size":   true,
}

var validStandards = []string{"CL1.1", "CL1.2", "CL2.0", "CL3.0"}

// parseBuildOptions validates the options and configures diags. It returns false for invalid options.
func parseBuildOptions(options string, diags *diagnostics) bool {
	fields := strings.Fields(options)
	for i := 0; i < len(fields); i++ {
		opt := fields[i]
		switch {
		case opt == "-D" || opt == "-I":
			if i+1 == len(fields) {
				return false
			}
			i++
		case strings.HasPrefix(opt, "-D") || strings.HasPrefix(opt, "-I"):
		case strings.HasPrefix(opt, "-cl-std="):
			if !slices.Contains(validStandards, strings.TrimPrefix(opt, "-cl-std=")) {
				return false
			}
		case buildOptions[opt]:
			switch opt {
			case "-w":
				diags.noWarnings = true
			case "-Werror":
				diags.warningsAsErrors = true
			}
		default:
			return false
		}
	}
	return true
}

// scalarSizes of the OpenCL C by-value types supported as kernel parameters.
var scalarSizes = map[string]int{
	"bool": 1, "char": 1, "uchar": 1,
	"short": 2, "ushort": 2, "half": 2,
	"int": 4, "uint": 4, "float": 4,
	"long": 8, "ulong": 8, "double": 8,
	"size_t": 8, "ptrdiff_t": 8, "intptr_t": 8, "uintptr_t": 8,
}

// typeQualifiers are ignored when parsing parameter types.
var typeQualifiers = map[string]bool{
	"const": true, "restrict": true, "volatile": true,
	"global": true, "__global": true, "constant": true, "__constant": true,
	"private": true, "__private": true, "read_only": true, "__read_only": true,
	"write_only": true, "__write_only": true, "struct": true,
}

var (
	reKernelDecl = regexp.MustCompile(`\b(?:__)?kernel\s+(?:__attribute__\s*\(\(.*?\)\)\s*)?([A-Za-z_]\w*)\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)
	reIdentifier = regexp.MustCompile(`[A-Za-z_]\w*`)
	reVectorType = regexp.MustCompile(`^([a-z]+)(2|3|4|8|16)$`)
)

// compile parses the source, and returns the declared kernels and the diagnostics.
func compile(source, options string) ([]*kernelDecl, *diagnostics, native.ErrorCode) {
	diags := &diagnostics{}
	if !parseBuildOptions(options, diags) {
		diags.add("error", 1, 1, "invalid build options %q", options)
		return nil, diags, native.InvalidBuildOptions
	}
	src := newSourceFile(source)
	cleaned := src.clean(diags)
	src.checkBrackets(cleaned, diags)
	kernels := src.parseKernels(cleaned, diags)
	if diags.errors > 0 {
		return nil, diags, native.BuildProgramFailure
	}
	return kernels, diags, native.Success
}

type sourceFile struct {
	text       string
	lineStarts []int
}

func newSourceFile(text string) *sourceFile {
	src := &sourceFile{text: text, lineStarts: []int{0}}
	for i, c := range text {
		if c == '\n' {
			src.lineStarts = append(src.lineStarts, i+1)
		}
	}
	return src
}

// position returns the 1-based line and column of the byte offset.
func (src *sourceFile) position(offset int) (line, col int) {
	line = len(src.lineStarts)
	for line > 1 && src.lineStarts[line-1] > offset {
		line--
	}
	return line, offset - src.lineStarts[line-1] + 1
}

// clean handles the preprocessor directives, and blanks out comments, string and character literals,
// preserving the positions of everything else.
func (src *sourceFile) clean(diags *diagnostics) string {
	out := []byte(src.text)
	blank := func(from, to int) {
		for i := from; i < to && i < len(out); i++ {
			if out[i] != '\n' {
				out[i] = ' '
			}
		}
	}
	n := len(out)
	atLineStart := true
	for i := 0; i < n; {
		c := out[i]
		switch {
		case c == '\n':
			atLineStart = true
			i++
			continue
		case c == ' ' || c == '\t' || c == '\r':
			i++
			continue
		case c == '#' && atLineStart:
			end := i
			for end < n && out[end] != '\n' {
				end++
			}
			src.directive(i, strings.TrimSpace(string(out[i+1:end])), diags)
			blank(i, end)
			i = end
		case c == '/' && i+1 < n && out[i+1] == '/':
			end := i
			for end < n && out[end] != '\n' {
				end++
			}
			blank(i, end)
			i = end
		case c == '/' && i+1 < n && out[i+1] == '*':
			end := strings.Index(string(out[i+2:]), "*/")
			if end == -1 {
				line, col := src.position(i)
				diags.add("error", line, col, "unterminated /* comment")
				blank(i, n)
				i = n
			} else {
				blank(i, i+2+end+2)
				i += 2 + end + 2
			}
		case c == '"' || c == '\'':
			end := i + 1
			for end < n && out[end] != c && out[end] != '\n' {
				if out[end] == '\\' {
					end++
				}
				end++
			}
			if end >= n || out[end] != c {
				line, col := src.position(i)
				diags.add("warning", line, col, "missing terminating %c character", c)
			}
			blank(i, min(end+1, n))
			i = end + 1
		default:
			i++
		}
		atLineStart = false
	}
	return string(out)
}

// directive handles one preprocessor directive starting at offset.
func (src *sourceFile) directive(offset int, text string, diags *diagnostics) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	line, col := src.position(offset)
	switch name {
	case "error":
		diags.add("error", line, col+1, "%s", arg)
	case "warning":
		diags.add("warning", line, col+1, "%s", arg)
	case "include":
		diags.add("error", line, col+1, "%s file not found", arg)
	case "", "define", "undef", "pragma", "if", "ifdef", "ifndef", "elif", "else", "endif", "line":
	default:
		diags.add("error", line, col+1, "invalid preprocessing directive")
	}
}

var closingBracket = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// checkBrackets reports unbalanced brackets.
func (src *sourceFile) checkBrackets(cleaned string, diags *diagnostics) {
	type open struct {
		bracket byte
		offset  int
	}
	var stack []open
	for i := 0; i < len(cleaned); i++ {
		c := cleaned[i]
		switch c {
		case '(', '[', '{':
			stack = append(stack, open{c, i})
		case ')', ']', '}':
			if len(stack) == 0 {
				line, col := src.position(i)
				diags.add("error", line, col, "extraneous closing bracket '%c'", c)
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if closingBracket[top.bracket] != c {
				line, col := src.position(i)
				diags.add("error", line, col, "expected '%c'", closingBracket[top.bracket])
				line, col = src.position(top.offset)
				diags.add("note", line, col, "to match this '%c'", top.bracket)
			}
		}
	}
	for _, unclosed := range stack {
		line, col := src.position(len(cleaned))
		diags.add("error", line, col, "expected '%c'", closingBracket[unclosed.bracket])
		line, col = src.position(unclosed.offset)
		diags.add("note", line, col, "to match this '%c'", unclosed.bracket)
	}
}

// parseKernels finds the kernel declarations, and binds them to their registered implementations.
func (src *sourceFile) parseKernels(cleaned string, diags *diagnostics) []*kernelDecl {
	var kernels []*kernelDecl
	seen := make(map[string]bool)
	for _, match := range reKernelDecl.FindAllStringSubmatchIndex(cleaned, -1) {
		returnType := cleaned[match[2]:match[3]]
		decl := &kernelDecl{name: cleaned[match[4]:match[5]]}
		decl.line, decl.col = src.position(match[4])
		if returnType != "void" {
			line, col := src.position(match[2])
			diags.add("error", line, col, "kernel functions must have void return type")
			continue
		}
		if seen[decl.name] {
			diags.add("error", decl.line, decl.col, "redefinition of '%s'", decl.name)
			continue
		}
		seen[decl.name] = true
		if !src.parseParams(decl, cleaned[match[6]:match[7]], match[6], diags) {
			continue
		}
		decl.impl = lookupKernelImpl(decl.name)
		switch {
		case decl.impl == nil:
			diags.add("error", decl.line, decl.col, "no implementation registered for kernel '%s'", decl.name)
		case decl.impl.numArgs != len(decl.params):
			diags.add("error", decl.line, decl.col, "kernel '%s' declared with %d parameters, its implementation takes %d",
				decl.name, len(decl.params), decl.impl.numArgs)
		default:
			kernels = append(kernels, decl)
		}
	}
	return kernels
}

// parseParams parses the comma-separated parameter list starting at offset.
func (src *sourceFile) parseParams(decl *kernelDecl, list string, offset int, diags *diagnostics) bool {
	if strings.TrimSpace(list) == "" || strings.TrimSpace(list) == "void" {
		return true
	}
	ok := true
	for _, text := range strings.Split(list, ",") {
		p := param{pointer: strings.Contains(text, "*")}
		var typeParts []string
		for _, ident := range reIdentifier.FindAllString(text, -1) {
			switch {
			case ident == "local" || ident == "__local":
				line, col := src.position(offset)
				diags.add("error", line, col, "local memory parameters are not supported in kernel '%s'", decl.name)
				ok = false
			case typeQualifiers[ident]:
			default:
				typeParts = append(typeParts, ident)
			}
		}
		if len(typeParts) < 2 {
			line, col := src.position(offset)
			diags.add("error", line, col, "expected parameter declarator in kernel '%s'", decl.name)
			ok = false
			offset += len(text) + 1
			continue
		}
		p.name = typeParts[len(typeParts)-1]
		p.typeName = normalizeTypeName(typeParts[:len(typeParts)-1])
		if !p.pointer {
			size, known := typeSize(p.typeName)
			if !known {
				line, col := src.position(offset + strings.Index(text, typeParts[0]))
				diags.add("error", line, col, "unknown type name '%s'", p.typeName)
				ok = false
			}
			p.size = size
		}
		decl.params = append(decl.params, p)
		offset += len(text) + 1
	}
	return ok
}

// normalizeTypeName converts C spellings like "unsigned int" to their OpenCL names ("uint").
func normalizeTypeName(parts []string) string {
	if len(parts) >= 2 && parts[0] == "unsigned" {
		return "u" + strings.Join(parts[1:], " ")
	}
	if len(parts) == 1 && parts[0] == "unsigned" {
		return "uint"
	}
	return strings.Join(parts, " ")
}

// typeSize returns the size of scalar and vector types. 3-component vectors have the size of 4-component ones.
func typeSize(typeName string) (int, bool) {
	if size, found := scalarSizes[typeName]; found {
		return size, true
	}
	if m := reVectorType.FindStringSubmatch(typeName); m != nil {
		if size, found := scalarSizes[m[1]]; found {
			n, _ := strconv.Atoi(m[2])
			if n == 3 {
				n = 4
			}
			return size * n, true
		}
	}
	return 0, false
}
