package device

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// safeVars are environment variables that can appear in logged probe commands.
var safeVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "PATH": true, "SHELL": true,
	"LANG": true, "TMPDIR": true, "LD_LIBRARY_PATH": true,
	"CUDA_VISIBLE_DEVICES": true, "CUDA_HOME": true, "ROCR_VISIBLE_DEVICES": true,
}

// RedactCommand masks assignment values and non-allowlisted variable
// references in a shell command so it can be logged.
func RedactCommand(cmd string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	prog, err := parser.Parse(strings.NewReader(cmd), "")
	if err != nil {
		return regexRedact(cmd)
	}

	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil && !safeVars[n.Param.Value] {
				n.Param.Value = "REDACTED"
			}
		case *syntax.Assign:
			if n.Name != nil && !safeVars[n.Name.Value] && n.Value != nil {
				n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: "***"}}
			}
		}
		return true
	})

	var buf bytes.Buffer
	if err := syntax.NewPrinter(syntax.Indent(0)).Print(&buf, prog); err != nil {
		return regexRedact(cmd)
	}
	return strings.TrimRight(buf.String(), "\n")
}

var reAssign = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)

// regexRedact is a fallback for commands that fail to parse.
func regexRedact(cmd string) string {
	return reAssign.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reAssign.FindStringSubmatch(m)[1]
		if safeVars[name] {
			return m
		}
		return name + "=***"
	})
}
