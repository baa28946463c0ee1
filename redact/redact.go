// Package redact masks secrets in conversation text before it is sent to a
// text-generation backend. Shell snippets are parsed with mvdan.cc/sh so
// that only real variable expansions and assignments are touched.
package redact

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Placeholder replaces secret tokens found in prose.
const Placeholder = "[REDACTED]"

// safeVars are environment variables that are non-sensitive and useful as context.
var safeVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"XDG_RUNTIME_DIR": true, "GOPATH": true, "GOOS": true, "GOARCH": true,
	"NODE_ENV": true, "CI": true, "SHLVL": true,
	"COLUMNS": true, "LINES": true, "LC_ALL": true, "LC_CTYPE": true,
}

// specialParams are shell special parameters that are never redacted.
var specialParams = map[string]bool{
	"?": true, "!": true, "#": true, "@": true, "*": true,
	"-": true, "$": true, "_": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
	"5": true, "6": true, "7": true, "8": true, "9": true,
}

// secretPatterns match credential formats that show up in pasted logs and configs.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{16,}=*`),
}

// shellFences are code-fence info strings treated as shell.
var shellFences = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "shell": true, "console": true,
}

// Command replaces sensitive environment variable references and assignment
// values in a shell command. Safe variables (PATH, HOME, ...) and special
// parameters ($?, $!, ...) are preserved. Commands that do not parse fall
// back to regular-expression matching.
func Command(cmd string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(cmd), "")
	if err != nil {
		return regexRedact(cmd)
	}

	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil && !safeVars[n.Param.Value] && !specialParams[n.Param.Value] {
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
	printer := syntax.NewPrinter(syntax.Indent(0))
	if err := printer.Print(&buf, prog); err != nil {
		return regexRedact(cmd)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Text redacts a free-form conversation message. Secret tokens are masked
// everywhere; lines inside shell code fences and lines starting with a "$ "
// prompt are additionally passed through Command.
func Text(text string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	inFence, shellFence := false, false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				inFence, shellFence = false, false
			} else {
				inFence = true
				shellFence = shellFences[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "```")))]
			}
			continue
		}

		switch {
		case inFence && shellFence && trimmed != "":
			lines[i] = redactShellLine(line)
		case !inFence && strings.HasPrefix(trimmed, "$ "):
			lines[i] = redactShellLine(line)
		}
		lines[i] = Secrets(lines[i])
	}
	return strings.Join(lines, "\n")
}

// Secrets masks credential-shaped tokens in s.
func Secrets(s string) string {
	for _, re := range secretPatterns {
		s = re.ReplaceAllString(s, Placeholder)
	}
	return s
}

// redactShellLine keeps the indentation and an optional "$ " prompt intact.
func redactShellLine(line string) string {
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	body := strings.TrimLeft(line, " \t")
	prompt := ""
	if strings.HasPrefix(body, "$ ") {
		prompt, body = "$ ", body[2:]
	}
	if strings.TrimSpace(body) == "" {
		return line
	}
	return indent + prompt + Command(body)
}

var (
	reBraceVar  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	reSimpleVar = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	reAssign    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)
)

// regexRedact is a fallback for commands that fail AST parsing.
func regexRedact(cmd string) string {
	cmd = reBraceVar.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reBraceVar.FindStringSubmatch(m)[1]
		if safeVars[name] || specialParams[name] {
			return m
		}
		return "${REDACTED}"
	})

	cmd = reSimpleVar.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reSimpleVar.FindStringSubmatch(m)[1]
		if name == "REDACTED" || safeVars[name] || specialParams[name] {
			return m
		}
		return "$REDACTED"
	})

	return reAssign.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reAssign.FindStringSubmatch(m)[1]
		if safeVars[name] {
			return m
		}
		return name + "=***"
	})
}
