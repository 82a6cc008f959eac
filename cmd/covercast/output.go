package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// ANSI codes used by the human-readable output. Suppressed by --no-color.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// notify writes a prefixed status line to stderr, keeping stdout clean for
// --json output.
func notify(color, prefix, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, prefix+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notify(colorGreen, "✓ ", format, args...) }

func printError(format string, args ...any) { notify(colorRed, "✗ ", format, args...) }

func printWarning(format string, args ...any) { notify(colorYellow, "! ", format, args...) }

func printStep(format string, args ...any) { notify(colorCyan, "→ ", format, args...) }

// printStatus writes an indented "label: value" line with the label in bold.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// printJSON renders a decoded response for the --json flag.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
