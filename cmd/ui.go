package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	out        io.Writer = os.Stdout
	titleColor           = color.New(color.FgCyan, color.Bold)
	okColor              = color.New(color.FgGreen)
	warnColor            = color.New(color.FgYellow)
	dimColor             = color.New(color.Faint)
)

func initUI(disable bool) {
	if disable {
		color.NoColor = true
	}
}

func success(format string, args ...interface{}) {
	okColor.Fprintf(out, "✓ %s\n", fmt.Sprintf(format, args...))
}

func warn(format string, args ...interface{}) {
	warnColor.Fprintf(out, "! %s\n", fmt.Sprintf(format, args...))
}

func field(name string, value interface{}) {
	fmt.Fprintf(out, "  %s %v\n", dimColor.Sprintf("%-14s", name+":"), value)
}
