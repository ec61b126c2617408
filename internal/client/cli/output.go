package cli

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func (a *App) printSuccess(format string, args ...any) {
	successColor.Fprintln(a.out, fmt.Sprintf(format, args...))
}

func (a *App) printWarning(format string, args ...any) {
	warningColor.Fprintln(a.out, fmt.Sprintf(format, args...))
}

func (a *App) printError(format string, args ...any) {
	errorColor.Fprintln(a.out, fmt.Sprintf(format, args...))
}
