package main

import (
	"github.com/fatih/color"

	"github.com/sevigo/extpr/internal/core"
)

// Color definitions
var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.FgHiBlack)
)

func outcomeColor(o core.Outcome) *color.Color {
	switch o {
	case core.OutcomeTriggered:
		return successColor
	case core.OutcomePendingFailed:
		return warnColor
	default:
		return errorColor
	}
}
