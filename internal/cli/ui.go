package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/wp-stream/stream-api-client/internal/api"
	"github.com/wp-stream/stream-api-client/internal/notify"
)

var (
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleError   = lipgloss.NewStyle().Foreground(colorRed)
	styleInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
)

// terminalNotifier prints notices to a terminal
type terminalNotifier struct {
	w io.Writer
}

func newTerminalNotifier(w io.Writer) *terminalNotifier {
	return &terminalNotifier{w: w}
}

func (t *terminalNotifier) Notify(ctx context.Context, n notify.Notice) {
	icon, style := iconInfo, styleInfo
	switch n.Level {
	case notify.LevelError:
		icon, style = iconError, styleError
	case notify.LevelWarning:
		icon, style = iconWarning, styleWarning
	}
	fmt.Fprintf(t.w, "%s %s %s\n", style.Render(icon), styleTitle.Render(n.Title), n.Message)
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", styleSuccess.Render(iconSuccess), fmt.Sprintf(format, args...))
}

func printDetail(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", styleDim.Render(fmt.Sprintf(format, args...)))
}

// printErrorDetails lists failed calls, oldest first
func printErrorDetails(w io.Writer, details []api.ErrorDetail) {
	for _, d := range details {
		fmt.Fprintf(w, "%s %s %s\n", styleError.Render(iconError), d.Method, d.URL)
		if d.HTTPCode != 0 {
			printDetail(w, "http code: %s", strconv.Itoa(d.HTTPCode))
		}
		if d.APIError != "" {
			printDetail(w, "api error: %s", d.APIError)
		}
		if d.TransportError != "" {
			printDetail(w, "request error: %s", d.TransportError)
		}
	}
}
