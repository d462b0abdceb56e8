package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"pathguard/internal/config"
	"pathguard/internal/secrets"
	"pathguard/pkg/fileops"
)

// errIssuesFound is returned by commands that completed but found problems.
var errIssuesFound = errors.New("issues found")

// outputJSON marshals and prints indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// isTerminal reports whether v is an *os.File attached to a TTY.
func isTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// errorCode names err for JSON output.
func errorCode(err error) string {
	if kind := fileops.KindOf(err); kind != "" {
		return string(kind)
	}
	switch {
	case errors.Is(err, config.ErrUnknownRoot):
		return "UNKNOWN_ROOT"
	case errors.Is(err, config.ErrInvalidConfig):
		return "INVALID_CONFIG"
	case errors.Is(err, secrets.ErrSecretNotFound):
		return "SECRET_NOT_FOUND"
	case errors.Is(err, fileops.ErrFileTooLarge):
		return "FILE_TOO_LARGE"
	case errors.Is(err, errIssuesFound):
		return "ISSUES_FOUND"
	default:
		return "ERROR"
	}
}

// getExitCode maps errors to CLI exit codes: 2 for rejected paths, 3 for
// missing entries, 1 for everything else.
func getExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch fileops.KindOf(err) {
	case fileops.KindTraversal,
		fileops.KindOutOfBounds,
		fileops.KindSymlinkRejected,
		fileops.KindNotADirectory,
		fileops.KindNotAFile,
		fileops.KindPermissionTooOpen:
		return 2
	case fileops.KindNotFound:
		return 3
	}

	switch {
	case errors.Is(err, errIssuesFound):
		return 2
	case errors.Is(err, config.ErrUnknownRoot), errors.Is(err, secrets.ErrSecretNotFound):
		return 3
	default:
		return 1
	}
}

// printError reports err on w, as JSON when requested.
func printError(w io.Writer, jsonOutput bool, err error) {
	var silent silentError
	if errors.As(err, &silent) {
		return
	}

	if jsonOutput {
		_ = outputJSON(w, map[string]interface{}{
			"error": map[string]string{
				"code":    errorCode(err),
				"message": err.Error(),
			},
		})
		return
	}

	st := newStyles(w)
	fmt.Fprintf(w, "%s %v\n", st.bad.Render("Error:"), err)
}

// styles renders verdicts. Colors are dropped when the writer is not a
// terminal.
type styles struct {
	ok    lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
	label lipgloss.Style
	dim   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		ok:    r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warn:  r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		bad:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		label: r.NewStyle().Bold(true).Width(14),
		dim:   r.NewStyle().Faint(true),
	}
}

// field prints one aligned "label value" line.
func (st styles) field(w io.Writer, label string, value interface{}) {
	fmt.Fprintf(w, "%s%v\n", st.label.Render(label), value)
}
