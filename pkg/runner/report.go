package runner

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	ColorSuccess = "#10B981"
	ColorWarning = "#F59E0B"
	ColorError   = "#EF4444"
	ColorPrimary = "#7C3AED"
)

var nextSteps = []string{
	"Refresh your web application",
	"Try creating a manual snapshot",
	"Check if the snapshot calendar now shows dates",
}

// styles are bound to one writer so colors are only emitted when that
// writer is a terminal.
type styles struct {
	title   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorPrimary)),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorSuccess)),
		warning: r.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWarning)),
		failure: r.NewStyle().Foreground(lipgloss.Color(ColorError)),
	}
}

// Report writes the summary of rec to w. The output depends only on rec
// and completed.
func Report(w io.Writer, rec *Record, completed time.Time) {
	st := newStyles(w)
	rule := strings.Repeat("=", 60)

	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintln(w, st.title.Render("📊 SNAPSHOT SYSTEM TEST REPORT"))
	fmt.Fprintln(w, rule)

	entries := rec.Entries()
	width := 0
	for _, e := range entries {
		width = max(width, len(e.Label)+1)
	}

	fmt.Fprintln(w, "\n🔍 TEST RESULTS:")
	for _, e := range entries {
		mark := "❌"
		if e.Passed {
			mark = "✅"
		}
		fmt.Fprintf(w, "   %-*s %s\n", width, e.Label+":", mark)
	}

	if rec.Passed() == rec.Total() {
		fmt.Fprintf(w, "\n%s\n", st.success.Render("🎉 ALL TESTS PASSED!"))
		fmt.Fprintln(w, "Your snapshot system should be working correctly.")
		fmt.Fprintln(w, "\n📋 NEXT STEPS:")
		for i, s := range nextSteps {
			fmt.Fprintf(w, "%d. %s\n", i+1, s)
		}
	} else {
		fmt.Fprintf(w, "\n%s\n", st.warning.Render(fmt.Sprintf("⚠️  %d/%d TESTS PASSED", rec.Passed(), rec.Total())))

		if errs := rec.Errors(); len(errs) > 0 {
			fmt.Fprintln(w, "\n🚨 ERRORS FOUND:")
			for i, e := range errs {
				fmt.Fprintf(w, "   %d. %s\n", i+1, st.failure.Render(e))
			}
		}

		fmt.Fprintln(w, "\n🔧 RECOMMENDED FIXES:")
		for _, e := range entries {
			if !e.Passed && e.Remediation != "" {
				fmt.Fprintf(w, "   • %s\n", e.Remediation)
			}
		}
	}

	fmt.Fprintf(w, "\n⏰ Test completed at: %s\n", completed.Format(time.DateTime))
}
