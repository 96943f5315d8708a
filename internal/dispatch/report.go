package dispatch

import (
	"fmt"
	"io"

	"github.com/mokrunka/taskwarrior-capsules/internal/errors"
	"github.com/mokrunka/taskwarrior-capsules/internal/style"
)

// Reporter prints capsule errors for the user.
type Reporter struct {
	w io.Writer
}

func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Report writes one line describing err. Errors attributed to a capsule
// name it; anything else is printed as a plain error.
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	ce, ok := errors.As(err)
	if !ok {
		fmt.Fprintln(r.w, style.Error.Render("tw: "+err.Error()))
		return
	}
	if ce.Capsule == "" {
		fmt.Fprintln(r.w, style.Error.Render("tw: "+ce.Message))
		return
	}
	fmt.Fprintln(r.w, style.Error.Render(Message(ce.Capsule, ce.Message)))
}

// Message formats the user-facing report for a failed capsule.
func Message(capsuleName, message string) string {
	return fmt.Sprintf("The %s capsule encountered an error processing your request: %s", capsuleName, message)
}
