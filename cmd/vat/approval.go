// File: cmd/vat/approval.go
// Brief: Whether bump and unlink may run without asking.

package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type approvalDecision struct {
	// Approved is set by --yes or VAT_YES.
	Approved       bool
	InteractiveTTY bool
}

// approvedFromEnv accepts the strconv booleans plus "yes", "y" and "on".
func approvedFromEnv() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("VAT_YES")))
	switch v {
	case "yes", "y", "on":
		return true
	}
	ok, err := strconv.ParseBool(v)
	return err == nil && ok
}

func approvalFor(cmd *cobra.Command, yes bool) approvalDecision {
	return approvalDecision{
		Approved:       yes || approvedFromEnv(),
		InteractiveTTY: isTerminalReader(cmd.InOrStdin()) && isTerminalWriter(cmd.ErrOrStderr()),
	}
}

// confirmStep prompts on the command's stdin unless the step was approved up front.
func confirmStep(cmd *cobra.Command, yes bool, prompt string, mode confirmMode, expected string) error {
	return confirmAction(cmd.Context(), cmd.InOrStdin(), cmd.ErrOrStderr(), approvalFor(cmd, yes), prompt, mode, expected)
}
