package backends

import (
	"fmt"
	"strings"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// quote single-quotes s for a POSIX shell.
func quote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@,", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// join quotes and joins command arguments.
func join(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = quote(a)
	}
	return strings.Join(quoted, " ")
}

// commandFailed builds the error returned for a non-zero exit when the
// caller asked to raise on failure.
func commandFailed(cmd, host string, result engine.CommandResult) *engine.EngineError {
	e := engine.NewProvisioningError(fmt.Sprintf("command exited with status %d", result.ExitCode), nil).
		WithCode(engine.ErrCodeCommandFailed).
		WithDetail("command", cmd)
	if host != "" {
		e = e.WithDetail("host", host)
	}
	if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		e.Message += ": " + lastLine(stderr)
		e = e.WithDetail("stderr", stderr)
	}
	return e
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
