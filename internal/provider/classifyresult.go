package provider

// ClassifyExitCode applies the same precedence chain as ClassifyErrorText,
// but first special-cases exit codes a shell reserves for conditions no
// amount of text scanning can recover: 124 is the conventional timeout exit
// code used by the `timeout(1)` wrapper process providers are run under.
func ClassifyExitCode(exitCode int, stderr string) ErrorKind {
	if exitCode == 124 {
		return ErrorTimeout
	}
	return ClassifyErrorText(stderr, "")
}

// ClassifyInvokeResult classifies a completed invocation by error kind,
// preferring the timed-out flag over text scanning and otherwise applying
// ClassifyErrorText to stderr/stdout.
func ClassifyInvokeResult(result InvokeResult) ErrorKind {
	if result.TimedOut {
		return ErrorTimeout
	}
	if result.Success {
		return ""
	}
	return ClassifyErrorText(result.Stderr, result.Stdout)
}
