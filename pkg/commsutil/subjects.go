package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectFlowPrefix   = "flow"
	SubjectInvokedEvent = "flows.invoked"
)

// SafeToken turns a flow name into a single subject token.
func SafeToken(name string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(name)
}

// BuildRunSubject builds the request/reply subject for buffered execution of a flow.
func BuildRunSubject(flowName string) string {
	return fmt.Sprintf("%s.%s.run", SubjectFlowPrefix, SafeToken(flowName))
}

// BuildStreamSubject builds the subject that starts a streaming execution of a flow.
func BuildStreamSubject(flowName string) string {
	return fmt.Sprintf("%s.%s.stream", SubjectFlowPrefix, SafeToken(flowName))
}

// BuildInvokedSubject builds the per-flow invocation event subject.
func BuildInvokedSubject(flowName string) string {
	return fmt.Sprintf("%s.%s", SubjectInvokedEvent, SafeToken(flowName))
}
