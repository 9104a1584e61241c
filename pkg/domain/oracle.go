package domain

// OracleResponse is what the reasoning oracle answered for one iteration.
// It is either NoAction or ProposedToolCall.
type OracleResponse interface {
	isOracleResponse()
}

// NoAction means the oracle abstained from calling a tool.
type NoAction struct {
	Reply string
}

// ProposedToolCall carries the first tool call of the oracle's answer.
// Dropped counts any further calls in the same answer, which are ignored.
type ProposedToolCall struct {
	Call    ToolCall
	Reply   string
	Dropped int
}

func (NoAction) isOracleResponse()         {}
func (ProposedToolCall) isOracleResponse() {}
