package agent

import (
	"strings"

	"github.com/dvloznov/finance-agent/internal/domain"
)

// Status is the outcome of a turn as reported to the caller.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusNeedsInput Status = "needs_input"
	StatusFallback   Status = "fallback"
	StatusFailed     Status = "failed"
)

// Action is what the router decided to do with an interpretation.
type Action int

const (
	ActionCommit Action = iota
	ActionClarify
	ActionFallback
)

func (a Action) String() string {
	switch a {
	case ActionCommit:
		return "commit"
	case ActionClarify:
		return "clarify"
	case ActionFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Decision carries the routing outcome and, unless committing, the reply to show.
type Decision struct {
	Action Action
	Reply  string
}

const (
	defaultClarification       = "Pode me dar mais detalhes sobre esse lançamento?"
	transferDestinationRequest = "Para qual conta você quer transferir?"
)

// Route decides whether a turn commits. A nil candidate falls back to the
// free-text reply. Doubt, and transfers with no destination, ask the user.
func Route(c *domain.Candidate, rawReply string) Decision {
	if c == nil {
		return Decision{Action: ActionFallback, Reply: strings.TrimSpace(rawReply)}
	}
	if c.IADoubt {
		reply := strings.TrimSpace(c.IAReply)
		if reply == "" {
			reply = defaultClarification
		}
		return Decision{Action: ActionClarify, Reply: reply}
	}
	if c.Type == domain.TypeTransfer && !c.DestinationAccountID.IsSet() {
		return Decision{Action: ActionClarify, Reply: transferDestinationRequest}
	}
	return Decision{Action: ActionCommit}
}
