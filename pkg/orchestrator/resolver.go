package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"navi/pkg/protocol"
	"navi/pkg/store"
)

// StoreResolver answers get_context queries from the session store: the
// root task for "project", a sibling's latest deliverable for "sibling",
// and the shared decision log for "decisions".
type StoreResolver struct {
	Store *store.Store
}

// Resolve implements ContextResolver.
func (r *StoreResolver) Resolve(ctx context.Context, sessionID string, req protocol.GetContextPayload) (string, map[string]string, error) {
	switch req.Source {
	case "project":
		return r.projectContext(ctx, sessionID)
	case "sibling":
		return r.siblingContext(ctx, sessionID, req.SiblingRole)
	case "decisions":
		return r.decisionContext(ctx, sessionID)
	default:
		return "", nil, fmt.Errorf("unknown context source %q", req.Source)
	}
}

func (r *StoreResolver) projectContext(ctx context.Context, sessionID string) (string, map[string]string, error) {
	sess, err := r.Store.GetSession(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}
	root, err := r.Store.GetSession(ctx, sess.RootID)
	if err != nil {
		return "", nil, err
	}
	return root.Task, map[string]string{"root_session": root.ID}, nil
}

func (r *StoreResolver) siblingContext(ctx context.Context, sessionID, role string) (string, map[string]string, error) {
	sess, err := r.Store.GetSession(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}
	if sess.ParentID == "" {
		return "", nil, fmt.Errorf("session %s has no siblings", sessionID)
	}
	siblings, err := r.Store.ChildrenOf(ctx, sess.ParentID)
	if err != nil {
		return "", nil, err
	}
	for _, sib := range siblings {
		if sib.ID == sessionID || sib.Role != role {
			continue
		}
		d, err := r.Store.LatestDeliverable(ctx, sib.ID)
		if err != nil {
			return "", nil, err
		}
		if d == nil {
			return fmt.Sprintf("sibling %q has not delivered yet (status: %s)", role, sib.Status),
				map[string]string{"sibling_session": sib.ID}, nil
		}
		return fmt.Sprintf("%s\n\n%s", d.Summary, d.Content),
			map[string]string{"sibling_session": sib.ID, "deliverable_type": d.Type}, nil
	}
	return "", nil, fmt.Errorf("no sibling with role %q", role)
}

func (r *StoreResolver) decisionContext(ctx context.Context, sessionID string) (string, map[string]string, error) {
	sess, err := r.Store.GetSession(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}
	decisions, err := r.Store.RecentDecisions(ctx, sess.RootID, 0)
	if err != nil {
		return "", nil, err
	}
	if len(decisions) == 0 {
		return "no decisions logged yet", nil, nil
	}
	var b strings.Builder
	for _, d := range decisions {
		fmt.Fprintf(&b, "- %s", d.Decision)
		if d.Category != "" {
			fmt.Fprintf(&b, " [%s]", d.Category)
		}
		if d.Rationale != "" {
			fmt.Fprintf(&b, ": %s", d.Rationale)
		}
		b.WriteString("\n")
	}
	return b.String(), map[string]string{"count": fmt.Sprintf("%d", len(decisions))}, nil
}
