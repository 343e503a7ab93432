package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"navi/pkg/gate"
	"navi/pkg/protocol"
	"navi/pkg/supervisor"

	"github.com/google/uuid"
)

// replyTo writes a correlated response back to the emitting subprocess.
func (o *Orchestrator) replyTo(ap *activeProcess, msg protocol.Message) {
	o.mu.Lock()
	proc := ap.proc
	o.mu.Unlock()
	if proc == nil {
		return
	}
	if err := proc.Send(msg); err != nil {
		o.logger.Warn("response write failed", "session", ap.sessionID, "type", msg.Type, "err", err)
	}
}

// handleSpawn creates a child session on behalf of a worker. Hierarchy
// violations come back as a structured refusal: the worker must handle a
// failed spawn, never a dropped request.
func (o *Orchestrator) handleSpawn(ctx context.Context, ap *activeProcess, p *protocol.SpawnPayload) {
	if p == nil {
		return
	}
	refuse := func(reason string) {
		o.replyTo(ap, protocol.Message{
			Type: protocol.MsgSpawnResponse,
			SpawnResponse: &protocol.SpawnResponsePayload{
				RequestID: p.RequestID,
				Success:   false,
				Error:     reason,
			},
		})
	}

	parent, err := o.store.GetSession(ctx, ap.sessionID)
	if err != nil {
		refuse("spawn refused: " + err.Error())
		return
	}

	activeChildren := o.countActiveChildren(ctx, parent.ID)
	if limitErr := checkHierarchy(parent, activeChildren, o.cfg.MaxChildren); limitErr != nil {
		o.logger.Info("spawn refused", "session", parent.ID, "reason", limitErr.Reason)
		refuse(limitErr.Error())
		return
	}

	child := protocol.Session{
		ID:       uuid.NewString(),
		ParentID: parent.ID,
		RootID:   parent.RootID,
		Depth:    parent.Depth + 1,
		Role:     p.Role,
		Task:     p.Task,
		Status:   protocol.StatusWorking,
	}
	if err := o.store.CreateSession(ctx, child); err != nil {
		refuse("spawn refused: " + err.Error())
		return
	}

	// Acknowledge before launching: the spawn request must not block on the
	// child's subprocess coming up.
	o.replyTo(ap, protocol.Message{
		Type: protocol.MsgSpawnResponse,
		SpawnResponse: &protocol.SpawnResponsePayload{
			RequestID:      p.RequestID,
			Success:        true,
			ChildSessionID: child.ID,
		},
	})

	ambient := o.buildChildContext(ctx, parent, p)
	model := p.Model

	go func() {
		o.startTurn(ctx, &child, turnParams{
			prompt:         p.Task,
			model:          model,
			autoApprove:    true, // children execute unattended
			sessionContext: ambient,
		})
	}()

	o.logEvent(ctx, string(protocol.EventSessionSpawned), parent.ID, child.ID)
	o.notifyTree(ctx, parent.ID, protocol.Event{
		Type:           protocol.EventSessionSpawned,
		SessionID:      parent.ID,
		ChildSessionID: child.ID,
		Role:           p.Role,
		Content:        p.Title,
	})
}

// checkHierarchy validates the depth and concurrent-child limits.
func checkHierarchy(parent *protocol.Session, activeChildren, maxChildren int) *protocol.HierarchyLimitError {
	if parent.Depth >= protocol.MaxDepth {
		return &protocol.HierarchyLimitError{
			SessionID: parent.ID,
			Depth:     parent.Depth,
			Children:  activeChildren,
			Reason:    fmt.Sprintf("max depth %d reached", protocol.MaxDepth),
		}
	}
	if activeChildren >= maxChildren {
		return &protocol.HierarchyLimitError{
			SessionID: parent.ID,
			Depth:     parent.Depth,
			Children:  activeChildren,
			Reason:    fmt.Sprintf("concurrent child limit %d reached", maxChildren),
		}
	}
	return nil
}

// countActiveChildren counts the parent's children that still have a live
// subprocess.
func (o *Orchestrator) countActiveChildren(ctx context.Context, parentID string) int {
	children, err := o.store.ChildrenOf(ctx, parentID)
	if err != nil {
		o.logger.Warn("child count failed", "session", parentID, "err", err)
		return 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range children {
		if _, ok := o.procs[c.ID]; ok {
			n++
		}
	}
	return n
}

// buildChildContext seeds a new child with situational awareness: the
// parent's task, sibling roles, and the most recent shared decisions. No
// transcript replay.
func (o *Orchestrator) buildChildContext(ctx context.Context, parent *protocol.Session, p *protocol.SpawnPayload) string {
	var b strings.Builder
	b.WriteString("You are part of a multi-agent session hierarchy.\n")
	fmt.Fprintf(&b, "Your role: %s\nYour task: %s\n", p.Role, p.Task)
	if parent.Task != "" {
		fmt.Fprintf(&b, "Parent task: %s\n", parent.Task)
	}

	if siblings, err := o.store.ChildrenOf(ctx, parent.ID); err == nil {
		var roles []string
		for _, s := range siblings {
			if s.Role != "" && s.Role != p.Role {
				roles = append(roles, s.Role)
			}
		}
		if len(roles) > 0 {
			fmt.Fprintf(&b, "Sibling roles: %s\n", strings.Join(roles, ", "))
		}
	}

	if decisions, err := o.store.RecentDecisions(ctx, parent.RootID, 0); err == nil && len(decisions) > 0 {
		b.WriteString("Recent team decisions:\n")
		for _, d := range decisions {
			fmt.Fprintf(&b, "- %s", d.Decision)
			if d.Rationale != "" {
				fmt.Fprintf(&b, " (%s)", d.Rationale)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// handleGetContext answers a worker's context query. Resolver failures come
// back as an error string in the content so the worker keeps operating with
// degraded context.
func (o *Orchestrator) handleGetContext(ctx context.Context, ap *activeProcess, p *protocol.GetContextPayload) {
	if p == nil {
		return
	}
	content, metadata, err := o.resolver.Resolve(ctx, ap.sessionID, *p)
	if err != nil {
		content = "context unavailable: " + err.Error()
		metadata = nil
	}
	o.replyTo(ap, protocol.Message{
		Type: protocol.MsgContextResponse,
		ContextResponse: &protocol.ContextResponsePayload{
			RequestID: p.RequestID,
			Content:   content,
			Metadata:  metadata,
		},
	})
}

// handleEscalate registers a blocking escalation, marks the session blocked,
// and notifies the nearest watched ancestor. Without a resolution the
// configured timeout fires and resolves it with the timeout action.
func (o *Orchestrator) handleEscalate(ctx context.Context, ap *activeProcess, msg protocol.Message) {
	p := msg.Escalate
	if p == nil {
		return
	}
	o.mu.Lock()
	proc := ap.proc
	o.mu.Unlock()

	if err := o.gate.Register(ctx, gate.Request{
		ID:        p.RequestID,
		SessionID: ap.sessionID,
		Kind:      gate.KindEscalation,
		Payload:   msg,
		Target:    proc,
	}); err != nil {
		o.logger.Warn("escalation register failed", "session", ap.sessionID, "err", err)
		return
	}

	o.setStatus(ctx, ap.sessionID, protocol.StatusBlocked)
	o.logEvent(ctx, string(protocol.EventSessionEscalated), ap.sessionID, p.Summary)

	if o.cfg.EscalationTimeout > 0 {
		requestID := p.RequestID
		t := time.AfterFunc(o.cfg.EscalationTimeout, func() {
			o.ResolveEscalation(context.Background(), requestID,
				protocol.EscalationTimeoutAction, "escalation timed out with no resolution")
		})
		o.mu.Lock()
		o.timers[requestID] = t
		o.mu.Unlock()
	}

	o.notifyTree(ctx, ap.sessionID, protocol.Event{
		Type:           protocol.EventSessionEscalated,
		SessionID:      ap.sessionID,
		RequestID:      p.RequestID,
		EscalationType: p.EscalationType,
		Summary:        p.Summary,
		Content:        p.Context,
		Options:        p.Options,
	})
}

// ResolveEscalation consumes a pending escalation exactly once: the decision
// is written to the escalating subprocess's input stream, the session is
// unblocked, and watchers are notified. Resolving an unknown or
// already-resolved ID reports false and has no effect.
func (o *Orchestrator) ResolveEscalation(ctx context.Context, requestID, action, content string) bool {
	req, ok := o.gate.Resolve(ctx, requestID)
	if !ok {
		return false
	}
	if t := o.takeTimer(requestID); t != nil {
		t.Stop()
	}

	if req.Target != nil {
		err := req.Target.Send(protocol.Message{
			Type: protocol.MsgEscalationResponse,
			EscalationResponse: &protocol.EscalationResponsePayload{
				RequestID: requestID,
				Action:    action,
				Content:   content,
			},
		})
		if err != nil {
			o.logger.Warn("escalation response write failed", "session", req.SessionID, "err", err)
		}
	}

	o.setStatus(ctx, req.SessionID, protocol.StatusWorking)
	o.logEvent(ctx, string(protocol.EventSessionEscalationResolved), req.SessionID, action)
	o.notifyTree(ctx, req.SessionID, protocol.Event{
		Type:      protocol.EventSessionEscalationResolved,
		SessionID: req.SessionID,
		RequestID: requestID,
		Action:    action,
		Content:   content,
	})
	return true
}

// handleDeliver records a child's deliverable and crosses the session
// boundary exactly once in each direction: one synthetic message appended to
// the parent's conversation, one message pushed to the parent's subprocess
// input stream.
func (o *Orchestrator) handleDeliver(ctx context.Context, ap *activeProcess, p *protocol.DeliverPayload) {
	if p == nil {
		return
	}
	artifacts, _ := json.Marshal(p.Artifacts)
	if _, err := o.store.SaveDeliverable(ctx, protocol.Deliverable{
		SessionID: ap.sessionID,
		Type:      p.DeliverableType,
		Summary:   p.Summary,
		Content:   p.Content,
		Artifacts: string(artifacts),
	}); err != nil {
		o.logger.Warn("deliverable persist failed", "session", ap.sessionID, "err", err)
	}

	o.setStatus(ctx, ap.sessionID, protocol.StatusDelivered)
	o.replyTo(ap, protocol.Message{
		Type: protocol.MsgDeliverResponse,
		DeliverResponse: &protocol.DeliverResponsePayload{
			RequestID: p.RequestID,
			Success:   true,
		},
	})

	sess, err := o.store.GetSession(ctx, ap.sessionID)
	if err != nil || sess.ParentID == "" {
		return
	}

	notice := fmt.Sprintf("[deliverable from %s] %s\n\n%s", sess.Role, p.Summary, p.Content)
	if err := o.store.AppendMessage(ctx, sess.ParentID, "assistant", notice); err != nil {
		o.logger.Warn("deliverable message persist failed", "session", sess.ParentID, "err", err)
	}

	o.mu.Lock()
	var parentProc supervisor.Proc
	if pap := o.procs[sess.ParentID]; pap != nil {
		parentProc = pap.proc
	}
	o.mu.Unlock()
	if parentProc != nil {
		err := parentProc.Send(protocol.Message{
			Type: protocol.MsgMessage,
			Message: &protocol.MessagePayload{
				Role:    "user",
				Content: notice,
			},
		})
		if err != nil {
			o.logger.Warn("deliverable push failed", "session", sess.ParentID, "err", err)
		}
	}

	o.logEvent(ctx, string(protocol.EventSessionDelivered), ap.sessionID, p.Summary)
	o.notifyTree(ctx, sess.ParentID, protocol.Event{
		Type:           protocol.EventSessionDelivered,
		SessionID:      sess.ParentID,
		ChildSessionID: ap.sessionID,
		Role:           sess.Role,
		Summary:        p.Summary,
		Content:        p.Content,
	})
}

// handleLogDecision appends to the shared decision log and acknowledges
// with the new entry's ID.
func (o *Orchestrator) handleLogDecision(ctx context.Context, ap *activeProcess, p *protocol.LogDecisionPayload) {
	if p == nil {
		return
	}
	sess, err := o.store.GetSession(ctx, ap.sessionID)
	if err != nil {
		o.replyTo(ap, protocol.Message{
			Type:             protocol.MsgDecisionResponse,
			DecisionResponse: &protocol.DecisionResponsePayload{RequestID: p.RequestID},
		})
		return
	}

	id, err := o.store.LogDecision(ctx, protocol.Decision{
		RootID:    sess.RootID,
		SessionID: sess.ID,
		Decision:  p.Decision,
		Category:  p.Category,
		Rationale: p.Rationale,
	})
	if err != nil {
		o.logger.Warn("decision persist failed", "session", ap.sessionID, "err", err)
		o.replyTo(ap, protocol.Message{
			Type:             protocol.MsgDecisionResponse,
			DecisionResponse: &protocol.DecisionResponsePayload{RequestID: p.RequestID},
		})
		return
	}
	o.replyTo(ap, protocol.Message{
		Type: protocol.MsgDecisionResponse,
		DecisionResponse: &protocol.DecisionResponsePayload{
			RequestID:  p.RequestID,
			Success:    true,
			DecisionID: id,
		},
	})
}
