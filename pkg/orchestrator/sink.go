package orchestrator

import (
	"context"

	"navi/pkg/gate"
	"navi/pkg/protocol"
)

// procSink binds one subprocess's output stream back to the orchestrator.
// Holding the activeProcess pointer lets Exit tell a stale process apart
// from a continuation respawn under the same session ID.
type procSink struct {
	o  *Orchestrator
	ap *activeProcess
}

func (s *procSink) Line(sessionID string, msg protocol.Message) {
	s.o.handleLine(context.Background(), s.ap, msg)
}

func (s *procSink) Exit(sessionID string, err error, last *protocol.Message) {
	s.o.handleExit(context.Background(), s.ap, err, last)
}

// handleLine dispatches one decoded subprocess message.
func (o *Orchestrator) handleLine(ctx context.Context, ap *activeProcess, msg protocol.Message) {
	switch msg.Type {
	case protocol.MsgMessage:
		o.handleContent(ctx, ap, msg.Message)
	case protocol.MsgPermissionRequest:
		o.handlePermissionRequest(ctx, ap, msg)
	case protocol.MsgAskUserQuestion:
		o.handleAskUserQuestion(ctx, ap, msg)
	case protocol.MsgSpawn:
		o.handleSpawn(ctx, ap, msg.Spawn)
	case protocol.MsgGetContext:
		o.handleGetContext(ctx, ap, msg.GetContext)
	case protocol.MsgEscalate:
		o.handleEscalate(ctx, ap, msg)
	case protocol.MsgDeliver:
		o.handleDeliver(ctx, ap, msg.Deliver)
	case protocol.MsgLogDecision:
		o.handleLogDecision(ctx, ap, msg.LogDecision)
	case protocol.MsgComplete:
		o.handleComplete(ctx, ap, msg.Complete)
	case protocol.MsgError:
		o.handleWorkerError(ctx, ap, msg.Error)
	default:
		o.logger.Warn("unhandled message type", "session", ap.sessionID, "type", msg.Type)
	}
}

// handleContent persists a conversation turn and forwards it to the bound
// connection.
func (o *Orchestrator) handleContent(ctx context.Context, ap *activeProcess, p *protocol.MessagePayload) {
	if p == nil {
		return
	}
	if err := o.store.AppendMessage(ctx, ap.sessionID, p.Role, p.Content); err != nil {
		o.logger.Warn("message persist failed", "session", ap.sessionID, "err", err)
	}
	if p.RuntimeSessionID != "" {
		if err := o.store.SetRuntimeSession(ctx, ap.sessionID, p.RuntimeSessionID); err != nil {
			o.logger.Warn("resume token persist failed", "session", ap.sessionID, "err", err)
		}
	}
	if p.CostUSD != 0 || p.Usage != nil {
		var in, out int64
		if p.Usage != nil {
			in, out = p.Usage.InputTokens, p.Usage.OutputTokens
		}
		if err := o.store.AddSessionCost(ctx, ap.sessionID, p.CostUSD, in, out); err != nil {
			o.logger.Warn("cost persist failed", "session", ap.sessionID, "err", err)
		}
	}

	var evType protocol.EventType
	switch p.Role {
	case "assistant":
		evType = protocol.EventAssistant
	case "user":
		evType = protocol.EventUser
	case "result":
		evType = protocol.EventResult
	default:
		evType = protocol.EventAssistant
	}
	o.sendToSession(ap.sessionID, protocol.Event{
		Type:      evType,
		SessionID: ap.sessionID,
		Content:   p.Content,
	})
}

// handlePermissionRequest gates a tool-use approval. When approve_all was
// granted earlier, the request is answered immediately without a round trip.
func (o *Orchestrator) handlePermissionRequest(ctx context.Context, ap *activeProcess, msg protocol.Message) {
	p := msg.PermissionRequest
	if p == nil {
		return
	}

	o.mu.Lock()
	autoAll := ap.autoAll
	proc := ap.proc
	o.mu.Unlock()

	if autoAll && proc != nil {
		resp := protocol.Message{
			Type: protocol.MsgPermissionResponse,
			PermissionResponse: &protocol.PermissionResponsePayload{
				RequestID: p.RequestID,
				Approved:  true,
			},
		}
		if err := proc.Send(resp); err != nil {
			o.logger.Warn("auto-approve write failed", "session", ap.sessionID, "err", err)
		}
		return
	}

	if err := o.gate.Register(ctx, gate.Request{
		ID:        p.RequestID,
		SessionID: ap.sessionID,
		Kind:      gate.KindPermission,
		Payload:   msg,
		Target:    proc,
	}); err != nil {
		o.logger.Warn("permission register failed", "session", ap.sessionID, "err", err)
		return
	}
	o.sendToSession(ap.sessionID, protocol.Event{
		Type:      protocol.EventPermissionRequest,
		SessionID: ap.sessionID,
		RequestID: p.RequestID,
		ToolName:  p.ToolName,
		ToolInput: p.ToolInput,
	})
}

// handleAskUserQuestion gates a user question. Questions persist durably so
// they survive a client restart.
func (o *Orchestrator) handleAskUserQuestion(ctx context.Context, ap *activeProcess, msg protocol.Message) {
	p := msg.AskUserQuestion
	if p == nil {
		return
	}
	o.mu.Lock()
	proc := ap.proc
	o.mu.Unlock()

	if err := o.gate.Register(ctx, gate.Request{
		ID:        p.RequestID,
		SessionID: ap.sessionID,
		Kind:      gate.KindQuestion,
		Payload:   msg,
		Target:    proc,
	}); err != nil {
		o.logger.Warn("question register failed", "session", ap.sessionID, "err", err)
		return
	}
	o.sendToSession(ap.sessionID, protocol.Event{
		Type:      protocol.EventAskUserQuestion,
		SessionID: ap.sessionID,
		RequestID: p.RequestID,
		Questions: p.Questions,
	})
}

// handleWorkerError surfaces a worker-reported failure.
func (o *Orchestrator) handleWorkerError(ctx context.Context, ap *activeProcess, p *protocol.ErrorPayload) {
	if p == nil {
		return
	}
	o.logger.Error("worker error", "session", ap.sessionID, "err", p.Error)
	o.logEvent(ctx, string(protocol.EventError), ap.sessionID, p.Error)
	o.sendToSession(ap.sessionID, protocol.Event{
		Type:      protocol.EventError,
		SessionID: ap.sessionID,
		Error:     p.Error,
	})
}

// handleExit reacts to subprocess termination. A final buffered undelimited
// complete message is honored as a best-effort completion signal; otherwise
// the session keeps its last observed status. A late exit from a process the
// continuation loop already tore down is ignored.
func (o *Orchestrator) handleExit(ctx context.Context, ap *activeProcess, exitErr error, last *protocol.Message) {
	o.mu.Lock()
	current := o.procs[ap.sessionID]
	stale := current != ap
	conn := ap.conn
	if !stale {
		delete(o.procs, ap.sessionID)
	}
	o.mu.Unlock()

	if stale {
		return
	}

	if last != nil && last.Type == protocol.MsgComplete {
		// Re-register briefly so completion handling sees the process entry
		// it expects, then fall through to normal completion.
		o.mu.Lock()
		o.procs[ap.sessionID] = ap
		o.mu.Unlock()
		o.handleComplete(ctx, ap, last.Complete)
		o.mu.Lock()
		if o.procs[ap.sessionID] == ap {
			delete(o.procs, ap.sessionID)
		}
		o.mu.Unlock()
		return
	}

	if exitErr != nil {
		o.logger.Warn("subprocess exited with error", "session", ap.sessionID, "err", exitErr)
		o.logEvent(ctx, string(protocol.EventError), ap.sessionID, exitErr.Error())
		if conn != nil {
			_ = conn.Send(protocol.Event{
				Type:      protocol.EventError,
				SessionID: ap.sessionID,
				Error:     exitErr.Error(),
			})
		}
	}
}
