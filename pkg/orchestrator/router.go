package orchestrator

import (
	"context"
	"errors"
	"time"

	"navi/pkg/continuation"
	"navi/pkg/gate"
	"navi/pkg/protocol"
	"navi/pkg/supervisor"

	"github.com/google/uuid"
)

// HandleCommand dispatches one client command. Errors surface to the client
// as error events; a command for an unknown session never takes down the
// connection or another session.
func (o *Orchestrator) HandleCommand(ctx context.Context, conn ClientConn, cmd protocol.Command) {
	switch cmd.Type {
	case protocol.CmdQuery:
		o.handleQuery(ctx, conn, cmd)
	case protocol.CmdCancel, protocol.CmdAbort:
		o.handleCancel(ctx, conn, cmd.SessionID)
	case protocol.CmdAttach:
		o.handleAttach(ctx, conn, cmd.SessionID)
	case protocol.CmdPermissionResponse:
		o.handlePermissionResponse(ctx, cmd)
	case protocol.CmdQuestionResponse:
		o.handleQuestionResponse(ctx, cmd)
	default:
		o.sendErr(conn, cmd.SessionID, "unknown command type: "+string(cmd.Type))
	}
}

func (o *Orchestrator) sendErr(conn ClientConn, sessionID, msg string) {
	if conn == nil {
		return
	}
	_ = conn.Send(protocol.Event{Type: protocol.EventError, SessionID: sessionID, Error: msg})
}

// handleQuery starts a turn for a session. A query against a session with a
// live process is a logic error: callers must cancel first.
func (o *Orchestrator) handleQuery(ctx context.Context, conn ClientConn, cmd protocol.Command) {
	sessionID := cmd.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	o.mu.Lock()
	if _, exists := o.procs[sessionID]; exists {
		o.mu.Unlock()
		o.sendErr(conn, sessionID, (&protocol.SessionActiveError{SessionID: sessionID}).Error())
		return
	}
	o.mu.Unlock()

	sess, err := o.store.GetSession(ctx, sessionID)
	var notFound *protocol.SessionNotFoundError
	if errors.As(err, &notFound) {
		sess = &protocol.Session{
			ID:     sessionID,
			RootID: sessionID,
			Task:   cmd.Prompt,
			Status: protocol.StatusWorking,
		}
		if createErr := o.store.CreateSession(ctx, *sess); createErr != nil {
			o.sendErr(conn, sessionID, "create session: "+createErr.Error())
			return
		}
	} else if err != nil {
		o.sendErr(conn, sessionID, err.Error())
		return
	}

	if cmd.UntilDone {
		maxIter := cmd.MaxIterations
		if maxIter <= 0 {
			maxIter = o.cfg.MaxIterations
		}
		o.mu.Lock()
		o.cont[sessionID] = continuation.NewState(cmd.Prompt, maxIter)
		o.mu.Unlock()
	}

	o.startTurn(ctx, sess, turnParams{
		prompt:  cmd.Prompt,
		workdir: cmd.Workdir,
		model:   cmd.Model,
		conn:    conn,
	})
}

// turnParams describes one subprocess invocation of a session.
type turnParams struct {
	prompt         string
	workdir        string
	model          string
	conn           ClientConn
	autoApprove    bool
	sessionContext string
}

// startTurn registers the active process and spawns the subprocess. The
// entry is registered before Spawn so output arriving immediately after
// launch always finds its session.
func (o *Orchestrator) startTurn(ctx context.Context, sess *protocol.Session, p turnParams) {
	workdir := p.workdir
	if workdir == "" {
		workdir = o.cfg.Workdir
	}
	model := p.model
	if model == "" {
		model = o.cfg.DefaultModel
	}

	ap := &activeProcess{
		sessionID: sess.ID,
		conn:      p.conn,
		childProc: p.autoApprove,
	}
	o.mu.Lock()
	o.procs[sess.ID] = ap
	o.mu.Unlock()

	proc, err := o.spawner.Spawn(ctx, supervisor.Config{
		SessionID:      sess.ID,
		Prompt:         p.prompt,
		Workdir:        workdir,
		Model:          model,
		ResumeToken:    sess.RuntimeSessionID,
		AutoApprove:    p.autoApprove,
		SessionContext: p.sessionContext,
	}, &procSink{o: o, ap: ap})
	if err != nil {
		o.mu.Lock()
		delete(o.procs, sess.ID)
		delete(o.cont, sess.ID)
		o.mu.Unlock()
		o.logger.Error("subprocess start failed", "session", sess.ID, "err", err)
		o.logEvent(ctx, string(protocol.EventError), sess.ID, err.Error())
		o.sendErr(p.conn, sess.ID, err.Error())
		return
	}

	o.mu.Lock()
	ap.proc = proc
	o.mu.Unlock()
	o.setStatus(ctx, sess.ID, protocol.StatusWorking)
}

// handleCancel kills the session's subprocess, clears its pending decisions
// so they never leak, and acknowledges the client. Idempotent: cancelling a
// session with no active process is a no-op.
func (o *Orchestrator) handleCancel(ctx context.Context, conn ClientConn, sessionID string) {
	o.mu.Lock()
	ap := o.procs[sessionID]
	delete(o.procs, sessionID)
	delete(o.cont, sessionID)
	delete(o.contConn, sessionID)
	o.mu.Unlock()

	if ap != nil && ap.proc != nil {
		if err := ap.proc.Kill(); err != nil {
			o.logger.Warn("kill failed", "session", sessionID, "err", err)
		}
	}

	orphaned := o.gate.ClearSession(ctx, sessionID)
	for _, req := range orphaned {
		if t := o.takeTimer(req.ID); t != nil {
			t.Stop()
		}
	}
	if len(orphaned) > 0 {
		o.logger.Info("cleared pending requests on cancel", "session", sessionID, "count", len(orphaned))
	}

	if ap != nil {
		o.setStatus(ctx, sessionID, protocol.StatusWaiting)
	}
	if conn != nil {
		_ = conn.Send(protocol.Event{Type: protocol.EventDone, SessionID: sessionID, Content: "cancelled"})
	}
}

// handleAttach rebinds a connection to a running session and, when the
// binding actually changed, replays every still-pending permission and
// question request so the reconnecting client sees outstanding decisions.
// Attaching to a session with no active process is silently ignored.
func (o *Orchestrator) handleAttach(_ context.Context, conn ClientConn, sessionID string) {
	o.mu.Lock()
	ap := o.procs[sessionID]
	if ap == nil {
		// No live process, but a continuation delay may be in flight; rebind
		// it so the respawned turn lands on this client.
		if _, pending := o.cont[sessionID]; pending {
			o.contConn[sessionID] = conn
		}
		o.mu.Unlock()
		return
	}
	changed := ap.conn != conn
	ap.conn = conn
	o.mu.Unlock()

	if !changed {
		return
	}
	for _, req := range o.gate.ForSession(sessionID) {
		if ev, ok := replayEvent(req); ok {
			_ = conn.Send(ev)
		}
	}
}

// replayEvent rebuilds the client event for a pending request.
func replayEvent(req gate.Request) (protocol.Event, bool) {
	switch req.Kind {
	case gate.KindPermission:
		p := req.Payload.PermissionRequest
		if p == nil {
			return protocol.Event{}, false
		}
		return protocol.Event{
			Type:      protocol.EventPermissionRequest,
			SessionID: req.SessionID,
			RequestID: p.RequestID,
			ToolName:  p.ToolName,
			ToolInput: p.ToolInput,
		}, true
	case gate.KindQuestion:
		p := req.Payload.AskUserQuestion
		if p == nil {
			return protocol.Event{}, false
		}
		return protocol.Event{
			Type:      protocol.EventAskUserQuestion,
			SessionID: req.SessionID,
			RequestID: p.RequestID,
			Questions: p.Questions,
		}, true
	case gate.KindEscalation:
		p := req.Payload.Escalate
		if p == nil {
			return protocol.Event{}, false
		}
		return protocol.Event{
			Type:           protocol.EventSessionEscalated,
			SessionID:      req.SessionID,
			RequestID:      p.RequestID,
			EscalationType: p.EscalationType,
			Summary:        p.Summary,
			Content:        p.Context,
			Options:        p.Options,
		}, true
	}
	return protocol.Event{}, false
}

// handlePermissionResponse resolves a pending permission request. Unknown or
// already-resolved request IDs are dropped without error.
func (o *Orchestrator) handlePermissionResponse(ctx context.Context, cmd protocol.Command) {
	req, ok := o.gate.Resolve(ctx, cmd.RequestID)
	if !ok {
		return
	}
	if cmd.ApproveAll {
		o.mu.Lock()
		if ap := o.procs[req.SessionID]; ap != nil {
			ap.autoAll = true
		}
		o.mu.Unlock()
	}
	msg := protocol.Message{
		Type: protocol.MsgPermissionResponse,
		PermissionResponse: &protocol.PermissionResponsePayload{
			RequestID:  cmd.RequestID,
			Approved:   cmd.Approved,
			ApproveAll: cmd.ApproveAll,
		},
	}
	if err := req.Target.Send(msg); err != nil {
		o.logger.Warn("permission response write failed", "session", req.SessionID, "err", err)
	}
}

// handleQuestionResponse resolves a pending user question.
func (o *Orchestrator) handleQuestionResponse(ctx context.Context, cmd protocol.Command) {
	req, ok := o.gate.Resolve(ctx, cmd.RequestID)
	if !ok {
		return
	}
	msg := protocol.Message{
		Type: protocol.MsgQuestionResponse,
		QuestionResponse: &protocol.QuestionResponsePayload{
			RequestID: cmd.RequestID,
			Answers:   cmd.Answers,
		},
	}
	if err := req.Target.Send(msg); err != nil {
		o.logger.Warn("question response write failed", "session", req.SessionID, "err", err)
	}
}

// Disconnect nulls the connection reference on every session bound to conn,
// including sessions parked in a continuation delay. Subprocesses keep
// running; a later attach picks them back up.
func (o *Orchestrator) Disconnect(conn ClientConn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ap := range o.procs {
		if ap.conn == conn {
			ap.conn = nil
		}
	}
	for id, c := range o.contConn {
		if c == conn {
			o.contConn[id] = nil
		}
	}
}

// takeTimer removes and returns the escalation timer for a request ID.
func (o *Orchestrator) takeTimer(requestID string) *time.Timer {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.timers[requestID]
	delete(o.timers, requestID)
	return t
}
