package orchestrator

import (
	"context"
	"fmt"
	"time"

	"navi/pkg/continuation"
	"navi/pkg/protocol"
)

// handleComplete closes out a turn: cost is accumulated, and when "until
// done" mode is active the completion heuristic decides whether the session
// is re-invoked with the continuation prompt.
func (o *Orchestrator) handleComplete(ctx context.Context, ap *activeProcess, p *protocol.CompletePayload) {
	if p == nil {
		p = &protocol.CompletePayload{}
	}

	var in, out int64
	if p.LastAssistantUsage != nil {
		in, out = p.LastAssistantUsage.InputTokens, p.LastAssistantUsage.OutputTokens
	}
	if p.CostUSD != 0 || in != 0 || out != 0 {
		if err := o.store.AddSessionCost(ctx, ap.sessionID, p.CostUSD, in, out); err != nil {
			o.logger.Warn("cost persist failed", "session", ap.sessionID, "err", err)
		}
	}

	o.mu.Lock()
	st := o.cont[ap.sessionID]
	o.mu.Unlock()

	if st == nil || !st.Enabled {
		if !ap.childProc {
			o.setStatus(ctx, ap.sessionID, protocol.StatusWaiting)
		}
		o.sendToSession(ap.sessionID, protocol.Event{
			Type:      protocol.EventDone,
			SessionID: ap.sessionID,
			Content:   p.LastAssistantContent,
		})
		return
	}

	st.AddCost(p.CostUSD)
	verdict := o.judge.Judge(continuation.Input{
		FinalContent: p.LastAssistantContent,
		Todos:        p.Todos,
	})

	if verdict.Complete {
		o.finishUntilDone(ctx, ap, st, verdict.Reason)
		return
	}
	if !st.Advance() {
		o.finishUntilDone(ctx, ap, st, continuation.MaxIterationsReason)
		return
	}

	o.logger.Info("continuing session", "session", ap.sessionID,
		"iteration", st.Iteration, "max", st.MaxIterations, "reason", verdict.Reason)
	o.logEvent(ctx, string(protocol.EventUntilDoneContinue), ap.sessionID,
		fmt.Sprintf("iteration %d/%d: %s", st.Iteration, st.MaxIterations, verdict.Reason))
	o.sendToSession(ap.sessionID, protocol.Event{
		Type:          protocol.EventUntilDoneContinue,
		SessionID:     ap.sessionID,
		Iteration:     st.Iteration,
		MaxIterations: st.MaxIterations,
		Reason:        verdict.Reason,
	})

	// Tear down this turn's bookkeeping now; the old subprocess is about to
	// exit and its late Exit callback must not race the respawn. The client
	// binding moves to contConn so a disconnect or attach landing inside the
	// delay window still takes effect.
	o.mu.Lock()
	o.contConn[ap.sessionID] = ap.conn
	if o.procs[ap.sessionID] == ap {
		delete(o.procs, ap.sessionID)
	}
	o.mu.Unlock()

	time.AfterFunc(o.cfg.ContinueDelay, func() {
		o.continueTurn(context.Background(), ap.sessionID)
	})
}

// continueTurn re-invokes a session with the fixed continuation prompt,
// carrying the resume token forward.
func (o *Orchestrator) continueTurn(ctx context.Context, sessionID string) {
	o.mu.Lock()
	_, stillWanted := o.cont[sessionID]
	_, alreadyRunning := o.procs[sessionID]
	conn := o.contConn[sessionID]
	delete(o.contConn, sessionID)
	o.mu.Unlock()
	if !stillWanted || alreadyRunning {
		// Cancelled (or re-queried) during the delay.
		return
	}

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		o.logger.Error("continuation lookup failed", "session", sessionID, "err", err)
		return
	}
	o.startTurn(ctx, sess, turnParams{
		prompt: continuation.Prompt,
		conn:   conn,
	})
}

// finishUntilDone emits the terminal until_done notification and clears the
// loop state.
func (o *Orchestrator) finishUntilDone(ctx context.Context, ap *activeProcess, st *continuation.State, reason string) {
	o.mu.Lock()
	delete(o.cont, ap.sessionID)
	o.mu.Unlock()

	o.setStatus(ctx, ap.sessionID, protocol.StatusWaiting)
	o.logEvent(ctx, string(protocol.EventUntilDoneComplete), ap.sessionID,
		fmt.Sprintf("%d iteration(s), $%.4f: %s", st.Iteration, st.AccumulatedCost, reason))
	o.sendToSession(ap.sessionID, protocol.Event{
		Type:          protocol.EventUntilDoneComplete,
		SessionID:     ap.sessionID,
		Iteration:     st.Iteration,
		MaxIterations: st.MaxIterations,
		TotalCostUSD:  st.AccumulatedCost,
		Reason:        reason,
	})
}
