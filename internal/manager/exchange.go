package manager

import (
	"context"
	"errors"
	"time"

	"github.com/strandhealth/podctl/internal/conversation"
	"github.com/strandhealth/podctl/internal/message"
	"github.com/strandhealth/podctl/internal/pod"
	"github.com/strandhealth/podctl/internal/poderr"
)

// performExchange is the core exchange primitive: one
// initialize -> send -> receive -> parse cycle, with the single
// nonce-resync retry folded in, and guaranteed persistence of exactly one
// ExchangeResult regardless of outcome.
func (m *Manager) performExchange(
	ctx context.Context,
	conv *conversation.Conversation,
	req message.Request,
	params message.ExchangeParameters,
	progress *conversation.ExchangeProgress,
) (bool, error) {
	if progress == nil {
		progress = conv.NewExchange(req)
	}

	progress.RequestTime = time.Now().UTC()
	progress.Running = true

	var finalErr error
	success := m.runExchangeAttempts(ctx, req, params, progress)
	if !progress.Success {
		finalErr = progress.Exception
	}

	progress.ResultTime = time.Now().UTC()
	progress.Running = false

	result := pod.ExchangeResult{
		RequestTime: progress.RequestTime,
		ResultTime:  progress.ResultTime,
		Success:     progress.Success,
		Exception:   progress.Exception,
	}
	if schedule, ok := progress.Attachment.([]float64); ok {
		result.BasalSchedule = schedule
	} else if attachment, ok := progress.Attachment.(ScheduleAttachment); ok {
		result.BasalSchedule = attachment.BasalSchedule
	}

	if saveErr := m.repo.Save(ctx, m.state, result); saveErr != nil {
		m.logger.Error("failed to persist exchange result",
			"pod", podID(m.state), "opcode", req.Opcode.String(), "error", saveErr)
		if finalErr == nil {
			finalErr = poderr.Wrap(poderr.KindInternalError, saveErr, "failed to persist exchange result")
		}
	}

	outcome := "success"
	if !progress.Success {
		outcome = "failure"
	}
	m.metrics.RecordExchange(ctx, req.Opcode.String(), outcome, progress.ResultTime.Sub(progress.RequestTime).Seconds()*1000)

	return success, finalErr
}

// ScheduleAttachment is the ExchangeProgress.Attachment shape used by
// InjectAndStart and SetBasalSchedule to carry the basal schedule and pod
// date being installed alongside the raw exchange outcome.
type ScheduleAttachment struct {
	BasalSchedule []float64
	PodDate       message.PodDate
	UTCOffset     time.Duration
}

// runExchangeAttempts drives the initialize/send/receive/parse cycle and
// the single nonce-resync retry. It never returns an error directly;
// failures are captured onto progress rather than returned directly.
func (m *Manager) runExchangeAttempts(
	ctx context.Context,
	req message.Request,
	params message.ExchangeParameters,
	progress *conversation.ExchangeProgress,
) bool {
	resp, err := m.attemptOnce(ctx, req, params, progress)
	if err != nil {
		progress.Success = false
		progress.Exception = err
		return false
	}

	if hint := m.state.RuntimeVariables.NonceSync; hint != nil {
		m.nonceGen.Resync(*hint)
		m.metrics.RecordNonceResync(ctx)

		retryParams := params
		seqOverride := message.NextSequenceAfterReject(resp.Sequence)
		retryParams.MessageSequenceOverride = &seqOverride

		_, retryErr := m.attemptOnce(ctx, req, retryParams, progress)
		if retryErr != nil {
			progress.Success = false
			progress.Exception = retryErr
			return false
		}

		if m.state.RuntimeVariables.NonceSync != nil {
			err := poderr.New(poderr.KindPodResponseUnexpected, "Nonce re-negotiation failed")
			progress.Success = false
			progress.Exception = err
			return false
		}
	}

	progress.Success = true
	progress.Exception = nil
	return true
}

// attemptOnce performs one initialize -> send -> receive -> parse cycle
// against a freshly obtained exchange.
func (m *Manager) attemptOnce(
	ctx context.Context,
	req message.Request,
	params message.ExchangeParameters,
	progress *conversation.ExchangeProgress,
) (message.Response, error) {
	ex, err := m.provider.GetMessageExchange(ctx, params, m.state)
	if err != nil {
		return message.Response{}, poderr.Wrap(poderr.KindRadioGeneric, err, "failed to obtain message exchange")
	}

	if err := ex.InitializeExchange(ctx, progress); err != nil {
		return message.Response{}, poderr.Wrap(poderr.KindRadioGeneric, err, "failed to initialize exchange")
	}

	resp, err := ex.GetResponse(ctx, req, progress)
	if err != nil {
		var pe *poderr.Error
		if errors.As(err, &pe) {
			return message.Response{}, err
		}
		return message.Response{}, poderr.Wrap(poderr.KindRadioRecvTimeout, err, "failed to receive response")
	}

	if err := ex.ParseResponse(ctx, resp, m.state, progress); err != nil {
		return message.Response{}, poderr.Wrap(poderr.KindPodResponseUnexpected, err, "failed to parse response")
	}

	return resp, nil
}

// updateStatusInternal builds a status(type) request with the standard
// parameters and performs the exchange, returning success. Callers use
// this both to gate preconditions and to advance polling loops.
func (m *Manager) updateStatusInternal(ctx context.Context, conv *conversation.Conversation, statusType pod.StatusRequestType) (bool, error) {
	req := message.Status(int(statusType))
	params := m.GetStandardParameters()
	return m.performExchange(ctx, conv, req, params, nil)
}
