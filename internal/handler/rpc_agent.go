package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"tandem/internal/agent"
	"tandem/internal/config"
	"tandem/internal/confirm"
	"tandem/internal/domain"
	"tandem/internal/domain/models"
)

// defaultMessagesLimit is the get_messages page size when the caller
// omits one.
const defaultMessagesLimit = 100

// maxRequestIDLength bounds client-supplied request IDs. They are
// opaque to the server but end up in logs and event payloads.
const maxRequestIDLength = 128

type sendParams struct {
	Content   string `json:"content"`
	RequestID string `json:"request_id"`
}

func (p sendParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Content, validation.Required, validation.Length(1, config.MaxSendContentBytes)),
		validation.Field(&p.RequestID, validation.Length(0, maxRequestIDLength)),
	)
}

// send runs a full turn. The call blocks until the turn reaches its
// terminal; progress streams over SSE in the meantime.
func (h *RPCHandler) send(r *http.Request, inst *agent.Instance, raw json.RawMessage) (any, error) {
	var p sendParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	res, err := h.coord.RunTurn(r.Context(), inst.ID, p.Content, p.RequestID)
	if err != nil {
		if errors.Is(err, domain.ErrTurnCancelled) {
			return nil, &rpcError{
				Code:    codeTurnCancelled,
				Message: "turn cancelled",
				Data:    map[string]any{"request_id": res.RequestID},
			}
		}
		return nil, err
	}
	return map[string]any{
		"request_id": res.RequestID,
		"content":    res.Content,
		"halted":     res.Halted,
	}, nil
}

type cancelParams struct {
	RequestID string `json:"request_id"`
}

func (p cancelParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.RequestID, validation.Required, validation.Length(1, maxRequestIDLength)),
	)
}

func (h *RPCHandler) cancel(r *http.Request, inst *agent.Instance, raw json.RawMessage) (any, error) {
	var p cancelParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	res := h.coord.Cancel(inst.ID, p.RequestID)
	out := map[string]any{
		"cancelled":  res.Cancelled,
		"request_id": res.RequestID,
	}
	if res.Reason != "" {
		out["reason"] = res.Reason
	}
	return out, nil
}

type confirmParams struct {
	ConfirmID string `json:"confirm_id"`
	Decision  string `json:"decision"`
}

func (p confirmParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ConfirmID, validation.Required),
		validation.Field(&p.Decision, validation.Required),
	)
}

func (h *RPCHandler) confirm(r *http.Request, inst *agent.Instance, raw json.RawMessage) (any, error) {
	var p confirmParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	accepted, err := h.broker.Submit(p.ConfirmID, confirm.Decision(p.Decision))
	if err != nil {
		return nil, err
	}
	return map[string]any{"accepted": accepted}, nil
}

type getMessagesParams struct {
	Offset *int `json:"offset"`
	Limit  *int `json:"limit"`
}

type messagesResult struct {
	AgentID  string           `json:"agent_id"`
	Total    int              `json:"total"`
	Offset   int              `json:"offset"`
	Limit    int              `json:"limit"`
	Messages []models.Message `json:"messages"`
}

func (h *RPCHandler) getMessages(r *http.Request, inst *agent.Instance, raw json.RawMessage) (any, error) {
	var p getMessagesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	offset, limit := 0, defaultMessagesLimit
	if p.Offset != nil {
		offset = *p.Offset
	}
	if p.Limit != nil {
		limit = *p.Limit
	}
	page, err := h.coord.GetMessages(r.Context(), inst.ID, offset, limit)
	if err != nil {
		return nil, err
	}
	msgs := page.Messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	return messagesResult{
		AgentID:  page.AgentID,
		Total:    page.Total,
		Offset:   page.Offset,
		Limit:    page.Limit,
		Messages: msgs,
	}, nil
}
