package ws

import (
	"context"
	"encoding/json"
	"time"

	"bountyexpo/internal/apperr"
	"bountyexpo/internal/lifecycle"
	"bountyexpo/internal/model"
	"bountyexpo/internal/service"

	"go.uber.org/zap"
)

const commandTimeout = 60 * time.Second

// CommandHandler runs lifecycle operations sent over the socket
type CommandHandler struct {
	bounties   *service.BountyService
	requests   *service.RequestService
	completion *service.CompletionService
	log        *zap.Logger
}

func NewCommandHandler(bounties *service.BountyService, requests *service.RequestService, completion *service.CompletionService, log *zap.Logger) *CommandHandler {
	return &CommandHandler{
		bounties:   bounties,
		requests:   requests,
		completion: completion,
		log:        log,
	}
}

// HandleCommand processes a WebSocket command
func (h *CommandHandler) HandleCommand(ctx context.Context, conn *Conn, cmd map[string]interface{}) {
	op, _ := cmd["op"].(string)
	data, _ := cmd["data"].(map[string]interface{})
	msgID, _ := cmd["id"].(string)
	if data == nil {
		data = map[string]interface{}{}
	}

	if conn.userID == "" && op != "getBounty" {
		h.sendError(conn, msgID, "unauthenticated", "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var (
		result interface{}
		err    error
	)
	switch op {
	case "getBounty":
		result, err = h.bounties.Get(ctx, str(data, "bountyId"))
	case "apply":
		var req *model.BountyRequest
		req, _, err = h.requests.Apply(ctx, str(data, "bountyId"), conn.userID, str(data, "message"))
		result = req
	case "accept":
		result, err = h.requests.Accept(ctx, str(data, "requestId"), conn.userID, str(data, "idempotencyKey"))
	case "decline":
		result, err = h.requests.Decline(ctx, str(data, "requestId"), conn.userID)
	case "submit":
		result, err = h.handleSubmit(ctx, conn, data)
	case "approve":
		var feedback *string
		if f, ok := data["feedback"].(string); ok {
			feedback = &f
		}
		result, err = h.completion.Approve(ctx, str(data, "submissionId"), conn.userID, feedback, str(data, "idempotencyKey"))
	case "reject":
		result, err = h.completion.Reject(ctx, str(data, "submissionId"), conn.userID, str(data, "reason"), str(data, "idempotencyKey"))
	case "requestRevision":
		result, err = h.completion.RequestRevision(ctx, str(data, "submissionId"), conn.userID, str(data, "feedback"))
	case "cancel", "archive":
		result, err = h.bounties.Transition(ctx, str(data, "bountyId"), conn.userID, lifecycle.Transition(op), str(data, "idempotencyKey"))
	default:
		h.sendError(conn, msgID, "unknown_command", "Unknown command: "+op)
		return
	}

	if err != nil {
		_, code := apperr.HTTPStatus(err)
		if apperr.KindOf(err) == apperr.KindInternal || apperr.KindOf(err) == apperr.KindFatal {
			h.log.Error("Command failed", zap.String("op", op), zap.String("user_id", conn.userID), zap.Error(err))
		}
		h.sendError(conn, msgID, code, apperr.Message(err))
		return
	}

	h.sendResponse(conn, msgID, map[string]interface{}{
		"type": "response",
		"op":   op,
		"data": result,
	})
}

func (h *CommandHandler) handleSubmit(ctx context.Context, conn *Conn, data map[string]interface{}) (*model.CompletionSubmission, error) {
	input := service.SubmitInput{
		BountyID: str(data, "bountyId"),
		HunterID: conn.userID,
		Message:  str(data, "message"),
	}
	if raw, ok := data["proofItems"]; ok {
		b, err := json.Marshal(raw)
		if err == nil {
			err = json.Unmarshal(b, &input.ProofItems)
		}
		if err != nil {
			return nil, apperr.Validationf("submission.submit", "proofItems must be a list of proof objects")
		}
	}
	sub, _, err := h.completion.Submit(ctx, input)
	return sub, err
}

func str(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func (h *CommandHandler) sendResponse(conn *Conn, msgID string, response map[string]interface{}) {
	if msgID != "" {
		response["id"] = msgID
	}
	if !conn.sendJSON(response) {
		h.log.Warn("Failed to send response, channel full")
	}
}

func (h *CommandHandler) sendError(conn *Conn, msgID, code, message string) {
	err := map[string]interface{}{
		"type":    "error",
		"code":    code,
		"message": message,
	}
	if msgID != "" {
		err["id"] = msgID
	}
	if !conn.sendJSON(err) {
		h.log.Warn("Failed to send error, channel full")
	}
}
