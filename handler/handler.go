package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/mlespinoza1/swarm/internal/app"
	"github.com/mlespinoza1/swarm/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"

	errorInvalidInput     = "INVALID_INPUT"
	errorMethodNotAllowed = "METHOD_NOT_ALLOWED"
	errorInternal         = "INTERNAL_ERROR"
)

type Gatherer interface {
	Gather(ctx context.Context, in app.GatherInput) (app.GatherOutput, error)
}

type Handler struct {
	svc Gatherer
}

type gatherRequest struct {
	Requirements   string `json:"requirements"`
	Index          string `json:"index"`
	PreviousOutput string `json:"previousOutput,omitempty"`
}

type gatherResponse struct {
	RunID         string `json:"runId"`
	Code          string `json:"code"`
	BackupCreated bool   `json:"backupCreated"`
	Report        string `json:"report,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	RunID  string `json:"runId,omitempty"`
}

func NewHandler(svc Gatherer) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: gatherer must not be nil")
	}
	return &Handler{svc: svc}, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(event.Headers)
	logger := slog.With("correlation_id", corrID)

	if event.HTTPMethod != "" && event.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, corrID, errorResponse{Error: errorMethodNotAllowed}), nil
	}

	var req gatherRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		logger.Warn("invalid request body", "err", err)
		return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: errorInvalidInput, Reason: "invalid_json"}), nil
	}

	out, err := h.svc.Gather(ctx, app.GatherInput{
		Requirements:   req.Requirements,
		Index:          req.Index,
		PreviousOutput: req.PreviousOutput,
	})
	if err != nil {
		status, body := mapError(err)
		body.RunID = out.RunID
		logger.Error("gather failed", "run_id", out.RunID, "status", status, "err", err)
		return jsonResponse(status, corrID, body), nil
	}

	logger.Info("gather succeeded", "run_id", out.RunID, "backup_created", out.BackupCreated)
	return jsonResponse(http.StatusOK, corrID, gatherResponse{
		RunID:         out.RunID,
		Code:          out.Code,
		BackupCreated: out.BackupCreated,
		Report:        out.Report,
	}), nil
}

func mapError(err error) (int, errorResponse) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return http.StatusInternalServerError, errorResponse{Error: errorInternal}
	}
	body := errorResponse{Error: string(ue.Code), Reason: ue.Reason}
	switch ue.Code {
	case usecase.ErrorMissingInput:
		return http.StatusUnprocessableEntity, body
	case usecase.ErrorUpstream, usecase.ErrorRetryExhausted, usecase.ErrorEmptyOutput:
		return http.StatusBadGateway, body
	default:
		return http.StatusInternalServerError, body
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func jsonResponse(status int, corrID string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"` + errorInternal + `"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(raw),
	}
}
