package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

const (
	errorKindInvalidInput  = "invalid_input"
	errorKindTemporary     = "temporary"
	errorKindConfiguration = "configuration"
	errorKindInternal      = "internal"
)

type replyEnvelope struct {
	Result *domain.RetrievalResult `json:"result,omitempty"`
	Error  *replyError             `json:"error,omitempty"`
}

type replyError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func encodeRequest(req domain.RetrievalRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal retrieval request: %w", err)
	}
	return payload, nil
}

// handleRequest never fails: every outcome, including a malformed payload,
// becomes a reply envelope.
func handleRequest(ctx context.Context, data []byte, retrieve RetrieveFunc, logger *slog.Logger) []byte {
	var req domain.RetrievalRequest
	var envelope replyEnvelope
	if err := json.Unmarshal(data, &req); err != nil {
		envelope.Error = &replyError{Kind: errorKindInvalidInput, Message: "malformed retrieval request"}
	} else {
		result, err := retrieve(ctx, req)
		if err == nil {
			err = result.OutageError("nats retrieve")
		}
		if err != nil {
			logger.Warn("nats_retrieval_failed", "error", err)
			envelope.Error = &replyError{Kind: errorKind(err), Message: err.Error()}
		} else {
			envelope.Result = result
		}
	}

	out, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("nats_reply_encode_failed", "error", err)
		out, _ = json.Marshal(replyEnvelope{Error: &replyError{Kind: errorKindInternal, Message: "encode reply"}})
	}
	return out
}

func decodeReply(data []byte) (*domain.RetrievalResult, error) {
	var envelope replyEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode retrieval reply: %w", err)
	}
	if envelope.Error != nil {
		return nil, domain.WrapError(kindError(envelope.Error.Kind), "remote retrieve", errors.New(envelope.Error.Message))
	}
	if envelope.Result == nil {
		return nil, fmt.Errorf("decode retrieval reply: empty result")
	}
	return envelope.Result, nil
}

func errorKind(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return errorKindInvalidInput
	case domain.IsKind(err, domain.ErrTemporary):
		return errorKindTemporary
	case domain.IsKind(err, domain.ErrConfiguration):
		return errorKindConfiguration
	default:
		return errorKindInternal
	}
}

func kindError(kind string) error {
	switch kind {
	case errorKindInvalidInput:
		return domain.ErrInvalidInput
	case errorKindTemporary:
		return domain.ErrTemporary
	case errorKindConfiguration:
		return domain.ErrConfiguration
	default:
		return errors.New("remote retrieval failed")
	}
}
