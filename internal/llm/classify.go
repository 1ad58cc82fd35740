package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"contractforge/internal/apperr"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Classify maps an error from any backend to a Kind. The typed fields each
// SDK exposes are consulted first; the message is only inspected for
// errors that carry no status at all.
func Classify(err error) apperr.Kind {
	if err == nil {
		return apperr.KindOther
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Kind
	}

	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return classifyStatus(gErr.Code, gErr.Status, gErr.Message)
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil {
		return classifyStatus(gErrPtr.Code, gErrPtr.Status, gErrPtr.Message)
	}

	var oErr *openai.APIError
	if errors.As(err, &oErr) {
		return classifyStatus(oErr.HTTPStatusCode, fmt.Sprint(oErr.Code)+" "+oErr.Type, oErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, reqErr.HTTPStatus, string(reqErr.Body))
	}

	return classifyStatus(0, "", err.Error())
}

func classifyStatus(code int, status, message string) apperr.Kind {
	lowerMsg := strings.ToLower(message)
	quota := strings.Contains(lowerMsg, "quota") || strings.Contains(strings.ToLower(status), "quota")

	switch {
	case strings.Contains(status, "RESOURCE_EXHAUSTED"), quota:
		return apperr.KindQuotaExceeded
	case code == http.StatusTooManyRequests:
		return apperr.KindRateLimited
	case code != 0:
		return apperr.KindOther
	}

	// Untyped error: fall back to the message.
	switch {
	case strings.Contains(message, "RESOURCE_EXHAUSTED"):
		return apperr.KindQuotaExceeded
	case strings.Contains(message, "429"):
		return apperr.KindRateLimited
	}
	return apperr.KindOther
}
