// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/portico/portico/internal/auth"
	"github.com/portico/portico/internal/entitlement"
	"github.com/portico/portico/pkg/errutil"
)

// Error codes raised by the HTTP layer itself.
const (
	CodeBadRequest      = "HTTP_BAD_REQUEST"
	CodeOriginForbidden = "HTTP_ORIGIN_FORBIDDEN"
)

const msgInternal = "internal server error"

var statusByCode = map[string]int{
	auth.CodeInvalidInput:       http.StatusBadRequest,
	auth.CodeInvalidChallenge:   http.StatusBadRequest,
	entitlement.CodeInvalidCode: http.StatusBadRequest,
	entitlement.CodeNotUpgrade:  http.StatusBadRequest,
	CodeBadRequest:              http.StatusBadRequest,
	auth.CodeUserNotFound:       http.StatusNotFound,
	auth.CodeUnauthorized:       http.StatusUnauthorized,
	auth.CodeUsernameTaken:      http.StatusConflict,
	CodeOriginForbidden:         http.StatusForbidden,
}

// statusFor maps an error to its response status. Uncoded and unknown
// errors are internal.
func statusFor(err error) int {
	if status, ok := statusByCode[errutil.Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// writeError renders err as a JSON failure. Internal errors are logged in
// full and answered with a generic message.
func writeError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	msg := msgInternal
	if status == http.StatusInternalServerError {
		errutil.LogError(ctx, logger, "request failed", err)
	} else {
		msg = oops.GetPublic(err, http.StatusText(status))
		logger.DebugContext(ctx, "request rejected", "status", status, "code", errutil.Code(err))
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func badRequest(public string, err error) error {
	b := oops.Code(CodeBadRequest).Public(public)
	if err == nil {
		return b.Errorf("%s", public)
	}
	// Flattened so a coded decode error cannot override the code.
	return b.Errorf("%s: %v", public, err)
}
