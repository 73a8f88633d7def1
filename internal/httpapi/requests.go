// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/portico/portico/internal/captcha"
)

// maxBodyBytes caps request bodies. Every payload here is a handful of
// short strings.
const maxBodyBytes = 16 << 10

type registerRequest struct {
	Username    string         `json:"username"`
	Password    string         `json:"password"`
	Answer      string         `json:"answer"`
	DisplayText string         `json:"displayText"`
	IssuedAt    captcha.Millis `json:"issuedAt"`
	Signature   string         `json:"signature"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Answer, validation.Required),
		validation.Field(&r.DisplayText, validation.Required),
		validation.Field(&r.IssuedAt, validation.Required),
		validation.Field(&r.Signature, validation.Required),
	)
}

func (r registerRequest) challenge() captcha.Challenge {
	return captcha.Challenge{
		DisplayText: r.DisplayText,
		IssuedAt:    r.IssuedAt,
		Signature:   r.Signature,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r credentialsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 256)),
	)
}

type activateRequest struct {
	ActivationCode string `json:"activationCode"`
}

func (r activateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ActivationCode, validation.Required),
	)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(1, 256)),
	)
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst validation.Validatable) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required", nil)
		}
		return badRequest("malformed request body", err)
	}
	if err := dst.Validate(); err != nil {
		return badRequest(err.Error(), err)
	}
	return nil
}
