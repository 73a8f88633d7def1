// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package users

import (
	"encoding/json"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
)

// SchemaVersion is the record layout written by this build.
const SchemaVersion = "1.0.0"

// legacyHashScheme is the hash scheme implied by unversioned records.
const legacyHashScheme = "sha256"

var (
	currentSchema = semver.MustParse(SchemaVersion)
	legacySchema  = semver.MustParse("0.0.0")
	firstTyped    = semver.MustParse("1.0.0")
)

type envelope struct {
	SchemaVersion string `json:"schemaVersion"`
	*Record
}

type versionProbe struct {
	SchemaVersion string `json:"schemaVersion"`
}

// legacyRecord is the untyped blob written before records were versioned.
// Timestamps are epoch milliseconds and the public id lived under userUUID.
type legacyRecord struct {
	ID          string `json:"id"`
	UserUUID    string `json:"userUUID"`
	Username    string `json:"username"`
	Salt        string `json:"salt"`
	PassHash    string `json:"passHash"`
	Role        Role   `json:"role"`
	Plan        Plan   `json:"plan"`
	CreatedAt   int64  `json:"createdAt"`
	ActivatedAt *int64 `json:"activatedAt"`
}

// Encode serializes r at the current schema version.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, oops.Code("USER_ENCODE_FAILED").Errorf("record is nil")
	}
	data, err := json.Marshal(envelope{SchemaVersion: SchemaVersion, Record: r})
	if err != nil {
		return nil, oops.Code("USER_ENCODE_FAILED").With("username", r.Username).Wrap(err)
	}
	return data, nil
}

// Decode parses a stored blob of any supported schema version into a Record.
// The feature table is always derived from the plan.
func Decode(data []byte) (*Record, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, oops.Code("USER_DECODE_FAILED").Wrap(err)
	}

	version := legacySchema
	if probe.SchemaVersion != "" {
		v, err := semver.NewVersion(probe.SchemaVersion)
		if err != nil {
			return nil, oops.Code("USER_DECODE_FAILED").
				With("schema_version", probe.SchemaVersion).
				Wrap(err)
		}
		version = v
	}

	if version.GreaterThan(currentSchema) {
		return nil, oops.Code("USER_SCHEMA_UNSUPPORTED").
			With("schema_version", version.String()).
			With("supported", SchemaVersion).
			Errorf("record schema is newer than this build")
	}

	var (
		rec *Record
		err error
	)
	if version.LessThan(firstTyped) {
		rec, err = decodeLegacy(data)
	} else {
		rec = &Record{}
		if uerr := json.Unmarshal(data, &envelope{Record: rec}); uerr != nil {
			err = oops.Code("USER_DECODE_FAILED").With("schema_version", version.String()).Wrap(uerr)
		}
	}
	if err != nil {
		return nil, err
	}

	if !rec.Plan.Valid() {
		rec.Plan = PlanFree
	}
	if rec.Role == "" {
		rec.Role = RoleUser
	}
	rec.Features = rec.Plan.Features()
	return rec, nil
}

func decodeLegacy(data []byte) (*Record, error) {
	var old legacyRecord
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, oops.Code("USER_DECODE_FAILED").With("schema_version", legacySchema.String()).Wrap(err)
	}

	rec := &Record{
		ID:           old.ID,
		PublicID:     old.UserUUID,
		Username:     NormalizeUsername(old.Username),
		Salt:         old.Salt,
		PasswordHash: old.PassHash,
		HashScheme:   legacyHashScheme,
		Role:         old.Role,
		Plan:         old.Plan,
		CreatedAt:    time.UnixMilli(old.CreatedAt).UTC(),
	}
	if old.ActivatedAt != nil {
		at := time.UnixMilli(*old.ActivatedAt).UTC()
		rec.ActivatedAt = &at
	}
	return rec, nil
}
