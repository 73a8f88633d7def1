// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package users

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/samber/oops"
)

// PublicIDLength is the number of decimal digits in a public id.
const PublicIDLength = 8

var publicIDSpace = big.NewInt(100_000_000)

// NewPublicID returns a uniformly random zero-padded 8-digit identifier.
// Public ids are display values and are not unique-checked.
func NewPublicID() (string, error) {
	return newPublicID(rand.Reader)
}

func newPublicID(r io.Reader) (string, error) {
	n, err := rand.Int(r, publicIDSpace)
	if err != nil {
		return "", oops.Code("USER_PUBLIC_ID_FAILED").Wrap(err)
	}
	digits := n.String()
	for len(digits) < PublicIDLength {
		digits = "0" + digits
	}
	return digits, nil
}
