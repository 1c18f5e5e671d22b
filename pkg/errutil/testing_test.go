// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("AUTH_EMAIL_EXISTS").Errorf("email already exists")
	errutil.AssertErrorCode(t, err, "AUTH_EMAIL_EXISTS")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("uuid", "6f1c").Errorf("user does not exist")
	errutil.AssertErrorContext(t, err, "uuid", "6f1c")
}

func TestAssertClassified(t *testing.T) {
	sentinel := errors.New("unauthorized")
	err := oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(sentinel)
	errutil.AssertClassified(t, err, sentinel, "AUTH_INVALID_CREDENTIALS")
}
