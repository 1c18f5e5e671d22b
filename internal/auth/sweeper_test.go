// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/memory"
	"github.com/holomush/gatekeeper/internal/auth/mocks"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

func TestRunSweeper_InvalidInterval(t *testing.T) {
	users, err := auth.NewUsers(memory.NewCredentialStore(), auth.WithHasher(newTestHasher(t)))
	require.NoError(t, err)

	err = users.RunSweeper(context.Background(), 0)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_SWEEP_INTERVAL")
}

func TestRunSweeper_SurvivesFailuresAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	sessions := mocks.NewMockSessionStore(t)
	recorder := &fakeRecorder{}
	users, err := auth.NewUsersWithSessions(memory.NewCredentialStore(), sessions,
		auth.WithHasher(newTestHasher(t)), auth.WithRecorder(recorder))
	require.NoError(t, err)

	sessions.On("ClearExpired", mock.Anything).Return(errors.New("connection reset")).Once()
	sessions.On("ClearExpired", mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- users.RunSweeper(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		return len(recorder.Sweeps()) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}

	sweeps := recorder.Sweeps()
	assert.Equal(t, auth.OutcomeBackendError, sweeps[0])
	assert.Equal(t, auth.OutcomeSuccess, sweeps[1])
}
