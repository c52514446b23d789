/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package backend

import (
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

func simulationLabelsSession(t *testing.T) {
	sim := NewSimulation()
	assert.Equal(t, "simulation", sim.Name())

	session, err := sim.Open()
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("simulation (platform: %s)", runtime.GOOS), session.String())
}

func simulationIDsAreMonotonic(t *testing.T) {
	sim := NewSimulation()
	first, err := sim.Open()
	require.NoError(t, err)

	unit := compiler.Unit{Layer: compiler.LayerOutboundIPPacketV4}
	for want := rule.FilterID(1); want <= 3; want++ {
		id, err := first.Submit(unit)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	second, err := sim.Open()
	require.NoError(t, err)
	id, err := second.Submit(unit)
	require.NoError(t, err)
	assert.Equal(t, rule.FilterID(4), id, "ids continue across sessions")
}

func simulationDeletesTrackedOnly(t *testing.T) {
	session, err := NewSimulation().Open()
	require.NoError(t, err)

	unit := compiler.Unit{Layer: compiler.LayerInboundIPPacketV4, Name: "x"}
	id, err := session.Submit(unit)
	require.NoError(t, err)

	sim := session.(*SimulationSession)
	got, ok := sim.Unit(id)
	assert.True(t, ok)
	assert.Equal(t, "x", got.Name)
	assert.Equal(t, []rule.FilterID{id}, sim.IDs())

	assert.NoError(t, session.Delete(id))
	assert.ErrorIs(t, session.Delete(id), ErrDelete)
	assert.ErrorIs(t, session.Delete(999), ErrDelete)
	assert.Empty(t, sim.IDs())
}

func simulationRejectsSubmitAfterClose(t *testing.T) {
	session, err := NewSimulation().Open()
	require.NoError(t, err)
	require.NoError(t, session.Close())

	_, err = session.Submit(compiler.Unit{})
	assert.Equal(t, ReasonInvalidParameter, ReasonOf(err))
}

func TestSimulation(t *testing.T) {
	t.Run("backend.Simulation labels session", simulationLabelsSession)
	t.Run("backend.Simulation ids are monotonic", simulationIDsAreMonotonic)
	t.Run("backend.Simulation deletes tracked ids only", simulationDeletesTrackedOnly)
	t.Run("backend.Simulation rejects submit after close", simulationRejectsSubmitAfterClose)
}

func TestSubmitError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &SubmitError{Reason: ReasonAccessDenied, Err: cause})

	assert.Equal(t, ReasonAccessDenied, ReasonOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "administrator privileges required")

	assert.Equal(t, ReasonUnknown, ReasonOf(cause))
	assert.Equal(t, ReasonNotSupported, ReasonOf(fmt.Errorf("x: %w", compiler.ErrNotSupported)))

	reasons := map[Reason]string{
		ReasonUnknown:          "unknown",
		ReasonAccessDenied:     "access_denied",
		ReasonInvalidParameter: "invalid_parameter",
		ReasonNotSupported:     "not_supported",
		ReasonAlreadyExists:    "already_exists",
		ReasonNotFound:         "not_found",
	}
	for reason, name := range reasons {
		assert.Equal(t, name, reason.String())
		assert.NotEmpty(t, reason.Message())
	}

	assert.Equal(t, "failed to submit filter: filter already exists",
		(&SubmitError{Reason: ReasonAlreadyExists}).Error())
}
