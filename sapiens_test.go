package sapiens

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mason-sapiens/sapiens-mvp/core"
	"github.com/mason-sapiens/sapiens-mvp/model"
)

func TestFacadeChat(t *testing.T) {
	s := New(model.NewMock())

	reply, err := s.Chat(context.Background(), "user-1", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.ResponseText)
	assert.Equal(t, core.PhaseOnboarding, reply.CurrentState)

	state, err := s.State(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", state.UserID)
}

func TestFacadeStrictUsers(t *testing.T) {
	s := New(model.NewMock(), func(o *Options) {
		o.StrictUsers = true
	})

	_, err := s.Chat(context.Background(), "nobody", "hello")
	assert.ErrorIs(t, err, core.ErrUnknownUser)
}
