package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_AppendRequiresTypeAndObject(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	assert.ErrorIs(t, svc.Append(context.Background(), Event{Type: EventTypeRestored}), ErrInvalidEvent)
	assert.ErrorIs(t, svc.Append(context.Background(), Event{ObjectID: "x"}), ErrInvalidEvent)
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, Event{
		Type:        EventTypeOwnershipTransferred,
		ActorUserID: "u1",
		ObjectKind:  "script",
		ObjectID:    "s1",
		Metadata:    Meta(map[string]string{"to": "u2"}),
	}))
	svc.Log(ctx, Event{Type: EventTypeDeactivated, ObjectKind: "prompt", ObjectID: "p1"})
	svc.Log(ctx, Event{Type: EventTypeDeactivated}) // invalid, dropped

	evs := repo.Events()
	require.Len(t, evs, 2)
	assert.NotEmpty(t, evs[0].ID)
	assert.False(t, evs[0].CreatedAt.IsZero())
	assert.JSONEq(t, `{"to":"u2"}`, evs[0].Metadata)

	hist, err := svc.History(ctx, "script", "s1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, EventTypeOwnershipTransferred, hist[0].Type)
}

func TestService_NilIsSilent(t *testing.T) {
	var svc *Service
	svc.Log(context.Background(), Event{Type: EventTypeRestored, ObjectID: "x"})
}
