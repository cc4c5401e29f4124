package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/hexapost/internal/interaction/domain"
	"github.com/davicafu/hexapost/internal/mocks"
	"github.com/davicafu/hexapost/internal/shared/events"
)

func TestToInteractionRecord(t *testing.T) {
	cases := []struct {
		name    string
		payload events.Payload
		want    domain.InteractionRecord
	}{
		{"post", &events.PostCreatedPayload{PostID: "P1", UserID: "U1", Content: "hola"}, domain.InteractionRecord{PostID: "P1", UserID: "U1"}},
		{"like", &events.LikeAddedPayload{LikeID: "L1", PostID: "P1", UserID: "U2"}, domain.InteractionRecord{PostID: "P1", UserID: "U2"}},
		{"comment", &events.CommentAddedPayload{CommentID: "C1", PostID: "P1", UserID: "U3", Content: "x"}, domain.InteractionRecord{PostID: "P1", UserID: "U3"}},
		{"follow", &events.UserFollowedPayload{FollowerID: "U1", FollowedUserID: "U2"}, domain.InteractionRecord{UserID: "U1", TargetUser: "U2"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := envelope(t, "E-"+tc.name, tc.payload)
			rec, err := ToInteractionRecord(env)
			require.NoError(t, err)

			assert.Equal(t, env.ID, rec.EventID)
			assert.Equal(t, env.Type.String(), rec.EventType)
			assert.Equal(t, tc.want.PostID, rec.PostID)
			assert.Equal(t, tc.want.UserID, rec.UserID)
			assert.Equal(t, tc.want.TargetUser, rec.TargetUser)
		})
	}
}

func TestAnalyticsProjector_Handle(t *testing.T) {
	repo := new(mocks.MockAnalyticsRepo)
	repo.On("LogBatch", mock.Anything, mock.MatchedBy(func(recs []domain.InteractionRecord) bool {
		return len(recs) == 1 && recs[0].EventID == "E1" && recs[0].PostID == "P1"
	})).Return(nil).Once()

	p := NewAnalyticsProjector(repo, zap.NewNop())
	require.NoError(t, p.Handle(context.Background(), likeEnv(t, "E1", "P1")))
	repo.AssertExpectations(t)
}

func TestAnalyticsProjector_Errors(t *testing.T) {
	repo := new(mocks.MockAnalyticsRepo)
	repo.On("LogBatch", mock.Anything, mock.Anything).Return(errors.New("clickhouse down"))
	p := NewAnalyticsProjector(repo, zap.NewNop())

	err := p.Handle(context.Background(), likeEnv(t, "E1", "P1"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, events.ErrDecode)

	bad := likeEnv(t, "E2", "P1")
	bad.Payload = []byte(`[]`)
	assert.ErrorIs(t, p.Handle(context.Background(), bad), events.ErrDecode)
}

func TestAnalyticsProjector_RegistersEveryType(t *testing.T) {
	spy := &groupSpy{}
	require.NoError(t, NewAnalyticsProjector(new(mocks.MockAnalyticsRepo), zap.NewNop()).Register(spy))
	assert.Equal(t, events.Types(), spy.types)
	assert.Equal(t, []string{AnalyticsGroup}, spy.groups())
}
