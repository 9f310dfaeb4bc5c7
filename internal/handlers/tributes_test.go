package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eternalmemory/eternal/internal/handlers/testutil"
	"github.com/eternalmemory/eternal/internal/models"
)

func TestTributeHandler_LightCandle(t *testing.T) {
	env := testutil.NewEnv(t)
	_, owner := env.UserToken(models.RoleUser)
	memorial := env.PublishMemorial(owner, "Candle Person")

	w := env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/candles", map[string]string{
		"guestName": "邻居",
		"message":   "愿您安息",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/candles", map[string]string{}, owner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var payload struct {
		Candle        models.Candle `json:"candle"`
		ActiveCandles int64         `json:"activeCandles"`
	}
	testutil.DecodeInto(t, w, &payload)
	require.EqualValues(t, 2, payload.ActiveCandles)
	require.True(t, payload.Candle.ExpiresAt.After(payload.Candle.CreatedAt))

	w = env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/candles", map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, "anonymous candles need a name")
}

func TestTributeHandler_ToggleLike(t *testing.T) {
	env := testutil.NewEnv(t)
	_, owner := env.UserToken(models.RoleUser)
	_, visitor := env.UserToken(models.RoleUser)
	memorial := env.PublishMemorial(owner, "Liked Person")

	var payload struct {
		Liked     bool  `json:"liked"`
		LikeCount int64 `json:"likeCount"`
	}

	w := env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/like", nil, visitor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, w, &payload)
	require.True(t, payload.Liked)
	require.EqualValues(t, 1, payload.LikeCount)

	w = env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/like", nil, visitor)
	testutil.DecodeInto(t, w, &payload)
	require.False(t, payload.Liked)
	require.EqualValues(t, 0, payload.LikeCount)

	w = env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/like", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
