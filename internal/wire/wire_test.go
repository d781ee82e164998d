package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/sketchduel/internal/model"
)

var testNow = time.UnixMilli(1700000000123)

func TestEncodeRequest_Frame(t *testing.T) {
	env, err := EncodeRequest("req-1", JoinRoom{RoomCode: "ABC123", PlayerName: "ana", Rejoin: true, IsHost: true}, testNow)
	require.NoError(t, err)

	frame, err := Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"join-room","id":"req-1","ts":1700000000123,"data":{"roomCode":"ABC123","playerName":"ana","rejoin":true,"isHost":true}}`,
		string(frame))
}

func TestDecodeRequest(t *testing.T) {
	tests := []Request{
		CreateRoom{PlayerName: "ana"},
		JoinRoom{RoomCode: "ABC123", PlayerName: "bo"},
		StartVoting{},
		VoteWord{Word: "cat"},
		SubmitDrawing{Image: "data:image/png;base64,AAAA"},
		DrawingProgress{Seq: 3, Points: []Point{{X: 1, Y: 2}}},
		FinishDrawing{},
		PlayAgain{},
		TiebreakerAnimationComplete{DisplayedWinner: "dog"},
	}
	for _, req := range tests {
		t.Run(req.RequestType(), func(t *testing.T) {
			env, err := EncodeRequest("id", req, testNow)
			require.NoError(t, err)

			frame, err := Marshal(env)
			require.NoError(t, err)
			back, err := Unmarshal(frame)
			require.NoError(t, err)

			got, err := DecodeRequest(back)
			require.NoError(t, err)
			if diff := cmp.Diff(req, got); diff != "" {
				t.Errorf("request mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeEvent_RoomJoined(t *testing.T) {
	frame := []byte(`{"type":"room-joined","id":"req-7","ts":1,"data":{
		"roomCode":"ABC123","playerId":"p2","isHost":false,"phase":"voting",
		"players":[{"id":"p1","name":"ana","isHost":true,"connected":true},
		           {"id":"p2","name":"bo","connected":true}],
		"wordOptions":["cat","dog","sun"],"votes":{"cat":1}}}`)

	env, err := Unmarshal(frame)
	require.NoError(t, err)
	assert.Equal(t, "req-7", env.ID)

	ev, err := DecodeEvent(env)
	require.NoError(t, err)

	joined, ok := ev.(RoomJoined)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "ABC123", joined.RoomCode)
	assert.Equal(t, model.PhaseVoting, joined.Phase)
	assert.Len(t, joined.Players, 2)
	assert.True(t, joined.Players[0].IsHost)
	assert.Equal(t, map[string]int{"cat": 1}, joined.Votes)
}

func TestDecodeEvent_EmptyData(t *testing.T) {
	ev, err := DecodeEvent(Envelope{Type: TypeDrawingTimeExpired})
	require.NoError(t, err)
	assert.IsType(t, DrawingTimeExpired{}, ev)
}

func TestDecodeEvent_Unknown(t *testing.T) {
	_, err := DecodeEvent(Envelope{Type: "mystery"})
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestDecodeEvent_Compressed(t *testing.T) {
	_, err := DecodeEvent(Envelope{Type: TypeVoteUpdated, Encoding: EncodingGzip, Data: []byte(`"AAAA"`)})
	assert.ErrorIs(t, err, ErrEncoded)
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal([]byte(`not json`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"id":"x"}`))
	assert.Error(t, err, "missing type should fail")
}

func TestBatch_PreservesOrder(t *testing.T) {
	var envs []Envelope
	for i := 0; i < 5; i++ {
		env, err := EncodeRequest("", DrawingProgress{Seq: i}, testNow)
		require.NoError(t, err)
		envs = append(envs, env)
	}

	batch, err := NewBatch("b-1", envs, testNow)
	require.NoError(t, err)
	assert.Equal(t, TypeBatch, batch.Type)

	got, err := SplitBatch(batch)
	require.NoError(t, err)
	if diff := cmp.Diff(envs, got); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitBatch_NotBatch(t *testing.T) {
	_, err := SplitBatch(Envelope{Type: TypeVoteWord})
	assert.ErrorIs(t, err, ErrNotBatch)
}

func TestIsReply(t *testing.T) {
	assert.True(t, IsReply(TypeRoomCreated))
	assert.True(t, IsReply(TypeError))
	assert.False(t, IsReply(TypeVoteUpdated))
}
