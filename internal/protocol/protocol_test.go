// internal/protocol/protocol_test.go
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsUnknownEvent(t *testing.T) {
	_, err := Decode("teleport", []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, KindInputValidation, errKind(t, err))
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	body := []byte(`{"name":"arena","game":"rps","maxplayers":2,"color":"red"}`)
	_, err := Decode(EventCreateRoom, body)
	require.Error(t, err)
}

func TestDecodeRunsValidation(t *testing.T) {
	_, err := Decode(EventCreateRoom, []byte(`{"name":"arena","game":"rps","maxplayers":0}`))
	require.Error(t, err)

	msg, err := Decode(EventCreateRoom, []byte(`{"name":"arena","game":"rps","maxplayers":2}`))
	require.NoError(t, err)
	assert.Equal(t, EventCreateRoom, msg.EventName())
}

func errKind(t *testing.T, err error) Kind {
	t.Helper()
	perr, ok := err.(*Error)
	require.True(t, ok, "expected a protocol error, got %T", err)
	return perr.Kind
}

func TestGameUpdateVisibilityExclusivity(t *testing.T) {
	epoch := 1
	board := map[string]interface{}{}

	// Private updates address a player and carry no epoch.
	private := GameUpdate{RoomID: uuid.New(), Visibility: VisibilityPrivate, Board: board, PlayerID: uuid.New()}
	assert.NoError(t, private.Validate())

	private.Epoch = &epoch
	assert.Error(t, private.Validate(), "private update must not carry an epoch")

	private.Epoch = nil
	private.PlayerID = uuid.Nil
	assert.Error(t, private.Validate(), "private update requires a player")

	// Broadcast updates carry an epoch and no player.
	broadcast := GameUpdate{RoomID: uuid.New(), Visibility: VisibilityBroadcast, Board: board, Epoch: &epoch}
	assert.NoError(t, broadcast.Validate())

	broadcast.PlayerID = uuid.New()
	assert.Error(t, broadcast.Validate(), "broadcast update must not carry a player")

	broadcast.PlayerID = uuid.Nil
	broadcast.Epoch = nil
	assert.Error(t, broadcast.Validate(), "broadcast update requires an epoch")

	bad := GameUpdate{RoomID: uuid.New(), Visibility: "everyone", Board: board, Epoch: &epoch}
	assert.Error(t, bad.Validate())
}

func TestFinishScoreBounds(t *testing.T) {
	ok := Finish{Normal: true, Scores: map[string]int{uuid.New().String(): 1, uuid.New().String(): -1}}
	assert.NoError(t, ok.Validate())

	bad := Finish{Normal: true, Scores: map[string]int{uuid.New().String(): 2}}
	assert.Error(t, bad.Validate())
}

func TestEnvelopeAckResolution(t *testing.T) {
	env, err := Wrap(&List{}, 7)
	require.NoError(t, err)
	assert.Equal(t, EventList, env.Event)
	assert.Equal(t, uint64(7), env.Seq)

	_, _, ok := env.Response()
	assert.False(t, ok, "request frames are not responses")

	seq, respErr, ok := AckFrame(7).Response()
	require.True(t, ok)
	assert.Equal(t, uint64(7), seq)
	assert.NoError(t, respErr)
}

func TestEnvelopeFailResolution(t *testing.T) {
	perr := NewError(KindNotPlayersTurn)
	perr.RespondingTo = EventMove
	frame := FailFrame(perr, 9)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	parsed, err := ParseEnvelope(data)
	require.NoError(t, err)

	seq, respErr, ok := parsed.Response()
	require.True(t, ok)
	assert.Equal(t, uint64(9), seq)

	var mapped *Error
	require.ErrorAs(t, respErr, &mapped)
	assert.Equal(t, KindNotPlayersTurn, mapped.Kind)
	assert.Equal(t, EventMove, mapped.RespondingTo)
}

func TestParseEnvelopeRejectsGarbage(t *testing.T) {
	_, err := ParseEnvelope([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`{"seq":1}`))
	assert.Error(t, err, "frames must carry an event name")
}

func TestKindOfUnknownString(t *testing.T) {
	assert.Equal(t, KindGameFull, KindOf("GameFull"))
	assert.Equal(t, KindInputValidation, KindOf("SomethingNew"))
}

func TestPlayerFaultClassification(t *testing.T) {
	assert.True(t, NewError(KindNotPlayersTurn).PlayerFault())
	assert.True(t, NewError(KindGameFull).PlayerFault())
	assert.False(t, NewError(KindIllegalMove).PlayerFault())
	assert.False(t, NewError(KindUnauthorizedGameServer).PlayerFault())
}

func TestJoinValidation(t *testing.T) {
	join := Join{RoomID: uuid.New(), Name: "alice"}
	assert.NoError(t, join.Validate())

	join.Name = ""
	assert.Error(t, join.Validate())

	join = Join{Name: "alice"}
	assert.Error(t, join.Validate(), "roomid is required")
}
