package wire_test

import (
	"testing"

	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/metadata"
	"github.com/hydro-project/anna/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLWWRoundTrip(t *testing.T) {
	original := lattice.NewLWW(42, "hello")
	payload, err := wire.SerializeLWW(original)
	require.NoError(t, err)

	decoded, err := wire.DeserializeLWW(payload)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestSetRoundTrip(t *testing.T) {
	original := lattice.NewSet("x", "y", "z")
	payload, err := wire.SerializeSet(original)
	require.NoError(t, err)

	decoded, err := wire.DeserializeSet(payload)
	require.NoError(t, err)
	assert.Equal(t, original.Reveal(), decoded.Reveal())
}

func TestOrderedSetRoundTrip(t *testing.T) {
	original := lattice.NewOrderedSet("m", "a", "z")
	payload, err := wire.SerializeOrderedSet(original)
	require.NoError(t, err)

	decoded, err := wire.DeserializeOrderedSet(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "m", "z"}, decoded.Reveal())
}

func TestSingleCausalRoundTrip(t *testing.T) {
	original := lattice.NewSingleCausal(
		lattice.NewVectorClock(map[string]uint64{"A": 1, "B": 2}),
		lattice.NewSet("a", "b"))
	payload, err := wire.SerializeSingleCausal(original)
	require.NoError(t, err)

	decoded, err := wire.DeserializeSingleCausal(payload)
	require.NoError(t, err)
	assert.Equal(t, original.Clock.Reveal(), decoded.Clock.Reveal())
	assert.Equal(t, original.Values.Reveal(), decoded.Values.Reveal())
}

func TestMultiCausalRoundTrip(t *testing.T) {
	original := lattice.NewMultiCausal(
		lattice.NewVectorClock(map[string]uint64{"A": 3}),
		map[string]lattice.VectorClock{
			"dep": lattice.NewVectorClock(map[string]uint64{"B": 1}),
		},
		lattice.NewSet("v"))
	payload, err := wire.SerializeMultiCausal(original)
	require.NoError(t, err)

	decoded, err := wire.DeserializeMultiCausal(payload)
	require.NoError(t, err)
	assert.Equal(t, original.Clock.Reveal(), decoded.Clock.Reveal())
	assert.Equal(t, original.Values.Reveal(), decoded.Values.Reveal())
	require.Contains(t, decoded.Dependencies, "dep")
	assert.Equal(t, map[string]uint64{"B": 1}, decoded.Dependencies["dep"].Reveal())
}

func TestPriorityRoundTrip(t *testing.T) {
	original := lattice.NewPriority(1.5, "urgent")
	payload, err := wire.SerializePriority(original)
	require.NoError(t, err)

	decoded, err := wire.DeserializePriority(payload)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestKeyRequestRoundTrip(t *testing.T) {
	req := wire.KeyRequest{
		Type:            wire.RequestPut,
		ResponseAddress: "10.0.0.1:6200",
		ResponseID:      "client:17",
	}
	req.AddPutTuple("k1", lattice.TypeLWW, []byte("payload"))
	req.AddGetTuple("k2", lattice.TypeSet)

	data, err := wire.Marshal(req)
	require.NoError(t, err)

	var decoded wire.KeyRequest
	require.NoError(t, wire.Unmarshal(data, &decoded))
	assert.Equal(t, req.Type, decoded.Type)
	assert.Equal(t, req.ResponseAddress, decoded.ResponseAddress)
	assert.Equal(t, req.ResponseID, decoded.ResponseID)
	require.Len(t, decoded.Tuples, 2)
	assert.Equal(t, "k1", decoded.Tuples[0].Key)
	assert.Equal(t, lattice.TypeLWW, decoded.Tuples[0].LatticeType)
	assert.Equal(t, []byte("payload"), decoded.Tuples[0].Payload)
	assert.Equal(t, lattice.TypeSet, decoded.Tuples[1].LatticeType)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := wire.Envelope{Kind: wire.KindGossip, Payload: []byte{1, 2, 3}}
	data, err := wire.Marshal(env)
	require.NoError(t, err)

	var decoded wire.Envelope
	require.NoError(t, wire.Unmarshal(data, &decoded))
	assert.Equal(t, env, decoded)
}

func TestReplicationFactorWrapRoundTrip(t *testing.T) {
	rf := wire.ReplicationFactor{
		Key: "mykey",
		Global: []wire.ReplicationValue{
			{Tier: metadata.TierMemory, Value: 2},
			{Tier: metadata.TierDisk, Value: 1},
		},
		Local: []wire.ReplicationValue{
			{Tier: metadata.TierMemory, Value: 3},
		},
	}

	payload, err := wire.WrapReplicationFactor(rf, 99)
	require.NoError(t, err)

	decoded, err := wire.UnwrapReplicationFactor(payload)
	require.NoError(t, err)
	assert.Equal(t, rf, decoded)

	rec := decoded.ToKeyReplication()
	assert.Equal(t, uint32(2), rec.Global[metadata.TierMemory])
	assert.Equal(t, uint32(1), rec.Global[metadata.TierDisk])
	assert.Equal(t, uint32(3), rec.Local[metadata.TierMemory])
}

func TestFromKeyReplicationInverts(t *testing.T) {
	rec := metadata.NewKeyReplication()
	rec.Global[metadata.TierMemory] = 2
	rec.Local[metadata.TierMemory] = 3

	rf := wire.FromKeyReplication("k", rec)
	assert.True(t, rf.ToKeyReplication().Equal(rec))
}

func TestUnwrapReplicationFactorRejectsGarbage(t *testing.T) {
	_, err := wire.UnwrapReplicationFactor([]byte("not msgpack"))
	assert.Error(t, err)
}
