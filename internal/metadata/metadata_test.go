package metadata_test

import (
	"testing"

	"github.com/hydro-project/anna/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMetadata(t *testing.T) {
	assert.True(t, metadata.IsMetadata(metadata.ReplicationKey("user_key")))
	assert.False(t, metadata.IsMetadata("user_key"))
	assert.False(t, metadata.IsMetadata("ANNA_METADATAfoo"))
}

func TestReplicationKeyRoundTrip(t *testing.T) {
	key := "some|odd|key"
	metaKey := metadata.ReplicationKey(key)
	assert.Equal(t, "ANNA_METADATA|replication|some|odd|key", metaKey)
	assert.Equal(t, key, metadata.KeyFromMetadata(metaKey))
}

func TestKeyFromMetadataRejectsOtherKinds(t *testing.T) {
	statsKey := metadata.ThreadKey(metadata.KindStats, "1.2.3.4", "10.0.0.1", 2, metadata.TierMemory)
	assert.Equal(t, "", metadata.KeyFromMetadata(statsKey))
	assert.Equal(t, "", metadata.KeyFromMetadata("plain_key"))
}

func TestThreadKeyGrammar(t *testing.T) {
	key := metadata.ThreadKey(metadata.KindAccess, "1.2.3.4", "10.0.0.1", 2, metadata.TierDisk)
	assert.Equal(t, "ANNA_METADATA|access|1.2.3.4|10.0.0.1|2|DISK", key)

	tokens := metadata.SplitMetadataKey(key)
	require.Len(t, tokens, 6)
	assert.Equal(t, "access", tokens[1])
	assert.Equal(t, "DISK", tokens[5])
}

func TestKeyReplicationEqual(t *testing.T) {
	a := metadata.NewKeyReplication()
	a.Global[metadata.TierMemory] = 2
	a.Local[metadata.TierMemory] = 3

	b := metadata.NewKeyReplication()
	b.Global[metadata.TierMemory] = 2
	b.Local[metadata.TierMemory] = 3

	assert.True(t, a.Equal(b))

	b.Local[metadata.TierDisk] = 1
	assert.False(t, a.Equal(b))
}

func TestInitReplicationUsesTierDefaults(t *testing.T) {
	tiers := map[metadata.Tier]metadata.TierMetadata{
		metadata.TierMemory: {ID: metadata.TierMemory, DefaultReplication: 2},
		metadata.TierDisk:   {ID: metadata.TierDisk, DefaultReplication: 1},
	}
	replication := make(map[string]metadata.KeyReplication)
	metadata.InitReplication(replication, "k", tiers, 3)

	rec := replication["k"]
	assert.Equal(t, uint32(2), rec.Global[metadata.TierMemory])
	assert.Equal(t, uint32(1), rec.Global[metadata.TierDisk])
	assert.Equal(t, uint32(3), rec.Local[metadata.TierMemory])
	assert.Equal(t, uint32(3), rec.Local[metadata.TierDisk])
}

func TestWarmupPopulatesSyntheticKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("warmup populates a million keys")
	}
	replication := make(map[string]metadata.KeyReplication)
	metadata.WarmupReplicationToDefaults(replication, 1, 2, 3)

	assert.Len(t, replication, 1000000)
	rec, ok := replication["00000001"]
	require.True(t, ok)
	assert.Equal(t, uint32(1), rec.Global[metadata.TierMemory])
	assert.Equal(t, uint32(2), rec.Global[metadata.TierDisk])
	assert.Equal(t, uint32(3), rec.Local[metadata.TierMemory])

	_, ok = replication["01000000"]
	assert.True(t, ok)
}

func TestParseTier(t *testing.T) {
	tier, err := metadata.ParseTier("memory")
	require.NoError(t, err)
	assert.Equal(t, metadata.TierMemory, tier)

	tier, err = metadata.ParseTier("EBS")
	require.NoError(t, err)
	assert.Equal(t, metadata.TierDisk, tier)

	_, err = metadata.ParseTier("bogus")
	assert.Error(t, err)
}
