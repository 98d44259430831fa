package powernet

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestCacheRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "base_net.gob")
	net := fourBusNet()
	specs := []ExtGridSpec{
		{BusID: "a_380", GridType: GridMainSlack, VmPu: 1.0, SlackWeight: 1.0, Country: "Germany"},
	}

	assert.NilError(t, SaveCache(path, net, specs))

	got, gotSpecs, err := LoadCache(path)
	assert.NilError(t, err)
	assert.Equal(t, got.Summary(), net.Summary())
	assert.Equal(t, got.Buses[2].ID, "c_220")
	assert.Equal(t, len(gotSpecs), 1)
	assert.Equal(t, gotSpecs[0].BusID, "a_380")
	assert.Equal(t, gotSpecs[0].Country, "Germany")
}

func TestLoadCacheMissing(t *testing.T) {
	_, _, err := LoadCache(filepath.Join(t.TempDir(), "nope.gob"))
	assert.Assert(t, os.IsNotExist(err))
}

func TestLoadCacheCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base_net.gob")
	assert.NilError(t, os.WriteFile(path, []byte("not a gob stream"), 0644))

	_, _, err := LoadCache(path)
	assert.ErrorContains(t, err, "decode")
}

func TestRebuildThenCachedLoad(t *testing.T) {
	out := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = writeModelDir(t)
	cfg.OutputDir = out
	cfg.CachePath = filepath.Join(out, "cache", "base_net.gob")

	m := NewModeler(cfg)
	net, specs, err := m.Rebuild()
	assert.NilError(t, err)
	assert.Equal(t, len(net.Buses), 3)
	assert.Equal(t, len(specs), 2)

	_, err = os.Stat(cfg.CachePath)
	assert.NilError(t, err)

	// A fresh modeler picks the build up from the cache.
	cached, cachedSpecs, err := NewModeler(cfg).BaseNetwork()
	assert.NilError(t, err)
	assert.Equal(t, cached.Summary(), net.Summary())
	assert.Equal(t, len(cachedSpecs), 2)
}
