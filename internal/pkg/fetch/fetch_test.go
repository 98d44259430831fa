package fetch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gotest.tools/v3/assert"
)

func TestNewKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetch.json")
	assert.NilError(t, ioutil.WriteFile(path,
		[]byte(`{"database": "grid", "cacheDir": "cache"}`), 0644))

	f, err := New(path)
	assert.NilError(t, err)
	assert.Equal(t, f.Config().Database, "grid")
	assert.Equal(t, f.Config().CacheDir, "cache")
	assert.Equal(t, len(f.Config().Collections), 8)
}

func TestCachePath(t *testing.T) {
	f := FromConfig(Config{CacheDir: "data/db_cache"})
	assert.Equal(t, f.CachePath("substations"), filepath.Join("data/db_cache", "substations.json"))
	assert.Equal(t, f.CachePath("generators"), filepath.Join("data/db_cache", "generators.jsonl"))
}

func TestAppendJSONL(t *testing.T) {
	oid, err := primitive.ObjectIDFromHex("64b000000000000000000001")
	assert.NilError(t, err)

	batch := []bson.D{
		{{Key: "_id", Value: oid}, {Key: "Name", Value: "Solar One"}, {Key: "GrossPower", Value: 25}},
		{{Key: "Name", Value: "Wind Two"}},
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	assert.NilError(t, appendJSONL(w, batch))
	assert.NilError(t, w.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, len(lines), 2)
	assert.Equal(t, lines[0],
		`{"_id":{"$oid":"64b000000000000000000001"},"Name":"Solar One","GrossPower":25}`)
	assert.Equal(t, lines[1], `{"Name":"Wind Two"}`)
}

func TestMarshalPretty(t *testing.T) {
	docs := []bson.D{
		{{Key: "Id", Value: "way/1"}, {Key: "KV380", Value: true}},
		{{Key: "Id", Value: "way/2"}},
	}

	raw, err := marshalPretty(docs)
	assert.NilError(t, err)
	assert.Assert(t, strings.HasSuffix(string(raw), "]\n"))
	assert.Assert(t, strings.Contains(string(raw), "\n  {"))

	var back []map[string]interface{}
	assert.NilError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, len(back), 2)
	assert.Equal(t, back[0]["Id"], "way/1")
	assert.Equal(t, back[0]["KV380"], true)
}

func TestDocID(t *testing.T) {
	oid, _ := primitive.ObjectIDFromHex("64b000000000000000000002")
	doc := bson.D{{Key: "Name", Value: "x"}, {Key: "_id", Value: oid}}
	assert.Equal(t, docID(doc), oid)
	assert.Assert(t, docID(bson.D{{Key: "Name", Value: "x"}}) == nil)
}
