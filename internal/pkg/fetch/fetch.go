/*
Package fetch mirrors the source database into the local cache the
pipeline runs from. Small collections dump to pretty JSON, the
generator unit collection streams to JSONL through keyset pagination.
*/
package fetch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	pb "gopkg.in/cheggaaa/pb.v1"
)

// Config locates the source database and the local cache.
type Config struct {
	URI         string   `json:"uri"`
	Database    string   `json:"database"`
	CacheDir    string   `json:"cacheDir"`
	Collections []string `json:"collections"`
}

// DefaultConfig lists every collection the pipeline consumes. The URI
// stays out of the file, it carries credentials.
func DefaultConfig() Config {
	return Config{
		Database: "test",
		CacheDir: "data/db_cache",
		Collections: []string{
			"generators",
			"substations",
			"transmissioncables",
			"transmissionlines",
			"load-analysis-counties",
			"substation-grid-locations",
			"nep-ehv",
			"nep-hv",
		},
	}
}

// Fetcher dumps configured collections into the cache directory.
type Fetcher struct {
	config Config
}

// New returns a configured Fetcher. Settings missing from the file keep
// their defaults.
func New(configPath string) (*Fetcher, error) {
	config := DefaultConfig()
	if configPath != "" {
		raw, err := ioutil.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}
	return FromConfig(config), nil
}

// FromConfig returns a Fetcher over explicit settings.
func FromConfig(config Config) *Fetcher {
	return &Fetcher{config: config}
}

// Config returns the active settings.
func (f *Fetcher) Config() Config {
	return f.config
}

const (
	genBatchSize = 1000
	// Atlas throttles aggressive cursors, a short pause between pages
	// keeps the stream steady.
	genBatchPause = 50 * time.Millisecond
)

// genFilter keeps units above the noise floor that exist or are firmly
// planned.
var genFilter = bson.M{
	"GrossPower": bson.M{"$gt": 1},
	"UnitOperationalStatus": bson.M{
		"$in": []string{"in operation", "in planning"},
	},
}

var genProjection = bson.M{
	"_id":                 1,
	"UnitMastrNumber":     1,
	"Name":                1,
	"Latitude":            1,
	"Longitude":           1,
	"GrossPower":          1,
	"EnergySource":        1,
	"CommissionDate":      1,
	"ConnectionToMaximumOrHighVoltage": 1,
	"ConnectionToMediumVoltage":        1,
	"UnitOperationalStatus":            1,
	"LocationMaStRNumber":              1,
}

// CachePath returns the cache file for a collection. The generator
// stream is line-delimited, everything else is one JSON document.
func (f *Fetcher) CachePath(collection string) string {
	name := collection + ".json"
	if collection == "generators" {
		name += "l"
	}
	return filepath.Join(f.config.CacheDir, name)
}

// Run dumps every configured collection. Collections already cached are
// skipped unless force is set.
func (f *Fetcher) Run(ctx context.Context, force bool) error {
	uri := f.config.URI
	if uri == "" {
		uri = os.Getenv("MONGO_URI")
	}
	if uri == "" {
		return fmt.Errorf("no database URI, set MONGO_URI or the uri config key")
	}

	if err := os.MkdirAll(f.config.CacheDir, 0755); err != nil {
		return err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)

	db := client.Database(f.config.Database)

	for _, name := range f.config.Collections {
		path := f.CachePath(name)
		if !force {
			if _, err := os.Stat(path); err == nil {
				log.Println("[Fetch]", name, "already cached, skipping")
				continue
			}
		}

		log.Println("[Fetch] fetching", name)
		if name == "generators" {
			err = f.streamGenerators(ctx, db.Collection(name), path)
		} else {
			err = f.dumpCollection(ctx, db.Collection(name), path)
		}
		if err != nil {
			return fmt.Errorf("fetch %s: %w", name, err)
		}
	}
	return nil
}

// streamGenerators pages the unit collection by _id and appends each
// page to the JSONL cache. The collection runs into the millions, one
// cursor would not survive the dump.
func (f *Fetcher) streamGenerators(ctx context.Context, coll *mongo.Collection, path string) error {
	est, err := coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return err
	}
	log.Println("[Fetch]", est, "documents in collection")

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(genBatchSize).
		SetProjection(genProjection)

	bar := pb.StartNew(int(est))
	var lastID interface{}
	total := 0

	for {
		query := bson.M{}
		for k, v := range genFilter {
			query[k] = v
		}
		if lastID != nil {
			query["_id"] = bson.M{"$gt": lastID}
		}

		cur, err := coll.Find(ctx, query, opts)
		if err != nil {
			out.Close()
			return err
		}
		var batch []bson.D
		if err := cur.All(ctx, &batch); err != nil {
			out.Close()
			return err
		}
		if len(batch) == 0 {
			break
		}

		if err := appendJSONL(w, batch); err != nil {
			out.Close()
			return err
		}

		total += len(batch)
		bar.Add(len(batch))
		lastID = docID(batch[len(batch)-1])

		time.Sleep(genBatchPause)
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	bar.FinishPrint(fmt.Sprintf("[Fetch] wrote %d generator units", total))
	return nil
}

// dumpCollection writes a whole collection as one indented JSON array.
func (f *Fetcher) dumpCollection(ctx context.Context, coll *mongo.Collection, path string) error {
	cur, err := coll.Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return err
	}

	raw, err := marshalPretty(docs)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, raw, 0644); err != nil {
		return err
	}
	log.Println("[Fetch] wrote", len(docs), "documents to", path)
	return nil
}

// appendJSONL writes one extended-JSON line per document.
func appendJSONL(w *bufio.Writer, batch []bson.D) error {
	for _, doc := range batch {
		raw, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return err
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

// marshalPretty renders documents as an indented extended-JSON array
// with a trailing newline, the shape the raw caches ship in.
func marshalPretty(docs []bson.D) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('[')
	for i, doc := range docs {
		if i > 0 {
			compact.WriteByte(',')
		}
		raw, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return nil, err
		}
		compact.Write(raw)
	}
	compact.WriteByte(']')

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, compact.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	pretty.WriteByte('\n')
	return pretty.Bytes(), nil
}

// docID pulls the _id element out of a decoded document.
func docID(doc bson.D) interface{} {
	for _, e := range doc {
		if e.Key == "_id" {
			return e.Value
		}
	}
	return nil
}
