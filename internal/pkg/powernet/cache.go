package powernet

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// cachePayload pairs the built network with its external grid specs,
// scenario parameterization needs both.
type cachePayload struct {
	Net   *Network
	Specs []ExtGridSpec
}

// SaveCache writes the base network to path, creating parent
// directories as needed.
func SaveCache(path string, net *Network, specs []ExtGridSpec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(cachePayload{Net: net, Specs: specs}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadCache reads a cached base network. A missing file surfaces
// through os.IsNotExist, a stale or truncated cache as a decode
// error; callers fall back to a rebuild on either.
func LoadCache(path string) (*Network, []ExtGridSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var p cachePayload
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if p.Net == nil {
		return nil, nil, fmt.Errorf("decode %s: empty payload", path)
	}
	return p.Net, p.Specs, nil
}
