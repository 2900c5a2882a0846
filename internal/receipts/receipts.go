// Package receipts stores and fetches receipt artifacts. Blobs are opaque;
// the only structured side-channel is an optional extracted-amount sidecar
// written by the upstream receipt parser.
package receipts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when no artifact exists at the given path. A missing
// receipt is a scoring penalty for the processor, not an infrastructure error.
var ErrNotFound = eris.New("receipts: not found")

// Receipt is one fetched artifact.
type Receipt struct {
	Data []byte
	// ExtractedAmountCents is the amount the upstream parser pulled out of the
	// artifact, nil when the receipt was unusable or never parsed.
	ExtractedAmountCents *int64
}

// Store fetches and saves receipt artifacts.
type Store interface {
	Fetch(ctx context.Context, path string) (*Receipt, error)
	Save(ctx context.Context, path string, data []byte, extractedAmountCents *int64) error
}

type amountSidecar struct {
	AmountCents int64 `json:"amount_cents"`
}

// FSStore keeps receipt artifacts under a root directory, with a ".amount.json"
// sidecar next to each artifact that has a parsed amount.
type FSStore struct {
	root string
}

// NewFSStore returns a filesystem-backed receipt store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "receipts: create root")
	}
	return &FSStore{root: dir}, nil
}

func (s *FSStore) Fetch(_ context.Context, path string) (*Receipt, error) {
	full := filepath.Join(s.root, filepath.Clean("/"+path))

	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "receipts: read %s", path)
	}

	r := &Receipt{Data: data}
	sidecar, err := os.ReadFile(full + ".amount.json")
	if err == nil {
		var sc amountSidecar
		if json.Unmarshal(sidecar, &sc) == nil {
			r.ExtractedAmountCents = &sc.AmountCents
		}
	}
	return r, nil
}

func (s *FSStore) Save(_ context.Context, path string, data []byte, extractedAmountCents *int64) error {
	full := filepath.Join(s.root, filepath.Clean("/"+path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return eris.Wrap(err, "receipts: create dir")
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return eris.Wrapf(err, "receipts: write %s", path)
	}
	if extractedAmountCents != nil {
		sc, err := json.Marshal(amountSidecar{AmountCents: *extractedAmountCents})
		if err != nil {
			return eris.Wrap(err, "receipts: marshal sidecar")
		}
		if err := os.WriteFile(full+".amount.json", sc, 0o644); err != nil {
			return eris.Wrapf(err, "receipts: write sidecar %s", path)
		}
	}
	return nil
}
