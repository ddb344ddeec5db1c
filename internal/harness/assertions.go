package harness

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/index"
	"github.com/roach88/minisync/internal/layout"
)

// evaluateAssertions checks every assertion against the final stores and
// returns one message per failure.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertPartChain:
			err = h.assertPartChain(ctx, a)
		case AssertPartCount:
			err = h.assertPartCount(ctx, a)
		case AssertMasterClient:
			err = h.assertMasterClient(ctx, a)
		default:
			err = errors.Newf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s %s): %v", i, a.Type, a.Client, err))
		}
	}
	return failures
}

func (h *Harness) clientIndex(ctx context.Context, client string) (*index.ClientIndex, error) {
	store := h.stores[h.scenario.Clients[client]]
	path := layout.ClientPath(h.scenario.Document, client)
	fd, err := store.GetFile(ctx, blob.FileHandle{Path: path, Name: layout.ClientIndexFile})
	if err != nil {
		return nil, err
	}
	if fd == nil {
		return nil, errors.New("client index not found")
	}
	return index.DecodeClient(fd.Contents, layout.Join(path, layout.ClientIndexFile))
}

func (h *Harness) assertPartChain(ctx context.Context, a Assertion) error {
	ci, err := h.clientIndex(ctx, a.Client)
	if err != nil {
		return err
	}
	return ci.CheckChain()
}

func (h *Harness) assertPartCount(ctx context.Context, a Assertion) error {
	ci, err := h.clientIndex(ctx, a.Client)
	if err != nil {
		return err
	}
	if len(ci.Parts) != a.Count {
		return errors.Newf("expected %d parts, got %d", a.Count, len(ci.Parts))
	}
	return nil
}

func (h *Harness) assertMasterClient(ctx context.Context, a Assertion) error {
	store := h.stores[h.scenario.Clients[a.Client]]
	path := layout.DocumentPath(h.scenario.Document)
	fd, err := store.GetFile(ctx, blob.FileHandle{Path: path, Name: layout.MasterIndexFile})
	if err != nil {
		return err
	}
	if fd == nil {
		return errors.New("master index not found")
	}
	m, err := index.DecodeMaster(fd.Contents, layout.Join(path, layout.MasterIndexFile))
	if err != nil {
		return err
	}
	if _, ok := m.Clients[a.Client]; !ok {
		return errors.New("client not listed in master index")
	}
	if a.Latest && m.LatestUpdate.ClientID != a.Client {
		return errors.Newf("latest writer is %q", m.LatestUpdate.ClientID)
	}
	return nil
}
