package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/index"
	"github.com/roach88/minisync/internal/kvdoc"
	"github.com/roach88/minisync/internal/layout"
	"github.com/roach88/minisync/internal/remote"
	"github.com/roach88/minisync/internal/testutil"
)

// Harness is the scenario execution engine.
// It holds one store per user and one document per client.
type Harness struct {
	scenario *Scenario
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
	metrics  *remote.Metrics
	stores   map[string]blob.RemoteStore
	docs     map[string]*kvdoc.Doc
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger routes sync logs to logger. Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// WithMetrics counts the run's sync activity in m.
func WithMetrics(m *remote.Metrics) Option {
	return func(h *Harness) { h.metrics = m }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh in-memory stores. Step and assertion
// failures are reported in the Result; the returned error is non-nil only
// when ctx is done.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		clock:    testutil.NewDeterministicClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		stores:   make(map[string]blob.RemoteStore, len(scenario.Users)),
		docs:     make(map[string]*kvdoc.Doc, len(scenario.Clients)),
	}
	for _, opt := range opts {
		opt(h)
	}
	for name, u := range scenario.Users {
		h.stores[name] = newUserStore(name, u)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.executeStep(ctx, i+1, step, result)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newUserStore(name string, u User) blob.RemoteStore {
	opts := []blob.InMemOption{blob.WithStoreID(name)}
	if u.PublicURL != "" {
		opts = append(opts, blob.WithPublicURL(u.PublicURL))
	}
	if u.DeferredPublish {
		opts = append(opts, blob.WithDeferredPublish())
	}
	return blob.NewInMem(opts...)
}

// syncer returns a Syncer for client writing to its user's store and
// resolving URLs through every other user's store.
func (h *Harness) syncer(client string) *remote.Syncer {
	user := h.scenario.Clients[client]
	var others []blob.Downloader
	for _, name := range slices.Sorted(maps.Keys(h.stores)) {
		if name != user {
			others = append(others, h.stores[name])
		}
	}
	return remote.New(h.stores[user], remote.Config{
		PartSizeLimit: h.scenario.PartSizeLimit,
		ClientName:    client,
		Label:         h.scenario.Users[user].Label,
		Stores:        others,
		Factory:       factoryFor(client),
		Logger:        h.logger,
		Now:           h.clock.Now,
		Metrics:       h.metrics,
	})
}

// factoryFor builds documents owned by client. Restoring a client's own
// history resumes it; any other history is merged into a new replica.
func factoryFor(client string) remote.Factory {
	return func(changes []byte) (remote.Document, error) {
		d, err := kvdoc.Load(changes, client)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

func (h *Harness) doc(client string) *kvdoc.Doc {
	d, ok := h.docs[client]
	if !ok {
		d = kvdoc.New(h.scenario.Document, client)
		h.docs[client] = d
	}
	return d
}

func (h *Harness) executeStep(ctx context.Context, n int, step Step, result *Result) {
	ev := TraceEvent{Step: n, Client: step.Client}
	var (
		err   error
		saved *bool
	)

	switch {
	case len(step.Set) > 0:
		ev.Op = "set"
		d := h.doc(step.Client)
		for _, k := range slices.Sorted(maps.Keys(step.Set)) {
			d.Set(k, step.Set[k])
		}
		ev.Detail = map[string]any{"version": d.Version()}

	case len(step.Delete) > 0:
		ev.Op = "delete"
		d := h.doc(step.Client)
		for _, k := range step.Delete {
			d.Delete(k)
		}
		ev.Detail = map[string]any{"version": d.Version()}

	case step.Save:
		ev.Op = "save"
		var res *remote.SaveResult
		res, err = h.syncer(step.Client).SaveRemote(ctx, h.doc(step.Client))
		if err == nil {
			ok := res != nil
			saved = &ok
			ev.Detail = map[string]any{"saved": ok}
			if ok {
				last, _ := res.ClientIndex.LastPart()
				ev.Detail["part"] = last.ID
				ev.Detail["version"] = res.ClientIndex.Latest
			}
		}

	case step.Merge != "":
		ev.Op = "merge"
		err = h.merge(ctx, step.Client, step.Merge, &ev)

	case step.Restore != nil:
		ev.Op = "restore"
		var d remote.Document
		d, err = h.syncer(step.Client).CreateFromRemote(ctx, h.scenario.Document, step.Restore.Client)
		if err == nil {
			err = h.adopt(step.Client, d, &ev)
		}

	case step.Import != "":
		ev.Op = "import"
		err = h.importFrom(ctx, step.Client, step.Import, &ev)

	default:
		ev.Op = "expect"
	}

	if err != nil {
		ev.Error = err.Error()
	}
	result.AddTrace(ev)

	prefix := fmt.Sprintf("step %d (%s %s)", n, ev.Op, step.Client)
	for _, msg := range h.checkExpect(step, err, saved) {
		result.AddError(prefix + ": " + msg)
	}
}

func (h *Harness) merge(ctx context.Context, client, mode string, ev *TraceEvent) error {
	s, d := h.syncer(client), h.doc(client)
	var (
		report *remote.MergeReport
		err    error
	)
	if mode == MergePeers {
		report, err = s.MergeFromRemotePeers(ctx, d)
	} else {
		report, err = s.MergeFromRemoteClients(ctx, d)
	}
	if err != nil {
		return err
	}
	skipped := make([]string, 0, len(report.Skipped))
	for _, sk := range report.Skipped {
		skipped = append(skipped, string(sk.Kind)+":"+sk.ID)
	}
	merged := append([]string{}, report.Merged...)
	ev.Detail = map[string]any{
		"mode":    mode,
		"merged":  merged,
		"skipped": skipped,
		"version": d.Version(),
	}
	return nil
}

// importFrom imports the master index of source's user into client.
func (h *Harness) importFrom(ctx context.Context, client, source string, ev *TraceEvent) error {
	store := h.stores[h.scenario.Clients[source]]
	url, err := store.PublishFile(ctx, blob.FileHandle{
		Path: layout.DocumentPath(h.scenario.Document),
		Name: layout.MasterIndexFile,
	})
	if err != nil {
		return errors.Wrapf(err, "publish master index of %s", source)
	}
	d, err := h.syncer(client).CreateFromURL(ctx, url)
	if err != nil {
		return err
	}
	if err := h.adopt(client, d, ev); err != nil {
		return err
	}
	ev.Detail["url"] = url
	return nil
}

// adopt replaces client's document with one built by a restore or import.
func (h *Harness) adopt(client string, d remote.Document, ev *TraceEvent) error {
	kd, ok := d.(*kvdoc.Doc)
	if !ok {
		return errors.Newf("unexpected document type %T", d)
	}
	h.docs[client] = kd
	ev.Detail = map[string]any{"version": kd.Version()}
	return nil
}

// checkExpect returns the failures of a step's expect clause. A step
// error is a failure unless the clause expects it.
func (h *Harness) checkExpect(step Step, stepErr error, saved *bool) []string {
	exp := step.Expect
	if exp == nil {
		if stepErr != nil {
			return []string{"unexpected error: " + stepErr.Error()}
		}
		return nil
	}

	if exp.Error != "" {
		switch {
		case stepErr == nil:
			return []string{fmt.Sprintf("expected error %q, step succeeded", exp.Error)}
		case !errorMatches(stepErr, exp.Error):
			return []string{fmt.Sprintf("expected error %q, got: %v", exp.Error, stepErr)}
		}
		return nil
	}
	if stepErr != nil {
		return []string{"unexpected error: " + stepErr.Error()}
	}

	var failures []string
	if exp.Saved != nil && saved != nil && *exp.Saved != *saved {
		failures = append(failures, fmt.Sprintf("expected saved=%t, got %t", *exp.Saved, *saved))
	}

	d := h.doc(step.Client)
	for _, k := range slices.Sorted(maps.Keys(exp.Values)) {
		got, ok := d.Get(k)
		switch {
		case !ok:
			failures = append(failures, fmt.Sprintf("key %q: expected %q, missing", k, exp.Values[k]))
		case got != exp.Values[k]:
			failures = append(failures, fmt.Sprintf("key %q: expected %q, got %q", k, exp.Values[k], got))
		}
	}
	for _, k := range exp.Absent {
		if got, ok := d.Get(k); ok {
			failures = append(failures, fmt.Sprintf("key %q: expected absent, got %q", k, got))
		}
	}
	if exp.MinVersion != nil && d.Version() < index.Version(*exp.MinVersion) {
		failures = append(failures, fmt.Sprintf("expected version >= %d, got %d", *exp.MinVersion, d.Version()))
	}
	return failures
}

func errorMatches(err error, want string) bool {
	return remote.HasCode(err, remote.ErrorCode(want)) || strings.Contains(err.Error(), want)
}
