package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hearthhub/hearthd/internal/config"
	"github.com/hearthhub/hearthd/internal/entities"
	"github.com/hearthhub/hearthd/internal/store"
)

// Notifier forwards committed event ids to the Stream hub, the same
// interface the Command API satisfies for its own mutations.
type Notifier interface {
	Notify(eventIDs []int64)
}

// Dispatcher runs every enabled plugin against a message snapshot after a
// message.created or message.edited event commits, per spec.md §4.6.
// Dispatch is asynchronous with respect to the originating request: it
// returns without waiting for the plugins, so callers invoke it inline.
type Dispatcher struct {
	plugins  []config.PluginConfig
	breakers *BreakerSet
	pool     *Pool
	store    *store.Store
	notify   Notifier
}

// NewDispatcher builds a Dispatcher for the workspace's configured
// plugins, bounded to maxWorkers concurrent message dispatches.
func NewDispatcher(plugins []config.PluginConfig, maxWorkers int, s *store.Store, notify Notifier) *Dispatcher {
	if notify == nil {
		notify = noopNotifier{}
	}
	return &Dispatcher{
		plugins:  plugins,
		breakers: NewBreakerSet(),
		pool:     NewPool(maxWorkers),
		store:    s,
		notify:   notify,
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify([]int64) {}

// Dispatch enqueues one message for plugin processing. It returns
// immediately, even when every worker slot is busy: the wait for a slot
// happens in its own goroutine, and the actual invocations run on a
// background context, since they must outlive the originating request,
// which is cancelled the instant its handler returns. Enqueue failure is
// logged, never returned to the caller, since plugin failures must never
// fail the originating mutation.
func (d *Dispatcher) Dispatch(messageID string) {
	go func() {
		if err := d.pool.Go(context.Background(), func() {
			d.run(context.Background(), messageID)
		}); err != nil {
			fmt.Fprintf(os.Stderr, "plugin: dispatch enqueue failed for message %s: %v\n", messageID, err)
		}
	}()
}

// run snapshots the message once, then invokes every enabled plugin
// sequentially in declaration order, re-validating the snapshot inside
// each commit per the staleness guard in spec.md §4.6 step 3.
func (d *Dispatcher) run(ctx context.Context, messageID string) {
	snapshot, err := entities.GetMessage(ctx, d.store, messageID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plugin: snapshot read failed for message %s: %v\n", messageID, err)
		return
	}
	if snapshot.DeletedAt != nil {
		return
	}

	var eventIDs []int64
	for _, p := range d.plugins {
		if !p.Enabled {
			continue
		}
		id, ok := d.runOne(ctx, p, snapshot)
		if ok {
			eventIDs = append(eventIDs, id)
		}
	}
	if len(eventIDs) > 0 {
		d.notify.Notify(eventIDs)
	}
}

// runOne invokes a single plugin against snapshot, applies the breaker,
// and commits its output (discarding it if the message changed since
// snapshot). Returns the emitted event id and true on a committed output.
func (d *Dispatcher) runOne(ctx context.Context, p config.PluginConfig, snapshot entities.Message) (int64, bool) {
	breaker := d.breakers.For(p.Name)
	if !breaker.Allow() {
		fmt.Fprintf(os.Stderr, "plugin %s: skipped, circuit open (message %s)\n", p.Name, snapshot.ID)
		return 0, false
	}

	runner := NewRunner(p)
	in := Input{
		MessageID:  snapshot.ID,
		TopicID:    snapshot.TopicID,
		ChannelID:  snapshot.ChannelID,
		Sender:     snapshot.Sender,
		ContentRaw: snapshot.ContentRaw,
		Config:     p.Config,
	}

	outputs, outcome, err := runner.Invoke(ctx, in)
	breaker.RecordResult(err == nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plugin %s: invocation failed (%s) for message %s: %v\n", p.Name, outcome, snapshot.ID, err)
		return 0, false
	}
	if len(outputs) == 0 {
		return 0, false
	}

	switch p.Type {
	case config.PluginTypeLinkifier:
		return d.commitEnrichments(ctx, p, snapshot, outputs)
	case config.PluginTypeExtractor:
		return d.commitAttachments(ctx, p, snapshot, outputs)
	default:
		fmt.Fprintf(os.Stderr, "plugin %s: unknown type %q, output discarded\n", p.Name, p.Type)
		return 0, false
	}
}

func (d *Dispatcher) commitEnrichments(ctx context.Context, p config.PluginConfig, snapshot entities.Message, raw []json.RawMessage) (int64, bool) {
	var lastEventID int64
	var committed bool
	for _, r := range raw {
		var out EnrichmentOutput
		if err := json.Unmarshal(r, &out); err != nil || out.Kind == "" || out.Span.End < out.Span.Start {
			fmt.Fprintf(os.Stderr, "plugin %s: invalid enrichment output discarded (message %s)\n", p.Name, snapshot.ID)
			continue
		}
		_, eventID, err := entities.InsertEnrichment(ctx, d.store, snapshot.ID, snapshot.Version, out.Kind, out.Span.Start, out.Span.End, out.Data, p.Name)
		if err != nil {
			if err == entities.ErrStaleEnrichment {
				continue
			}
			fmt.Fprintf(os.Stderr, "plugin %s: enrichment insert failed for message %s: %v\n", p.Name, snapshot.ID, err)
			continue
		}
		lastEventID, committed = eventID, true
	}
	return lastEventID, committed
}

func (d *Dispatcher) commitAttachments(ctx context.Context, p config.PluginConfig, snapshot entities.Message, raw []json.RawMessage) (int64, bool) {
	var lastEventID int64
	var committed bool
	for _, r := range raw {
		var out AttachmentOutput
		if err := json.Unmarshal(r, &out); err != nil || out.Kind == "" {
			fmt.Fprintf(os.Stderr, "plugin %s: invalid attachment output discarded (message %s)\n", p.Name, snapshot.ID)
			continue
		}

		current, err := entities.GetMessage(ctx, d.store, snapshot.ID)
		if err != nil || current.Version != snapshot.Version || current.DeletedAt != nil {
			continue
		}

		result, err := entities.AddAttachment(ctx, d.store, snapshot.TopicID, out.Kind, out.Key, out.Value, out.DedupeKey, snapshot.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "plugin %s: attachment insert failed for message %s: %v\n", p.Name, snapshot.ID, err)
			continue
		}
		if result.Deduplicated {
			continue
		}
		lastEventID, committed = result.EventID, true
	}
	return lastEventID, committed
}
