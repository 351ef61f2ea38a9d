package mutation

import (
	"context"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-connector-cache/cache"
	"github.com/goliatone/go-connector-cache/connector"
	"github.com/goliatone/go-connector-cache/entity"
)

// Op tags the variant of a Command.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ProvisionalPrefix starts every id assigned to an optimistic create.
const ProvisionalPrefix = "provisional-"

// Command is one create, update or delete. The Coordinator drives it through
// snapshot, apply, dispatch and then commit or rollback.
type Command struct {
	Op    Op
	Kind  entity.Kind
	ID    string
	Input entity.Entity
	Patch entity.Patch

	// provisional is the id the optimistic copy of a create carries.
	provisional string
	snapshots   []cache.Snapshot
}

// Create builds a create command. An input without an id gets a provisional
// one while the remote call runs.
func Create(kind entity.Kind, input entity.Entity) *Command {
	cmd := &Command{Op: OpCreate, Kind: kind, Input: input}
	if input != nil {
		cmd.ID = input.EntityID()
	}
	return cmd
}

// Update builds an update command.
func Update(kind entity.Kind, id string, patch entity.Patch) *Command {
	return &Command{Op: OpUpdate, Kind: kind, ID: id, Patch: patch}
}

// Delete builds a delete command.
func Delete(kind entity.Kind, id string) *Command {
	return &Command{Op: OpDelete, Kind: kind, ID: id}
}

// Validate rejects commands that must not reach the connector.
func (c *Command) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Op, validation.Required, validation.In(OpCreate, OpUpdate, OpDelete)),
		validation.Field(&c.Kind, validation.Required, validation.By(knownKind)),
		validation.Field(&c.ID, validation.When(c.Op != OpCreate, validation.Required)),
		validation.Field(&c.Input, validation.When(c.Op == OpCreate,
			validation.NotNil,
			validation.By(entityOfKind(c.Kind)),
		)),
		validation.Field(&c.Patch, validation.When(c.Op == OpUpdate,
			validation.NotNil,
			validation.By(patchOfKind(c.Kind)),
		)),
	)
	if err == nil {
		return nil
	}

	return goerrors.FromOzzoValidation(err, fmt.Sprintf("invalid %s mutation", c.Op)).
		WithCode(http.StatusBadRequest).
		WithTextCode(connector.TextCodeValidation).
		WithMetadata(map[string]any{"op": string(c.Op), "kind": c.Kind.String()})
}

func knownKind(value any) error {
	kind, _ := value.(entity.Kind)
	if !kind.Valid() {
		return validation.NewError("validation_kind_unknown", "is not a known entity kind")
	}
	return nil
}

func entityOfKind(kind entity.Kind) validation.RuleFunc {
	return func(value any) error {
		e, ok := value.(entity.Entity)
		if ok && e.EntityKind() != kind {
			return validation.NewError("validation_kind_mismatch", fmt.Sprintf("must be a %s", kind))
		}
		return nil
	}
}

func patchOfKind(kind entity.Kind) validation.RuleFunc {
	return func(value any) error {
		p, ok := value.(entity.Patch)
		if ok && p.PatchKind() != kind {
			return validation.NewError("validation_kind_mismatch", fmt.Sprintf("must patch a %s", kind))
		}
		return nil
	}
}

// targetID is the id the optimistic copies carry.
func (c *Command) targetID() string {
	if c.Op == OpCreate && c.provisional != "" {
		return c.provisional
	}
	return c.ID
}

// affected lists the keys the command may write before it settles: every
// list scope of the kind, plus the detail scope for updates and deletes.
func (c *Command) affected(store *cache.Store, registry *cache.Registry) []cache.Key {
	keys := store.Keys(cache.MatchOperation(c.Kind, cache.OperationList))
	if c.Op != OpCreate {
		keys = append(keys, registry.Key(cache.DetailScope(c.Kind, c.ID)))
	}
	return keys
}

// snapshot records the affected entries.
func (c *Command) snapshot(store *cache.Store, keys []cache.Key) {
	c.snapshots = make([]cache.Snapshot, 0, len(keys))
	for _, key := range keys {
		c.snapshots = append(c.snapshots, store.Snapshot(key))
	}
}

// apply writes the optimistic state into every snapshotted entry.
func (c *Command) apply(store *cache.Store) {
	for _, snap := range c.snapshots {
		if !snap.Existed {
			continue
		}
		store.Update(snap.Key, func(current cache.Entry, _ int) (cache.Entry, bool) {
			next, changed := c.optimistic(current)
			if changed {
				next.IsOptimistic = true
			}
			return next, changed
		})
	}
}

func (c *Command) optimistic(e cache.Entry) (cache.Entry, bool) {
	if e.Key.Operation() == cache.OperationDetail {
		if c.Op != OpUpdate || e.Item == nil {
			return e, false
		}
		patched, err := c.Patch.Apply(e.Item)
		if err != nil {
			return e, false
		}
		e.Item = patched
		return e, true
	}

	if e.Items == nil {
		return e, false
	}
	idx := entity.IndexOf(e.Items, c.targetID())
	switch c.Op {
	case OpCreate:
		item := c.Input.WithID(c.targetID())
		if idx >= 0 {
			e.Items[idx] = item
		} else {
			e.Items = append(e.Items, item)
		}
		return e, true
	case OpUpdate:
		if idx < 0 {
			return e, false
		}
		patched, err := c.Patch.Apply(e.Items[idx])
		if err != nil {
			return e, false
		}
		e.Items[idx] = patched
		return e, true
	case OpDelete:
		if idx < 0 {
			return e, false
		}
		e.Items = append(e.Items[:idx:idx], e.Items[idx+1:]...)
		return e, true
	}
	return e, false
}

// dispatch runs the remote call. Deletes return a nil entity.
func (c *Command) dispatch(ctx context.Context, api connector.API) (entity.Entity, error) {
	switch c.Op {
	case OpCreate:
		return api.Create(ctx, c.Input)
	case OpUpdate:
		return api.Update(ctx, c.ID, c.Patch)
	case OpDelete:
		return nil, api.Delete(ctx, c.ID)
	}
	return nil, connector.ValidationError(fmt.Sprintf("unknown mutation %q", c.Op), nil)
}

// commit replaces optimistic copies in list scopes with the server entity
// and records it in the detail scope. It returns the detail key written.
func (c *Command) commit(store *cache.Store, registry *cache.Registry, result entity.Entity) cache.Key {
	for _, snap := range c.snapshots {
		if snap.Key.Operation() != cache.OperationList {
			continue
		}
		store.Update(snap.Key, func(current cache.Entry, _ int) (cache.Entry, bool) {
			return c.settleList(current, result)
		})
	}

	id := c.ID
	if result != nil {
		id = result.EntityID()
	}
	key := registry.Key(cache.DetailScope(c.Kind, id))
	now := store.Now()
	store.Write(key, func(current cache.Entry) cache.Entry {
		return current.SucceededItem(result, now)
	})
	return key
}

func (c *Command) settleList(e cache.Entry, result entity.Entity) (cache.Entry, bool) {
	if e.Items == nil || c.Op == OpDelete {
		if e.IsOptimistic {
			e.IsOptimistic = false
			return e, true
		}
		return e, false
	}

	idx := entity.IndexOf(e.Items, c.targetID())
	if idx < 0 || result == nil {
		e.IsOptimistic = false
		return e, true
	}

	items := make([]entity.Entity, 0, len(e.Items))
	for i, item := range e.Items {
		switch {
		case i == idx:
			items = append(items, result)
		case item != nil && item.EntityID() == result.EntityID():
			// the server entity already arrived through a refetch
		default:
			items = append(items, item)
		}
	}
	e.Items = items
	e.IsOptimistic = false
	return e, true
}

// rollback restores every snapshot and returns the restored keys.
func (c *Command) rollback(store *cache.Store) []cache.Key {
	keys := make([]cache.Key, 0, len(c.snapshots))
	for _, snap := range c.snapshots {
		store.Restore(snap)
		keys = append(keys, snap.Key)
	}
	return keys
}

// related selects the list scopes of other kinds a successful command makes
// stale.
func (c *Command) related() cache.KeyPredicate {
	switch {
	case c.Kind == entity.KindPolicyDefinition && (c.Op == OpUpdate || c.Op == OpDelete):
		return cache.MatchOperation(entity.KindContractDefinition, cache.OperationList)
	case c.Kind == entity.KindAsset && c.Op == OpDelete:
		return cache.MatchOperation(entity.KindContractDefinition, cache.OperationList)
	}
	return nil
}
