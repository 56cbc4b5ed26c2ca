package executor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/maxsync/max/pkg/connector"
	"github.com/maxsync/max/pkg/engine"
	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/types"
)

const (
	fieldBatchSize     = 100
	collectionPageSize = 100
)

// Runner executes one claimed task against the installation's loaders and
// engine. Run returns the follow-up tasks the executor should insert:
// sync-step tasks fan out into load tasks, load-collection tasks chain a
// continuation while the source reports more pages.
type Runner struct {
	eng      engine.Engine
	resolver *connector.Resolver
}

// NewRunner creates a runner over an engine and a loader resolver
func NewRunner(eng engine.Engine, resolver *connector.Resolver) *Runner {
	return &Runner{eng: eng, resolver: resolver}
}

// Run executes one task
func (r *Runner) Run(ctx context.Context, task types.Task) ([]types.Task, error) {
	switch task.Payload.Kind {
	case types.PayloadSyncGroup:
		// pure aggregation node; its children were inserted with it
		return nil, nil
	case types.PayloadSyncStep:
		return r.runStep(ctx, task)
	case types.PayloadLoadFields:
		return nil, r.runLoadFields(ctx, task)
	case types.PayloadLoadCollection:
		return r.runLoadCollection(ctx, task)
	default:
		return nil, errdefs.ErrUnknownPayload.New(errdefs.Props{"kind": string(task.Payload.Kind)})
	}
}

// runStep resolves the step's target refs and fans out into load tasks
func (r *Runner) runStep(ctx context.Context, task types.Task) ([]types.Task, error) {
	step := task.Payload.Step
	if step == nil {
		return nil, errdefs.ErrUnknownPayload.New(errdefs.Props{"kind": "sync-step without step"})
	}

	refs, entityType, err := r.resolveTargets(ctx, step.Target)
	if err != nil {
		return nil, err
	}

	var children []types.Task
	switch step.Op.Kind {
	case types.OpLoadFields:
		groups, err := r.resolver.Partition(entityType, step.Op.Fields)
		if err != nil {
			return nil, err
		}
		for _, loader := range connector.PartitionOrder(groups) {
			for _, batch := range batchRefs(refs, fieldBatchSize) {
				children = append(children, types.Task{
					ID:       types.TaskID(uuid.NewString()),
					SyncID:   task.SyncID,
					Payload:  types.LoadFieldsPayload(refKeys(batch), loader, groups[loader]),
					ParentID: task.ID,
				})
			}
		}
	case types.OpLoadCollection:
		// fail early if no loader provides the field
		if _, err := r.resolver.CollectionLoaderFor(entityType, step.Op.Field); err != nil {
			return nil, err
		}
		for _, ref := range refs {
			children = append(children, types.Task{
				ID:       types.TaskID(uuid.NewString()),
				SyncID:   task.SyncID,
				Payload:  types.LoadCollectionPayload(ref.Key(), step.Op.Field, ""),
				ParentID: task.ID,
			})
		}
	default:
		return nil, errdefs.ErrUnknownPayload.New(errdefs.Props{"kind": string(step.Op.Kind)})
	}
	return children, nil
}

// resolveTargets turns a step target into concrete refs. Root and one
// targets name their ref directly; all targets enumerate the engine's
// stored entities of the type.
func (r *Runner) resolveTargets(ctx context.Context, target types.StepTarget) ([]types.Ref, types.EntityType, error) {
	switch target.Kind {
	case types.TargetRoot, types.TargetOne:
		if target.Ref == nil {
			return nil, "", errdefs.ErrUnknownPayload.New(errdefs.Props{"kind": "step target without ref"})
		}
		// make sure the entity row exists before loads reference it
		if _, err := r.eng.Store(ctx, types.EntityInput{Ref: *target.Ref}); err != nil {
			return nil, "", err
		}
		return []types.Ref{*target.Ref}, target.Ref.Type, nil
	case types.TargetAll:
		var refs []types.Ref
		cursor := ""
		for {
			page, err := r.eng.LoadPage(ctx, target.Type, types.ProjectRefs(), types.PageRequest{Cursor: cursor, Limit: collectionPageSize})
			if err != nil {
				return nil, "", err
			}
			for _, entity := range page.Entities {
				refs = append(refs, entity.Ref)
			}
			if !page.HasMore {
				return refs, target.Type, nil
			}
			cursor = page.Cursor
		}
	default:
		return nil, "", errdefs.ErrUnknownPayload.New(errdefs.Props{"kind": string(target.Kind)})
	}
}

// runLoadFields loads a batch of refs through one field loader and records
// the sync timestamps that make the fields fresh.
func (r *Runner) runLoadFields(ctx context.Context, task types.Task) error {
	payload := task.Payload
	loader, err := r.resolver.FieldLoaderByName(payload.Loader)
	if err != nil {
		return err
	}

	refs := make([]types.Ref, 0, len(payload.Refs))
	for _, key := range payload.Refs {
		ref, err := types.ParseRefKey(key)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	inputs, err := loader.LoadFields(ctx, refs, payload.Fields)
	if err != nil {
		return errdefs.ErrLoaderFailed.Annotate(err, errdefs.Props{"loader": string(payload.Loader)})
	}

	for _, input := range inputs {
		if _, err := r.eng.Store(ctx, input); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	for _, ref := range refs {
		if err := r.eng.SyncMeta().RecordFieldSync(ctx, ref, payload.Fields, now); err != nil {
			return err
		}
	}
	return nil
}

// runLoadCollection loads one page of a parent's collection, storing the
// child identities and the parent's membership. Collection loads record no
// field sync metadata; only field loads do. A continuation task chains the
// next page under the same step parent.
func (r *Runner) runLoadCollection(ctx context.Context, task types.Task) ([]types.Task, error) {
	payload := task.Payload
	parent, err := types.ParseRefKey(payload.Parent)
	if err != nil {
		return nil, err
	}
	loader, err := r.resolver.CollectionLoaderFor(parent.Type, payload.Field)
	if err != nil {
		return nil, err
	}

	page, err := loader.LoadCollection(ctx, parent, payload.Field, types.PageRequest{
		Cursor: payload.Cursor,
		Limit:  collectionPageSize,
	})
	if err != nil {
		return nil, errdefs.ErrLoaderFailed.Annotate(err, errdefs.Props{"loader": string(loader.Name())})
	}

	members := make([]string, 0, len(page.Refs))
	for _, ref := range page.Refs {
		if _, err := r.eng.Store(ctx, types.EntityInput{Ref: ref}); err != nil {
			return nil, err
		}
		members = append(members, string(ref.Key()))
	}
	if _, err := r.eng.Store(ctx, types.EntityInput{
		Ref:    parent,
		Fields: map[string]any{payload.Field: members},
	}); err != nil {
		return nil, err
	}

	if !page.HasMore {
		return nil, nil
	}
	return []types.Task{{
		ID:       types.TaskID(uuid.NewString()),
		SyncID:   task.SyncID,
		Payload:  types.LoadCollectionPayload(payload.Parent, payload.Field, page.Cursor),
		ParentID: task.ParentID,
	}}, nil
}

func batchRefs(refs []types.Ref, size int) [][]types.Ref {
	if len(refs) == 0 {
		return nil
	}
	var batches [][]types.Ref
	for start := 0; start < len(refs); start += size {
		end := start + size
		if end > len(refs) {
			end = len(refs)
		}
		batches = append(batches, refs[start:end])
	}
	return batches
}

func refKeys(refs []types.Ref) []types.RefKey {
	keys := make([]types.RefKey, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, ref.Key())
	}
	return keys
}
