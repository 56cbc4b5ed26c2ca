package connector

import (
	"sort"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/types"
)

// Resolver maps entity fields to the loader that fetches them. The sync
// executor partitions a step's field list by loader through it.
type Resolver struct {
	fieldLoaders      map[types.EntityType]map[string]types.LoaderName
	collectionLoaders map[types.EntityType]map[string]types.LoaderName
	loaders           map[types.LoaderName]any
}

// NewResolver creates an empty resolver
func NewResolver() *Resolver {
	return &Resolver{
		fieldLoaders:      make(map[types.EntityType]map[string]types.LoaderName),
		collectionLoaders: make(map[types.EntityType]map[string]types.LoaderName),
		loaders:           make(map[types.LoaderName]any),
	}
}

// RegisterFieldLoader declares that loader provides the given fields of
// entityType.
func (r *Resolver) RegisterFieldLoader(entityType types.EntityType, fields []string, loader FieldLoader) *Resolver {
	table, ok := r.fieldLoaders[entityType]
	if !ok {
		table = make(map[string]types.LoaderName)
		r.fieldLoaders[entityType] = table
	}
	for _, f := range fields {
		table[f] = loader.Name()
	}
	r.loaders[loader.Name()] = loader
	return r
}

// RegisterCollectionLoader declares that loader provides the given
// collection field of entityType.
func (r *Resolver) RegisterCollectionLoader(entityType types.EntityType, field string, loader CollectionLoader) *Resolver {
	table, ok := r.collectionLoaders[entityType]
	if !ok {
		table = make(map[string]types.LoaderName)
		r.collectionLoaders[entityType] = table
	}
	table[field] = loader.Name()
	r.loaders[loader.Name()] = loader
	return r
}

// Partition groups the requested fields of entityType by the loader that
// provides each. Field order within a group follows the request; group
// enumeration is sorted by loader name for determinism.
func (r *Resolver) Partition(entityType types.EntityType, fields []string) (map[types.LoaderName][]string, error) {
	table := r.fieldLoaders[entityType]
	groups := make(map[types.LoaderName][]string)
	for _, field := range fields {
		loader, ok := table[field]
		if !ok {
			return nil, errdefs.ErrUnknownLoader.New(errdefs.Props{
				"loader": "field:" + string(entityType) + "." + field,
			})
		}
		groups[loader] = append(groups[loader], field)
	}
	return groups, nil
}

// PartitionOrder returns the loader names of a partition in stable order
func PartitionOrder(groups map[types.LoaderName][]string) []types.LoaderName {
	names := make([]types.LoaderName, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// CollectionLoaderFor resolves the loader providing a collection field
func (r *Resolver) CollectionLoaderFor(entityType types.EntityType, field string) (CollectionLoader, error) {
	name, ok := r.collectionLoaders[entityType][field]
	if !ok {
		return nil, errdefs.ErrUnknownLoader.New(errdefs.Props{
			"loader": "collection:" + string(entityType) + "." + field,
		})
	}
	loader, _ := r.loaders[name].(CollectionLoader)
	if loader == nil {
		return nil, errdefs.ErrUnknownLoader.New(errdefs.Props{"loader": string(name)})
	}
	return loader, nil
}

// FieldLoaderByName resolves a registered field loader by name
func (r *Resolver) FieldLoaderByName(name types.LoaderName) (FieldLoader, error) {
	loader, _ := r.loaders[name].(FieldLoader)
	if loader == nil {
		return nil, errdefs.ErrUnknownLoader.New(errdefs.Props{"loader": string(name)})
	}
	return loader, nil
}

// CollectionLoaderByName resolves a registered collection loader by name
func (r *Resolver) CollectionLoaderByName(name types.LoaderName) (CollectionLoader, error) {
	loader, _ := r.loaders[name].(CollectionLoader)
	if loader == nil {
		return nil, errdefs.ErrUnknownLoader.New(errdefs.Props{"loader": string(name)})
	}
	return loader, nil
}
