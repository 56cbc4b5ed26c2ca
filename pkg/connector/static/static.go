// Package static ships a connector serving a fixed key/value dataset
// supplied in the installation config. It needs no credentials, which
// makes it the smoke-test connector for a freshly created workspace.
package static

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/maxsync/max/pkg/connector"
	"github.com/maxsync/max/pkg/engine"
	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/types"
)

// Name is the connector's catalogue name
const Name = "static"

const defaultPageSize = 100

// config is the installation config shape: a flat map of record keys to
// string values.
type config struct {
	Records map[string]string `json:"records"`
}

// Connector is the static connector's catalogue entry
type Connector struct{}

// Factory builds the connector for registry registration
func Factory() (connector.Connector, error) {
	return Connector{}, nil
}

func (Connector) Name() string    { return Name }
func (Connector) Version() string { return "1.0.0" }

func (Connector) Schema() types.Schema {
	return types.Schema{
		Namespace: "static",
		Entities: map[types.EntityType]types.EntityDef{
			"dataset": {
				Name: "dataset",
				Fields: []types.Field{
					types.CollectionField("records", "record"),
				},
			},
			"record": {
				Name: "record",
				Fields: []types.Field{
					types.ScalarField("key", types.ScalarString),
					types.ScalarField("value", types.ScalarString),
				},
			},
		},
		Roots: []types.EntityType{"dataset"},
	}
}

func (Connector) Onboarding() connector.Onboarding {
	return connector.Onboarding{Steps: []connector.OnboardingStep{
		{Kind: connector.OnboardInfo, Name: "records",
			Text: "Provide the dataset as {\"records\": {\"<key>\": \"<value>\"}} in the installation config."},
	}}
}

func (Connector) Connect(ctx context.Context, spec types.InstallationSpec) (connector.Installation, error) {
	var cfg config
	if len(spec.ConnectorConfig) > 0 {
		if err := json.Unmarshal(spec.ConnectorConfig, &cfg); err != nil {
			return nil, errdefs.ErrConnectorFailed.Annotate(err, errdefs.Props{
				"connector": Name,
				"detail":    "invalid records config",
			})
		}
	}
	if cfg.Records == nil {
		cfg.Records = map[string]string{}
	}
	return &installation{name: spec.Name, records: cfg.Records}, nil
}

// installation is a live static dataset
type installation struct {
	name    string
	records map[string]string
	running bool
}

func (i *installation) Health(ctx context.Context) types.HealthStatus {
	if !i.running {
		return types.UnhealthyStatus("not started")
	}
	return types.HealthyStatus()
}

func (i *installation) Start(ctx context.Context) types.StartResult {
	if i.running {
		return types.StartAlreadyRunning()
	}
	i.running = true
	return types.StartOK()
}

func (i *installation) Stop(ctx context.Context) types.StopResult {
	if !i.running {
		return types.StopAlreadyStopped()
	}
	i.running = false
	return types.StopOK()
}

func (i *installation) Info() types.InstallationInfo {
	return types.InstallationInfo{Connector: Name, Name: i.name}
}

func (i *installation) Seeder() connector.Seeder {
	return connector.SeederFunc(func(ctx context.Context, eng engine.Engine) (types.SyncPlan, error) {
		return types.Plan(
			types.ForRoot(types.NewRef("dataset", types.EntityID(i.name))).LoadCollection("records"),
			types.ForAll("record").LoadFields("key", "value"),
		), nil
	})
}

func (i *installation) Resolver() *connector.Resolver {
	r := connector.NewResolver()
	r.RegisterCollectionLoader("dataset", "records", &recordLister{records: i.records})
	r.RegisterFieldLoader("record", []string{"key", "value"}, &recordLoader{records: i.records})
	return r
}

// recordLister pages over the dataset's keys in sorted order. The cursor
// is the numeric offset into that order.
type recordLister struct {
	records map[string]string
}

func (l *recordLister) Name() types.LoaderName { return "records" }

func (l *recordLister) LoadCollection(ctx context.Context, parent types.Ref, field string, page types.PageRequest) (types.RefPage, error) {
	keys := make([]string, 0, len(l.records))
	for key := range l.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	offset := 0
	if page.Cursor != "" {
		parsed, err := strconv.Atoi(page.Cursor)
		if err != nil || parsed < 0 {
			return types.RefPage{}, errdefs.ErrInvalidCursor.New(errdefs.Props{"cursor": page.Cursor})
		}
		offset = parsed
	}
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	if offset >= len(keys) {
		return types.RefPage{}, nil
	}
	end := offset + limit
	if end > len(keys) {
		end = len(keys)
	}

	refs := make([]types.Ref, 0, end-offset)
	for _, key := range keys[offset:end] {
		refs = append(refs, types.NewRef("record", types.EntityID(key)))
	}
	result := types.RefPage{Refs: refs}
	if end < len(keys) {
		result.Cursor = strconv.Itoa(end)
		result.HasMore = true
	}
	return result, nil
}

// recordLoader serves record fields straight from the dataset
type recordLoader struct {
	records map[string]string
}

func (l *recordLoader) Name() types.LoaderName { return "values" }

func (l *recordLoader) LoadFields(ctx context.Context, refs []types.Ref, fields []string) ([]types.EntityInput, error) {
	inputs := make([]types.EntityInput, 0, len(refs))
	for _, ref := range refs {
		value, ok := l.records[string(ref.ID)]
		if !ok {
			return nil, errdefs.ErrEntityNotFound.New(errdefs.Props{"ref": string(ref.Key())})
		}
		inputs = append(inputs, types.EntityInput{
			Ref:    ref,
			Fields: map[string]any{"key": string(ref.ID), "value": value},
		})
	}
	return inputs, nil
}
