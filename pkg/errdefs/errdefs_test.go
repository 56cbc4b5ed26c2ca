package errdefs

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefineExpandsTemplate(t *testing.T) {
	def := Define("execution.unknown_loader", "connector has no loader {loader}", NotFound, HasLoaderName)

	err := def.New(Props{"loader": "users"})
	assert.Equal(t, "execution.unknown_loader", err.Code)
	assert.Equal(t, "connector has no loader users", err.Message)
	assert.Equal(t, []string{"loader"}, def.Required)
}

func TestHasFacet(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		facet    Facet
		expected bool
	}{
		{
			name:     "structured error with facet",
			err:      ErrUnknownEntityType.New(Props{"entityType": "X"}),
			facet:    NotFound,
			expected: true,
		},
		{
			name:     "structured error with data facet",
			err:      ErrUnknownEntityType.New(Props{"entityType": "X"}),
			facet:    HasEntityType,
			expected: true,
		},
		{
			name:     "structured error without facet",
			err:      ErrUnknownEntityType.New(Props{"entityType": "X"}),
			facet:    BadInput,
			expected: false,
		},
		{
			name:     "plain error",
			err:      fmt.Errorf("boom"),
			facet:    NotFound,
			expected: false,
		},
		{
			name:     "wrapped structured error",
			err:      fmt.Errorf("context: %w", ErrTaskNotFound.New(Props{"taskId": "t1"})),
			facet:    NotFound,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Has(tt.err, tt.facet))
		})
	}
}

func TestSerializeReconstitute(t *testing.T) {
	original := ErrUnknownLoader.New(Props{"loader": "users"})

	data := Serialize(original)
	rebuilt, err := Reconstitute(data)
	require.NoError(t, err)

	assert.Equal(t, original.Code, rebuilt.Code)
	assert.Equal(t, original.Message, rebuilt.Message)
	assert.Equal(t, "users", rebuilt.StringProp("loader"))
	assert.True(t, rebuilt.HasFacet(NotFound))
	assert.True(t, rebuilt.HasFacet(HasLoaderName))
}

func TestSerializePlainError(t *testing.T) {
	data := Serialize(fmt.Errorf("disk on fire"))

	rebuilt, err := Reconstitute(data)
	require.NoError(t, err)
	assert.Equal(t, "platform.internal", rebuilt.Code)
	assert.Equal(t, "disk on fire", rebuilt.Message)
}

func TestReconstituteRejectsGarbage(t *testing.T) {
	_, err := Reconstitute(json.RawMessage(`{"message":"no code"}`))
	assert.Error(t, err)

	_, err = Reconstitute(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestAnnotateCarriesCause(t *testing.T) {
	cause := ErrUnknownLoader.New(Props{"loader": "users"})
	annotated := ErrLoaderFailed.Annotate(cause, Props{"loader": "users"})

	assert.Equal(t, "execution.loader_failed", annotated.Code)
	require.NotNil(t, annotated.Cause())
	assert.Equal(t, "execution.unknown_loader", annotated.Cause().Code)
}

func TestAnnotateSurvivesWire(t *testing.T) {
	cause := ErrTaskNotFound.New(Props{"taskId": "t9"})
	annotated := ErrLoaderFailed.Annotate(cause, Props{"loader": "items"})

	rebuilt, err := Reconstitute(Serialize(annotated))
	require.NoError(t, err)
	require.NotNil(t, rebuilt.Cause())
	assert.Equal(t, "execution.task_not_found", rebuilt.Cause().Code)
}

func TestDefinitionIs(t *testing.T) {
	err := ErrUnknownTarget.New(Props{"target": "nope"})
	assert.True(t, ErrUnknownTarget.Is(err))
	assert.False(t, ErrUnknownMethod.Is(err))
	assert.False(t, ErrUnknownTarget.Is(fmt.Errorf("plain")))
}
