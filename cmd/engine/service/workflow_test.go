package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/engine/cmd/engine/repository"
	"github.com/agentforge/engine/common/apperr"
	"github.com/agentforge/engine/common/logger"
	"github.com/agentforge/engine/common/models"
)

func newWorkflowService() *WorkflowService {
	return NewWorkflowService(repository.NewMemoryWorkflowRepository(), nil, logger.NewNop())
}

func chainInput(name string, nodeIDs ...string) CreateWorkflowInput {
	in := CreateWorkflowInput{Name: name}
	for _, id := range nodeIDs {
		in.Nodes = append(in.Nodes, models.Node{ID: id, Type: models.NodeAgent})
	}
	for i := 0; i < len(nodeIDs)-1; i++ {
		in.Edges = append(in.Edges, models.Edge{
			ID:     "e-" + nodeIDs[i] + "-" + nodeIDs[i+1],
			Source: nodeIDs[i],
			Target: nodeIDs[i+1],
		})
	}
	return in
}

func TestWorkflowService_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	created, err := svc.Create(ctx, "tenant-1", "user-1", chainInput("pipeline", "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowValid, created.Status)
	assert.Equal(t, 1, created.Version)

	got, err := svc.Get(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", got.Name)
}

func TestWorkflowService_CreateInvalidDefinition(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	in := chainInput("cyclic", "a", "b")
	in.Edges = append(in.Edges, models.Edge{ID: "e-back", Source: "b", Target: "a"})

	created, err := svc.Create(ctx, "tenant-1", "user-1", in)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowInvalid, created.Status)
}

func TestWorkflowService_GetWrongTenantIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	created, err := svc.Create(ctx, "tenant-1", "user-1", chainInput("pipeline", "a"))
	require.NoError(t, err)

	_, err = svc.Get(ctx, "tenant-2", created.ID)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeWorkflowNotFound, appErr.Code)
}

func TestWorkflowService_UpdateBumpsVersionAndRevalidates(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	created, err := svc.Create(ctx, "tenant-1", "user-1", chainInput("pipeline", "a", "b"))
	require.NoError(t, err)
	require.Equal(t, models.WorkflowValid, created.Status)

	name := "renamed"
	updated, err := svc.Update(ctx, "tenant-1", created.ID, UpdateWorkflowInput{
		ExpectedVersion: 1,
		Name:            &name,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, models.WorkflowValid, updated.Status)
	assert.Equal(t, "renamed", updated.Name)

	// an update that breaks the graph flips the status to invalid
	badEdges := append(append([]models.Edge(nil), updated.Edges...),
		models.Edge{ID: "e-back", Source: "b", Target: "a"})
	broken, err := svc.Update(ctx, "tenant-1", created.ID, UpdateWorkflowInput{
		ExpectedVersion: 2,
		Edges:           &badEdges,
	})
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowInvalid, broken.Status)
}

func TestWorkflowService_UpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	created, err := svc.Create(ctx, "tenant-1", "user-1", chainInput("pipeline", "a"))
	require.NoError(t, err)

	name := "stale"
	_, err = svc.Update(ctx, "tenant-1", created.ID, UpdateWorkflowInput{
		ExpectedVersion: 99,
		Name:            &name,
	})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeVersionConflict, appErr.Code)
}

func TestWorkflowService_ArchivedRejectsMutation(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	created, err := svc.Create(ctx, "tenant-1", "user-1", chainInput("pipeline", "a"))
	require.NoError(t, err)

	archived, err := svc.Archive(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowArchived, archived.Status)

	name := "rename"
	_, err = svc.Update(ctx, "tenant-1", created.ID, UpdateWorkflowInput{ExpectedVersion: 1, Name: &name})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeWorkflowArchived, appErr.Code)

	// archiving again is a no-op
	again, err := svc.Archive(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowArchived, again.Status)
}

func TestWorkflowService_ValidateInvalidGraph(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	in := chainInput("cyclic", "a", "b")
	in.Edges = append(in.Edges, models.Edge{ID: "e-back", Source: "b", Target: "a"})
	created, err := svc.Create(ctx, "tenant-1", "user-1", in)
	require.NoError(t, err)

	validated, result, err := svc.Validate(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, models.WorkflowInvalid, validated.Status)
	assert.NotEmpty(t, result.Errors)
}

func TestWorkflowService_Patch(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	created, err := svc.Create(ctx, "tenant-1", "user-1", chainInput("pipeline", "a", "b"))
	require.NoError(t, err)

	patch := []byte(`[
		{"op": "replace", "path": "/name", "value": "patched"},
		{"op": "add", "path": "/nodes/-", "value": {"id": "c", "type": "agent"}},
		{"op": "add", "path": "/edges/-", "value": {"id": "e-b-c", "source": "b", "target": "c"}}
	]`)
	patched, err := svc.Patch(ctx, "tenant-1", created.ID, 1, patch)
	require.NoError(t, err)
	assert.Equal(t, "patched", patched.Name)
	assert.Len(t, patched.Nodes, 3)
	assert.Equal(t, 2, patched.Version)
	assert.Equal(t, models.WorkflowValid, patched.Status)
}

func TestWorkflowService_PatchRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	created, err := svc.Create(ctx, "tenant-1", "user-1", chainInput("pipeline", "a"))
	require.NoError(t, err)

	_, err = svc.Patch(ctx, "tenant-1", created.ID, 1, []byte(`{"not": "a patch"}`))
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeValidationError, appErr.Code)
}

func TestWorkflowService_CreateRejectsDuplicateNodeIDs(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	in := CreateWorkflowInput{
		Name: "dup",
		Nodes: []models.Node{
			{ID: "a", Type: models.NodeAgent},
			{ID: "a", Type: models.NodeAgent},
		},
	}
	_, err := svc.Create(ctx, "tenant-1", "user-1", in)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeValidationError, appErr.Code)
}

func TestWorkflowService_ListStatusFilter(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	_, err := svc.Create(ctx, "tenant-1", "user-1", chainInput("wf-valid", "a"))
	require.NoError(t, err)

	broken := chainInput("wf-broken", "a", "b")
	broken.Edges = append(broken.Edges, models.Edge{ID: "e-back", Source: "b", Target: "a"})
	_, err = svc.Create(ctx, "tenant-1", "user-1", broken)
	require.NoError(t, err)

	page, err := svc.List(ctx, "tenant-1", "valid", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "wf-valid", page.Items[0].Name)
}

func TestWorkflowService_ValidateDefinitionInline(t *testing.T) {
	svc := newWorkflowService()

	in := chainInput("unsaved", "a", "b")
	result, err := svc.ValidateDefinition(in.Nodes, in.Edges)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"a", "b"}, result.ExecutionOrder)

	// cycle is reported without persisting anything
	in.Edges = append(in.Edges, models.Edge{ID: "e-b-a", Source: "b", Target: "a"})
	result, err = svc.ValidateDefinition(in.Nodes, in.Edges)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestWorkflowService_ListPagination(t *testing.T) {
	ctx := context.Background()
	svc := newWorkflowService()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, "tenant-1", "user-1", chainInput("wf", "a"))
		require.NoError(t, err)
	}

	first, err := svc.List(ctx, "tenant-1", "", "", 2)
	require.NoError(t, err)
	assert.Len(t, first.Items, 2)
	assert.Equal(t, 5, first.Total)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.List(ctx, "tenant-1", "", first.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, second.Items, 2)

	third, err := svc.List(ctx, "tenant-1", "", second.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, third.Items, 1)
	assert.Empty(t, third.NextCursor)

	// no overlap across pages
	seen := map[string]bool{}
	for _, page := range []Page[*models.Workflow]{first, second, third} {
		for _, w := range page.Items {
			assert.False(t, seen[w.ID])
			seen[w.ID] = true
		}
	}
	assert.Len(t, seen, 5)

	_, err = svc.List(ctx, "tenant-1", "", "bogus-cursor", 2)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInvalidCursor, appErr.Code)
}
