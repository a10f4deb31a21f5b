package temporal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/antigravity-dev/planboard/internal/store"
)

func TestReassigner_RunsWorkflow(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}

	c.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return strings.HasPrefix(o.ID, "reassign-t1-") && o.TaskQueue == "q"
	}), mock.Anything, ReassignRequest{Project: "proj", TaskID: "t1", MemberID: "ada"}).Return(run, nil)
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(*ReassignResult)
		out.Records = []store.Assignment{{ID: "r9", TaskID: "t1", MemberID: "ada"}}
	}).Return(nil)

	r := &Reassigner{Client: c, TaskQueue: "q"}
	records, err := r.Reassign(context.Background(), "proj", "t1", "ada")

	require.NoError(t, err)
	require.Equal(t, []store.Assignment{{ID: "r9", TaskID: "t1", MemberID: "ada"}}, records)
	c.AssertExpectations(t)
	run.AssertExpectations(t)
}

func TestReassigner_WorkflowFailure(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}

	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(run, nil)
	run.On("Get", mock.Anything, mock.Anything).Return(errors.New("create assignment: boom"))
	run.On("GetID").Return("reassign-t1-x")

	r := &Reassigner{Client: c}
	_, err := r.Reassign(context.Background(), "proj", "t1", "ada")
	require.Error(t, err)
	require.Contains(t, err.Error(), "reassign-t1-x")
}

func TestReassigner_StartFailure(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))

	r := &Reassigner{Client: c}
	_, err := r.Reassign(context.Background(), "proj", "t1", "ada")
	require.ErrorContains(t, err, "start reassign workflow")
}

func TestStartRecalculate(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	c.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "recalculate-proj" && o.TaskQueue == DefaultTaskQueue && o.WorkflowExecutionErrorWhenAlreadyStarted
	}), mock.Anything, mock.Anything).Return(run, nil).Once()

	started, err := StartRecalculate(context.Background(), c, "", RecalculateRequest{Project: "proj", ProjectStart: "09:00"})
	require.NoError(t, err)
	require.True(t, started)
	c.AssertExpectations(t)
}

func TestStartRecalculate_AlreadyRunning(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &serviceerror.WorkflowExecutionAlreadyStarted{Message: "already started"})

	started, err := StartRecalculate(context.Background(), c, "q", RecalculateRequest{Project: "proj"})
	require.NoError(t, err)
	require.False(t, started)
}

func TestStartRecalculate_OtherError(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("denied"))

	_, err := StartRecalculate(context.Background(), c, "q", RecalculateRequest{Project: "proj"})
	require.ErrorContains(t, err, "denied")
}
