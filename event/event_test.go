package event

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/coder/acp-go-sdk"
	"github.com/dwalleck/cyril/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)
	goleak.VerifyTestMain(m)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "message chunk",
			raw:  `{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"hello"}}`,
			want: AgentMessage{SessionID: "s1", Content: "hello"},
		},
		{
			name: "thought chunk",
			raw:  `{"sessionUpdate":"agent_thought_chunk","content":{"type":"text","text":"hmm"}}`,
			want: AgentThought{SessionID: "s1", Content: "hmm"},
		},
		{
			name: "plan",
			raw:  `{"sessionUpdate":"plan","entries":[{"content":"write tests","priority":"high","status":"pending"}]}`,
			want: PlanUpdated{SessionID: "s1", Plan: []PlanEntry{{Content: "write tests", Priority: "high", Status: "pending"}}},
		},
		{
			name: "commands",
			raw:  `{"sessionUpdate":"available_commands_update","availableCommands":[{"name":"web","description":"Search","input":{"hint":"query"}}]}`,
			want: CommandsUpdated{SessionID: "s1", Commands: []Command{{Name: "web", Description: "Search", Input: &CommandInput{Hint: "query"}}}},
		},
		{
			name: "mode",
			raw:  `{"sessionUpdate":"current_mode_update","currentModeId":"planner"}`,
			want: ModeChanged{SessionID: "s1", ModeID: "planner"},
		},
		{
			name: "image chunk has no event",
			raw:  `{"sessionUpdate":"agent_message_chunk","content":{"type":"image","data":"AAAA","mimeType":"image/png"}}`,
			want: nil,
		},
		{
			name: "unknown kind has no event",
			raw:  `{"sessionUpdate":"user_message_chunk","content":{"type":"text","text":"hi"}}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode("s1", []byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_ToolCalls(t *testing.T) {
	raw := `{"sessionUpdate":"tool_call","toolCallId":"tc-1","title":"Read file","kind":"read","status":"pending",
		"locations":[{"path":"C:\\repo\\main.go","line":3}],"rawInput":{"path":"C:\\repo\\main.go"}}`

	ev, err := Decode("s1", []byte(raw))
	require.NoError(t, err)
	started, ok := ev.(ToolCallStarted)
	require.True(t, ok)
	assert.Equal(t, "tc-1", started.ToolCall.ID)
	assert.Equal(t, "read", started.ToolCall.Kind)
	require.Len(t, started.ToolCall.Locations, 1)
	assert.Equal(t, `C:\repo\main.go`, started.ToolCall.Locations[0].Path)
	require.NotNil(t, started.ToolCall.Locations[0].Line)
	assert.Equal(t, 3, *started.ToolCall.Locations[0].Line)
	assert.JSONEq(t, `{"path":"C:\\repo\\main.go"}`, string(started.ToolCall.RawInput))

	ev, err = Decode("s1", []byte(`{"sessionUpdate":"tool_call_update","toolCallId":"tc-1","status":"completed"}`))
	require.NoError(t, err)
	updated, ok := ev.(ToolCallUpdated)
	require.True(t, ok)
	assert.Equal(t, ToolCall{ID: "tc-1", Status: "completed"}, updated.Update)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode("s1", []byte(`{"sessionUpdate":`))
	assert.Error(t, err)
}

func TestEmitter_DropsWhenFull(t *testing.T) {
	e := NewEmitter(1)
	e.Emit(HookFeedback{Text: "first"})
	e.Emit(HookFeedback{Text: "second"})

	assert.Equal(t, HookFeedback{Text: "first"}, <-e.Events())
	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestEmitter_Nil(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() { e.Emit(HookFeedback{}) })
	assert.False(t, e.EmitInteraction(context.Background(), HookFeedback{}))
}

func TestEmitter_InteractionWaitsForRoom(t *testing.T) {
	e := NewEmitter(1)
	e.Emit(HookFeedback{Text: "filler"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, e.EmitInteraction(ctx, Permission{Reply: NewReply()}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-e.Events()
	}()
	assert.True(t, e.EmitInteraction(context.Background(), Permission{Reply: NewReply()}))
	wg.Wait()
}

func TestReply_Respond(t *testing.T) {
	r := NewReply()
	want := acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeSelected("allow")}
	r.Respond(want)
	r.Respond(acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeCancelled()})
	r.Dismiss()

	got, err := r.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReply_Dismiss(t *testing.T) {
	r := NewReply()
	r.Dismiss()
	r.Respond(acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeSelected("allow")})

	_, err := r.Wait(context.Background())
	assert.ErrorIs(t, err, ErrDismissed)
}

func TestReply_WaitCancelled(t *testing.T) {
	r := NewReply()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReply_ConcurrentAnswers(t *testing.T) {
	r := NewReply()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				r.Dismiss()
			} else {
				r.Respond(acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeCancelled()})
			}
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := r.Wait(ctx)
	if err != nil {
		assert.ErrorIs(t, err, ErrDismissed)
	}
}
