package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devconnect/internal/apperr"
	"devconnect/internal/board"
)

func phaseTitles(b boardView) []string {
	out := make([]string, len(b.Phases))
	for i, p := range b.Phases {
		out[i] = p.Title
	}
	return out
}

func TestNewProjectBoard(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	p := e.createProject(alice, "P")

	b := e.board(alice, p)
	assert.Equal(t, []string{"To do", "In Progress", "Done"}, phaseTitles(b))
	assert.Equal(t, 0, b.Stats.Tickets)
	assert.Equal(t, 0, b.Stats.Progress)
}

func TestTaskMoveAndProgress(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	p := e.createProject(alice, "P")
	b := e.board(alice, p)
	todo, done := b.Phases[0].ID, b.Phases[2].ID

	t1 := e.createTask(alice, p, todo, "one")
	t2 := e.createTask(alice, p, todo, "two")
	t3 := e.createTask(alice, p, 0, "three")
	assert.Equal(t, todo, t3.PhaseID)

	// drop t3 over t1: takes t1's slot
	rec := e.do("POST", fmt.Sprintf("/api/tasks/%d/move", t3.ID), alice, map[string]any{"target_phase_id": todo, "target_task_id": t1.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[boardView](t, rec)
	assert.Equal(t, []int64{t3.ID, t1.ID, t2.ID}, got.Phases[0].TicketIDs())

	// empty space of the last phase
	rec = e.do("POST", fmt.Sprintf("/api/tasks/%d/move", t2.ID), alice, map[string]any{"target_phase_id": done})
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[boardView](t, rec)
	assert.Equal(t, []int64{t3.ID, t1.ID}, got.Phases[0].TicketIDs())
	assert.Equal(t, []int64{t2.ID}, got.Phases[2].TicketIDs())
	assert.Equal(t, 33, got.Stats.Progress)

	// dropping on its own phase's empty space changes nothing
	rec = e.do("POST", fmt.Sprintf("/api/tasks/%d/move", t2.ID), alice, map[string]any{"target_phase_id": done})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, got.Phases, decode[boardView](t, rec).Phases)

	rec = e.do("GET", fmt.Sprintf("/api/tasks/%d", t2.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Done", decode[taskView](t, rec).Status)

	// stored order survives a reload
	assert.Equal(t, []int64{t3.ID, t1.ID}, e.board(alice, p).Phases[0].TicketIDs())
}

func TestUpdateTask(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	bobID, _ := e.signup("bob")
	carolID, _ := e.signup("carol")
	p := e.createProject(alice, "P")
	e.addMember(alice, p, bobID, "member")
	b := e.board(alice, p)
	task := e.createTask(alice, p, b.Phases[0].ID, "T")

	rec := e.do("PUT", fmt.Sprintf("/api/tasks/%d", task.ID), alice, map[string]any{
		"title": "  ", "description": "details", "priority": "low", "assigned_to": bobID, "phase_id": b.Phases[1].ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[struct {
		Message string   `json:"message"`
		Task    taskView `json:"task"`
	}](t, rec)
	assert.Equal(t, "Tâche mise à jour", got.Message)
	assert.Equal(t, "T", got.Task.Title)
	assert.Equal(t, "details", got.Task.Description)
	assert.Equal(t, board.Low, got.Task.Priority)
	require.NotNil(t, got.Task.AssigneeID)
	assert.Equal(t, bobID, *got.Task.AssigneeID)
	assert.Equal(t, "In Progress", got.Task.Status)

	rec = e.do("PUT", fmt.Sprintf("/api/tasks/%d", task.ID), alice, map[string]any{"assigned_to": carolID})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do("PUT", fmt.Sprintf("/api/tasks/%d", task.ID), alice, map[string]any{"priority": "urgent"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do("PUT", fmt.Sprintf("/api/tasks/%d", task.ID), alice, map[string]any{"assigned_to": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[struct {
		Task taskView `json:"task"`
	}](t, rec).Task.AssigneeID)
}

func TestUpdateTaskIsAtomic(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	p := e.createProject(alice, "P")
	other := e.createProject(alice, "Other")
	b := e.board(alice, p)
	task := e.createTask(alice, p, b.Phases[0].ID, "T")
	foreign := e.board(alice, other).Phases[1].ID

	for _, phaseID := range []int64{999999, foreign} {
		rec := e.do("PUT", fmt.Sprintf("/api/tasks/%d", task.ID), alice, map[string]any{
			"title": "changed", "priority": "low", "phase_id": phaseID,
		})
		require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	}

	rec := e.do("GET", fmt.Sprintf("/api/tasks/%d", task.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[taskView](t, rec)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, board.High, got.Priority)
	assert.Equal(t, b.Phases[0].ID, got.PhaseID)
}

func TestRemovedMemberLeavesTasks(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	bobID, _ := e.signup("bob")
	p := e.createProject(alice, "P")
	e.addMember(alice, p, bobID, "member")
	b := e.board(alice, p)
	task := e.createTask(alice, p, b.Phases[0].ID, "T")

	rec := e.do("PUT", fmt.Sprintf("/api/tasks/%d", task.ID), alice, map[string]any{"assigned_to": bobID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do("POST", fmt.Sprintf("/api/tasks/%d/members", task.ID), alice, map[string]any{"user_id": bobID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ch, cancel := e.api.bus.Subscribe(p)
	defer cancel()

	rec = e.do("DELETE", fmt.Sprintf("/api/projects/%d/members/%d", p, bobID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do("GET", fmt.Sprintf("/api/tasks/%d", task.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[taskView](t, rec)
	assert.Nil(t, got.AssigneeID)
	assert.Empty(t, got.Members)

	var types []string
	for len(ch) > 0 {
		var ev Event
		require.NoError(t, json.Unmarshal(<-ch, &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"member.removed", "board.reloaded"}, types)
}

func TestTaskMembersAndDeletion(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	bobID, bob := e.signup("bob")
	carolID, _ := e.signup("carol")
	p := e.createProject(alice, "P")
	e.addMember(alice, p, bobID, "member")
	task := e.createTask(bob, p, 0, "T")

	path := fmt.Sprintf("/api/tasks/%d/members", task.ID)
	rec := e.do("POST", path, bob, map[string]any{"user_id": bobID})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do("POST", path, bob, map[string]any{"user_id": bobID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{bobID}, decode[struct {
		Task taskView `json:"task"`
	}](t, rec).Task.Members)

	rec = e.do("POST", path, bob, map[string]any{"user_id": carolID})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do("DELETE", fmt.Sprintf("%s/%d", path, bobID), bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[struct {
		Task taskView `json:"task"`
	}](t, rec).Task.Members)

	rec = e.do("DELETE", fmt.Sprintf("/api/tasks/%d", task.ID), bob, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Seuls les admins peuvent supprimer des tâches", decode[message](t, rec).Message)

	rec = e.do("DELETE", fmt.Sprintf("/api/tasks/%d", task.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do("GET", fmt.Sprintf("/api/tasks/%d", task.ID), alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do("GET", fmt.Sprintf("/api/tasks/project/%d", p), bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]taskView](t, rec))
}

func TestComments(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	bobID, bob := e.signup("bob")
	carolID, carol := e.signup("carol")
	p := e.createProject(alice, "P")
	e.addMember(alice, p, bobID, "member")
	e.addMember(alice, p, carolID, "member")
	task := e.createTask(alice, p, 0, "T")

	add := func(token, content string) int64 {
		rec := e.do("POST", "/api/comments", token, map[string]any{"task_id": task.ID, "content": content})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[struct {
			Comment commentView `json:"comment"`
		}](t, rec).Comment.ID
	}
	c1 := add(bob, "first")
	c2 := add(carol, "second")
	c3 := add(bob, "third")

	rec := e.do("POST", "/api/comments", bob, map[string]any{"task_id": task.ID, "content": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do("GET", fmt.Sprintf("/api/comments/task/%d", task.ID), carol, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	thread := decode[[]commentView](t, rec)
	require.Len(t, thread, 3)
	assert.Equal(t, []int64{c1, c2, c3}, []int64{thread[0].ID, thread[1].ID, thread[2].ID})
	assert.Equal(t, "bob", thread[0].Username)
	assert.True(t, thread[1].CreatedAt.After(thread[0].CreatedAt))
	assert.True(t, thread[2].CreatedAt.After(thread[1].CreatedAt))

	// carol is neither the author nor an admin
	rec = e.do("DELETE", fmt.Sprintf("/api/comments/%d", c1), carol, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Non autorisé", decode[message](t, rec).Message)

	rec = e.do("DELETE", fmt.Sprintf("/api/comments/%d", c1), bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do("DELETE", fmt.Sprintf("/api/comments/%d", c2), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do("GET", fmt.Sprintf("/api/comments/%d", c3), carol, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "third", decode[commentView](t, rec).Content)

	rec = e.do("GET", fmt.Sprintf("/api/comments/%d", c1), carol, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPhaseEndpoints(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	bobID, bob := e.signup("bob")
	p := e.createProject(alice, "P")
	e.addMember(alice, p, bobID, "member")

	rec := e.do("POST", fmt.Sprintf("/api/projects/%d/phases", p), bob, map[string]string{"title": "Review", "color": "purple"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	review := decode[struct {
		Phase board.Phase `json:"phase"`
	}](t, rec).Phase
	assert.NotZero(t, review.ID)
	assert.Equal(t, board.Color("purple"), review.Color)

	b := e.board(alice, p)
	rec = e.do("POST", fmt.Sprintf("/api/phases/%d/move", review.ID), bob, map[string]any{"target_phase_id": b.Phases[1].ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"To do", "Review", "In Progress", "Done"}, phaseTitles(decode[boardView](t, rec)))

	rec = e.do("PUT", fmt.Sprintf("/api/phases/%d", review.ID), bob, map[string]string{"title": "QA"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "QA", decode[struct {
		Phase board.Phase `json:"phase"`
	}](t, rec).Phase.Title)

	rec = e.do("PUT", fmt.Sprintf("/api/phases/%d", review.ID), bob, map[string]string{"color": "red"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do("DELETE", fmt.Sprintf("/api/phases/%d", review.ID), bob, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = e.do("DELETE", fmt.Sprintf("/api/phases/%d", review.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"To do", "In Progress", "Done"}, phaseTitles(e.board(alice, p)))

	rec = e.do("PUT", "/api/phases/9999", alice, map[string]string{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBoardCommands(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	p := e.createProject(alice, "P")
	path := fmt.Sprintf("/api/projects/%d/board/commands", p)

	type result struct {
		ID    int64     `json:"id"`
		Board boardView `json:"board"`
	}
	send := func(body map[string]any) result {
		rec := e.do("POST", path, alice, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[result](t, rec)
	}

	r := send(map[string]any{"type": "task.add", "title": "A"})
	a := r.ID
	r = send(map[string]any{"type": "task.add", "title": "B"})
	bID := r.ID
	todo := r.Board.Phases[0].ID
	done := r.Board.Phases[2].ID
	assert.Equal(t, []int64{a, bID}, r.Board.Phases[0].TicketIDs())

	r = send(map[string]any{"type": "task.move", "task_id": a, "target_phase_id": done})
	assert.Equal(t, []int64{bID}, r.Board.Phases[0].TicketIDs())
	assert.Equal(t, 50, r.Board.Stats.Progress)

	r = send(map[string]any{"type": "phase.reorder", "phase_id": done, "target_phase_id": todo})
	assert.Equal(t, done, r.Board.Phases[0].ID)

	r = send(map[string]any{"type": "comment.add", "task_id": bID, "content": "hello"})
	assert.NotZero(t, r.ID)
	r = send(map[string]any{"type": "comment.delete", "comment_id": r.ID})
	tk, ok := r.Board.Board.Ticket(bID)
	require.True(t, ok)
	assert.Empty(t, tk.Comments)

	rec := e.do("POST", path, alice, map[string]any{"type": "task.explode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do("POST", path, alice, map[string]any{"type": "task.delete", "task_id": 9999})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventBusDelivery(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	p := e.createProject(alice, "P")

	ch, cancel := e.api.bus.Subscribe(p)
	defer cancel()
	other, cancelOther := e.api.bus.Subscribe(p + 1)
	defer cancelOther()

	task := e.createTask(alice, p, 0, "T")

	select {
	case msg := <-ch:
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, "task.created", ev.Type)
		assert.Equal(t, p, ev.ProjectID)
		assert.Equal(t, task.ID, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	select {
	case <-other:
		t.Fatal("event leaked to another project")
	default:
	}
}

func TestEventBusDropsSlowSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()
	for i := 0; i < 40; i++ {
		bus.Publish(Event{Type: "task.updated", ProjectID: 1})
	}
	assert.Len(t, ch, cap(ch))
}

func TestServeSSEFrames(t *testing.T) {
	bus := NewEventBus()
	ctx, stop := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/projects/1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.ServeSSE(rec, req, 1)
	}()
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs[1]) == 1
	}, time.Second, 5*time.Millisecond)

	bus.Publish(Event{Type: "phase.created", ProjectID: 1, ID: 7})
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		for ch := range bus.subs[1] {
			return len(ch) == 0
		}
		return false
	}, time.Second, 5*time.Millisecond)
	stop()
	<-done

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, ": connected\n\n"), body)
	assert.Contains(t, body, `data: {"type":"phase.created","project_id":1,"id":7}`+"\n\n")
	bus.mu.RLock()
	assert.Empty(t, bus.subs)
	bus.mu.RUnlock()
}

func TestLoadBoardOfVanishedProject(t *testing.T) {
	e := newEnv(t, Options{})
	_, alice := e.signup("alice")
	p := e.createProject(alice, "P")
	require.NoError(t, e.store.DeleteProject(context.Background(), p))

	_, err := e.api.loadBoard(context.Background(), p, "Tâche non trouvée")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.Equal(t, "Tâche non trouvée", apperr.Message(err))
}
