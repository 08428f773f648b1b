package actions

import (
	"context"
	"errors"
	"testing"

	"quizserver/quiz/session"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeController struct {
	readyOK bool
	result  *session.AnswerResult
	err     error
	calls   []string
}

func (f *fakeController) SetReady(_ context.Context, _, _ uint, ready bool) (bool, error) {
	f.calls = append(f.calls, "ready")
	return f.readyOK, f.err
}

func (f *fakeController) SubmitAnswer(_ context.Context, _, questionID, _ uint, answer string, _ int64) (*session.AnswerResult, error) {
	f.calls = append(f.calls, "answer:"+answer)
	return f.result, f.err
}

func (f *fakeController) LeaveGame(context.Context, uint, uint) (bool, error) {
	f.calls = append(f.calls, "leave")
	return true, f.err
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	ctrl := &fakeController{readyOK: true, result: &session.AnswerResult{QuestionID: 3, IsCorrect: true, PointsEarned: 14}}

	reply, leave := HandleMessage(ctx, ctrl, 1, 2, []byte(`{"type":"ready","ready":true}`), logger)
	assert.Equal(t, "ready_ack", reply.Type)
	assert.False(t, leave)

	reply, leave = HandleMessage(ctx, ctrl, 1, 2, []byte(`{"type":"answer","questionId":3,"answer":"12","elapsedMs":5000}`), logger)
	assert.Equal(t, Reply{Type: "answer_result", Data: ctrl.result}, reply)
	assert.False(t, leave)

	reply, leave = HandleMessage(ctx, ctrl, 1, 2, []byte(`{"type":"leave"}`), logger)
	assert.Equal(t, "left", reply.Type)
	assert.True(t, leave)

	assert.Equal(t, []string{"ready", "answer:12", "leave"}, ctrl.calls)
}

func TestHandleMessageErrors(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	reply, _ := HandleMessage(ctx, &fakeController{}, 1, 2, []byte(`not json`), logger)
	assert.Equal(t, "error", reply.Type)

	reply, _ = HandleMessage(ctx, &fakeController{}, 1, 2, []byte(`{"type":"dance"}`), logger)
	assert.Equal(t, "unknown message type", reply.Error)

	reply, _ = HandleMessage(ctx, &fakeController{}, 1, 2, []byte(`{"type":"answer","questionId":9}`), logger)
	assert.Equal(t, "answer not accepted", reply.Error)

	reply, _ = HandleMessage(ctx, &fakeController{}, 1, 2, []byte(`{"type":"ready","ready":true}`), logger)
	assert.Equal(t, "cannot change ready state", reply.Error)

	reply, leave := HandleMessage(ctx, &fakeController{err: errors.New("db down")}, 1, 2, []byte(`{"type":"leave"}`), logger)
	assert.Equal(t, "internal error", reply.Error)
	assert.False(t, leave)
}
