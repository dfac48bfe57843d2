package reward

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smallbiznis-challenge/pkg/task"
	"smallbiznis-challenge/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type ChallengePayload struct {
	ChallengeID string `json:"challenge_id"`
}

type GrantPayload struct {
	GrantID string `json:"grant_id"`
}

// NewFinalizeTask builds the finalize task of a challenge. The task id is
// derived from the challenge so a challenge is queued at most once at a time.
func NewFinalizeTask(challengeID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ChallengePayload{ChallengeID: challengeID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.ChallengeFinalize, payload,
		asynq.TaskID("finalize:"+challengeID),
		asynq.Queue(task.QueueCritical),
		asynq.MaxRetry(10),
		asynq.Timeout(2*time.Minute),
	), nil
}

// NewIssueRewardsTask builds a task that credits the outstanding grants of a finalized challenge.
func NewIssueRewardsTask(challengeID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ChallengePayload{ChallengeID: challengeID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.ChallengeRewardIssue, payload,
		asynq.TaskID("rewards:"+challengeID),
		asynq.Queue(task.QueueCritical),
		asynq.MaxRetry(25),
	), nil
}

// RetryGrantTaskID identifies the retry of a grant at its current attempt
// count, so each failed attempt is redelivered at most once.
func RetryGrantTaskID(g *Grant) string {
	return fmt.Sprintf("grant:%s:%d", g.ID, g.Attempts)
}

func NewRetryGrantTask(grantID string) (*asynq.Task, error) {
	payload, err := json.Marshal(GrantPayload{GrantID: grantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.RewardGrantRetry, payload,
		asynq.Queue(task.QueueDefault),
		asynq.MaxRetry(25),
	), nil
}

// Task runs reward work on the asynq worker.
type Task struct {
	svc *Service
}

func NewTask(svc *Service) *Task {
	return &Task{svc: svc}
}

func (t *Task) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.ChallengeFinalize, t.HandleFinalize)
	mux.HandleFunc(taskname.ChallengeRewardIssue, t.HandleIssueRewards)
	mux.HandleFunc(taskname.RewardGrantRetry, t.HandleRetryGrant)
}

func (t *Task) HandleFinalize(ctx context.Context, at *asynq.Task) error {
	var payload ChallengePayload
	if err := json.Unmarshal(at.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	log := zap.L().With(zap.String("task_type", at.Type()), zap.String("challenge_id", payload.ChallengeID))
	out, err := t.svc.FinalizeChallenge(ctx, payload.ChallengeID)
	if err != nil {
		log.Error("finalize task failed", zap.Error(err))
		return err
	}

	log.Info("finalize task done",
		zap.Int("winners", len(out.Winners)),
		zap.Int("rewards_issued", out.RewardsIssued),
		zap.Bool("already_finalized", out.AlreadyFinalized),
	)
	return nil
}

func (t *Task) HandleIssueRewards(ctx context.Context, at *asynq.Task) error {
	var payload ChallengePayload
	if err := json.Unmarshal(at.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	_, err := t.svc.IssueRewards(ctx, payload.ChallengeID)
	return err
}

func (t *Task) HandleRetryGrant(ctx context.Context, at *asynq.Task) error {
	var payload GrantPayload
	if err := json.Unmarshal(at.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	_, err := t.svc.RetryGrant(ctx, payload.GrantID)
	return err
}
