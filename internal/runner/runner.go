// Package runner drives the recurring maintenance loop: due tasks, channel
// pruning, expiry warnings and channel-user reconciliation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/config"
	"github.com/bsquidwrd/Squid-Bot/internal/lifecycle"
	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"github.com/bsquidwrd/Squid-Bot/internal/platform"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
	"github.com/sirupsen/logrus"
)

type Runner struct {
	config    *config.Config
	storage   *storage.Storage
	lifecycle *lifecycle.Manager
	conn      platform.Connector
}

func New(cfg *config.Config, store *storage.Storage, manager *lifecycle.Manager, conn platform.Connector) *Runner {
	return &Runner{
		config:    cfg,
		storage:   store,
		lifecycle: manager,
		conn:      conn,
	}
}

// Run loops until the context is cancelled. Ticks are strictly sequential:
// a new tick never starts before the previous one finishes, so a slow
// phase costs jitter, never concurrency. Cancellation is a clean stop.
func (r *Runner) Run(ctx context.Context) {
	log := logrus.WithField("component", "task_runner")
	log.Infof("starting, tick interval %s", r.config.TickInterval)

	t := time.NewTicker(r.config.TickInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			r.tick(ctx, log)
		case <-ctx.Done():
			log.Info("stopping")
			return
		}
	}
}

// tick runs each phase in isolation: one phase failing (or panicking) must
// not stop the others from running on the same tick.
func (r *Runner) tick(ctx context.Context, log *logrus.Entry) {
	phases := []struct {
		name string
		run  func(context.Context) error
	}{
		{"due_tasks", r.runDueTasks},
		{"prune_channels", r.lifecycle.PruneExpired},
		{"warn_expiring", r.lifecycle.WarnExpiring},
		{"reconcile_channel_users", r.reconcileAll},
	}

	for _, phase := range phases {
		if err := r.runPhase(ctx, phase.name, phase.run); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.WithField("phase", phase.name).Errorf("phase failed: %v", err)
		}
	}
}

func (r *Runner) runPhase(ctx context.Context, name string, run func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("phase %s panicked: %v", name, rec)
		}
	}()
	return run(ctx)
}

// runDueTasks executes deferred work whose time has come. A task with a
// missing referent is logged with full context and left pending for manual
// follow-up; an unrecognized type is logged and completed so it stops
// re-firing.
func (r *Runner) runDueTasks(ctx context.Context) error {
	tasks, err := r.storage.DueTasks(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("listing due tasks: %w", err)
	}

	for _, task := range tasks {
		switch task.Type {
		case models.TaskAddToGameChat:
			if err := r.runAddToGameChat(ctx, task); err != nil {
				detail := fmt.Sprintf(
					"task %d (%s) for user %s failed, leaving for manual follow-up: %v",
					task.ID, task.Type, task.User.UserID, err,
				)
				logrus.Error(detail)
				if _, logErr := r.storage.AddLog(ctx, detail, true); logErr != nil {
					logrus.Errorf("failed to log task failure: %v", logErr)
				}
				continue
			}
			if err := r.storage.CompleteTask(ctx, task.ID); err != nil {
				logrus.Errorf("failed to complete task %d: %v", task.ID, err)
			}

		default:
			detail := fmt.Sprintf("unrecognized task type %q on task %d", task.Type, task.ID)
			logrus.Warn(detail)
			if _, logErr := r.storage.AddLog(ctx, detail, false); logErr != nil {
				logrus.Errorf("failed to log unrecognized task: %v", logErr)
			}
			if err := r.storage.CompleteTask(ctx, task.ID); err != nil {
				logrus.Errorf("failed to complete task %d: %v", task.ID, err)
			}
		}
	}

	return nil
}

func (r *Runner) runAddToGameChat(ctx context.Context, task *models.Task) error {
	if task.Channel == nil {
		return fmt.Errorf("task references a missing channel")
	}
	if task.Game == nil {
		return fmt.Errorf("task references a missing game")
	}
	if task.Channel.Deleted {
		return fmt.Errorf("channel %s was already retired", task.Channel)
	}

	if err := r.conn.GrantChannelAccess(ctx, task.Channel.ChannelID, task.User.UserID); err != nil {
		return fmt.Errorf("granting access: %w", err)
	}

	logrus.Infof("added %s to game chat %s for %s", task.User.UserID, task.Channel, task.Game.Name)
	return nil
}

func (r *Runner) reconcileAll(ctx context.Context) error {
	servers, err := r.storage.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}

	for _, server := range servers {
		if err := r.lifecycle.ReconcileChannelUsers(ctx, server); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logrus.Errorf("failed to reconcile channel users on %s: %v", server, err)
		}
	}
	return nil
}
