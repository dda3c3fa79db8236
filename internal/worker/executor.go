package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/processor"
	"github.com/shaiso/Conveyor/internal/secret"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// runJob выполняет шаги захваченного job строго последовательно
// и возвращает итоговый статус как агрегат статусов шагов.
//
// Протокол каждого шага:
//  1. Проверка флага внешней отмены. Отмена закрывает этот
//     и все оставшиеся шаги как CANCELLED.
//  2. Шаг → RUNNING, startedAt.
//  3. Рендеринг конфигурации с пулом переменных job.
//  4. Проверка привилегии: без неё процессор не вызывается вовсе.
//  5. Вызов процессора.
//  6. Успех → OK с выводом; объявленная переменная шага попадает в пул.
//     Ошибка любого этапа → FAILED с текстом ошибки как выводом,
//     оставшиеся шаги — CANCELLED.
//
// Ненулевая ошибка означает сбой самого хранилища; статусы шагов
// при этом могли записаться лишь частично, job закроет reaper.
func (w *Worker) runJob(ctx context.Context, job *domain.Job) (domain.JobStatus, error) {
	logger := telemetry.WithJobID(w.logger, job.ID)

	workspace, err := w.prepareWorkspace(job.ID)
	if err != nil {
		return "", fmt.Errorf("prepare workspace: %w", err)
	}
	defer w.removeWorkspace(job.ID, logger)

	// Повреждённое значение переменной роняет первый шаг, процессоры
	// не вызываются. Ошибка самого чтения из БД прерывает обработку.
	var integrityErr error
	tmplCtx, err := w.buildTemplateContext(ctx, job.ID)
	if err != nil {
		if !errors.Is(err, secret.ErrIntegrity) {
			return "", err
		}
		logger.Error("variable pool integrity failure", "error", err)
		integrityErr = err
		tmplCtx = engine.NewContext(nil)
	}
	tmplCtx.SetWorkspace(workspace)

	// После падения или отмены оставшиеся шаги закрываются каскадом.
	cascade := false

	for i := range job.Steps {
		step := &job.Steps[i]
		stepLogger := telemetry.WithStepID(logger, step.ID)

		if step.Status.IsTerminal() {
			continue
		}

		if cascade {
			step.MarkCancelled()
			if err := w.jobs.UpdateStep(ctx, step); err != nil {
				return "", fmt.Errorf("update step: %w", err)
			}
			continue
		}

		// Отмена проверяется только на границе шагов: уже запущенный
		// процессор дорабатывает до конца или до своего таймаута.
		cancelled, err := w.jobs.IsCancelRequested(ctx, job.ID)
		if err != nil {
			return "", fmt.Errorf("check cancel flag: %w", err)
		}
		if cancelled {
			stepLogger.Info("cancel requested, closing remaining steps")
			cascade = true
			step.MarkCancelled()
			if err := w.jobs.UpdateStep(ctx, step); err != nil {
				return "", fmt.Errorf("update step: %w", err)
			}
			continue
		}

		step.MarkRunning()
		if err := w.jobs.UpdateStep(ctx, step); err != nil {
			return "", fmt.Errorf("update step: %w", err)
		}

		var output *processor.Response
		execErr := integrityErr
		if execErr == nil {
			output, execErr = w.executeStep(ctx, job, step, tmplCtx)
		}

		if execErr != nil {
			stepLogger.Warn("step failed",
				"name", step.Name,
				"position", step.Position,
				"error", execErr,
			)
			cascade = true
			step.MarkFailed(execErr.Error())
			if err := w.jobs.UpdateStep(ctx, step); err != nil {
				return "", fmt.Errorf("update step: %w", err)
			}
			continue
		}

		text := ""
		if output != nil && output.Text != nil {
			text = *output.Text
		}

		// Объявленная переменная записывается до перевода шага в OK:
		// терминальный статус не откатывается.
		if step.AdvertisedVariableKey != nil {
			if err := w.advertise(ctx, job.ID, *step.AdvertisedVariableKey, text, tmplCtx); err != nil {
				stepLogger.Warn("step failed",
					"name", step.Name,
					"position", step.Position,
					"error", err,
				)
				cascade = true
				step.MarkFailed(err.Error())
				if err := w.jobs.UpdateStep(ctx, step); err != nil {
					return "", fmt.Errorf("update step: %w", err)
				}
				continue
			}
		}

		step.MarkOK(output.Output())
		if err := w.jobs.UpdateStep(ctx, step); err != nil {
			return "", fmt.Errorf("update step: %w", err)
		}

		tmplCtx.SetPreviousOutput(text)

		stepLogger.Info("step finished",
			"name", step.Name,
			"position", step.Position,
			"duration", step.Duration(),
		)
	}

	return domain.JobStatusFromSteps(job.Steps), nil
}

// executeStep рендерит конфигурацию шага, проверяет привилегию
// и вызывает процессор. Ошибка любого этапа — ошибка шага.
func (w *Worker) executeStep(ctx context.Context, job *domain.Job, step *domain.JobStep, tmplCtx *engine.Context) (*processor.Response, error) {
	proc, err := w.registry.Get(step.Processor.Kind())
	if err != nil {
		return nil, err
	}

	// Рендеринг откладывается до момента выполнения, чтобы шаблоны
	// видели переменные, объявленные предыдущими шагами.
	configMap, err := step.Processor.ConfigMap()
	if err != nil {
		return nil, fmt.Errorf("decode processor config: %w", err)
	}

	rendered, err := engine.RenderConfig(configMap, tmplCtx)
	if err != nil {
		return nil, err
	}

	renderedProc, err := step.Processor.WithConfigMap(rendered)
	if err != nil {
		return nil, fmt.Errorf("encode processor config: %w", err)
	}

	// Шаг хранит отрендеренную конфигурацию: job показывает
	// фактически выполненные параметры.
	step.Processor = renderedProc

	if priv := renderedProc.Privilege(); priv != "" && !job.HasPrivilege(priv) {
		return nil, fmt.Errorf("%w: %s", ErrMissingPrivilege, priv)
	}

	req := processor.NewRequest(job.ID, renderedProc, tmplCtx.Workspace(), w.stepTimeout)
	return proc.Execute(ctx, req)
}

// buildTemplateContext собирает расшифрованный пул переменных job:
// глобальные переменные сервера, поверх них — переменные job.
func (w *Worker) buildTemplateContext(ctx context.Context, jobID uuid.UUID) (*engine.Context, error) {
	tmplCtx := engine.NewContext(nil)

	globals, err := w.globals.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list global variables: %w", err)
	}
	for _, g := range globals {
		value, err := w.codec.Decrypt(g.Value)
		if err != nil {
			return nil, fmt.Errorf("decrypt global variable %q: %w", g.Key, err)
		}
		tmplCtx.Set(g.Key, value)
	}

	vars, err := w.jobs.GetVariables(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job variables: %w", err)
	}
	for _, v := range vars {
		value, err := w.codec.Decrypt(v.Value)
		if err != nil {
			return nil, fmt.Errorf("decrypt variable %q: %w", v.Key, err)
		}
		tmplCtx.Set(v.Key, value)
	}

	return tmplCtx, nil
}

// advertise шифрует вывод шага и записывает его в пул переменных job.
// Значение сразу видно шаблонам последующих шагов.
func (w *Worker) advertise(ctx context.Context, jobID uuid.UUID, key, text string, tmplCtx *engine.Context) error {
	encrypted, err := w.codec.Encrypt(text)
	if err != nil {
		return fmt.Errorf("advertise variable %q: %w", key, err)
	}

	v := domain.JobVariable{JobID: jobID, Key: key, Value: encrypted}
	if err := w.jobs.UpsertVariable(ctx, v); err != nil {
		return fmt.Errorf("advertise variable %q: %w", key, err)
	}

	tmplCtx.Set(key, text)
	return nil
}

// prepareWorkspace создаёт рабочую директорию job.
// Директория одна на весь job: шаги делят её через {{workspace}}.
func (w *Worker) prepareWorkspace(jobID uuid.UUID) (string, error) {
	dir := filepath.Join(w.workspaceRoot, jobID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// removeWorkspace удаляет рабочую директорию job после выполнения.
func (w *Worker) removeWorkspace(jobID uuid.UUID, logger *slog.Logger) {
	dir := filepath.Join(w.workspaceRoot, jobID.String())
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove workspace", "dir", dir, "error", err)
	}
}
