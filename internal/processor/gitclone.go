package processor

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/shaiso/Conveyor/internal/domain"
)

// GitCloneProcessor — клонирование git-репозитория в рабочую директорию job.
//
// Без path репозиторий клонируется в корень рабочей директории, иначе —
// в её поддиректорию. Выводом шага становится путь клона, чтобы следующие
// шаги могли обратиться к нему через {{previous_output}}.
type GitCloneProcessor struct{}

// NewGitCloneProcessor создаёт новый GitCloneProcessor.
func NewGitCloneProcessor() *GitCloneProcessor {
	return &GitCloneProcessor{}
}

// Kind возвращает вид процессора.
func (p *GitCloneProcessor) Kind() string {
	return domain.KindGitClone
}

// Privilege возвращает необходимую привилегию.
func (p *GitCloneProcessor) Privilege() string {
	return ""
}

// Validate проверяет адрес репозитория.
func (p *GitCloneProcessor) Validate(cfg domain.Processor) error {
	c := cfg.GitClone
	if c == nil {
		return fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindGitClone)
	}
	if c.URL == "" {
		return fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, domain.KindGitClone)
	}
	if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: %s: invalid url %q", ErrInvalidConfig, domain.KindGitClone, c.URL)
	}
	return nil
}

// Execute клонирует репозиторий.
func (p *GitCloneProcessor) Execute(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Config.GitClone
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindGitClone)
	}

	target := req.Workspace
	if cfg.Path != nil {
		target = filepath.Join(req.Workspace, *cfg.Path)
	}

	opts := &git.CloneOptions{URL: cfg.URL}
	if cfg.Username != nil && cfg.Password != nil {
		opts.Auth = &githttp.BasicAuth{
			Username: *cfg.Username,
			Password: *cfg.Password,
		}
	}

	if _, err := git.PlainCloneContext(ctx, target, false, opts); err != nil {
		return nil, fmt.Errorf("clone repository: %w", err)
	}

	return TextResponse(target), nil
}
