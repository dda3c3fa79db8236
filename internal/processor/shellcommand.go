package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ShellCommandProcessor — запуск команды оболочки в рабочей директории job.
//
// Требует привилегию shell_command. Команда выполняется с рабочей
// директорией внутри workspace; cwd и paths могут указывать только
// на workspace и его поддиректории.
type ShellCommandProcessor struct{}

// NewShellCommandProcessor создаёт новый ShellCommandProcessor.
func NewShellCommandProcessor() *ShellCommandProcessor {
	return &ShellCommandProcessor{}
}

// Kind возвращает вид процессора.
func (p *ShellCommandProcessor) Kind() string {
	return domain.KindShellCommand
}

// Privilege возвращает необходимую привилегию.
func (p *ShellCommandProcessor) Privilege() string {
	return domain.PrivilegeShellCommand
}

// Validate проверяет команду и пути конфигурации.
func (p *ShellCommandProcessor) Validate(cfg domain.Processor) error {
	c := cfg.ShellCommand
	if c == nil {
		return fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindShellCommand)
	}
	if c.Command == "" {
		return fmt.Errorf("%w: %s: command is required", ErrInvalidConfig, domain.KindShellCommand)
	}
	return validatePaths(c)
}

// validatePaths проверяет, что cwd и paths не выходят за пределы workspace.
// Проверка повторяется при выполнении: значения могли прийти из переменных.
func validatePaths(c *domain.ShellCommandConfig) error {
	if c.Cwd != nil && !insideWorkspace(*c.Cwd) {
		return fmt.Errorf("%w: %s: only sibling or child paths are accessible", ErrInvalidConfig, domain.KindShellCommand)
	}
	for _, p := range c.Paths {
		if !insideWorkspace(p) {
			return fmt.Errorf("%w: %s: only sibling or child paths are accessible", ErrInvalidConfig, domain.KindShellCommand)
		}
	}
	return nil
}

// insideWorkspace возвращает true для относительного пути,
// не покидающего директорию, к которой он будет присоединён.
func insideWorkspace(path string) bool {
	if path == "" || filepath.IsAbs(path) {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// Execute запускает команду.
func (p *ShellCommandProcessor) Execute(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Config.ShellCommand
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindShellCommand)
	}
	if err := validatePaths(cfg); err != nil {
		return nil, err
	}

	dir := req.Workspace
	if cfg.Cwd != nil {
		dir = filepath.Join(req.Workspace, *cfg.Cwd)
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = dir
	cmd.Env = commandEnv(req.Workspace, cfg.Paths)

	if cfg.Stdin != nil {
		cmd.Stdin = strings.NewReader(*cfg.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			message := cleanOutput(stderr.String())
			if message == "" {
				message = "unknown error during command execution"
			}
			return nil, errors.New(message)
		}

		return nil, fmt.Errorf("run command: %w", err)
	}

	return TextResponse(cleanOutput(stdout.String())), nil
}

// commandEnv собирает окружение команды: PATH расширяется директориями
// из paths, присоединёнными к workspace.
func commandEnv(workspace string, paths []string) []string {
	if len(paths) == 0 {
		return os.Environ()
	}

	extra := make([]string, 0, len(paths))
	for _, p := range paths {
		extra = append(extra, filepath.Join(workspace, p))
	}
	searchPath := strings.Join(append(extra, os.Getenv("PATH")), string(os.PathListSeparator))

	env := os.Environ()
	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = "PATH=" + searchPath
			return env
		}
	}
	return append(env, "PATH="+searchPath)
}

// ansiEscape — управляющие последовательности терминала.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// cleanOutput убирает ANSI-последовательности и хвостовые пробелы.
func cleanOutput(s string) string {
	return strings.TrimRightFunc(ansiEscape.ReplaceAllString(s, ""), unicode.IsSpace)
}
