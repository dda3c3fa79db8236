package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RedisCommandProcessor — выполнение одной команды Redis.
//
// Требует привилегию redis_command: произвольные команды дают полный
// доступ к данным сервера.
type RedisCommandProcessor struct{}

// NewRedisCommandProcessor создаёт новый RedisCommandProcessor.
func NewRedisCommandProcessor() *RedisCommandProcessor {
	return &RedisCommandProcessor{}
}

// Kind возвращает вид процессора.
func (p *RedisCommandProcessor) Kind() string {
	return domain.KindRedisCommand
}

// Privilege возвращает необходимую привилегию.
func (p *RedisCommandProcessor) Privilege() string {
	return domain.PrivilegeRedisCommand
}

// Validate проверяет адрес сервера и имя команды.
func (p *RedisCommandProcessor) Validate(cfg domain.Processor) error {
	c := cfg.RedisCommand
	if c == nil {
		return fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindRedisCommand)
	}
	if c.Command == "" {
		return fmt.Errorf("%w: %s: command is required", ErrInvalidConfig, domain.KindRedisCommand)
	}
	if _, err := redis.ParseURL(c.URL); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, domain.KindRedisCommand, err)
	}
	return nil
}

// Execute выполняет команду и форматирует ответ сервера.
func (p *RedisCommandProcessor) Execute(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Config.RedisCommand
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindRedisCommand)
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	client := redis.NewClient(opts)
	defer client.Close()

	args := make([]interface{}, 0, len(cfg.Args)+1)
	args = append(args, cfg.Command)
	for _, a := range cfg.Args {
		args = append(args, a)
	}

	result, err := client.Do(ctx, args...).Result()
	if err != nil {
		// Nil-ответ сервера — отсутствие значения, а не ошибка
		if errors.Is(err, redis.Nil) {
			return EmptyResponse(), nil
		}
		return nil, fmt.Errorf("execute command: %w", err)
	}

	return TextResponse(formatReply(result)), nil
}

// formatReply переводит ответ Redis в строку.
func formatReply(reply any) string {
	switch v := reply.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
