// Package correction is the bounded retry coordinator wrapping the
// generator, validator, and executor: it feeds execution and validation
// errors back into the prompt and distinguishes a refusal (which gets a
// fresh generation) from malformed SQL (which gets a correction).
package correction

import (
	"context"
	"fmt"

	"github.com/nlq-sql/queryengine/pkg/dialect"
	"github.com/nlq-sql/queryengine/pkg/executor"
	"github.com/nlq-sql/queryengine/pkg/model"
	"github.com/nlq-sql/queryengine/pkg/sqlgen"
	"github.com/nlq-sql/queryengine/pkg/validator"
)

// DefaultMaxAttempts bounds the loop when callers pass no explicit limit.
const DefaultMaxAttempts = 5

// Loop drives generate→validate→execute for up to MaxAttempts attempts.
type Loop struct {
	Generator   *sqlgen.Generator
	Validator   *validator.Validator
	Executor    executor.Executor
	MaxAttempts int
}

// New constructs a Loop. maxAttempts <= 0 uses DefaultMaxAttempts.
func New(gen *sqlgen.Generator, v *validator.Validator, exec executor.Executor, maxAttempts int) *Loop {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Loop{Generator: gen, Validator: v, Executor: exec, MaxAttempts: maxAttempts}
}

// Outcome is the loop's terminal value: exactly one of Result or Err is set.
type Outcome struct {
	SQL      string
	Result   model.QueryResult
	Attempts []model.Attempt
	Err      *model.PipelineError
}

var recoverableExecutionErrors = map[model.QueryErrorKind]bool{
	model.ErrSyntax:            true,
	model.ErrUnknownIdentifier: true,
	model.ErrTypeMismatch:      true,
}

// Run drives the loop for one question against fingerprint/profile.
func (l *Loop) Run(ctx context.Context, question, fingerprint string, profile dialect.Profile, disambiguation string, execOpts executor.Options) Outcome {
	var attempts []model.Attempt
	var prior *sqlgen.Prior

	for attempt := 1; attempt <= l.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Outcome{Attempts: attempts, Err: model.NewPipelineError(model.PECancelled, "request cancelled", ctx.Err())}
		default:
		}

		candidate, err := l.Generator.Generate(ctx, question, fingerprint, profile, attempt, disambiguation, prior)
		if err != nil {
			return Outcome{Attempts: attempts, Err: model.NewPipelineError(model.PELLMTransportFailed, "the assistant is temporarily unavailable", err)}
		}

		if candidate.Refusal {
			// A refusal is recorded as an attempt, but the next
			// generation call gets a fresh context (prior stays nil)
			// rather than a correction.
			attempts = append(attempts, model.Attempt{
				SQL:   "",
				Error: &model.QueryError{Kind: model.ErrRefusal, Message: "model declined to produce SQL"},
			})
			prior = nil
			continue
		}

		validated, qerr := l.Validator.Validate(candidate.SQL.Text, candidate.SQL.Dialect)
		if qerr != nil {
			attempts = append(attempts, model.Attempt{SQL: candidate.SQL.Text, Error: qerr})
			prior = &sqlgen.Prior{SQL: candidate.SQL.Text, ErrorKind: qerr.Kind, ErrorMsg: qerr.Message}
			continue
		}

		result, qerr := l.Executor.Execute(ctx, validated, execOpts)
		if qerr != nil {
			attempts = append(attempts, model.Attempt{SQL: validated, Error: qerr})
			switch {
			case recoverableExecutionErrors[qerr.Kind]:
				prior = &sqlgen.Prior{SQL: validated, ErrorKind: qerr.Kind, ErrorMsg: qerr.Message}
				continue
			case qerr.Kind == model.ErrTimeout:
				return Outcome{Attempts: attempts, Err: model.NewPipelineError(model.PEExecutionTimeout, "that query took too long to run; try narrowing it", fmt.Errorf("%w", qerr))}
			default: // PermissionDenied, ConnectionLost
				kind := model.PEExecutionPermission
				if qerr.Kind == model.ErrConnectionLost {
					kind = model.PEExecutionConnectionLost
				}
				return Outcome{Attempts: attempts, Err: model.NewPipelineError(kind, "the database connection could not complete this request", fmt.Errorf("%w", qerr))}
			}
		}

		attempts = append(attempts, model.Attempt{SQL: validated, Error: nil})
		return Outcome{SQL: validated, Result: result, Attempts: attempts}
	}

	var last *model.QueryError
	if len(attempts) > 0 {
		last = attempts[len(attempts)-1].Error
	}
	return Outcome{
		Attempts: attempts,
		Err:      model.NewPipelineError(model.PEAttemptsExhausted, "couldn't produce a working query after several tries", queryErrToError(last)),
	}
}

func queryErrToError(qerr *model.QueryError) error {
	if qerr == nil {
		return fmt.Errorf("no attempts recorded")
	}
	return qerr
}
