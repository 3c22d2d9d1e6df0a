package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"routinepet/internal/domain"
	"routinepet/internal/events"
	"routinepet/internal/failure"
	"routinepet/internal/repo"
	"routinepet/internal/stage"
)

// Engine runs the mission completion and reset transactions against the store.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Log    *zap.Logger
	Now    func() time.Time
	// Location decides where "today" begins for dashboard reads. UTC when nil.
	Location *time.Location
}

func New(db *sql.DB, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{Now: time.Now},
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// Today returns the current calendar date in the engine's location.
func (e Engine) Today() string {
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	return e.now().In(loc).Format(domain.DateLayout)
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func requireActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return failure.New(failure.ReasonValidation, "actor id is required")
	}
	return nil
}

// stageFailure maps resolver errors onto the failure taxonomy.
func stageFailure(err error) error {
	switch {
	case errors.Is(err, stage.ErrNoStages):
		return failure.Wrap(failure.ReasonNoStageCatalog, err)
	case errors.Is(err, stage.ErrDuplicateThreshold):
		return failure.Wrap(failure.ReasonStorage, err)
	}
	return err
}

// logFailure records a rejected operation; storage failures are errors, the rest are expected outcomes.
func (e Engine) logFailure(op string, fe *failure.Error, fields ...zap.Field) {
	fields = append(fields, zap.String("reason", string(fe.Reason)), zap.Error(fe))
	if fe.Reason == failure.ReasonStorage {
		e.logger().Error(op+" failed", fields...)
		return
	}
	e.logger().Info(op+" rejected", fields...)
}

func loadErr(what string, err error) error {
	return fmt.Errorf("load %s: %w", what, err)
}
