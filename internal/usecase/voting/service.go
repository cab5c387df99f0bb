// Package voting turns user opinions into authoritative data flags.
//
// A run scans the opinions of one revision that were edited since the last
// vote of the chosen mode, lets the mode's strategy resolve each LSD, and
// records one Vote per considered opinion whether or not a flag came out of
// it. Strategies are a closed set; adding a mode means adding a case to
// strategyFor, not registering into a table.
package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dataflag/internal/bootstrap/logging"
	"dataflag/internal/domain/dataflag"
	"dataflag/internal/errs"
	"dataflag/internal/ports"
)

const (
	// MaxModeNameLen is the vote table's mode column width.
	MaxModeNameLen = 32

	// graceWindow is subtracted from the last vote time when computing the
	// low-water mark, so opinions edited just before that vote are not lost.
	graceWindow = 60.0

	// voteFlagTypeName is the flag type every engine-created flag carries.
	voteFlagTypeName = "vote"
)

var (
	ErrUnknownMode = errors.New("unknown voting mode")
	ErrModeTooLong = errors.New("voting mode name too long")
)

type Service struct {
	repo     ports.DataflagRepository
	uow      ports.UnitOfWork
	client   dataflag.ClientInfo
	calendar dataflag.Calendar
	now      func() float64
}

func NewService(repo ports.DataflagRepository, uow ports.UnitOfWork, client dataflag.ClientInfo) *Service {
	return &Service{
		repo:     repo,
		uow:      uow,
		client:   client,
		calendar: dataflag.CHIMECalendar,
		now:      func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// WithClock replaces the time source; tests use it for deterministic stamps.
func (s *Service) WithClock(now func() float64) *Service {
	s.now = now
	return s
}

// WithCalendar replaces the sidereal calendar used for LSD time windows.
func (s *Service) WithCalendar(calendar dataflag.Calendar) *Service {
	s.calendar = calendar
	return s
}

type RunInput struct {
	Mode         string
	RevisionName string
}

// Run executes one voting pass and returns the newly created flags.
// Considered opinions that produced no flag still get their Vote record;
// they are just absent from the result.
func (s *Service) Run(ctx context.Context, input RunInput) ([]ports.Flag, error) {
	// Configuration checks come before any query or write.
	if len(input.Mode) > MaxModeNameLen {
		return nil, fmt.Errorf("%w: len(%q) = %d > %d",
			ErrModeTooLong, input.Mode, len(input.Mode), MaxModeNameLen)
	}
	strategy, err := strategyFor(input.Mode)
	if err != nil {
		return nil, err
	}

	revision, err := s.repo.GetRevisionByName(ctx, input.RevisionName)
	if err != nil {
		return nil, err
	}
	flagType, err := s.repo.GetFlagTypeByName(ctx, voteFlagTypeName)
	if err != nil {
		return nil, errs.Wrapf(err, "voting requires the %q flag type", voteFlagTypeName)
	}
	client, err := s.repo.GetOrCreateClient(ctx, s.client.Name, s.client.Version)
	if err != nil {
		return nil, err
	}

	// Low-water mark: newest vote of this mode across all revisions, minus
	// the grace window. Mode-global on purpose; see DESIGN.md.
	lowWaterMark := 0.0
	if lastVoteTime, ok, err := s.repo.MaxVoteTime(ctx, input.Mode); err != nil {
		return nil, err
	} else if ok {
		lowWaterMark = lastVoteTime - graceWindow
	}

	candidates, err := s.repo.ListOpinionsSince(ctx, revision.ID, lowWaterMark)
	if err != nil {
		return nil, err
	}

	run := voteRun{
		service:   s,
		mode:      input.Mode,
		revision:  revision,
		flagType:  flagType,
		client:    client,
		timestamp: s.now(),
	}

	logging.Info(ctx, "voting run started",
		slog.String("mode", input.Mode),
		slog.String("revision", revision.Name),
		slog.Float64("low_water_mark", lowWaterMark),
		slog.Int("candidates", len(candidates)),
	)

	flags, err := strategy.Evaluate(ctx, run, candidates)
	if err != nil {
		return flags, err
	}

	logging.Info(ctx, "voting run finished",
		slog.String("mode", input.Mode),
		slog.String("revision", revision.Name),
		slog.Int("flags_created", len(flags)),
	)
	return flags, nil
}

// voteRun carries the per-run state a strategy needs. The low-water mark is
// computed once by Run and never cached across runs.
type voteRun struct {
	service   *Service
	mode      string
	revision  ports.Revision
	flagType  ports.CatalogType
	client    ports.Client
	timestamp float64
}

// alreadyConsidered reports whether an opinion has a vote of this mode newer
// than its last edit. Such opinions were counted by an earlier run and are
// skipped without writing anything.
func (run voteRun) alreadyConsidered(ctx context.Context, opinion ports.Opinion) (bool, error) {
	voteTime, ok, err := run.service.repo.LatestVoteTimeForOpinion(ctx, opinion.ID, run.mode)
	if err != nil {
		return false, err
	}
	return ok && voteTime >= opinion.LastEdit, nil
}

// settle records the outcome for one opinion as a single atomic unit: the
// optional flag, the vote, and the vote-opinion link commit or roll back
// together. A nil makeFlag means the opinion produced no flag.
func (run voteRun) settle(ctx context.Context, opinion ports.Opinion, makeFlag func(ctx context.Context) (ports.Flag, error)) (*ports.Flag, error) {
	var created *ports.Flag
	err := run.service.uow.WithTx(ctx, func(txCtx context.Context) error {
		var flagID *uint64
		if makeFlag != nil {
			flag, err := makeFlag(txCtx)
			if err != nil {
				return err
			}
			created = &flag
			flagID = &flag.ID
		}

		vote, err := run.service.repo.CreateVote(txCtx, ports.VoteCreate{
			Time:       run.timestamp,
			Mode:       run.mode,
			ClientID:   run.client.ID,
			RevisionID: run.revision.ID,
			FlagID:     flagID,
			LSD:        opinion.LSD,
		})
		if err != nil {
			return err
		}
		return run.service.repo.LinkVoteOpinion(txCtx, vote.ID, opinion.ID)
	})
	if err != nil {
		return nil, errs.Wrapf(err, "settle opinion %d (lsd %d)", opinion.ID, opinion.LSD)
	}
	return created, nil
}

// translateOpinion builds the flag for a winning "bad" opinion: the time
// window is the opinion's full sidereal day and the instrument, freq and
// inputs metadata are carried over.
func (run voteRun) translateOpinion(ctx context.Context, opinion ports.Opinion) (ports.Flag, error) {
	start, finish := run.service.calendar.DayWindow(opinion.LSD)

	metadata := dataflag.Metadata{}
	for _, key := range []string{dataflag.MetaInstrument, dataflag.MetaFreq, dataflag.MetaInputs} {
		if value, ok := opinion.Metadata[key]; ok {
			metadata[key] = value
		}
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	return run.service.repo.CreateFlag(ctx, ports.FlagCreate{
		TypeID:     run.flagType.ID,
		StartTime:  start,
		FinishTime: &finish,
		Metadata:   metadata,
	})
}
