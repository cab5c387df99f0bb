package voting

import (
	"context"
	"fmt"
	"log/slog"

	"dataflag/internal/bootstrap/logging"
	"dataflag/internal/domain/dataflag"
	"dataflag/internal/ports"
)

// Strategy resolves the candidate opinions of one run into flags. Every
// evaluated candidate must end up with a Vote record, flag or not.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, run voteRun, candidates []ports.Opinion) ([]ports.Flag, error)
}

// strategyFor maps a mode name to its strategy. The set is closed: new
// modes are new cases here.
func strategyFor(mode string) (Strategy, error) {
	switch mode {
	case "hypnotoad":
		return hypnotoad{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (choose one of %v)", ErrUnknownMode, mode, ModeNames())
	}
}

// ModeNames lists the registered voting modes.
func ModeNames() []string {
	return []string{"hypnotoad"}
}

// hypnotoad only accepts unanimous decisions: a single user can be the
// hypnotoad, but one opposing opinion on the same LSD vetoes the flag.
type hypnotoad struct{}

func (hypnotoad) Name() string { return "hypnotoad" }

func (h hypnotoad) Evaluate(ctx context.Context, run voteRun, candidates []ports.Opinion) ([]ports.Flag, error) {
	flags := make([]ports.Flag, 0, len(candidates))

	for _, opinion := range candidates {
		// The grace window re-admits opinions a previous run has already
		// counted; their votes make them skippable without new writes.
		considered, err := run.alreadyConsidered(ctx, opinion)
		if err != nil {
			return flags, err
		}
		if considered {
			continue
		}

		// Disagreement is scoped to the same revision and LSD.
		conflicts, err := run.service.repo.CountConflicting(ctx, opinion.LSD, opinion.RevisionID, opinion.Decision)
		if err != nil {
			return flags, err
		}

		if conflicts > 0 {
			// Contested LSD: no flag, but the opinion is still marked
			// considered so it is not rescanned forever.
			if _, err := run.settle(ctx, opinion, nil); err != nil {
				return flags, err
			}
			logging.Info(ctx, "opinion contested, no flag",
				slog.Uint64("opinion_id", opinion.ID),
				slog.Int64("lsd", opinion.LSD),
			)
			continue
		}

		if opinion.Decision != dataflag.DecisionBad {
			// Unanimous good/unsure: considered, nothing to flag.
			if _, err := run.settle(ctx, opinion, nil); err != nil {
				return flags, err
			}
			continue
		}

		// ALL GLORY TO THE HYPNOTOAD
		flag, err := run.settle(ctx, opinion, func(txCtx context.Context) (ports.Flag, error) {
			return run.translateOpinion(txCtx, opinion)
		})
		if err != nil {
			return flags, err
		}
		if flag != nil {
			flags = append(flags, *flag)
		}
	}

	return flags, nil
}
