package voting

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"dataflag/internal/domain/dataflag"
	"dataflag/internal/infrastructure/persistence/sqlite/model"
	"dataflag/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "dataflag/internal/infrastructure/persistence/sqlite/uow"
	"dataflag/internal/ports"
	"dataflag/internal/usecase/flagging"
)

// testCalendar keeps the expected flag windows easy to compute by hand.
var testCalendar = dataflag.Calendar{ZeroUnix: 0, DaySeconds: 1000}

type harness struct {
	db       *gorm.DB
	repo     *repository.DataflagRepository
	flagging *flagging.Service
	voting   *Service
	clock    float64
	revision ports.Revision
}

func setupHarness(t *testing.T) *harness {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "dataflag.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(
		&model.Revision{},
		&model.User{},
		&model.Client{},
		&model.FlagType{},
		&model.OpinionType{},
		&model.Flag{},
		&model.Opinion{},
		&model.Vote{},
		&model.VoteOpinion{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	h := &harness{db: db, clock: 10_000}
	client := dataflag.ClientInfo{Name: "cdf-test", Version: "0.0.0"}
	h.repo = repository.NewDataflagRepository(db)
	h.flagging = flagging.NewService(h.repo, client).WithClock(h.now)
	h.voting = NewService(h.repo, sqliteuow.NewUnitOfWork(db), client).
		WithClock(h.now).
		WithCalendar(testCalendar)

	ctx := context.Background()
	h.revision, err = h.repo.CreateRevision(ctx, "rev_00", nil)
	if err != nil {
		t.Fatalf("create revision: %v", err)
	}
	for _, name := range []string{"alice", "bob"} {
		if _, err := h.repo.CreateUser(ctx, name); err != nil {
			t.Fatalf("create user %s: %v", name, err)
		}
	}
	if _, err := h.repo.CreateOpinionType(ctx, "classification", nil, nil); err != nil {
		t.Fatalf("create opinion type: %v", err)
	}
	if _, err := h.repo.CreateFlagType(ctx, "vote", nil, nil); err != nil {
		t.Fatalf("create flag type: %v", err)
	}
	return h
}

func (h *harness) now() float64 { return h.clock }

func (h *harness) opine(t *testing.T, user, decision string, lsd int64) ports.Opinion {
	t.Helper()
	opinion, _, err := h.flagging.CreateOpinion(context.Background(), flagging.CreateOpinionInput{
		UserName:     user,
		Decision:     decision,
		TypeName:     "classification",
		LSD:          lsd,
		RevisionName: "rev_00",
	})
	if err != nil {
		t.Fatalf("create opinion: %v", err)
	}
	return opinion
}

func (h *harness) vote(t *testing.T) []ports.Flag {
	t.Helper()
	flags, err := h.voting.Run(context.Background(), RunInput{
		Mode:         "hypnotoad",
		RevisionName: "rev_00",
	})
	if err != nil {
		t.Fatalf("voting run: %v", err)
	}
	return flags
}

func (h *harness) countVotes(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&model.Vote{}).Count(&n).Error; err != nil {
		t.Fatalf("count votes: %v", err)
	}
	return n
}

func (h *harness) countFlags(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&model.Flag{}).Count(&n).Error; err != nil {
		t.Fatalf("count flags: %v", err)
	}
	return n
}

func TestRunTranslatesUnanimousBadOpinion(t *testing.T) {
	h := setupHarness(t)

	opinion, _, err := h.flagging.CreateOpinion(context.Background(), flagging.CreateOpinionInput{
		UserName:     "alice",
		Decision:     "bad",
		TypeName:     "classification",
		LSD:          2112,
		RevisionName: "rev_00",
		Instrument:   "chime",
		Freq:         []int{3, 5},
	})
	if err != nil {
		t.Fatalf("create opinion: %v", err)
	}

	h.clock = 10_100
	flags := h.vote(t)
	if len(flags) != 1 {
		t.Fatalf("flags created = %d, want 1", len(flags))
	}

	flag := flags[0]
	if flag.TypeName != "vote" {
		t.Fatalf("flag type = %q", flag.TypeName)
	}
	wantStart, wantFinish := testCalendar.DayWindow(2112)
	if flag.StartTime != wantStart || flag.FinishTime == nil || *flag.FinishTime != wantFinish {
		t.Fatalf("flag window = %f..%v, want %f..%f", flag.StartTime, flag.FinishTime, wantStart, wantFinish)
	}
	if flag.Metadata.Instrument() != "chime" {
		t.Fatalf("flag instrument = %q", flag.Metadata.Instrument())
	}
	freq, err := flag.Metadata.Freq()
	if err != nil || len(freq) != 2 || freq[0] != 3 || freq[1] != 5 {
		t.Fatalf("flag freq = %v (%v)", freq, err)
	}

	voteTime, ok, err := h.repo.LatestVoteTimeForOpinion(context.Background(), opinion.ID, "hypnotoad")
	if err != nil || !ok || voteTime != 10_100 {
		t.Fatalf("vote for opinion = %f ok=%v err=%v", voteTime, ok, err)
	}
}

func TestRunSecondIdenticalRunIsIdempotent(t *testing.T) {
	h := setupHarness(t)
	// Entered less than the grace window before the vote, so the rerun's
	// low-water mark readmits this opinion.
	h.clock = 10_050
	h.opine(t, "alice", "bad", 2112)

	h.clock = 10_100
	if flags := h.vote(t); len(flags) != 1 {
		t.Fatalf("first run flags = %d, want 1", len(flags))
	}
	votes := h.countVotes(t)

	// Within the grace window the opinion is rescanned but its vote makes it
	// skippable, so nothing new is written.
	h.clock = 10_130
	if flags := h.vote(t); len(flags) != 0 {
		t.Fatalf("second run flags = %d, want 0", len(flags))
	}
	if got := h.countVotes(t); got != votes {
		t.Fatalf("second run votes = %d, want %d", got, votes)
	}
	if got := h.countFlags(t); got != 1 {
		t.Fatalf("flag rows = %d, want 1", got)
	}
}

func TestRunContestedOpinionGetsVoteButNoFlag(t *testing.T) {
	h := setupHarness(t)
	h.opine(t, "alice", "bad", 42)
	h.opine(t, "bob", "good", 42)

	h.clock = 10_100
	if flags := h.vote(t); len(flags) != 0 {
		t.Fatalf("contested run flags = %d, want 0", len(flags))
	}
	// Both opinions were considered and must carry vote records, so a rerun
	// does not pick them up again.
	if votes := h.countVotes(t); votes != 2 {
		t.Fatalf("votes = %d, want 2", votes)
	}

	h.clock = 10_130
	h.vote(t)
	if votes := h.countVotes(t); votes != 2 {
		t.Fatalf("votes after rerun = %d, want 2", votes)
	}
}

func TestRunConflictScopedToRevision(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	if _, err := h.repo.CreateRevision(ctx, "rev_01", nil); err != nil {
		t.Fatalf("create revision: %v", err)
	}
	h.opine(t, "alice", "bad", 42)
	if _, _, err := h.flagging.CreateOpinion(ctx, flagging.CreateOpinionInput{
		UserName:     "bob",
		Decision:     "good",
		TypeName:     "classification",
		LSD:          42,
		RevisionName: "rev_01",
	}); err != nil {
		t.Fatalf("create opinion: %v", err)
	}

	// bob's disagreement lives under another revision and must not veto.
	h.clock = 10_100
	if flags := h.vote(t); len(flags) != 1 {
		t.Fatalf("flags = %d, want 1", len(flags))
	}
}

func TestRunGoodAndUnsureProduceVotesOnly(t *testing.T) {
	h := setupHarness(t)
	h.opine(t, "alice", "good", 1)
	h.opine(t, "bob", "unsure", 2)

	h.clock = 10_100
	if flags := h.vote(t); len(flags) != 0 {
		t.Fatalf("flags = %d, want 0", len(flags))
	}
	if votes := h.countVotes(t); votes != 2 {
		t.Fatalf("votes = %d, want 2", votes)
	}
	if got := h.countFlags(t); got != 0 {
		t.Fatalf("flag rows = %d, want 0", got)
	}
}

func TestRunReconsidersEditedOpinion(t *testing.T) {
	h := setupHarness(t)
	opinion := h.opine(t, "alice", "good", 7)

	h.clock = 10_100
	h.vote(t)
	if got := h.countFlags(t); got != 0 {
		t.Fatalf("flags after good run = %d", got)
	}

	// The edit advances last_edit past the vote timestamp, so the next run
	// must consider the opinion again.
	h.clock = 10_200
	decision := "bad"
	if _, err := h.flagging.EditOpinion(context.Background(), flagging.EditOpinionInput{
		ID:       opinion.ID,
		Decision: &decision,
	}); err != nil {
		t.Fatalf("edit opinion: %v", err)
	}

	h.clock = 10_250
	if flags := h.vote(t); len(flags) != 1 {
		t.Fatalf("flags after edit = %d, want 1", len(flags))
	}
	if votes := h.countVotes(t); votes != 2 {
		t.Fatalf("votes = %d, want 2 (one per consideration)", votes)
	}
}

func TestRunUnknownMode(t *testing.T) {
	h := setupHarness(t)

	_, err := h.voting.Run(context.Background(), RunInput{Mode: "majority", RevisionName: "rev_00"})
	if !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("Run() error = %v, want ErrUnknownMode", err)
	}
}

func TestRunModeTooLongBeforeAnyQuery(t *testing.T) {
	h := setupHarness(t)

	_, err := h.voting.Run(context.Background(), RunInput{
		Mode:         strings.Repeat("x", MaxModeNameLen+1),
		RevisionName: "does-not-even-exist",
	})
	if !errors.Is(err, ErrModeTooLong) {
		t.Fatalf("Run() error = %v, want ErrModeTooLong", err)
	}
}

func TestRunUnknownRevision(t *testing.T) {
	h := setupHarness(t)

	_, err := h.voting.Run(context.Background(), RunInput{Mode: "hypnotoad", RevisionName: "rev_99"})
	if !errors.Is(err, ports.ErrRevisionNotFound) {
		t.Fatalf("Run() error = %v, want ErrRevisionNotFound", err)
	}
}

func TestRunRequiresVoteFlagType(t *testing.T) {
	h := setupHarness(t)
	if err := h.db.Where("1 = 1").Delete(&model.FlagType{}).Error; err != nil {
		t.Fatalf("delete flag types: %v", err)
	}

	_, err := h.voting.Run(context.Background(), RunInput{Mode: "hypnotoad", RevisionName: "rev_00"})
	if !errors.Is(err, ports.ErrFlagTypeNotFound) {
		t.Fatalf("Run() error = %v, want ErrFlagTypeNotFound", err)
	}
}
