package flagging

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"dataflag/internal/domain/dataflag"
	"dataflag/internal/infrastructure/persistence/sqlite/model"
	"dataflag/internal/infrastructure/persistence/sqlite/repository"
	"dataflag/internal/ports"
)

type harness struct {
	service *Service
	clock   float64
}

func setupService(t *testing.T) *harness {
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

	h := &harness{clock: 1000}
	repo := repository.NewDataflagRepository(db)
	h.service = NewService(repo, dataflag.ClientInfo{Name: "cdf-test", Version: "0.0.0"}).
		WithClock(func() float64 { return h.clock })

	ctx := context.Background()
	if _, err := h.service.CreateRevision(ctx, "rev_00", nil); err != nil {
		t.Fatalf("create revision: %v", err)
	}
	if _, err := h.service.CreateUser(ctx, "alice"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := h.service.CreateOpinionType(ctx, CreateTypeInput{Name: "classification"}); err != nil {
		t.Fatalf("create opinion type: %v", err)
	}
	if _, err := h.service.CreateFlagType(ctx, CreateTypeInput{Name: "bad_calibration"}); err != nil {
		t.Fatalf("create flag type: %v", err)
	}
	return h
}

func TestCreateFlagRejectsInvertedRange(t *testing.T) {
	h := setupService(t)

	finish := 100.0
	_, err := h.service.CreateFlag(context.Background(), CreateFlagInput{
		TypeName:   "bad_calibration",
		StartTime:  200,
		FinishTime: &finish,
	})
	if !errors.Is(err, dataflag.ErrInvalidTimeRange) {
		t.Fatalf("CreateFlag() error = %v, want ErrInvalidTimeRange", err)
	}
}

func TestCreateFlagRejectsUnknownInstrument(t *testing.T) {
	h := setupService(t)

	_, err := h.service.CreateFlag(context.Background(), CreateFlagInput{
		TypeName:   "bad_calibration",
		StartTime:  100,
		Instrument: "kko",
	})
	if !errors.Is(err, dataflag.ErrUnknownInstrument) {
		t.Fatalf("CreateFlag() error = %v, want ErrUnknownInstrument", err)
	}
}

func TestCreateFlagOpenEnded(t *testing.T) {
	h := setupService(t)

	flag, err := h.service.CreateFlag(context.Background(), CreateFlagInput{
		TypeName:    "bad_calibration",
		StartTime:   100,
		Instrument:  "pathfinder",
		Inputs:      []int{0, 255},
		Description: "correlator down",
		User:        "alice",
	})
	if err != nil {
		t.Fatalf("CreateFlag() error = %v", err)
	}
	if flag.FinishTime != nil {
		t.Fatalf("finish time = %v, want open", flag.FinishTime)
	}
	if flag.Metadata.Description() != "correlator down" || flag.Metadata.User() != "alice" {
		t.Fatalf("metadata = %v", flag.Metadata)
	}
}

func TestEditFlagMergesMetadata(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()

	flag, err := h.service.CreateFlag(ctx, CreateFlagInput{
		TypeName:   "bad_calibration",
		StartTime:  100,
		Instrument: "chime",
		Freq:       []int{3},
	})
	if err != nil {
		t.Fatalf("create flag: %v", err)
	}

	edited, err := h.service.EditFlag(ctx, EditFlagInput{
		ID:   flag.ID,
		Freq: []int{5, 7},
	})
	if err != nil {
		t.Fatalf("edit flag: %v", err)
	}
	if edited.Metadata.Instrument() != "chime" {
		t.Fatalf("instrument lost on edit: %v", edited.Metadata)
	}
	freq, err := edited.Metadata.Freq()
	if err != nil || len(freq) != 2 || freq[0] != 5 || freq[1] != 7 {
		t.Fatalf("freq = %v (%v)", freq, err)
	}
}

func TestListFlagsByActiveWindow(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()

	mkFlag := func(start float64, finish *float64) {
		t.Helper()
		if _, err := h.service.CreateFlag(ctx, CreateFlagInput{
			TypeName:   "bad_calibration",
			StartTime:  start,
			FinishTime: finish,
		}); err != nil {
			t.Fatalf("create flag: %v", err)
		}
	}
	finish := 200.0
	mkFlag(100, &finish) // ends before the window
	mkFlag(500, nil)     // open-ended, overlaps
	mkFlag(250, nil)

	after := 300.0
	flags, err := h.service.ListFlags(ctx, ListFlagsInput{ActiveAfter: &after})
	if err != nil {
		t.Fatalf("list flags: %v", err)
	}
	if len(flags) != 2 {
		t.Fatalf("flags active after %f = %d, want 2", after, len(flags))
	}
}

func TestCreateOpinionStampsTimes(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()

	h.clock = 1234
	opinion, created, err := h.service.CreateOpinion(ctx, CreateOpinionInput{
		UserName:     "alice",
		Decision:     "bad",
		TypeName:     "classification",
		LSD:          7,
		RevisionName: "rev_00",
	})
	if err != nil {
		t.Fatalf("create opinion: %v", err)
	}
	if !created {
		t.Fatalf("opinion not created")
	}
	if opinion.CreationTime != 1234 || opinion.LastEdit != 1234 {
		t.Fatalf("times = %f/%f, want 1234", opinion.CreationTime, opinion.LastEdit)
	}

	h.clock = 2000
	again, created, err := h.service.CreateOpinion(ctx, CreateOpinionInput{
		UserName:     "alice",
		Decision:     "good",
		TypeName:     "classification",
		LSD:          7,
		RevisionName: "rev_00",
	})
	if err != nil {
		t.Fatalf("re-create opinion: %v", err)
	}
	if created {
		t.Fatalf("duplicate opinion inserted")
	}
	if again.ID != opinion.ID || again.CreationTime != 1234 || again.LastEdit != 2000 {
		t.Fatalf("upsert = id %d times %f/%f", again.ID, again.CreationTime, again.LastEdit)
	}
	if again.Decision != dataflag.DecisionGood {
		t.Fatalf("decision = %s", again.Decision)
	}
}

func TestCreateOpinionRejectsBadDecision(t *testing.T) {
	h := setupService(t)

	_, _, err := h.service.CreateOpinion(context.Background(), CreateOpinionInput{
		UserName:     "alice",
		Decision:     "meh",
		TypeName:     "classification",
		LSD:          7,
		RevisionName: "rev_00",
	})
	if !errors.Is(err, dataflag.ErrInvalidDecision) {
		t.Fatalf("CreateOpinion() error = %v, want ErrInvalidDecision", err)
	}
}

func TestCreateOpinionUnknownUser(t *testing.T) {
	h := setupService(t)

	_, _, err := h.service.CreateOpinion(context.Background(), CreateOpinionInput{
		UserName:     "mallory",
		Decision:     "bad",
		TypeName:     "classification",
		LSD:          7,
		RevisionName: "rev_00",
	})
	if !errors.Is(err, ports.ErrUserNotFound) {
		t.Fatalf("CreateOpinion() error = %v, want ErrUserNotFound", err)
	}
}
