package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"dataflag/internal/domain/dataflag"
	"dataflag/internal/infrastructure/persistence/sqlite/model"
	"dataflag/internal/ports"
)

func setupDataflagRepository(t *testing.T) *DataflagRepository {
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
	return NewDataflagRepository(db)
}

type fixture struct {
	revision    ports.Revision
	user        ports.User
	client      ports.Client
	opinionType ports.CatalogType
	flagType    ports.CatalogType
}

func setupFixture(t *testing.T, repo *DataflagRepository) fixture {
	t.Helper()
	ctx := context.Background()

	revision, err := repo.CreateRevision(ctx, "rev_00", nil)
	if err != nil {
		t.Fatalf("create revision: %v", err)
	}
	user, err := repo.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	client, err := repo.GetOrCreateClient(ctx, "cdf", "0.1.0")
	if err != nil {
		t.Fatalf("get or create client: %v", err)
	}
	opinionType, err := repo.CreateOpinionType(ctx, "vote", nil, nil)
	if err != nil {
		t.Fatalf("create opinion type: %v", err)
	}
	flagType, err := repo.CreateFlagType(ctx, "vote", nil, nil)
	if err != nil {
		t.Fatalf("create flag type: %v", err)
	}
	return fixture{
		revision:    revision,
		user:        user,
		client:      client,
		opinionType: opinionType,
		flagType:    flagType,
	}
}

func TestCreateRevisionDuplicateName(t *testing.T) {
	repo := setupDataflagRepository(t)
	ctx := context.Background()

	if _, err := repo.CreateRevision(ctx, "rev_00", nil); err != nil {
		t.Fatalf("create revision: %v", err)
	}
	_, err := repo.CreateRevision(ctx, "rev_00", nil)
	if !errors.Is(err, ports.ErrAlreadyExists) {
		t.Fatalf("CreateRevision() error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetRevisionByNameNotFound(t *testing.T) {
	repo := setupDataflagRepository(t)

	_, err := repo.GetRevisionByName(context.Background(), "missing")
	if !errors.Is(err, ports.ErrRevisionNotFound) {
		t.Fatalf("GetRevisionByName() error = %v, want ErrRevisionNotFound", err)
	}
}

func TestGetOrCreateClientReusesRow(t *testing.T) {
	repo := setupDataflagRepository(t)
	ctx := context.Background()

	first, err := repo.GetOrCreateClient(ctx, "cdf", "0.1.0")
	if err != nil {
		t.Fatalf("first get or create: %v", err)
	}
	second, err := repo.GetOrCreateClient(ctx, "cdf", "0.1.0")
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("client ids differ: %d != %d", first.ID, second.ID)
	}

	other, err := repo.GetOrCreateClient(ctx, "cdf", "0.2.0")
	if err != nil {
		t.Fatalf("third get or create: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("different version reused client %d", first.ID)
	}
}

func TestSaveOpinionUpdatesInsteadOfInserting(t *testing.T) {
	repo := setupDataflagRepository(t)
	fix := setupFixture(t, repo)
	ctx := context.Background()

	create := ports.OpinionCreate{
		TypeID:       fix.opinionType.ID,
		UserID:       fix.user.ID,
		Decision:     dataflag.DecisionBad,
		LSD:          2112,
		RevisionID:   fix.revision.ID,
		CreationTime: 1000,
		ClientID:     fix.client.ID,
	}

	first, created, err := repo.SaveOpinion(ctx, create)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if !created {
		t.Fatalf("first save did not insert")
	}
	if first.LastEdit != 1000 {
		t.Fatalf("first save last_edit = %f", first.LastEdit)
	}

	create.Decision = dataflag.DecisionGood
	create.CreationTime = 2000
	second, created, err := repo.SaveOpinion(ctx, create)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if created {
		t.Fatalf("second save inserted a duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("second save produced new row %d", second.ID)
	}
	if second.Decision != dataflag.DecisionGood {
		t.Fatalf("second save decision = %s", second.Decision)
	}
	if second.CreationTime != 1000 {
		t.Fatalf("creation time changed to %f", second.CreationTime)
	}
	if second.LastEdit != 2000 {
		t.Fatalf("last_edit = %f, want 2000", second.LastEdit)
	}

	all, err := repo.ListOpinions(ctx, ports.OpinionFilter{})
	if err != nil {
		t.Fatalf("list opinions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("opinion rows = %d, want 1", len(all))
	}
}

func TestUpdateOpinionNeverLowersLastEdit(t *testing.T) {
	repo := setupDataflagRepository(t)
	fix := setupFixture(t, repo)
	ctx := context.Background()

	opinion, _, err := repo.SaveOpinion(ctx, ports.OpinionCreate{
		TypeID:       fix.opinionType.ID,
		UserID:       fix.user.ID,
		Decision:     dataflag.DecisionBad,
		LSD:          5,
		RevisionID:   fix.revision.ID,
		CreationTime: 1000,
		ClientID:     fix.client.ID,
	})
	if err != nil {
		t.Fatalf("save opinion: %v", err)
	}

	decision := dataflag.DecisionUnsure
	edited, err := repo.UpdateOpinion(ctx, opinion.ID, ports.OpinionEdit{
		Decision: &decision,
		EditTime: 500, // stale clock
	})
	if err != nil {
		t.Fatalf("update opinion: %v", err)
	}
	if edited.LastEdit < 1000 {
		t.Fatalf("last_edit moved backwards: %f", edited.LastEdit)
	}
	if edited.Decision != dataflag.DecisionUnsure {
		t.Fatalf("decision = %s", edited.Decision)
	}
}

func TestCountConflictingScopedToRevision(t *testing.T) {
	repo := setupDataflagRepository(t)
	fix := setupFixture(t, repo)
	ctx := context.Background()

	otherRevision, err := repo.CreateRevision(ctx, "rev_01", nil)
	if err != nil {
		t.Fatalf("create revision: %v", err)
	}
	bob, err := repo.CreateUser(ctx, "bob")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	save := func(userID, revisionID uint64, decision dataflag.Decision) {
		t.Helper()
		if _, _, err := repo.SaveOpinion(ctx, ports.OpinionCreate{
			TypeID:       fix.opinionType.ID,
			UserID:       userID,
			Decision:     decision,
			LSD:          42,
			RevisionID:   revisionID,
			CreationTime: 1000,
			ClientID:     fix.client.ID,
		}); err != nil {
			t.Fatalf("save opinion: %v", err)
		}
	}

	save(fix.user.ID, fix.revision.ID, dataflag.DecisionBad)
	save(bob.ID, otherRevision.ID, dataflag.DecisionGood)

	count, err := repo.CountConflicting(ctx, 42, fix.revision.ID, dataflag.DecisionBad)
	if err != nil {
		t.Fatalf("count conflicting: %v", err)
	}
	if count != 0 {
		t.Fatalf("conflicts across revisions counted: %d", count)
	}

	save(bob.ID, fix.revision.ID, dataflag.DecisionGood)
	count, err = repo.CountConflicting(ctx, 42, fix.revision.ID, dataflag.DecisionBad)
	if err != nil {
		t.Fatalf("count conflicting: %v", err)
	}
	if count != 1 {
		t.Fatalf("conflicts = %d, want 1", count)
	}
}

func TestFlagRoundTrip(t *testing.T) {
	repo := setupDataflagRepository(t)
	fix := setupFixture(t, repo)
	ctx := context.Background()

	finish := 2000.5
	created, err := repo.CreateFlag(ctx, ports.FlagCreate{
		TypeID:     fix.flagType.ID,
		StartTime:  1000.25,
		FinishTime: &finish,
		Metadata: dataflag.Metadata{
			"instrument": "chime",
			"freq":       []any{3, 5},
			"note":       "opaque extra key",
		},
	})
	if err != nil {
		t.Fatalf("create flag: %v", err)
	}

	read, err := repo.GetFlag(ctx, created.ID)
	if err != nil {
		t.Fatalf("get flag: %v", err)
	}
	if read.TypeName != "vote" {
		t.Fatalf("type name = %q", read.TypeName)
	}
	if read.StartTime != 1000.25 || read.FinishTime == nil || *read.FinishTime != 2000.5 {
		t.Fatalf("time range = %f..%v", read.StartTime, read.FinishTime)
	}
	if read.Metadata.Instrument() != "chime" {
		t.Fatalf("instrument = %q", read.Metadata.Instrument())
	}
	freq, err := read.Metadata.Freq()
	if err != nil {
		t.Fatalf("freq: %v", err)
	}
	if len(freq) != 2 || freq[0] != 3 || freq[1] != 5 {
		t.Fatalf("freq = %v", freq)
	}
	if read.Metadata["note"] != "opaque extra key" {
		t.Fatalf("extra key lost: %v", read.Metadata["note"])
	}
}

func TestMaxVoteTimeIsModeGlobal(t *testing.T) {
	repo := setupDataflagRepository(t)
	fix := setupFixture(t, repo)
	ctx := context.Background()

	if _, ok, err := repo.MaxVoteTime(ctx, "hypnotoad"); err != nil || ok {
		t.Fatalf("MaxVoteTime() = ok=%v err=%v, want no votes", ok, err)
	}

	otherRevision, err := repo.CreateRevision(ctx, "rev_01", nil)
	if err != nil {
		t.Fatalf("create revision: %v", err)
	}

	for _, vote := range []ports.VoteCreate{
		{Time: 100, Mode: "hypnotoad", ClientID: fix.client.ID, RevisionID: fix.revision.ID, LSD: 1},
		{Time: 300, Mode: "hypnotoad", ClientID: fix.client.ID, RevisionID: otherRevision.ID, LSD: 2},
		{Time: 900, Mode: "other", ClientID: fix.client.ID, RevisionID: fix.revision.ID, LSD: 3},
	} {
		if _, err := repo.CreateVote(ctx, vote); err != nil {
			t.Fatalf("create vote: %v", err)
		}
	}

	max, ok, err := repo.MaxVoteTime(ctx, "hypnotoad")
	if err != nil {
		t.Fatalf("max vote time: %v", err)
	}
	if !ok || max != 300 {
		t.Fatalf("MaxVoteTime() = %f ok=%v, want 300 (mode-global, other modes excluded)", max, ok)
	}
}

func TestLatestVoteTimeForOpinion(t *testing.T) {
	repo := setupDataflagRepository(t)
	fix := setupFixture(t, repo)
	ctx := context.Background()

	opinion, _, err := repo.SaveOpinion(ctx, ports.OpinionCreate{
		TypeID:       fix.opinionType.ID,
		UserID:       fix.user.ID,
		Decision:     dataflag.DecisionBad,
		LSD:          7,
		RevisionID:   fix.revision.ID,
		CreationTime: 1000,
		ClientID:     fix.client.ID,
	})
	if err != nil {
		t.Fatalf("save opinion: %v", err)
	}

	if _, ok, err := repo.LatestVoteTimeForOpinion(ctx, opinion.ID, "hypnotoad"); err != nil || ok {
		t.Fatalf("LatestVoteTimeForOpinion() = ok=%v err=%v, want none", ok, err)
	}

	vote, err := repo.CreateVote(ctx, ports.VoteCreate{
		Time: 1500, Mode: "hypnotoad", ClientID: fix.client.ID, RevisionID: fix.revision.ID, LSD: 7,
	})
	if err != nil {
		t.Fatalf("create vote: %v", err)
	}
	if err := repo.LinkVoteOpinion(ctx, vote.ID, opinion.ID); err != nil {
		t.Fatalf("link vote opinion: %v", err)
	}

	voteTime, ok, err := repo.LatestVoteTimeForOpinion(ctx, opinion.ID, "hypnotoad")
	if err != nil {
		t.Fatalf("latest vote time: %v", err)
	}
	if !ok || voteTime != 1500 {
		t.Fatalf("LatestVoteTimeForOpinion() = %f ok=%v, want 1500", voteTime, ok)
	}

	if _, ok, err := repo.LatestVoteTimeForOpinion(ctx, opinion.ID, "other"); err != nil || ok {
		t.Fatalf("other mode should have no vote, got ok=%v err=%v", ok, err)
	}
}
