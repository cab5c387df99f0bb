// Package flagging holds the administrative usecases around the dataflag
// store: revision, user and type catalogs, direct flag entry, and the
// opinion ledger. The voting engine lives in usecase/voting.
package flagging

import (
	"context"
	"fmt"
	"time"

	"dataflag/internal/domain/dataflag"
	"dataflag/internal/ports"
)

type Service struct {
	repo   ports.DataflagRepository
	client dataflag.ClientInfo
	now    func() float64
}

func NewService(repo ports.DataflagRepository, client dataflag.ClientInfo) *Service {
	return &Service{
		repo:   repo,
		client: client,
		now:    unixNow,
	}
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// WithClock replaces the time source; tests use it for deterministic stamps.
func (s *Service) WithClock(now func() float64) *Service {
	s.now = now
	return s
}

// Revisions

func (s *Service) CreateRevision(ctx context.Context, name string, description *string) (ports.Revision, error) {
	return s.repo.CreateRevision(ctx, name, description)
}

func (s *Service) ListRevisions(ctx context.Context) ([]ports.Revision, error) {
	return s.repo.ListRevisions(ctx)
}

func (s *Service) GetRevision(ctx context.Context, name string) (ports.Revision, error) {
	return s.repo.GetRevisionByName(ctx, name)
}

// Users

func (s *Service) CreateUser(ctx context.Context, name string) (ports.User, error) {
	return s.repo.CreateUser(ctx, name)
}

func (s *Service) ListUsers(ctx context.Context) ([]ports.User, error) {
	return s.repo.ListUsers(ctx)
}

// Type catalogs

type CreateTypeInput struct {
	Name        string
	Description *string
	Metadata    dataflag.Metadata
}

func (s *Service) CreateFlagType(ctx context.Context, input CreateTypeInput) (ports.CatalogType, error) {
	if err := input.Metadata.Validate(); err != nil {
		return ports.CatalogType{}, err
	}
	return s.repo.CreateFlagType(ctx, input.Name, input.Description, input.Metadata)
}

func (s *Service) ListFlagTypes(ctx context.Context) ([]ports.CatalogType, error) {
	return s.repo.ListFlagTypes(ctx)
}

func (s *Service) GetFlagType(ctx context.Context, name string) (ports.CatalogType, error) {
	return s.repo.GetFlagTypeByName(ctx, name)
}

func (s *Service) CreateOpinionType(ctx context.Context, input CreateTypeInput) (ports.CatalogType, error) {
	if err := input.Metadata.Validate(); err != nil {
		return ports.CatalogType{}, err
	}
	return s.repo.CreateOpinionType(ctx, input.Name, input.Description, input.Metadata)
}

func (s *Service) ListOpinionTypes(ctx context.Context) ([]ports.CatalogType, error) {
	return s.repo.ListOpinionTypes(ctx)
}

func (s *Service) GetOpinionType(ctx context.Context, name string) (ports.CatalogType, error) {
	return s.repo.GetOpinionTypeByName(ctx, name)
}

// Flags

type CreateFlagInput struct {
	TypeName    string
	StartTime   float64
	FinishTime  *float64
	Instrument  string
	Freq        []int
	Inputs      []int
	Description string
	User        string
	Extra       dataflag.Metadata
}

func (s *Service) CreateFlag(ctx context.Context, input CreateFlagInput) (ports.Flag, error) {
	if input.FinishTime != nil && *input.FinishTime < input.StartTime {
		return ports.Flag{}, fmt.Errorf("%w: finish %f < start %f",
			dataflag.ErrInvalidTimeRange, *input.FinishTime, input.StartTime)
	}

	metadata := dataflag.BuildMetadata(input.Instrument, input.Freq, input.Inputs, input.Description, input.User, input.Extra)
	if err := metadata.Validate(); err != nil {
		return ports.Flag{}, err
	}

	flagType, err := s.repo.GetFlagTypeByName(ctx, input.TypeName)
	if err != nil {
		return ports.Flag{}, err
	}

	return s.repo.CreateFlag(ctx, ports.FlagCreate{
		TypeID:     flagType.ID,
		StartTime:  input.StartTime,
		FinishTime: input.FinishTime,
		Metadata:   metadata,
	})
}

type EditFlagInput struct {
	ID          uint64
	TypeName    *string
	StartTime   *float64
	FinishTime  *float64
	Instrument  string
	Freq        []int
	Inputs      []int
	Description string
	User        string
	Extra       dataflag.Metadata
}

// EditFlag is the manual administrative path; the voting engine never
// mutates flags after creation.
func (s *Service) EditFlag(ctx context.Context, input EditFlagInput) (ports.Flag, error) {
	flag, err := s.repo.GetFlag(ctx, input.ID)
	if err != nil {
		return ports.Flag{}, err
	}

	if input.TypeName != nil {
		flagType, err := s.repo.GetFlagTypeByName(ctx, *input.TypeName)
		if err != nil {
			return ports.Flag{}, err
		}
		flag.TypeID = flagType.ID
		flag.TypeName = flagType.Name
	}
	if input.StartTime != nil {
		flag.StartTime = *input.StartTime
	}
	if input.FinishTime != nil {
		flag.FinishTime = input.FinishTime
	}
	if flag.FinishTime != nil && *flag.FinishTime < flag.StartTime {
		return ports.Flag{}, fmt.Errorf("%w: finish %f < start %f",
			dataflag.ErrInvalidTimeRange, *flag.FinishTime, flag.StartTime)
	}

	overlay := dataflag.BuildMetadata(input.Instrument, input.Freq, input.Inputs, input.Description, input.User, input.Extra)
	if len(overlay) > 0 {
		flag.Metadata = flag.Metadata.Merge(overlay)
	}
	if err := flag.Metadata.Validate(); err != nil {
		return ports.Flag{}, err
	}

	if err := s.repo.UpdateFlag(ctx, flag); err != nil {
		return ports.Flag{}, err
	}
	return s.repo.GetFlag(ctx, input.ID)
}

type ListFlagsInput struct {
	TypeName     string
	ActiveAfter  *float64
	ActiveBefore *float64
}

func (s *Service) ListFlags(ctx context.Context, input ListFlagsInput) ([]ports.Flag, error) {
	filter := ports.FlagFilter{
		ActiveAfter:  input.ActiveAfter,
		ActiveBefore: input.ActiveBefore,
	}
	if input.TypeName != "" {
		flagType, err := s.repo.GetFlagTypeByName(ctx, input.TypeName)
		if err != nil {
			return nil, err
		}
		filter.TypeID = &flagType.ID
	}
	return s.repo.ListFlags(ctx, filter)
}

func (s *Service) GetFlag(ctx context.Context, id uint64) (ports.Flag, error) {
	return s.repo.GetFlag(ctx, id)
}

// Opinions

type CreateOpinionInput struct {
	UserName     string
	Decision     string
	TypeName     string
	LSD          int64
	RevisionName string
	Notes        *string
	Instrument   string
	Freq         []int
	Inputs       []int
	Extra        dataflag.Metadata
}

// CreateOpinion records a judgment. When an opinion already exists for the
// same (type, user, lsd, revision) the row is updated in place and its
// last_edit advances; a duplicate is never inserted.
func (s *Service) CreateOpinion(ctx context.Context, input CreateOpinionInput) (ports.Opinion, bool, error) {
	decision, err := dataflag.ParseDecision(input.Decision)
	if err != nil {
		return ports.Opinion{}, false, err
	}

	metadata := dataflag.BuildMetadata(input.Instrument, input.Freq, input.Inputs, "", "", input.Extra)
	if err := metadata.Validate(); err != nil {
		return ports.Opinion{}, false, err
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	opinionType, err := s.repo.GetOpinionTypeByName(ctx, input.TypeName)
	if err != nil {
		return ports.Opinion{}, false, err
	}
	user, err := s.repo.GetUserByName(ctx, input.UserName)
	if err != nil {
		return ports.Opinion{}, false, err
	}
	revision, err := s.repo.GetRevisionByName(ctx, input.RevisionName)
	if err != nil {
		return ports.Opinion{}, false, err
	}
	client, err := s.repo.GetOrCreateClient(ctx, s.client.Name, s.client.Version)
	if err != nil {
		return ports.Opinion{}, false, err
	}

	return s.repo.SaveOpinion(ctx, ports.OpinionCreate{
		TypeID:       opinionType.ID,
		UserID:       user.ID,
		Decision:     decision,
		LSD:          input.LSD,
		RevisionID:   revision.ID,
		CreationTime: s.now(),
		Notes:        input.Notes,
		ClientID:     client.ID,
		Metadata:     metadata,
	})
}

type EditOpinionInput struct {
	ID       uint64
	Decision *string
	TypeName *string
	LSD      *int64
	Notes    *string
}

// EditOpinion mutates decision, type, lsd or notes. Authorship is fixed:
// there is deliberately no way to move an opinion to another user.
func (s *Service) EditOpinion(ctx context.Context, input EditOpinionInput) (ports.Opinion, error) {
	edit := ports.OpinionEdit{
		LSD:      input.LSD,
		Notes:    input.Notes,
		EditTime: s.now(),
	}

	if input.Decision != nil {
		decision, err := dataflag.ParseDecision(*input.Decision)
		if err != nil {
			return ports.Opinion{}, err
		}
		edit.Decision = &decision
	}
	if input.TypeName != nil {
		opinionType, err := s.repo.GetOpinionTypeByName(ctx, *input.TypeName)
		if err != nil {
			return ports.Opinion{}, err
		}
		edit.TypeID = &opinionType.ID
	}

	return s.repo.UpdateOpinion(ctx, input.ID, edit)
}

type ListOpinionsInput struct {
	RevisionName string
	UserName     string
	LSD          *int64
}

func (s *Service) ListOpinions(ctx context.Context, input ListOpinionsInput) ([]ports.Opinion, error) {
	filter := ports.OpinionFilter{LSD: input.LSD}
	if input.RevisionName != "" {
		revision, err := s.repo.GetRevisionByName(ctx, input.RevisionName)
		if err != nil {
			return nil, err
		}
		filter.RevisionID = &revision.ID
	}
	if input.UserName != "" {
		user, err := s.repo.GetUserByName(ctx, input.UserName)
		if err != nil {
			return nil, err
		}
		filter.UserID = &user.ID
	}
	return s.repo.ListOpinions(ctx, filter)
}

func (s *Service) GetOpinion(ctx context.Context, id uint64) (ports.Opinion, error) {
	return s.repo.GetOpinion(ctx, id)
}
