package ports

import (
	"context"
	"errors"

	"dataflag/internal/domain/dataflag"
)

var (
	ErrRevisionNotFound    = errors.New("revision not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrFlagTypeNotFound    = errors.New("flag type not found")
	ErrOpinionTypeNotFound = errors.New("opinion type not found")
	ErrFlagNotFound        = errors.New("flag not found")
	ErrOpinionNotFound     = errors.New("opinion not found")
	ErrAlreadyExists       = errors.New("record already exists")
)

type Revision struct {
	ID          uint64
	Name        string
	Description *string
}

type User struct {
	ID   uint64
	Name string
}

type Client struct {
	ID      uint64
	Name    string
	Version string
}

// CatalogType is a flag or opinion type catalog entry.
type CatalogType struct {
	ID          uint64
	Name        string
	Description *string
	Metadata    dataflag.Metadata
}

type Flag struct {
	ID         uint64
	TypeID     uint64
	TypeName   string
	StartTime  float64
	FinishTime *float64
	Metadata   dataflag.Metadata
}

type FlagCreate struct {
	TypeID     uint64
	StartTime  float64
	FinishTime *float64
	Metadata   dataflag.Metadata
}

// FlagFilter selects flags overlapping [ActiveAfter, ActiveBefore].
type FlagFilter struct {
	TypeID       *uint64
	ActiveAfter  *float64
	ActiveBefore *float64
}

type Opinion struct {
	ID           uint64
	TypeID       uint64
	TypeName     string
	UserID       uint64
	UserName     string
	Decision     dataflag.Decision
	LSD          int64
	RevisionID   uint64
	RevisionName string
	CreationTime float64
	LastEdit     float64
	Notes        *string
	ClientID     uint64
	Metadata     dataflag.Metadata
}

type OpinionCreate struct {
	TypeID       uint64
	UserID       uint64
	Decision     dataflag.Decision
	LSD          int64
	RevisionID   uint64
	CreationTime float64
	Notes        *string
	ClientID     uint64
	Metadata     dataflag.Metadata
}

// OpinionEdit carries the mutable opinion fields; nil means unchanged.
// The user is deliberately absent: authorship never changes.
type OpinionEdit struct {
	TypeID   *uint64
	Decision *dataflag.Decision
	LSD      *int64
	Notes    *string
	EditTime float64
}

type OpinionFilter struct {
	RevisionID *uint64
	UserID     *uint64
	LSD        *int64
}

type Vote struct {
	ID         uint64
	Time       float64
	Mode       string
	ClientID   uint64
	RevisionID uint64
	FlagID     *uint64
	LSD        int64
}

type VoteCreate struct {
	Time       float64
	Mode       string
	ClientID   uint64
	RevisionID uint64
	FlagID     *uint64
	LSD        int64
}

type DataflagReadRepository interface {
	ListRevisions(ctx context.Context) ([]Revision, error)
	GetRevisionByName(ctx context.Context, name string) (Revision, error)

	ListUsers(ctx context.Context) ([]User, error)
	GetUserByName(ctx context.Context, name string) (User, error)

	ListFlagTypes(ctx context.Context) ([]CatalogType, error)
	GetFlagTypeByName(ctx context.Context, name string) (CatalogType, error)
	ListOpinionTypes(ctx context.Context) ([]CatalogType, error)
	GetOpinionTypeByName(ctx context.Context, name string) (CatalogType, error)

	GetFlag(ctx context.Context, id uint64) (Flag, error)
	ListFlags(ctx context.Context, filter FlagFilter) ([]Flag, error)

	GetOpinion(ctx context.Context, id uint64) (Opinion, error)
	ListOpinions(ctx context.Context, filter OpinionFilter) ([]Opinion, error)

	// MaxVoteTime returns the newest vote time recorded for a mode across
	// all revisions. The second return is false when no vote exists yet.
	MaxVoteTime(ctx context.Context, mode string) (float64, bool, error)

	// ListOpinionsSince returns the opinions of one revision whose last
	// edit is at or after minLastEdit.
	ListOpinionsSince(ctx context.Context, revisionID uint64, minLastEdit float64) ([]Opinion, error)

	// CountConflicting counts opinions for the same LSD and revision whose
	// decision differs from the given one.
	CountConflicting(ctx context.Context, lsd int64, revisionID uint64, decision dataflag.Decision) (int64, error)

	// LatestVoteTimeForOpinion returns the newest vote time linked to an
	// opinion under a mode. The second return is false when the opinion has
	// never been considered by that mode.
	LatestVoteTimeForOpinion(ctx context.Context, opinionID uint64, mode string) (float64, bool, error)
}

type DataflagRepository interface {
	DataflagReadRepository

	CreateRevision(ctx context.Context, name string, description *string) (Revision, error)
	CreateUser(ctx context.Context, name string) (User, error)
	GetOrCreateClient(ctx context.Context, name, version string) (Client, error)

	CreateFlagType(ctx context.Context, name string, description *string, metadata dataflag.Metadata) (CatalogType, error)
	CreateOpinionType(ctx context.Context, name string, description *string, metadata dataflag.Metadata) (CatalogType, error)

	CreateFlag(ctx context.Context, input FlagCreate) (Flag, error)
	UpdateFlag(ctx context.Context, flag Flag) error

	// SaveOpinion creates an opinion, or updates the existing row when one
	// already exists for (type, user, lsd, revision). The bool reports
	// whether a new row was inserted.
	SaveOpinion(ctx context.Context, input OpinionCreate) (Opinion, bool, error)
	UpdateOpinion(ctx context.Context, id uint64, edit OpinionEdit) (Opinion, error)

	CreateVote(ctx context.Context, input VoteCreate) (Vote, error)
	LinkVoteOpinion(ctx context.Context, voteID, opinionID uint64) error
}
