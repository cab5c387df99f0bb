package model

type Vote struct {
	VoteID     uint64  `gorm:"column:vote_id;primaryKey;autoIncrement"`
	Time       float64 `gorm:"column:time;not null;index"`
	Mode       string  `gorm:"column:mode;type:varchar(32);not null;index"`
	ClientID   uint64  `gorm:"column:client_id;not null"`
	RevisionID uint64  `gorm:"column:revision_id;not null;index"`
	FlagID     *uint64 `gorm:"column:flag_id"`
	LSD        int64   `gorm:"column:lsd;not null"`

	Client   Client   `gorm:"foreignKey:ClientID;references:ClientID"`
	Revision Revision `gorm:"foreignKey:RevisionID;references:RevisionID"`
	Flag     *Flag    `gorm:"foreignKey:FlagID;references:FlagID"`
}

func (Vote) TableName() string {
	return "votes"
}

// VoteOpinion links a vote to every opinion it considered.
type VoteOpinion struct {
	VoteID    uint64 `gorm:"column:vote_id;primaryKey;autoIncrement:false"`
	OpinionID uint64 `gorm:"column:opinion_id;primaryKey;autoIncrement:false"`
}

func (VoteOpinion) TableName() string {
	return "vote_opinions"
}
