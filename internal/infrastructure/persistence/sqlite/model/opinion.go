package model

import "gorm.io/datatypes"

type Opinion struct {
	OpinionID     uint64            `gorm:"column:opinion_id;primaryKey;autoIncrement"`
	OpinionTypeID uint64            `gorm:"column:opinion_type_id;not null;uniqueIndex:idx_opinions_type_user_lsd_rev"`
	UserID        uint64            `gorm:"column:user_id;not null;uniqueIndex:idx_opinions_type_user_lsd_rev"`
	Decision      string            `gorm:"column:decision;type:varchar(6);not null"`
	LSD           int64             `gorm:"column:lsd;not null;uniqueIndex:idx_opinions_type_user_lsd_rev;index:idx_opinions_lsd_revision"`
	RevisionID    uint64            `gorm:"column:revision_id;not null;uniqueIndex:idx_opinions_type_user_lsd_rev;index:idx_opinions_lsd_revision"`
	CreationTime  float64           `gorm:"column:creation_time;not null"`
	LastEdit      float64           `gorm:"column:last_edit;not null;index"`
	Notes         *string           `gorm:"column:notes;type:text"`
	ClientID      uint64            `gorm:"column:client_id;not null"`
	Metadata      datatypes.JSONMap `gorm:"column:metadata"`

	Type     OpinionType `gorm:"foreignKey:OpinionTypeID;references:OpinionTypeID"`
	User     User        `gorm:"foreignKey:UserID;references:UserID"`
	Revision Revision    `gorm:"foreignKey:RevisionID;references:RevisionID"`
	Client   Client      `gorm:"foreignKey:ClientID;references:ClientID"`
}

func (Opinion) TableName() string {
	return "opinions"
}
