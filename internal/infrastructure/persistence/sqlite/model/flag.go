package model

import "gorm.io/datatypes"

type Flag struct {
	FlagID     uint64            `gorm:"column:flag_id;primaryKey;autoIncrement"`
	FlagTypeID uint64            `gorm:"column:flag_type_id;not null;index"`
	StartTime  float64           `gorm:"column:start_time;not null"`
	FinishTime *float64          `gorm:"column:finish_time"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata"`

	Type FlagType `gorm:"foreignKey:FlagTypeID;references:FlagTypeID"`
}

func (Flag) TableName() string {
	return "flags"
}
