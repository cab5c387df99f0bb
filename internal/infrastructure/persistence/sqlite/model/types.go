package model

import "gorm.io/datatypes"

// FlagType and OpinionType share the same catalog shape but live in
// separate tables so their referential integrity stays independent.

type FlagType struct {
	FlagTypeID  uint64            `gorm:"column:flag_type_id;primaryKey;autoIncrement"`
	Name        string            `gorm:"column:name;type:varchar(64);not null;uniqueIndex"`
	Description *string           `gorm:"column:description;type:text"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata"`
}

func (FlagType) TableName() string {
	return "flag_types"
}

type OpinionType struct {
	OpinionTypeID uint64            `gorm:"column:opinion_type_id;primaryKey;autoIncrement"`
	Name          string            `gorm:"column:name;type:varchar(64);not null;uniqueIndex"`
	Description   *string           `gorm:"column:description;type:text"`
	Metadata      datatypes.JSONMap `gorm:"column:metadata"`
}

func (OpinionType) TableName() string {
	return "opinion_types"
}
