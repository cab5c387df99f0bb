package model

type Revision struct {
	RevisionID  uint64  `gorm:"column:revision_id;primaryKey;autoIncrement"`
	Name        string  `gorm:"column:name;type:varchar(32);not null;uniqueIndex"`
	Description *string `gorm:"column:description;type:text"`
}

func (Revision) TableName() string {
	return "revisions"
}
