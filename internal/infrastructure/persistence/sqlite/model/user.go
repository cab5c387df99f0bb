package model

type User struct {
	UserID uint64 `gorm:"column:user_id;primaryKey;autoIncrement"`
	Name   string `gorm:"column:name;type:varchar(255);not null;uniqueIndex"`
}

func (User) TableName() string {
	return "users"
}
