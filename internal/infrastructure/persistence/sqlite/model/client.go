package model

type Client struct {
	ClientID uint64 `gorm:"column:client_id;primaryKey;autoIncrement"`
	Name     string `gorm:"column:client_name;type:varchar(255);not null;index:idx_clients_name_version"`
	Version  string `gorm:"column:client_version;type:varchar(64);not null;index:idx_clients_name_version"`
}

func (Client) TableName() string {
	return "clients"
}
