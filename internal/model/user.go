package model

import (
	"time"
)

type User struct {
	Id       int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UserId   string `json:"user_id" gorm:"column:user_id;size:64;not null;uniqueIndex"`
	Nickname string `json:"nickname" gorm:"column:nickname;size:64;not null"`
	Email    string `json:"email" gorm:"column:email;size:128;not null;uniqueIndex"`
	Password string `json:"-" gorm:"column:password;size:128;not null"`
	IsAdmin  int8   `json:"is_admin" gorm:"column:is_admin;not null;default:0"`

	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
