package model

import (
	"time"
)

// Transport is an access protocol offering (rdp, spice, ...) with OS and
// source-network compatibility filters.
type Transport struct {
	Id       int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Uuid     string `json:"uuid" gorm:"column:uuid;size:64;not null;uniqueIndex"`
	Name     string `json:"name" gorm:"column:name;size:128;not null"`
	Comments string `json:"comments" gorm:"column:comments;size:255"`
	Protocol string `json:"protocol" gorm:"column:protocol;size:32;not null"`
	Priority int    `json:"priority" gorm:"column:priority;not null;default:0"`

	// AllowedOses is a csv of os tags (empty allows all); NetFilter a csv of
	// CIDRs applied per NetFilterMode
	AllowedOses   string `json:"allowed_oses" gorm:"column:allowed_oses;size:255"`
	NetFilter     string `json:"net_filter" gorm:"column:net_filter;size:512"`
	NetFilterMode string `json:"net_filter_mode" gorm:"column:net_filter_mode;size:16;not null;default:'allow'"`

	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (Transport) TableName() string {
	return "transports"
}

const (
	NetFilterModeAllow = "allow"
	NetFilterModeDeny  = "deny"
)
