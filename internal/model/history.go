package model

import (
	"time"

	"gorm.io/gorm"
)

type SyncStatus string

const (
	StatusSuccess SyncStatus = "SUCCESS"
	StatusFailed  SyncStatus = "FAILED"
)

type History struct {
	gorm.Model
	Status     SyncStatus `gorm:"not null"`
	Root       string     `gorm:"not null;index"`
	Action     string     `gorm:"not null"`
	SrcPath    string     `gorm:"not null"`
	RemotePath string     `gorm:"not null"`
	RequestID  string
	Attempts   int
	ErrMsg     string
	SyncedAt   time.Time `gorm:"not null"`
}
