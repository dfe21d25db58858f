package model

import (
	"time"

	"gorm.io/gorm"
)

type FileStatus string

const (
	FileStatusUnsliced FileStatus = "unsliced"
	FileStatusSuccess  FileStatus = "success"
	FileStatusError    FileStatus = "error"
)

// Dimensionsはバウンディングボックス（mm）
type Dimensions struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FileStateはスライス状態。Unsliced / Sliced / Failed のどれか。
type FileState interface {
	Status() FileStatus
	isFileState()
}

type Unsliced struct{}

type Sliced struct {
	MassGrams  float64
	Dimensions Dimensions
}

type Failed struct {
	Detail string
}

func (Unsliced) Status() FileStatus { return FileStatusUnsliced }
func (Sliced) Status() FileStatus   { return FileStatusSuccess }
func (Failed) Status() FileStatus   { return FileStatusError }

func (Unsliced) isFileState() {}
func (Sliced) isFileState()   {}
func (Failed) isFileState()   {}

// アップロードされた3Dモデル1件
// 状態ごとの項目は State() / ApplyState() 経由で読み書きする。
type File struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      int64      `gorm:"not null;index" json:"user_id"`
	Name        string     `gorm:"type:varchar(255);not null" json:"name"`
	ContentType string     `gorm:"type:varchar(100)" json:"content_type"`
	SizeBytes   int64      `gorm:"not null" json:"size_bytes"`
	Digest      string     `gorm:"type:varchar(64);index" json:"digest"`
	Status      FileStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	//外部ストレージ
	BlobID  string `gorm:"type:varchar(512);not null" json:"-"`
	BlobURL string `gorm:"type:text" json:"-"`

	//決済側のカタログ登録
	CatalogEntryID string `gorm:"type:varchar(255)" json:"-"`

	//再スライスごとに+1
	SliceAttempt int    `gorm:"not null;default:0" json:"slice_attempt"`
	SliceJobID   string `gorm:"type:varchar(255)" json:"-"`

	MassGrams   *float64   `json:"-"`
	DimX        *float64   `json:"-"`
	DimY        *float64   `json:"-"`
	DimZ        *float64   `json:"-"`
	ErrorDetail *string    `gorm:"type:text" json:"-"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	DeleteAfter time.Time      `gorm:"not null;index" json:"delete_after"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// Stateは保存された列から状態を組み立てる。
// 列が欠けている壊れた行は Unsliced として扱う。
func (f File) State() FileState {
	switch f.Status {
	case FileStatusSuccess:
		if f.MassGrams == nil {
			return Unsliced{}
		}
		return Sliced{MassGrams: *f.MassGrams, Dimensions: Dimensions{X: deref(f.DimX), Y: deref(f.DimY), Z: deref(f.DimZ)}}
	case FileStatusError:
		detail := ""
		if f.ErrorDetail != nil {
			detail = *f.ErrorDetail
		}
		return Failed{Detail: detail}
	default:
		return Unsliced{}
	}
}

// ApplyStateは状態を列に書き込む。他の状態の列はクリアする。
func (f *File) ApplyState(s FileState, now time.Time) {
	f.MassGrams, f.DimX, f.DimY, f.DimZ = nil, nil, nil, nil
	f.ErrorDetail = nil
	f.ResolvedAt = nil

	switch v := s.(type) {
	case Sliced:
		mass, x, y, z := v.MassGrams, v.Dimensions.X, v.Dimensions.Y, v.Dimensions.Z
		f.MassGrams, f.DimX, f.DimY, f.DimZ = &mass, &x, &y, &z
		f.ResolvedAt = &now
	case Failed:
		detail := v.Detail
		f.ErrorDetail = &detail
		f.ResolvedAt = &now
	}
	f.Status = s.Status()
}

func (f File) IsTerminal() bool {
	return f.Status == FileStatusSuccess || f.Status == FileStatusError
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
