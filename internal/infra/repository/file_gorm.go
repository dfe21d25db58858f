package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FileGormRepository struct {
	db *gorm.DB
}

func NewFileGormRepository(db *gorm.DB) *FileGormRepository {
	return &FileGormRepository{db: db}
}

func (r *FileGormRepository) Create(ctx context.Context, f model.File) error {
	return r.db.WithContext(ctx).Create(&f).Error
}

func (r *FileGormRepository) FindByID(ctx context.Context, id string) (model.File, error) {
	var f model.File
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.File{}, repo.ErrNotFound
	}
	if err != nil {
		return model.File{}, err
	}
	return f, nil
}

func (r *FileGormRepository) FindByIDs(ctx context.Context, ids []string) ([]model.File, error) {
	if len(ids) == 0 {
		return []model.File{}, nil
	}
	var files []model.File
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&files).Error; err != nil {
		return []model.File{}, err
	}
	return files, nil
}

// 古い順
func (r *FileGormRepository) ListUnsliced(ctx context.Context, limit int) ([]model.File, error) {
	var files []model.File
	err := r.db.WithContext(ctx).
		Where("status = ?", model.FileStatusUnsliced).
		Order("created_at asc").
		Limit(limit).
		Find(&files).Error
	if err != nil {
		return []model.File{}, err
	}
	return files, nil
}

func (r *FileGormRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.File, error) {
	var files []model.File
	err := r.db.WithContext(ctx).
		Where("delete_after <= ?", now).
		Order("delete_after asc").
		Limit(limit).
		Find(&files).Error
	if err != nil {
		return []model.File{}, err
	}
	return files, nil
}

func (r *FileGormRepository) SetJob(ctx context.Context, id string, attempt int, jobID string) error {
	return r.db.WithContext(ctx).
		Model(&model.File{}).
		Where("id = ? AND slice_attempt = ? AND status = ?", id, attempt, model.FileStatusUnsliced).
		Update("slice_job_id", jobID).Error
}

func (r *FileGormRepository) ResetForReslice(ctx context.Context, id string, now time.Time) (model.File, error) {
	var f model.File

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&f).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repo.ErrNotFound
			}
			return err
		}

		f.ApplyState(model.Unsliced{}, now)
		f.SliceAttempt++
		f.SliceJobID = ""
		f.UpdatedAt = now

		return tx.Model(&model.File{}).Where("id = ?", id).Updates(fileStateColumns(f, map[string]interface{}{
			"slice_attempt": f.SliceAttempt,
			"slice_job_id":  "",
		})).Error
	})
	if err != nil {
		return model.File{}, err
	}
	return f, nil
}

// 条件付きUPDATEで「最初に書いた結果」だけ残す。削除済みの行も0件になる。
func (r *FileGormRepository) Resolve(ctx context.Context, id string, attempt int, state model.FileState, now time.Time) (bool, error) {
	if state.Status() == model.FileStatusUnsliced {
		return false, errors.New("resolve requires a terminal state")
	}

	var f model.File
	f.ApplyState(state, now)
	f.UpdatedAt = now

	res := r.db.WithContext(ctx).
		Model(&model.File{}).
		Where("id = ? AND status = ? AND slice_attempt = ?", id, model.FileStatusUnsliced, attempt).
		Updates(fileStateColumns(f, nil))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *FileGormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.File{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 状態の列をまとめる（nilはNULLで上書き）
func fileStateColumns(f model.File, extra map[string]interface{}) map[string]interface{} {
	cols := map[string]interface{}{
		"status":       f.Status,
		"mass_grams":   f.MassGrams,
		"dim_x":        f.DimX,
		"dim_y":        f.DimY,
		"dim_z":        f.DimZ,
		"error_detail": f.ErrorDetail,
		"resolved_at":  f.ResolvedAt,
		"updated_at":   f.UpdatedAt,
	}
	for k, v := range extra {
		cols[k] = v
	}
	return cols
}
