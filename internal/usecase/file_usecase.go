package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/domain/pricing"
	"storefront/internal/external"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// 受け付ける拡張子
var allowedExtensions = map[string]bool{
	".stl": true,
	".obj": true,
	".3mf": true,
}

const (
	maxBatchIDs = 100
	purgeBatch  = 100
)

type FileConfig struct {
	Retention      time.Duration
	MaxUploadBytes int64
}

type FileUsecase struct {
	tx         repo.TransactionManager
	files      repo.FileRepository
	carts      repo.CartItemRepository
	catalog    repo.CatalogRepository
	blobs      external.BlobStore
	payments   external.PaymentService
	dispatcher SliceDispatcher
	watcher    FileWatcher
	notifier   CartPublisher
	ids        IDGenerator
	clock      Clock
	cfg        FileConfig
	logger     *zap.Logger
}

func NewFileUsecase(
	tx repo.TransactionManager,
	files repo.FileRepository,
	carts repo.CartItemRepository,
	catalog repo.CatalogRepository,
	blobs external.BlobStore,
	payments external.PaymentService,
	dispatcher SliceDispatcher,
	watcher FileWatcher,
	notifier CartPublisher,
	ids IDGenerator,
	clock Clock,
	cfg FileConfig,
	logger *zap.Logger,
) *FileUsecase {
	return &FileUsecase{
		tx:         tx,
		files:      files,
		carts:      carts,
		catalog:    catalog,
		blobs:      blobs,
		payments:   payments,
		dispatcher: dispatcher,
		watcher:    watcher,
		notifier:   notifier,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

type IngestInput struct {
	Name        string
	ContentType string
	Data        []byte
}

type FileOutput struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	SizeBytes    int64             `json:"size_bytes"`
	Status       model.FileStatus  `json:"status"`
	SliceAttempt int               `json:"slice_attempt"`
	MassGrams    *float64          `json:"mass_grams,omitempty"`
	Dimensions   *model.Dimensions `json:"dimensions,omitempty"`
	ErrorDetail  *string           `json:"error_detail,omitempty"`
	// 既定の品質・先頭の材料での単価（unslicedは最低価格、errorは無し）
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	DeleteAfter time.Time        `json:"delete_after"`
}

type DeleteFileOutput struct {
	ID            string   `json:"id"`
	Deleted       bool     `json:"deleted"`
	CleanupErrors []string `json:"cleanup_errors"`
}

// Ingestは保存・カタログ登録・レコード作成まで行い、スライスは投入だけする。
// 投入に失敗してもエラーにしない（reconcilerが再投入する）。
func (u *FileUsecase) Ingest(ctx context.Context, userID int64, in IngestInput) (FileOutput, error) {
	if userID <= 0 {
		return FileOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	name := strings.TrimSpace(filepath.Base(in.Name))
	ext := strings.ToLower(filepath.Ext(name))
	if name == "" || name == "." || !allowedExtensions[ext] {
		return FileOutput{}, NewHTTPError(http.StatusBadRequest, "invalid file type")
	}
	if len(name) > 255 {
		return FileOutput{}, NewHTTPError(http.StatusBadRequest, "invalid file name")
	}
	if len(in.Data) == 0 {
		return FileOutput{}, NewHTTPError(http.StatusBadRequest, "empty file")
	}
	if u.cfg.MaxUploadBytes > 0 && int64(len(in.Data)) > u.cfg.MaxUploadBytes {
		return FileOutput{}, NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}

	id := u.ids.NewID()
	sum := blake2b.Sum256(in.Data)
	now := u.clock.Now()

	blob, err := u.blobs.Store(ctx, "files/"+id+ext, in.ContentType, in.Data)
	if err != nil {
		u.logger.Error("store blob failed", zap.String("file_id", id), zap.Error(err))
		return FileOutput{}, NewHTTPError(http.StatusBadGateway, "storage unavailable")
	}

	entryID, err := u.payments.CreateCatalogEntry(ctx, name)
	if err != nil {
		u.logger.Error("create catalog entry failed", zap.String("file_id", id), zap.Error(err))
		u.releaseBlob(ctx, id, blob.ID)
		return FileOutput{}, NewHTTPError(http.StatusBadGateway, "payment unavailable")
	}

	f := model.File{
		ID:             id,
		UserID:         userID,
		Name:           name,
		ContentType:    in.ContentType,
		SizeBytes:      int64(len(in.Data)),
		Digest:         hex.EncodeToString(sum[:]),
		BlobID:         blob.ID,
		BlobURL:        blob.URL,
		CatalogEntryID: entryID,
		DeleteAfter:    now.Add(u.cfg.Retention),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.ApplyState(model.Unsliced{}, now)

	if err := u.files.Create(ctx, f); err != nil {
		u.logger.Error("create file record failed", zap.String("file_id", id), zap.Error(err))
		u.releaseBlob(ctx, id, blob.ID)
		u.releaseCatalogEntry(ctx, id, entryID)
		return FileOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	_ = u.dispatcher.Dispatch(ctx, f)
	u.watcher.Watch(id)

	u.logger.Info("file ingested", zap.String("file_id", id), zap.Int64("user_id", userID), zap.Int64("size_bytes", f.SizeBytes))
	return u.toOutput(ctx, f), nil
}

func (u *FileUsecase) Get(ctx context.Context, userID int64, id string) (FileOutput, error) {
	f, err := u.owned(ctx, userID, id)
	if err != nil {
		return FileOutput{}, err
	}
	return u.toOutput(ctx, f), nil
}

// 見つからない・他人のIDは結果に含めない
func (u *FileUsecase) GetBatch(ctx context.Context, userID int64, ids []string) ([]FileOutput, error) {
	if userID <= 0 {
		return []FileOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(ids) == 0 {
		return []FileOutput{}, NewHTTPError(http.StatusBadRequest, "ids required")
	}
	if len(ids) > maxBatchIDs {
		return []FileOutput{}, NewHTTPError(http.StatusBadRequest, "too many ids")
	}

	files, err := u.files.FindByIDs(ctx, ids)
	if err != nil {
		return []FileOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outs := make([]FileOutput, 0, len(files))
	for _, f := range files {
		if f.UserID != userID {
			continue
		}
		outs = append(outs, u.toOutput(ctx, f))
	}
	return outs, nil
}

// Resliceは結果を捨ててunslicedに戻し、新しいattemptで投入し直す。
// 前のジョブの結果はattemptが違うので書き込まれない。
func (u *FileUsecase) Reslice(ctx context.Context, userID int64, id string) (FileOutput, error) {
	if _, err := u.owned(ctx, userID, id); err != nil {
		return FileOutput{}, err
	}

	f, err := u.files.ResetForReslice(ctx, id, u.clock.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return FileOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return FileOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	_ = u.dispatcher.Dispatch(ctx, f)
	u.watcher.Watch(id)

	cartIDs, err := u.carts.ListCartIDsByFileID(ctx, id)
	if err == nil {
		for _, cid := range cartIDs {
			u.notifier.Publish(cid, CartEvent{Type: CartEventUpdated, FileID: id, FileStatus: f.Status})
		}
	}

	u.logger.Info("file reslice requested", zap.String("file_id", id), zap.Int("attempt", f.SliceAttempt))
	return u.toOutput(ctx, f), nil
}

// Deleteはレコードを論理削除してロックされていないカートから外す。
// 外部リソースの解放は失敗してもcleanup_errorsで返すだけ。
func (u *FileUsecase) Delete(ctx context.Context, userID int64, id string) (DeleteFileOutput, error) {
	f, err := u.owned(ctx, userID, id)
	if err != nil {
		return DeleteFileOutput{}, err
	}
	return u.delete(ctx, f)
}

// PurgeExpiredは保存期限を過ぎたファイルを削除する。削除した件数を返す。
func (u *FileUsecase) PurgeExpired(ctx context.Context) (int, error) {
	files, err := u.files.ListExpired(ctx, u.clock.Now(), purgeBatch)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, f := range files {
		out, err := u.delete(ctx, f)
		if err != nil {
			u.logger.Warn("purge file failed", zap.String("file_id", f.ID), zap.Error(err))
			continue
		}
		if len(out.CleanupErrors) > 0 {
			u.logger.Warn("purge cleanup incomplete", zap.String("file_id", f.ID), zap.Strings("errors", out.CleanupErrors))
		}
		n++
	}
	return n, nil
}

func (u *FileUsecase) delete(ctx context.Context, f model.File) (DeleteFileOutput, error) {
	cartIDs, err := u.carts.ListCartIDsByFileID(ctx, f.ID)
	if err != nil {
		return DeleteFileOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Files().Delete(ctx, f.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.CartItems().DeleteByFileIDFromUnlockedCarts(ctx, f.ID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return DeleteFileOutput{}, err
	}

	u.watcher.Unwatch(f.ID)
	for _, cid := range cartIDs {
		u.notifier.Publish(cid, CartEvent{Type: CartEventFileRemoved, FileID: f.ID})
	}

	out := DeleteFileOutput{ID: f.ID, Deleted: true, CleanupErrors: []string{}}
	if f.BlobID != "" {
		if err := u.blobs.Delete(ctx, f.BlobID); err != nil {
			out.CleanupErrors = append(out.CleanupErrors, "blob: "+err.Error())
		}
	}
	if f.CatalogEntryID != "" {
		if err := u.payments.DeleteCatalogEntry(ctx, f.CatalogEntryID); err != nil {
			out.CleanupErrors = append(out.CleanupErrors, "catalog entry: "+err.Error())
		}
	}

	u.logger.Info("file deleted", zap.String("file_id", f.ID), zap.Int("cleanup_errors", len(out.CleanupErrors)))
	return out, nil
}

func (u *FileUsecase) owned(ctx context.Context, userID int64, id string) (model.File, error) {
	if userID <= 0 {
		return model.File{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(id) == "" {
		return model.File{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	f, err := u.files.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.File{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.File{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if f.UserID != userID {
		return model.File{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return f, nil
}

func (u *FileUsecase) releaseBlob(ctx context.Context, fileID, blobID string) {
	if err := u.blobs.Delete(ctx, blobID); err != nil {
		u.logger.Warn("release blob failed", zap.String("file_id", fileID), zap.String("blob_id", blobID), zap.Error(err))
	}
}

func (u *FileUsecase) releaseCatalogEntry(ctx context.Context, fileID, entryID string) {
	if err := u.payments.DeleteCatalogEntry(ctx, entryID); err != nil {
		u.logger.Warn("release catalog entry failed", zap.String("file_id", fileID), zap.String("entry_id", entryID), zap.Error(err))
	}
}

func (u *FileUsecase) toOutput(ctx context.Context, f model.File) FileOutput {
	out := FileOutput{
		ID:           f.ID,
		Name:         f.Name,
		SizeBytes:    f.SizeBytes,
		Status:       f.Status,
		SliceAttempt: f.SliceAttempt,
		ResolvedAt:   f.ResolvedAt,
		CreatedAt:    f.CreatedAt,
		DeleteAfter:  f.DeleteAfter,
	}

	switch st := f.State().(type) {
	case model.Sliced:
		mass, dims := st.MassGrams, st.Dimensions
		out.MassGrams = &mass
		out.Dimensions = &dims
		price := pricing.UnitPrice(&mass, u.defaultPricePerKg(ctx), pricing.DefaultQuality)
		out.UnitPrice = &price
	case model.Unsliced:
		//質量が出るまでは最低価格を返す
		price := pricing.UnitPrice(nil, nil, pricing.DefaultQuality)
		out.UnitPrice = &price
	case model.Failed:
		detail := st.Detail
		out.ErrorDetail = &detail
	}
	return out
}

func (u *FileUsecase) defaultPricePerKg(ctx context.Context) *decimal.Decimal {
	materials, err := u.catalog.ListMaterials(ctx)
	if err != nil || len(materials) == 0 {
		return nil
	}
	p := materials[0].PricePerKg
	return &p
}
