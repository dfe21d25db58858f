package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// アップロードファイルの保存・取得
// 削除済み（soft delete）のファイルは全メソッドでErrNotFound扱い。
type FileRepository interface {
	Create(ctx context.Context, f model.File) error
	FindByID(ctx context.Context, id string) (model.File, error)
	//見つからないIDは結果に含めない
	FindByIDs(ctx context.Context, ids []string) ([]model.File, error)
	ListUnsliced(ctx context.Context, limit int) ([]model.File, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.File, error)

	//スライスジョブのIDを記録（attemptが変わっていたら何もしない）
	SetJob(ctx context.Context, id string, attempt int, jobID string) error

	//再スライス：attempt+1してunslicedに戻す。更新後の行を返す。
	ResetForReslice(ctx context.Context, id string, now time.Time) (model.File, error)

	//結果の書き込み。unslicedかつattemptが一致するときだけ更新する（先に書いた方が勝つ）。
	//更新できたらtrue。
	Resolve(ctx context.Context, id string, attempt int, state model.FileState, now time.Time) (bool, error)

	Delete(ctx context.Context, id string) error
}
