package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/external"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fileFixture struct {
	tx         *TxManagerMock
	files      *FileRepoMock
	items      *CartItemRepoMock
	catalog    *CatalogRepoMock
	blobs      *BlobStoreMock
	payments   *PaymentServiceMock
	dispatcher *DispatcherMock
	watcher    *WatcherMock
	pub        *publisherSpy
	uc         *usecase.FileUsecase
}

func newFileFixture() *fileFixture {
	f := &fileFixture{
		tx:         new(TxManagerMock),
		files:      new(FileRepoMock),
		items:      new(CartItemRepoMock),
		catalog:    new(CatalogRepoMock),
		blobs:      new(BlobStoreMock),
		payments:   new(PaymentServiceMock),
		dispatcher: new(DispatcherMock),
		watcher:    new(WatcherMock),
		pub:        &publisherSpy{},
	}
	f.tx.Repos = &TxReposMock{files: f.files, cartItems: f.items}
	f.catalog.On("ListMaterials", mock.Anything).Return([]model.Material{pla}, nil).Maybe()

	cfg := usecase.FileConfig{Retention: 30 * 24 * time.Hour, MaxUploadBytes: 1024}
	f.uc = usecase.NewFileUsecase(f.tx, f.files, f.items, f.catalog, f.blobs, f.payments,
		f.dispatcher, f.watcher, f.pub, fixedIDs{id: "file-1"}, fixedClock{now: testNow}, cfg, zap.NewNop())
	return f
}

func TestFileUsecase_Ingest_Success(t *testing.T) {
	f := newFileFixture()
	data := []byte("solid cube")

	f.blobs.On("Store", mock.Anything, "files/file-1.stl", "model/stl", data).
		Return(external.BlobRef{ID: "files/file-1.stl", URL: "http://blob/files/file-1.stl"}, nil)
	f.payments.On("CreateCatalogEntry", mock.Anything, "cube.stl").Return("cat-1", nil)
	f.files.On("Create", mock.Anything, mock.MatchedBy(func(file model.File) bool {
		return file.ID == "file-1" &&
			file.UserID == 1 &&
			file.Status == model.FileStatusUnsliced &&
			file.BlobURL == "http://blob/files/file-1.stl" &&
			file.CatalogEntryID == "cat-1" &&
			file.DeleteAfter.Equal(testNow.Add(30*24*time.Hour)) &&
			len(file.Digest) == 64
	})).Return(nil)
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)
	f.watcher.On("Watch", "file-1").Return()

	out, err := f.uc.Ingest(context.Background(), 1, usecase.IngestInput{Name: "cube.stl", ContentType: "model/stl", Data: data})
	require.NoError(t, err)

	assert.Equal(t, "file-1", out.ID)
	assert.Equal(t, model.FileStatusUnsliced, out.Status)
	require.NotNil(t, out.UnitPrice)
	assert.Equal(t, "1.00", out.UnitPrice.StringFixed(2))
	f.files.AssertExpectations(t)
	f.dispatcher.AssertExpectations(t)
	f.watcher.AssertExpectations(t)
}

func TestFileUsecase_Ingest_DispatchFailureStillSucceeds(t *testing.T) {
	f := newFileFixture()

	f.blobs.On("Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(external.BlobRef{ID: "b", URL: "u"}, nil)
	f.payments.On("CreateCatalogEntry", mock.Anything, mock.Anything).Return("cat-1", nil)
	f.files.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(external.ErrUnavailable)
	f.watcher.On("Watch", "file-1").Return()

	out, err := f.uc.Ingest(context.Background(), 1, usecase.IngestInput{Name: "part.3MF", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, model.FileStatusUnsliced, out.Status)
	f.watcher.AssertExpectations(t)
}

func TestFileUsecase_Ingest_Rejects(t *testing.T) {
	f := newFileFixture()

	cases := []struct {
		name   string
		in     usecase.IngestInput
		status int
	}{
		{"extension", usecase.IngestInput{Name: "photo.png", Data: []byte("x")}, 400},
		{"no name", usecase.IngestInput{Name: "", Data: []byte("x")}, 400},
		{"empty", usecase.IngestInput{Name: "a.stl"}, 400},
		{"too large", usecase.IngestInput{Name: "a.stl", Data: make([]byte, 2048)}, 413},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.Ingest(context.Background(), 1, tc.in)
			assertStatus(t, err, tc.status)
		})
	}
	f.blobs.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFileUsecase_Ingest_CatalogFailureReleasesBlob(t *testing.T) {
	f := newFileFixture()

	f.blobs.On("Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(external.BlobRef{ID: "files/file-1.obj", URL: "u"}, nil)
	f.payments.On("CreateCatalogEntry", mock.Anything, "a.obj").Return("", external.ErrUnavailable)
	f.blobs.On("Delete", mock.Anything, "files/file-1.obj").Return(nil)

	_, err := f.uc.Ingest(context.Background(), 1, usecase.IngestInput{Name: "a.obj", Data: []byte("x")})
	assertStatus(t, err, 502)
	f.blobs.AssertExpectations(t)
	f.files.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestFileUsecase_Ingest_RecordFailureReleasesEverything(t *testing.T) {
	f := newFileFixture()

	f.blobs.On("Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(external.BlobRef{ID: "blob-1", URL: "u"}, nil)
	f.payments.On("CreateCatalogEntry", mock.Anything, mock.Anything).Return("cat-1", nil)
	f.files.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))
	f.blobs.On("Delete", mock.Anything, "blob-1").Return(nil)
	f.payments.On("DeleteCatalogEntry", mock.Anything, "cat-1").Return(nil)

	_, err := f.uc.Ingest(context.Background(), 1, usecase.IngestInput{Name: "a.stl", Data: []byte("x")})
	assertStatus(t, err, 500)
	f.blobs.AssertExpectations(t)
	f.payments.AssertExpectations(t)
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestFileUsecase_Get_SlicedIncludesPrice(t *testing.T) {
	f := newFileFixture()
	f.files.On("FindByID", mock.Anything, "a").Return(slicedFile("a", 1, 50), nil)

	out, err := f.uc.Get(context.Background(), 1, "a")
	require.NoError(t, err)

	require.NotNil(t, out.MassGrams)
	assert.Equal(t, 50.0, *out.MassGrams)
	require.NotNil(t, out.UnitPrice)
	// 50g * 0.02 * 1.5 = 1.50
	assert.Equal(t, "1.50", out.UnitPrice.StringFixed(2))
}

func TestFileUsecase_Get_OtherUserIsNotFound(t *testing.T) {
	f := newFileFixture()
	f.files.On("FindByID", mock.Anything, "a").Return(slicedFile("a", 2, 50), nil)

	_, err := f.uc.Get(context.Background(), 1, "a")
	assertStatus(t, err, 404)
}

func TestFileUsecase_GetBatch_SkipsOtherUsers(t *testing.T) {
	f := newFileFixture()
	ids := []string{"a", "b", "missing"}
	f.files.On("FindByIDs", mock.Anything, ids).Return([]model.File{failedFile("a", 1, "not manifold"), unslicedFile("b", 2)}, nil)

	outs, err := f.uc.GetBatch(context.Background(), 1, ids)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "a", outs[0].ID)
	require.NotNil(t, outs[0].ErrorDetail)
	assert.Equal(t, "not manifold", *outs[0].ErrorDetail)
	assert.Nil(t, outs[0].UnitPrice)
}

func TestFileUsecase_GetBatch_TooMany(t *testing.T) {
	f := newFileFixture()

	_, err := f.uc.GetBatch(context.Background(), 1, make([]string, 101))
	assertErrContains(t, err, "too many ids")
}

func TestFileUsecase_Reslice_ResetsAndDispatches(t *testing.T) {
	f := newFileFixture()
	f.files.On("FindByID", mock.Anything, "a").Return(failedFile("a", 1, "timeout"), nil)
	reset := unslicedFile("a", 1)
	reset.SliceAttempt = 1
	f.files.On("ResetForReslice", mock.Anything, "a", testNow).Return(reset, nil)
	f.dispatcher.On("Dispatch", mock.Anything, reset).Return(nil)
	f.watcher.On("Watch", "a").Return()
	f.items.On("ListCartIDsByFileID", mock.Anything, "a").Return([]int64{10, 11}, nil)

	out, err := f.uc.Reslice(context.Background(), 1, "a")
	require.NoError(t, err)

	assert.Equal(t, model.FileStatusUnsliced, out.Status)
	assert.Equal(t, 1, out.SliceAttempt)
	assert.Len(t, f.pub.types(), 2)
	f.dispatcher.AssertExpectations(t)
}

func TestFileUsecase_Delete_ReportsCleanupErrors(t *testing.T) {
	f := newFileFixture()
	file := slicedFile("a", 1, 10)
	file.BlobID = "blob-a"

	f.files.On("FindByID", mock.Anything, "a").Return(file, nil)
	f.items.On("ListCartIDsByFileID", mock.Anything, "a").Return([]int64{10}, nil)
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.files.On("Delete", mock.Anything, "a").Return(nil)
	f.items.On("DeleteByFileIDFromUnlockedCarts", mock.Anything, "a").Return(nil)
	f.watcher.On("Unwatch", "a").Return()
	f.blobs.On("Delete", mock.Anything, "blob-a").Return(errors.New("bucket gone"))
	f.payments.On("DeleteCatalogEntry", mock.Anything, "cat-a").Return(nil)

	out, err := f.uc.Delete(context.Background(), 1, "a")
	require.NoError(t, err)

	assert.True(t, out.Deleted)
	require.Len(t, out.CleanupErrors, 1)
	assert.Contains(t, out.CleanupErrors[0], "bucket gone")
	assert.Equal(t, []usecase.CartEventType{usecase.CartEventFileRemoved}, f.pub.types())
	f.watcher.AssertExpectations(t)
}

func TestFileUsecase_Delete_AlreadyDeleted(t *testing.T) {
	f := newFileFixture()
	f.files.On("FindByID", mock.Anything, "a").Return(nil, repo.ErrNotFound)

	_, err := f.uc.Delete(context.Background(), 1, "a")
	assertStatus(t, err, 404)
}

func TestFileUsecase_PurgeExpired(t *testing.T) {
	f := newFileFixture()
	old := unslicedFile("old", 1)

	f.files.On("ListExpired", mock.Anything, testNow, mock.Anything).Return([]model.File{old}, nil)
	f.items.On("ListCartIDsByFileID", mock.Anything, "old").Return([]int64{}, nil)
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.files.On("Delete", mock.Anything, "old").Return(nil)
	f.items.On("DeleteByFileIDFromUnlockedCarts", mock.Anything, "old").Return(nil)
	f.watcher.On("Unwatch", "old").Return()

	n, err := f.uc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.files.AssertExpectations(t)
}
