package minio

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	objstore "github.com/turtacn/molecule-search/internal/infrastructure/storage"
	"github.com/turtacn/molecule-search/pkg/errors"
)

type MockMinIOAPI struct {
	mock.Mock
}

func (m *MockMinIOAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	return args.Get(0).(<-chan minio.ObjectInfo)
}

func (m *MockMinIOAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *MockMinIOAPI) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expiry, reqParams)
	if u := args.Get(0); u != nil {
		return u.(*url.URL), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMinIOAPI) CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, dst, src)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

type StoreTestSuite struct {
	suite.Suite
	api   *MockMinIOAPI
	store *Store
	ctx   context.Context
}

func (s *StoreTestSuite) SetupTest() {
	s.api = new(MockMinIOAPI)
	s.store = NewStoreWithAPI(s.api, "notebooks", nil)
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TearDownTest() {
	s.api.AssertExpectations(s.T())
}

func objects(infos ...minio.ObjectInfo) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(infos))
	for _, i := range infos {
		ch <- i
	}
	close(ch)
	return ch
}

func (s *StoreTestSuite) TestList() {
	mod := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	s.api.On("ListObjects", s.ctx, "notebooks", minio.ListObjectsOptions{Prefix: "pdf/", Recursive: true, WithMetadata: true}).
		Return(objects(
			minio.ObjectInfo{Key: "pdf/NB-1.pdf", Size: 10, LastModified: mod, UserMetadata: minio.StringMap{"X-Amz-Meta-Notebook_id": "NB-1"}},
			minio.ObjectInfo{Key: "pdf/", Size: 0},
		))

	got, err := s.store.List(s.ctx, "pdf/")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("pdf/NB-1.pdf", got[0].Name)
	s.Equal(mod, got[0].Updated)
	s.Equal("NB-1", got[0].Metadata[objstore.MetadataNotebookID])
	s.True(got[1].IsDir())
}

func (s *StoreTestSuite) TestList_Error() {
	s.api.On("ListObjects", s.ctx, "notebooks", mock.Anything).
		Return(objects(minio.ObjectInfo{Err: stderrors.New("access denied")}))

	_, err := s.store.List(s.ctx, "")
	s.True(errors.IsCode(err, errors.ErrCodeDocumentStorage))
}

func (s *StoreTestSuite) TestStat_NotFound() {
	s.api.On("StatObject", s.ctx, "notebooks", "gone.pdf", minio.StatObjectOptions{}).
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound})

	_, err := s.store.Stat(s.ctx, "gone.pdf")
	s.True(errors.IsCode(err, errors.ErrCodeDocumentNotFound))
}

func (s *StoreTestSuite) TestPresignedURL() {
	u, _ := url.Parse("http://localhost:9000/notebooks/a.pdf?X-Amz-Signature=abc")
	s.api.On("StatObject", s.ctx, "notebooks", "a.pdf", minio.StatObjectOptions{}).
		Return(minio.ObjectInfo{Key: "a.pdf"}, nil)
	s.api.On("PresignedGetObject", s.ctx, "notebooks", "a.pdf", time.Hour, url.Values{"response-content-type": []string{"application/pdf"}}).
		Return(u, nil)

	got, err := s.store.PresignedURL(s.ctx, "a.pdf", time.Hour)
	s.Require().NoError(err)
	s.Equal(u.String(), got)
}

func (s *StoreTestSuite) TestPresignedURL_Failure() {
	s.api.On("StatObject", s.ctx, "notebooks", "a.pdf", minio.StatObjectOptions{}).
		Return(minio.ObjectInfo{Key: "a.pdf"}, nil)
	s.api.On("PresignedGetObject", s.ctx, "notebooks", "a.pdf", time.Hour, mock.Anything).
		Return(nil, stderrors.New("no credentials"))

	_, err := s.store.PresignedURL(s.ctx, "a.pdf", time.Hour)
	s.True(errors.IsCode(err, errors.ErrCodeDocumentPresign))
}

func (s *StoreTestSuite) TestUpdateMetadata_MergesAndReplaces() {
	s.api.On("StatObject", s.ctx, "notebooks", "NB-2.pdf", minio.StatObjectOptions{}).
		Return(minio.ObjectInfo{Key: "NB-2.pdf", UserMetadata: minio.StringMap{"Owner": "lab"}}, nil)
	s.api.On("CopyObject", s.ctx, mock.MatchedBy(func(dst minio.CopyDestOptions) bool {
		return dst.Bucket == "notebooks" && dst.Object == "NB-2.pdf" && dst.ReplaceMetadata &&
			dst.UserMetadata["owner"] == "lab" && dst.UserMetadata["notebook_id"] == "NB-2"
	}), minio.CopySrcOptions{Bucket: "notebooks", Object: "NB-2.pdf"}).
		Return(minio.UploadInfo{}, nil)

	s.NoError(s.store.UpdateMetadata(s.ctx, "NB-2.pdf", map[string]string{"notebook_id": "NB-2"}))
}

func (s *StoreTestSuite) TestBucket() {
	s.Equal("notebooks", s.store.Bucket())
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
