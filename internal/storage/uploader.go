package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wavesbot/meeting-scribe/internal/logger"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// CacheControl 录音上传后内容不再变化
const CacheControl = "public, max-age=31536000"

type objectWriterFactory func(ctx context.Context, bucket, object string) io.WriteCloser

// Uploader 将录音上传到 Cloud Storage，供语音识别读取
type Uploader struct {
	bucket    string
	newWriter objectWriterFactory
	close     func() error
}

// NewUploader 创建上传器，credentialsFile 为空时使用默认凭据
func NewUploader(ctx context.Context, credentialsFile, bucket string) (*Uploader, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 Cloud Storage 客户端失败: %w", err)
	}

	newWriter := func(ctx context.Context, bucket, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.CacheControl = CacheControl
		w.ContentType = "audio/wav"
		return w
	}
	return &Uploader{bucket: bucket, newWriter: newWriter, close: client.Close}, nil
}

// ObjectURI 返回 gs://bucket/object 形式的地址
func ObjectURI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}

// Upload 上传本地文件，对象名取文件名
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("打开录音文件失败: %w", err)
	}
	defer f.Close()

	return u.UploadStream(ctx, f, filepath.Base(localPath))
}

// UploadStream 将录音流写入存储桶
func (u *Uploader) UploadStream(ctx context.Context, r io.Reader, object string) (string, error) {
	w := u.newWriter(ctx, u.bucket, object)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("上传 %s 失败: %w", object, err)
	}
	// 写入在 Close 时才真正提交
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("上传 %s 失败: %w", object, err)
	}

	logger.Infof("[Storage] %s 已上传到 %s", object, u.bucket)
	return ObjectURI(u.bucket, object), nil
}

func (u *Uploader) Close() error {
	if u.close == nil {
		return nil
	}
	return u.close()
}
