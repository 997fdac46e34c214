package cloudflare

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	commonConfig "github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/helper"
	"github.com/ezlinkai/fal-studio/common/image"
	"github.com/ezlinkai/fal-studio/common/logger"
)

const objectPrefix = "fal-inputs"

// ObjectKey 生成对象名：fal-inputs/timestamp-id.ext
func ObjectKey(fileName string, mimeType string) string {
	ext := path.Ext(fileName)
	if ext == "" {
		ext = image.ExtensionFromMimeType(mimeType)
	}
	timestamp := time.Now().Format("20060102-150405")
	return path.Join(objectPrefix, fmt.Sprintf("%s-%s%s", timestamp, helper.GenRequestID()[:12], strings.ToLower(ext)))
}

// PublicURL 优先使用公共访问域名，否则使用 Path-Style 的 endpoint 地址
func PublicURL(objectKey string) string {
	if commonConfig.CfFilePublicUrl != "" {
		return fmt.Sprintf("%s/%s", commonConfig.CfFilePublicUrl, objectKey)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(commonConfig.CfFileEndpoint, "/"), commonConfig.CfBucketFileName, objectKey)
}

func newClient(ctx context.Context) (*s3.Client, error) {
	accessKey := commonConfig.CfFileAccessKey
	secretKey := commonConfig.CfFileSecretKey
	endpoint := commonConfig.CfFileEndpoint
	if accessKey == "" || secretKey == "" || commonConfig.CfBucketFileName == "" || endpoint == "" {
		return nil, fmt.Errorf("R2 configuration is incomplete")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %v", err)
	}

	// Path-Style 避免虚拟主机风格子域名的 TLS 问题
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

// UploadFile 把参考图上传到 R2，返回公开访问 URL
func UploadFile(ctx context.Context, fileName string, mimeType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file %q", fileName)
	}
	client, err := newClient(ctx)
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	objectKey := ObjectKey(fileName, mimeType)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(commonConfig.CfBucketFileName),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %v", err)
	}

	resultUrl := PublicURL(objectKey)
	logger.SysLog(fmt.Sprintf("file uploaded to R2: %s (size: %d bytes)", resultUrl, len(data)))
	return resultUrl, nil
}
