package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Uploader 把二进制文件放到可公开访问的存储上并返回地址
type Uploader interface {
	Upload(ctx context.Context, file *File) (string, error)
}

type UploaderFunc func(ctx context.Context, file *File) (string, error)

func (f UploaderFunc) Upload(ctx context.Context, file *File) (string, error) {
	return f(ctx, file)
}

// StorageUploader 使用 fal 自带的存储：initiate 走代理，PUT 直接发往签名地址
type StorageUploader struct {
	client     *Client
	StorageURL string
	HTTPClient *http.Client
}

func NewStorageUploader(client *Client) *StorageUploader {
	return &StorageUploader{
		client:     client,
		StorageURL: DefaultStorageURL,
		HTTPClient: &http.Client{Timeout: DefaultCallTimeout},
	}
}

type initiateUploadRequest struct {
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name"`
}

type initiateUploadResponse struct {
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

func (u *StorageUploader) Upload(ctx context.Context, file *File) (string, error) {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := file.Name
	if name == "" {
		name = "upload.bin"
	}
	target := u.StorageURL + "/storage/upload/initiate?storage_type=fal-cdn-v3"
	body, err := u.client.Dispatch(ctx, http.MethodPost, target, initiateUploadRequest{
		ContentType: contentType,
		FileName:    name,
	})
	if err != nil {
		return "", errors.Wrap(err, "initiate upload failed")
	}
	var initiated initiateUploadResponse
	if err := json.Unmarshal(body, &initiated); err != nil {
		return "", errors.Wrap(err, "decode initiate upload response failed")
	}
	if initiated.UploadURL == "" || initiated.FileURL == "" {
		return "", fmt.Errorf("initiate upload returned no urls: %s", string(body))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, initiated.UploadURL, bytes.NewReader(file.Data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := u.HTTPClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "put file failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", newApiError(resp.StatusCode, respBody)
	}
	return initiated.FileURL, nil
}

// resolveFiles 深度遍历参数，把 File 值替换为上传后的地址；不修改传入的 map
func (c *Client) resolveFiles(ctx context.Context, input map[string]any) (map[string]any, error) {
	resolved, err := c.resolveValue(ctx, input)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return map[string]any{}, nil
	}
	return resolved.(map[string]any), nil
}

func (c *Client) resolveValue(ctx context.Context, value any) (any, error) {
	switch v := value.(type) {
	case File:
		return c.upload(ctx, &v)
	case *File:
		return c.upload(ctx, v)
	case map[string]any:
		if v == nil {
			return nil, nil
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			r, err := c.resolveValue(ctx, item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := c.resolveValue(ctx, item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case []File:
		out := make([]any, len(v))
		for i := range v {
			r, err := c.upload(ctx, &v[i])
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

func (c *Client) upload(ctx context.Context, file *File) (string, error) {
	if c.Uploader == nil {
		return "", errors.New("no uploader configured for file values")
	}
	return c.Uploader.Upload(ctx, file)
}
