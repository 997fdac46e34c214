package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"regexp"
	"strings"
	"sync"

	_ "golang.org/x/image/webp"
)

// Regex to match data URL pattern
var dataURLPattern = regexp.MustCompile(`^data:image/([^;]+);base64,(.*)$`)

var ErrNotImage = errors.New("not an image")

var readerPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Reader{}
	},
}

// Info 描述一张已识别的图片
type Info struct {
	MimeType string
	Format   string
	Width    int
	Height   int
}

// Sniff 解析图片头部，返回 MIME 类型与尺寸；不是 jpeg/png/gif/webp 时返回 ErrNotImage
func Sniff(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, ErrNotImage
	}
	reader := readerPool.Get().(*bytes.Reader)
	defer readerPool.Put(reader)
	reader.Reset(data)

	cfg, format, err := image.DecodeConfig(reader)
	if err != nil {
		contentType := http.DetectContentType(data)
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, contentType)
	}
	return &Info{
		MimeType: "image/" + format,
		Format:   format,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:image/")
}

// DecodeDataURL 解析 data:image/...;base64,... 形式的图片
func DecodeDataURL(url string) (mimeType string, data []byte, err error) {
	matches := dataURLPattern.FindStringSubmatch(url)
	if len(matches) != 3 {
		return "", nil, fmt.Errorf("invalid data url")
	}
	data, err = base64.StdEncoding.DecodeString(matches[2])
	if err != nil {
		return "", nil, err
	}
	return "image/" + matches[1], data, nil
}

// ExtensionFromMimeType 根据 MIME 类型获取文件扩展名
func ExtensionFromMimeType(mimeType string) string {
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.Contains(mimeType, "jpeg"), strings.Contains(mimeType, "jpg"):
		return ".jpg"
	case strings.Contains(mimeType, "png"):
		return ".png"
	case strings.Contains(mimeType, "gif"):
		return ".gif"
	case strings.Contains(mimeType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
