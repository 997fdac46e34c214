package generator

import (
	"github.com/ezlinkai/fal-studio/relay/catalog"
)

// Extractor 尝试从一种已知结构中取出媒体地址，不匹配时返回 false
type Extractor interface {
	Name() string
	Extract(payload any) (*GenerationResult, bool)
}

type videoExtractor struct {
	name string
	path []string
}

func (e videoExtractor) Name() string {
	return e.name
}

func (e videoExtractor) Extract(payload any) (*GenerationResult, bool) {
	obj, ok := lookup(payload, e.path)
	if !ok {
		return nil, false
	}
	url := urlOf(obj["video"])
	if url == "" {
		return nil, false
	}
	return &GenerationResult{Kind: catalog.KindVideo, URLs: []string{url}, Strategy: e.name}, true
}

type imagesExtractor struct {
	name string
	path []string
}

func (e imagesExtractor) Name() string {
	return e.name
}

func (e imagesExtractor) Extract(payload any) (*GenerationResult, bool) {
	obj, ok := lookup(payload, e.path)
	if !ok {
		return nil, false
	}
	images, ok := obj["images"].([]any)
	if !ok {
		return nil, false
	}
	var urls []string
	for _, item := range images {
		if url := urlOf(item); url != "" {
			urls = append(urls, url)
		}
	}
	if len(urls) == 0 {
		return nil, false
	}
	return &GenerationResult{Kind: catalog.KindImage, URLs: urls, Strategy: e.name}, true
}

// DefaultExtractors 的顺序即匹配优先级
var DefaultExtractors = []Extractor{
	videoExtractor{name: "nested-video", path: []string{"data"}},
	videoExtractor{name: "top-level-video"},
	imagesExtractor{name: "nested-images", path: []string{"data"}},
	imagesExtractor{name: "top-level-images"},
}

// Extract 依次尝试各个策略，全部不匹配时返回 ErrUnexpectedResultShape
func Extract(payload any, extractors []Extractor) (*GenerationResult, error) {
	if extractors == nil {
		extractors = DefaultExtractors
	}
	for _, e := range extractors {
		if result, ok := e.Extract(payload); ok {
			return result, nil
		}
	}
	return nil, ErrUnexpectedResultShape
}

func lookup(payload any, path []string) (map[string]any, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range path {
		if obj, ok = obj[key].(map[string]any); !ok {
			return nil, false
		}
	}
	return obj, true
}

// urlOf 兼容 {"url": "..."} 与纯字符串两种写法
func urlOf(v any) string {
	switch item := v.(type) {
	case string:
		return item
	case map[string]any:
		url, _ := item["url"].(string)
		return url
	}
	return ""
}
