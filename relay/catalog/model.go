package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Family 决定模型的校验规则和请求体构造方式
type Family string

const (
	FamilyTextToVideo  Family = "text-to-video"
	FamilyImageToVideo Family = "image-to-video"
	FamilyTextToImage  Family = "text-to-image"
	FamilyImageEdit    Family = "image-edit"
)

type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamChoice  ParamType = "choice"
)

var ErrModelUnavailable = errors.New("no model available")

type Option struct {
	Value string `json:"value" yaml:"value" validate:"required"`
	Label string `json:"label" yaml:"label"`
}

type Param struct {
	Name    string    `json:"name" yaml:"name" validate:"required"`
	Label   string    `json:"label" yaml:"label"`
	Type    ParamType `json:"type" yaml:"type" validate:"oneof=string number integer boolean choice"`
	Default any       `json:"default" yaml:"default"`
	Options []Option  `json:"options,omitempty" yaml:"options,omitempty" validate:"required_if=Type choice,dive"`
	Min     *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64  `json:"max,omitempty" yaml:"max,omitempty"`
}

type ModelConfig struct {
	ID                string  `json:"id" yaml:"id" validate:"required"`
	Name              string  `json:"name" yaml:"name" validate:"required"`
	Brand             string  `json:"brand,omitempty" yaml:"brand,omitempty"`
	Kind              Kind    `json:"kind" yaml:"kind" validate:"oneof=image video"`
	Family            Family  `json:"family" yaml:"family" validate:"oneof=text-to-video image-to-video text-to-image image-edit"`
	Active            bool    `json:"active" yaml:"active"`
	LongRunning       bool    `json:"long_running" yaml:"long_running"`
	PromptPlaceholder string  `json:"prompt_placeholder,omitempty" yaml:"prompt_placeholder,omitempty"`
	Params            []Param `json:"params" yaml:"params" validate:"dive"`
}

// DisplayBrand 用于提示文案，未配置时使用完整名称
func (m *ModelConfig) DisplayBrand() string {
	if m.Brand != "" {
		return m.Brand
	}
	return m.Name
}

func (m *ModelConfig) Param(name string) (*Param, bool) {
	for i := range m.Params {
		if m.Params[i].Name == name {
			return &m.Params[i], true
		}
	}
	return nil, false
}

// Defaults 返回参数名到默认值的新 map
func (m *ModelConfig) Defaults() map[string]any {
	defaults := make(map[string]any, len(m.Params))
	for _, p := range m.Params {
		defaults[p.Name] = p.Default
	}
	return defaults
}

func (p *Param) HasOption(value string) bool {
	for _, opt := range p.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// Coerce 把界面上的原始值转换成参数声明的类型；无法转换或越界时返回错误
func (p *Param) Coerce(value any) (any, error) {
	switch p.Type {
	case ParamNumber:
		f, err := toFloat(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		return f, p.checkRange(f)
	case ParamInteger:
		f, err := toFloat(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		if f != float64(int64(f)) {
			return nil, fmt.Errorf("%s: %v is not an integer", p.Name, value)
		}
		return int64(f), p.checkRange(f)
	case ParamBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not a boolean", p.Name, v)
			}
			return b, nil
		}
		return nil, fmt.Errorf("%s: unsupported boolean value %v", p.Name, value)
	case ParamChoice:
		s := fmt.Sprint(value)
		if !p.HasOption(s) {
			return nil, fmt.Errorf("%s: %q is not one of the allowed values", p.Name, s)
		}
		return s, nil
	default:
		if value == nil {
			return "", nil
		}
		return fmt.Sprint(value), nil
	}
}

func (p *Param) checkRange(f float64) error {
	if p.Min != nil && f < *p.Min {
		return fmt.Errorf("%s: %v is below minimum %v", p.Name, f, *p.Min)
	}
	if p.Max != nil && f > *p.Max {
		return fmt.Errorf("%s: %v is above maximum %v", p.Name, f, *p.Max)
	}
	return nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	return 0, fmt.Errorf("unsupported numeric value %v", value)
}
