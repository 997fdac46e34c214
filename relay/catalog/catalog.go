package catalog

import (
	"fmt"
	"os"
	"sync"

	"github.com/ezlinkai/fal-studio/common/logger"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

type Catalog struct {
	models []ModelConfig
}

type catalogFile struct {
	Models []ModelConfig `yaml:"models" validate:"dive"`
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
	validate           = validator.New()
)

// New 校验并保存条目的深拷贝，之后不再修改
func New(models []ModelConfig) (*Catalog, error) {
	for i := range models {
		if err := validateModel(&models[i]); err != nil {
			return nil, err
		}
	}
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if seen[m.ID] {
			return nil, fmt.Errorf("duplicate model id: %s", m.ID)
		}
		seen[m.ID] = true
	}
	if len(models) == 0 {
		return &Catalog{}, nil
	}
	var copied []ModelConfig
	if err := copier.CopyWithOption(&copied, &models, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	return &Catalog{models: copied}, nil
}

// LoadFile 从 YAML 文件读取条目，整体替换内置目录
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	return New(file.Models)
}

func validateModel(m *ModelConfig) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid model %q: %w", m.ID, err)
	}
	names := make(map[string]bool, len(m.Params))
	for i := range m.Params {
		p := &m.Params[i]
		if names[p.Name] {
			return fmt.Errorf("model %s: duplicate param %s", m.ID, p.Name)
		}
		names[p.Name] = true
		if p.Default == nil {
			continue
		}
		if _, err := p.Coerce(p.Default); err != nil {
			return fmt.Errorf("model %s: invalid default: %w", m.ID, err)
		}
	}
	return nil
}

// Init 在启动时构建全局目录；file 为空时使用内置条目
func Init(file string) error {
	var (
		c   *Catalog
		err error
	)
	if file != "" {
		c, err = LoadFile(file)
	} else {
		c, err = New(BuiltinModels())
	}
	if err != nil {
		return err
	}
	defaultCatalog = c
	logger.SysLog(fmt.Sprintf("model catalog loaded: %d models, %d active", len(c.models), len(c.Active())))
	return nil
}

// Default 返回全局目录，未初始化时退回内置条目
func Default() *Catalog {
	defaultCatalogOnce.Do(func() {
		if defaultCatalog != nil {
			return
		}
		c, err := New(BuiltinModels())
		if err != nil {
			logger.FatalLog("builtin catalog is invalid: " + err.Error())
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Active 按定义顺序返回已启用的模型
func (c *Catalog) Active() []ModelConfig {
	active := make([]ModelConfig, 0, len(c.models))
	for i := range c.models {
		if c.models[i].Active {
			active = append(active, c.clone(&c.models[i]))
		}
	}
	return active
}

func (c *Catalog) All() []ModelConfig {
	all := make([]ModelConfig, 0, len(c.models))
	for i := range c.models {
		all = append(all, c.clone(&c.models[i]))
	}
	return all
}

// Lookup 只返回已启用的模型
func (c *Catalog) Lookup(id string) (*ModelConfig, error) {
	for i := range c.models {
		if c.models[i].ID == id && c.models[i].Active {
			m := c.clone(&c.models[i])
			return &m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, id)
}

// First 返回第一个启用的模型，目录为空时返回 ErrModelUnavailable
func (c *Catalog) First() (*ModelConfig, error) {
	for i := range c.models {
		if c.models[i].Active {
			m := c.clone(&c.models[i])
			return &m, nil
		}
	}
	return nil, ErrModelUnavailable
}

func (c *Catalog) clone(m *ModelConfig) ModelConfig {
	var out ModelConfig
	if err := copier.CopyWithOption(&out, m, copier.Option{DeepCopy: true}); err != nil {
		// 条目结构固定，拷贝失败只可能是编程错误
		panic(err)
	}
	return out
}
