package generator

import (
	"fmt"
	"strings"

	"github.com/ezlinkai/fal-studio/relay/catalog"
	"github.com/ezlinkai/fal-studio/relay/fal"
)

// Descriptor 描述一类模型的校验规则与请求体构造方式
type Descriptor interface {
	Family() catalog.Family
	// ImageLimits 返回 (最少, 最多) 参考图数量，max 为 0 表示不接受图片
	ImageLimits() (min int, max int)
	Validate(model *catalog.ModelConfig, req *GenerationRequest) error
	BuildInput(model *catalog.ModelConfig, req *GenerationRequest) map[string]any
}

type textDescriptor struct {
	family catalog.Family
}

func (d textDescriptor) Family() catalog.Family {
	return d.family
}

func (d textDescriptor) ImageLimits() (int, int) {
	return 0, 0
}

func (d textDescriptor) Validate(model *catalog.ModelConfig, req *GenerationRequest) error {
	return validatePrompt(req)
}

func (d textDescriptor) BuildInput(model *catalog.ModelConfig, req *GenerationRequest) map[string]any {
	return baseInput(req)
}

// imageDescriptor 用于以参考图为条件的模型；single 时以 image_url 传一张，否则以 image_urls 传列表
type imageDescriptor struct {
	family    catalog.Family
	param     string
	single    bool
	maxImages int
}

func (d imageDescriptor) Family() catalog.Family {
	return d.family
}

func (d imageDescriptor) ImageLimits() (int, int) {
	return 1, d.maxImages
}

func (d imageDescriptor) Validate(model *catalog.ModelConfig, req *GenerationRequest) error {
	if err := validatePrompt(req); err != nil {
		return err
	}
	if len(req.Images) == 0 {
		msg := MsgImagesRequired
		if d.single {
			msg = MsgSingleImage
		}
		return &ValidationError{Field: "images", Message: fmt.Sprintf(msg, model.DisplayBrand())}
	}
	if len(req.Images) > d.maxImages {
		return &ValidationError{Field: "images", Message: fmt.Sprintf(MsgTooManyImages, model.DisplayBrand(), d.maxImages)}
	}
	return nil
}

func (d imageDescriptor) BuildInput(model *catalog.ModelConfig, req *GenerationRequest) map[string]any {
	input := baseInput(req)
	if d.single {
		input[d.param] = req.Images[0]
		return input
	}
	files := make([]fal.File, len(req.Images))
	copy(files, req.Images)
	input[d.param] = files
	return input
}

func validatePrompt(req *GenerationRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &ValidationError{Field: "prompt", Message: MsgPromptRequired}
	}
	return nil
}

func baseInput(req *GenerationRequest) map[string]any {
	input := make(map[string]any, len(req.Params)+2)
	for name, value := range req.Params {
		input[name] = value
	}
	input["prompt"] = req.Prompt
	return input
}

var descriptors = map[catalog.Family]Descriptor{
	catalog.FamilyTextToVideo:  textDescriptor{family: catalog.FamilyTextToVideo},
	catalog.FamilyTextToImage:  textDescriptor{family: catalog.FamilyTextToImage},
	catalog.FamilyImageToVideo: imageDescriptor{family: catalog.FamilyImageToVideo, param: "image_url", single: true, maxImages: 1},
	catalog.FamilyImageEdit:    imageDescriptor{family: catalog.FamilyImageEdit, param: "image_urls", maxImages: 4},
}

func GetDescriptor(family catalog.Family) (Descriptor, error) {
	d, ok := descriptors[family]
	if !ok {
		return nil, fmt.Errorf("no descriptor for model family %q", family)
	}
	return d, nil
}

// BuildRequest 按模型声明的参数集合构造请求；无法转换的值退回默认值，未声明的值直接丢弃
func BuildRequest(model *catalog.ModelConfig, prompt string, images []fal.File, values map[string]any) (*GenerationRequest, error) {
	d, err := GetDescriptor(model.Family)
	if err != nil {
		return nil, err
	}
	params := make(map[string]any, len(model.Params))
	for i := range model.Params {
		p := &model.Params[i]
		value, ok := values[p.Name]
		if !ok {
			value = p.Default
		}
		coerced, err := p.Coerce(value)
		if err != nil {
			if coerced, err = p.Coerce(p.Default); err != nil {
				continue
			}
		}
		if p.Type == catalog.ParamString && coerced == "" && p.Default == nil {
			continue
		}
		params[p.Name] = coerced
	}
	req := &GenerationRequest{
		ModelID: model.ID,
		Kind:    model.Kind,
		Prompt:  strings.TrimSpace(prompt),
		Images:  append([]fal.File(nil), images...),
		Params:  params,
	}
	if err := d.Validate(model, req); err != nil {
		return nil, err
	}
	req.Input = d.BuildInput(model, req)
	return req, nil
}
