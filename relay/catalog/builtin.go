package catalog

const (
	ModelVeo3       = "fal-ai/veo3"
	ModelKling      = "fal-ai/kling-video/v1/standard/image-to-video"
	ModelFluxDev    = "fal-ai/flux/dev"
	ModelNanoBanana = "fal-ai/nano-banana/edit"
	ModelHailuo02   = "fal-ai/minimax/hailuo-02/standard/image-to-video"
)

func float64Ptr(f float64) *float64 {
	return &f
}

var videoAspectRatios = []Option{
	{Value: "16:9", Label: "16:9 (横屏)"},
	{Value: "9:16", Label: "9:16 (竖屏)"},
}

// BuiltinModels 每次调用返回新的切片，调用方可以自由修改
func BuiltinModels() []ModelConfig {
	return []ModelConfig{
		{
			ID:                ModelVeo3,
			Name:              "Google Veo3 (文生视频)",
			Brand:             "Veo3",
			Kind:              KindVideo,
			Family:            FamilyTextToVideo,
			Active:            true,
			LongRunning:       true,
			PromptPlaceholder: "描述你想生成的视频画面",
			Params: []Param{
				{
					Name: "duration", Label: "时长", Type: ParamChoice, Default: "8s",
					Options: []Option{{Value: "8s", Label: "8秒 (8s)"}},
				},
				{
					Name: "aspect_ratio", Label: "画面比例", Type: ParamChoice, Default: "16:9",
					Options: append([]Option(nil), videoAspectRatios...),
				},
			},
		},
		{
			ID:                ModelKling,
			Name:              "Kling v1 Standard (图生视频)",
			Brand:             "Kling",
			Kind:              KindVideo,
			Family:            FamilyImageToVideo,
			Active:            true,
			LongRunning:       true,
			PromptPlaceholder: "描述起始图片应该如何运动",
			Params: []Param{
				{
					Name: "duration", Label: "时长", Type: ParamChoice, Default: "5",
					Options: []Option{{Value: "5", Label: "5秒"}, {Value: "10", Label: "10秒"}},
				},
				{
					Name: "aspect_ratio", Label: "画面比例", Type: ParamChoice, Default: "16:9",
					Options: append(append([]Option(nil), videoAspectRatios...), Option{Value: "1:1", Label: "1:1 (方屏)"}),
				},
				{Name: "negative_prompt", Label: "反向提示词", Type: ParamString, Default: "blur, distort, and low quality"},
				{Name: "cfg_scale", Label: "CFG Scale", Type: ParamNumber, Default: 0.5, Min: float64Ptr(0), Max: float64Ptr(1)},
			},
		},
		{
			ID:                ModelFluxDev,
			Name:              "FLUX.1 [dev] (文生图)",
			Brand:             "FLUX",
			Kind:              KindImage,
			Family:            FamilyTextToImage,
			Active:            true,
			PromptPlaceholder: "描述你想生成的图片",
			Params: []Param{
				{
					Name: "image_size", Label: "尺寸", Type: ParamChoice, Default: "landscape_4_3",
					Options: []Option{
						{Value: "square_hd", Label: "正方形 HD"},
						{Value: "square", Label: "正方形"},
						{Value: "portrait_4_3", Label: "竖屏 4:3"},
						{Value: "portrait_16_9", Label: "竖屏 16:9"},
						{Value: "landscape_4_3", Label: "横屏 4:3"},
						{Value: "landscape_16_9", Label: "横屏 16:9"},
					},
				},
				{Name: "num_inference_steps", Label: "推理步数", Type: ParamInteger, Default: 28, Min: float64Ptr(1), Max: float64Ptr(50)},
				{Name: "guidance_scale", Label: "引导系数", Type: ParamNumber, Default: 3.5, Min: float64Ptr(1), Max: float64Ptr(20)},
				{Name: "num_images", Label: "图片数量", Type: ParamInteger, Default: 1, Min: float64Ptr(1), Max: float64Ptr(4)},
				{Name: "enable_safety_checker", Label: "安全检查", Type: ParamBoolean, Default: true},
			},
		},
		{
			ID:                ModelNanoBanana,
			Name:              "Nano Banana (图片编辑)",
			Brand:             "Nano Banana",
			Kind:              KindImage,
			Family:            FamilyImageEdit,
			Active:            true,
			PromptPlaceholder: "描述要对图片做的修改",
			Params: []Param{
				{Name: "num_images", Label: "图片数量", Type: ParamInteger, Default: 1, Min: float64Ptr(1), Max: float64Ptr(4)},
				{
					Name: "output_format", Label: "输出格式", Type: ParamChoice, Default: "jpeg",
					Options: []Option{{Value: "jpeg", Label: "JPEG"}, {Value: "png", Label: "PNG"}},
				},
			},
		},
		{
			ID:          ModelHailuo02,
			Name:        "Hailuo-02 (图生视频)",
			Brand:       "Hailuo",
			Kind:        KindVideo,
			Family:      FamilyImageToVideo,
			Active:      false,
			LongRunning: true,
			Params: []Param{
				{
					Name: "duration", Label: "时长", Type: ParamChoice, Default: "6",
					Options: []Option{{Value: "6", Label: "6秒"}, {Value: "10", Label: "10秒"}},
				},
				{Name: "prompt_optimizer", Label: "提示词优化", Type: ParamBoolean, Default: true},
			},
		},
	}
}
