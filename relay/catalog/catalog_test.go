package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCatalog(t *testing.T) {
	c, err := New(BuiltinModels())
	require.NoError(t, err)

	active := c.Active()
	ids := make([]string, 0, len(active))
	for _, m := range active {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{ModelVeo3, ModelKling, ModelFluxDev, ModelNanoBanana}, ids)
	assert.Len(t, c.All(), 5)

	_, err = c.Lookup(ModelHailuo02)
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	_, err = c.Lookup("fal-ai/unknown")
	assert.True(t, errors.Is(err, ErrModelUnavailable))

	kling, err := c.Lookup(ModelKling)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"duration":        "5",
		"aspect_ratio":    "16:9",
		"negative_prompt": "blur, distort, and low quality",
		"cfg_scale":       0.5,
	}, kling.Defaults())
}

func TestLookupReturnsCopy(t *testing.T) {
	c, err := New(BuiltinModels())
	require.NoError(t, err)

	first, err := c.Lookup(ModelKling)
	require.NoError(t, err)
	first.Params[0].Default = "10"
	first.Params[1].Options[0].Value = "changed"
	*first.Params[3].Min = 99

	second, err := c.Lookup(ModelKling)
	require.NoError(t, err)
	assert.Equal(t, "5", second.Params[0].Default)
	assert.Equal(t, "16:9", second.Params[1].Options[0].Value)
	assert.Equal(t, 0.0, *second.Params[3].Min)
}

func TestEmptyCatalog(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	assert.Empty(t, c.Active())
	_, err = c.First()
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestNewRejectsInvalidModels(t *testing.T) {
	tests := []struct {
		name   string
		models []ModelConfig
	}{
		{
			name:   "missing id",
			models: []ModelConfig{{Name: "x", Kind: KindVideo, Family: FamilyTextToVideo}},
		},
		{
			name:   "unknown family",
			models: []ModelConfig{{ID: "a/b", Name: "x", Kind: KindVideo, Family: "audio"}},
		},
		{
			name: "duplicate id",
			models: []ModelConfig{
				{ID: "a/b", Name: "x", Kind: KindVideo, Family: FamilyTextToVideo},
				{ID: "a/b", Name: "y", Kind: KindVideo, Family: FamilyTextToVideo},
			},
		},
		{
			name: "choice without options",
			models: []ModelConfig{{ID: "a/b", Name: "x", Kind: KindVideo, Family: FamilyTextToVideo,
				Params: []Param{{Name: "duration", Type: ParamChoice, Default: "5"}}}},
		},
		{
			name: "default not in options",
			models: []ModelConfig{{ID: "a/b", Name: "x", Kind: KindVideo, Family: FamilyTextToVideo,
				Params: []Param{{Name: "duration", Type: ParamChoice, Default: "7", Options: []Option{{Value: "5"}}}}}},
		},
		{
			name: "default out of range",
			models: []ModelConfig{{ID: "a/b", Name: "x", Kind: KindImage, Family: FamilyTextToImage,
				Params: []Param{{Name: "steps", Type: ParamInteger, Default: 100, Max: float64Ptr(50)}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.models)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	content := `
models:
  - id: fal-ai/veo3
    name: Veo3
    kind: video
    family: text-to-video
    active: true
    params:
      - name: duration
        type: choice
        default: 8s
        options:
          - value: 8s
  - id: fal-ai/flux/dev
    name: FLUX
    kind: image
    family: text-to-image
    active: false
    params:
      - name: num_images
        type: integer
        default: 2
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	active := c.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "fal-ai/veo3", active[0].ID)
	assert.Equal(t, map[string]any{"duration": "8s"}, active[0].Defaults())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParamCoerce(t *testing.T) {
	cfg := Param{Name: "cfg_scale", Type: ParamNumber, Min: float64Ptr(0), Max: float64Ptr(1)}
	steps := Param{Name: "steps", Type: ParamInteger}
	safety := Param{Name: "safety", Type: ParamBoolean}
	duration := Param{Name: "duration", Type: ParamChoice, Options: []Option{{Value: "5"}, {Value: "10"}}}

	tests := []struct {
		name    string
		param   Param
		value   any
		want    any
		wantErr bool
	}{
		{"number from string", cfg, "0.7", 0.7, false},
		{"number from float", cfg, 0.2, 0.2, false},
		{"number not parseable", cfg, "abc", nil, true},
		{"number above max", cfg, "1.5", nil, true},
		{"integer from string", steps, "28", int64(28), false},
		{"integer from int", steps, 4, int64(4), false},
		{"integer fractional", steps, "2.5", nil, true},
		{"boolean from string", safety, "false", false, false},
		{"boolean from bool", safety, true, true, false},
		{"boolean invalid", safety, "maybe", nil, true},
		{"choice valid", duration, "10", "10", false},
		{"choice from int", duration, 5, "5", false},
		{"choice invalid", duration, "7", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.param.Coerce(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
