package lbl

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trainConfigYAML = `
param:
  rows: 2
  cols: 3
  model: pixel
  bins: 8
  tagger: object_type
  labels: [car, person]
  trainer: var
  variance_weight: 0.25
  sharing: indep
filename_values: values.npy
filename_targets: targets.npy
filename_model: model.vbgz
threads_num: 2
`

func TestDecodeConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(trainConfigYAML), 0o644))

	config := NewTrainConfig()
	require.NoError(t, DecodeConfig(path, &config))

	assert.Equal(t, 2, config.Param.Rows)
	assert.Equal(t, 3, config.Param.Cols)
	assert.Equal(t, "pixel", config.Param.Model)
	assert.Equal(t, []string{"car", "person"}, config.Param.Labels)
	assert.Equal(t, TrainerVariational, config.Param.Trainer)
	assert.Equal(t, 0.25, config.Param.VarianceWeight)
	assert.Equal(t, SharingIndependent, config.Param.Sharing)
	assert.Equal(t, "diag_log", config.Param.Loss)
	assert.Equal(t, "model.vbgz", config.FileNameModel)
	assert.Equal(t, 2, config.ThreadsNum)
	assert.NoError(t, config.Param.Validate(DefaultRegistry()))
}

func TestDecodeConfigRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("n_stages: 10\n"), 0o644))

	config := NewTrainConfig()
	assert.Error(t, DecodeConfig(path, &config))
	assert.Error(t, DecodeConfig(filepath.Join(t.TempDir(), "missing.yaml"), &config))
}

func TestParamValidate(t *testing.T) {
	reg := DefaultRegistry()
	require.NoError(t, DefaultParam().Validate(reg))

	cases := map[string]struct {
		mutate func(p *Param)
		target error
	}{
		"window":     {func(p *Param) { p.Rows = 0 }, ErrDimension},
		"loss":       {func(p *Param) { p.Loss = "hinge" }, ErrUnknownKind},
		"trainer":    {func(p *Param) { p.Trainer = "max" }, ErrUnknownKind},
		"sharing":    {func(p *Param) { p.Sharing = "some" }, ErrUnknownKind},
		"model":      {func(p *Param) { p.Model = "haar" }, ErrUnknownKind},
		"tagger":     {func(p *Param) { p.Tagger = "face" }, ErrUnknownKind},
		"labels":     {func(p *Param) { p.Tagger = "object_type" }, ErrDimension},
		"pixel bins": {func(p *Param) { p.Model, p.Bins = "pixel", 1 }, ErrDimension},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			param := DefaultParam()
			tc.mutate(&param)
			err := param.Validate(reg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.target), "%v", err)
		})
	}
}

func TestParamRecordRoundTrip(t *testing.T) {
	param := DefaultParam()
	param.Tagger = "keypoint"
	param.Labels = []string{"left eye", "right eye"}
	param.VarianceWeight = 1.0 / 3.0

	for _, format := range []Format{FormatText, FormatGzipBinary} {
		var buf bytes.Buffer
		enc := openWriter(&buf, format)
		require.NoError(t, param.save(enc))
		require.NoError(t, enc.Close())

		dec, err := openReader(&buf, format)
		require.NoError(t, err)
		loaded, err := loadParam(dec)
		require.NoError(t, err)
		assert.Equal(t, param, loaded)
	}

	var buf bytes.Buffer
	enc := openWriter(&buf, FormatText)
	require.NoError(t, DefaultParam().save(enc))
	require.NoError(t, enc.Close())
	dec, err := openReader(&buf, FormatText)
	require.NoError(t, err)
	loaded, err := loadParam(dec)
	require.NoError(t, err)
	assert.Nil(t, loaded.Labels)
	assert.Equal(t, DefaultParam(), loaded)
}
