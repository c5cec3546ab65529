package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"ebr/common"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	// CacheConfig bounds the in-memory working set of rendered chapters and
	// decoded images. Budgets are in mebibytes to keep the file readable and
	// are converted to bytes by accessors below.
	CacheConfig struct {
		MaxChapters     int `yaml:"max_chapters" validate:"min=1"`
		ChapterBudgetMB int `yaml:"chapter_budget_mb" validate:"min=1"`
		ImageBudgetMB   int `yaml:"image_budget_mb" validate:"min=1"`
	}

	ImagesConfig struct {
		UseBroken    bool `yaml:"use_broken"`
		RasterizeSVG bool `yaml:"rasterize_svg"`
		MaxDimension int  `yaml:"max_dimension" validate:"min=0"`
		JPEGQuality  int  `yaml:"jpeg_quality_level" validate:"min=40,max=100"`
	}

	PositionsConfig struct {
		Path string `yaml:"path" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
	}

	ReaderConfig struct {
		Cache       CacheConfig     `yaml:"cache"`
		Images      ImagesConfig    `yaml:"images"`
		Positions   PositionsConfig `yaml:"positions"`
		DefaultMode common.Mode     `yaml:"default_mode" validate:"gte=0,lte=1"`
		// ScrollStep is the fraction of the viewport height a single scroll
		// intent moves by while in scroll mode.
		ScrollStep float64 `yaml:"scroll_step" validate:"gt=0,lte=1"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Reader    ReaderConfig   `yaml:"reader"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

const mib = 1024 * 1024

// ChapterBudgetBytes returns aggregate byte bound for the chapter cache.
func (c *CacheConfig) ChapterBudgetBytes() int64 {
	return int64(c.ChapterBudgetMB) * mib
}

// ImageBudgetBytes returns aggregate byte bound for the image cache.
func (c *CacheConfig) ImageBudgetBytes() int64 {
	return int64(c.ImageBudgetMB) * mib
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, fmt.Errorf("failed to sanitize configuration: %w", err)
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, fmt.Errorf("failed to validate configuration: %w", err)
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
