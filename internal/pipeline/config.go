package pipeline

import "errors"

const (
	DefaultMetadataExt = ".json"
	DefaultImageExt    = ".jpg"
)

// Config locates the dataset a Pipeline reads. MetadataDir and ImageDir are
// required; empty extensions fall back to the defaults.
type Config struct {
	MetadataDir string
	ImageDir    string
	MetadataExt string
	ImageExt    string
}

func (c Config) withDefaults() Config {
	if c.MetadataExt == "" {
		c.MetadataExt = DefaultMetadataExt
	}
	if c.ImageExt == "" {
		c.ImageExt = DefaultImageExt
	}
	return c
}

func (c Config) Validate() error {
	var errs []error
	if c.MetadataDir == "" {
		errs = append(errs, errors.New("metadata dir is required"))
	}
	if c.ImageDir == "" {
		errs = append(errs, errors.New("image dir is required"))
	}
	return errors.Join(errs...)
}
