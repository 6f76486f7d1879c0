package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

const ManifestFilename = "config.json"

// Manifest is the record stored at the root of every container. The JSON keys
// are fixed by containers already in circulation.
type Manifest struct {
	AppName            string `json:"app_name" validate:"required"`
	DefaultExtractPath string `json:"默认解压路径" validate:"required"`
	MainExecutable     string `json:"主程序目录" validate:"required"`
}

type manifestAliases struct {
	AppName            string `json:"app_name"`
	DefaultExtractPath string `json:"默认解压路径"`
	MainExecutable     string `json:"主程序目录"`

	EnglishDefaultExtractPath string `json:"default_extract_path"`
	EnglishMainExecutable     string `json:"main_executable_relative_path"`
}

func (this *Manifest) UnmarshalJSON(raw []byte) error {
	var aliases manifestAliases
	if err := json.Unmarshal(raw, &aliases); err != nil {
		return err
	}
	*this = Manifest{
		AppName:            aliases.AppName,
		DefaultExtractPath: firstNonBlank(aliases.DefaultExtractPath, aliases.EnglishDefaultExtractPath),
		MainExecutable:     firstNonBlank(aliases.MainExecutable, aliases.EnglishMainExecutable),
	}
	*this = this.Normalize()
	return nil
}

func ParseManifest(raw []byte) (manifest Manifest, err error) {
	err = json.Unmarshal(raw, &manifest)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %w", ErrManifestCorrupt, err)
	}
	return manifest, nil
}

func (this Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(this.Normalize(), "", "    ")
}

func (this Manifest) Normalize() Manifest {
	this.AppName = strings.TrimSpace(this.AppName)
	this.DefaultExtractPath = strings.TrimSpace(this.DefaultExtractPath)
	if this.DefaultExtractPath != "" {
		this.DefaultExtractPath = filepath.Clean(this.DefaultExtractPath)
	}
	this.MainExecutable = strings.TrimSpace(filepath.ToSlash(this.MainExecutable))
	if this.MainExecutable != "" {
		this.MainExecutable = path.Clean(this.MainExecutable)
	}
	return this
}

// Validate checks the fields an installer cannot proceed without.
func (this Manifest) Validate() error {
	return describeInvalidFields(validate.StructPartial(this.Normalize(), "MainExecutable"))
}

// ValidateForBuild checks every field; a freshly built container must be complete.
func (this Manifest) ValidateForBuild() error {
	return describeInvalidFields(validate.Struct(this.Normalize()))
}

// ResolveExecutable returns the absolute path of the main executable beneath root.
func (this Manifest) ResolveExecutable(root string) (string, error) {
	if err := this.Validate(); err != nil {
		return "", err
	}
	resolved, err := SecureJoin(root, this.Normalize().MainExecutable)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: main executable %q: %w", ErrManifestCorrupt, this.MainExecutable, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: main executable %q is a directory", ErrManifestCorrupt, this.MainExecutable)
	}
	return resolved, nil
}

// Key is the directory name an application installs under. Names made only
// of dots and spaces, such as "..", fall back to DefaultAppName.
func (this Manifest) Key() string {
	name := strings.TrimSpace(this.AppName)
	if name == "" {
		return DefaultAppName
	}
	key := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	if strings.Trim(key, ". ") == "" {
		return DefaultAppName
	}
	return key
}

const DefaultAppName = "MyApp"

func describeInvalidFields(err error) error {
	if err == nil {
		return nil
	}
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return err
	}
	var fields []string
	for _, field := range invalid {
		fields = append(fields, manifestFieldNames[field.StructField()])
	}
	return fmt.Errorf("%w: %s", ErrMissingManifestField, strings.Join(fields, ", "))
}

var manifestFieldNames = map[string]string{
	"AppName":            "app_name",
	"DefaultExtractPath": "default_extract_path",
	"MainExecutable":     "main_executable_relative_path",
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

var validate = validator.New()
