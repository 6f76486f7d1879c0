package core

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/logging"
)

type InstalledApplication struct {
	Key         string
	DisplayName string
	Root        string
	Manifest    contracts.Manifest
}

type Registry struct {
	files  contracts.FileReader
	logger *zap.Logger
}

func NewRegistry(files contracts.FileReader, logger *zap.Logger) *Registry {
	return &Registry{files: files, logger: logging.OrNop(logger)}
}

// Discover lists the applications installed directly beneath appsRoot. A
// missing appsRoot holds no applications.
func (this *Registry) Discover(appsRoot string) (applications []InstalledApplication, err error) {
	appsRoot = filepath.Clean(appsRoot)
	isManifest := FilesOnly(MatchingGlob("*/" + contracts.ManifestFilename))
	for entry, err := range ListEntriesMatching(appsRoot, isManifest, MaxDepth(2)) {
		if err != nil {
			if entry.Path == appsRoot && errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			this.logger.Warn("Unable to scan application directory.", zap.String("path", entry.Path), zap.Error(err))
			continue
		}
		application, ok := this.load(appsRoot, entry)
		if ok {
			applications = append(applications, application)
		}
	}
	sort.Slice(applications, func(i, j int) bool { return applications[i].Key < applications[j].Key })
	return applications, nil
}

func (this *Registry) load(appsRoot string, entry Entry) (InstalledApplication, bool) {
	raw, err := this.files.ReadFile(entry.Path)
	if err != nil {
		this.logger.Warn("Unable to read manifest.", zap.String("path", entry.Path), zap.Error(err))
		return InstalledApplication{}, false
	}
	manifest, err := contracts.ParseManifest(raw)
	if err != nil {
		this.logger.Warn("Skipping application with corrupt manifest.", zap.String("path", entry.Path), zap.Error(err))
		return InstalledApplication{}, false
	}
	key := path.Dir(entry.Relative)
	application := InstalledApplication{
		Key:         key,
		DisplayName: manifest.AppName,
		Root:        filepath.Join(appsRoot, filepath.FromSlash(key)),
		Manifest:    manifest,
	}
	if application.DisplayName == "" {
		application.DisplayName = key
	}
	return application, true
}
