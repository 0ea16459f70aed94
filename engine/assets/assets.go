// Package assets indexes the asset directory, loads shaders and images from
// it and reports changes on disk so they can be hot reloaded.
package assets

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spaghettifunk/vulkanmonkey/engine/assets/loaders"
	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanmonkey/engine/systems"
)

var ErrAssetNotFound = errors.New("asset not found")

type AssetInfo struct {
	ID uuid.UUID
	// Name is the lookup key: the file name for shaders, the file name
	// without extension for images.
	Name     string
	Path     string
	Type     metadata.ResourceType
	Modified time.Time
}

// ChangeHandler is called from the watcher goroutine. removed is true when
// the file is gone.
type ChangeHandler func(info AssetInfo, removed bool)

type AssetManager struct {
	root    string
	assets  map[string]*AssetInfo
	names   map[metadata.ResourceType]map[string]string
	loaders map[metadata.ResourceType]Loader

	handlers []ChangeHandler

	// decoded images by name, filled by PreloadImages and dropped when the
	// file changes
	images map[string]*image.RGBA
	jobs   *systems.JobSystem

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	started  bool
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	jobs, err := systems.NewJobSystem(runtime.NumCPU(), 0)
	if err != nil {
		fsWatch.Close()
		return nil, err
	}

	return &AssetManager{
		images:   make(map[string]*image.RGBA),
		jobs:     jobs,
		assets:   make(map[string]*AssetInfo),
		names:    make(map[metadata.ResourceType]map[string]string),
		loaders:  make(map[metadata.ResourceType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize indexes every asset under assetsDir and starts watching it.
func (am *AssetManager) Initialize(assetsDir string) error {
	root, err := filepath.Abs(assetsDir)
	if err != nil {
		return err
	}
	am.root = root

	// Register loaders
	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(metadata.ResourceTypeImage, &loaders.ImageLoader{})

	if err := am.addRecursive(root); err != nil {
		return err
	}
	am.started = true
	go am.start()

	core.LogInfo("asset manager watching %s (%d shaders, %d images)", root,
		len(am.Assets(metadata.ResourceTypeShader)), len(am.Assets(metadata.ResourceTypeImage)))
	return nil
}

// Shutdown stops the watcher and waits for its goroutine.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	jobsErr := am.jobs.Shutdown()
	close(am.done)
	if !am.started {
		return errors.Join(jobsErr, am.fsnotify.Close())
	}
	<-am.stopped
	return jobsErr
}

// Root is the absolute asset directory.
func (am *AssetManager) Root() string {
	return am.root
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

// OnChange subscribes fn to created, modified and removed assets.
func (am *AssetManager) OnChange(fn ChangeHandler) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.handlers = append(am.handlers, fn)
}

// Lookup finds an indexed asset by name.
func (am *AssetManager) Lookup(name string, resourceType metadata.ResourceType) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	path, ok := am.names[resourceType][name]
	if !ok {
		return AssetInfo{}, false
	}
	return *am.assets[path], true
}

// Assets lists the indexed assets of one type sorted by name.
func (am *AssetManager) Assets(resourceType metadata.ResourceType) []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []AssetInfo
	for _, path := range am.names[resourceType] {
		out = append(out, *am.assets[path])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadAsset reads the named asset from disk with the loader of its type.
func (am *AssetManager) LoadAsset(name string, resourceType metadata.ResourceType) (*metadata.Resource, error) {
	info, ok := am.Lookup(name, resourceType)
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", resourceType, name, ErrAssetNotFound)
	}

	am.mutex.RLock()
	loader, loaderExists := am.loaders[resourceType]
	am.mutex.RUnlock()
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", resourceType)
	}

	resource, err := loader.Load(info.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s %q: %w", resourceType, name, ErrAssetNotFound)
		}
		return nil, err
	}
	resource.Name = info.Name
	return resource, nil
}

// LoadShader returns the SPIR-V words of a compiled shader such as
// "sprite.vert.spv". A missing file is reported as core.ErrShaderNotFound.
func (am *AssetManager) LoadShader(name string) ([]uint32, error) {
	resource, err := am.LoadAsset(name, metadata.ResourceTypeShader)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			return nil, fmt.Errorf("%s: %w", name, core.ErrShaderNotFound)
		}
		return nil, err
	}
	return resource.Data.([]uint32), nil
}

// LoadImage decodes the image named name (file name without extension).
// Images decoded by PreloadImages are served from memory.
func (am *AssetManager) LoadImage(name string) (*image.RGBA, error) {
	am.mutex.RLock()
	img, ok := am.images[name]
	am.mutex.RUnlock()
	if ok {
		return img, nil
	}

	resource, err := am.LoadAsset(name, metadata.ResourceTypeImage)
	if err != nil {
		return nil, err
	}
	return resource.Data.(*image.RGBA), nil
}

// PreloadImages decodes every indexed image on the job system workers and
// keeps the results for LoadImage. Images that fail to decode are reported
// together and stay out of the cache.
func (am *AssetManager) PreloadImages() error {
	infos := am.Assets(metadata.ResourceTypeImage)

	var (
		wg       sync.WaitGroup
		errMutex sync.Mutex
		errs     []error
	)
	for _, info := range infos {
		name := info.Name
		wg.Add(1)
		err := am.jobs.Submit(systems.Job{
			Name: "decode " + name,
			Run: func() error {
				resource, err := am.LoadAsset(name, metadata.ResourceTypeImage)
				if err != nil {
					return err
				}
				am.mutex.Lock()
				am.images[name] = resource.Data.(*image.RGBA)
				am.mutex.Unlock()
				return nil
			},
			OnComplete: wg.Done,
			OnFailure: func(err error) {
				errMutex.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				errMutex.Unlock()
				wg.Done()
			},
		})
		if err != nil {
			wg.Done()
			return err
		}
	}
	wg.Wait()

	core.LogDebug("preloaded %d of %d images on %d workers", len(infos)-len(errs), len(infos), am.jobs.Workers())
	return errors.Join(errs...)
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			if err := am.fsnotify.Close(); err != nil {
				core.LogError("failed to close the asset watcher: %s", err)
			}
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	// Can't stat a deleted path, so removals are handled before anything else.
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if info, ok := am.removeAsset(e.Name); ok {
			am.notify(info, true)
		}
		// the path may have been a watched directory
		_ = am.fsnotify.Remove(e.Name)
		return
	}
	if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	s, err := os.Stat(e.Name)
	if err != nil {
		return
	}
	if s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := am.watchRecursive(e.Name, false); err != nil {
				core.LogError("failed to watch %s: %s", e.Name, err)
			}
		}
		return
	}
	if info, ok := am.handleFileEvent(e.Name, s.ModTime()); ok {
		am.notify(info, false)
	}
}

func (am *AssetManager) notify(info AssetInfo, removed bool) {
	am.mutex.RLock()
	handlers := append([]ChangeHandler(nil), am.handlers...)
	am.mutex.RUnlock()

	core.LogDebug("%s %q changed (removed: %t)", info.Type, info.Name, removed)
	for _, fn := range handlers {
		fn(info, removed)
	}
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_ASSET_CHANGED,
		Data: &core.AssetEvent{Path: info.Path, Kind: info.Type.String()},
	})
}

// watchRecursive adds all directories under the given one to the watch
// list and indexes the files found on the way. A file created before its
// directory watch is in place is only seen by the walk.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		info, ok := am.handleFileEvent(walkPath, fi.ModTime())
		if ok && am.started {
			// found in a directory created after startup
			am.notify(info, false)
		}
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string, modified time.Time) (AssetInfo, bool) {
	assetType := metadata.ResourceTypeOf(path)
	if assetType == metadata.ResourceTypeNone {
		return AssetInfo{}, false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()

	if info, ok := am.assets[path]; ok {
		info.Modified = modified
		if assetType == metadata.ResourceTypeImage {
			delete(am.images, info.Name)
		}
		return *info, true
	}

	name := assetName(path, assetType)
	if previous, ok := am.names[assetType][name]; ok && previous != path {
		core.LogWarn("%s %q at %s shadows %s", assetType, name, path, previous)
	}
	info := &AssetInfo{
		ID:       uuid.New(),
		Name:     name,
		Path:     path,
		Type:     assetType,
		Modified: modified,
	}
	am.assets[path] = info
	if am.names[assetType] == nil {
		am.names[assetType] = make(map[string]string)
	}
	am.names[assetType][name] = path
	return *info, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) (AssetInfo, bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	info, ok := am.assets[path]
	if !ok {
		return AssetInfo{}, false
	}
	delete(am.assets, path)
	if am.names[info.Type][info.Name] == path {
		delete(am.names[info.Type], info.Name)
		if info.Type == metadata.ResourceTypeImage {
			delete(am.images, info.Name)
		}
	}
	return *info, true
}

func assetName(path string, assetType metadata.ResourceType) string {
	base := filepath.Base(path)
	if assetType == metadata.ResourceTypeShader {
		return base
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
