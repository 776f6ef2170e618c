// Package deploy turns a handler source tree into a deployable output tree.
//
// The loader copies the source tree, parses every Go package, extracts and
// validates each marked handler, and writes the specialized form of every
// valid handler next to its package sources. Invalid handlers are reported
// and skipped; they never abort the rest of the deployment.
package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/mod/modfile"

	"github.com/conduit-lang/weft/internal/descriptor"
	werrors "github.com/conduit-lang/weft/internal/errors"
	"github.com/conduit-lang/weft/internal/extract"
	"github.com/conduit-lang/weft/internal/specialize"
)

// Options configures a deployment
type Options struct {
	SourceDir string
	OutputDir string
	// ModulePath overrides the module path read from SourceDir/go.mod
	ModulePath string
	// Clean empties OutputDir first
	Clean        bool
	ProgressFunc func(current, total int, message string)
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		SourceDir: "app",
		OutputDir: "build/app",
		Clean:     true,
	}
}

// Result describes one deployment
type Result struct {
	Success      bool
	Module       string
	OutputDir    string
	ManifestPath string
	Manifest     *descriptor.Manifest

	Controllers  []*descriptor.HandlerDescriptor
	Interceptors []*descriptor.HandlerDescriptor
	Initializers []*descriptor.HandlerDescriptor

	// Failures are per-handler and per-file problems; the rest of the
	// tree was still deployed
	Failures werrors.ErrorList

	FilesCopied    int
	FilesGenerated int
	Duration       time.Duration
}

// Loader runs deployments
type Loader struct {
	opts   Options
	logger *zap.Logger
	gen    *specialize.Generator
}

// NewLoader creates a loader
func NewLoader(opts Options, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		opts:   opts,
		logger: logger,
		gen:    specialize.NewGenerator(),
	}
}

// Options returns the loader's options
func (l *Loader) Options() Options { return l.opts }

type sourceFile struct {
	rel  string
	data []byte
}

// Load runs one deployment. Structural problems (unreadable source tree,
// unwritable output, unknown module) are returned as errors; everything
// else is recorded in Result.Failures.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	start := time.Now()

	src, out, err := l.prepare()
	if err != nil {
		return nil, err
	}

	module := l.opts.ModulePath
	if module == "" {
		if module, err = ModulePath(src); err != nil {
			return nil, err
		}
	}

	result := &Result{Module: module, OutputDir: out}

	sources, hash, copied, err := l.copyTree(ctx, src, out)
	if err != nil {
		return nil, err
	}
	result.FilesCopied = copied

	u := extract.NewUniverse(module)
	for i, f := range sources {
		l.progress(i, len(sources), "parsing "+f.rel)
		if _, err := u.AddFile(f.rel, f.data); err != nil {
			le := werrors.As(err)
			l.logger.Warn("source file does not parse, copied unchanged",
				zap.String("file", f.rel),
				zap.Error(err))
			result.Failures = append(result.Failures, le)
		}
	}

	descs, failures := extract.New(u, extract.WithLogger(l.logger)).ExtractAll()
	for _, f := range failures {
		l.logger.Warn("handler skipped",
			zap.String("handler", f.Handler),
			zap.String("code", string(f.Code)),
			zap.String("reason", f.Message))
	}
	result.Failures = append(result.Failures, failures...)

	valid, err := l.generate(ctx, u, out, descs, result)
	if err != nil {
		return nil, err
	}

	manifest := descriptor.NewManifest(module, hash, valid)
	for _, f := range result.Failures {
		manifest.Failures = append(manifest.Failures, descriptor.Failure{
			Handler: descriptor.Identity(f.Handler),
			File:    f.Location.File,
			Code:    string(f.Code),
			Message: f.Message,
		})
	}
	result.ManifestPath = filepath.Join(out, descriptor.ManifestFile)
	if err := writeManifest(result.ManifestPath, manifest); err != nil {
		return nil, werrors.NewLoadFailed("writing manifest").WithCause(err)
	}

	result.Manifest = manifest
	result.Controllers = manifest.Controllers
	result.Interceptors = manifest.Interceptors
	result.Initializers = manifest.Initializers
	result.Success = len(result.Failures) == 0
	result.Duration = time.Since(start)

	l.logger.Info("deployment finished",
		zap.String("module", module),
		zap.Int("controllers", len(result.Controllers)),
		zap.Int("interceptors", len(result.Interceptors)),
		zap.Int("initializers", len(result.Initializers)),
		zap.Int("failures", len(result.Failures)),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// prepare checks the source tree and creates the output tree
func (l *Loader) prepare() (string, string, error) {
	src, err := filepath.Abs(l.opts.SourceDir)
	if err != nil {
		return "", "", werrors.NewLoadFailed("resolving source directory").WithCause(err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", "", werrors.NewLoadFailed(fmt.Sprintf("source directory %s is not readable", src)).WithCause(err)
	}
	if !info.IsDir() {
		return "", "", werrors.NewLoadFailed(fmt.Sprintf("source %s is not a directory", src))
	}

	out, err := filepath.Abs(l.opts.OutputDir)
	if err != nil {
		return "", "", werrors.NewLoadFailed("resolving output directory").WithCause(err)
	}
	if out == src || strings.HasPrefix(src, out+string(filepath.Separator)) {
		return "", "", werrors.NewLoadFailed("output directory must not contain the source directory")
	}

	if l.opts.Clean {
		if err := os.RemoveAll(out); err != nil {
			return "", "", werrors.NewLoadFailed(fmt.Sprintf("cleaning output directory %s", out)).WithCause(err)
		}
	}
	if err := os.MkdirAll(out, 0755); err != nil {
		return "", "", werrors.NewLoadFailed(fmt.Sprintf("creating output directory %s", out)).WithCause(err)
	}
	return src, out, nil
}

// ModulePath reads the module path from dir/go.mod
func ModulePath(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return "", werrors.NewModuleUnknown(dir, err)
	}
	module := modfile.ModulePath(data)
	if module == "" {
		return "", werrors.NewModuleUnknown(dir, fmt.Errorf("go.mod has no module directive"))
	}
	return module, nil
}

// copyTree copies every file to out and returns the Go sources to parse
// together with the source hash
func (l *Loader) copyTree(ctx context.Context, src, out string) ([]sourceFile, string, int, error) {
	var (
		sources []sourceFile
		copied  int
	)
	hash := sha256.New()

	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if p == src {
				return nil
			}
			if p == out || skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()
		if isGenerated(name) || rel == descriptor.ManifestFile || strings.HasPrefix(rel, specialize.AggregateDir+"/") {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		hash.Write([]byte(rel))
		hash.Write([]byte{0})
		hash.Write(data)

		if err := writeFile(filepath.Join(out, filepath.FromSlash(rel)), data); err != nil {
			return err
		}
		copied++

		if strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go") {
			sources = append(sources, sourceFile{rel: rel, data: data})
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", 0, ctx.Err()
		}
		return nil, "", 0, werrors.NewLoadFailed("copying source tree").WithCause(err)
	}

	return sources, hex.EncodeToString(hash.Sum(nil)), copied, nil
}

// generate writes the specialized files and per-package registries and
// returns the descriptors that were written
func (l *Loader) generate(ctx context.Context, u *extract.Universe, out string, descs []*descriptor.HandlerDescriptor, result *Result) ([]*descriptor.HandlerDescriptor, error) {
	byPkg := make(map[string][]*descriptor.HandlerDescriptor)
	for _, d := range descs {
		byPkg[d.Identity.ImportPath()] = append(byPkg[d.Identity.ImportPath()], d)
	}

	var (
		valid      []*descriptor.HandlerDescriptor
		registries []string
	)
	for _, pkg := range u.Packages() {
		pdescs := byPkg[pkg.ImportPath]
		if len(pdescs) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(out, filepath.FromSlash(pkg.Dir))
		var written []*descriptor.HandlerDescriptor
		for _, d := range pdescs {
			code, err := l.gen.Specialize(d)
			if err != nil {
				le := werrors.As(err)
				le.Location = werrors.Location{File: d.File}
				l.logger.Warn("handler not specialized", zap.String("handler", string(d.Identity)), zap.Error(err))
				result.Failures = append(result.Failures, le)
				continue
			}
			if err := writeFile(filepath.Join(dir, specialize.FileName(d.TypeName)), []byte(code)); err != nil {
				return nil, werrors.NewLoadFailed("writing generated source").WithCause(err)
			}
			result.FilesGenerated++
			written = append(written, d)
			l.logger.Debug("handler specialized",
				zap.String("handler", string(d.Identity)),
				zap.String("kind", d.Kind.String()))
		}
		if len(written) == 0 {
			continue
		}

		code, err := l.gen.Registry(pkg.Name, written)
		if err != nil {
			result.Failures = append(result.Failures, werrors.As(err))
			continue
		}
		if err := writeFile(filepath.Join(dir, specialize.RegistryFile), []byte(code)); err != nil {
			return nil, werrors.NewLoadFailed("writing generated source").WithCause(err)
		}
		result.FilesGenerated++
		valid = append(valid, written...)

		if pkg.Name == "main" {
			l.logger.Warn("handlers in package main are not part of the deployment set",
				zap.String("package", pkg.ImportPath))
			continue
		}
		registries = append(registries, pkg.ImportPath)
	}

	if len(registries) > 0 {
		code, err := l.gen.Aggregate(registries)
		if err != nil {
			return nil, err
		}
		if err := writeFile(filepath.Join(out, specialize.AggregateDir, specialize.AggregateFile), []byte(code)); err != nil {
			return nil, werrors.NewLoadFailed("writing generated source").WithCause(err)
		}
		result.FilesGenerated++
	}

	return valid, nil
}

func (l *Loader) progress(current, total int, message string) {
	if l.opts.ProgressFunc != nil {
		l.opts.ProgressFunc(current, total, message)
	}
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
		name == "vendor" || name == "testdata"
}

func isGenerated(name string) bool {
	return strings.HasPrefix(name, specialize.FilePrefix) && path.Ext(name) == ".go"
}

func writeFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0644)
}

func writeManifest(p string, m *descriptor.Manifest) error {
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if err := m.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadManifest loads the manifest of a deployed output tree
func ReadManifest(outputDir string) (*descriptor.Manifest, error) {
	f, err := os.Open(filepath.Join(outputDir, descriptor.ManifestFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return descriptor.DecodeManifest(f)
}

// SortedFailures returns failures ordered by handler then code
func (r *Result) SortedFailures() werrors.ErrorList {
	out := make(werrors.ErrorList, len(r.Failures))
	copy(out, r.Failures)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Handler != out[j].Handler {
			return out[i].Handler < out[j].Handler
		}
		return out[i].Code < out[j].Code
	})
	return out
}
