package descriptor

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/conduit-lang/weft/pkg/capability"
)

// ManifestVersion is bumped when the manifest layout changes
const ManifestVersion = 1

// ManifestFile is the manifest name in the output root
const ManifestFile = "weft.manifest.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Failure is a handler or file that could not be deployed
type Failure struct {
	Handler Identity `json:"handler,omitempty"`
	File    string   `json:"file,omitempty"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
}

// Manifest records the outcome of one deployment
type Manifest struct {
	Version    int    `json:"version"`
	Module     string `json:"module"`
	SourceHash string `json:"source_hash"`

	Controllers  []*HandlerDescriptor `json:"controllers"`
	Interceptors []*HandlerDescriptor `json:"interceptors"`
	Initializers []*HandlerDescriptor `json:"initializers"`
	Failures     []Failure            `json:"failures,omitempty"`
}

// NewManifest classifies descriptors by kind, each group sorted by identity
func NewManifest(module, sourceHash string, descs []*HandlerDescriptor) *Manifest {
	m := &Manifest{
		Version:      ManifestVersion,
		Module:       module,
		SourceHash:   sourceHash,
		Controllers:  []*HandlerDescriptor{},
		Interceptors: []*HandlerDescriptor{},
		Initializers: []*HandlerDescriptor{},
	}
	for _, d := range descs {
		switch d.Kind {
		case capability.KindController:
			m.Controllers = append(m.Controllers, d)
		case capability.KindInterceptor:
			m.Interceptors = append(m.Interceptors, d)
		case capability.KindInitializer:
			m.Initializers = append(m.Initializers, d)
		}
	}
	SortByIdentity(m.Controllers)
	SortByIdentity(m.Interceptors)
	SortByIdentity(m.Initializers)
	return m
}

// Handlers returns every descriptor in controller, interceptor, initializer
// order
func (m *Manifest) Handlers() []*HandlerDescriptor {
	out := make([]*HandlerDescriptor, 0, len(m.Controllers)+len(m.Interceptors)+len(m.Initializers))
	out = append(out, m.Controllers...)
	out = append(out, m.Interceptors...)
	return append(out, m.Initializers...)
}

// Lookup finds a descriptor by identity
func (m *Manifest) Lookup(id Identity) (*HandlerDescriptor, bool) {
	for _, d := range m.Handlers() {
		if d.Identity == id {
			return d, true
		}
	}
	return nil, false
}

// Encode writes the manifest as indented JSON
func (m *Manifest) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// DecodeManifest reads a manifest written by Encode
func DecodeManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}
