package specialize

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/weft/internal/descriptor"
	"github.com/conduit-lang/weft/internal/pattern"
	"github.com/conduit-lang/weft/pkg/capability"
)

func usersDescriptor() *descriptor.HandlerDescriptor {
	p := pattern.MustCompile("/users/*")
	d := descriptor.New(capability.KindController, "example.com/app.Users", "app")
	d.Pattern = &p
	d.Parameters = []descriptor.ParameterDescriptor{
		{Name: "name", Member: "name", Type: "*string", Getter: "Name", Setter: "SetName"},
		{
			Name: "from", Member: "since", Type: "*time.Time",
			Imports: []descriptor.ImportRef{{Name: "time", Path: "time"}},
			Getter:  "Since", Setter: "SetSince", Converter: "DateConverter",
		},
		{
			Name: "ids", Member: "ids", Type: "[]uuid.UUID", TypeKey: "[]github.com/google/uuid.UUID",
			Imports: []descriptor.ImportRef{{Name: "uuid", Path: "github.com/google/uuid"}},
			Getter:  "Ids", Setter: "SetIds",
		},
		{
			Name: "client", Member: "client", Type: "*redis.Options",
			Imports: []descriptor.ImportRef{{Name: "redis", Path: "github.com/redis/go-redis/v9"}},
			Getter:  "Client", Setter: "SetClient",
		},
	}
	d.Contexts = []descriptor.ContextBinding{
		{Kind: descriptor.ContextSession, Member: "session", Getter: "Session", Setter: "SetSession"},
		{Kind: descriptor.ContextRequest, Member: "request", Getter: "Request", Setter: "SetRequest"},
	}
	d.Actions = []descriptor.ActionDescriptor{
		{Name: "main", Method: "Main"},
		{Name: "create", Method: "Add", ContentType: "text/html", Interceptors: []descriptor.Identity{"example.com/app.Auth"}},
	}
	return d
}

func mustParse(t *testing.T, src string) {
	t.Helper()
	_, err := parser.ParseFile(token.NewFileSet(), "gen.go", src, parser.ParseComments)
	require.NoError(t, err, src)
}

func TestSpecializeController(t *testing.T) {
	code, err := NewGenerator().Specialize(usersDescriptor())
	require.NoError(t, err)
	mustParse(t, code)

	if !strings.HasPrefix(code, Header+"\n\npackage app\n") {
		t.Errorf("Generated code should start with the header and package clause, got:\n%s", code)
	}

	for _, want := range []string{
		`"time"`,
		`"github.com/conduit-lang/weft/pkg/capability"`,
		`"github.com/conduit-lang/weft/pkg/convert"`,
		`"github.com/google/uuid"`,
		`"github.com/redis/go-redis/v9"`,
		"var weftUsersSpec = &capability.ControllerSpec[Users]{",
		`TypeName: "example.com/app.Users",`,
		`Pattern:  "/users/*",`,
		"Get:  func(h *Users) any { return h.Name() },",
		"var zero *time.Time",
		"x, ok := v.([]uuid.UUID)",
		`Type: "[]github.com/google/uuid.UUID",`,
		`Type: "*time.Time",`,
		"h.SetSince(x)",
		"Converter: func() convert.Converter { return new(DateConverter) },",
		"Request: (*Users).SetRequest,",
		"Session: (*Users).SetSession,",
		`{Name: "main", Invoke: (*Users).Main},`,
		`{Name: "create", ContentType: "text/html", Interceptors: []string{"example.com/app.Auth"}, Invoke: (*Users).Add},`,
	} {
		if !strings.Contains(code, want) {
			t.Errorf("Generated code should contain %q, got:\n%s", want, code)
		}
	}

	// contexts are emitted in injection order regardless of declaration order
	assert.Less(t, strings.Index(code, "Request: (*Users)"), strings.Index(code, "Session: (*Users)"))
}

func TestSpecializeControllerWithoutConverters(t *testing.T) {
	p := pattern.MustCompile("/about")
	d := descriptor.New(capability.KindController, "example.com/app.About", "app")
	d.Pattern = &p
	d.Actions = []descriptor.ActionDescriptor{{Name: "team", Method: "Team"}}

	code, err := NewGenerator().Specialize(d)
	require.NoError(t, err)
	mustParse(t, code)

	assert.NotContains(t, code, "pkg/convert")
	assert.NotContains(t, code, "Params:")
	assert.NotContains(t, code, "Contexts:")
}

func TestSpecializeAliasedImport(t *testing.T) {
	p := pattern.MustCompile("/cart/*")
	d := descriptor.New(capability.KindController, "example.com/app.Cart", "app")
	d.Pattern = &p
	d.Parameters = []descriptor.ParameterDescriptor{{
		Name: "key", Member: "key", Type: "*u.UUID", TypeKey: "*github.com/google/uuid.UUID",
		Imports: []descriptor.ImportRef{{Name: "u", Path: "github.com/google/uuid"}},
		Getter:  "Key", Setter: "SetKey",
	}}
	d.Actions = []descriptor.ActionDescriptor{{Name: "main", Method: "Main"}}

	code, err := NewGenerator().Specialize(d)
	require.NoError(t, err)
	mustParse(t, code)

	assert.Contains(t, code, `u "github.com/google/uuid"`)
	assert.Contains(t, code, "var zero *u.UUID")
	assert.Contains(t, code, "x, ok := v.(*u.UUID)")
	assert.Contains(t, code, `Type: "*github.com/google/uuid.UUID",`)
}

func TestSpecializeInterceptor(t *testing.T) {
	d := descriptor.New(capability.KindInterceptor, "example.com/app.Auth", "app")
	d.Contexts = []descriptor.ContextBinding{{Kind: descriptor.ContextSession, Member: "session", Getter: "Session", Setter: "SetSession"}}
	d.Before = &descriptor.LifecycleMethod{Method: "Before", ContentType: "application/json"}
	d.After = &descriptor.LifecycleMethod{Method: "After"}

	code, err := NewGenerator().Specialize(d)
	require.NoError(t, err)
	mustParse(t, code)

	for _, want := range []string{
		"var weftAuthSpec = &capability.InterceptorSpec[Auth]{",
		"Before:            (*Auth).Before,",
		`BeforeContentType: "application/json",`,
		"After:             (*Auth).After,",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("Generated code should contain %q, got:\n%s", want, code)
		}
	}
	assert.NotContains(t, code, "AfterContentType")
}

func TestSpecializeInitializerAdapters(t *testing.T) {
	tests := []struct {
		name  string
		init  descriptor.LifecycleMethod
		wants []string
	}{
		{
			name:  "no results",
			init:  descriptor.LifecycleMethod{Method: "Init", Results: descriptor.ResultsNone},
			wants: []string{"Init: func(h *Boot) error {", "h.Init()", "return nil"},
		},
		{
			name:  "error only",
			init:  descriptor.LifecycleMethod{Method: "Init", Results: descriptor.ResultsError, NumResults: 1},
			wants: []string{"Init:        (*Boot).Init,"},
		},
		{
			name:  "values and error",
			init:  descriptor.LifecycleMethod{Method: "Init", Results: descriptor.ResultsValuesAndError, NumResults: 3},
			wants: []string{"_, _, err := h.Init()", "return err"},
		},
		{
			name:  "values only",
			init:  descriptor.LifecycleMethod{Method: "Init", Results: descriptor.ResultsValues, NumResults: 2},
			wants: []string{"h.Init()", "return nil"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := descriptor.New(capability.KindInitializer, "example.com/app.Boot", "app")
			d.Contexts = []descriptor.ContextBinding{{Kind: descriptor.ContextApplication, Member: "app", Getter: "App", Setter: "SetApp"}}
			init := tt.init
			d.Init = &init
			d.Destroy = &descriptor.LifecycleMethod{Method: "Destroy", Results: descriptor.ResultsNone}

			code, err := NewGenerator().Specialize(d)
			require.NoError(t, err)
			mustParse(t, code)

			assert.Contains(t, code, "var weftBootSpec = &capability.InitializerSpec[Boot]{")
			assert.Contains(t, code, "(*Boot).SetApp,")
			assert.Contains(t, code, "h.Destroy()")
			for _, want := range tt.wants {
				assert.Contains(t, code, want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	boot := descriptor.New(capability.KindInitializer, "example.com/app.Boot", "app")
	auth := descriptor.New(capability.KindInterceptor, "example.com/app.Auth", "app")
	users := usersDescriptor()
	about := descriptor.New(capability.KindController, "example.com/app.About", "app")

	code, err := NewGenerator().Registry("app", []*descriptor.HandlerDescriptor{boot, users, auth, about})
	require.NoError(t, err)
	mustParse(t, code)

	assert.Contains(t, code, "func WeftHandlers() capability.Set {")
	assert.Contains(t, code, "Controllers: []capability.ControllerType{\n\t\t\tweftAboutSpec,\n\t\t\tweftUsersSpec,\n\t\t},")
	assert.Contains(t, code, "Interceptors: []capability.InterceptorType{\n\t\t\tweftAuthSpec,\n\t\t},")
	assert.Contains(t, code, "Initializers: []capability.InitializerType{\n\t\t\tweftBootSpec,\n\t\t},")
}

func TestAggregate(t *testing.T) {
	code, err := NewGenerator().Aggregate([]string{"example.com/app/b", "example.com/app"})
	require.NoError(t, err)
	mustParse(t, code)

	assert.Contains(t, code, "package weftgen")
	assert.Contains(t, code, `h0 "example.com/app"`)
	assert.Contains(t, code, `h1 "example.com/app/b"`)
	assert.Contains(t, code, "h0.WeftHandlers(),")
	assert.Contains(t, code, "h1.WeftHandlers(),")
}

func TestSpecializeIsDeterministic(t *testing.T) {
	g := NewGenerator()
	a, err := g.Specialize(usersDescriptor())
	require.NoError(t, err)
	b, err := g.Specialize(usersDescriptor())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFileNames(t *testing.T) {
	assert.Equal(t, "zz_weft_users.go", FileName("Users"))
	assert.Equal(t, "zz_weft_http_server.go", FileName("HTTPServer"))
	assert.Equal(t, "zz_weft_user_profile.go", FileName("UserProfile"))
	assert.Equal(t, "zz_weft_v2_api.go", FileName("v2API"))
	assert.Equal(t, "weftUsersSpec", SpecVar("Users"))
	assert.Equal(t, "weftAuthSpec", SpecVar("auth"))
}
