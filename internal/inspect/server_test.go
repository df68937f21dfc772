package inspect

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/conduit-lang/objrt/runtime/object"
)

type fixture struct {
	reg    *object.Registry
	gauge  object.Type
	linked object.Type
	server *Server
}

// newFixture registers a Gauge type and starts an inspector for it.
// Instances must be created after the inspector so the tracker sees them.
func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()
	reg := object.NewRegistry(object.WithLogger(zaptest.NewLogger(t)))

	gauge, err := reg.Register(object.TypeDefinition{
		Name: "Gauge",
		Properties: []*object.ParamSpec{
			object.StringParam("label", "", object.ParamReadWrite),
			object.IntParam("level", 0, 100, 10, object.ParamReadWrite),
			object.IntParam("peak", 0, 100, 0, object.ParamReadable),
		},
		Signals: []*object.SignalSpec{
			object.NewSignal("reset", object.SignalRunLast, nil, object.TypeNone),
			object.NewSignal("sum", object.SignalRunLast, []object.Type{object.TypeInt, object.TypeInt}, object.TypeInt).
				WithClassHandler(func(_ *object.Emission, args []object.Value) object.Value {
					a, _ := args[1].AsInt()
					b, _ := args[2].AsInt()
					return object.IntValue(a + b)
				}),
		},
	})
	require.NoError(t, err)

	linked, err := reg.Register(object.TypeDefinition{
		Name:       "Linked",
		Parent:     gauge,
		Properties: []*object.ParamSpec{object.ObjectParam("next", gauge, object.ParamReadWrite)},
	})
	require.NoError(t, err)

	s, err := New(reg, config, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return &fixture{reg: reg, gauge: gauge, linked: linked, server: s}
}

func (f *fixture) newGauge(t *testing.T, props ...object.Property) *object.Object {
	t.Helper()
	obj, err := f.reg.New(f.gauge, props...)
	require.NoError(t, err)
	t.Cleanup(obj.Unref)
	return obj
}

func (f *fixture) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, rec).Error.Code)
}

func TestServer_Types(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	t.Run("list", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/types", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		names := map[string]TypeInfo{}
		for _, info := range decode[[]TypeInfo](t, rec) {
			names[info.Name] = info
		}
		require.Contains(t, names, "Gauge")
		require.Contains(t, names, "Linked")
		assert.Equal(t, "object", names["Gauge"].Kind)
		assert.Equal(t, "Gauge", names["Linked"].Parent)
		assert.Equal(t, "fundamental", names["int"].Kind)
	})

	t.Run("filter by kind", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/types?kind=object", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		for _, info := range decode[[]TypeInfo](t, rec) {
			assert.Equal(t, "object", info.Kind, info.Name)
		}
	})

	t.Run("show", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/types/Gauge", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		d := decode[TypeDetail](t, rec)
		assert.Equal(t, "Gauge", d.Name)
		assert.Equal(t, []string{"Linked"}, d.Children)

		props := map[string]PropertyInfo{}
		for _, p := range d.Properties {
			props[p.Name] = p
		}
		require.Contains(t, props, "level")
		assert.Equal(t, "int", props["level"].Type)
		assert.EqualValues(t, 10, props["level"].Default)

		var sum *SignalInfo
		for i := range d.Signals {
			if d.Signals[i].Name == "sum" {
				sum = &d.Signals[i]
			}
		}
		require.NotNil(t, sum)
		assert.Equal(t, []string{"int", "int"}, sum.Params)
		assert.Equal(t, "int", sum.Returns)
	})

	t.Run("unknown", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/types/Missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_Instances(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a := f.newGauge(t, object.Prop("label", "a"))
	b := f.newGauge(t)
	linked, err := f.reg.New(f.linked)
	require.NoError(t, err)
	t.Cleanup(linked.Unref)

	t.Run("list", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/instances", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		list := decode[[]InstanceInfo](t, rec)
		require.Len(t, list, 3)
		assert.Equal(t, a.ID().String(), list[0].ID)
		assert.Equal(t, b.ID().String(), list[1].ID)
		assert.EqualValues(t, 1, list[0].RefCount)
	})

	t.Run("filter by type includes subtypes", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/instances?type=Linked", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[[]InstanceInfo](t, rec)
		require.Len(t, list, 1)
		assert.Equal(t, "Linked", list[0].Type)

		rec = f.do(t, http.MethodGet, "/instances?type=Gauge", nil)
		assert.Len(t, decode[[]InstanceInfo](t, rec), 3)

		rec = f.do(t, http.MethodGet, "/instances?type=Missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("show", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/instances/"+a.ID().String()+"/", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		d := decode[InstanceDetail](t, rec)
		assert.Equal(t, "Gauge", d.Type)
		assert.EqualValues(t, 1, d.RefCount)
		assert.Equal(t, "a", d.Properties["label"])
		assert.EqualValues(t, 10, d.Properties["level"])
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			path   string
			status int
			code   string
		}{
			{"invalid id", "/instances/not-a-uuid/", http.StatusBadRequest, "INVALID_ID"},
			{"unknown id", "/instances/" + uuid.NewString() + "/", http.StatusNotFound, "NOT_FOUND"},
			{"unknown property", "/instances/" + a.ID().String() + "/properties/missing", http.StatusNotFound, "NOT_FOUND"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := f.do(t, http.MethodGet, tt.path, nil)
				assert.Equal(t, tt.status, rec.Code)
				assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error.Code)
			})
		}
	})
}

func TestServer_FinalizedInstanceIsGone(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	obj, err := f.reg.New(f.gauge)
	require.NoError(t, err)
	id := obj.ID()

	require.NotNil(t, f.server.Tracker().Lookup(id))
	obj.Unref() // drop the lookup reference
	obj.Unref()

	assert.Nil(t, f.server.Tracker().Lookup(id))
	assert.Equal(t, 0, f.server.Tracker().Len())

	rec := f.do(t, http.MethodGet, "/instances/"+id.String()+"/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Properties(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	obj := f.newGauge(t)
	base := "/instances/" + obj.ID().String() + "/properties/"

	t.Run("get", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, base+"level", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		v := decode[PropertyValue](t, rec)
		assert.Equal(t, "level", v.Name)
		assert.Equal(t, "int", v.Type)
		assert.EqualValues(t, 10, v.Value)
	})

	t.Run("set", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, base+"level", SetPropertyRequest{Value: 42})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.EqualValues(t, 42, decode[PropertyValue](t, rec).Value)

		v, err := obj.Property("level")
		require.NoError(t, err)
		n, _ := v.AsInt()
		assert.EqualValues(t, 42, n)

		rec = f.do(t, http.MethodPut, base+"label", SetPropertyRequest{Value: "hot"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hot", decode[PropertyValue](t, rec).Value)
	})

	tests := []struct {
		name   string
		prop   string
		body   string
		status int
		code   string
	}{
		{"read-only", "peak", `{"value": 1}`, http.StatusForbidden, "NOT_WRITABLE"},
		{"out of range", "level", `{"value": 500}`, http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{"wrong type", "level", `{"value": [1]}`, http.StatusUnprocessableEntity, "TYPE_MISMATCH"},
		{"not an integer", "level", `{"value": 2.5}`, http.StatusUnprocessableEntity, "TYPE_MISMATCH"},
		{"unknown property", "missing", `{"value": 1}`, http.StatusNotFound, "NOT_FOUND"},
		{"bad body", "level", `{"val": 1}`, http.StatusBadRequest, "INVALID_BODY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, base+tt.prop, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error.Code)
		})
	}
}

func TestServer_ObjectProperty(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	target := f.newGauge(t)
	linked, err := f.reg.New(f.linked)
	require.NoError(t, err)
	t.Cleanup(linked.Unref)
	path := "/instances/" + linked.ID().String() + "/properties/next"

	rec := f.do(t, http.MethodPut, path, SetPropertyRequest{Value: target.ID().String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, target.ID().String(), decode[PropertyValue](t, rec).Value)
	// the lookup reference is released after the request
	assert.EqualValues(t, 1, target.RefCount())

	rec = f.do(t, http.MethodPut, path, SetPropertyRequest{Value: nil})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[PropertyValue](t, rec).Value)
	assert.EqualValues(t, 1, target.RefCount())

	rec = f.do(t, http.MethodPut, path, SetPropertyRequest{Value: uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Signals(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	obj := f.newGauge(t)
	base := "/instances/" + obj.ID().String() + "/signals/"

	t.Run("return value", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, base+"sum", EmitRequest{Args: []any{2, 3}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[EmitResponse](t, rec)
		assert.Equal(t, "sum", resp.Signal)
		assert.EqualValues(t, 5, resp.Return)
	})

	t.Run("no body", func(t *testing.T) {
		fired := 0
		_, err := obj.Connect("reset", false, func([]object.Value) object.Value {
			fired++
			return object.Value{}
		})
		require.NoError(t, err)

		rec := f.do(t, http.MethodPost, base+"reset", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, fired)
		assert.Nil(t, decode[EmitResponse](t, rec).Return)
	})

	tests := []struct {
		name   string
		signal string
		args   []any
		status int
		code   string
	}{
		{"unknown signal", "missing", nil, http.StatusNotFound, "NOT_FOUND"},
		{"too few args", "sum", []any{1}, http.StatusBadRequest, "ARITY_MISMATCH"},
		{"bad arg", "sum", []any{1, "x"}, http.StatusUnprocessableEntity, "TYPE_MISMATCH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, base+tt.signal, EmitRequest{Args: tt.args})
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error.Code)
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	obj := f.newGauge(t)
	require.NoError(t, obj.Set("level", 20))

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `objrt_instances_created_total{type="Gauge"} 1`)
	assert.Contains(t, body, `objrt_instances_live{type="Gauge"} 1`)
	assert.Contains(t, body, `objrt_properties_changes_total{property="level",type="Gauge"} 1`)
}

func TestServer_Auth(t *testing.T) {
	config := DefaultConfig()
	config.JWTSecret = "test-secret"
	f := newFixture(t, config)

	token, err := NewAuthenticator("test-secret").GenerateToken("tester", time.Minute)
	require.NoError(t, err)
	forged, err := NewAuthenticator("other-secret").GenerateToken("tester", time.Minute)
	require.NoError(t, err)
	expired, err := NewAuthenticator("test-secret").GenerateToken("tester", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header []string
		status int
	}{
		{"health is public", "/health", nil, http.StatusOK},
		{"metrics are public", "/metrics", nil, http.StatusOK},
		{"missing token", "/types", nil, http.StatusUnauthorized},
		{"malformed header", "/types", []string{"Authorization", "Token " + token}, http.StatusUnauthorized},
		{"wrong secret", "/types", []string{"Authorization", "Bearer " + forged}, http.StatusUnauthorized},
		{"expired", "/types", []string{"Authorization", "Bearer " + expired}, http.StatusUnauthorized},
		{"bearer token", "/types", []string{"Authorization", "Bearer " + token}, http.StatusOK},
		{"query token", "/types?token=" + token, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.path, nil, tt.header...)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAuthenticator_ValidateToken(t *testing.T) {
	auth := NewAuthenticator("secret")
	token, err := auth.GenerateToken("alice", time.Minute)
	require.NoError(t, err)

	subject, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)

	_, err = auth.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)

	empty, err := auth.GenerateToken("", time.Minute)
	require.NoError(t, err)
	_, err = auth.ValidateToken(empty)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestServer_Events(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ts := httptest.NewServer(f.server.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events?type=Gauge"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	assert.Eventually(t, func() bool { return f.server.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	obj := f.newGauge(t)
	require.NoError(t, obj.Set("level", 33))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var seen []string
	for {
		var msg EventMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "Gauge", msg.Type)
		seen = append(seen, msg.Event)
		if msg.Event == "property-changed" {
			assert.Equal(t, obj.ID().String(), msg.ObjectID)
			assert.Equal(t, "level", msg.Property)
			break
		}
	}
	assert.Equal(t, "created", seen[0])
}

func TestServer_CORS(t *testing.T) {
	config := DefaultConfig()
	config.AllowedOrigins = []string{"http://localhost:3000", "*.example.com"}
	config.JWTSecret = "test-secret"
	f := newFixture(t, config)

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		status      int
		allowOrigin string
	}{
		{"preflight allowed", http.MethodOptions, "http://localhost:3000", true, http.StatusNoContent, "http://localhost:3000"},
		{"preflight subdomain", http.MethodOptions, "https://app.example.com", true, http.StatusNoContent, "https://app.example.com"},
		{"preflight denied", http.MethodOptions, "https://evil.test", true, http.StatusNoContent, ""},
		{"simple request", http.MethodGet, "http://localhost:3000", false, http.StatusOK, "http://localhost:3000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPut)
			}
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.allowOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.preflight && tt.allowOrigin != "" {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
			}
		})
	}

	// preflight for a protected route needs no token
	req := httptest.NewRequest(http.MethodOptions, "/types", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
