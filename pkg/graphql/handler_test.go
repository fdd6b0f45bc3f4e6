package graphql

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ohler55/ojg/jp"
)

func newTestHandler(t *testing.T, mocks MockMap) *Handler {
	t.Helper()
	return NewHandler(newTestExecutor(t, mocks))
}

func serve(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, body
}

func postJSON(t *testing.T, query string, vars map[string]any) *http.Request {
	t.Helper()
	b, err := json.Marshal(GraphQLRequest{Query: query, Variables: vars})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// jsonPath returns the first value matching path.
func jsonPath(t *testing.T, body any, path string) any {
	t.Helper()
	expr, err := jp.ParseString(path)
	if err != nil {
		t.Fatalf("jp.ParseString(%q) error = %v", path, err)
	}
	results := expr.Get(body)
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

func TestHandler_POST_JSON(t *testing.T) {
	h := newTestHandler(t, MockMap{
		"SystemQuery": Object("", func() map[string]any {
			return map[string]any{"info": map[string]any{"setup": false}}
		}),
	})

	rec, body := serve(t, h, postJSON(t, `{ system { info { setup } } }`, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":{"system":{"info":{"setup":false}}}}` {
		t.Errorf("body = %s", got)
	}
	if got := jsonPath(t, body, "$.data.system.info.setup"); got != false {
		t.Errorf("setup = %v", got)
	}
}

func TestHandler_POST_GraphQL(t *testing.T) {
	h := newTestHandler(t, MockMap{"String": Static("Example Data")})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{ group(id: "1") { name } }`))
	req.Header.Set("Content-Type", "application/graphql")
	rec, body := serve(t, h, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := jsonPath(t, body, "$.data.group.name"); got != "Example Data" {
		t.Errorf("group.name = %v", got)
	}
}

func TestHandler_GET(t *testing.T) {
	h := newTestHandler(t, MockMap{"Group.isSystem": Static(true)})

	q := url.Values{}
	q.Set("query", `query ($id: ID!) { group(id: $id) { isSystem } }`)
	q.Set("variables", `{"id": "7"}`)
	rec, body := serve(t, h, httptest.NewRequest(http.MethodGet, "/?"+q.Encode(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if got := jsonPath(t, body, "$.data.group.isSystem"); got != true {
		t.Errorf("isSystem = %v", got)
	}
}

func TestHandler_GET_MutationNotAllowed(t *testing.T) {
	h := newTestHandler(t, nil)

	q := url.Values{}
	q.Set("query", `mutation { renameGroup(id: "1", name: "x") { id } }`)
	rec, body := serve(t, h, httptest.NewRequest(http.MethodGet, "/?"+q.Encode(), nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "POST" {
		t.Errorf("Allow = %q", allow)
	}
	if jsonPath(t, body, "$.errors[0].message") == nil {
		t.Error("expected an error message")
	}
}

func TestHandler_BadRequests(t *testing.T) {
	h := newTestHandler(t, nil)

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{"empty body", func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
			r.Header.Set("Content-Type", "application/json")
			return r
		}},
		{"invalid JSON", func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
			r.Header.Set("Content-Type", "application/json")
			return r
		}},
		{"GET without query", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/", nil)
		}},
		{"GET with invalid variables", func() *http.Request {
			q := url.Values{}
			q.Set("query", "{ count }")
			q.Set("variables", "{bad")
			return httptest.NewRequest(http.MethodGet, "/?"+q.Encode(), nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(t, h, tt.req())
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if jsonPath(t, body, "$.errors[0].message") == nil {
				t.Errorf("body = %s, want an error message", rec.Body.String())
			}
		})
	}
}

func TestHandler_ValidationErrorsAre200(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, body := serve(t, h, postJSON(t, `{ nope }`, nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if _, ok := body["data"]; ok {
		t.Errorf("body = %s, want no data entry", rec.Body.String())
	}
	msg, _ := jsonPath(t, body, "$.errors[0].message").(string)
	if !strings.Contains(msg, "nope") {
		t.Errorf("message = %q", msg)
	}
	if got := jsonPath(t, body, "$.errors[0].locations[0].line"); got != float64(1) {
		t.Errorf("locations[0].line = %v", got)
	}
}

func TestHandler_FieldErrorsKeepPartialData(t *testing.T) {
	h := newTestHandler(t, MockMap{"Query.broken": Scalar(func() any { panic("boom") })})

	rec, body := serve(t, h, postJSON(t, `{ broken flag }`, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := jsonPath(t, body, "$.data.flag").(bool); !ok {
		t.Errorf("flag missing from partial data: %s", rec.Body.String())
	}
	if got := jsonPath(t, body, "$.errors[0].path[0]"); got != "broken" {
		t.Errorf("errors[0].path[0] = %v", got)
	}
}

func TestHandler_SubscriptionOverHTTP(t *testing.T) {
	h := newTestHandler(t, nil)

	_, body := serve(t, h, postJSON(t, `subscription { groupChanged { id } }`, nil))

	msg, _ := jsonPath(t, body, "$.errors[0].message").(string)
	if !strings.Contains(msg, "WebSocket") {
		t.Errorf("message = %q", msg)
	}
}

func TestHandler_OPTIONS(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, nil)

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec, _ := serve(t, h, httptest.NewRequest(method, "/", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s status = %d, want 405", method, rec.Code)
		}
	}
}

func TestHandler_OperationName(t *testing.T) {
	h := newTestHandler(t, nil)

	b, _ := json.Marshal(GraphQLRequest{Query: `query A { count } query B { flag }`, OperationName: "A"})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	_, body := serve(t, h, req)

	if _, ok := jsonPath(t, body, "$.data.count").(float64); !ok {
		t.Errorf("body = %v, want operation A", body)
	}
}

func TestHandler_Introspection(t *testing.T) {
	h := newTestHandler(t, nil)

	_, body := serve(t, h, postJSON(t, `{ __schema { queryType { name } } }`, nil))

	if got := jsonPath(t, body, "$.data.__schema.queryType.name"); got != "Query" {
		t.Errorf("queryType.name = %v", got)
	}
}

func TestNewHandler(t *testing.T) {
	e := newTestExecutor(t, nil)
	h := NewHandler(e, WithHandlerLogger(nil))

	if h.Executor() != e {
		t.Error("Executor() does not return the executor")
	}
	if h.log == nil {
		t.Error("nil logger option should keep the default")
	}
}

func TestHandler_BodyTooLarge(t *testing.T) {
	h := newTestHandler(t, nil)

	body := `{"query":"{ flag }","extensions":{"pad":"` + strings.Repeat("x", MaxRequestBodySize) + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec, resp := serve(t, h, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	msg, _ := jsonPath(t, resp, "$.errors[0].message").(string)
	if !strings.Contains(msg, "request body exceeds") {
		t.Errorf("message = %q", msg)
	}
}

func TestHandler_ResponseKeepsSelectionOrder(t *testing.T) {
	h := newTestHandler(t, MockMap{"Int": Static(1), "Boolean": Static(true)})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postJSON(t, `{ flag count group(id: "g") { isSystem __typename } }`, nil))

	want := `{"data":{"flag":true,"count":1,"group":{"isSystem":true,"__typename":"Group"}}}` + "\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}
