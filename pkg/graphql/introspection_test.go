package graphql

import (
	"strings"
	"testing"
)

func TestIntrospection_Schema(t *testing.T) {
	e := newTestExecutor(t, MockMap{"String": Static("Example Data")})

	resp := execute(t, e, `{
		__schema {
			queryType { name kind }
			mutationType { name }
			subscriptionType { name }
			types { name }
			directives { name }
		}
	}`, nil)
	requireNoErrors(t, resp)

	if got := field(t, resp.Data, "__schema", "queryType", "name"); got != "Query" {
		t.Errorf("queryType.name = %v", got)
	}
	if got := field(t, resp.Data, "__schema", "queryType", "kind"); got != "OBJECT" {
		t.Errorf("queryType.kind = %v", got)
	}
	if got := field(t, resp.Data, "__schema", "mutationType", "name"); got != "Mutation" {
		t.Errorf("mutationType.name = %v", got)
	}

	names := map[string]bool{}
	for _, ty := range field(t, resp.Data, "__schema", "types").([]any) {
		names[ty.(map[string]any)["name"].(string)] = true
	}
	for _, want := range []string{"Query", "Group", "Node", "SearchResult", "Role", "DateTime", "String", "__Type"} {
		if !names[want] {
			t.Errorf("types missing %s", want)
		}
	}

	directives := map[string]bool{}
	for _, d := range field(t, resp.Data, "__schema", "directives").([]any) {
		directives[d.(map[string]any)["name"].(string)] = true
	}
	if !directives["skip"] || !directives["include"] || !directives["deprecated"] {
		t.Errorf("directives = %v", directives)
	}
}

func TestIntrospection_Type(t *testing.T) {
	e := newTestExecutor(t, MockMap{"String": Static("Example Data")})

	resp := execute(t, e, `{
		__type(name: "Group") {
			kind
			name
			interfaces { name }
			fields {
				name
				type { kind name ofType { kind name ofType { name } } }
			}
		}
	}`, nil)
	requireNoErrors(t, resp)

	if got := field(t, resp.Data, "__type", "kind"); got != "OBJECT" {
		t.Errorf("kind = %v", got)
	}
	ifaces := field(t, resp.Data, "__type", "interfaces").([]any)
	if len(ifaces) != 1 || ifaces[0].(map[string]any)["name"] != "Node" {
		t.Errorf("interfaces = %v", ifaces)
	}

	fields := map[string]map[string]any{}
	for _, f := range field(t, resp.Data, "__type", "fields").([]any) {
		m := f.(map[string]any)
		fields[m["name"].(string)] = m["type"].(map[string]any)
	}
	if len(fields) != 5 {
		t.Errorf("fields = %d, want 5", len(fields))
	}

	// isSystem: Boolean!
	isSystem := fields["isSystem"]
	if isSystem["kind"] != "NON_NULL" || isSystem["name"] != nil {
		t.Errorf("isSystem type = %v", isSystem)
	}
	if inner := isSystem["ofType"].(map[string]any); inner["kind"] != "SCALAR" || inner["name"] != "Boolean" || inner["ofType"] != nil {
		t.Errorf("isSystem ofType = %v", inner)
	}

	// permissions: [String]!
	perms := fields["permissions"]
	list := perms["ofType"].(map[string]any)
	if list["kind"] != "LIST" || list["ofType"].(map[string]any)["name"] != "String" {
		t.Errorf("permissions type = %v", perms)
	}
}

func TestIntrospection_WrapperTypesDoNotFallThroughToMocks(t *testing.T) {
	e := newTestExecutor(t, MockMap{"String": Static("Example Data")})

	resp := execute(t, e, `{ __type(name: "Group") { fields { type { name description fields { name } } } } }`, nil)
	requireNoErrors(t, resp)

	for _, f := range field(t, resp.Data, "__type", "fields").([]any) {
		ty := f.(map[string]any)["type"].(map[string]any)
		if ty["description"] == "Example Data" || ty["name"] == "Example Data" {
			t.Errorf("introspection leaked mocked values: %v", ty)
		}
	}
}

func TestIntrospection_EnumAndUnion(t *testing.T) {
	e := newTestExecutor(t, nil)

	resp := execute(t, e, `{
		role: __type(name: "Role") { kind enumValues { name isDeprecated } }
		search: __type(name: "SearchResult") { kind possibleTypes { name } }
		node: __type(name: "Node") { kind possibleTypes { name } }
	}`, nil)
	requireNoErrors(t, resp)

	var roles []string
	for _, v := range field(t, resp.Data, "role", "enumValues").([]any) {
		roles = append(roles, v.(map[string]any)["name"].(string))
	}
	if strings.Join(roles, ",") != "ADMIN,MEMBER,GUEST" {
		t.Errorf("enumValues = %v", roles)
	}

	for _, key := range []string{"search", "node"} {
		var possible []string
		for _, v := range field(t, resp.Data, key, "possibleTypes").([]any) {
			possible = append(possible, v.(map[string]any)["name"].(string))
		}
		if strings.Join(possible, ",") != "Group,User" {
			t.Errorf("%s possibleTypes = %v", key, possible)
		}
	}
	if got := field(t, resp.Data, "search", "kind"); got != "UNION" {
		t.Errorf("search kind = %v", got)
	}
	if got := field(t, resp.Data, "node", "kind"); got != "INTERFACE" {
		t.Errorf("node kind = %v", got)
	}
}

func TestIntrospection_IncludeDeprecated(t *testing.T) {
	schema := mustParseSchema(t, `
type Query {
	current: String
	old: String @deprecated(reason: "use current")
	level: Level
}

enum Level {
	LOW
	MEDIUM @deprecated
	HIGH
}
`)
	e := NewExecutor(schema, nil)

	names := func(t *testing.T, v any) string {
		t.Helper()
		var out []string
		for _, item := range v.([]any) {
			out = append(out, item.(map[string]any)["name"].(string))
		}
		return strings.Join(out, ",")
	}

	tests := []struct {
		name       string
		query      string
		vars       map[string]any
		wantFields string
		wantValues string
	}{
		{
			name:       "default hides deprecated",
			query:      `{ q: __type(name: "Query") { fields { name } } l: __type(name: "Level") { enumValues { name } } }`,
			wantFields: "current,level",
			wantValues: "LOW,HIGH",
		},
		{
			name:       "explicit true",
			query:      `{ q: __type(name: "Query") { fields(includeDeprecated: true) { name } } l: __type(name: "Level") { enumValues(includeDeprecated: true) { name } } }`,
			wantFields: "current,old,level",
			wantValues: "LOW,MEDIUM,HIGH",
		},
		{
			name:       "from variable",
			query:      `query($all: Boolean!) { q: __type(name: "Query") { fields(includeDeprecated: $all) { name } } l: __type(name: "Level") { enumValues(includeDeprecated: $all) { name } } }`,
			vars:       map[string]any{"all": true},
			wantFields: "current,old,level",
			wantValues: "LOW,MEDIUM,HIGH",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := execute(t, e, tt.query, tt.vars)
			requireNoErrors(t, resp)

			if got := names(t, field(t, resp.Data, "q", "fields")); got != tt.wantFields {
				t.Errorf("fields = %s, want %s", got, tt.wantFields)
			}
			if got := names(t, field(t, resp.Data, "l", "enumValues")); got != tt.wantValues {
				t.Errorf("enumValues = %s, want %s", got, tt.wantValues)
			}
		})
	}
}

func TestIntrospection_UnknownType(t *testing.T) {
	e := newTestExecutor(t, nil)

	resp := execute(t, e, `{ __type(name: "Nope") { name } }`, nil)
	requireNoErrors(t, resp)

	if got, want := dataJSON(t, resp), `{"__type":null}`; got != want {
		t.Errorf("data = %s, want %s", got, want)
	}
}

func TestIntrospection_Disabled(t *testing.T) {
	e := newTestExecutor(t, nil, WithIntrospection(false))

	resp := execute(t, e, `{ __schema { queryType { name } } }`, nil)
	if !resp.HasErrors() || !strings.Contains(resp.Errors[0].Message, "introspection") {
		t.Errorf("errors = %+v, want introspection disabled error", resp.Errors)
	}

	// __typename stays available.
	resp = execute(t, e, `{ __typename }`, nil)
	requireNoErrors(t, resp)
	if got := field(t, resp.Data, "__typename"); got != "Query" {
		t.Errorf("__typename = %v", got)
	}
}
